// Package cpu implements the per-family instruction encoders of the
// cross-assembler. A family is a closed variant: a static opcode
// table plus an operand classifier, selected by configuration, never
// by subclassing. Tables are built once at init and are read-only
// afterwards, so they may be shared freely between parallel assembly
// workers.
package cpu

import (
	"fmt"
	"strings"
)

// Family selects the target CPU.
type Family int

const (
	M6502 Family = iota
	Z80
	M6809
)

func (f Family) String() string {
	switch f {
	case M6502:
		return "6502"
	case Z80:
		return "z80"
	case M6809:
		return "6809"
	}
	return "unknown"
}

// ParseFamily converts a configuration string to a Family.
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "6502", "mos6502", "m6502":
		return M6502, nil
	case "z80", "zilog80":
		return Z80, nil
	case "6809", "m6809", "mc6809":
		return M6809, nil
	}
	return 0, fmt.Errorf("unsupported CPU family: %s", s)
}

// EvalFunc resolves an operand expression to a value. ok=false means
// the value is pending (a pass-1 forward reference); the encoder then
// applies its worst-case width policy and emits placeholder bytes.
type EvalFunc func(expr string) (value int64, ok bool, err error)

// Request carries one instruction's worth of encoding input. The
// assembly context is passed explicitly; encoders hold no state.
type Request struct {
	Mnemonic  string // canonical upper-case mnemonic
	Operand   string // raw operand text
	PC        uint16 // address of this instruction
	DP        uint8  // 6809 direct page register (SETDP)
	WidthHint int    // pass-1 instruction length, 0 when unknown
	Eval      EvalFunc
}

// Encode assembles one instruction for the family. The returned
// slice is prefix(es), opcode, then operand bytes. A non-nil error
// is an encoding error local to this instruction (illegal addressing
// mode, operand out of range); the caller reports it and emits
// nothing for the line.
func Encode(f Family, req Request) ([]byte, error) {
	switch f {
	case M6502:
		return encode6502(req)
	case Z80:
		return encodeZ80(req)
	case M6809:
		return encode6809(req)
	}
	return nil, fmt.Errorf("unsupported CPU family")
}

// IsMnemonic reports whether name is an instruction mnemonic of the
// family. The assembler uses it to tell instructions from unknown
// directives.
func IsMnemonic(f Family, name string) bool {
	name = strings.ToUpper(name)
	switch f {
	case M6502:
		_, ok := table6502[name]
		return ok
	case Z80:
		return isZ80Mnemonic(name)
	case M6809:
		_, ok := table6809[name]
		return ok
	}
	return false
}

// Mode identifies the syntactic shape of an instruction operand.
// The set is the union over the supported families; each family's
// table maps only the modes it actually has.
type Mode int

const (
	Implied Mode = iota // inherent, no operand
	Accumulator
	Immediate     // one operand byte
	ImmediateWord // two operand bytes
	ZeroPage      // 6502 zero page, 6809 direct
	ZeroPageX
	ZeroPageY
	Absolute // 6502 absolute, 6809 extended
	AbsoluteX
	AbsoluteY
	Indirect
	IndirectX
	IndirectY
	Relative     // signed 8-bit pc-relative
	RelativeWord // 6809 long branches
	Indexed      // 6809 postbyte forms
	RegisterPair // 6809 TFR/EXG
	RegisterList // 6809 PSHS/PULS/PSHU/PULU
)

func (m Mode) String() string {
	switch m {
	case Implied:
		return "implied"
	case Accumulator:
		return "accumulator"
	case Immediate:
		return "immediate"
	case ImmediateWord:
		return "immediate16"
	case ZeroPage:
		return "zeropage"
	case ZeroPageX:
		return "zeropage,x"
	case ZeroPageY:
		return "zeropage,y"
	case Absolute:
		return "absolute"
	case AbsoluteX:
		return "absolute,x"
	case AbsoluteY:
		return "absolute,y"
	case Indirect:
		return "indirect"
	case IndirectX:
		return "(indirect,x)"
	case IndirectY:
		return "(indirect),y"
	case Relative:
		return "relative"
	case RelativeWord:
		return "relative16"
	case Indexed:
		return "indexed"
	case RegisterPair:
		return "register pair"
	case RegisterList:
		return "register list"
	}
	return "unknown"
}

// OperandBytes returns how many operand bytes follow the opcode for
// a fixed-width mode. Indexed and register-list modes are variable
// and handled by the family encoders directly.
func (m Mode) OperandBytes() int {
	switch m {
	case Implied, Accumulator:
		return 0
	case Immediate, ZeroPage, ZeroPageX, ZeroPageY, IndirectX, IndirectY, Relative, RegisterPair, RegisterList:
		return 1
	case ImmediateWord, Absolute, AbsoluteX, AbsoluteY, Indirect, RelativeWord:
		return 2
	}
	return -1
}

func errIllegalMode(mnemonic string, mode Mode) error {
	return fmt.Errorf("illegal addressing mode for %s: %s", mnemonic, mode)
}
