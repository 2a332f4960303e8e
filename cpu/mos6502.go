package cpu

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/retroasm/xasm8/encode"
)

// op6502 is one (mnemonic, mode) row of the 6502 table.
type op6502 struct {
	mode   Mode
	opcode uint8
}

// The full NMOS 6502 instruction set. Operand byte counts derive
// from the mode.
var rows6502 = []struct {
	name string
	ops  []op6502
}{
	{"ADC", []op6502{{Immediate, 0x69}, {ZeroPage, 0x65}, {ZeroPageX, 0x75}, {Absolute, 0x6D}, {AbsoluteX, 0x7D}, {AbsoluteY, 0x79}, {IndirectX, 0x61}, {IndirectY, 0x71}}},
	{"AND", []op6502{{Immediate, 0x29}, {ZeroPage, 0x25}, {ZeroPageX, 0x35}, {Absolute, 0x2D}, {AbsoluteX, 0x3D}, {AbsoluteY, 0x39}, {IndirectX, 0x21}, {IndirectY, 0x31}}},
	{"ASL", []op6502{{Accumulator, 0x0A}, {ZeroPage, 0x06}, {ZeroPageX, 0x16}, {Absolute, 0x0E}, {AbsoluteX, 0x1E}}},
	{"BCC", []op6502{{Relative, 0x90}}},
	{"BCS", []op6502{{Relative, 0xB0}}},
	{"BEQ", []op6502{{Relative, 0xF0}}},
	{"BIT", []op6502{{ZeroPage, 0x24}, {Absolute, 0x2C}}},
	{"BMI", []op6502{{Relative, 0x30}}},
	{"BNE", []op6502{{Relative, 0xD0}}},
	{"BPL", []op6502{{Relative, 0x10}}},
	{"BRK", []op6502{{Implied, 0x00}}},
	{"BVC", []op6502{{Relative, 0x50}}},
	{"BVS", []op6502{{Relative, 0x70}}},
	{"CLC", []op6502{{Implied, 0x18}}},
	{"CLD", []op6502{{Implied, 0xD8}}},
	{"CLI", []op6502{{Implied, 0x58}}},
	{"CLV", []op6502{{Implied, 0xB8}}},
	{"CMP", []op6502{{Immediate, 0xC9}, {ZeroPage, 0xC5}, {ZeroPageX, 0xD5}, {Absolute, 0xCD}, {AbsoluteX, 0xDD}, {AbsoluteY, 0xD9}, {IndirectX, 0xC1}, {IndirectY, 0xD1}}},
	{"CPX", []op6502{{Immediate, 0xE0}, {ZeroPage, 0xE4}, {Absolute, 0xEC}}},
	{"CPY", []op6502{{Immediate, 0xC0}, {ZeroPage, 0xC4}, {Absolute, 0xCC}}},
	{"DEC", []op6502{{ZeroPage, 0xC6}, {ZeroPageX, 0xD6}, {Absolute, 0xCE}, {AbsoluteX, 0xDE}}},
	{"DEX", []op6502{{Implied, 0xCA}}},
	{"DEY", []op6502{{Implied, 0x88}}},
	{"EOR", []op6502{{Immediate, 0x49}, {ZeroPage, 0x45}, {ZeroPageX, 0x55}, {Absolute, 0x4D}, {AbsoluteX, 0x5D}, {AbsoluteY, 0x59}, {IndirectX, 0x41}, {IndirectY, 0x51}}},
	{"INC", []op6502{{ZeroPage, 0xE6}, {ZeroPageX, 0xF6}, {Absolute, 0xEE}, {AbsoluteX, 0xFE}}},
	{"INX", []op6502{{Implied, 0xE8}}},
	{"INY", []op6502{{Implied, 0xC8}}},
	{"JMP", []op6502{{Absolute, 0x4C}, {Indirect, 0x6C}}},
	{"JSR", []op6502{{Absolute, 0x20}}},
	{"LDA", []op6502{{Immediate, 0xA9}, {ZeroPage, 0xA5}, {ZeroPageX, 0xB5}, {Absolute, 0xAD}, {AbsoluteX, 0xBD}, {AbsoluteY, 0xB9}, {IndirectX, 0xA1}, {IndirectY, 0xB1}}},
	{"LDX", []op6502{{Immediate, 0xA2}, {ZeroPage, 0xA6}, {ZeroPageY, 0xB6}, {Absolute, 0xAE}, {AbsoluteY, 0xBE}}},
	{"LDY", []op6502{{Immediate, 0xA0}, {ZeroPage, 0xA4}, {ZeroPageX, 0xB4}, {Absolute, 0xAC}, {AbsoluteX, 0xBC}}},
	{"LSR", []op6502{{Accumulator, 0x4A}, {ZeroPage, 0x46}, {ZeroPageX, 0x56}, {Absolute, 0x4E}, {AbsoluteX, 0x5E}}},
	{"NOP", []op6502{{Implied, 0xEA}}},
	{"ORA", []op6502{{Immediate, 0x09}, {ZeroPage, 0x05}, {ZeroPageX, 0x15}, {Absolute, 0x0D}, {AbsoluteX, 0x1D}, {AbsoluteY, 0x19}, {IndirectX, 0x01}, {IndirectY, 0x11}}},
	{"PHA", []op6502{{Implied, 0x48}}},
	{"PHP", []op6502{{Implied, 0x08}}},
	{"PLA", []op6502{{Implied, 0x68}}},
	{"PLP", []op6502{{Implied, 0x28}}},
	{"ROL", []op6502{{Accumulator, 0x2A}, {ZeroPage, 0x26}, {ZeroPageX, 0x36}, {Absolute, 0x2E}, {AbsoluteX, 0x3E}}},
	{"ROR", []op6502{{Accumulator, 0x6A}, {ZeroPage, 0x66}, {ZeroPageX, 0x76}, {Absolute, 0x6E}, {AbsoluteX, 0x7E}}},
	{"RTI", []op6502{{Implied, 0x40}}},
	{"RTS", []op6502{{Implied, 0x60}}},
	{"SBC", []op6502{{Immediate, 0xE9}, {ZeroPage, 0xE5}, {ZeroPageX, 0xF5}, {Absolute, 0xED}, {AbsoluteX, 0xFD}, {AbsoluteY, 0xF9}, {IndirectX, 0xE1}, {IndirectY, 0xF1}}},
	{"SEC", []op6502{{Implied, 0x38}}},
	{"SED", []op6502{{Implied, 0xF8}}},
	{"SEI", []op6502{{Implied, 0x78}}},
	{"STA", []op6502{{ZeroPage, 0x85}, {ZeroPageX, 0x95}, {Absolute, 0x8D}, {AbsoluteX, 0x9D}, {AbsoluteY, 0x99}, {IndirectX, 0x81}, {IndirectY, 0x91}}},
	{"STX", []op6502{{ZeroPage, 0x86}, {ZeroPageY, 0x96}, {Absolute, 0x8E}}},
	{"STY", []op6502{{ZeroPage, 0x84}, {ZeroPageX, 0x94}, {Absolute, 0x8C}}},
	{"TAX", []op6502{{Implied, 0xAA}}},
	{"TAY", []op6502{{Implied, 0xA8}}},
	{"TSX", []op6502{{Implied, 0xBA}}},
	{"TXA", []op6502{{Implied, 0x8A}}},
	{"TXS", []op6502{{Implied, 0x9A}}},
	{"TYA", []op6502{{Implied, 0x98}}},
}

// table6502 is keyed by mnemonic, then mode.
var table6502 = func() map[string]map[Mode]uint8 {
	t := make(map[string]map[Mode]uint8, len(rows6502))
	for _, row := range rows6502 {
		modes := make(map[Mode]uint8, len(row.ops))
		for _, op := range row.ops {
			modes[op.mode] = op.opcode
		}
		t[row.name] = modes
	}
	return t
}()

var (
	reImm6502  = regexp.MustCompile(`^#(.+)$`)
	reIndX6502 = regexp.MustCompile(`(?i)^\((.+),\s*x\)$`)
	reIndY6502 = regexp.MustCompile(`(?i)^\((.+)\)\s*,\s*y$`)
	reInd6502  = regexp.MustCompile(`^\((.+)\)$`)
	reAbsX6502 = regexp.MustCompile(`(?i)^(.+),\s*x$`)
	reAbsY6502 = regexp.MustCompile(`(?i)^(.+),\s*y$`)
)

// classify6502 derives the syntactic shape of the operand text. Bare
// addresses report Absolute; the encoder narrows to zero page when
// the value is known to fit and the table has a zero-page form.
func classify6502(operand string) (Mode, string) {
	s := strings.TrimSpace(operand)
	switch {
	case s == "":
		return Implied, ""
	case strings.EqualFold(s, "A"):
		return Accumulator, ""
	}
	if m := reImm6502.FindStringSubmatch(s); m != nil {
		return Immediate, m[1]
	}
	if m := reIndX6502.FindStringSubmatch(s); m != nil {
		return IndirectX, m[1]
	}
	if m := reIndY6502.FindStringSubmatch(s); m != nil {
		return IndirectY, m[1]
	}
	if m := reInd6502.FindStringSubmatch(s); m != nil {
		return Indirect, m[1]
	}
	if m := reAbsX6502.FindStringSubmatch(s); m != nil {
		return AbsoluteX, strings.TrimSpace(m[1])
	}
	if m := reAbsY6502.FindStringSubmatch(s); m != nil {
		return AbsoluteY, strings.TrimSpace(m[1])
	}
	return Absolute, s
}

// zpEquivalent maps each absolute-class mode to its zero-page
// counterpart.
var zpEquivalent = map[Mode]Mode{
	Absolute:  ZeroPage,
	AbsoluteX: ZeroPageX,
	AbsoluteY: ZeroPageY,
}

func encode6502(req Request) ([]byte, error) {
	modes, ok := table6502[req.Mnemonic]
	if !ok {
		return nil, fmt.Errorf("unknown mnemonic: %s", req.Mnemonic)
	}

	mode, exprText := classify6502(req.Operand)

	// Branches take a bare operand but encode pc-relative.
	if _, isBranch := modes[Relative]; isBranch && mode == Absolute {
		return encodeRelative(modes[Relative], nil, exprText, req)
	}

	switch mode {
	case Implied, Accumulator:
		opcode, ok := modes[mode]
		if !ok {
			// Some assemblers write "ASL" for "ASL A" and vice versa.
			if alt, found := modes[Accumulator]; found && mode == Implied {
				return []byte{alt}, nil
			}
			return nil, errIllegalMode(req.Mnemonic, mode)
		}
		return []byte{opcode}, nil

	case Immediate:
		opcode, ok := modes[Immediate]
		if !ok {
			return nil, errIllegalMode(req.Mnemonic, mode)
		}
		v, resolved, err := req.Eval(exprText)
		if err != nil {
			return nil, err
		}
		if resolved && !encode.InRange(v, -128, 255) {
			return nil, fmt.Errorf("immediate value %d out of range", v)
		}
		return encode.Build(nil, opcode, uint8(v)), nil

	case IndirectX, IndirectY:
		opcode, ok := modes[mode]
		if !ok {
			return nil, errIllegalMode(req.Mnemonic, mode)
		}
		v, resolved, err := req.Eval(exprText)
		if err != nil {
			return nil, err
		}
		if resolved && !encode.FitsIn8Bits(v) {
			return nil, fmt.Errorf("zero-page address $%X out of range for %s", v, mode)
		}
		return encode.Build(nil, opcode, uint8(v)), nil

	case Indirect:
		opcode, ok := modes[Indirect]
		if !ok {
			return nil, errIllegalMode(req.Mnemonic, mode)
		}
		v, resolved, err := req.Eval(exprText)
		if err != nil {
			return nil, err
		}
		if resolved && !encode.FitsIn16Bits(v) {
			return nil, fmt.Errorf("address $%X out of range", v)
		}
		lo, hi := encode.LittleEndian16(uint16(v))
		return encode.Build(nil, opcode, lo, hi), nil

	case Absolute, AbsoluteX, AbsoluteY:
		v, resolved, err := req.Eval(exprText)
		if err != nil {
			return nil, err
		}

		// Width policy: pending values assume the absolute form so
		// the pass-1 address map never shrinks in pass 2. A pass-1
		// width hint pins the decision once made.
		zpMode := zpEquivalent[mode]
		zpOpcode, hasZP := modes[zpMode]
		useZP := hasZP && resolved && encode.FitsIn8Bits(v)
		if useZP && req.WidthHint == 3 {
			useZP = false
		}

		if useZP {
			return encode.Build(nil, zpOpcode, uint8(v)), nil
		}

		opcode, ok := modes[mode]
		if !ok {
			// Zero-page-only forms (e.g. STX abs exists, but some
			// mnemonics have no absolute variant for this index).
			if hasZP {
				if resolved && !encode.FitsIn8Bits(v) {
					return nil, fmt.Errorf("address $%X out of range for %s", v, zpMode)
				}
				return encode.Build(nil, zpOpcode, uint8(v)), nil
			}
			return nil, errIllegalMode(req.Mnemonic, mode)
		}
		if resolved && !encode.FitsIn16Bits(v) {
			return nil, fmt.Errorf("address $%X out of range", v)
		}
		lo, hi := encode.LittleEndian16(uint16(v))
		return encode.Build(nil, opcode, lo, hi), nil
	}

	return nil, errIllegalMode(req.Mnemonic, mode)
}

// encodeRelative emits a pc-relative branch with signed 8-bit range
// checking against the address following the instruction.
func encodeRelative(opcode uint8, prefix []byte, exprText string, req Request) ([]byte, error) {
	v, resolved, err := req.Eval(exprText)
	if err != nil {
		return nil, err
	}
	length := int64(len(prefix)) + 2
	next := int64(req.PC) + length
	if !resolved {
		// Forward reference in pass 1: the branch length is fixed,
		// emit a placeholder offset.
		return encode.Build(prefix, opcode, 0), nil
	}
	offset := v - next
	if !encode.FitsInSignedByte(offset) {
		return nil, fmt.Errorf("branch target out of range (offset %d)", offset)
	}
	return encode.Build(prefix, opcode, uint8(int8(offset))), nil
}
