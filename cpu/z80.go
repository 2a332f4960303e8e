package cpu

import (
	"fmt"
	"strings"

	"github.com/retroasm/xasm8/encode"
)

// Z80 instructions are identified by a signature: the mnemonic plus
// its operands with register names kept literal and expressions
// replaced by placeholders ("*" immediate, "(*)" memory, "(ix+d)"
// indexed). The table maps signatures to encodings and is generated
// once at init from the register group patterns of the instruction
// set, the same way the emulator tables in go6502 are expanded from
// compact row data.

type z80Arg int

const (
	z80Imm8 z80Arg = iota
	z80Imm16
	z80Disp // signed displacement in (IX+d)/(IY+d)
	z80Rel  // pc-relative offset (JR, DJNZ)
)

type z80Entry struct {
	prefix     []byte
	opcode     uint8
	args       []z80Arg
	opcodeLast bool // DD CB d op layout: opcode follows the displacement
}

var (
	z80Table     = make(map[string]z80Entry)
	z80Mnemonics = make(map[string]bool)
)

func z80def(key string, e z80Entry) {
	z80Table[key] = e
	name, _, _ := strings.Cut(key, " ")
	z80Mnemonics[strings.ToUpper(name)] = true
}

func init() {
	regs8 := []string{"b", "c", "d", "e", "h", "l", "(hl)", "a"}
	pairs := []string{"bc", "de", "hl", "sp"}
	stack := []string{"bc", "de", "hl", "af"}
	conds := []string{"nz", "z", "nc", "c", "po", "pe", "p", "m"}

	// 8-bit loads.
	for i, dst := range regs8 {
		for j, src := range regs8 {
			if i == 6 && j == 6 {
				continue // 0x76 is HALT
			}
			z80def("ld "+dst+","+src, z80Entry{opcode: uint8(0x40 + 8*i + j)})
		}
		z80def("ld "+dst+",*", z80Entry{opcode: uint8(0x06 + 8*i), args: []z80Arg{z80Imm8}})
	}
	z80def("ld a,(bc)", z80Entry{opcode: 0x0A})
	z80def("ld a,(de)", z80Entry{opcode: 0x1A})
	z80def("ld (bc),a", z80Entry{opcode: 0x02})
	z80def("ld (de),a", z80Entry{opcode: 0x12})
	z80def("ld a,(*)", z80Entry{opcode: 0x3A, args: []z80Arg{z80Imm16}})
	z80def("ld (*),a", z80Entry{opcode: 0x32, args: []z80Arg{z80Imm16}})
	z80def("ld a,i", z80Entry{prefix: []byte{0xED}, opcode: 0x57})
	z80def("ld a,r", z80Entry{prefix: []byte{0xED}, opcode: 0x5F})
	z80def("ld i,a", z80Entry{prefix: []byte{0xED}, opcode: 0x47})
	z80def("ld r,a", z80Entry{prefix: []byte{0xED}, opcode: 0x4F})

	// 16-bit loads and arithmetic.
	for i, p := range pairs {
		z80def("ld "+p+",*", z80Entry{opcode: uint8(0x01 + 0x10*i), args: []z80Arg{z80Imm16}})
		z80def("inc "+p, z80Entry{opcode: uint8(0x03 + 0x10*i)})
		z80def("dec "+p, z80Entry{opcode: uint8(0x0B + 0x10*i)})
		z80def("add hl,"+p, z80Entry{opcode: uint8(0x09 + 0x10*i)})
		z80def("adc hl,"+p, z80Entry{prefix: []byte{0xED}, opcode: uint8(0x4A + 0x10*i)})
		z80def("sbc hl,"+p, z80Entry{prefix: []byte{0xED}, opcode: uint8(0x42 + 0x10*i)})
	}
	z80def("ld hl,(*)", z80Entry{opcode: 0x2A, args: []z80Arg{z80Imm16}})
	z80def("ld (*),hl", z80Entry{opcode: 0x22, args: []z80Arg{z80Imm16}})
	for _, p := range []string{"bc", "de", "sp"} {
		i := map[string]int{"bc": 0, "de": 1, "sp": 3}[p]
		z80def("ld "+p+",(*)", z80Entry{prefix: []byte{0xED}, opcode: uint8(0x4B + 0x10*i), args: []z80Arg{z80Imm16}})
		z80def("ld (*),"+p, z80Entry{prefix: []byte{0xED}, opcode: uint8(0x43 + 0x10*i), args: []z80Arg{z80Imm16}})
	}
	z80def("ld sp,hl", z80Entry{opcode: 0xF9})

	for i, p := range stack {
		z80def("push "+p, z80Entry{opcode: uint8(0xC5 + 0x10*i)})
		z80def("pop "+p, z80Entry{opcode: uint8(0xC1 + 0x10*i)})
	}

	// 8-bit arithmetic and logic. The accumulator-implicit groups
	// accept both "SUB B" and "SUB A,B" spellings.
	alu := []struct {
		name     string
		base     uint8
		imm      uint8
		explicit bool // canonical form names the accumulator
	}{
		{"add", 0x80, 0xC6, true},
		{"adc", 0x88, 0xCE, true},
		{"sub", 0x90, 0xD6, false},
		{"sbc", 0x98, 0xDE, true},
		{"and", 0xA0, 0xE6, false},
		{"xor", 0xA8, 0xEE, false},
		{"or", 0xB0, 0xF6, false},
		{"cp", 0xB8, 0xFE, false},
	}
	for _, op := range alu {
		for j, r := range regs8 {
			z80def(op.name+" a,"+r, z80Entry{opcode: op.base + uint8(j)})
			if !op.explicit {
				z80def(op.name+" "+r, z80Entry{opcode: op.base + uint8(j)})
			}
		}
		z80def(op.name+" a,*", z80Entry{opcode: op.imm, args: []z80Arg{z80Imm8}})
		if !op.explicit {
			z80def(op.name+" *", z80Entry{opcode: op.imm, args: []z80Arg{z80Imm8}})
		}
	}
	for i, r := range regs8 {
		z80def("inc "+r, z80Entry{opcode: uint8(0x04 + 8*i)})
		z80def("dec "+r, z80Entry{opcode: uint8(0x05 + 8*i)})
	}

	// Jumps, calls, returns.
	z80def("jp *", z80Entry{opcode: 0xC3, args: []z80Arg{z80Imm16}})
	z80def("jp (hl)", z80Entry{opcode: 0xE9})
	z80def("call *", z80Entry{opcode: 0xCD, args: []z80Arg{z80Imm16}})
	z80def("ret", z80Entry{opcode: 0xC9})
	for i, cc := range conds {
		z80def("jp "+cc+",*", z80Entry{opcode: uint8(0xC2 + 8*i), args: []z80Arg{z80Imm16}})
		z80def("call "+cc+",*", z80Entry{opcode: uint8(0xC4 + 8*i), args: []z80Arg{z80Imm16}})
		z80def("ret "+cc, z80Entry{opcode: uint8(0xC0 + 8*i)})
	}
	z80def("jr *", z80Entry{opcode: 0x18, args: []z80Arg{z80Rel}})
	for i, cc := range conds[:4] {
		z80def("jr "+cc+",*", z80Entry{opcode: uint8(0x20 + 8*i), args: []z80Arg{z80Rel}})
	}
	z80def("djnz *", z80Entry{opcode: 0x10, args: []z80Arg{z80Rel}})
	z80def("reti", z80Entry{prefix: []byte{0xED}, opcode: 0x4D})
	z80def("retn", z80Entry{prefix: []byte{0xED}, opcode: 0x45})

	// Exchanges, block transfers, misc implied.
	z80def("ex de,hl", z80Entry{opcode: 0xEB})
	z80def("ex af,af'", z80Entry{opcode: 0x08})
	z80def("ex (sp),hl", z80Entry{opcode: 0xE3})
	z80def("exx", z80Entry{opcode: 0xD9})
	z80def("nop", z80Entry{opcode: 0x00})
	z80def("halt", z80Entry{opcode: 0x76})
	z80def("di", z80Entry{opcode: 0xF3})
	z80def("ei", z80Entry{opcode: 0xFB})
	z80def("daa", z80Entry{opcode: 0x27})
	z80def("cpl", z80Entry{opcode: 0x2F})
	z80def("scf", z80Entry{opcode: 0x37})
	z80def("ccf", z80Entry{opcode: 0x3F})
	z80def("rlca", z80Entry{opcode: 0x07})
	z80def("rrca", z80Entry{opcode: 0x0F})
	z80def("rla", z80Entry{opcode: 0x17})
	z80def("rra", z80Entry{opcode: 0x1F})
	z80def("neg", z80Entry{prefix: []byte{0xED}, opcode: 0x44})
	z80def("rrd", z80Entry{prefix: []byte{0xED}, opcode: 0x67})
	z80def("rld", z80Entry{prefix: []byte{0xED}, opcode: 0x6F})
	for name, op := range map[string]uint8{
		"ldi": 0xA0, "cpi": 0xA1, "ini": 0xA2, "outi": 0xA3,
		"ldd": 0xA8, "cpd": 0xA9, "ind": 0xAA, "outd": 0xAB,
		"ldir": 0xB0, "cpir": 0xB1, "inir": 0xB2, "otir": 0xB3,
		"lddr": 0xB8, "cpdr": 0xB9, "indr": 0xBA, "otdr": 0xBB,
	} {
		z80def(name, z80Entry{prefix: []byte{0xED}, opcode: op})
	}

	// I/O.
	z80def("in a,(*)", z80Entry{opcode: 0xDB, args: []z80Arg{z80Imm8}})
	z80def("out (*),a", z80Entry{opcode: 0xD3, args: []z80Arg{z80Imm8}})
	for i, r := range regs8 {
		if r == "(hl)" {
			continue
		}
		z80def("in "+r+",(c)", z80Entry{prefix: []byte{0xED}, opcode: uint8(0x40 + 8*i)})
		z80def("out (c),"+r, z80Entry{prefix: []byte{0xED}, opcode: uint8(0x41 + 8*i)})
	}

	// CB-prefixed rotates and shifts.
	rot := map[string]uint8{
		"rlc": 0x00, "rrc": 0x08, "rl": 0x10, "rr": 0x18,
		"sla": 0x20, "sra": 0x28, "srl": 0x38,
	}
	for name, base := range rot {
		for i, r := range regs8 {
			z80def(name+" "+r, z80Entry{prefix: []byte{0xCB}, opcode: base + uint8(i)})
		}
	}

	// IX/IY: the HL-based forms gain a DD/FD prefix; (HL) becomes an
	// indexed memory operand with a displacement byte.
	for _, ix := range []struct {
		name   string
		prefix byte
	}{{"ix", 0xDD}, {"iy", 0xFD}} {
		pre := []byte{ix.prefix}
		mem := "(" + ix.name + "+d)"

		for i, r := range regs8 {
			if r == "(hl)" {
				continue
			}
			z80def("ld "+r+","+mem, z80Entry{prefix: pre, opcode: uint8(0x46 + 8*i), args: []z80Arg{z80Disp}})
			z80def("ld "+mem+","+r, z80Entry{prefix: pre, opcode: uint8(0x70 + i), args: []z80Arg{z80Disp}})
		}
		z80def("ld "+mem+",*", z80Entry{prefix: pre, opcode: 0x36, args: []z80Arg{z80Disp, z80Imm8}})
		for _, op := range alu {
			z80def(op.name+" a,"+mem, z80Entry{prefix: pre, opcode: op.base + 6, args: []z80Arg{z80Disp}})
			if !op.explicit {
				z80def(op.name+" "+mem, z80Entry{prefix: pre, opcode: op.base + 6, args: []z80Arg{z80Disp}})
			}
		}
		z80def("inc "+mem, z80Entry{prefix: pre, opcode: 0x34, args: []z80Arg{z80Disp}})
		z80def("dec "+mem, z80Entry{prefix: pre, opcode: 0x35, args: []z80Arg{z80Disp}})
		for name, base := range rot {
			z80def(name+" "+mem, z80Entry{prefix: []byte{ix.prefix, 0xCB}, opcode: base + 6, args: []z80Arg{z80Disp}, opcodeLast: true})
		}

		z80def("ld "+ix.name+",*", z80Entry{prefix: pre, opcode: 0x21, args: []z80Arg{z80Imm16}})
		z80def("ld "+ix.name+",(*)", z80Entry{prefix: pre, opcode: 0x2A, args: []z80Arg{z80Imm16}})
		z80def("ld (*),"+ix.name, z80Entry{prefix: pre, opcode: 0x22, args: []z80Arg{z80Imm16}})
		z80def("inc "+ix.name, z80Entry{prefix: pre, opcode: 0x23})
		z80def("dec "+ix.name, z80Entry{prefix: pre, opcode: 0x2B})
		z80def("push "+ix.name, z80Entry{prefix: pre, opcode: 0xE5})
		z80def("pop "+ix.name, z80Entry{prefix: pre, opcode: 0xE1})
		z80def("jp ("+ix.name+")", z80Entry{prefix: pre, opcode: 0xE9})
		z80def("ex (sp),"+ix.name, z80Entry{prefix: pre, opcode: 0xE3})
		z80def("ld sp,"+ix.name, z80Entry{prefix: pre, opcode: 0xF9})
		for i, p := range []string{"bc", "de", ix.name, "sp"} {
			z80def("add "+ix.name+","+p, z80Entry{prefix: pre, opcode: uint8(0x09 + 0x10*i)})
		}
	}

	// Bit operations, RST and IM carry a constant inside the opcode
	// and are finished in encodeZ80.
	for _, name := range []string{"BIT", "RES", "SET", "RST", "IM"} {
		z80Mnemonics[name] = true
	}
}

func isZ80Mnemonic(name string) bool {
	return z80Mnemonics[name]
}

// z80Piece is one comma-separated operand, reduced to its canonical
// signature token plus the expression text for placeholder tokens.
type z80Piece struct {
	token string
	expr  string
}

// z80Tokens is the set of operand spellings kept literal in
// signatures: registers, register pairs and condition codes.
var z80Tokens = map[string]bool{
	"a": true, "b": true, "c": true, "d": true, "e": true, "h": true, "l": true,
	"i": true, "r": true,
	"af": true, "af'": true, "bc": true, "de": true, "hl": true, "sp": true,
	"ix": true, "iy": true,
	"nz": true, "z": true, "nc": true, "po": true, "pe": true, "p": true, "m": true,
}

var z80ParenTokens = map[string]bool{
	"(hl)": true, "(bc)": true, "(de)": true, "(sp)": true, "(c)": true,
	"(ix)": true, "(iy)": true,
}

func z80Classify(operand string) []z80Piece {
	var pieces []z80Piece
	for _, raw := range splitOperands(operand) {
		s := strings.TrimSpace(raw)
		if s == "" {
			continue
		}
		lower := strings.ToLower(s)

		if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
			inner := strings.TrimSpace(s[1 : len(s)-1])
			il := strings.ToLower(inner)
			switch {
			case z80ParenTokens["("+il+")"]:
				pieces = append(pieces, z80Piece{token: "(" + il + ")"})
			case strings.HasPrefix(il, "ix") && isIndexDisp(inner[2:]):
				pieces = append(pieces, z80Piece{token: "(ix+d)", expr: indexDisp(inner[2:])})
			case strings.HasPrefix(il, "iy") && isIndexDisp(inner[2:]):
				pieces = append(pieces, z80Piece{token: "(iy+d)", expr: indexDisp(inner[2:])})
			default:
				pieces = append(pieces, z80Piece{token: "(*)", expr: inner})
			}
			continue
		}

		if z80Tokens[lower] {
			pieces = append(pieces, z80Piece{token: lower})
			continue
		}
		pieces = append(pieces, z80Piece{token: "*", expr: s})
	}
	return pieces
}

// isIndexDisp reports whether the text after "ix"/"iy" is a signed
// displacement rather than part of a longer symbol name.
func isIndexDisp(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && (s[0] == '+' || s[0] == '-')
}

// indexDisp normalizes the displacement of an (IX+d)/(IY+d) operand:
// the sign stays part of the expression, but a leading "+" is noise.
func indexDisp(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		return strings.TrimSpace(s[1:])
	}
	return s
}

// splitOperands splits on commas outside parentheses.
func splitOperands(s string) []string {
	var out []string
	depth, last := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

func encodeZ80(req Request) ([]byte, error) {
	mn := strings.ToLower(req.Mnemonic)
	pieces := z80Classify(req.Operand)

	switch mn {
	case "bit", "res", "set":
		return encodeZ80Bit(mn, pieces, req)
	case "rst":
		return encodeZ80Rst(pieces, req)
	case "im":
		return encodeZ80IM(pieces, req)
	}

	key := mn
	if len(pieces) > 0 {
		tokens := make([]string, len(pieces))
		for i, p := range pieces {
			tokens[i] = p.token
		}
		key += " " + strings.Join(tokens, ",")
	}

	e, ok := z80Table[key]
	if !ok {
		return nil, fmt.Errorf("illegal operand combination for %s: %q", req.Mnemonic, req.Operand)
	}

	exprs := make([]string, 0, 2)
	for _, p := range pieces {
		if p.expr != "" || p.token == "*" || p.token == "(*)" {
			exprs = append(exprs, p.expr)
		}
	}

	out := make([]byte, 0, 4)
	out = append(out, e.prefix...)
	if !e.opcodeLast {
		out = append(out, e.opcode)
	}
	for i, arg := range e.args {
		if i >= len(exprs) {
			return nil, fmt.Errorf("missing operand for %s", req.Mnemonic)
		}
		v, resolved, err := req.Eval(exprs[i])
		if err != nil {
			return nil, err
		}
		switch arg {
		case z80Imm8:
			if resolved && !encode.InRange(v, -128, 255) {
				return nil, fmt.Errorf("byte value %d out of range", v)
			}
			out = append(out, uint8(v))
		case z80Imm16:
			if resolved && !encode.FitsIn16Bits(v) {
				return nil, fmt.Errorf("word value $%X out of range", v)
			}
			lo, hi := encode.LittleEndian16(uint16(v))
			out = append(out, lo, hi)
		case z80Disp:
			if resolved && !encode.FitsInSignedByte(v) {
				return nil, fmt.Errorf("index displacement %d out of range", v)
			}
			out = append(out, uint8(int8(v)))
		case z80Rel:
			length := int64(len(e.prefix)) + 2
			if !resolved {
				out = append(out, 0)
				break
			}
			offset := v - (int64(req.PC) + length)
			if !encode.FitsInSignedByte(offset) {
				return nil, fmt.Errorf("branch target out of range (offset %d)", offset)
			}
			out = append(out, uint8(int8(offset)))
		}
	}
	if e.opcodeLast {
		out = append(out, e.opcode)
	}
	return out, nil
}

// encodeZ80Bit finishes BIT/RES/SET: the bit number is folded into
// the opcode, so it must evaluate in pass 1.
func encodeZ80Bit(mn string, pieces []z80Piece, req Request) ([]byte, error) {
	if len(pieces) != 2 {
		return nil, fmt.Errorf("%s requires a bit number and an operand", strings.ToUpper(mn))
	}
	bit, resolved, err := req.Eval(pieces[0].expr)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, fmt.Errorf("bit number must not be a forward reference")
	}
	if !encode.InRange(bit, 0, 7) {
		return nil, fmt.Errorf("bit number %d out of range", bit)
	}
	base := map[string]uint8{"bit": 0x40, "res": 0x80, "set": 0xC0}[mn]

	target := pieces[1]
	if target.token == "(ix+d)" || target.token == "(iy+d)" {
		prefix := byte(0xDD)
		if target.token == "(iy+d)" {
			prefix = 0xFD
		}
		d, dResolved, err := req.Eval(target.expr)
		if err != nil {
			return nil, err
		}
		if dResolved && !encode.FitsInSignedByte(d) {
			return nil, fmt.Errorf("index displacement %d out of range", d)
		}
		return []byte{prefix, 0xCB, uint8(int8(d)), base + uint8(bit)*8 + 6}, nil
	}

	reg, ok := map[string]int{
		"b": 0, "c": 1, "d": 2, "e": 3, "h": 4, "l": 5, "(hl)": 6, "a": 7,
	}[target.token]
	if !ok {
		return nil, fmt.Errorf("illegal operand for %s: %q", strings.ToUpper(mn), target.token)
	}
	return []byte{0xCB, base + uint8(bit)*8 + uint8(reg)}, nil
}

func encodeZ80Rst(pieces []z80Piece, req Request) ([]byte, error) {
	if len(pieces) != 1 {
		return nil, fmt.Errorf("RST requires one operand")
	}
	v, resolved, err := req.Eval(pieces[0].expr)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, fmt.Errorf("RST vector must not be a forward reference")
	}
	if v < 0 || v > 0x38 || v%8 != 0 {
		return nil, fmt.Errorf("invalid RST vector $%X", v)
	}
	return []byte{0xC7 + uint8(v)}, nil
}

func encodeZ80IM(pieces []z80Piece, req Request) ([]byte, error) {
	if len(pieces) != 1 {
		return nil, fmt.Errorf("IM requires one operand")
	}
	v, resolved, err := req.Eval(pieces[0].expr)
	if err != nil {
		return nil, err
	}
	if !resolved {
		return nil, fmt.Errorf("interrupt mode must not be a forward reference")
	}
	switch v {
	case 0:
		return []byte{0xED, 0x46}, nil
	case 1:
		return []byte{0xED, 0x56}, nil
	case 2:
		return []byte{0xED, 0x5E}, nil
	}
	return nil, fmt.Errorf("invalid interrupt mode %d", v)
}
