package cpu

import (
	"fmt"
	"strings"

	"github.com/retroasm/xasm8/encode"
)

// op6809 is one table cell: an optional $10/$11 prefix page plus the
// opcode. Operands are big-endian on this family.
type op6809 struct {
	pre uint8 // 0 means no prefix
	op  uint8
}

func (o op6809) prefix() []byte {
	if o.pre == 0 {
		return nil
	}
	return []byte{o.pre}
}

var table6809 = build6809()

func build6809() map[string]map[Mode]op6809 {
	t := make(map[string]map[Mode]op6809)
	def := func(name string, mode Mode, pre, op uint8) {
		if t[name] == nil {
			t[name] = make(map[Mode]op6809)
		}
		t[name][mode] = op6809{pre: pre, op: op}
	}

	// mem8: immediate/direct/indexed/extended group with an 8-bit
	// immediate, laid out at base/base+$10/base+$20/base+$30.
	mem8 := func(name string, base, pre uint8, store bool) {
		if !store {
			def(name, Immediate, pre, base)
		}
		def(name, ZeroPage, pre, base+0x10)
		def(name, Indexed, pre, base+0x20)
		def(name, Absolute, pre, base+0x30)
	}
	mem16 := func(name string, base, pre uint8, store bool) {
		if !store {
			def(name, ImmediateWord, pre, base)
		}
		def(name, ZeroPage, pre, base+0x10)
		def(name, Indexed, pre, base+0x20)
		def(name, Absolute, pre, base+0x30)
	}
	// rmw: direct/indexed/extended read-modify-write group.
	rmw := func(name string, base uint8) {
		def(name, ZeroPage, 0, base)
		def(name, Indexed, 0, base+0x60)
		def(name, Absolute, 0, base+0x70)
	}

	mem8("LDA", 0x86, 0, false)
	mem8("LDB", 0xC6, 0, false)
	mem8("STA", 0x87, 0, true)
	mem8("STB", 0xC7, 0, true)
	mem8("ADDA", 0x8B, 0, false)
	mem8("ADDB", 0xCB, 0, false)
	mem8("ADCA", 0x89, 0, false)
	mem8("ADCB", 0xC9, 0, false)
	mem8("SUBA", 0x80, 0, false)
	mem8("SUBB", 0xC0, 0, false)
	mem8("SBCA", 0x82, 0, false)
	mem8("SBCB", 0xC2, 0, false)
	mem8("CMPA", 0x81, 0, false)
	mem8("CMPB", 0xC1, 0, false)
	mem8("ANDA", 0x84, 0, false)
	mem8("ANDB", 0xC4, 0, false)
	mem8("ORA", 0x8A, 0, false)
	mem8("ORB", 0xCA, 0, false)
	mem8("EORA", 0x88, 0, false)
	mem8("EORB", 0xC8, 0, false)
	mem8("BITA", 0x85, 0, false)
	mem8("BITB", 0xC5, 0, false)
	mem8("JSR", 0x8D, 0, true) // $8D itself is BSR

	mem16("LDD", 0xCC, 0, false)
	mem16("LDX", 0x8E, 0, false)
	mem16("LDY", 0x8E, 0x10, false)
	mem16("LDU", 0xCE, 0, false)
	mem16("LDS", 0xCE, 0x10, false)
	mem16("STD", 0xCD, 0, true)
	mem16("STX", 0x8F, 0, true)
	mem16("STY", 0x8F, 0x10, true)
	mem16("STU", 0xCF, 0, true)
	mem16("STS", 0xCF, 0x10, true)
	mem16("ADDD", 0xC3, 0, false)
	mem16("SUBD", 0x83, 0, false)
	mem16("CMPD", 0x83, 0x10, false)
	mem16("CMPX", 0x8C, 0, false)
	mem16("CMPY", 0x8C, 0x10, false)
	mem16("CMPU", 0x83, 0x11, false)
	mem16("CMPS", 0x8C, 0x11, false)

	rmw("NEG", 0x00)
	rmw("COM", 0x03)
	rmw("LSR", 0x04)
	rmw("ROR", 0x06)
	rmw("ASR", 0x07)
	rmw("ASL", 0x08)
	rmw("LSL", 0x08)
	rmw("ROL", 0x09)
	rmw("DEC", 0x0A)
	rmw("INC", 0x0C)
	rmw("TST", 0x0D)
	rmw("JMP", 0x0E)
	rmw("CLR", 0x0F)

	// Accumulator inherent forms, $40 page for A and $50 for B.
	for acc, base := range map[string]uint8{"A": 0x40, "B": 0x50} {
		for name, off := range map[string]uint8{
			"NEG": 0x00, "COM": 0x03, "LSR": 0x04, "ROR": 0x06, "ASR": 0x07,
			"ASL": 0x08, "LSL": 0x08, "ROL": 0x09, "DEC": 0x0A, "INC": 0x0C,
			"TST": 0x0D, "CLR": 0x0F,
		} {
			def(name+acc, Implied, 0, base+off)
		}
	}

	def("LEAX", Indexed, 0, 0x30)
	def("LEAY", Indexed, 0, 0x31)
	def("LEAS", Indexed, 0, 0x32)
	def("LEAU", Indexed, 0, 0x33)

	def("ANDCC", Immediate, 0, 0x1C)
	def("ORCC", Immediate, 0, 0x1A)
	def("CWAI", Immediate, 0, 0x3C)

	for name, op := range map[string]uint8{
		"NOP": 0x12, "SYNC": 0x13, "DAA": 0x19, "SEX": 0x1D,
		"RTS": 0x39, "ABX": 0x3A, "RTI": 0x3B, "MUL": 0x3D, "SWI": 0x3F,
	} {
		def(name, Implied, 0, op)
	}
	def("SWI2", Implied, 0x10, 0x3F)
	def("SWI3", Implied, 0x11, 0x3F)

	def("TFR", RegisterPair, 0, 0x1F)
	def("EXG", RegisterPair, 0, 0x1E)
	def("PSHS", RegisterList, 0, 0x34)
	def("PULS", RegisterList, 0, 0x35)
	def("PSHU", RegisterList, 0, 0x36)
	def("PULU", RegisterList, 0, 0x37)

	// Short branches at $20..$2F; each has a $10-prefixed long form
	// except BRA/BSR which have dedicated long opcodes.
	branches := map[string]uint8{
		"BRA": 0x20, "BRN": 0x21, "BHI": 0x22, "BLS": 0x23,
		"BCC": 0x24, "BHS": 0x24, "BCS": 0x25, "BLO": 0x25,
		"BNE": 0x26, "BEQ": 0x27, "BVC": 0x28, "BVS": 0x29,
		"BPL": 0x2A, "BMI": 0x2B, "BGE": 0x2C, "BLT": 0x2D,
		"BGT": 0x2E, "BLE": 0x2F,
	}
	for name, op := range branches {
		def(name, Relative, 0, op)
		if name != "BRA" {
			def("L"+name, RelativeWord, 0x10, op)
		}
	}
	def("BSR", Relative, 0, 0x8D)
	def("LBRA", RelativeWord, 0, 0x16)
	def("LBSR", RelativeWord, 0, 0x17)

	return t
}

var regCodes6809 = map[string]uint8{
	"d": 0x0, "x": 0x1, "y": 0x2, "u": 0x3, "s": 0x4, "pc": 0x5,
	"a": 0x8, "b": 0x9, "cc": 0xA, "dp": 0xB,
}

var listMask6809 = map[string]uint8{
	"cc": 0x01, "a": 0x02, "b": 0x04, "dp": 0x08,
	"x": 0x10, "y": 0x20, "d": 0x06, "pc": 0x80,
}

var indexRegs6809 = map[string]uint8{"x": 0, "y": 1, "u": 2, "s": 3}

func encode6809(req Request) ([]byte, error) {
	mn := strings.ToUpper(req.Mnemonic)
	modes, ok := table6809[mn]
	if !ok {
		return nil, fmt.Errorf("unknown mnemonic: %s", req.Mnemonic)
	}
	operand := strings.TrimSpace(req.Operand)

	if e, ok := modes[RegisterPair]; ok {
		return encodeRegPair6809(e, mn, operand, req)
	}
	if e, ok := modes[RegisterList]; ok {
		return encodeRegList6809(e, mn, operand)
	}

	if operand == "" {
		e, ok := modes[Implied]
		if !ok {
			return nil, errIllegalMode(mn, Implied)
		}
		return encode.Build(e.prefix(), e.op), nil
	}

	if strings.HasPrefix(operand, "#") {
		text := operand[1:]
		if e, ok := modes[ImmediateWord]; ok {
			v, resolved, err := req.Eval(text)
			if err != nil {
				return nil, err
			}
			if resolved && !encode.InRange(v, -32768, 65535) {
				return nil, fmt.Errorf("immediate value %d out of range", v)
			}
			hi, lo := encode.BigEndian16(uint16(v))
			return encode.Build(e.prefix(), e.op, hi, lo), nil
		}
		e, ok := modes[Immediate]
		if !ok {
			return nil, errIllegalMode(mn, Immediate)
		}
		v, resolved, err := req.Eval(text)
		if err != nil {
			return nil, err
		}
		if resolved && !encode.InRange(v, -128, 255) {
			return nil, fmt.Errorf("immediate value %d out of range", v)
		}
		return encode.Build(e.prefix(), e.op, uint8(v)), nil
	}

	if e, ok := modes[Relative]; ok {
		return encodeRelative(e.op, e.prefix(), operand, req)
	}
	if e, ok := modes[RelativeWord]; ok {
		return encodeLongRelative6809(e, operand, req)
	}

	if strings.HasPrefix(operand, "[") || containsTopLevelComma(operand) {
		e, ok := modes[Indexed]
		if !ok {
			return nil, errIllegalMode(mn, Indexed)
		}
		return encodeIndexed6809(e, operand, req)
	}

	// Memory reference: direct page when the high byte matches DP,
	// extended otherwise. "<" and ">" force the choice.
	forceDirect := strings.HasPrefix(operand, "<")
	forceExtended := strings.HasPrefix(operand, ">")
	text := operand
	if forceDirect || forceExtended {
		text = strings.TrimSpace(operand[1:])
	}
	v, resolved, err := req.Eval(text)
	if err != nil {
		return nil, err
	}
	if resolved && !encode.FitsIn16Bits(v) {
		return nil, fmt.Errorf("address $%X out of range", v)
	}

	eDir, hasDir := modes[ZeroPage]
	eExt, hasExt := modes[Absolute]
	direct := false
	switch {
	case forceDirect:
		direct = true
	case forceExtended:
		direct = false
	case !hasExt:
		direct = true
	case !hasDir:
		direct = false
	case !resolved:
		// Pending address: assume extended, the worst case.
		direct = false
	default:
		direct = uint8(v>>8) == req.DP
		// A pass-1 extended layout must not shrink in pass 2.
		if direct && req.WidthHint > 0 && req.WidthHint == len(eExt.prefix())+3 {
			direct = false
		}
	}

	if direct {
		if !hasDir {
			return nil, errIllegalMode(mn, ZeroPage)
		}
		if resolved && !forceDirect && uint8(v>>8) != req.DP {
			return nil, fmt.Errorf("address $%04X not in direct page $%02X", uint16(v), req.DP)
		}
		return encode.Build(eDir.prefix(), eDir.op, encode.LowByte(uint16(v))), nil
	}
	if !hasExt {
		return nil, errIllegalMode(mn, Absolute)
	}
	hi, lo := encode.BigEndian16(uint16(v))
	return encode.Build(eExt.prefix(), eExt.op, hi, lo), nil
}

func encodeLongRelative6809(e op6809, operand string, req Request) ([]byte, error) {
	v, resolved, err := req.Eval(operand)
	if err != nil {
		return nil, err
	}
	length := int64(len(e.prefix())) + 3
	if !resolved {
		return encode.Build(e.prefix(), e.op, 0, 0), nil
	}
	offset := v - (int64(req.PC) + length)
	if !encode.InRange(offset, -32768, 32767) {
		return nil, fmt.Errorf("branch target out of range (offset %d)", offset)
	}
	hi, lo := encode.BigEndian16(uint16(offset))
	return encode.Build(e.prefix(), e.op, hi, lo), nil
}

func containsTopLevelComma(s string) bool {
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				return true
			}
		}
	}
	return false
}

// encodeIndexed6809 builds the postbyte forms: constant offsets from
// X/Y/U/S, accumulator offsets, auto increment/decrement, pc-relative
// and the indirect variants.
func encodeIndexed6809(e op6809, operand string, req Request) ([]byte, error) {
	indirect := false
	s := operand
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated indirect operand: %q", operand)
		}
		indirect = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	comma := strings.Index(s, ",")
	if comma < 0 {
		// [nn]: extended indirect.
		if !indirect {
			return nil, fmt.Errorf("malformed indexed operand: %q", operand)
		}
		v, resolved, err := req.Eval(s)
		if err != nil {
			return nil, err
		}
		if resolved && !encode.FitsIn16Bits(v) {
			return nil, fmt.Errorf("address $%X out of range", v)
		}
		hi, lo := encode.BigEndian16(uint16(v))
		return encode.Build(e.prefix(), e.op, 0x9F, hi, lo), nil
	}

	off := strings.TrimSpace(s[:comma])
	regText := strings.TrimSpace(s[comma+1:])
	lower := strings.ToLower(regText)

	ind := uint8(0)
	if indirect {
		ind = 0x10
	}

	// Auto increment/decrement.
	var sub uint8
	var auto bool
	switch {
	case strings.HasSuffix(lower, "++"):
		sub, auto, lower = 0x01, true, lower[:len(lower)-2]
	case strings.HasSuffix(lower, "+"):
		sub, auto, lower = 0x00, true, lower[:len(lower)-1]
	case strings.HasPrefix(lower, "--"):
		sub, auto, lower = 0x03, true, lower[2:]
	case strings.HasPrefix(lower, "-"):
		sub, auto, lower = 0x02, true, lower[1:]
	}
	if auto {
		if off != "" {
			return nil, fmt.Errorf("offset not allowed with auto increment/decrement: %q", operand)
		}
		rr, ok := indexRegs6809[lower]
		if !ok {
			return nil, fmt.Errorf("invalid index register: %q", regText)
		}
		if indirect && (sub == 0x00 || sub == 0x02) {
			return nil, fmt.Errorf("auto increment/decrement by one cannot be indirect")
		}
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|sub|ind), nil
	}

	if lower == "pc" || lower == "pcr" {
		return encodePCRelative6809(e, off, ind, req)
	}

	rr, ok := indexRegs6809[lower]
	if !ok {
		return nil, fmt.Errorf("invalid index register: %q", regText)
	}

	// Accumulator offsets.
	switch strings.ToLower(off) {
	case "":
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x04|ind), nil
	case "a":
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x06|ind), nil
	case "b":
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x05|ind), nil
	case "d":
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x0B|ind), nil
	}

	v, resolved, err := req.Eval(off)
	if err != nil {
		return nil, err
	}
	baseLen := len(e.prefix()) + 2 // opcode + postbyte
	want := 0
	if req.WidthHint > 0 {
		want = req.WidthHint - baseLen
	}

	// Smallest offset form that fits, never narrower than pass 1 used.
	if resolved && !indirect && encode.InRange(v, -16, 15) && want <= 0 {
		return encode.Build(e.prefix(), e.op, rr<<5|uint8(v)&0x1F), nil
	}
	if resolved && encode.FitsInSignedByte(v) && want <= 1 {
		return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x08|ind, uint8(int8(v))), nil
	}
	if resolved && !encode.InRange(v, -32768, 32767) {
		return nil, fmt.Errorf("index offset %d out of range", v)
	}
	hi, lo := encode.BigEndian16(uint16(v))
	return encode.Build(e.prefix(), e.op, 0x80|rr<<5|0x09|ind, hi, lo), nil
}

func encodePCRelative6809(e op6809, off string, ind uint8, req Request) ([]byte, error) {
	v, resolved, err := req.Eval(off)
	if err != nil {
		return nil, err
	}
	baseLen := int64(len(e.prefix())) + 2
	want := int64(0)
	if req.WidthHint > 0 {
		want = int64(req.WidthHint) - baseLen
	}
	if !resolved {
		// Worst case for a pending target: the 16-bit form.
		return encode.Build(e.prefix(), e.op, 0x8D|ind, 0, 0), nil
	}
	offset8 := v - (int64(req.PC) + baseLen + 1)
	if encode.FitsInSignedByte(offset8) && want <= 1 {
		return encode.Build(e.prefix(), e.op, 0x8C|ind, uint8(int8(offset8))), nil
	}
	offset16 := v - (int64(req.PC) + baseLen + 2)
	if !encode.InRange(offset16, -32768, 32767) {
		return nil, fmt.Errorf("pc-relative target out of range (offset %d)", offset16)
	}
	hi, lo := encode.BigEndian16(uint16(offset16))
	return encode.Build(e.prefix(), e.op, 0x8D|ind, hi, lo), nil
}

// encodeRegPair6809 builds the TFR/EXG postbyte: source register in
// the high nibble, destination in the low.
func encodeRegPair6809(e op6809, mn, operand string, req Request) ([]byte, error) {
	parts := strings.Split(operand, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("%s requires two registers", mn)
	}
	src, ok := regCodes6809[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return nil, fmt.Errorf("invalid register for %s: %q", mn, strings.TrimSpace(parts[0]))
	}
	dst, ok := regCodes6809[strings.ToLower(strings.TrimSpace(parts[1]))]
	if !ok {
		return nil, fmt.Errorf("invalid register for %s: %q", mn, strings.TrimSpace(parts[1]))
	}
	// 8-bit and 16-bit registers must not be mixed.
	if (src >= 8) != (dst >= 8) {
		return nil, fmt.Errorf("register size mismatch in %s %s", mn, operand)
	}
	return encode.Build(e.prefix(), e.op, src<<4|dst), nil
}

// encodeRegList6809 builds the PSHS/PULS/PSHU/PULU mask byte. The
// other stack pointer is at bit 6; naming the instruction's own stack
// pointer is an error.
func encodeRegList6809(e op6809, mn, operand string) ([]byte, error) {
	own := strings.ToLower(mn[len(mn)-1:]) // "s" or "u"
	other := "u"
	if own == "u" {
		other = "s"
	}
	var mask uint8
	for _, part := range strings.Split(operand, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		if name == other {
			mask |= 0x40
			continue
		}
		if name == own {
			return nil, fmt.Errorf("%s cannot stack its own stack pointer", mn)
		}
		bit, ok := listMask6809[name]
		if !ok {
			return nil, fmt.Errorf("invalid register in %s list: %q", mn, strings.TrimSpace(part))
		}
		mask |= bit
	}
	if mask == 0 {
		return nil, fmt.Errorf("%s requires a register list", mn)
	}
	return encode.Build(e.prefix(), e.op, mask), nil
}
