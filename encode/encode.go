// Package encode holds the byte-level helpers shared by every CPU
// family encoder: endianness splitting, byte and nibble extraction,
// range validation and assembly of opcode byte sequences.
//
// All functions are pure; out-of-range inputs are reported to the
// caller, never clamped.
package encode

// LowByte returns bits 0-7 of a 16-bit value.
func LowByte(v uint16) uint8 {
	return uint8(v & 0xFF)
}

// HighByte returns bits 8-15 of a 16-bit value.
func HighByte(v uint16) uint8 {
	return uint8(v >> 8)
}

// LowNibble returns bits 0-3 of a byte.
func LowNibble(v uint8) uint8 {
	return v & 0x0F
}

// HighNibble returns bits 4-7 of a byte, shifted down.
func HighNibble(v uint8) uint8 {
	return v >> 4
}

// LittleEndian16 splits a 16-bit value into (low, high) byte order,
// as used by 6502 and Z80 operands.
func LittleEndian16(v uint16) (lo, hi uint8) {
	return LowByte(v), HighByte(v)
}

// BigEndian16 splits a 16-bit value into (high, low) byte order, as
// used by 6809 extended addresses and 16-bit immediates.
func BigEndian16(v uint16) (hi, lo uint8) {
	return HighByte(v), LowByte(v)
}

// FitsIn8Bits reports whether v fits in an unsigned byte.
func FitsIn8Bits(v int64) bool {
	return v >= 0 && v <= 0xFF
}

// FitsIn16Bits reports whether v fits in an unsigned 16-bit word.
func FitsIn16Bits(v int64) bool {
	return v >= 0 && v <= 0xFFFF
}

// FitsInSignedByte reports whether v fits in a signed byte. Relative
// branch offsets use this.
func FitsInSignedByte(v int64) bool {
	return v >= -128 && v <= 127
}

// InRange reports whether min <= v <= max.
func InRange(v, min, max int64) bool {
	return v >= min && v <= max
}

// Build concatenates an instruction's bytes in canonical order:
// prefix byte(s), opcode, operand bytes.
func Build(prefix []byte, opcode uint8, operand ...uint8) []byte {
	out := make([]byte, 0, len(prefix)+1+len(operand))
	out = append(out, prefix...)
	out = append(out, opcode)
	out = append(out, operand...)
	return out
}
