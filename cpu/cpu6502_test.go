package cpu

import (
	"fmt"
	"strings"
	"testing"

	"github.com/retroasm/xasm8/expr"
)

type symEnv struct {
	syms map[string]int64
	here int64
}

func (e symEnv) Lookup(name string) (int64, bool) {
	v, ok := e.syms[name]
	return v, ok
}

func (e symEnv) Here() int64 { return e.here }

// evalWith builds an EvalFunc over a fixed symbol map. Unknown names
// report as pending, matching pass-1 forward references.
func evalWith(syms map[string]int64, pc uint16) EvalFunc {
	return func(text string) (int64, bool, error) {
		n, err := expr.Parse(text)
		if err != nil {
			return 0, false, err
		}
		v, err := n.Eval(symEnv{syms: syms, here: int64(pc)})
		if err != nil {
			return 0, false, err
		}
		return v.Val, v.Resolved, nil
	}
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, v := range b {
		parts[i] = fmt.Sprintf("%02x", v)
	}
	return strings.Join(parts, " ")
}

// assembleAndMatchHex encodes one "MNEMONIC operand" line and checks
// the emitted bytes.
func assembleAndMatchHex(t *testing.T, f Family, pc uint16, syms map[string]int64, line, want string) {
	t.Helper()
	mn, operand, _ := strings.Cut(line, " ")
	req := Request{
		Mnemonic: strings.ToUpper(mn),
		Operand:  strings.TrimSpace(operand),
		PC:       pc,
		Eval:     evalWith(syms, pc),
	}
	b, err := Encode(f, req)
	if err != nil {
		t.Fatalf("%s: %v", line, err)
	}
	if got := hexBytes(b); got != want {
		t.Fatalf("%s: got %s, want %s", line, got, want)
	}
}

func assembleExpectError(t *testing.T, f Family, pc uint16, syms map[string]int64, line string) {
	t.Helper()
	mn, operand, _ := strings.Cut(line, " ")
	req := Request{
		Mnemonic: strings.ToUpper(mn),
		Operand:  strings.TrimSpace(operand),
		PC:       pc,
		Eval:     evalWith(syms, pc),
	}
	if b, err := Encode(f, req); err == nil {
		t.Fatalf("%s: expected error, got % x", line, b)
	}
}

// Every table entry must emit opcode plus the mode's operand width.
func TestTable6502Lengths(t *testing.T) {
	operands := map[Mode]string{
		Implied:     "",
		Accumulator: "A",
		Immediate:   "#$12",
		ZeroPage:    "$12",
		ZeroPageX:   "$12,X",
		ZeroPageY:   "$12,Y",
		Absolute:    "$1234",
		AbsoluteX:   "$1234,X",
		AbsoluteY:   "$1234,Y",
		Indirect:    "($1234)",
		IndirectX:   "($12,X)",
		IndirectY:   "($12),Y",
		Relative:    "$1005",
	}
	for _, row := range rows6502 {
		for _, op := range row.ops {
			req := Request{
				Mnemonic: row.name,
				Operand:  operands[op.mode],
				PC:       0x1000,
				Eval:     evalWith(nil, 0x1000),
			}
			b, err := Encode(M6502, req)
			if err != nil {
				t.Fatalf("%s %s: %v", row.name, operands[op.mode], err)
			}
			if b[0] != op.opcode {
				t.Fatalf("%s %s: opcode %02X, want %02X", row.name, operands[op.mode], b[0], op.opcode)
			}
			if want := 1 + op.mode.OperandBytes(); len(b) != want {
				t.Fatalf("%s %s: length %d, want %d", row.name, operands[op.mode], len(b), want)
			}
		}
	}
}

func TestEncode6502(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{"LDA #$10", "a9 10"},
		{"LDA #'A", "a9 41"},
		{"LDA $10", "a5 10"},
		{"LDA $0200", "ad 00 02"},
		{"STA $0200,X", "9d 00 02"},
		{"LDA ($10,X)", "a1 10"},
		{"LDA ($10),Y", "b1 10"},
		{"JMP ($FFFC)", "6c fc ff"},
		{"LSR A", "4a"},
		{"LSR", "4a"},
		{"INX", "e8"},
		{"STX $10,Y", "96 10"},
		{"CPX #$FF", "e0 ff"},
	}
	for _, c := range cases {
		assembleAndMatchHex(t, M6502, 0x1000, nil, c.line, c.want)
	}
}

func TestEncode6502Branches(t *testing.T) {
	syms := map[string]int64{"fwd": 0x1010, "back": 0x0FF0}
	assembleAndMatchHex(t, M6502, 0x1000, syms, "BNE fwd", "d0 0e")
	assembleAndMatchHex(t, M6502, 0x1000, syms, "BEQ back", "f0 ee")

	// Pending target in pass 1: fixed length, placeholder offset.
	assembleAndMatchHex(t, M6502, 0x1000, nil, "BCC later", "90 00")

	// Signed 8-bit boundaries from the following address.
	edges := map[string]int64{"top": 0x1002 + 127, "bottom": 0x1002 - 128}
	assembleAndMatchHex(t, M6502, 0x1000, edges, "BNE top", "d0 7f")
	assembleAndMatchHex(t, M6502, 0x1000, edges, "BNE bottom", "d0 80")
	assembleExpectError(t, M6502, 0x1000, map[string]int64{"far": 0x1002 + 128}, "BNE far")
	assembleExpectError(t, M6502, 0x1000, map[string]int64{"far": 0x1002 - 129}, "BNE far")
}

// A forward reference assembles as absolute in pass 1; once the wide
// layout is recorded, pass 2 must keep it even for a zero-page value.
func TestEncode6502WidthPolicy(t *testing.T) {
	// Pass 1: symbol pending.
	assembleAndMatchHex(t, M6502, 0x1000, nil, "LDA buf", "ad 00 00")

	// Pass 2: value fits zero page, but the hint pins absolute.
	req := Request{
		Mnemonic:  "LDA",
		Operand:   "buf",
		PC:        0x1000,
		WidthHint: 3,
		Eval:      evalWith(map[string]int64{"buf": 0x10}, 0x1000),
	}
	b, err := Encode(M6502, req)
	if err != nil {
		t.Fatal(err)
	}
	if got := hexBytes(b); got != "ad 10 00" {
		t.Fatalf("hinted encode = %s, want ad 10 00", got)
	}

	// Without a hint a known small address narrows to zero page.
	assembleAndMatchHex(t, M6502, 0x1000, map[string]int64{"buf": 0x10}, "LDA buf", "a5 10")
}

func TestEncode6502Errors(t *testing.T) {
	assembleExpectError(t, M6502, 0, nil, "STA #$10")   // no immediate store
	assembleExpectError(t, M6502, 0, nil, "LDA")        // operand required
	assembleExpectError(t, M6502, 0, nil, "INX #$10")   // implied only
	assembleExpectError(t, M6502, 0, nil, "STY $1234,X") // no absolute,X form
	assembleExpectError(t, M6502, 0, nil, "LDA #$1234") // immediate too wide
}
