package assembler

import (
	"strings"
	"testing"

	"github.com/retroasm/xasm8/cpu"
)

func assemble(t *testing.T, opts Options, src string) *Program {
	t.Helper()
	p, err := New(opts).AssembleSource("test.asm", []byte(src))
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return p
}

func flatBytes(p *Program) []byte {
	var out []byte
	for _, c := range p.Chunks {
		out = append(out, c.Bytes...)
	}
	return out
}

func matchBytes(t *testing.T, p *Program, want ...byte) {
	t.Helper()
	got := flatBytes(p)
	if len(got) != len(want) {
		t.Fatalf("emitted % x, want % x", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("emitted % x, want % x", got, want)
		}
	}
}

var opts6502 = Options{Family: cpu.M6502, Dialect: Flex}

func TestForwardReference(t *testing.T) {
	p := assemble(t, opts6502, `
 ORG $1000
 JMP done
 LDA #$01
done RTS
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 0x4C, 0x05, 0x10, 0xA9, 0x01, 0x60)
	if p.Chunks[0].Addr != 0x1000 {
		t.Fatalf("first chunk at %04X, want 1000", p.Chunks[0].Addr)
	}
}

// A forward reference assembles absolute in pass 1; pass 2 must keep
// the width even when the resolved value fits zero page.
func TestForwardReferenceWidthPinned(t *testing.T) {
	p := assemble(t, opts6502, `
 ORG $0200
 LDA buf
buf EQU $10
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 0xAD, 0x10, 0x00)
}

func TestBackwardReferenceUsesZeroPage(t *testing.T) {
	p := assemble(t, opts6502, `
buf EQU $10
 ORG $0200
 LDA buf
`)
	matchBytes(t, p, 0xA5, 0x10)
}

func TestConditionalNesting(t *testing.T) {
	p := assemble(t, opts6502, `
FLAG EQU 0
 IFC FLAG
 LDA #$01
 IFC 1
 LDA #$02
 ELSE
 LDA #$03
 ENDC
 ENDC
 LDA #$04
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 0xA9, 0x04)
}

func TestConditionalElse(t *testing.T) {
	p := assemble(t, opts6502, `
 IFC 1
 FCB 1
 ELSE
 FCB 2
 ENDC
 IFC 0
 FCB 3
 ELSE
 FCB 4
 ENDC
`)
	matchBytes(t, p, 1, 4)
}

func TestConditionalErrors(t *testing.T) {
	if _, err := New(opts6502).AssembleSource("t", []byte(" IFC 1\n FCB 1\n")); err == nil {
		t.Fatal("unterminated conditional accepted")
	}
	if _, err := New(opts6502).AssembleSource("t", []byte(" ENDC\n")); err == nil {
		t.Fatal("stray terminator accepted")
	}
	if _, err := New(opts6502).AssembleSource("t", []byte(" IFC 1\n ELSE\n ELSE\n ENDC\n")); err == nil {
		t.Fatal("double ELSE accepted")
	}
	// Branch decisions must be pass-stable, so the condition has to
	// resolve at first encounter.
	if _, err := New(opts6502).AssembleSource("t", []byte(" IFC later\n ENDC\nlater EQU 1\n")); err == nil {
		t.Fatal("unresolved condition accepted")
	}
}

func TestRepeat(t *testing.T) {
	p := assemble(t, opts6502, `
 RPT 3
 FCB 1
 ENDR
`)
	matchBytes(t, p, 1, 1, 1)
}

func TestRepeatReevaluatesWithCurrentValues(t *testing.T) {
	p := assemble(t, opts6502, `
N SET 0
 RPT 3
N SET N+1
 ENDR
 FCB N
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 3)
}

func TestRepeatOverflow(t *testing.T) {
	if _, err := New(opts6502).AssembleSource("t", []byte(" RPT 70000\n NOP\n ENDR\n")); err == nil {
		t.Fatal("iteration limit not enforced")
	}
}

func TestInclude(t *testing.T) {
	a := New(opts6502)
	a.loader = func(name string) ([]Statement, error) {
		return Split(name, []byte(" FCB 7\n")), nil
	}
	p, err := a.Assemble(Split("main", []byte(" INCLUDE sub\n FCB 8\n")))
	if err != nil {
		t.Fatal(err)
	}
	matchBytes(t, p, 7, 8)
}

func TestIncludeDepthLimit(t *testing.T) {
	a := New(opts6502)
	a.loader = func(name string) ([]Statement, error) {
		return Split(name, []byte(" INCLUDE again\n")), nil
	}
	_, err := a.Assemble(Split("main", []byte(" INCLUDE start\n")))
	if err == nil || !strings.Contains(err.Error(), "include depth") {
		t.Fatalf("expected include depth error, got %v", err)
	}
}

func TestDataDirectives(t *testing.T) {
	p := assemble(t, opts6502, `
 ORG $0100
 FCB 1,2,$FF
 FDB $1234
 FCC /HI/
 RMB 2
 FCB 9
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	// FDB is little-endian for the 6502 family.
	matchBytes(t, p, 1, 2, 0xFF, 0x34, 0x12, 'H', 'I', 9)
	last := p.Chunks[len(p.Chunks)-1]
	if last.Addr != 0x0109 {
		t.Fatalf("chunk after RMB at %04X, want 0109", last.Addr)
	}
}

func TestWordsBigEndianOn6809(t *testing.T) {
	p := assemble(t, Options{Family: cpu.M6809, Dialect: Flex}, " FDB $1234\n")
	matchBytes(t, p, 0x12, 0x34)
}

func TestSetDP(t *testing.T) {
	p := assemble(t, Options{Family: cpu.M6809, Dialect: Flex}, `
 ORG $1000
 SETDP $12
 LDA $1234
 LDA $5678
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 0x96, 0x34, 0xB6, 0x56, 0x78)
}

func TestSCMASMDialect(t *testing.T) {
	p := assemble(t, Options{Family: cpu.M6502, Dialect: SCMASM}, `
 .OR $300
LBL .EQ $10
 .DA $1234
 .HS A9FF
 .AS /AB/
 .AT /AB/
 .AZ /AB/
 .BS 2
 .DO 0
 .HS 00
 .ELSE
 .HS 11
 .FIN
 .EP $300
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p,
		0x34, 0x12, // .DA
		0xA9, 0xFF, // .HS
		0xC1, 0xC2, // .AS sets the high bit
		0xC1, 0x42, // .AT flips it back on the last char
		'A', 'B', 0, // .AZ
		0x11, // .ELSE branch
	)
	if !p.HasEntry || p.Entry != 0x300 {
		t.Fatalf("entry = %04X/%v", p.Entry, p.HasEntry)
	}
	if v, ok := p.Symbols.Peek("LBL"); !ok || v != 0x10 {
		t.Fatalf("LBL = %X,%v", v, ok)
	}
}

func TestEndStopsAssembly(t *testing.T) {
	p := assemble(t, opts6502, `
 FCB 1
 END
 FCB 2
`)
	matchBytes(t, p, 1)
}

func TestBranchBoundary(t *testing.T) {
	// Distance +127 from the following address is the last short form.
	p := assemble(t, opts6502, " ORG 0\n BNE $81\n")
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 0xD0, 0x7F)

	p = assemble(t, opts6502, " ORG 0\n BNE $82\n")
	if p.ErrorCount() == 0 {
		t.Fatal("out-of-range branch accepted")
	}
	if len(flatBytes(p)) != 0 {
		t.Fatal("bytes emitted for a failed line")
	}
}

// An address map that shifts between passes must abort as a phase
// error: here the reserve size only resolves in pass 2, moving the
// target out of zero page after pass 1 chose the short form.
func TestPhaseError(t *testing.T) {
	_, err := New(opts6502).AssembleSource("t", []byte(`
 ORG 0
 RMB sz
tgt FCB 0
 LDA tgt
sz EQU $100
`))
	if err == nil || !strings.Contains(err.Error(), "phase error") {
		t.Fatalf("expected phase error, got %v", err)
	}
}

// A reserve whose size only resolves in pass 2 shifts every later
// label without changing any instruction length; the moved label must
// abort the run instead of letting data directives emit the stale
// pass-1 address.
func TestDataPhaseError(t *testing.T) {
	p, err := New(opts6502).AssembleSource("t", []byte(`
 ORG 0
 RMB sz
 FDB tgt
tgt FCB 7
sz EQU 2
`))
	if err == nil || !strings.Contains(err.Error(), "phase error") {
		t.Fatalf("expected phase error, got %v (diags %v)", err, p.Diagnostics)
	}
}

// Block-opening directives may carry a label marking the line's
// address.
func TestLabelOnBlockDirective(t *testing.T) {
	p := assemble(t, opts6502, `
 ORG $0200
here IFC 1
 FCB 1
 ENDC
blk RPT 2
 FCB 2
 ENDR
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	if v, ok := p.Symbols.Peek("here"); !ok || v != 0x0200 {
		t.Fatalf("here = %X,%v", v, ok)
	}
	if v, ok := p.Symbols.Peek("blk"); !ok || v != 0x0201 {
		t.Fatalf("blk = %X,%v", v, ok)
	}
	matchBytes(t, p, 1, 2, 2)
}

func TestUnknownMnemonicRecoverable(t *testing.T) {
	p := assemble(t, opts6502, " BOGUS #$10\n FCB 5\n")
	if p.ErrorCount() != 1 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 5)
}

func TestUnresolvedSymbolReported(t *testing.T) {
	p := assemble(t, opts6502, " LDA never\n")
	if p.ErrorCount() == 0 {
		t.Fatal("unresolved symbol not reported")
	}
	if len(flatBytes(p)) != 0 {
		t.Fatal("bytes emitted for unresolved operand")
	}
}

func TestVariablesReassignable(t *testing.T) {
	p := assemble(t, opts6502, `
V SET 1
 FCB V
V SET 2
 FCB V
`)
	if p.ErrorCount() != 0 {
		t.Fatalf("diagnostics: %v", p.Diagnostics)
	}
	matchBytes(t, p, 1, 2)
}
