package assembler

import "testing"

func TestSplit(t *testing.T) {
	src := []byte(`* full line comment
; another comment
start LDA #$10 ; trailing comment
 STA $0200
label:
 FCC /AB/
 NOP
`)
	stmts := Split("t.asm", src)
	if len(stmts) != 5 {
		t.Fatalf("got %d statements: %+v", len(stmts), stmts)
	}

	if stmts[0].Label != "start" || stmts[0].Name != "LDA" || stmts[0].Operand != "#$10" {
		t.Fatalf("statement 0: %+v", stmts[0])
	}
	if stmts[0].Loc.Line != 3 {
		t.Fatalf("statement 0 line = %d", stmts[0].Loc.Line)
	}
	if stmts[1].Label != "" || stmts[1].Name != "STA" {
		t.Fatalf("statement 1: %+v", stmts[1])
	}
	// Bare label, colon stripped.
	if stmts[2].Label != "label" || stmts[2].Name != "" {
		t.Fatalf("statement 2: %+v", stmts[2])
	}
	if stmts[3].Name != "FCC" {
		t.Fatalf("statement 3: %+v", stmts[3])
	}
	if stmts[4].Name != "NOP" || stmts[4].Operand != "" {
		t.Fatalf("statement 4: %+v", stmts[4])
	}
}

func TestSplitCharConstantComment(t *testing.T) {
	stmts := Split("t", []byte(" LDA #'A ; comment\n"))
	if len(stmts) != 1 || stmts[0].Operand != "#'A" {
		t.Fatalf("got %+v", stmts)
	}
}

// A ";" inside a delimited string is data; the comment starts only
// after the closing delimiter.
func TestSplitStringDirectiveComment(t *testing.T) {
	cases := []struct {
		line string
		want string
	}{
		{" FCC /A;B/ ; note", "/A;B/"},
		{" FCC /A;B/", "/A;B/"},
		{" .AS -/X;Y/ ; note", "-/X;Y/"},
		{" .AZ /Z;/", "/Z;/"},
		{" FCC /unterminated", "/unterminated"},
	}
	for _, c := range cases {
		stmts := Split("t", []byte(c.line + "\n"))
		if len(stmts) != 1 || stmts[0].Operand != c.want {
			t.Fatalf("%q: got %+v, want operand %q", c.line, stmts, c.want)
		}
	}
}
