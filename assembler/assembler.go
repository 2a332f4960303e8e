// Package assembler drives two-pass assembly: pass 1 lays out
// addresses, tolerating forward references with worst-case operand
// widths; pass 2 re-evaluates every expression against the populated
// symbol table and emits final bytes. An instruction whose length
// differs between the passes is a phase error and aborts the run.
package assembler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/retroasm/xasm8/cpu"
	"github.com/retroasm/xasm8/encode"
	"github.com/retroasm/xasm8/expr"
	"github.com/retroasm/xasm8/symtab"
)

const (
	maxIncludeDepth = 16
	maxIterations   = 65535
)

// Options configures one assembly run.
type Options struct {
	Family      cpu.Family
	Dialect     Dialect
	Origin      uint16
	IncludeDirs []string
}

// Chunk is a run of emitted bytes starting at a storage address.
type Chunk struct {
	Addr  uint16
	Bytes []byte
	Loc   Location
}

// Program is the result of a run: emitted chunks, the final symbol
// table and the accumulated diagnostics. A program with a non-zero
// error count completed both passes but must be treated as a failed
// build.
type Program struct {
	Chunks      []Chunk
	Symbols     *symtab.Table
	Diagnostics []Diagnostic
	Entry       uint16
	HasEntry    bool
	Title       string
	OutputFile  string
	Listing     bool
}

// ErrorCount counts diagnostics at Error severity or above.
func (p *Program) ErrorCount() int {
	n := 0
	for _, d := range p.Diagnostics {
		if d.Severity >= Error {
			n++
		}
	}
	return n
}

// Assembler holds the state of one run. It is not safe for concurrent
// use; batch assembly gives each file its own Assembler.
type Assembler struct {
	opts       Options
	directives map[string]directive
	loader     func(name string) ([]Statement, error)

	syms  *symtab.Table
	diags []Diagnostic

	// Per-pass state.
	pass        int
	pc          uint16
	storeOffset uint16
	dp          uint8
	cond        condStack
	ended       bool
	iterations  int
	listing     bool

	// lengths records every pass-1 instruction length in emission
	// order; pass 2 consumes it as the width hint and the phase check.
	lengths   []int
	emitIndex int

	// sawPending is set by symbol lookups that hit a still-undefined
	// name, so pass 2 can suppress and flag the affected line.
	sawPending bool

	chunks     []Chunk
	entry      uint16
	hasEntry   bool
	title      string
	outputFile string
}

// New builds an assembler for the configured family and dialect.
func New(opts Options) *Assembler {
	a := &Assembler{opts: opts}
	switch opts.Dialect {
	case SCMASM:
		a.directives = scmasmDirectives()
	default:
		a.directives = flexDirectives()
	}
	a.loader = a.loadInclude
	return a
}

// AssembleFile reads, splits and assembles one source file.
func (a *Assembler) AssembleFile(path string) (*Program, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return a.AssembleSource(filepath.Base(path), src)
}

// AssembleSource splits raw text into statements and assembles them.
func (a *Assembler) AssembleSource(name string, src []byte) (*Program, error) {
	return a.Assemble(Split(name, src))
}

// Assemble runs both passes over the statement slice. The returned
// error is non-nil only for fatal conditions (phase error, unbalanced
// conditionals, include or loop overflow); recoverable errors are in
// the program's diagnostics.
func (a *Assembler) Assemble(stmts []Statement) (*Program, error) {
	a.syms = symtab.New()
	a.diags = nil
	a.lengths = a.lengths[:0]

	for pass := 1; pass <= 2; pass++ {
		a.pass = pass
		a.pc = a.opts.Origin
		a.storeOffset = 0
		a.dp = 0
		a.cond.Reset()
		a.ended = false
		a.iterations = 0
		a.emitIndex = 0
		a.chunks = nil

		if err := a.exec(stmts, 0); err != nil {
			a.diags = append(a.diags, Diagnostic{Severity: Fatal, Message: err.Error()})
			return a.program(), err
		}
		if a.cond.Depth() != 0 {
			err := fmt.Errorf("%s: conditional block not terminated at end of input", a.cond.Open())
			a.diags = append(a.diags, Diagnostic{Severity: Fatal, Message: err.Error()})
			return a.program(), err
		}
	}

	for _, name := range a.syms.Undefined() {
		a.diags = append(a.diags, Diagnostic{Severity: Error, Message: "unresolved symbol: " + name})
	}
	return a.program(), nil
}

func (a *Assembler) program() *Program {
	return &Program{
		Chunks:      a.chunks,
		Symbols:     a.syms,
		Diagnostics: a.diags,
		Entry:       a.entry,
		HasEntry:    a.hasEntry,
		Title:       a.title,
		OutputFile:  a.outputFile,
		Listing:     a.listing,
	}
}

// exec processes one statement slice. It recurses for include files
// and repeat-block bodies.
func (a *Assembler) exec(stmts []Statement, depth int) error {
	for i := 0; i < len(stmts) && !a.ended; i++ {
		st := stmts[i]
		name := strings.ToUpper(st.Name)
		d, isDirective := a.directives[name]

		if isDirective {
			// Block-opening and include directives may carry a label
			// marking the line's address.
			switch d.kind {
			case dirIf, dirRepeat, dirInclude:
				if st.Label != "" && a.cond.ShouldEmit() {
					if err := a.defineLabel(st); err != nil {
						return err
					}
				}
			}

			switch d.kind {
			case dirIf:
				// The branch decision must be pass-stable, so the
				// condition has to resolve at first encounter. Inside
				// an inactive block the condition is not evaluated:
				// only the nesting is tracked.
				cond := false
				if a.cond.ShouldEmit() {
					v, resolved, err := a.eval(st.Operand)
					if err != nil {
						return fmt.Errorf("%s: conditional: %w", st.Loc, err)
					}
					if !resolved {
						return fmt.Errorf("%s: conditional depends on an unresolved symbol", st.Loc)
					}
					cond = v != 0
				}
				a.cond.BeginIf(cond, st.Loc)
				continue

			case dirElse:
				if err := a.cond.Else(st.Loc); err != nil {
					return err
				}
				continue

			case dirEndIf:
				if err := a.cond.EndIf(st.Loc); err != nil {
					return err
				}
				continue

			case dirRepeat:
				end, err := findBlockEnd(stmts, i, a.directives)
				if err != nil {
					return err
				}
				if a.cond.ShouldEmit() {
					if err := a.runRepeat(st, stmts[i+1:end], depth); err != nil {
						return err
					}
				}
				i = end
				continue

			case dirEndRepeat:
				return fmt.Errorf("%s: %s without matching repeat", st.Loc, name)
			}

			if !a.cond.ShouldEmit() {
				continue
			}

			switch d.kind {
			case dirEquate, dirSet:
				if err := a.defineEquate(st, d.kind == dirSet); err != nil {
					return err
				}
				continue
			case dirInclude:
				if err := a.include(st, depth); err != nil {
					return err
				}
				continue
			}

			if st.Label != "" {
				if err := a.defineLabel(st); err != nil {
					return err
				}
			}
			if err := d.handle(a, st); err != nil {
				a.errorf(st.Loc, "%v", err)
			}
			continue
		}

		if !a.cond.ShouldEmit() {
			continue
		}
		if st.Label != "" {
			if err := a.defineLabel(st); err != nil {
				return err
			}
		}
		if st.Name == "" {
			continue
		}
		if !cpu.IsMnemonic(a.opts.Family, name) {
			a.errorf(st.Loc, "unknown mnemonic or directive: %s", st.Name)
			continue
		}
		if err := a.instruction(st, name); err != nil {
			return err
		}
	}
	return nil
}

// runRepeat executes one repeat block. The count is re-evaluated with
// current-pass symbol values and must be resolved.
func (a *Assembler) runRepeat(st Statement, body []Statement, depth int) error {
	count, resolved, err := a.eval(st.Operand)
	if err != nil {
		return fmt.Errorf("%s: repeat count: %w", st.Loc, err)
	}
	if !resolved {
		return fmt.Errorf("%s: repeat count depends on an unresolved symbol", st.Loc)
	}
	if count < 0 {
		return fmt.Errorf("%s: negative repeat count %d", st.Loc, count)
	}
	for n := int64(0); n < count && !a.ended; n++ {
		a.iterations++
		if a.iterations > maxIterations {
			return fmt.Errorf("%s: loop iteration limit (%d) exceeded", st.Loc, maxIterations)
		}
		if err := a.exec(body, depth); err != nil {
			return err
		}
	}
	return nil
}

// findBlockEnd locates the terminator matching the repeat directive at
// start, honoring nesting.
func findBlockEnd(stmts []Statement, start int, dirs map[string]directive) (int, error) {
	depth := 0
	for j := start + 1; j < len(stmts); j++ {
		d, ok := dirs[strings.ToUpper(stmts[j].Name)]
		if !ok {
			continue
		}
		switch d.kind {
		case dirRepeat:
			depth++
		case dirEndRepeat:
			if depth == 0 {
				return j, nil
			}
			depth--
		}
	}
	return 0, fmt.Errorf("%s: repeat block not terminated", stmts[start].Loc)
}

// instruction encodes one machine instruction. Encoding errors are
// recoverable; a length that changed between passes is a phase error
// and fatal.
func (a *Assembler) instruction(st Statement, name string) error {
	req := cpu.Request{
		Mnemonic: name,
		Operand:  st.Operand,
		PC:       a.pc,
		DP:       a.dp,
		Eval:     a.eval,
	}
	if a.pass == 2 {
		if a.emitIndex >= len(a.lengths) {
			return fmt.Errorf("%s: phase error: instruction stream differs between passes", st.Loc)
		}
		req.WidthHint = a.lengths[a.emitIndex]
	}

	a.sawPending = false
	b, err := cpu.Encode(a.opts.Family, req)
	if err != nil {
		a.errorf(st.Loc, "%v", err)
		b = nil
	}

	if a.pass == 1 {
		a.lengths = append(a.lengths, len(b))
		a.emitIndex++
		a.pc += uint16(len(b))
		return nil
	}

	want := a.lengths[a.emitIndex]
	a.emitIndex++
	if err != nil {
		// No bytes for the failed line, but the address map must stay
		// aligned with pass 1.
		a.pc += uint16(want)
		return nil
	}
	if len(b) != want {
		return fmt.Errorf("%s: phase error: %s assembled to %d bytes in pass 1 but %d in pass 2",
			st.Loc, name, want, len(b))
	}
	if a.sawPending {
		a.errorf(st.Loc, "operand references an unresolved symbol")
		a.pc += uint16(want)
		return nil
	}
	a.emitData(st, b)
	return nil
}

// emitData appends bytes at the current storage address and advances
// the program counter. Pass 1 only advances.
func (a *Assembler) emitData(st Statement, b []byte) {
	if a.pass == 2 && len(b) > 0 {
		a.chunks = append(a.chunks, Chunk{Addr: a.pc + a.storeOffset, Bytes: b, Loc: st.Loc})
	}
	a.pc += uint16(len(b))
}

// defineLabel binds a label to the current address. A label that
// moved between passes is fatal: the pass-1 layout is already stale.
func (a *Assembler) defineLabel(st Statement) error {
	err := a.syms.Define(st.Label, int64(a.pc), symtab.Label, a.pass)
	if errors.Is(err, symtab.ErrPhase) {
		return fmt.Errorf("%s: %v", st.Loc, err)
	}
	if err != nil {
		a.errorf(st.Loc, "%v", err)
	}
	return nil
}

func (a *Assembler) defineEquate(st Statement, variable bool) error {
	if st.Label == "" {
		a.errorf(st.Loc, "%s requires a label", st.Name)
		return nil
	}
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		a.errorf(st.Loc, "%v", err)
		return nil
	}
	if !resolved {
		// Still pending; the pass-2 evaluation will define it once the
		// referenced symbol has a value.
		return nil
	}
	kind := symtab.Equate
	if variable {
		kind = symtab.Variable
	}
	err = a.syms.Define(st.Label, v, kind, a.pass)
	if errors.Is(err, symtab.ErrPhase) {
		return fmt.Errorf("%s: %v", st.Loc, err)
	}
	if err != nil {
		a.errorf(st.Loc, "%v", err)
	}
	return nil
}

func (a *Assembler) include(st Statement, depth int) error {
	if depth+1 > maxIncludeDepth {
		return fmt.Errorf("%s: include depth exceeds %d", st.Loc, maxIncludeDepth)
	}
	name := strings.Trim(strings.TrimSpace(st.Operand), `"'`)
	sub, err := a.loader(name)
	if err != nil {
		a.errorf(st.Loc, "include: %v", err)
		return nil
	}
	return a.exec(sub, depth+1)
}

func (a *Assembler) loadInclude(name string) ([]Statement, error) {
	dirs := append([]string{}, a.opts.IncludeDirs...)
	dirs = append(dirs, ".")
	for _, dir := range dirs {
		src, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return Split(name, src), nil
		}
	}
	return nil, fmt.Errorf("cannot open %s", name)
}

// symEnv adapts the assembler to the expression evaluator's
// environment interface.
type symEnv struct{ a *Assembler }

func (e symEnv) Lookup(name string) (int64, bool) {
	v, ok := e.a.syms.Lookup(name)
	if !ok {
		e.a.sawPending = true
	}
	return v, ok
}
func (e symEnv) Here() int64 { return int64(e.a.pc) }

func (a *Assembler) eval(text string) (int64, bool, error) {
	n, err := expr.Parse(text)
	if err != nil {
		return 0, false, err
	}
	v, err := n.Eval(symEnv{a})
	if err != nil {
		return 0, false, err
	}
	return v.Val, v.Resolved, nil
}

// errorf records a recoverable diagnostic. Only pass 2 reports, so
// errors seen by both passes appear once.
func (a *Assembler) errorf(loc Location, format string, args ...any) {
	if a.pass != 2 {
		return
	}
	a.diags = append(a.diags, Diagnostic{Loc: loc, Severity: Error, Message: fmt.Sprintf(format, args...)})
}

// Directive handlers. Each receives the context explicitly and
// returns a recoverable error or nil.

func (a *Assembler) doOrigin(st Statement) error {
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		return err
	}
	if !resolved {
		return fmt.Errorf("origin must not be a forward reference")
	}
	if !encode.FitsIn16Bits(v) {
		return fmt.Errorf("origin $%X out of range", v)
	}
	a.pc = uint16(v)
	a.storeOffset = 0
	return nil
}

// doTarget (.TA) sets the storage address: following bytes are placed
// there while the program counter keeps its run-time value.
func (a *Assembler) doTarget(st Statement) error {
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		return err
	}
	if !resolved {
		return fmt.Errorf("target address must not be a forward reference")
	}
	if !encode.FitsIn16Bits(v) {
		return fmt.Errorf("target address $%X out of range", v)
	}
	a.storeOffset = uint16(v) - a.pc
	return nil
}

func (a *Assembler) doEnd(st Statement) error {
	a.ended = true
	if strings.TrimSpace(st.Operand) == "" {
		return nil
	}
	return a.doEntry(st)
}

func (a *Assembler) doEntry(st Statement) error {
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		return err
	}
	if resolved {
		a.entry = uint16(v)
		a.hasEntry = true
	}
	return nil
}

func (a *Assembler) doSetDP(st Statement) error {
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		return err
	}
	if !resolved {
		return fmt.Errorf("direct page must not be a forward reference")
	}
	if !encode.FitsIn8Bits(v) {
		return fmt.Errorf("direct page $%X out of range", v)
	}
	a.dp = uint8(v)
	return nil
}

func (a *Assembler) doBytes(st Statement) error {
	var out []byte
	pending := false
	for _, item := range splitList(st.Operand) {
		v, resolved, err := a.eval(item)
		if err != nil {
			return err
		}
		if !resolved {
			pending = true
		}
		if resolved && !encode.InRange(v, -128, 255) {
			return fmt.Errorf("byte value %d out of range", v)
		}
		out = append(out, uint8(v))
	}
	a.emitResolved(st, out, pending)
	return nil
}

func (a *Assembler) doWords(st Statement) error {
	var out []byte
	pending := false
	for _, item := range splitList(st.Operand) {
		v, resolved, err := a.eval(item)
		if err != nil {
			return err
		}
		if !resolved {
			pending = true
		}
		if resolved && !encode.InRange(v, -32768, 65535) {
			return fmt.Errorf("word value %d out of range", v)
		}
		if a.opts.Family == cpu.M6809 {
			hi, lo := encode.BigEndian16(uint16(v))
			out = append(out, hi, lo)
		} else {
			lo, hi := encode.LittleEndian16(uint16(v))
			out = append(out, lo, hi)
		}
	}
	a.emitResolved(st, out, pending)
	return nil
}

// emitResolved emits data unless a value is still pending in pass 2,
// in which case the line is flagged and only the address advances.
func (a *Assembler) emitResolved(st Statement, b []byte, pending bool) {
	if pending && a.pass == 2 {
		a.errorf(st.Loc, "operand references an unresolved symbol")
		a.pc += uint16(len(b))
		return
	}
	a.emitData(st, b)
}

// doCharString (FCC) emits a delimited character string.
func (a *Assembler) doCharString(st Statement) error {
	text, err := delimited(st.Operand)
	if err != nil {
		return err
	}
	a.emitData(st, []byte(text))
	return nil
}

// doHexString (.HS) emits packed hex digits. Spaces, dots and commas
// separate groups.
func (a *Assembler) doHexString(st Statement) error {
	digits := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '.', ',':
			return -1
		}
		return r
	}, st.Operand)
	if len(digits)%2 != 0 {
		return fmt.Errorf("odd number of hex digits in %q", st.Operand)
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i < len(digits); i += 2 {
		hi, lo := hexDigit(digits[i]), hexDigit(digits[i+1])
		if hi < 0 || lo < 0 {
			return fmt.Errorf("invalid hex digit in %q", st.Operand)
		}
		out = append(out, uint8(hi<<4|lo))
	}
	a.emitData(st, out)
	return nil
}

// ASCII string directives. A "-" before the delimiter stores plain
// ASCII; otherwise the high bit is set on every character.
func (a *Assembler) doASCII(st Statement) error {
	b, err := asciiData(st.Operand)
	if err != nil {
		return err
	}
	a.emitData(st, b)
	return nil
}

// doASCIITerminated (.AT) flips the high bit of the final character to
// mark the string's end.
func (a *Assembler) doASCIITerminated(st Statement) error {
	b, err := asciiData(st.Operand)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return fmt.Errorf("empty string")
	}
	b[len(b)-1] ^= 0x80
	a.emitData(st, b)
	return nil
}

// doASCIIZero (.AZ) emits plain characters with a zero terminator.
func (a *Assembler) doASCIIZero(st Statement) error {
	text, err := delimited(strings.TrimPrefix(st.Operand, "-"))
	if err != nil {
		return err
	}
	a.emitData(st, append([]byte(text), 0))
	return nil
}

func (a *Assembler) doReserve(st Statement) error {
	v, resolved, err := a.eval(st.Operand)
	if err != nil {
		return err
	}
	if !resolved {
		return fmt.Errorf("reserve count must not be a forward reference")
	}
	if v < 0 || v > 0xFFFF {
		return fmt.Errorf("reserve count %d out of range", v)
	}
	a.pc += uint16(v)
	return nil
}

func (a *Assembler) doTitle(st Statement) error {
	a.title = strings.TrimSpace(st.Operand)
	return nil
}

func (a *Assembler) doNoop(Statement) error { return nil }

func (a *Assembler) doList(st Statement) error {
	switch strings.ToUpper(strings.TrimSpace(st.Operand)) {
	case "ON", "":
		a.listing = true
	case "OFF":
		a.listing = false
	default:
		return fmt.Errorf("invalid .LIST argument %q", st.Operand)
	}
	return nil
}

func (a *Assembler) doTargetFile(st Statement) error {
	a.outputFile = strings.Trim(strings.TrimSpace(st.Operand), `"'`)
	return nil
}

// delimited extracts a string bracketed by its own first character
// (FCC /TEXT/ style).
func delimited(operand string) (string, error) {
	s := strings.TrimSpace(operand)
	if len(s) < 2 {
		return "", fmt.Errorf("malformed string operand %q", operand)
	}
	delim := s[0]
	end := strings.IndexByte(s[1:], delim)
	if end < 0 {
		return "", fmt.Errorf("unterminated string %q", operand)
	}
	return s[1 : 1+end], nil
}

func asciiData(operand string) ([]byte, error) {
	s := strings.TrimSpace(operand)
	high := true
	if strings.HasPrefix(s, "-") {
		high = false
		s = s[1:]
	}
	text, err := delimited(s)
	if err != nil {
		return nil, err
	}
	b := []byte(text)
	if high {
		for i := range b {
			b[i] |= 0x80
		}
	}
	return b, nil
}

// splitList splits a comma-separated operand list, honoring quoted
// characters and parentheses.
func splitList(s string) []string {
	var out []string
	depth, last := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			i++ // character constant
			if i+1 < len(s) && s[i+1] == '\'' {
				i++
			}
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(s[last:i]))
				last = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[last:]); tail != "" || len(out) > 0 {
		out = append(out, tail)
	}
	return out
}

func hexDigit(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	}
	return -1
}
