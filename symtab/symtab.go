// Package symtab implements the assembler's symbol table with
// two-pass resolution tracking. Forward references are tolerated:
// looking up an unknown name records the reference and reports the
// symbol as pending, so pass 1 can keep going with worst-case operand
// widths. Names are case-sensitive.
package symtab

import (
	"errors"
	"fmt"
	"sort"
)

// ErrPhase marks a symbol whose value moved between passes. The
// pass-1 address map is final; a moved symbol means pass 2 would emit
// bytes against stale addresses.
var ErrPhase = errors.New("phase error")

// Kind classifies how a symbol was defined.
type Kind int

const (
	// Label marks a code location; its value is an address.
	Label Kind = iota
	// Equate is a constant defined by EQU/.EQ; redefinition within a
	// pass is an error.
	Equate
	// Variable is a redefinable symbol (SET/.SE).
	Variable
)

func (k Kind) String() string {
	switch k {
	case Label:
		return "label"
	case Equate:
		return "equate"
	case Variable:
		return "variable"
	}
	return "unknown"
}

// Symbol is one table entry.
type Symbol struct {
	Name    string
	Kind    Kind
	Value   int64
	Defined bool
	Pass    int // pass in which the value was last defined
	Refs    int // reference count
}

// Table maps names to symbols across both assembly passes.
type Table struct {
	syms map[string]*Symbol
}

// New returns an empty symbol table.
func New() *Table {
	return &Table{syms: make(map[string]*Symbol)}
}

// Define sets a symbol's value for the given pass. A non-Variable
// symbol must not change value: within one pass that is a
// redefinition error, and across passes it wraps ErrPhase, since a
// moved symbol invalidates the pass-1 address map even when no
// instruction changes length.
func (t *Table) Define(name string, value int64, kind Kind, pass int) error {
	s, ok := t.syms[name]
	if !ok {
		t.syms[name] = &Symbol{Name: name, Kind: kind, Value: value, Defined: true, Pass: pass}
		return nil
	}
	if s.Defined && s.Kind != Variable && kind != Variable && s.Value != value {
		if s.Pass == pass {
			return fmt.Errorf("symbol %s redefined (was $%X, now $%X)", name, s.Value, value)
		}
		return fmt.Errorf("%w: symbol %s moved between passes (was $%X, now $%X)", ErrPhase, name, s.Value, value)
	}
	s.Kind = kind
	s.Value = value
	s.Defined = true
	s.Pass = pass
	return nil
}

// Lookup returns a symbol's value, or false while it is pending. The
// reference is counted either way.
func (t *Table) Lookup(name string) (int64, bool) {
	s, ok := t.syms[name]
	if !ok {
		// Record the forward reference so unresolved names can be
		// reported after pass 2.
		t.syms[name] = &Symbol{Name: name, Refs: 1}
		return 0, false
	}
	s.Refs++
	return s.Value, s.Defined
}

// Peek is Lookup without touching the reference count.
func (t *Table) Peek(name string) (int64, bool) {
	s, ok := t.syms[name]
	if !ok || !s.Defined {
		return 0, false
	}
	return s.Value, true
}

// Undefined returns the names that were referenced but never given a
// value, sorted. After pass 2 each is an unresolved-symbol error.
func (t *Table) Undefined() []string {
	var names []string
	for name, s := range t.syms {
		if !s.Defined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// All returns the defined symbols sorted by name, for symbol map
// output.
func (t *Table) All() []Symbol {
	out := make([]Symbol, 0, len(t.syms))
	for _, s := range t.syms {
		if s.Defined {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
