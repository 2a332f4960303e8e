package symtab

import (
	"errors"
	"testing"
)

func TestForwardReference(t *testing.T) {
	tab := New()

	if _, ok := tab.Lookup("LATER"); ok {
		t.Fatal("undefined symbol reported as resolved")
	}
	und := tab.Undefined()
	if len(und) != 1 || und[0] != "LATER" {
		t.Fatalf("Undefined() = %v, want [LATER]", und)
	}

	if err := tab.Define("LATER", 0x1234, Label, 1); err != nil {
		t.Fatal(err)
	}
	v, ok := tab.Lookup("LATER")
	if !ok || v != 0x1234 {
		t.Fatalf("Lookup after define = %X,%v", v, ok)
	}
	if len(tab.Undefined()) != 0 {
		t.Fatal("Undefined() non-empty after definition")
	}
}

func TestRedefinition(t *testing.T) {
	tab := New()

	// Same pass, same value: fine.
	if err := tab.Define("K", 1, Equate, 1); err != nil {
		t.Fatal(err)
	}
	if err := tab.Define("K", 1, Equate, 1); err != nil {
		t.Fatalf("consistent redefinition rejected: %v", err)
	}
	// Same pass, new value: error.
	if err := tab.Define("K", 2, Equate, 1); err == nil {
		t.Fatal("conflicting redefinition accepted")
	}
	// A value that moves between passes invalidates the pass-1
	// address map.
	if err := tab.Define("K", 2, Equate, 2); !errors.Is(err, ErrPhase) {
		t.Fatalf("cross-pass move = %v, want phase error", err)
	}
	// The same value next pass is the normal case.
	if err := tab.Define("K", 1, Equate, 2); err != nil {
		t.Fatalf("stable cross-pass definition rejected: %v", err)
	}

	// Variables may be reassigned freely.
	if err := tab.Define("V", 1, Variable, 1); err != nil {
		t.Fatal(err)
	}
	if err := tab.Define("V", 9, Variable, 1); err != nil {
		t.Fatalf("variable reassignment rejected: %v", err)
	}
}

func TestCaseSensitivity(t *testing.T) {
	tab := New()
	if err := tab.Define("start", 0x100, Label, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := tab.Peek("START"); ok {
		t.Fatal("lookup should be case-sensitive")
	}
}

func TestAllSorted(t *testing.T) {
	tab := New()
	tab.Define("zz", 1, Label, 1)
	tab.Define("aa", 2, Equate, 1)
	tab.Lookup("pending")

	all := tab.All()
	if len(all) != 2 {
		t.Fatalf("All() returned %d symbols, want 2", len(all))
	}
	if all[0].Name != "aa" || all[1].Name != "zz" {
		t.Fatalf("All() not sorted: %v", all)
	}
}
