package assembler

import (
	"fmt"
	"strings"
)

// Dialect selects the directive vocabulary.
type Dialect int

const (
	// Flex is the Motorola/FLEX-style directive set (ORG, FCB, FDB,
	// FCC, RMB, IFC/ELSE/ENDC, ...).
	Flex Dialect = iota
	// SCMASM is the S-C assembler dialect (.OR, .DA, .HS, .AS,
	// .DO/.ELSE/.FIN, ...).
	SCMASM
)

func (d Dialect) String() string {
	switch d {
	case Flex:
		return "flex"
	case SCMASM:
		return "scmasm"
	}
	return "unknown"
}

// ParseDialect converts a configuration string to a Dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "flex", "motorola", "mot":
		return Flex, nil
	case "scmasm", "sc", "s-c":
		return SCMASM, nil
	}
	return 0, fmt.Errorf("unsupported dialect: %s", s)
}

// directiveKind tags entries whose control flow the pass driver must
// see directly (conditionals, loops, includes, symbol definition).
// dirSimple entries run entirely through their handler.
type directiveKind int

const (
	dirSimple directiveKind = iota
	dirIf
	dirElse
	dirEndIf
	dirRepeat
	dirEndRepeat
	dirEquate
	dirSet
	dirInclude
)

// directive is one registry entry: a kind tag plus a handler that
// receives the assembly context explicitly. Registries are built once
// per run and never mutated, so they are safe to share between
// parallel workers.
type directive struct {
	kind   directiveKind
	handle func(a *Assembler, st Statement) error
}

func flexDirectives() map[string]directive {
	return map[string]directive{
		"ORG":     {handle: (*Assembler).doOrigin},
		"END":     {handle: (*Assembler).doEnd},
		"EQU":     {kind: dirEquate},
		"SET":     {kind: dirSet},
		"FCB":     {handle: (*Assembler).doBytes},
		"FDB":     {handle: (*Assembler).doWords},
		"FCC":     {handle: (*Assembler).doCharString},
		"RMB":     {handle: (*Assembler).doReserve},
		"SETDP":   {handle: (*Assembler).doSetDP},
		"NAM":     {handle: (*Assembler).doTitle},
		"TTL":     {handle: (*Assembler).doTitle},
		"PAGE":    {handle: (*Assembler).doNoop},
		"SPC":     {handle: (*Assembler).doNoop},
		"IFC":     {kind: dirIf},
		"ELSE":    {kind: dirElse},
		"ENDC":    {kind: dirEndIf},
		"RPT":     {kind: dirRepeat},
		"ENDR":    {kind: dirEndRepeat},
		"INCLUDE": {kind: dirInclude},
		"LIB":     {kind: dirInclude},
	}
}

func scmasmDirectives() map[string]directive {
	return map[string]directive{
		".OR":   {handle: (*Assembler).doOrigin},
		".TA":   {handle: (*Assembler).doTarget},
		".EQ":   {kind: dirEquate},
		".SE":   {kind: dirSet},
		".DA":   {handle: (*Assembler).doWords},
		".HS":   {handle: (*Assembler).doHexString},
		".AS":   {handle: (*Assembler).doASCII},
		".AT":   {handle: (*Assembler).doASCIITerminated},
		".AZ":   {handle: (*Assembler).doASCIIZero},
		".BS":   {handle: (*Assembler).doReserve},
		".DO":   {kind: dirIf},
		".ELSE": {kind: dirElse},
		".FIN":  {kind: dirEndIf},
		".LU":   {kind: dirRepeat},
		".ENDU": {kind: dirEndRepeat},
		".IN":   {kind: dirInclude},
		".EP":   {handle: (*Assembler).doEntry},
		".LIST": {handle: (*Assembler).doList},
		".TF":   {handle: (*Assembler).doTargetFile},
	}
}
