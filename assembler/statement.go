package assembler

import (
	"strings"
)

// Statement is one parsed source line: an optional label, a mnemonic
// or directive name, and the raw operand text. The assembler core
// consumes statement slices; Split produces them from raw source as a
// convenience front end.
type Statement struct {
	Loc     Location
	Label   string
	Name    string
	Operand string
}

// Split breaks source text into statements. Classic column rules: a
// label starts in column one, an indented first word is the mnemonic.
// Lines starting with "*" or ";" are comments, as is anything after an
// unquoted ";".
func Split(file string, src []byte) []Statement {
	lines := strings.Split(string(src), "\n")
	stmts := make([]Statement, 0, len(lines))
	for i, line := range lines {
		st, ok := splitLine(line)
		if !ok {
			continue
		}
		st.Loc = Location{File: file, Line: i + 1}
		stmts = append(stmts, st)
	}
	return stmts
}

// stringDirectives take a self-delimited string operand; a ";" inside
// the delimiters is data, not a comment.
var stringDirectives = map[string]bool{
	"FCC": true, ".AS": true, ".AT": true, ".AZ": true,
}

func splitLine(line string) (Statement, bool) {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return Statement{}, false
	}
	if line[0] == '*' || line[0] == ';' {
		return Statement{}, false
	}

	var st Statement
	rest := line
	if line[0] != ' ' && line[0] != '\t' {
		label, tail, _ := cutSpace(line)
		if i := strings.IndexByte(label, ';'); i >= 0 {
			label, tail = label[:i], ""
		}
		st.Label = strings.TrimSuffix(label, ":")
		rest = tail
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || rest[0] == ';' {
		if st.Label == "" {
			return Statement{}, false
		}
		return st, true
	}
	name, operand, _ := cutSpace(rest)
	if i := strings.IndexByte(name, ';'); i >= 0 {
		name, operand = name[:i], ""
	}
	st.Name = name
	operand = strings.TrimSpace(operand)
	if stringDirectives[strings.ToUpper(name)] {
		operand = stripStringComment(operand)
	} else {
		operand = strings.TrimSpace(stripComment(operand))
	}
	st.Operand = operand
	return st, true
}

// stripStringComment removes a ";" comment only after the operand's
// closing delimiter. A malformed operand is passed through untouched
// for the directive handler to report.
func stripStringComment(operand string) string {
	start := 0
	if strings.HasPrefix(operand, "-") {
		start = 1
	}
	if start >= len(operand) {
		return operand
	}
	delim := operand[start]
	end := strings.IndexByte(operand[start+1:], delim)
	if end < 0 {
		return operand
	}
	tail := start + 1 + end + 1
	if i := strings.IndexByte(operand[tail:], ';'); i >= 0 {
		return strings.TrimSpace(operand[:tail+i])
	}
	return operand
}

// stripComment removes a trailing ";" comment, honoring double quoted
// regions and character constants ('A and 'A' forms).
func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'':
			// Character constant: consume the character and an
			// optional closing quote.
			i++
			if i+1 < len(line) && line[i+1] == '\'' {
				i++
			}
		case c == '"':
			quote = c
		case c == ';':
			return line[:i]
		}
	}
	return line
}

func cutSpace(s string) (head, tail string, found bool) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, "", false
}
