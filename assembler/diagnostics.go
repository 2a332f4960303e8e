package assembler

import "fmt"

// Location points at one source line.
type Location struct {
	File string
	Line int
}

func (l Location) String() string {
	if l.File == "" {
		return fmt.Sprintf("line %d", l.Line)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Severity grades a diagnostic. Errors accumulate and the run keeps
// going; fatal conditions abort it.
type Severity int

const (
	Warning Severity = iota
	Error
	Fatal
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	case Fatal:
		return "fatal"
	}
	return "unknown"
}

// Diagnostic is one reported problem, tied to its source line.
type Diagnostic struct {
	Loc      Location
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Loc, d.Severity, d.Message)
}
