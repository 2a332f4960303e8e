package assembler

import "fmt"

// condFrame is one open conditional block. shouldEmit combines the
// frame's own condition with the enclosing block's state, so a false
// outer branch suppresses everything inside regardless of inner
// conditions.
type condFrame struct {
	cond       bool
	parentEmit bool
	shouldEmit bool
	inElse     bool
	loc        Location
}

type condStack struct {
	frames []condFrame
}

// ShouldEmit reports whether lines at the current nesting level are
// assembled.
func (s *condStack) ShouldEmit() bool {
	if len(s.frames) == 0 {
		return true
	}
	return s.frames[len(s.frames)-1].shouldEmit
}

func (s *condStack) BeginIf(cond bool, loc Location) {
	parent := s.ShouldEmit()
	s.frames = append(s.frames, condFrame{
		cond:       cond,
		parentEmit: parent,
		shouldEmit: parent && cond,
		loc:        loc,
	})
}

func (s *condStack) Else(loc Location) error {
	if len(s.frames) == 0 {
		return fmt.Errorf("%s: ELSE without open conditional", loc)
	}
	top := &s.frames[len(s.frames)-1]
	if top.inElse {
		return fmt.Errorf("%s: multiple ELSE in conditional opened at %s", loc, top.loc)
	}
	top.inElse = true
	top.shouldEmit = top.parentEmit && !top.cond
	return nil
}

func (s *condStack) EndIf(loc Location) error {
	if len(s.frames) == 0 {
		return fmt.Errorf("%s: conditional terminator without open block", loc)
	}
	s.frames = s.frames[:len(s.frames)-1]
	return nil
}

func (s *condStack) Depth() int { return len(s.frames) }

// Open returns the location of the innermost unterminated block, for
// the end-of-input balance check.
func (s *condStack) Open() Location {
	return s.frames[len(s.frames)-1].loc
}

func (s *condStack) Reset() { s.frames = s.frames[:0] }
