package expr

import (
	"fmt"
	"strings"
)

// Parse builds an expression tree from operand text.
func Parse(s string) (*Node, error) {
	p := &parser{src: s}
	p.skipSpace()
	if p.pos >= len(p.src) {
		return &Node{Kind: KindLiteral, Value: 0}, nil
	}
	n, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.src) {
		return nil, fmt.Errorf("unexpected character after expression: %q", p.src[p.pos])
	}
	return n, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) parseLogicalOr() (*Node, error) {
	left, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !p.match("||") {
			return left, nil
		}
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: OpLogOr, Left: left, Right: right}
	}
}

func (p *parser) parseLogicalAnd() (*Node, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if !p.match("&&") {
			return left, nil
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: OpLogAnd, Left: left, Right: right}
	}
}

func (p *parser) parseComparison() (*Node, error) {
	left, err := p.parseBitwiseOr()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op BinaryOp
		switch {
		case p.match("=="):
			op = OpEq
		case p.match("!="):
			op = OpNe
		case p.match("<="):
			op = OpLe
		case p.match(">="):
			op = OpGe
		case p.peek() == '<' && p.peekAt(1) != '<':
			p.consume()
			op = OpLt
		case p.peek() == '>' && p.peekAt(1) != '>':
			p.consume()
			op = OpGt
		default:
			return left, nil
		}
		right, err := p.parseBitwiseOr()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: op, Left: left, Right: right}
	}
}

func (p *parser) parseBitwiseOr() (*Node, error) {
	left, err := p.parseBitwiseXor()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		// Single | only; || belongs to logical-or above.
		if p.peek() != '|' || p.peekAt(1) == '|' {
			return left, nil
		}
		p.consume()
		right, err := p.parseBitwiseXor()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: OpBitOr, Left: left, Right: right}
	}
}

func (p *parser) parseBitwiseXor() (*Node, error) {
	left, err := p.parseBitwiseAnd()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.peek() != '^' {
			return left, nil
		}
		p.consume()
		right, err := p.parseBitwiseAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: OpBitXor, Left: left, Right: right}
	}
}

func (p *parser) parseBitwiseAnd() (*Node, error) {
	left, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		if p.peek() != '&' || p.peekAt(1) == '&' {
			return left, nil
		}
		p.consume()
		right, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: OpBitAnd, Left: left, Right: right}
	}
}

func (p *parser) parseShift() (*Node, error) {
	left, err := p.parseAddSub()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op BinaryOp
		switch {
		case p.match("<<"):
			op = OpShl
		case p.match(">>"):
			op = OpShr
		default:
			return left, nil
		}
		right, err := p.parseAddSub()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: op, Left: left, Right: right}
	}
}

func (p *parser) parseAddSub() (*Node, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op BinaryOp
		switch p.peek() {
		case '+':
			op = OpAdd
		case '-':
			op = OpSub
		default:
			return left, nil
		}
		p.consume()
		right, err := p.parseMulDiv()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: op, Left: left, Right: right}
	}
}

func (p *parser) parseMulDiv() (*Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		p.skipSpace()
		var op BinaryOp
		switch p.peek() {
		case '*':
			op = OpMul
		case '/':
			op = OpDiv
		case '%':
			// % followed by a binary digit is a binary literal, not modulo.
			if c := p.peekAt(1); c == '0' || c == '1' {
				return left, nil
			}
			op = OpMod
		default:
			return left, nil
		}
		p.consume()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: KindBinary, Binary: op, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (*Node, error) {
	p.skipSpace()
	var op UnaryOp
	switch p.peek() {
	case '-':
		op = OpNeg
	case '+':
		// Unary plus is a no-op.
		p.consume()
		return p.parseUnary()
	case '~':
		op = OpBitNot
	case '!':
		op = OpLogNot
	case '<':
		op = OpLowByte
	case '>':
		op = OpHighByte
	default:
		return p.parsePrimary()
	}
	p.consume()
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: KindUnary, Unary: op, Left: operand}, nil
}

func (p *parser) parsePrimary() (*Node, error) {
	p.skipSpace()
	c := p.peek()

	switch {
	case c == 0:
		return nil, fmt.Errorf("expected expression")

	case c == '(':
		p.consume()
		n, err := p.parseLogicalOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ')' {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.consume()
		return n, nil

	case c == '[':
		// Z80 sources use brackets where parentheses would read as
		// memory indirection.
		p.consume()
		n, err := p.parseLogicalOr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ']' {
			return nil, fmt.Errorf("expected closing bracket")
		}
		p.consume()
		return n, nil

	case c == '*':
		p.consume()
		return &Node{Kind: KindHere}, nil

	case c == '$':
		// $ followed by a hex digit is a number; bare $ is the
		// current address.
		if isHexDigit(p.peekAt(1)) {
			return p.parseNumber()
		}
		p.consume()
		return &Node{Kind: KindHere}, nil

	case c == '%' || isDigit(c):
		return p.parseNumber()

	case c == '\'':
		p.consume()
		ch := p.consume()
		if ch == 0 {
			return nil, fmt.Errorf("unterminated character constant")
		}
		// Closing quote is optional: 'A and 'A' are both accepted.
		if p.peek() == '\'' {
			p.consume()
		}
		return &Node{Kind: KindLiteral, Value: int64(ch)}, nil

	case isIdentStart(c):
		ident := p.parseIdentifier()
		p.skipSpace()
		if p.peek() == '(' {
			return p.parseCall(ident)
		}
		return &Node{Kind: KindSymbol, Name: ident}, nil
	}

	return nil, fmt.Errorf("unexpected character: %q", c)
}

// parseCall handles the one-argument built-in functions LOW and HIGH.
func (p *parser) parseCall(ident string) (*Node, error) {
	p.consume() // (
	arg, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.peek() == ',' {
		return nil, fmt.Errorf("%s takes exactly one argument", strings.ToUpper(ident))
	}
	if p.peek() != ')' {
		return nil, fmt.Errorf("expected closing parenthesis in function call")
	}
	p.consume()

	switch strings.ToUpper(ident) {
	case "LOW":
		return &Node{Kind: KindUnary, Unary: OpLowByte, Left: arg}, nil
	case "HIGH":
		return &Node{Kind: KindUnary, Unary: OpHighByte, Left: arg}, nil
	}
	return nil, fmt.Errorf("unknown function: %s", ident)
}

func (p *parser) parseNumber() (*Node, error) {
	var value int64

	switch {
	case p.peek() == '$':
		p.consume()
		if !isHexDigit(p.peek()) {
			return nil, fmt.Errorf("expected hexadecimal digit after $")
		}
		for isHexDigit(p.peek()) {
			value = value*16 + int64(hexVal(p.consume()))
		}

	case p.peek() == '%':
		p.consume()
		if p.peek() != '0' && p.peek() != '1' {
			return nil, fmt.Errorf("expected binary digit after %%")
		}
		for p.peek() == '0' || p.peek() == '1' {
			value = value*2 + int64(p.consume()-'0')
		}

	case p.peek() == '0' && (p.peekAt(1) == 'x' || p.peekAt(1) == 'X'):
		p.consume()
		p.consume()
		if !isHexDigit(p.peek()) {
			return nil, fmt.Errorf("expected hexadecimal digit after 0x")
		}
		for isHexDigit(p.peek()) {
			value = value*16 + int64(hexVal(p.consume()))
		}

	case p.peek() == '0' && (p.peekAt(1) == 'b' || p.peekAt(1) == 'B'):
		p.consume()
		p.consume()
		if p.peek() != '0' && p.peek() != '1' {
			return nil, fmt.Errorf("expected binary digit after 0b")
		}
		for p.peek() == '0' || p.peek() == '1' {
			value = value*2 + int64(p.consume()-'0')
		}

	default:
		if !isDigit(p.peek()) {
			return nil, fmt.Errorf("expected number")
		}
		for isDigit(p.peek()) {
			value = value*10 + int64(p.consume()-'0')
		}
	}

	return &Node{Kind: KindLiteral, Value: value}, nil
}

func (p *parser) parseIdentifier() string {
	start := p.pos
	p.consume()
	for isIdentPart(p.peek()) {
		p.consume()
	}
	return p.src[start:p.pos]
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) peekAt(off int) byte {
	if p.pos+off < len(p.src) {
		return p.src[p.pos+off]
	}
	return 0
}

func (p *parser) consume() byte {
	if p.pos < len(p.src) {
		c := p.src[p.pos]
		p.pos++
		return c
	}
	return 0
}

func (p *parser) match(s string) bool {
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	default:
		return int(c-'A') + 10
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '.' || c == '?' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c) || c == '$'
}
