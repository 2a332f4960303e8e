// Package expr parses and evaluates assembler operand expressions.
//
// The grammar follows classic cross-assembler conventions: C-like
// operator precedence, $/%/0x/0b number prefixes, 'c character
// constants, LOW()/HIGH() byte extraction and the current-address
// term ($ or *). Symbol references are resolved at evaluation time
// against an Env, so the same parsed tree can be evaluated once per
// pass while symbol values are still settling.
package expr

// Kind tags a node in the expression tree.
type Kind int

const (
	KindLiteral Kind = iota
	KindSymbol
	KindUnary
	KindBinary
	KindHere // current program address
)

// UnaryOp identifies a prefix operator.
type UnaryOp int

const (
	OpNeg UnaryOp = iota
	OpBitNot
	OpLogNot
	OpLowByte  // <expr or LOW(expr)
	OpHighByte // >expr or HIGH(expr)
)

// BinaryOp identifies an infix operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpShl
	OpShr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpLogAnd
	OpLogOr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

// Node is one vertex of a parsed expression. Trees are immutable
// once built; they are rebuilt per source line each pass because
// symbol values may change between passes.
type Node struct {
	Kind   Kind
	Value  int64  // KindLiteral
	Name   string // KindSymbol
	Unary  UnaryOp
	Binary BinaryOp
	Left   *Node // unary operand, or binary left-hand side
	Right  *Node // binary right-hand side
}
