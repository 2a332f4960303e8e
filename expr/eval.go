package expr

import "fmt"

// Env supplies symbol values and the current program address during
// evaluation. Lookup returns false for a symbol that is still
// pending (pass 1 forward reference).
type Env interface {
	Lookup(name string) (int64, bool)
	Here() int64
}

// Value is the result of evaluating an expression. An unresolved
// value carries no usable integer; any expression containing one is
// itself unresolved.
type Value struct {
	Val      int64
	Resolved bool
}

// Resolved wraps an integer result.
func Resolved(v int64) Value { return Value{Val: v, Resolved: true} }

// Unresolved is the propagating placeholder for pending symbols.
func Unresolved() Value { return Value{} }

// Eval computes the value of the tree against env. Pending symbols
// propagate as unresolved values instead of raising, so pass 1 can
// fall back to worst-case operand widths. Division by zero and
// out-of-range shift counts are reported as errors.
func (n *Node) Eval(env Env) (Value, error) {
	switch n.Kind {
	case KindLiteral:
		return Resolved(n.Value), nil

	case KindHere:
		return Resolved(env.Here()), nil

	case KindSymbol:
		v, ok := env.Lookup(n.Name)
		if !ok {
			return Unresolved(), nil
		}
		return Resolved(v), nil

	case KindUnary:
		operand, err := n.Left.Eval(env)
		if err != nil {
			return Value{}, err
		}
		if !operand.Resolved {
			return Unresolved(), nil
		}
		switch n.Unary {
		case OpNeg:
			return Resolved(-operand.Val), nil
		case OpBitNot:
			return Resolved(^operand.Val), nil
		case OpLogNot:
			return Resolved(boolVal(operand.Val == 0)), nil
		case OpLowByte:
			return Resolved(operand.Val & 0xFF), nil
		case OpHighByte:
			return Resolved((operand.Val >> 8) & 0xFF), nil
		}

	case KindBinary:
		left, err := n.Left.Eval(env)
		if err != nil {
			return Value{}, err
		}
		right, err := n.Right.Eval(env)
		if err != nil {
			return Value{}, err
		}
		if !left.Resolved || !right.Resolved {
			return Unresolved(), nil
		}
		return applyBinary(n.Binary, left.Val, right.Val)
	}
	return Value{}, fmt.Errorf("malformed expression node")
}

func applyBinary(op BinaryOp, l, r int64) (Value, error) {
	switch op {
	case OpAdd:
		return Resolved(l + r), nil
	case OpSub:
		return Resolved(l - r), nil
	case OpMul:
		return Resolved(l * r), nil
	case OpDiv:
		if r == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return Resolved(l / r), nil
	case OpMod:
		if r == 0 {
			return Value{}, fmt.Errorf("modulo by zero")
		}
		return Resolved(l % r), nil
	case OpShl:
		if r < 0 || r > 63 {
			return Value{}, fmt.Errorf("shift count %d out of range", r)
		}
		return Resolved(l << uint(r)), nil
	case OpShr:
		if r < 0 || r > 63 {
			return Value{}, fmt.Errorf("shift count %d out of range", r)
		}
		return Resolved(l >> uint(r)), nil
	case OpBitAnd:
		return Resolved(l & r), nil
	case OpBitOr:
		return Resolved(l | r), nil
	case OpBitXor:
		return Resolved(l ^ r), nil
	case OpLogAnd:
		return Resolved(boolVal(l != 0 && r != 0)), nil
	case OpLogOr:
		return Resolved(boolVal(l != 0 || r != 0)), nil
	case OpEq:
		return Resolved(boolVal(l == r)), nil
	case OpNe:
		return Resolved(boolVal(l != r)), nil
	case OpLt:
		return Resolved(boolVal(l < r)), nil
	case OpLe:
		return Resolved(boolVal(l <= r)), nil
	case OpGt:
		return Resolved(boolVal(l > r)), nil
	case OpGe:
		return Resolved(boolVal(l >= r)), nil
	}
	return Value{}, fmt.Errorf("unknown binary operator")
}

func boolVal(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
