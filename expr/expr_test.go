package expr

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testEnv struct {
	syms map[string]int64
	here int64
}

func (e *testEnv) Lookup(name string) (int64, bool) {
	v, ok := e.syms[name]
	return v, ok
}

func (e *testEnv) Here() int64 { return e.here }

func eval(t *testing.T, src string, env Env) Value {
	t.Helper()
	n, err := Parse(src)
	require.NoError(t, err, "parse %q", src)
	v, err := n.Eval(env)
	require.NoError(t, err, "eval %q", src)
	return v
}

func TestNumberFormats(t *testing.T) {
	env := &testEnv{}
	tests := []struct {
		src  string
		want int64
	}{
		{"$FF", 255},
		{"$1234", 0x1234},
		{"%1010", 10},
		{"0x1F", 31},
		{"0b101", 5},
		{"42", 42},
		{"'A", 65},
		{"'A'", 65},
		{"", 0},
	}
	for _, tc := range tests {
		v := eval(t, tc.src, env)
		require.True(t, v.Resolved)
		require.Equal(t, tc.want, v.Val, "expression %q", tc.src)
	}
}

func TestPrecedence(t *testing.T) {
	env := &testEnv{}
	tests := []struct {
		src  string
		want int64
	}{
		{"2+3*4", 14},
		{"(2+3)*4", 20},
		{"10-4-3", 3},
		{"1<<4|1", 17},
		{"$FF&$0F", 15},
		{"6/2%2", 1},
		{"1+2==3", 1},
		{"1 && 0 || 1", 1},
		{"~0&$FF", 255},
		{"-3+5", 2},
		{"!0", 1},
	}
	for _, tc := range tests {
		v := eval(t, tc.src, env)
		require.Equal(t, tc.want, v.Val, "expression %q", tc.src)
	}
}

func TestByteExtraction(t *testing.T) {
	env := &testEnv{syms: map[string]int64{"ADDR": 0x1234}}
	require.Equal(t, int64(0x34), eval(t, "<ADDR", env).Val)
	require.Equal(t, int64(0x12), eval(t, ">ADDR", env).Val)
	require.Equal(t, int64(0x34), eval(t, "LOW(ADDR)", env).Val)
	require.Equal(t, int64(0x12), eval(t, "HIGH(ADDR)", env).Val)
	require.Equal(t, int64(0x12), eval(t, "high($1234)", env).Val)
}

func TestFunctionArity(t *testing.T) {
	_, err := Parse("LOW(1,2)")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exactly one argument")

	_, err = Parse("MID($1234)")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown function")
}

func TestCurrentAddress(t *testing.T) {
	env := &testEnv{here: 0x2000}
	require.Equal(t, int64(0x2000), eval(t, "*", env).Val)
	require.Equal(t, int64(0x2000), eval(t, "$", env).Val)
	require.Equal(t, int64(0x2002), eval(t, "*+2", env).Val)
	// $ followed by hex digits is still a number.
	require.Equal(t, int64(0x20), eval(t, "$20", env).Val)
}

// A pending symbol must propagate as unresolved through arithmetic
// instead of raising, and once defined the same tree must evaluate
// deterministically however many times it is re-run.
func TestUnresolvedPropagation(t *testing.T) {
	n, err := Parse("TARGET+1*2")
	require.NoError(t, err)

	env := &testEnv{syms: map[string]int64{}}
	v, err := n.Eval(env)
	require.NoError(t, err)
	require.False(t, v.Resolved)

	env.syms["TARGET"] = 0x1000
	for i := 0; i < 3; i++ {
		v, err = n.Eval(env)
		require.NoError(t, err)
		require.True(t, v.Resolved)
		require.Equal(t, int64(0x1002), v.Val)
	}
}

func TestEvaluationErrors(t *testing.T) {
	env := &testEnv{}

	n, err := Parse("1/0")
	require.NoError(t, err)
	_, err = n.Eval(env)
	require.ErrorContains(t, err, "division by zero")

	n, err = Parse("5%(3-3)")
	require.NoError(t, err)
	_, err = n.Eval(env)
	require.ErrorContains(t, err, "modulo by zero")

	n, err = Parse("1<<64")
	require.NoError(t, err)
	_, err = n.Eval(env)
	require.ErrorContains(t, err, "out of range")
}

func TestParseErrors(t *testing.T) {
	for _, src := range []string{"(1+2", "1+", "$G", "%2", "1 2"} {
		_, err := Parse(src)
		require.Error(t, err, "expression %q should not parse", src)
	}
}
