package engine

import (
	"testing"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/dispatch"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
	"github.com/sfranzyshen-go/coreinterp/pkg/scope"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

func intBinding(v int32) scope.Binding     { return scope.Binding{Value: value.Int32(v)} }
func valueBinding(v value.Value) scope.Binding { return scope.Binding{Value: v} }

func newTestContext() *rt.Context {
	opts := rt.DefaultOptions()
	opts.SyncMode = true
	return rt.NewContext(command.NewEmitter(), dispatch.NewSync(func(string, []value.Value) value.Value { return value.Void }), opts)
}

func lit(v value.Value) *ast.Node       { return &ast.Node{Kind: ast.NumberLiteral, Value: v} }
func ident(name string) *ast.Node       { return &ast.Node{Kind: ast.Identifier, Name: name} }
func binOp(op string, l, r *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.BinaryOp, Operator: op, Left: l, Right: r}
}
func assign(op string, left, right *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.Assignment, Operator: op, Left: left, Right: right}
}

func TestArithmeticOverflowWraps(t *testing.T) {
	ctx := newTestContext()
	n := binOp("+", lit(value.Int32(2147483647)), lit(value.Int32(1)))
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Int64() != -2147483648 {
		t.Errorf("int32 overflow = %d, want -2147483648", v.Int64())
	}
}

func TestIntegerDivideByZero(t *testing.T) {
	ctx := newTestContext()
	n := binOp("/", lit(value.Int32(10)), lit(value.Int32(0)))
	_, err := Evaluate(n, ctx)
	if err == nil {
		t.Fatal("integer division by zero should return an error")
	}
}

func TestFloatDivideByZeroIsInf(t *testing.T) {
	ctx := newTestContext()
	n := binOp("/", lit(value.Float64(1)), lit(value.Float64(0)))
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !value.IsInfOrNaN(v.Float64()) {
		t.Errorf("float division by zero = %v, want Inf", v.Float64())
	}
}

func TestComparisonMixedSignPromotesToInt64(t *testing.T) {
	ctx := newTestContext()
	n := binOp("<", lit(value.Uint32(4294967295)), lit(value.Int32(1)))
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	// Widened to int64, the uint32 stays a large positive number rather
	// than being misread as a negative int32, so it is not less than 1.
	if v.Bool() {
		t.Error("4294967295 < 1 should be false once widened to int64")
	}
}

func TestShortCircuitAndSkipsRightOperand(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("y", intBinding(0))

	rightSideEffect := assign("=", ident("y"), lit(value.Int32(1)))
	n := binOp("&&", lit(value.Bool(false)), rightSideEffect)

	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Bool() {
		t.Error("false && x should be false")
	}
	b, _ := ctx.Scope.Lookup("y")
	if b.Value.Int64() != 0 {
		t.Errorf("right operand of a false && was evaluated: y = %d, want 0", b.Value.Int64())
	}
}

func TestShortCircuitOrSkipsRightOperand(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("y", intBinding(0))

	rightSideEffect := assign("=", ident("y"), lit(value.Int32(1)))
	n := binOp("||", lit(value.Bool(true)), rightSideEffect)

	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !v.Bool() {
		t.Error("true || x should be true")
	}
	b, _ := ctx.Scope.Lookup("y")
	if b.Value.Int64() != 0 {
		t.Errorf("right operand of a true || was evaluated: y = %d, want 0", b.Value.Int64())
	}
}

func TestAssignmentEmitsVarSet(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("x", intBinding(0))

	var captured []command.Command
	ctx.Emitter.SetListener(func(c command.Command) { captured = append(captured, c) })

	n := assign("=", ident("x"), lit(value.Int32(42)))
	if _, err := Evaluate(n, ctx); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(captured) != 1 || captured[0].Type != command.VarSet {
		t.Fatalf("expected one VAR_SET command, got %v", captured)
	}
	if captured[0].Variable != "x" || captured[0].Value.Int64() != 42 {
		t.Errorf("VAR_SET = %+v, want x=42", captured[0])
	}
}

func TestCompoundAssignmentOperator(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("x", intBinding(10))

	n := assign("+=", ident("x"), lit(value.Int32(5)))
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Int64() != 15 {
		t.Errorf("x += 5 = %d, want 15", v.Int64())
	}
}

func TestUndefinedIdentifierFails(t *testing.T) {
	ctx := newTestContext()
	if _, err := Evaluate(ident("neverDeclared"), ctx); err == nil {
		t.Error("evaluating an undefined identifier should fail")
	}
}

func TestCastTruncates(t *testing.T) {
	ctx := newTestContext()
	n := &ast.Node{Kind: ast.Cast, DeclType: "byte", Args: []*ast.Node{lit(value.Int32(300))}}
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Int64() != 300%256 {
		t.Errorf("cast to byte(300) = %d, want %d", v.Int64(), 300%256)
	}
}

func TestArrayAccessReadAndWrite(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("arr", valueBinding(value.Array([]value.Value{value.Int32(1), value.Int32(2), value.Int32(3)})))

	readNode := &ast.Node{Kind: ast.ArrayAccess, Array: ident("arr"), Index: lit(value.Int32(1))}
	v, err := Evaluate(readNode, ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if v.Int64() != 2 {
		t.Errorf("arr[1] = %d, want 2", v.Int64())
	}

	writeTarget := &ast.Node{Kind: ast.ArrayAccess, Array: ident("arr"), Index: lit(value.Int32(0))}
	assignNode := assign("=", writeTarget, lit(value.Int32(99)))
	if _, err := Evaluate(assignNode, ctx); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, _ := ctx.Scope.Lookup("arr")
	got, _ := b.Value.At(0)
	if got.Int64() != 99 {
		t.Errorf("arr[0] after write = %d, want 99", got.Int64())
	}
}

func TestArrayAccessOutOfBounds(t *testing.T) {
	ctx := newTestContext()
	ctx.Scope.Declare("arr", valueBinding(value.Array([]value.Value{value.Int32(1)})))
	readNode := &ast.Node{Kind: ast.ArrayAccess, Array: ident("arr"), Index: lit(value.Int32(5))}
	if _, err := Evaluate(readNode, ctx); err == nil {
		t.Error("out-of-bounds array access should fail")
	}
}

func TestNamedConstants(t *testing.T) {
	ctx := newTestContext()
	n := &ast.Node{Kind: ast.Constant, Name: "HIGH"}
	v, err := Evaluate(n, ctx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if v.Int64() != 1 {
		t.Errorf("HIGH = %d, want 1", v.Int64())
	}
}
