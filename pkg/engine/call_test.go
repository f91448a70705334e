package engine

import (
	"testing"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// buildRecursive builds: int recurse(int n) { return recurse(n); }
// — always recurses, so the only way it terminates is via StackOverflow.
func buildRecursive() *ast.Node {
	callNode := &ast.Node{
		Kind:   ast.FunctionCall,
		Callee: ident("recurse"),
		Args:   []*ast.Node{ident("n")},
	}
	body := compound(&ast.Node{Kind: ast.Return, Expr: callNode})
	return &ast.Node{
		Kind:   ast.FuncDef,
		Name:   "recurse",
		Params: []*ast.Node{{Kind: ast.Param, Name: "n"}},
		Body:   body,
	}
}

func TestCallFunctionSimpleReturn(t *testing.T) {
	ctx := newTestContext()
	body := compound(&ast.Node{Kind: ast.Return, Expr: binOp("+", ident("n"), lit(value.Int32(1)))})
	fn := &ast.Node{Kind: ast.FuncDef, Name: "inc", Params: []*ast.Node{{Kind: ast.Param, Name: "n"}}, Body: body}

	v, err := CallFunction("inc", fn, []value.Value{value.Int32(41)}, ctx)
	if err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if v.Int64() != 42 {
		t.Errorf("inc(41) = %d, want 42", v.Int64())
	}
}

func TestCallFunctionEmitsBookkeepingPair(t *testing.T) {
	ctx := newTestContext()
	body := compound(&ast.Node{Kind: ast.Return, Expr: lit(value.Int32(0))})
	fn := &ast.Node{Kind: ast.FuncDef, Name: "noop", Body: body}

	var captured []command.Command
	ctx.Emitter.SetListener(func(c command.Command) { captured = append(captured, c) })

	if _, err := CallFunction("noop", fn, nil, ctx); err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	if len(captured) != 2 {
		t.Fatalf("expected start+complete FUNCTION_CALL pair, got %d commands", len(captured))
	}
	if captured[0].Type != command.FunctionCall || captured[0].Completed {
		t.Errorf("first command = %+v, want FUNCTION_CALL completed=false", captured[0])
	}
	if captured[1].Type != command.FunctionCall || !captured[1].Completed {
		t.Errorf("second command = %+v, want FUNCTION_CALL completed=true", captured[1])
	}
}

func TestCallFunctionScopeBalancedOnReturn(t *testing.T) {
	ctx := newTestContext()
	body := compound(&ast.Node{Kind: ast.Return, Expr: lit(value.Int32(0))})
	fn := &ast.Node{Kind: ast.FuncDef, Name: "noop", Body: body}

	pushesBefore, popsBefore := ctx.Scope.Balance()
	if _, err := CallFunction("noop", fn, nil, ctx); err != nil {
		t.Fatalf("CallFunction: %v", err)
	}
	pushesAfter, popsAfter := ctx.Scope.Balance()
	if pushesAfter-pushesBefore != popsAfter-popsBefore {
		t.Errorf("scope push/pop unbalanced across CallFunction: pushes=%d pops=%d", pushesAfter-pushesBefore, popsAfter-popsBefore)
	}
}

func TestRecursionHitsStackOverflow(t *testing.T) {
	ctx := newTestContext()
	ctx.Options.MaxCallDepth = 16
	fn := buildRecursive()
	ctx.Functions["recurse"] = fn

	_, err := CallFunction("recurse", fn, []value.Value{value.Int32(0)}, ctx)
	if err == nil {
		t.Fatal("unbounded recursion should fail")
	}
	ie, ok := err.(*ierr.Error)
	if !ok || ie.Kind != ierr.StackOverflow {
		t.Errorf("error = %v, want a StackOverflow ierr.Error", err)
	}
	if ctx.CallDepth() != 0 {
		t.Errorf("call depth after unwinding = %d, want 0 (every EnterCall paired with ExitCall)", ctx.CallDepth())
	}
}
