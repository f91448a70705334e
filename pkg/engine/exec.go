package engine

import (
	"fmt"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
	"github.com/sfranzyshen-go/coreinterp/pkg/scope"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// SignalKind reports how a statement sequence was interrupted (break,
// continue, return, or not at all), threaded back up through nested block
// execution so a loop or function body can react to it.
type SignalKind uint8

const (
	SigNone SignalKind = iota
	SigBreak
	SigContinue
	SigReturn
)

type Signal struct {
	Kind  SignalKind
	Value value.Value
}

var none = Signal{Kind: SigNone}

// Execute runs statement node n and reports how control left it.
func Execute(n *ast.Node, ctx *rt.Context) (Signal, error) {
	if n == nil {
		return none, nil
	}
	if ctx.Stopped() {
		return none, nil
	}

	switch n.Kind {
	case ast.Compound:
		return execCompound(n, ctx)
	case ast.VarDecl:
		return none, execVarDecl(n, ctx)
	case ast.Empty:
		return none, nil
	case ast.If:
		return execIf(n, ctx)
	case ast.While:
		return execWhile(n, ctx)
	case ast.DoWhile:
		return execDoWhile(n, ctx)
	case ast.For:
		return execFor(n, ctx)
	case ast.RangeFor:
		return execRangeFor(n, ctx)
	case ast.Switch:
		return execSwitch(n, ctx)
	case ast.Return:
		var v value.Value
		if n.Expr != nil {
			rv, err := Evaluate(n.Expr, ctx)
			if err != nil {
				return none, err
			}
			v = rv
		}
		return Signal{Kind: SigReturn, Value: v}, nil
	case ast.Break:
		return Signal{Kind: SigBreak}, nil
	case ast.Continue:
		return Signal{Kind: SigContinue}, nil
	default:
		// A bare expression statement (FunctionCall, Assignment, ...).
		_, err := Evaluate(n, ctx)
		return none, err
	}
}

// execCompound pushes a scope frame on entry and pops it on every exit
// path via defer.
func execCompound(n *ast.Node, ctx *rt.Context) (Signal, error) {
	ctx.Scope.Push()
	defer ctx.Scope.Pop()

	for _, stmt := range n.Children {
		if ctx.Stopped() {
			return none, nil
		}
		sig, err := Execute(stmt, ctx)
		if err != nil {
			return none, err
		}
		if sig.Kind != SigNone {
			return sig, nil
		}
	}
	return none, nil
}

func execVarDecl(n *ast.Node, ctx *rt.Context) error {
	for _, d := range n.Declarators {
		var v value.Value
		initialized := d.Initializer != nil
		if initialized {
			iv, err := Evaluate(d.Initializer, ctx)
			if err != nil {
				return err
			}
			v = iv
		} else {
			v = zeroValueFor(n.DeclType)
		}
		ctx.Scope.Declare(d.Name, scope.Binding{Type: n.DeclType, Value: v, Const: n.IsConst, ArrayDims: d.ArrayDims})
		if initialized {
			ctx.Emit(command.Command{Type: command.VarSet, Variable: d.Name, Value: v, IsConst: n.IsConst})
		}
	}
	return nil
}

func zeroValueFor(declType string) value.Value {
	switch declType {
	case "float":
		return value.Float32(0)
	case "double":
		return value.Float64(0)
	case "bool", "boolean":
		return value.Bool(false)
	case "char":
		return value.Char(0)
	case "String", "string":
		return value.String("")
	case "unsigned int", "unsigned long", "uint16_t", "uint32_t", "word":
		return value.Uint32(0)
	case "long", "int32_t":
		return value.Int64(0)
	default:
		return value.Int32(0)
	}
}

// execIf evaluates the condition and executes exactly one arm, emitting an
// IF_STATEMENT command recording the condition value and taken branch.
func execIf(n *ast.Node, ctx *rt.Context) (Signal, error) {
	cond, err := Evaluate(n.Cond, ctx)
	if err != nil {
		return none, err
	}
	taken := n.Then
	branch := "then"
	if !cond.Bool() {
		taken = n.Else
		branch = "else"
	}
	ctx.Emit(command.Command{Type: command.IfStatement, Condition: cond.Bool(), Result: fmt.Sprintf("%v", cond.Bool()), Branch: branch})
	if taken == nil {
		return none, nil
	}
	return Execute(taken, ctx)
}

func execWhile(n *ast.Node, ctx *rt.Context) (Signal, error) {
	for {
		if ctx.Stopped() {
			return none, nil
		}
		cond, err := Evaluate(n.Cond, ctx)
		if err != nil {
			return none, err
		}
		if !cond.Bool() {
			return none, nil
		}
		sig, err := Execute(n.Body, ctx)
		if err != nil {
			return none, err
		}
		switch sig.Kind {
		case SigBreak:
			return none, nil
		case SigReturn:
			return sig, nil
		}
	}
}

func execDoWhile(n *ast.Node, ctx *rt.Context) (Signal, error) {
	for {
		if ctx.Stopped() {
			return none, nil
		}
		sig, err := Execute(n.Body, ctx)
		if err != nil {
			return none, err
		}
		switch sig.Kind {
		case SigBreak:
			return none, nil
		case SigReturn:
			return sig, nil
		}
		cond, err := Evaluate(n.Cond, ctx)
		if err != nil {
			return none, err
		}
		if !cond.Bool() {
			return none, nil
		}
	}
}

func execFor(n *ast.Node, ctx *rt.Context) (Signal, error) {
	ctx.Scope.Push()
	defer ctx.Scope.Pop()

	if n.Left != nil {
		if _, err := Execute(n.Left, ctx); err != nil {
			return none, err
		}
	}
	for {
		if ctx.Stopped() {
			return none, nil
		}
		if n.Cond != nil {
			cond, err := Evaluate(n.Cond, ctx)
			if err != nil {
				return none, err
			}
			if !cond.Bool() {
				return none, nil
			}
		}
		sig, err := Execute(n.Body, ctx)
		if err != nil {
			return none, err
		}
		if sig.Kind == SigBreak {
			return none, nil
		}
		if sig.Kind == SigReturn {
			return sig, nil
		}
		if n.Right != nil {
			if _, err := Evaluate(n.Right, ctx); err != nil {
				return none, err
			}
		}
	}
}

func execRangeFor(n *ast.Node, ctx *rt.Context) (Signal, error) {
	arr, err := Evaluate(n.Array, ctx)
	if err != nil {
		return none, err
	}
	elems := arr.Elements()
	loopVarName := n.Left.Name

	for _, elem := range elems {
		if ctx.Stopped() {
			return none, nil
		}
		ctx.Scope.Push()
		ctx.Scope.Declare(loopVarName, scope.Binding{Value: elem})
		sig, err := Execute(n.Body, ctx)
		ctx.Scope.Pop()
		if err != nil {
			return none, err
		}
		if sig.Kind == SigBreak {
			return none, nil
		}
		if sig.Kind == SigReturn {
			return sig, nil
		}
	}
	return none, nil
}

// execSwitch dispatches on an integral value with fall-through unless
// break; default is taken when no case matches.
func execSwitch(n *ast.Node, ctx *rt.Context) (Signal, error) {
	cond, err := Evaluate(n.Cond, ctx)
	if err != nil {
		return none, err
	}
	condVal := cond.Int64()

	cases := n.Children[1:] // Children[0] is the condition expression
	matchIdx := -1
	defaultIdx := -1
	for i, c := range cases {
		if c.Expr == nil {
			defaultIdx = i
			continue
		}
		cv, err := Evaluate(c.Expr, ctx)
		if err != nil {
			return none, err
		}
		if cv.Int64() == condVal {
			matchIdx = i
			break
		}
	}
	if matchIdx == -1 {
		matchIdx = defaultIdx
	}
	if matchIdx == -1 {
		return none, nil
	}

	for i := matchIdx; i < len(cases); i++ {
		sig, err := Execute(cases[i].Body, ctx)
		if err != nil {
			return none, err
		}
		switch sig.Kind {
		case SigBreak:
			return none, nil
		case SigReturn, SigContinue:
			return sig, nil
		}
	}
	return none, nil
}

// InstallProgram executes every top-level declaration, installing globals
// in the global frame and registering function definitions by name.
func InstallProgram(program *ast.Node, ctx *rt.Context) error {
	if program.Kind != ast.Program {
		return ierr.New(ierr.Internal, "InstallProgram requires a Program root")
	}
	for _, c := range program.Children {
		switch c.Kind {
		case ast.FuncDef:
			ctx.Functions[c.Name] = c
		case ast.VarDecl:
			if err := execVarDecl(c, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
