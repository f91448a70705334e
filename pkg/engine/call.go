package engine

import (
	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
	"github.com/sfranzyshen-go/coreinterp/pkg/scope"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// CallFunction invokes a user-defined function: binds parameters by copy
// in a fresh frame, executes the body, and treats an un-returned function
// as returning void. It emits the FUNCTION_CALL bookkeeping pair (start,
// then completed) that wraps every sketch-level call, including recursive
// self-calls, so nested call depth can be read back off the command
// stream as unmatched start records.
func CallFunction(name string, fn *ast.Node, args []value.Value, ctx *rt.Context) (value.Value, error) {
	if err := ctx.EnterCall(); err != nil {
		return value.Void, err
	}
	defer ctx.ExitCall()

	ctx.Emit(command.Command{Type: command.FunctionCall, Function: name, Iteration: ctx.Iteration(), Completed: false})

	ctx.Scope.Push()
	for i, p := range fn.Params {
		var v value.Value
		if i < len(args) {
			v = args[i]
		} else if p.Default != nil {
			dv, err := Evaluate(p.Default, ctx)
			if err != nil {
				ctx.Scope.Pop()
				return value.Void, err
			}
			v = dv
		}
		ctx.Scope.Declare(p.Name, scope.Binding{Type: p.DeclType, Value: v})
	}

	sig, err := Execute(fn.Body, ctx)
	ctx.Scope.Pop()
	if err != nil {
		return value.Void, err
	}

	ctx.Emit(command.Command{Type: command.FunctionCall, Function: name, Iteration: ctx.Iteration(), Completed: true})

	if sig.Kind == SigReturn {
		return sig.Value, nil
	}
	return value.Void, nil
}
