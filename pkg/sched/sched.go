// Package sched implements the setup()/loop() session lifecycle: a fixed
// command sequence wrapped around a bounded loop driver.
package sched

import (
	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/engine"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
)

// Run executes one full session: VERSION_INFO, PROGRAM_START, global
// installation, setup(), then the bounded loop driver. Any execution
// error is converted into a single ERROR command followed by PROGRAM_END,
// except a recoverable StateError which does not reach here
// (Interpreter.HandleResponse logs and drops it).
func Run(program *ast.Node, ctx *rt.Context) error {
	ctx.Emit(command.Command{Type: command.VersionInfo, Component: "coreinterp", VersionTag: ctx.Options.Version, Status: "ready"})
	ctx.Emit(command.Command{Type: command.ProgramStart, Message: "program started"})

	if err := engine.InstallProgram(program, ctx); err != nil {
		return fail(ctx, err)
	}

	setupFn := ast.FindFunction(program, "setup")
	loopFn := ast.FindFunction(program, "loop")
	if loopFn == nil {
		return fail(ctx, ierr.New(ierr.Name, "sketch defines no loop() function"))
	}

	ctx.Emit(command.Command{Type: command.SetupStart, Message: "setup started"})
	if setupFn != nil {
		if _, err := engine.Execute(setupFn.Body, ctx); err != nil {
			return fail(ctx, err)
		}
	}
	ctx.Emit(command.Command{Type: command.SetupEnd, Message: "setup completed"})

	if err := runLoop(loopFn, ctx); err != nil {
		return fail(ctx, err)
	}

	ctx.Emit(command.Command{Type: command.ProgramEnd, Message: "program ended"})
	return nil
}

// runLoop drives loop() up to ctx.Options.MaxLoopIterations times,
// honouring host-initiated stop between statements and between iterations.
// It does not emit PROGRAM_END itself; Run does, so a host-initiated stop
// mid-loop still reaches exactly one PROGRAM_END.
func runLoop(loopFn *ast.Node, ctx *rt.Context) error {
	limit := ctx.Options.MaxLoopIterations
	for iteration := 1; limit <= 0 || iteration <= limit; iteration++ {
		if ctx.Stopped() {
			return nil
		}
		ctx.SetIteration(iteration)
		ctx.Emit(command.Command{Type: command.LoopStart, Function: "loop", Iteration: iteration, Message: "loop iteration started"})

		ctx.Emit(command.Command{Type: command.FunctionCall, Function: "loop", Iteration: iteration, Completed: false})
		if _, err := engine.Execute(loopFn.Body, ctx); err != nil {
			return err
		}
		ctx.Emit(command.Command{Type: command.FunctionCall, Function: "loop", Iteration: iteration, Completed: true})

		limitReached := limit > 0 && iteration >= limit
		ctx.Emit(command.Command{
			Type: command.LoopEnd, Function: "loop", Iteration: iteration,
			LimitReached: limitReached, Iterations: iteration, Message: "loop iteration completed",
		})
		if limitReached {
			return nil
		}
	}
	return nil
}

func fail(ctx *rt.Context, err error) error {
	kind := ierr.Internal
	if ie, ok := err.(*ierr.Error); ok {
		kind = ie.Kind
	}
	ctx.Emit(command.Command{Type: command.ErrorCmd, ErrorKind: kind.String(), Message: err.Error()})
	ctx.Emit(command.Command{Type: command.ProgramEnd, Message: "program ended"})
	return err
}
