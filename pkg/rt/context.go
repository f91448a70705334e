// Package rt holds the execution context threaded through the evaluator,
// statement executor, and builtins: the current scope stack, the command
// emitter, the request/response dispatcher, the user-function table, and
// the bookkeeping (call depth, current iteration, stop flag) every layer
// needs. It is deliberately a leaf package — engine and sched depend on it,
// but it imports neither them nor builtins; *Context satisfies builtins.Env
// structurally, which is what lets a builtin emit a command without
// builtins importing rt or engine.
package rt

import (
	"sync/atomic"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/dispatch"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/scope"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Options carries the host-facing interpreter configuration.
type Options struct {
	MaxLoopIterations int
	SyncMode          bool
	Verbose           bool
	Debug             bool
	StepDelay         int
	Version           string
	MaxCallDepth      int
}

// DefaultOptions returns the interpreter's default configuration: a
// finite, never-unbounded loop count and a conservative call depth.
func DefaultOptions() Options {
	return Options{
		MaxLoopIterations: 1000,
		SyncMode:          false,
		Version:           "1.0.0",
		MaxCallDepth:      256,
	}
}

// Context is the per-session mutable state the engine threads through
// every Evaluate/Execute/builtin call.
type Context struct {
	Scope     *scope.Stack
	Emitter   *command.Emitter
	Dispatch  *dispatch.Dispatcher
	Functions map[string]*ast.Node
	Options   Options

	callDepth int
	iteration int
	stopped   atomic.Bool
}

// NewContext builds a Context ready for a fresh session.
func NewContext(emitter *command.Emitter, dispatcher *dispatch.Dispatcher, opts Options) *Context {
	return &Context{
		Scope:     scope.NewStack(),
		Emitter:   emitter,
		Dispatch:  dispatcher,
		Functions: make(map[string]*ast.Node),
		Options:   opts,
	}
}

// Emit stamps and appends a command, satisfying builtins.Env.
func (c *Context) Emit(cmd command.Command) command.Command { return c.Emitter.Emit(cmd) }

// IssueRequest allocates a fresh request identifier.
func (c *Context) IssueRequest(kind string) string { return c.Dispatch.Issue() }

// AwaitResponse suspends (or, in sync mode, immediately mocks) until the
// named request resolves.
func (c *Context) AwaitResponse(kind, id string, args []value.Value) value.Value {
	return c.Dispatch.Wait(kind, id, args)
}

// ScopeStack satisfies builtins.Env's need to read/declare variables.
func (c *Context) ScopeStack() *scope.Stack { return c.Scope }

// SyncMode reports whether responses resolve synchronously.
func (c *Context) SyncMode() bool { return c.Options.SyncMode }

// Iteration returns the current loop() iteration index (0 during setup()).
func (c *Context) Iteration() int { return c.iteration }

// SetIteration is called by the loop scheduler before each loop() body run.
func (c *Context) SetIteration(n int) { c.iteration = n }

// EnterCall increments the call-stack depth and fails with StackOverflow
// once it exceeds MaxCallDepth, catching unbounded recursion before the
// host process runs out of stack.
func (c *Context) EnterCall() error {
	if c.Options.MaxCallDepth > 0 && c.callDepth+1 > c.Options.MaxCallDepth {
		return ierr.New(ierr.StackOverflow, "call depth exceeded")
	}
	c.callDepth++
	return nil
}

// ExitCall decrements the call-stack depth; pair with a deferred call at
// every function-call exit path.
func (c *Context) ExitCall() { c.callDepth-- }

// CallDepth reports the current depth, for diagnostics/tests.
func (c *Context) CallDepth() int { return c.callDepth }

// RequestStop marks the session for termination at the next tick boundary.
func (c *Context) RequestStop() { c.stopped.Store(true) }

// Stopped reports whether RequestStop has been called.
func (c *Context) Stopped() bool { return c.stopped.Load() }
