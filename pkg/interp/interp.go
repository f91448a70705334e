// Package interp wires the leaf components (value, ast, codec, scope,
// command, dispatch, engine, sched, builtins) behind the host-facing API:
// Start/Tick/Stop/IsRunning/IsWaitingForResponse/GetState,
// SetCommandListener/SetResponseHandler/HandleResponse. The session runs
// on its own goroutine so a suspending builtin call can block without
// blocking the host's calling goroutine, rather than requiring the engine
// itself to be written in continuation-passing style.
package interp

import (
	"log"
	"sync"

	"github.com/sfranzyshen-go/coreinterp/pkg/ast"
	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/dispatch"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/rt"
	"github.com/sfranzyshen-go/coreinterp/pkg/sched"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// State is the coarse session state reported by GetState.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateWaiting   State = "waiting_for_response"
	StateStopped   State = "stopped"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// Options re-exports rt.Options so callers don't need to import pkg/rt
// directly for the common case.
type Options = rt.Options

func NewOptions() Options { return rt.DefaultOptions() }

// Interpreter is the host-facing entry point for running a decoded AST.
type Interpreter struct {
	program *ast.Node
	opts    Options

	mu    sync.Mutex
	state State
	err   error
	done  chan struct{}

	ctx        *rt.Context
	dispatcher *dispatch.Dispatcher
	emitter    *command.Emitter

	responder func(kind string, args []value.Value) value.Value
}

// New builds an Interpreter for a decoded program. Call SetCommandListener
// and, for synchronous test runs, SetResponseHandler before Start.
func New(program *ast.Node, opts Options) *Interpreter {
	return &Interpreter{
		program: program,
		opts:    opts,
		state:   StateIdle,
		emitter: command.NewEmitter(),
	}
}

// SetCommandListener installs a sink invoked synchronously on every
// emitted command, from whichever goroutine the engine runs on.
func (in *Interpreter) SetCommandListener(cb func(command.Command)) {
	in.emitter.SetListener(cb)
}

// SetResponseHandler installs the mock-response provider used in
// synchronous mode. Has no effect once Start has been called.
func (in *Interpreter) SetResponseHandler(h func(kind string, args []value.Value) value.Value) {
	in.mu.Lock()
	in.responder = h
	in.mu.Unlock()
}

// Start begins execution on a background goroutine and returns once the
// session has been launched (not once it has finished).
func (in *Interpreter) Start() error {
	in.mu.Lock()
	if in.state != StateIdle {
		in.mu.Unlock()
		return ierr.New(ierr.State, "interpreter already started")
	}

	if in.opts.SyncMode {
		in.dispatcher = dispatch.NewSync(in.responder)
	} else {
		in.dispatcher = dispatch.New(nil)
	}
	in.ctx = rt.NewContext(in.emitter, in.dispatcher, in.opts)
	in.done = make(chan struct{})
	in.state = StateRunning
	program := in.program
	ctx := in.ctx
	done := in.done
	in.mu.Unlock()

	go func() {
		err := sched.Run(program, ctx)
		in.mu.Lock()
		in.err = err
		if err != nil {
			in.state = StateError
		} else if ctx.Stopped() {
			in.state = StateStopped
		} else {
			in.state = StateCompleted
		}
		in.mu.Unlock()
		close(done)
	}()

	return nil
}

// Tick is a compatibility hook for hosts that prefer to drive execution
// step by step. This engine's cooperative suspension is goroutine-driven,
// so Tick lazily starts the session on first call and otherwise just
// reports whether the session is still doing work; there is no externally
// steppable "unit" smaller than a suspension point to advance through.
func (in *Interpreter) Tick() (bool, error) {
	in.mu.Lock()
	state := in.state
	in.mu.Unlock()

	if state == StateIdle {
		if err := in.Start(); err != nil {
			return false, err
		}
		return true, nil
	}
	return in.IsRunning() || in.IsWaitingForResponse(), nil
}

// Stop requests termination; the engine honours it at the next statement
// or iteration boundary, or upon the next response delivery.
func (in *Interpreter) Stop() {
	in.mu.Lock()
	ctx := in.ctx
	in.mu.Unlock()
	if ctx != nil {
		ctx.RequestStop()
	}
}

// Wait blocks the caller until the session terminates, for tests and
// simple hosts that don't need to interleave other work.
func (in *Interpreter) Wait() error {
	in.mu.Lock()
	done := in.done
	in.mu.Unlock()
	if done == nil {
		return ierr.New(ierr.State, "interpreter not started")
	}
	<-done
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.err
}

func (in *Interpreter) IsRunning() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state == StateRunning || in.state == StateWaiting
}

func (in *Interpreter) IsWaitingForResponse() bool {
	in.mu.Lock()
	dispatcher := in.dispatcher
	in.mu.Unlock()
	return dispatcher != nil && dispatcher.Outstanding() > 0
}

func (in *Interpreter) GetState() State {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.state == StateRunning && in.dispatcher != nil && in.dispatcher.Outstanding() > 0 {
		return StateWaiting
	}
	return in.state
}

// HandleResponse delivers a host response for an outstanding request
// (async mode only). Safe to call from any goroutine.
func (in *Interpreter) HandleResponse(requestID string, v value.Value) error {
	in.mu.Lock()
	dispatcher := in.dispatcher
	in.mu.Unlock()
	if dispatcher == nil {
		return ierr.New(ierr.State, "interpreter not started")
	}
	err := dispatcher.HandleResponse(requestID, v)
	if err != nil {
		// A spurious/unknown response is a recoverable StateError: log and
		// ignore rather than fail the session.
		log.Printf("interp: ignoring response: %v", err)
		return nil
	}
	return nil
}

// Commands returns every command emitted so far.
func (in *Interpreter) Commands() []command.Command {
	return in.emitter.Commands()
}
