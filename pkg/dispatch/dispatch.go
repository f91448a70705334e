// Package dispatch implements the request/response protocol async builtins
// use to reach the host: issue a request, receive a unique identifier, and
// block until the host calls HandleResponse with that identifier. The
// outstanding-request table is mutex-protected; issued/resolved counts are
// tracked separately with atomics since they're read far more often than
// the map is mutated.
package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Coercer converts a raw host response into the Arduino return type a
// given request kind expects (e.g. analogRead always returns int32).
type Coercer func(kind string, v value.Value) value.Value

// Dispatcher allocates request identifiers, suspends callers on Wait, and
// resumes them from HandleResponse. It is safe to call HandleResponse from
// any goroutine while the engine is blocked in Wait on another.
type Dispatcher struct {
	mu          sync.Mutex
	outstanding map[string]chan value.Value
	nextID      atomic.Int64
	issued      atomic.Int64
	resolved    atomic.Int64
	coerce      Coercer

	sync     bool
	mockFn   func(kind string, args []value.Value) value.Value
}

// New creates an asynchronous dispatcher. Pass a Coercer or nil to accept
// responses unmodified.
func New(coerce Coercer) *Dispatcher {
	if coerce == nil {
		coerce = func(_ string, v value.Value) value.Value { return v }
	}
	return &Dispatcher{outstanding: make(map[string]chan value.Value), coerce: coerce}
}

// NewSync creates a dispatcher in synchronous/mock-response mode: Issue
// still allocates a request identifier and the caller may still emit
// the corresponding _REQUEST command, but Wait returns immediately with a
// deterministic mock value instead of suspending.
func NewSync(mock func(kind string, args []value.Value) value.Value) *Dispatcher {
	return &Dispatcher{outstanding: make(map[string]chan value.Value), sync: true, mockFn: mock,
		coerce: func(_ string, v value.Value) value.Value { return v }}
}

// Issue allocates a fresh request identifier and, in async mode, registers
// a channel the caller will block on via Wait.
func (d *Dispatcher) Issue() string {
	id := fmt.Sprintf("req-%d", d.nextID.Add(1))
	if !d.sync {
		d.mu.Lock()
		d.outstanding[id] = make(chan value.Value, 1)
		d.mu.Unlock()
	}
	d.issued.Add(1)
	return id
}

// Wait suspends the caller until HandleResponse(id, ...) is delivered, or
// returns the synchronous mock value immediately in sync mode.
func (d *Dispatcher) Wait(kind, id string, args []value.Value) value.Value {
	if d.sync {
		var v value.Value
		if d.mockFn != nil {
			v = d.mockFn(kind, args)
		}
		d.resolved.Add(1)
		return d.coerce(kind, v)
	}
	d.mu.Lock()
	ch, ok := d.outstanding[id]
	d.mu.Unlock()
	if !ok {
		return value.Void
	}
	v := <-ch
	return d.coerce(kind, v)
}

// HandleResponse delivers a response for an outstanding request. Duplicate
// or unknown identifiers are reported as a recoverable StateError; the
// caller (host) logs and ignores it rather than treating it as fatal.
func (d *Dispatcher) HandleResponse(id string, v value.Value) error {
	d.mu.Lock()
	ch, ok := d.outstanding[id]
	if ok {
		delete(d.outstanding, id)
	}
	d.mu.Unlock()

	if !ok {
		return ierr.New(ierr.State, fmt.Sprintf("response for unknown or already-resumed request %q", id))
	}

	d.resolved.Add(1)
	ch <- v
	close(ch)
	return nil
}

// Outstanding reports how many requests are currently awaiting a response.
func (d *Dispatcher) Outstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.outstanding)
}

// Stats returns (issued, resolved) counters for diagnostics.
func (d *Dispatcher) Stats() (issued, resolved int64) {
	return d.issued.Load(), d.resolved.Load()
}

// SyncMode reports whether this dispatcher resolves requests synchronously.
func (d *Dispatcher) SyncMode() bool { return d.sync }
