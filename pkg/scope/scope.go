// Package scope implements lexically nested variable frames: frames form a
// stack with lexical parents, lookup walks up, writes affect the nearest
// enclosing frame that defines the name, and declarations always land in
// the innermost frame.
package scope

import (
	"sync/atomic"

	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Binding is one declared name: its static type, current value, const
// flag, and declared array shape.
type Binding struct {
	Type      string
	Value     value.Value
	Const     bool
	ArrayDims []int
}

// Frame is a single lexical variable table.
type Frame struct {
	parent *Frame
	vars   map[string]*Binding
}

func newFrame(parent *Frame) *Frame {
	return &Frame{parent: parent, vars: make(map[string]*Binding)}
}

// Stack is a push/pop stack of Frames rooted at a long-lived global frame.
// Push/Pop counters are atomic so tests can observe scope balance
// concurrently with a running interpreter without a data race.
type Stack struct {
	top      *Frame
	global   *Frame
	pushes   atomic.Int64
	pops     atomic.Int64
}

// NewStack creates a Stack with a single global Frame.
func NewStack() *Stack {
	g := newFrame(nil)
	return &Stack{top: g, global: g}
}

// Global returns the program-lifetime global frame.
func (s *Stack) Global() *Frame { return s.global }

// Push creates a new frame nested under the current top and makes it the
// new top, for function entry / block entry.
func (s *Stack) Push() {
	s.top = newFrame(s.top)
	s.pushes.Add(1)
}

// Pop discards the current top frame and restores its parent. Callers must
// invoke Pop on every control-flow exit path, including via defer, so
// frame lifetime matches block/function lifetime exactly.
func (s *Stack) Pop() {
	if s.top == nil || s.top.parent == nil {
		return
	}
	s.top = s.top.parent
	s.pops.Add(1)
}

// Balance reports (pushes, pops); at program end these must be equal.
func (s *Stack) Balance() (pushes, pops int64) {
	return s.pushes.Load(), s.pops.Load()
}

// Declare installs a new binding in the innermost (current top) frame.
func (s *Stack) Declare(name string, b Binding) {
	s.top.vars[name] = &b
}

// Lookup walks from the top frame outward to the global frame.
func (s *Stack) Lookup(name string) (*Binding, bool) {
	for f := s.top; f != nil; f = f.parent {
		if b, ok := f.vars[name]; ok {
			return b, true
		}
	}
	return nil, false
}

// Assign writes to the nearest enclosing frame that already defines name.
// It does not create a binding; callers must Declare first.
func (s *Stack) Assign(name string, v value.Value) error {
	for f := s.top; f != nil; f = f.parent {
		if b, ok := f.vars[name]; ok {
			if b.Const {
				return ierr.New(ierr.Type, "assignment to const variable "+name)
			}
			b.Value = v
			return nil
		}
	}
	return ierr.New(ierr.Name, "undefined identifier "+name)
}
