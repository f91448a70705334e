// Package builtins implements the Arduino primitive library: pin mode/read/
// write, tone, delay, millis/micros, and Serial.begin/print/println. Other
// library method calls are not handled here; the engine issues them as
// LIBRARY_METHOD_REQUEST commands. Each entry is a command factory registered into a lookup table at
// init(), rather than dispatched through a runtime type switch.
package builtins

import (
	"fmt"

	"github.com/sfranzyshen-go/coreinterp/pkg/command"
	"github.com/sfranzyshen-go/coreinterp/pkg/ierr"
	"github.com/sfranzyshen-go/coreinterp/pkg/scope"
	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Env is the minimal surface a builtin needs from the execution context.
// It is satisfied structurally by *rt.Context, so builtins does not import
// rt and can be exercised against any small fake environment.
type Env interface {
	Emit(cmd command.Command) command.Command
	IssueRequest(kind string) string
	AwaitResponse(kind, id string, args []value.Value) value.Value
	ScopeStack() *scope.Stack
	SyncMode() bool
}

// Builtin is a command factory: evaluated arguments in, a Value (possibly
// obtained via suspension) or void out.
type Builtin func(args []value.Value, env Env) (value.Value, error)

// Registry maps Arduino primitive names to their Builtin implementation.
var Registry = map[string]Builtin{}

func register(name string, fn Builtin) { Registry[name] = fn }

// Lookup returns the Builtin for name, or (nil, false) if name is not a
// recognised Arduino primitive — callers then fall through to
// user-defined function lookup.
func Lookup(name string) (Builtin, bool) {
	fn, ok := Registry[name]
	return fn, ok
}

func intArg(args []value.Value, i int) int {
	if i >= len(args) {
		return 0
	}
	return int(args[i].Int64())
}

func init() {
	register("pinMode", func(args []value.Value, env Env) (value.Value, error) {
		if len(args) < 2 {
			return value.Void, ierr.New(ierr.Type, "pinMode requires (pin, mode)")
		}
		env.Emit(command.Command{Type: command.PinMode, Pin: intArg(args, 0), Mode: intArg(args, 1)})
		return value.Void, nil
	})

	register("digitalWrite", func(args []value.Value, env Env) (value.Value, error) {
		if len(args) < 2 {
			return value.Void, ierr.New(ierr.Type, "digitalWrite requires (pin, value)")
		}
		env.Emit(command.Command{Type: command.DigitalWrite, Pin: intArg(args, 0), Value: value.Int32(int32(intArg(args, 1)))})
		return value.Void, nil
	})

	register("analogWrite", func(args []value.Value, env Env) (value.Value, error) {
		if len(args) < 2 {
			return value.Void, ierr.New(ierr.Type, "analogWrite requires (pin, value)")
		}
		env.Emit(command.Command{Type: command.AnalogWrite, Pin: intArg(args, 0), Value: value.Int32(int32(intArg(args, 1)))})
		return value.Void, nil
	})

	register("digitalRead", func(args []value.Value, env Env) (value.Value, error) {
		if len(args) < 1 {
			return value.Void, ierr.New(ierr.Type, "digitalRead requires (pin)")
		}
		pin := intArg(args, 0)
		id := env.IssueRequest("digitalRead")
		env.Emit(command.Command{Type: command.DigitalReadRequest, Pin: pin, RequestID: id})
		resp := env.AwaitResponse("digitalRead", id, args)
		return value.Int32(int32(resp.Int64())), nil
	})

	register("analogRead", func(args []value.Value, env Env) (value.Value, error) {
		if len(args) < 1 {
			return value.Void, ierr.New(ierr.Type, "analogRead requires (pin)")
		}
		pin := intArg(args, 0)
		id := env.IssueRequest("analogRead")
		env.Emit(command.Command{Type: command.AnalogReadRequest, Pin: pin, RequestID: id})
		resp := env.AwaitResponse("analogRead", id, args)
		return value.Int32(int32(resp.Int64())), nil
	})

	register("millis", func(args []value.Value, env Env) (value.Value, error) {
		id := env.IssueRequest("millis")
		env.Emit(command.Command{Type: command.MillisRequest, RequestID: id})
		resp := env.AwaitResponse("millis", id, args)
		return value.Uint32(uint32(resp.Int64())), nil
	})

	register("micros", func(args []value.Value, env Env) (value.Value, error) {
		id := env.IssueRequest("micros")
		env.Emit(command.Command{Type: command.MicrosRequest, RequestID: id})
		resp := env.AwaitResponse("micros", id, args)
		return value.Uint32(uint32(resp.Int64())), nil
	})

	register("delay", func(args []value.Value, env Env) (value.Value, error) {
		d := intArg(args, 0)
		env.Emit(command.Command{Type: command.Delay, Duration: d, ActualDelay: d})
		return value.Void, nil
	})

	register("delayMicroseconds", func(args []value.Value, env Env) (value.Value, error) {
		d := intArg(args, 0)
		env.Emit(command.Command{Type: command.DelayMicroseconds, Duration: d, ActualDelay: d})
		return value.Void, nil
	})

	register("tone", func(args []value.Value, env Env) (value.Value, error) {
		pin := intArg(args, 0)
		freq := intArg(args, 1)
		dur := 0
		if len(args) >= 3 {
			dur = intArg(args, 2)
		}
		env.Emit(command.Command{Type: command.Tone, Pin: pin, Frequency: freq, Duration: dur})
		return value.Void, nil
	})

	register("noTone", func(args []value.Value, env Env) (value.Value, error) {
		env.Emit(command.Command{Type: command.NoTone, Pin: intArg(args, 0)})
		return value.Void, nil
	})

	register("Serial.begin", func(args []value.Value, env Env) (value.Value, error) {
		baud := intArg(args, 0)
		env.Emit(command.Command{
			Type:      command.SerialBegin,
			Function:  "Serial.begin",
			Arguments: argStrings(args),
			BaudRate:  baud,
			Message:   fmt.Sprintf("Serial.begin(%d)", baud),
		})
		return value.Void, nil
	})

	register("Serial.print", func(args []value.Value, env Env) (value.Value, error) {
		data := argString(args, 0)
		env.Emit(command.Command{
			Type: command.SerialPrint, Function: "Serial.print", Arguments: argStrings(args),
			Data: data, Message: fmt.Sprintf("Serial.print(%s)", data),
		})
		return value.Void, nil
	})

	register("Serial.println", func(args []value.Value, env Env) (value.Value, error) {
		data := argString(args, 0)
		env.Emit(command.Command{
			Type: command.SerialPrintln, Function: "Serial.println", Arguments: argStrings(args),
			Data: data, Message: fmt.Sprintf("Serial.println(%s)", data),
		})
		return value.Void, nil
	})
}

func argString(args []value.Value, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i].String()
}

func argStrings(args []value.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a.String()
	}
	return out
}
