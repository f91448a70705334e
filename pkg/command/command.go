// Package command implements the structured, ordered command records a
// running sketch emits, plus the append-only emitter that collects them.
// Each command type has a fixed field order that a host parser depends
// on, so MarshalJSON writes fields through a small per-type writer
// instead of relying on encoding/json's struct-tag order (the stdlib
// encoder has no hook for a caller-chosen key order on one struct).
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

// Type is the command type tag.
type Type string

const (
	PinMode              Type = "PIN_MODE"
	DigitalWrite         Type = "DIGITAL_WRITE"
	AnalogWrite          Type = "ANALOG_WRITE"
	DigitalReadRequest   Type = "DIGITAL_READ_REQUEST"
	AnalogReadRequest    Type = "ANALOG_READ_REQUEST"
	MillisRequest        Type = "MILLIS_REQUEST"
	MicrosRequest        Type = "MICROS_REQUEST"
	Delay                Type = "DELAY"
	DelayMicroseconds    Type = "DELAY_MICROSECONDS"
	SerialBegin          Type = "SERIAL_BEGIN"
	SerialPrint          Type = "SERIAL_PRINT"
	SerialPrintln        Type = "SERIAL_PRINTLN"
	Tone                 Type = "TONE"
	NoTone               Type = "NO_TONE"
	LibraryMethodRequest Type = "LIBRARY_METHOD_REQUEST"
	FunctionCall         Type = "FUNCTION_CALL"
	VarSet               Type = "VAR_SET"
	IfStatement          Type = "IF_STATEMENT"
	LoopStart            Type = "LOOP_START"
	LoopEnd              Type = "LOOP_END"
	SetupStart           Type = "SETUP_START"
	SetupEnd             Type = "SETUP_END"
	ProgramStart         Type = "PROGRAM_START"
	ProgramEnd           Type = "PROGRAM_END"
	VersionInfo          Type = "VERSION_INFO"
	ErrorCmd             Type = "ERROR"
)

// Command is a single emitted record. Only the fields relevant to Type are
// populated; MarshalJSON picks the canonical per-type field order rather
// than Go's declaration order or an alphabetical sort.
type Command struct {
	Type      Type
	Timestamp int64

	Pin         int
	Mode        int
	Value       value.Value
	RequestID   string
	Duration    int
	ActualDelay int
	Variable    string
	IsConst     bool
	Function    string
	Message     string
	Iteration   int
	Completed   bool
	Arguments   []string
	BaudRate    int
	Data        string
	Condition   bool
	Result      string
	Branch      string
	LimitReached bool
	Iterations  int
	Component   string
	VersionTag  string
	Status      string
	Frequency   int
	ErrorKind   string
}

// field is one key/value pair to be written in order.
type field struct {
	key string
	val any
}

// orderedFields returns this command's payload fields (after "type") in
// the fixed order a host parser expects for this Type.
func (c Command) orderedFields() []field {
	switch c.Type {
	case PinMode:
		return []field{{"pin", c.Pin}, {"mode", c.Mode}, {"timestamp", c.Timestamp}}
	case DigitalWrite, AnalogWrite:
		return []field{{"pin", c.Pin}, {"value", jsonValue(c.Value)}, {"timestamp", c.Timestamp}}
	case DigitalReadRequest, AnalogReadRequest:
		return []field{{"pin", c.Pin}, {"requestId", c.RequestID}, {"timestamp", c.Timestamp}}
	case MillisRequest, MicrosRequest:
		return []field{{"requestId", c.RequestID}, {"timestamp", c.Timestamp}}
	case Delay, DelayMicroseconds:
		return []field{{"duration", c.Duration}, {"actualDelay", c.ActualDelay}, {"timestamp", c.Timestamp}}
	case VarSet:
		fs := []field{{"variable", c.Variable}, {"value", jsonValue(c.Value)}, {"timestamp", c.Timestamp}}
		if c.IsConst {
			fs = append(fs, field{"isConst", c.IsConst})
		}
		return fs
	case FunctionCall:
		return []field{{"function", c.Function}, {"message", c.Message}, {"iteration", c.Iteration}, {"completed", c.Completed}, {"timestamp", c.Timestamp}}
	case SerialBegin:
		return []field{{"function", c.Function}, {"arguments", c.Arguments}, {"baudRate", c.BaudRate}, {"timestamp", c.Timestamp}, {"message", c.Message}}
	case SerialPrint, SerialPrintln:
		return []field{{"function", c.Function}, {"arguments", c.Arguments}, {"data", c.Data}, {"timestamp", c.Timestamp}, {"message", c.Message}}
	case IfStatement:
		return []field{{"condition", c.Condition}, {"result", c.Result}, {"branch", c.Branch}, {"timestamp", c.Timestamp}}
	case LoopStart, LoopEnd:
		fs := []field{{"function", c.Function}, {"iteration", c.Iteration}}
		if c.LimitReached {
			fs = append(fs, field{"limitReached", c.LimitReached}, field{"iterations", c.Iterations})
		}
		fs = append(fs, field{"timestamp", c.Timestamp}, field{"message", c.Message})
		return fs
	case VersionInfo:
		return []field{{"component", c.Component}, {"version", c.VersionTag}, {"status", c.Status}, {"timestamp", c.Timestamp}}
	case ProgramStart, ProgramEnd, SetupStart, SetupEnd:
		return []field{{"message", c.Message}, {"timestamp", c.Timestamp}}
	case Tone:
		return []field{{"pin", c.Pin}, {"frequency", c.Frequency}, {"duration", c.Duration}, {"timestamp", c.Timestamp}}
	case NoTone:
		return []field{{"pin", c.Pin}, {"timestamp", c.Timestamp}}
	case LibraryMethodRequest:
		return []field{{"requestId", c.RequestID}, {"function", c.Function}, {"arguments", c.Arguments}, {"timestamp", c.Timestamp}}
	case ErrorCmd:
		return []field{{"kind", c.ErrorKind}, {"message", c.Message}, {"timestamp", c.Timestamp}}
	default:
		return []field{{"timestamp", c.Timestamp}}
	}
}

func jsonValue(v value.Value) any {
	switch v.Kind {
	case value.KindVoid:
		return nil
	case value.KindBool:
		return v.Bool()
	case value.KindFloat32, value.KindFloat64:
		return v.Float64()
	case value.KindString:
		return v.String()
	default:
		return v.Int64()
	}
}

// MarshalJSON writes {"type": ..., <ordered fields>}. Arrays are
// pretty-printed one element per line; everything else is compact.
func (c Command) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	typeJSON, err := json.Marshal(string(c.Type))
	if err != nil {
		return nil, err
	}
	buf.WriteString(`"type":`)
	buf.Write(typeJSON)

	for _, f := range c.orderedFields() {
		buf.WriteByte(',')
		keyJSON, _ := json.Marshal(f.key)
		buf.Write(keyJSON)
		buf.WriteByte(':')
		valJSON, err := marshalFieldValue(f.val)
		if err != nil {
			return nil, fmt.Errorf("command: marshal field %s: %w", f.key, err)
		}
		buf.Write(valJSON)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalFieldValue(v any) ([]byte, error) {
	if arr, ok := v.([]string); ok {
		return marshalPrettyArray(arr)
	}
	return json.Marshal(v)
}

// marshalPrettyArray renders one element per line: arguments arrays in
// command payloads are pretty-printed rather than packed onto one line.
func marshalPrettyArray(arr []string) ([]byte, error) {
	if len(arr) == 0 {
		return []byte("[]"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("[\n")
	for i, s := range arr {
		elemJSON, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		buf.WriteString("  ")
		buf.Write(elemJSON)
		if i != len(arr)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// Emitter is an append-only, mutex-protected command stream with a
// monotonic logical clock: there is no wall-clock timer, so Timestamp is
// just the Nth command emitted this session.
type Emitter struct {
	mu       sync.Mutex
	commands []Command
	clock    int64
	listener func(Command)
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// SetListener installs a sink invoked synchronously on every Emit, per the
// host API's setCommandListener.
func (e *Emitter) SetListener(cb func(Command)) {
	e.mu.Lock()
	e.listener = cb
	e.mu.Unlock()
}

// Emit appends cmd after stamping it with the next logical timestamp,
// which never decreases across successive calls.
func (e *Emitter) Emit(cmd Command) Command {
	e.mu.Lock()
	e.clock++
	cmd.Timestamp = e.clock
	e.commands = append(e.commands, cmd)
	listener := e.listener
	e.mu.Unlock()

	if listener != nil {
		listener(cmd)
	}
	return cmd
}

// Commands returns a copy of the full stream collected so far.
func (e *Emitter) Commands() []Command {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Command, len(e.commands))
	copy(out, e.commands)
	return out
}

// Len reports how many commands have been emitted.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.commands)
}
