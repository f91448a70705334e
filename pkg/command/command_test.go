package command

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

func TestVarSetFieldOrder(t *testing.T) {
	c := Command{Type: VarSet, Variable: "ledPin", Value: value.Int32(13), Timestamp: 1}
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"type"`, `"variable"`, `"value"`, `"timestamp"`} {
		if !strings.Contains(s, want) {
			t.Fatalf("output %s missing key %s", s, want)
		}
	}
	// keys must appear in declared order, not sorted alphabetically.
	typeIdx := strings.Index(s, `"type"`)
	varIdx := strings.Index(s, `"variable"`)
	valIdx := strings.Index(s, `"value"`)
	tsIdx := strings.Index(s, `"timestamp"`)
	if !(typeIdx < varIdx && varIdx < valIdx && valIdx < tsIdx) {
		t.Errorf("field order wrong, got %s", s)
	}
}

func TestSerialPrintlnFields(t *testing.T) {
	c := Command{
		Type: SerialPrintln, Function: "Serial.println", Arguments: []string{"975"},
		Data: "975", Timestamp: 4, Message: "serial output",
	}
	var decoded map[string]any
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("re-decode: %v", err)
	}
	if decoded["type"] != "SERIAL_PRINTLN" {
		t.Errorf("type = %v, want SERIAL_PRINTLN", decoded["type"])
	}
	if decoded["data"] != "975" {
		t.Errorf("data = %v, want 975", decoded["data"])
	}
}

func TestArgumentsPrettyPrinted(t *testing.T) {
	c := Command{Type: SerialBegin, Function: "Serial.begin", Arguments: []string{"9600"}, BaudRate: 9600, Timestamp: 1}
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, "[\n  \"9600\"\n]") {
		t.Errorf("expected arguments array pretty-printed one element per line, got %s", s)
	}
}

func TestEmptyArgumentsArray(t *testing.T) {
	c := Command{Type: SerialBegin, Function: "Serial.begin", Arguments: nil, BaudRate: 9600, Timestamp: 1}
	b, err := c.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !strings.Contains(string(b), `"arguments":[]`) {
		t.Errorf("expected empty arguments array as [], got %s", string(b))
	}
}

func TestEmitterMonotonicTimestamps(t *testing.T) {
	e := NewEmitter()
	first := e.Emit(Command{Type: PinMode, Pin: 13, Mode: 1})
	second := e.Emit(Command{Type: DigitalWrite, Pin: 13})
	if second.Timestamp <= first.Timestamp {
		t.Errorf("timestamps not monotonically increasing: %d then %d", first.Timestamp, second.Timestamp)
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d, want 2", e.Len())
	}
}

func TestEmitterListenerInvoked(t *testing.T) {
	e := NewEmitter()
	var seen []Type
	e.SetListener(func(c Command) { seen = append(seen, c.Type) })
	e.Emit(Command{Type: ProgramStart})
	e.Emit(Command{Type: ProgramEnd})
	if len(seen) != 2 || seen[0] != ProgramStart || seen[1] != ProgramEnd {
		t.Errorf("listener saw %v, want [PROGRAM_START PROGRAM_END]", seen)
	}
}

func TestCommandsReturnsCopy(t *testing.T) {
	e := NewEmitter()
	e.Emit(Command{Type: ProgramStart})
	snapshot := e.Commands()
	e.Emit(Command{Type: ProgramEnd})
	if len(snapshot) != 1 {
		t.Errorf("Commands() snapshot mutated after further Emit calls: len = %d, want 1", len(snapshot))
	}
}
