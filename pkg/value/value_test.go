package value

import "testing"

func TestPromote(t *testing.T) {
	tests := []struct {
		a, b Kind
		want Kind
	}{
		{KindInt32, KindInt32, KindInt32},
		{KindInt32, KindInt64, KindInt64},
		{KindInt32, KindFloat32, KindFloat32},
		{KindFloat32, KindFloat64, KindFloat64},
		{KindUint32, KindInt32, KindUint32},
	}
	for _, tt := range tests {
		if got := Promote(tt.a, tt.b); got != tt.want {
			t.Errorf("Promote(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestWrapInt32Overflow(t *testing.T) {
	// integer overflow wraps at the declared width.
	got := WrapInt32(int64(1<<31) + 5)
	want := int32(-2147483643)
	if got != want {
		t.Errorf("WrapInt32 overflow = %d, want %d", got, want)
	}
}

func TestArrayCopyIsolation(t *testing.T) {
	src := []Value{Int32(1), Int32(2), Int32(3)}
	arr := Array(src)
	src[0] = Int32(99)
	got, _ := arr.At(0)
	if got.Int64() != 1 {
		t.Errorf("Array did not clone backing slice: At(0) = %d, want 1 (mutation of caller slice leaked)", got.Int64())
	}
}

func TestWithAtDoesNotMutateOriginal(t *testing.T) {
	arr := Array([]Value{Int32(1), Int32(2)})
	updated, ok := arr.WithAt(0, Int32(42))
	if !ok {
		t.Fatal("WithAt returned ok=false for valid index")
	}
	origVal, _ := arr.At(0)
	newVal, _ := updated.At(0)
	if origVal.Int64() != 1 {
		t.Errorf("original array mutated: At(0) = %d, want 1", origVal.Int64())
	}
	if newVal.Int64() != 42 {
		t.Errorf("updated array At(0) = %d, want 42", newVal.Int64())
	}
}

func TestWithAtOutOfRange(t *testing.T) {
	arr := Array([]Value{Int32(1)})
	if _, ok := arr.WithAt(5, Int32(0)); ok {
		t.Error("WithAt(5, ...) on a 1-element array should report out of range")
	}
}

func TestBoolConversions(t *testing.T) {
	if Int32(0).Bool() {
		t.Error("Int32(0).Bool() should be false")
	}
	if !Int32(1).Bool() {
		t.Error("Int32(1).Bool() should be true")
	}
	if String("").Bool() {
		t.Error(`String("").Bool() should be false`)
	}
}

func TestFloat64Int64Conversion(t *testing.T) {
	v := Float64(3.9)
	if v.Int64() != 3 {
		t.Errorf("Float64(3.9).Int64() = %d, want 3 (truncation)", v.Int64())
	}
}
