package dispatch

import (
	"testing"
	"time"

	"github.com/sfranzyshen-go/coreinterp/pkg/value"
)

func TestIssueWaitHandleResponseRoundTrip(t *testing.T) {
	d := New(nil)
	id := d.Issue()
	if id == "" {
		t.Fatal("Issue returned empty id")
	}
	if d.Outstanding() != 1 {
		t.Fatalf("Outstanding() = %d, want 1", d.Outstanding())
	}

	resultCh := make(chan value.Value, 1)
	go func() {
		resultCh <- d.Wait("analogRead", id, nil)
	}()

	time.Sleep(10 * time.Millisecond) // give Wait time to start blocking
	if err := d.HandleResponse(id, value.Int32(512)); err != nil {
		t.Fatalf("HandleResponse: %v", err)
	}

	select {
	case v := <-resultCh:
		if v.Int64() != 512 {
			t.Errorf("Wait returned %d, want 512", v.Int64())
		}
	case <-time.After(time.Second):
		t.Fatal("Wait did not unblock after HandleResponse")
	}

	if d.Outstanding() != 0 {
		t.Errorf("Outstanding() after resolution = %d, want 0", d.Outstanding())
	}
}

func TestHandleResponseUnknownID(t *testing.T) {
	d := New(nil)
	if err := d.HandleResponse("never-issued", value.Int32(0)); err == nil {
		t.Error("HandleResponse with an unknown id should fail")
	}
}

func TestHandleResponseDuplicateDelivery(t *testing.T) {
	d := New(nil)
	id := d.Issue()
	go func() { d.Wait("millis", id, nil) }()
	time.Sleep(10 * time.Millisecond)

	if err := d.HandleResponse(id, value.Int32(1)); err != nil {
		t.Fatalf("first HandleResponse: %v", err)
	}
	if err := d.HandleResponse(id, value.Int32(2)); err == nil {
		t.Error("second HandleResponse for the same id should fail (recoverable StateError)")
	}
}

func TestSyncModeResolvesImmediately(t *testing.T) {
	d := NewSync(func(kind string, args []value.Value) value.Value {
		if kind == "digitalRead" {
			return value.Int32(1)
		}
		return value.Int32(0)
	})
	id := d.Issue()
	v := d.Wait("digitalRead", id, nil)
	if v.Int64() != 1 {
		t.Errorf("sync Wait = %d, want 1", v.Int64())
	}
	if !d.SyncMode() {
		t.Error("SyncMode() should report true for a NewSync dispatcher")
	}
	if d.Outstanding() != 0 {
		t.Error("a sync dispatcher should never report outstanding requests")
	}
}

func TestCoercerApplied(t *testing.T) {
	d := New(func(kind string, v value.Value) value.Value {
		return value.Int32(int32(v.Int64()) & 0x3FF) // analogRead range clamp, e.g.
	})
	id := d.Issue()
	go d.HandleResponse(id, value.Int32(5000))
	v := d.Wait("analogRead", id, nil)
	if v.Int64() != 5000&0x3FF {
		t.Errorf("coerced value = %d, want %d", v.Int64(), 5000&0x3FF)
	}
}

func TestStats(t *testing.T) {
	d := New(nil)
	id1, id2 := d.Issue(), d.Issue()
	d.HandleResponse(id1, value.Int32(0))
	issued, resolved := d.Stats()
	if issued != 2 {
		t.Errorf("issued = %d, want 2", issued)
	}
	if resolved != 1 {
		t.Errorf("resolved = %d, want 1", resolved)
	}
	_ = id2
}
