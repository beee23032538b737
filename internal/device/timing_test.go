package device

import (
	"testing"
	"time"

	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

func TestTimerStartWritesAckedCommand(t *testing.T) {
	c, ft := newTestController(t, Options{})
	connectAndBind(t, c, ft, "CC")

	if err := c.StartTimer(); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	ft.mu.Lock()
	var found *fakeWrite
	for i := range ft.writes {
		w := &ft.writes[i]
		if w.charID == transport.TimerCtrlCharUUID && len(w.data) == 1 && w.data[0] == wire.OpTimerStart {
			found = w
		}
	}
	ft.mu.Unlock()
	if found == nil {
		t.Fatal("Expected a timer start command")
	}
	if !found.ack {
		t.Error("Expected the start command to request an acknowledgment")
	}

	if st, _ := c.TimerState(); st != TimingCounting {
		t.Errorf("Expected counting state, got %v", st)
	}
}

func TestTimerCancelReturnsToIdle(t *testing.T) {
	c, ft := newTestController(t, Options{})
	connectAndBind(t, c, ft, "CC")

	if err := c.StartTimer(); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}
	if err := c.CancelTimer(); err != nil {
		t.Fatalf("CancelTimer failed: %v", err)
	}
	if st, _ := c.TimerState(); st != TimingIdle {
		t.Errorf("Expected idle state after cancel, got %v", st)
	}
}

func TestTimerResultRecordedWhileCounting(t *testing.T) {
	c, ft := newTestController(t, Options{})
	connectAndBind(t, c, ft, "CC")

	if err := c.StartTimer(); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	ts := time.Date(2024, 5, 25, 14, 30, 12, 250*int(time.Millisecond), time.UTC)
	ft.callbacks().ValueUpdated(transport.TimerResultCharUUID, resultFrame(ts), nil)

	st, last := c.TimerState()
	if st != TimingIdle {
		t.Errorf("Expected idle state after a result, got %v", st)
	}
	if !last.Equal(ts) {
		t.Errorf("Expected result %v, got %v", ts, last)
	}
}

func TestTimerResultDiscardedWhileIdle(t *testing.T) {
	c, ft := newTestController(t, Options{})
	connectAndBind(t, c, ft, "CC")

	ts := time.Date(2024, 5, 25, 14, 30, 12, 0, time.UTC)
	ft.callbacks().ValueUpdated(transport.TimerResultCharUUID, resultFrame(ts), nil)

	st, last := c.TimerState()
	if st != TimingIdle {
		t.Errorf("Expected state to stay idle, got %v", st)
	}
	if !last.IsZero() {
		t.Errorf("Expected no recorded result, got %v", last)
	}
}

func TestTimerResultMalformedDiscarded(t *testing.T) {
	c, ft := newTestController(t, Options{})
	connectAndBind(t, c, ft, "CC")

	if err := c.StartTimer(); err != nil {
		t.Fatalf("StartTimer failed: %v", err)
	}

	// Wrong length and an out-of-range month both get dropped.
	ft.callbacks().ValueUpdated(transport.TimerResultCharUUID, []byte{1, 2, 3}, nil)
	bad := resultFrame(time.Date(2024, 5, 25, 14, 30, 12, 0, time.UTC))
	bad[2] = 13
	ft.callbacks().ValueUpdated(transport.TimerResultCharUUID, bad, nil)

	st, last := c.TimerState()
	if st != TimingCounting {
		t.Errorf("Expected to stay counting, got %v", st)
	}
	if !last.IsZero() {
		t.Errorf("Expected no recorded result, got %v", last)
	}
}

func TestTimerRequiresBinding(t *testing.T) {
	c, _ := newTestController(t, Options{})
	if err := c.StartTimer(); err != ErrNotBound {
		t.Errorf("Expected ErrNotBound from StartTimer, got %v", err)
	}
	if err := c.CancelTimer(); err != ErrNotBound {
		t.Errorf("Expected ErrNotBound from CancelTimer, got %v", err)
	}
}
