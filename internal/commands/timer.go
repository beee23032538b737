package commands

import (
	"fmt"
	"time"

	"github.com/tracklab/gatelink/internal/device"
)

// TimerStart arms the gate's timer.
func TimerStart(s *Session) error {
	if err := s.Controller.StartTimer(); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}
	fmt.Println("Timer armed")
	return nil
}

// TimerCancel disarms the gate's timer.
func TimerCancel(s *Session) error {
	if err := s.Controller.CancelTimer(); err != nil {
		return fmt.Errorf("cancel timer: %w", err)
	}
	fmt.Println("Timer cancelled")
	return nil
}

// TimerWait arms the timer and blocks until the gate reports a crossing
// or the timeout expires. A zero timeout waits forever.
func TimerWait(s *Session, timeout time.Duration) error {
	if err := s.Controller.StartTimer(); err != nil {
		return fmt.Errorf("start timer: %w", err)
	}
	fmt.Println("Timer armed, waiting for crossing...")

	var deadline <-chan time.Time
	if timeout > 0 {
		deadline = time.After(timeout)
	}

	for {
		select {
		case e, ok := <-s.Events():
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			u, isTimer := e.Data.(device.TimerUpdate)
			if e.Type != device.EventTimer || !isTimer {
				continue
			}
			if u.State == device.TimingIdle && !u.Result.IsZero() {
				fmt.Printf("Crossing at %s\n", u.Result.Format("2006-01-02 15:04:05.000"))
				return nil
			}
		case <-deadline:
			s.Controller.CancelTimer()
			return fmt.Errorf("no crossing within %v", timeout)
		}
	}
}
