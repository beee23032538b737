package device

import (
	"time"

	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

// TimingState is the timer exchange state.
type TimingState int

const (
	TimingIdle TimingState = iota
	TimingCounting
)

func (s TimingState) String() string {
	if s == TimingCounting {
		return "counting"
	}
	return "idle"
}

// timerState holds the timing protocol's session state.
type timerState struct {
	state      TimingState
	lastResult time.Time
}

// TimerState returns the current state and the last accepted result
// timestamp (zero if none was recorded yet).
func (c *Controller) TimerState() (TimingState, time.Time) {
	var st TimingState
	var last time.Time
	c.call(func() error {
		st = c.timer.state
		last = c.timer.lastResult
		return nil
	})
	return st, last
}

// StartTimer arms the gate's timer. The start command is written with a
// transport acknowledgment; the state transitions to counting
// unconditionally on issuing it.
func (c *Controller) StartTimer() error {
	return c.call(func() error {
		if !c.bound[transport.TimerCtrlCharUUID] {
			return ErrNotBound
		}
		err := c.tr.Write(transport.TimerCtrlCharUUID, wire.TimerStart(), true)
		c.timer.state = TimingCounting
		c.publishTimer(time.Time{})
		return err
	})
}

// CancelTimer disarms the gate's timer and returns to idle
// unconditionally.
func (c *Controller) CancelTimer() error {
	return c.call(func() error {
		if !c.bound[transport.TimerCtrlCharUUID] {
			return ErrNotBound
		}
		err := c.tr.Write(transport.TimerCtrlCharUUID, wire.TimerCancel(), true)
		c.timer.state = TimingIdle
		c.publishTimer(time.Time{})
		return err
	})
}

// handleTimerResult processes a timer-result notification. Malformed
// frames and results arriving while idle (stale or duplicate) are
// discarded without any state change.
func (c *Controller) handleTimerResult(data []byte) {
	ts, err := wire.ParseTimingResult(data)
	if err != nil {
		config.Debugf("Discarding timer result: %v", err)
		return
	}
	if c.timer.state != TimingCounting {
		config.Debugf("Discarding stale timer result %v", ts)
		return
	}
	c.timer.lastResult = ts
	c.timer.state = TimingIdle
	c.publishTimer(ts)
}

func (c *Controller) publishTimer(result time.Time) {
	c.bus.Publish(Event{Type: EventTimer, Data: TimerUpdate{
		State:  c.timer.state,
		Result: result,
	}})
}
