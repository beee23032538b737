package device

import (
	"errors"
	"time"

	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

// TransferOutcome distinguishes how a download ended.
type TransferOutcome int

const (
	TransferSuccess TransferOutcome = iota
	TransferFailed
	TransferCancelled
)

// TransferResult is handed to the completion callback exactly once.
type TransferResult struct {
	Outcome TransferOutcome
	Name    string
	Data    []byte
	Err     error
}

// transferSession is the single-flight download state: a stop-and-wait
// receiver over an unordered-delivery-risk notify channel, with 8-bit
// wrapping sequence numbers.
type transferSession struct {
	name     string
	expected uint32 // 0 when unknown
	buf      []byte
	nextSeq  uint8
	done     func(TransferResult)
	stall    *time.Timer
}

// progress is accumulated/expected clamped to [0,1]; 0 when the size is
// unknown so the value stays defined and monotone.
func (s *transferSession) progress() float64 {
	if s.expected == 0 {
		return 0
	}
	f := float64(len(s.buf)) / float64(s.expected)
	if f > 1 {
		f = 1
	}
	return f
}

// Download starts a file download from the current remote directory.
// The expected size comes from the most recent listing, matched by leaf
// name (0, i.e. unknown, if absent). done fires exactly once with the
// accumulated bytes or the failure/cancel reason. A second start while
// one is active is rejected with ErrBusy.
func (c *Controller) Download(name string, done func(TransferResult)) error {
	return c.call(func() error {
		if c.connectedID == "" {
			return ErrNotConnected
		}
		if !c.channelsBound() {
			return ErrNotBound
		}
		if c.transfer != nil {
			return ErrBusy
		}

		var expected uint32
		for _, e := range c.listing.entries {
			if e.Name == name && !e.IsDir() {
				expected = e.Size
				break
			}
		}

		c.transfer = &transferSession{
			name:     name,
			expected: expected,
			done:     done,
		}
		c.armStall()

		if err := c.tr.SetNotify(transport.DataCharUUID, true); err != nil {
			c.detachTransfer()
			return err
		}

		path := wirePath(append(append([]string(nil), c.listing.path...), name))
		if err := c.tr.Write(transport.CommandCharUUID, wire.DownloadRequest(path), false); err != nil {
			c.detachTransfer()
			return err
		}

		c.publishProgress()
		return nil
	})
}

// CancelDownload aborts an active download. The device-side abort is
// fire-and-forget; the pending completion resolves as cancelled and the
// handler detaches immediately rather than waiting on the device.
func (c *Controller) CancelDownload() error {
	return c.call(func() error {
		if c.transfer == nil {
			return nil
		}
		if err := c.tr.Write(transport.CommandCharUUID, wire.AbortTransfer(), false); err != nil {
			config.Debugf("Abort write failed: %v", err)
		}
		c.completeTransfer(TransferResult{
			Outcome: TransferCancelled,
			Name:    c.transfer.name,
			Err:     errors.New("cancelled"),
		})
		return nil
	})
}

// handleTransferFrame processes one data-channel notification for the
// active session. Runs on the owning goroutine.
func (c *Controller) handleTransferFrame(data []byte) {
	s := c.transfer
	seq, payload, ok := wire.ParseDataFrame(data)
	if !ok {
		return
	}

	if seq != s.nextSeq {
		// Out-of-order frame: drop without acknowledging and without
		// touching session state. No NACK exists in this protocol; the
		// device resends unacknowledged chunks on its own.
		config.Debugf("Dropping out-of-order frame: seq=%d want=%d", seq, s.nextSeq)
		return
	}

	final := len(payload) == 0
	if !final {
		s.buf = append(s.buf, payload...)
		c.armStall()
		c.publishProgress()
	}

	s.nextSeq++ // wraps at 256 by uint8 arithmetic
	if err := c.tr.Write(transport.CommandCharUUID, wire.Ack(seq), false); err != nil {
		c.failTransfer(err)
		return
	}

	if final {
		c.completeTransfer(TransferResult{
			Outcome: TransferSuccess,
			Name:    s.name,
			Data:    s.buf,
		})
	}
}

func (c *Controller) publishProgress() {
	s := c.transfer
	c.bus.Publish(Event{Type: EventTransferProgress, Data: TransferProgress{
		Name:     s.name,
		Received: len(s.buf),
		Expected: s.expected,
		Fraction: s.progress(),
	}})
}

// armStall (re)starts the optional receiver stall timer.
func (c *Controller) armStall() {
	if c.opts.TransferStallTimeout <= 0 {
		return
	}
	s := c.transfer
	if s.stall != nil {
		s.stall.Stop()
	}
	s.stall = time.AfterFunc(c.opts.TransferStallTimeout, func() {
		c.do(func() {
			if c.transfer == s {
				c.failTransfer(errors.New("transfer stalled"))
			}
		})
	})
}

// failTransfer resolves the active session as failed, if there is one.
func (c *Controller) failTransfer(err error) {
	if c.transfer == nil {
		return
	}
	c.completeTransfer(TransferResult{
		Outcome: TransferFailed,
		Name:    c.transfer.name,
		Err:     err,
	})
}

// completeTransfer detaches the handler, disables the data channel and
// fires the completion exactly once.
func (c *Controller) completeTransfer(result TransferResult) {
	s := c.transfer
	c.detachTransfer()
	if err := c.tr.SetNotify(transport.DataCharUUID, false); err != nil {
		config.Debugf("Failed to disable data notifications: %v", err)
	}
	c.bus.Publish(Event{Type: EventTransferDone, Data: result})
	if s.done != nil {
		s.done(result)
	}
}

func (c *Controller) detachTransfer() {
	if c.transfer != nil && c.transfer.stall != nil {
		c.transfer.stall.Stop()
	}
	c.transfer = nil
}
