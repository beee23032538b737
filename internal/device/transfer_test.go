package device

import (
	"bytes"
	"testing"
	"time"

	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

// startDownload binds a device, primes the listing with one file entry
// and starts a download for it.
func startDownload(t *testing.T, c *Controller, ft *fakeTransport, name string, size uint32) chan TransferResult {
	t.Helper()
	connectAndBind(t, c, ft, "CC")
	ft.callbacks().ValueUpdated(transport.DataCharUUID, entryFrame(name, size, 0), nil)
	c.sync()

	results := make(chan TransferResult, 1)
	if err := c.Download(name, func(r TransferResult) { results <- r }); err != nil {
		t.Fatalf("Download failed to start: %v", err)
	}
	return results
}

func waitResult(t *testing.T, results chan TransferResult) TransferResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for transfer completion")
		return TransferResult{}
	}
}

func TestDownloadInOrder(t *testing.T) {
	c, ft := newTestController(t, Options{})
	results := startDownload(t, c, ft, "RUN.CSV", 12)
	cb := ft.callbacks()

	p0 := []byte("aaaa")
	p1 := []byte("bbbb")
	p2 := []byte("cccc")
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(0, p0), nil)
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(1, p1), nil)
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(2, p2), nil)
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(3, nil), nil)

	r := waitResult(t, results)
	if r.Outcome != TransferSuccess {
		t.Fatalf("Expected success, got %v (%v)", r.Outcome, r.Err)
	}
	want := append(append(append([]byte(nil), p0...), p1...), p2...)
	if !bytes.Equal(r.Data, want) {
		t.Errorf("Expected data %q, got %q", want, r.Data)
	}

	// One ack per frame, in order, including the final empty frame.
	acks := ft.acks()
	wantAcks := []uint8{0, 1, 2, 3}
	if len(acks) != len(wantAcks) {
		t.Fatalf("Expected %d acks, got %d (%v)", len(wantAcks), len(acks), acks)
	}
	for i, seq := range wantAcks {
		if acks[i] != seq {
			t.Errorf("Ack %d: expected seq %d, got %d", i, seq, acks[i])
		}
	}
}

func TestDownloadRequestFrame(t *testing.T) {
	c, ft := newTestController(t, Options{})
	startDownload(t, c, ft, "RUN.CSV", 12)

	var req []byte
	for _, frame := range ft.writesTo(transport.CommandCharUUID) {
		if frame[0] == wire.OpDownload {
			req = frame
		}
	}
	if req == nil {
		t.Fatal("Expected a download request")
	}
	if string(req[9:]) != "/RUN.CSV" {
		t.Errorf("Expected path '/RUN.CSV', got '%s'", string(req[9:]))
	}
}

func TestDownloadOutOfOrderDiscarded(t *testing.T) {
	c, ft := newTestController(t, Options{})
	results := startDownload(t, c, ft, "RUN.CSV", 8)
	cb := ft.callbacks()

	cb.ValueUpdated(transport.DataCharUUID, dataFrame(0, []byte("aaaa")), nil)
	// seq 2 while expecting 1: dropped, no ack, no buffer mutation.
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(2, []byte("XXXX")), nil)
	// The retransmitted in-order frame is accepted normally.
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(1, []byte("bbbb")), nil)
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(2, nil), nil)

	r := waitResult(t, results)
	if r.Outcome != TransferSuccess {
		t.Fatalf("Expected success, got %v (%v)", r.Outcome, r.Err)
	}
	if string(r.Data) != "aaaabbbb" {
		t.Errorf("Expected 'aaaabbbb', got %q", r.Data)
	}

	acks := ft.acks()
	wantAcks := []uint8{0, 1, 2}
	if len(acks) != len(wantAcks) {
		t.Fatalf("Expected acks %v, got %v", wantAcks, acks)
	}
	for i := range wantAcks {
		if acks[i] != wantAcks[i] {
			t.Errorf("Ack %d: expected %d, got %d", i, wantAcks[i], acks[i])
		}
	}
}

func TestDownloadSequenceWraps(t *testing.T) {
	c, ft := newTestController(t, Options{})
	results := startDownload(t, c, ft, "RUN.CSV", 256)
	cb := ft.callbacks()

	// 256 one-byte frames exhaust the 8-bit sequence space; the frame
	// after seq 255 is seq 0 again.
	for i := 0; i < 256; i++ {
		cb.ValueUpdated(transport.DataCharUUID, dataFrame(uint8(i), []byte{byte(i)}), nil)
	}
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(0, nil), nil)

	r := waitResult(t, results)
	if r.Outcome != TransferSuccess {
		t.Fatalf("Expected success, got %v (%v)", r.Outcome, r.Err)
	}
	if len(r.Data) != 256 {
		t.Fatalf("Expected 256 bytes, got %d", len(r.Data))
	}
	for i, b := range r.Data {
		if b != byte(i) {
			t.Fatalf("Byte %d: expected %d, got %d", i, i, b)
		}
	}

	acks := ft.acks()
	if len(acks) != 257 {
		t.Fatalf("Expected 257 acks, got %d", len(acks))
	}
	if acks[255] != 255 || acks[256] != 0 {
		t.Errorf("Expected acks to wrap 255 to 0, got %d then %d", acks[255], acks[256])
	}
}

func TestDownloadProgressBounds(t *testing.T) {
	c, ft := newTestController(t, Options{})
	events, unsub := c.Events()
	defer unsub()

	// Unknown size: the file is absent from the listing.
	connectAndBind(t, c, ft, "CC")
	results := make(chan TransferResult, 1)
	if err := c.Download("MISSING.BIN", func(r TransferResult) { results <- r }); err != nil {
		t.Fatalf("Download failed to start: %v", err)
	}
	cb := ft.callbacks()
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(0, []byte("abc")), nil)
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(1, nil), nil)
	waitResult(t, results)

	last := -1.0
	for {
		var e Event
		select {
		case e = <-events:
		case <-time.After(100 * time.Millisecond):
			return
		}
		p, ok := e.Data.(TransferProgress)
		if !ok {
			continue
		}
		if p.Fraction < 0 || p.Fraction > 1 {
			t.Errorf("Progress out of bounds: %v", p.Fraction)
		}
		if p.Fraction < last {
			t.Errorf("Progress went backwards: %v after %v", p.Fraction, last)
		}
		last = p.Fraction
	}
}

func TestDownloadSingleFlight(t *testing.T) {
	c, ft := newTestController(t, Options{})
	startDownload(t, c, ft, "RUN.CSV", 12)

	if err := c.Download("OTHER.CSV", func(TransferResult) {}); err != ErrBusy {
		t.Errorf("Expected ErrBusy for second download, got %v", err)
	}
}

func TestDownloadRequiresConnection(t *testing.T) {
	c, _ := newTestController(t, Options{})
	if err := c.Download("RUN.CSV", func(TransferResult) {}); err != ErrNotConnected {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestCancelResolvesCompletion(t *testing.T) {
	c, ft := newTestController(t, Options{})
	results := startDownload(t, c, ft, "RUN.CSV", 12)
	cb := ft.callbacks()

	cb.ValueUpdated(transport.DataCharUUID, dataFrame(0, []byte("aaaa")), nil)
	if err := c.CancelDownload(); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	r := waitResult(t, results)
	if r.Outcome != TransferCancelled {
		t.Fatalf("Expected cancelled outcome, got %v", r.Outcome)
	}

	// The abort frame went out.
	var aborted bool
	for _, frame := range ft.writesTo(transport.CommandCharUUID) {
		if len(frame) == 1 && frame[0] == wire.OpAbort {
			aborted = true
		}
	}
	if !aborted {
		t.Error("Expected abort frame to be written")
	}

	// The handler is detached: further frames do nothing and a new
	// download may start.
	cb.ValueUpdated(transport.DataCharUUID, dataFrame(1, []byte("bbbb")), nil)
	c.sync()
	if err := c.Download("RUN.CSV", func(TransferResult) {}); err != nil {
		t.Errorf("Expected new download after cancel, got %v", err)
	}
}

func TestTransferStallTimeout(t *testing.T) {
	c, ft := newTestController(t, Options{TransferStallTimeout: 30 * time.Millisecond})
	results := startDownload(t, c, ft, "RUN.CSV", 12)

	ft.callbacks().ValueUpdated(transport.DataCharUUID, dataFrame(0, []byte("aaaa")), nil)

	r := waitResult(t, results)
	if r.Outcome != TransferFailed {
		t.Fatalf("Expected failure from stall timeout, got %v", r.Outcome)
	}
	if r.Err == nil {
		t.Error("Expected a stall error")
	}
}

func TestDisconnectFailsActiveTransfer(t *testing.T) {
	c, ft := newTestController(t, Options{})
	results := startDownload(t, c, ft, "RUN.CSV", 12)

	ft.callbacks().Disconnected("CC", nil)

	r := waitResult(t, results)
	if r.Outcome != TransferFailed {
		t.Fatalf("Expected failure on disconnect, got %v", r.Outcome)
	}
}
