package device

import (
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/tracklab/gatelink/internal/bond"
	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

// fakeTransport records every call the controller makes and lets tests
// inject transport events through the installed callbacks.
type fakeTransport struct {
	mu         sync.Mutex
	cb         transport.Callbacks
	writes     []fakeWrite
	notify     map[string]bool
	scanning   bool
	scanFilter string
}

type fakeWrite struct {
	charID string
	data   []byte
	ack    bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notify: make(map[string]bool)}
}

func (f *fakeTransport) SetCallbacks(cb transport.Callbacks) {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
}

func (f *fakeTransport) callbacks() transport.Callbacks {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeTransport) Scan(serviceFilter string, allowDuplicates bool) error {
	f.mu.Lock()
	f.scanning = true
	f.scanFilter = serviceFilter
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) StopScan() error {
	f.mu.Lock()
	f.scanning = false
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Connect(id string) error           { return nil }
func (f *fakeTransport) CancelConnection(id string) error  { return nil }
func (f *fakeTransport) DiscoverServices(id string) error  { return nil }
func (f *fakeTransport) DiscoverCharacteristics(serviceID string) error {
	return nil
}

func (f *fakeTransport) Write(charID string, data []byte, requireAck bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.writes = append(f.writes, fakeWrite{charID: charID, data: cp, ack: requireAck})
	return nil
}

func (f *fakeTransport) SetNotify(charID string, enabled bool) error {
	f.mu.Lock()
	f.notify[charID] = enabled
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Read(charID string) error { return nil }

// writesTo returns all frames written to one characteristic.
func (f *fakeTransport) writesTo(charID string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, w := range f.writes {
		if w.charID == charID {
			out = append(out, w.data)
		}
	}
	return out
}

// acks returns the sequence numbers of all ack frames, in write order.
func (f *fakeTransport) acks() []uint8 {
	var out []uint8
	for _, frame := range f.writesTo(transport.CommandCharUUID) {
		if len(frame) == 2 && frame[0] == wire.OpAck {
			out = append(out, frame[1])
		}
	}
	return out
}

// --- shared helpers ---

func newTestController(t *testing.T, opts Options) (*Controller, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	c, err := New(ft, bond.NewMemoryStore(), opts)
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	t.Cleanup(c.Close)
	return c, ft
}

// sync flushes the controller's call queue so previously injected
// events have been applied.
func (c *Controller) sync() {
	c.call(func() error { return nil })
}

// gateAdvert builds manufacturer data carrying the gate's company ID.
func gateAdvert() []byte {
	return binary.LittleEndian.AppendUint16(nil, wire.CompanyID)
}

// connectAndBind drives a device through discovery, connection and
// characteristic binding.
func connectAndBind(t *testing.T, c *Controller, ft *fakeTransport, id string) {
	t.Helper()
	cb := ft.callbacks()
	cb.DeviceDiscovered(id, "Gate", -50, gateAdvert())
	if err := c.Connect(id); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	cb.Connected(id)
	cb.ServicesDiscovered(id, nil)
	cb.CharacteristicsDiscovered(transport.GateServiceUUID, nil)
	c.sync()
}

// entryFrame packs a valid directory entry notification.
func entryFrame(name string, size uint32, attrib wire.Attrib) []byte {
	buf := make([]byte, wire.DirEntrySize)
	binary.LittleEndian.PutUint32(buf[2:6], size)
	date, tim := wire.EncodeFATDateTime(time.Date(2024, 5, 25, 12, 0, 0, 0, time.UTC))
	binary.LittleEndian.PutUint16(buf[6:8], date)
	binary.LittleEndian.PutUint16(buf[8:10], tim)
	buf[10] = byte(attrib)
	copy(buf[11:24], name)
	return buf
}

// dataFrame packs a transfer data frame.
func dataFrame(seq uint8, payload []byte) []byte {
	frame := []byte{wire.OpData, seq}
	return append(frame, payload...)
}

// resultFrame packs a timer result notification.
func resultFrame(ts time.Time) []byte {
	buf := make([]byte, wire.TimerResultSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(ts.Year()))
	buf[2] = byte(ts.Month())
	buf[3] = byte(ts.Day())
	buf[4] = byte(ts.Hour())
	buf[5] = byte(ts.Minute())
	buf[6] = byte(ts.Second())
	binary.LittleEndian.PutUint16(buf[7:9], uint16(ts.Nanosecond()/int(time.Millisecond)))
	return buf
}
