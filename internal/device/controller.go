// Package device implements the connection and discovery controller for
// the timing gate, and the three exchanges it multiplexes over the
// gate's shared command/data characteristic pair: directory listing,
// chunked file download, and the timer start/cancel/result protocol.
//
// All protocol and registry state is owned by a single goroutine; every
// transport callback and public call is marshalled onto it, so observers
// never see torn state. Nothing here blocks on the radio: writes are
// fire-and-forget and responses arrive later as inbound events.
package device

import (
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/tracklab/gatelink/internal/bond"
	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

var (
	// ErrBusy is returned when an exchange is already outstanding on the
	// shared channel (one listing request, one download at a time).
	ErrBusy = errors.New("another exchange is in progress")

	// ErrNotConnected is returned for operations that need a live link.
	ErrNotConnected = errors.New("not connected")

	// ErrNotBound is returned before characteristic discovery completes.
	ErrNotBound = errors.New("characteristics not bound")

	// ErrClosed is returned after the controller shuts down.
	ErrClosed = errors.New("controller closed")
)

// DefaultDisappearanceDelay is how long an unbonded device may go unseen
// before its registry entry is pruned.
const DefaultDisappearanceDelay = 500 * time.Millisecond

// DeviceRecord is one registry entry, unique by identifier.
type DeviceRecord struct {
	ID        string
	Name      string
	RSSI      int16
	Connected bool
	Bonded    bool
}

// Options tunes controller behaviour. Zero values select defaults.
type Options struct {
	// DisappearanceDelay overrides the pruning window for unbonded
	// devices (tests use a short one).
	DisappearanceDelay time.Duration

	// TransferStallTimeout, when non-zero, fails a download if no
	// in-sequence frame arrives within the window. Off by default: the
	// device is responsible for retransmission and the stock protocol
	// carries no receiver timeout.
	TransferStallTimeout time.Duration
}

// Controller owns the device registry, the bonding policy, and the three
// protocol state machines, and routes inbound notifications to them.
type Controller struct {
	tr    transport.Transport
	bonds bond.Store
	opts  Options
	bus   *Bus

	calls chan func()
	done  chan struct{}
	once  sync.Once

	// Everything below is owned by the run loop.
	registry    map[string]*DeviceRecord
	timers      map[string]*time.Timer
	bonded      map[string]struct{}
	connectedID string
	bound       map[string]bool

	listing  listingState
	transfer *transferSession
	timer    timerState
}

// New creates a controller, loads the persisted bond set, installs the
// transport callbacks and starts the owning goroutine.
func New(tr transport.Transport, bonds bond.Store, opts Options) (*Controller, error) {
	if opts.DisappearanceDelay == 0 {
		opts.DisappearanceDelay = DefaultDisappearanceDelay
	}

	bonded, err := bonds.LoadIdentifiers()
	if err != nil {
		return nil, err
	}

	c := &Controller{
		tr:       tr,
		bonds:    bonds,
		opts:     opts,
		bus:      NewBus(),
		calls:    make(chan func(), 64),
		done:     make(chan struct{}),
		registry: make(map[string]*DeviceRecord),
		timers:   make(map[string]*time.Timer),
		bonded:   bonded,
		bound:    make(map[string]bool),
	}

	tr.SetCallbacks(transport.Callbacks{
		DeviceDiscovered: func(id, name string, rssi int16, mfr []byte) {
			c.do(func() { c.handleDiscovered(id, name, rssi, mfr) })
		},
		Connected: func(id string) {
			c.do(func() { c.handleConnected(id) })
		},
		Disconnected: func(id string, err error) {
			c.do(func() { c.handleDisconnected(id, err) })
		},
		ServicesDiscovered: func(id string, err error) {
			c.do(func() { c.handleServicesDiscovered(id, err) })
		},
		CharacteristicsDiscovered: func(serviceID string, err error) {
			c.do(func() { c.handleCharacteristicsDiscovered(serviceID, err) })
		},
		ValueUpdated: func(charID string, data []byte, err error) {
			c.do(func() { c.handleValueUpdated(charID, data, err) })
		},
	})

	go c.run()
	return c, nil
}

// Events returns a subscription to the controller's state changes.
func (c *Controller) Events() (<-chan Event, func()) {
	return c.bus.Subscribe()
}

// Close stops the owning goroutine. Pending completions are not invoked.
func (c *Controller) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Controller) run() {
	for {
		select {
		case f := <-c.calls:
			f()
		case <-c.done:
			for _, t := range c.timers {
				t.Stop()
			}
			return
		}
	}
}

// do marshals f onto the owning goroutine.
func (c *Controller) do(f func()) {
	select {
	case c.calls <- f:
	case <-c.done:
	}
}

// call runs f on the owning goroutine and waits for its result.
func (c *Controller) call(f func() error) error {
	errc := make(chan error, 1)
	c.do(func() { errc <- f() })
	select {
	case err := <-errc:
		return err
	case <-c.done:
		return ErrClosed
	}
}

// --- Scanning and registry ---

// StartScan begins discovery, filtered to the gate service. Duplicate
// sightings are required so RSSI refreshes and the disappearance timers
// keep getting re-armed.
func (c *Controller) StartScan() error {
	return c.tr.Scan(transport.GateServiceUUID, true)
}

// StopScan stops discovery. Registry entries are kept; unbonded ones
// fall out when their disappearance timers fire.
func (c *Controller) StopScan() error {
	return c.tr.StopScan()
}

// Devices returns a snapshot of the registry.
func (c *Controller) Devices() []DeviceRecord {
	var out []DeviceRecord
	c.call(func() error {
		out = make([]DeviceRecord, 0, len(c.registry))
		for _, rec := range c.registry {
			out = append(out, *rec)
		}
		return nil
	})
	return out
}

func (c *Controller) handleDiscovered(id, name string, rssi int16, mfr []byte) {
	_, isBonded := c.bonded[id]

	// A sighting qualifies if the device is already bonded or advertises
	// the gate's manufacturer identifier.
	if !isBonded {
		if len(mfr) < 2 || binary.LittleEndian.Uint16(mfr[:2]) != wire.CompanyID {
			return
		}
	}

	rec, known := c.registry[id]
	if known {
		rec.RSSI = rssi
		if name != "" {
			rec.Name = name
		}
		if !isBonded {
			c.armDisappearance(id)
		}
		c.publishDevice(rec)
		return
	}

	rec = &DeviceRecord{ID: id, Name: name, RSSI: rssi, Bonded: isBonded}
	c.registry[id] = rec
	if !isBonded {
		c.armDisappearance(id)
	}
	c.publishDevice(rec)
}

// armDisappearance (re)starts the one-shot pruning timer for an unbonded
// device. Arming replaces any existing timer for the same identifier.
func (c *Controller) armDisappearance(id string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
	}
	c.timers[id] = time.AfterFunc(c.opts.DisappearanceDelay, func() {
		c.do(func() { c.handleDisappearance(id) })
	})
}

func (c *Controller) cancelDisappearance(id string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Controller) handleDisappearance(id string) {
	rec, ok := c.registry[id]
	if !ok {
		delete(c.timers, id)
		return
	}
	if rec.Connected {
		return
	}
	config.Debugf("Pruning unseen device %s", id)
	delete(c.registry, id)
	delete(c.timers, id)
	c.bus.Publish(Event{Type: EventDeviceRemoved, Data: *rec})
}

func (c *Controller) publishDevice(rec *DeviceRecord) {
	c.bus.Publish(Event{Type: EventDeviceUpdated, Data: *rec})
}

// --- Connection lifecycle ---

// Connect requests a connection. Connecting implies bonding: the device
// joins the persisted bond set and stops being subject to pruning.
func (c *Controller) Connect(id string) error {
	return c.call(func() error {
		rec, ok := c.registry[id]
		if !ok {
			rec = &DeviceRecord{ID: id}
			c.registry[id] = rec
		}
		rec.Connected = true
		c.cancelDisappearance(id)
		c.addBond(id)
		rec.Bonded = true
		c.publishDevice(rec)
		return c.tr.Connect(id)
	})
}

// Disconnect tears down the link. Unbonded devices leave the registry
// immediately; bonded ones persist as disconnected entries.
func (c *Controller) Disconnect(id string) error {
	return c.call(func() error {
		err := c.tr.CancelConnection(id)
		rec, ok := c.registry[id]
		if !ok {
			return err
		}
		if _, bonded := c.bonded[id]; !bonded {
			delete(c.registry, id)
			c.cancelDisappearance(id)
			c.bus.Publish(Event{Type: EventDeviceRemoved, Data: *rec})
			return err
		}
		// Bonded devices are exempt from the disappearance timer, so the
		// record simply persists as disconnected.
		rec.Connected = false
		c.publishDevice(rec)
		return err
	})
}

// ConnectedID returns the identifier of the connected device, or "".
func (c *Controller) ConnectedID() string {
	var id string
	c.call(func() error {
		id = c.connectedID
		return nil
	})
	return id
}

// Ready reports whether the command and data characteristics are bound.
func (c *Controller) Ready() bool {
	var ready bool
	c.call(func() error {
		ready = c.channelsBound()
		return nil
	})
	return ready
}

func (c *Controller) channelsBound() bool {
	return c.bound[transport.CommandCharUUID] && c.bound[transport.DataCharUUID]
}

func (c *Controller) handleConnected(id string) {
	c.connectedID = id
	rec, ok := c.registry[id]
	if ok {
		rec.Connected = true
		c.publishDevice(rec)
	}
	c.bus.Publish(Event{Type: EventConnection, Data: ConnectionUpdate{ID: id, Connected: true}})
	if err := c.tr.DiscoverServices(id); err != nil {
		config.Debugf("Service discovery failed to start: %v", err)
	}
}

func (c *Controller) handleServicesDiscovered(id string, err error) {
	if err != nil {
		config.Debugf("Service discovery failed: %v", err)
		return
	}
	if err := c.tr.DiscoverCharacteristics(transport.GateServiceUUID); err != nil {
		config.Debugf("Characteristic discovery failed to start: %v", err)
	}
}

func (c *Controller) handleCharacteristicsDiscovered(serviceID string, err error) {
	if err != nil {
		config.Debugf("Characteristic discovery failed: %v", err)
		return
	}
	for _, uuid := range transport.RequiredCharUUIDs {
		c.bound[uuid] = true
	}

	// Both halves of the shared channel are bound: open the notify
	// channels and fetch the root listing.
	if err := c.tr.SetNotify(transport.DataCharUUID, true); err != nil {
		config.Debugf("Failed to enable data notifications: %v", err)
	}
	if err := c.tr.SetNotify(transport.TimerResultCharUUID, true); err != nil {
		config.Debugf("Failed to enable timer notifications: %v", err)
	}
	if err := c.requestListing(); err != nil {
		config.Debugf("Root listing request failed: %v", err)
	}
}

func (c *Controller) handleDisconnected(id string, err error) {
	if err != nil {
		config.Debugf("Disconnected from %s: %v", id, err)
	}
	if c.connectedID == id {
		c.connectedID = ""
		c.bound = make(map[string]bool)
		c.resetListing()
		c.failTransfer(errors.New("disconnected"))
	}
	if rec, ok := c.registry[id]; ok {
		rec.Connected = false
		c.publishDevice(rec)
	}
	c.bus.Publish(Event{Type: EventConnection, Data: ConnectionUpdate{ID: id, Connected: false}})
}

// --- Notification demux ---

func (c *Controller) handleValueUpdated(charID string, data []byte, err error) {
	if err != nil {
		config.Debugf("Value update error on %s: %v", charID, err)
		c.abortExchanges(err)
		return
	}
	switch charID {
	case transport.DataCharUUID:
		// The listing decoder sees every data-channel value while a
		// listing is attached; the transfer handler gets it afterwards
		// regardless of the decode outcome.
		if c.listing.attached {
			c.handleListingValue(data)
		}
		if c.transfer != nil {
			c.handleTransferFrame(data)
		}
	case transport.TimerResultCharUUID:
		c.handleTimerResult(data)
	}
}

// abortExchanges surfaces a transport failure to whatever exchange is
// outstanding and clears its awaiting state.
func (c *Controller) abortExchanges(err error) {
	if c.listing.awaiting {
		c.listing.awaiting = false
	}
	c.failTransfer(err)
}

// --- Bonding ---

// Bonded returns the persisted bond set.
func (c *Controller) Bonded() []string {
	var out []string
	c.call(func() error {
		for id := range c.bonded {
			out = append(out, id)
		}
		return nil
	})
	return out
}

// Unbond removes a device from the bond set. A disconnected record is
// dropped from the registry immediately; this is the only way a bonded
// record ever leaves it.
func (c *Controller) Unbond(id string) error {
	return c.call(func() error {
		if _, ok := c.bonded[id]; !ok {
			return nil
		}
		delete(c.bonded, id)
		if err := c.bonds.SaveIdentifiers(c.bonded); err != nil {
			return err
		}
		if rec, ok := c.registry[id]; ok {
			rec.Bonded = false
			if !rec.Connected {
				delete(c.registry, id)
				c.cancelDisappearance(id)
				c.bus.Publish(Event{Type: EventDeviceRemoved, Data: *rec})
			} else {
				c.publishDevice(rec)
			}
		}
		return nil
	})
}

func (c *Controller) addBond(id string) {
	if _, ok := c.bonded[id]; ok {
		return
	}
	c.bonded[id] = struct{}{}
	if err := c.bonds.SaveIdentifiers(c.bonded); err != nil {
		config.Debugf("Failed to persist bond set: %v", err)
	}
}
