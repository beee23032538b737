package transport

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/util"
)

// Bluetooth adapts tinygo bluetooth to the Transport contract. The
// tinygo API is blocking, so scan/connect/discovery run on their own
// goroutines and report back through the callback set.
type Bluetooth struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	cb       Callbacks
	addrs    map[string]bluetooth.Address
	devices  map[string]bluetooth.Device
	services map[string]bluetooth.DeviceService
	scanning bool

	// Characteristics are held by pointer: tinygo's EnableNotifications
	// records the active BlueZ subscription on its receiver, so the same
	// instance must be used to enable and later disable. notifyOn makes
	// enable idempotent (a second enable on tinygo returns errDupNotif).
	chars    map[string]*bluetooth.DeviceCharacteristic
	notifyOn map[string]bool
}

// NewBluetooth enables the default adapter and returns the transport.
func NewBluetooth() (*Bluetooth, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth: %w", err)
	}

	t := &Bluetooth{
		adapter:  adapter,
		addrs:    make(map[string]bluetooth.Address),
		devices:  make(map[string]bluetooth.Device),
		services: make(map[string]bluetooth.DeviceService),
		chars:    make(map[string]*bluetooth.DeviceCharacteristic),
		notifyOn: make(map[string]bool),
	}

	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return // reported from the Connect goroutine
		}
		id := device.Address.String()
		config.Debugf("Link dropped: %s", id)
		t.mu.Lock()
		cb := t.cb
		delete(t.devices, id)
		// Handles and subscriptions die with the link.
		t.services = make(map[string]bluetooth.DeviceService)
		t.chars = make(map[string]*bluetooth.DeviceCharacteristic)
		t.notifyOn = make(map[string]bool)
		t.mu.Unlock()
		if cb.Disconnected != nil {
			cb.Disconnected(id, nil)
		}
	})

	return t, nil
}

// SetCallbacks installs the event sink.
func (t *Bluetooth) SetCallbacks(cb Callbacks) {
	t.mu.Lock()
	t.cb = cb
	t.mu.Unlock()
}

// Scan starts advertisement scanning on a background goroutine.
// serviceFilter, when non-empty, drops advertisements that do not carry
// that service UUID. Duplicate filtering is left to the platform; BlueZ
// reports repeat sightings already, which is what the pruning policy
// needs.
func (t *Bluetooth) Scan(serviceFilter string, allowDuplicates bool) error {
	var filter bluetooth.UUID
	haveFilter := serviceFilter != ""
	if haveFilter {
		u, err := bluetooth.ParseUUID(strings.ToLower(serviceFilter))
		if err != nil {
			return fmt.Errorf("bad service filter: %w", err)
		}
		filter = u
	}

	t.mu.Lock()
	if t.scanning {
		t.mu.Unlock()
		return nil
	}
	t.scanning = true
	cb := t.cb
	t.mu.Unlock()

	go func() {
		err := t.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if haveFilter && !result.HasServiceUUID(filter) {
				return
			}
			id := result.Address.String()
			t.mu.Lock()
			t.addrs[id] = result.Address
			t.mu.Unlock()

			var mfr []byte
			for _, elem := range result.ManufacturerData() {
				mfr = binary.LittleEndian.AppendUint16(nil, elem.CompanyID)
				mfr = append(mfr, elem.Data...)
				break
			}

			if cb.DeviceDiscovered != nil {
				cb.DeviceDiscovered(id, result.LocalName(), result.RSSI, mfr)
			}
		})
		if err != nil {
			config.Debugf("Scan error: %v", err)
		}
		t.mu.Lock()
		t.scanning = false
		t.mu.Unlock()
	}()

	return nil
}

// StopScan stops an active scan.
func (t *Bluetooth) StopScan() error {
	t.mu.Lock()
	scanning := t.scanning
	t.mu.Unlock()
	if !scanning {
		return nil
	}
	return t.adapter.StopScan()
}

// Connect dials a device seen during scanning. The result is reported
// via the Connected callback.
func (t *Bluetooth) Connect(id string) error {
	t.mu.Lock()
	addr, ok := t.addrs[id]
	cb := t.cb
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown device: %s", id)
	}

	go func() {
		config.Debugf("Connecting to %s...", id)
		device, err := t.adapter.Connect(addr, bluetooth.ConnectionParams{})
		if err != nil {
			config.Debugf("Connect failed: %v", err)
			if cb.Disconnected != nil {
				cb.Disconnected(id, err)
			}
			return
		}
		t.mu.Lock()
		t.devices[id] = device
		t.mu.Unlock()
		if cb.Connected != nil {
			cb.Connected(id)
		}
	}()

	return nil
}

// CancelConnection disconnects the device if it is connected.
func (t *Bluetooth) CancelConnection(id string) error {
	t.mu.Lock()
	device, ok := t.devices[id]
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return device.Disconnect()
}

// DiscoverServices runs service discovery and reports completion.
func (t *Bluetooth) DiscoverServices(id string) error {
	t.mu.Lock()
	device, ok := t.devices[id]
	cb := t.cb
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("not connected: %s", id)
	}

	go func() {
		services, err := device.DiscoverServices(nil)
		if err == nil {
			t.mu.Lock()
			for i := range services {
				uuid := strings.ToUpper(services[i].UUID().String())
				config.Debugf("Found service: %s", uuid)
				t.services[uuid] = services[i]
			}
			t.mu.Unlock()
		}
		if cb.ServicesDiscovered != nil {
			cb.ServicesDiscovered(id, err)
		}
	}()

	return nil
}

// DiscoverCharacteristics runs characteristic discovery for one service.
func (t *Bluetooth) DiscoverCharacteristics(serviceID string) error {
	t.mu.Lock()
	service, ok := t.services[strings.ToUpper(serviceID)]
	cb := t.cb
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown service: %s", serviceID)
	}

	go func() {
		chars, err := service.DiscoverCharacteristics(nil)
		if err == nil {
			t.mu.Lock()
			for i := range chars {
				uuid := strings.ToUpper(chars[i].UUID().String())
				config.Debugf("Found characteristic: %s", uuid)
				t.chars[uuid] = &chars[i]
			}
			t.mu.Unlock()
		}
		if cb.CharacteristicsDiscovered != nil {
			cb.CharacteristicsDiscovered(serviceID, err)
		}
	}()

	return nil
}

// Write sends a frame to a characteristic.
//
// NOTE: tinygo bluetooth on Linux doesn't support Write with Response
// (only WriteWithoutResponse), see tinygo-org/bluetooth#153, so
// requireAck writes are downgraded there.
func (t *Bluetooth) Write(charID string, data []byte, requireAck bool) error {
	char, err := t.char(charID)
	if err != nil {
		return err
	}

	config.Debugf("Writing %d bytes to %s (ack=%v)", len(data), charID, requireAck)
	if config.Verbose {
		util.PrintHexDump(data)
	}

	if _, err := char.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("failed to write characteristic: %w", err)
	}
	return nil
}

// SetNotify subscribes or unsubscribes a characteristic. Values arrive
// via the ValueUpdated callback. Enabling an already subscribed
// characteristic is a no-op, so the protocol layer may re-arm the same
// channel freely; disabling goes through the instance that holds the
// subscription.
func (t *Bluetooth) SetNotify(charID string, enabled bool) error {
	char, err := t.char(charID)
	if err != nil {
		return err
	}
	key := strings.ToUpper(charID)

	t.mu.Lock()
	cb := t.cb
	active := t.notifyOn[key]
	t.mu.Unlock()

	if enabled == active {
		return nil
	}

	if !enabled {
		if err := char.EnableNotifications(nil); err != nil {
			return err
		}
		t.mu.Lock()
		t.notifyOn[key] = false
		t.mu.Unlock()
		return nil
	}

	err = char.EnableNotifications(func(buf []byte) {
		config.Debugf("Notification on %s: %d bytes", charID, len(buf))
		if config.Verbose {
			if util.IsTextData(buf) {
				config.Debugf("Value: %s", string(buf))
			} else {
				util.PrintHexDump(buf)
			}
		}
		if cb.ValueUpdated != nil {
			// The buffer may be reused by the stack; hand off a copy.
			data := make([]byte, len(buf))
			copy(data, buf)
			cb.ValueUpdated(charID, data, nil)
		}
	})
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.notifyOn[key] = true
	t.mu.Unlock()
	return nil
}

// Read issues a characteristic read and reports the value asynchronously.
func (t *Bluetooth) Read(charID string) error {
	char, err := t.char(charID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	cb := t.cb
	t.mu.Unlock()

	go func() {
		buf := make([]byte, 256)
		n, err := char.Read(buf)
		if cb.ValueUpdated != nil {
			if err != nil {
				cb.ValueUpdated(charID, nil, err)
			} else {
				cb.ValueUpdated(charID, buf[:n], nil)
			}
		}
	}()

	return nil
}

func (t *Bluetooth) char(charID string) (*bluetooth.DeviceCharacteristic, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	char, ok := t.chars[strings.ToUpper(charID)]
	if !ok {
		return nil, fmt.Errorf("characteristic not bound: %s", charID)
	}
	return char, nil
}
