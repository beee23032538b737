// Package transport defines the narrow wireless contract the protocol
// stack consumes, and a tinygo bluetooth adapter implementing it. The
// controller never touches the radio directly; everything arrives as
// asynchronous callbacks and all writes are issued through this surface.
package transport

// Callbacks delivers transport events. All callbacks may fire on
// arbitrary goroutines; the consumer is responsible for marshalling onto
// its own context.
type Callbacks struct {
	// DeviceDiscovered fires for every advertisement sighting while a
	// scan is active. manufacturer holds the raw manufacturer-data bytes
	// (company identifier little-endian first).
	DeviceDiscovered func(id, name string, rssi int16, manufacturer []byte)

	// Connected fires when a transport-level connection is established.
	Connected func(id string)

	// Disconnected fires when the link drops, with the transport error
	// if any.
	Disconnected func(id string, err error)

	// ServicesDiscovered fires when service discovery finishes.
	ServicesDiscovered func(id string, err error)

	// CharacteristicsDiscovered fires when characteristic discovery for
	// one service finishes.
	CharacteristicsDiscovered func(serviceID string, err error)

	// ValueUpdated delivers a notification or read result for a
	// characteristic, identified by UUID string.
	ValueUpdated func(charID string, data []byte, err error)
}

// Transport is the raw wireless surface: scanning, connection lifecycle,
// discovery, and characteristic I/O keyed by UUID string.
type Transport interface {
	// SetCallbacks installs the event sink. Must be called before Scan
	// or Connect.
	SetCallbacks(cb Callbacks)

	// Scan starts advertisement scanning. serviceFilter, when non-empty,
	// restricts sightings to advertisements carrying that service UUID.
	// With allowDuplicates, repeat sightings of the same device are
	// reported again (needed for RSSI refresh and disappearance pruning).
	Scan(serviceFilter string, allowDuplicates bool) error

	// StopScan stops an active scan.
	StopScan() error

	// Connect requests a connection to a previously discovered device.
	Connect(id string) error

	// CancelConnection tears down (or abandons) a connection.
	CancelConnection(id string) error

	// DiscoverServices starts service discovery on a connected device.
	DiscoverServices(id string) error

	// DiscoverCharacteristics starts characteristic discovery for one
	// discovered service.
	DiscoverCharacteristics(serviceID string) error

	// Write sends data to a characteristic. requireAck requests a
	// transport-level acknowledged write where the platform supports it.
	Write(charID string, data []byte, requireAck bool) error

	// SetNotify enables or disables notifications on a characteristic.
	SetNotify(charID string, enabled bool) error

	// Read issues a read; the value arrives via ValueUpdated.
	Read(charID string) error
}
