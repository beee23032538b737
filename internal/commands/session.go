package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/tracklab/gatelink/internal/bond"
	"github.com/tracklab/gatelink/internal/config"
	"github.com/tracklab/gatelink/internal/device"
	"github.com/tracklab/gatelink/internal/transport"
)

// connectTimeout bounds the scan-connect-bind sequence for one-shot
// commands.
const connectTimeout = 30 * time.Second

// listingSettle is how long the listing must stay quiet before it is
// treated as complete. The gate sends one notification per entry with
// no end marker, so completion is only observable as silence.
const listingSettle = 750 * time.Millisecond

// Session is a connected, bound gate used by the one-shot commands.
type Session struct {
	Controller *device.Controller
	events     <-chan device.Event
	unsub      func()
}

// Open scans for a gate, connects and waits until the protocol channels
// are bound. target selects a specific device identifier; empty takes
// the first gate seen.
func Open(target string) (*Session, error) {
	tr, err := transport.NewBluetooth()
	if err != nil {
		return nil, fmt.Errorf("bluetooth init: %w", err)
	}

	store, err := bond.OpenDefault()
	if err != nil {
		return nil, fmt.Errorf("bond store: %w", err)
	}

	ctrl, err := device.New(tr, store, device.Options{})
	if err != nil {
		return nil, err
	}

	events, unsub := ctrl.Events()
	s := &Session{Controller: ctrl, events: events, unsub: unsub}

	fmt.Println("Scanning for timing gate...")
	if err := ctrl.StartScan(); err != nil {
		s.Close()
		return nil, fmt.Errorf("scan: %w", err)
	}

	id, err := s.waitForGate(target)
	if err != nil {
		s.Close()
		return nil, err
	}
	ctrl.StopScan()

	fmt.Printf("Connecting to %s...\n", id)
	if err := ctrl.Connect(id); err != nil {
		s.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := s.waitReady(); err != nil {
		s.Close()
		return nil, err
	}
	config.Debugf("Session ready on %s", id)
	return s, nil
}

// Close disconnects and releases the session.
func (s *Session) Close() {
	if id := s.Controller.ConnectedID(); id != "" {
		s.Controller.Disconnect(id)
	}
	s.unsub()
	s.Controller.Close()
}

func (s *Session) waitForGate(target string) (string, error) {
	deadline := time.After(connectTimeout)
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				return "", fmt.Errorf("event stream closed")
			}
			rec, isUpdate := e.Data.(device.DeviceRecord)
			if e.Type != device.EventDeviceUpdated || !isUpdate {
				continue
			}
			if target != "" {
				if strings.EqualFold(rec.ID, target) {
					return rec.ID, nil
				}
				continue
			}
			return rec.ID, nil
		case <-deadline:
			return "", fmt.Errorf("no timing gate found within %v", connectTimeout)
		}
	}
}

// waitReady blocks until the first listing event, which only fires once
// the characteristics are bound and the root listing was requested.
func (s *Session) waitReady() error {
	deadline := time.After(connectTimeout)
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				return fmt.Errorf("event stream closed")
			}
			switch e.Type {
			case device.EventListing:
				return nil
			case device.EventConnection:
				if u, ok := e.Data.(device.ConnectionUpdate); ok && !u.Connected {
					return fmt.Errorf("disconnected during setup")
				}
			}
		case <-deadline:
			return fmt.Errorf("gate did not become ready within %v", connectTimeout)
		}
	}
}

// WaitListing waits for the current listing to settle: entries arrive
// one notification at a time, so the listing is done when it has been
// quiet for a while.
func (s *Session) WaitListing() {
	settle := time.NewTimer(listingSettle)
	defer settle.Stop()
	for {
		select {
		case e, ok := <-s.events:
			if !ok {
				return
			}
			if e.Type == device.EventListing {
				settle.Reset(listingSettle)
			}
		case <-settle.C:
			return
		}
	}
}

// Events exposes the session's event stream to commands that need to
// block on specific updates.
func (s *Session) Events() <-chan device.Event {
	return s.events
}
