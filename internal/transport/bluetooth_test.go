package transport

import (
	"testing"

	"tinygo.org/x/bluetooth"
)

// newTestAdapter builds an adapter with one bound characteristic and no
// radio behind it. Only the bookkeeping paths that never reach the
// stack can run against it.
func newTestAdapter() *Bluetooth {
	return &Bluetooth{
		addrs:    make(map[string]bluetooth.Address),
		devices:  make(map[string]bluetooth.Device),
		services: make(map[string]bluetooth.DeviceService),
		chars:    map[string]*bluetooth.DeviceCharacteristic{DataCharUUID: {}},
		notifyOn: make(map[string]bool),
	}
}

func TestSetNotifyReEnableIsNoOp(t *testing.T) {
	tr := newTestAdapter()
	tr.notifyOn[DataCharUUID] = true

	// tinygo rejects a duplicate subscription on the same
	// characteristic, so re-arming an active channel must never reach
	// the stack.
	if err := tr.SetNotify(DataCharUUID, true); err != nil {
		t.Errorf("Re-enable should be a no-op, got %v", err)
	}
	if !tr.notifyOn[DataCharUUID] {
		t.Error("Subscription state was lost")
	}
}

func TestSetNotifyDisableWithoutSubscription(t *testing.T) {
	tr := newTestAdapter()

	if err := tr.SetNotify(DataCharUUID, false); err != nil {
		t.Errorf("Disable without a subscription should be a no-op, got %v", err)
	}
	if tr.notifyOn[DataCharUUID] {
		t.Error("Expected no subscription state")
	}
}

func TestSetNotifyUnboundCharacteristic(t *testing.T) {
	tr := newTestAdapter()

	if err := tr.SetNotify(CommandCharUUID, true); err == nil {
		t.Error("Expected an error for an unbound characteristic")
	}
}

func TestScanRejectsBadServiceFilter(t *testing.T) {
	tr := newTestAdapter()

	if err := tr.Scan("not-a-uuid", true); err == nil {
		t.Error("Expected an error for a malformed service filter")
	}
}
