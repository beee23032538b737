package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/tracklab/gatelink/internal/bond"
	"github.com/tracklab/gatelink/internal/device"
	"github.com/tracklab/gatelink/internal/transport"
)

// Scan discovers timing gates for the given duration and prints what
// was seen.
func Scan(timeout time.Duration) error {
	tr, err := transport.NewBluetooth()
	if err != nil {
		return fmt.Errorf("bluetooth init: %w", err)
	}

	store, err := bond.OpenDefault()
	if err != nil {
		return fmt.Errorf("bond store: %w", err)
	}

	ctrl, err := device.New(tr, store, device.Options{})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	fmt.Printf("Scanning for %v...\n", timeout)
	if err := ctrl.StartScan(); err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	time.Sleep(timeout)
	ctrl.StopScan()

	devices := ctrl.Devices()
	if len(devices) == 0 {
		fmt.Println("No timing gates found")
		return nil
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].ID < devices[j].ID
	})

	fmt.Printf("\nFound %d gate(s):\n", len(devices))
	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		mark := " "
		if d.Bonded {
			mark = "*"
		}
		fmt.Printf("  %s %-20s %-24s %d dBm\n", mark, d.ID, name, d.RSSI)
	}
	fmt.Println("\n  * = bonded")
	return nil
}
