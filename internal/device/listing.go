package device

import (
	"strings"

	"github.com/tracklab/gatelink/internal/transport"
	"github.com/tracklab/gatelink/internal/wire"
)

// listingState tracks the directory listing exchange. The awaiting flag
// guards against overlapping requests only: the device sends one notify
// per entry with no end-of-listing marker, so the flag clears on the
// first inbound value and late entries for the same listing keep
// accumulating while the decoder stays attached.
type listingState struct {
	awaiting bool
	attached bool
	path     []string
	entries  []wire.DirEntry
}

// wirePath serializes a segment sequence: root is "/", otherwise
// "/" + segments joined by "/".
func wirePath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// Path returns the current remote working directory in wire form.
func (c *Controller) Path() string {
	var p string
	c.call(func() error {
		p = wirePath(c.listing.path)
		return nil
	})
	return p
}

// Entries returns a snapshot of the current listing, already sorted
// (directories first, then case-insensitive name).
func (c *Controller) Entries() []wire.DirEntry {
	var out []wire.DirEntry
	c.call(func() error {
		out = append(out, c.listing.entries...)
		return nil
	})
	return out
}

// ChangeDirectory appends a path segment and requests that directory's
// listing. Rejected while a listing response is outstanding.
func (c *Controller) ChangeDirectory(segment string) error {
	return c.call(func() error {
		if !c.channelsBound() {
			return ErrNotBound
		}
		if c.listing.awaiting {
			return ErrBusy
		}
		c.listing.path = append(c.listing.path, segment)
		return c.requestListing()
	})
}

// GoUp pops the last path segment (no-op at root) and requests the
// parent listing. Rejected while a listing response is outstanding.
func (c *Controller) GoUp() error {
	return c.call(func() error {
		if !c.channelsBound() {
			return ErrNotBound
		}
		if c.listing.awaiting {
			return ErrBusy
		}
		if len(c.listing.path) > 0 {
			c.listing.path = c.listing.path[:len(c.listing.path)-1]
		}
		return c.requestListing()
	})
}

// Refresh re-requests the current directory.
func (c *Controller) Refresh() error {
	return c.call(func() error {
		if !c.channelsBound() {
			return ErrNotBound
		}
		if c.listing.awaiting {
			return ErrBusy
		}
		return c.requestListing()
	})
}

// requestListing clears the working listing, arms the decoder and writes
// the request. Runs on the owning goroutine.
func (c *Controller) requestListing() error {
	c.listing.entries = nil
	c.listing.awaiting = true
	c.listing.attached = true

	// A finished download leaves the data channel unsubscribed;
	// re-arming here keeps listings working after transfers.
	if err := c.tr.SetNotify(transport.DataCharUUID, true); err != nil {
		c.listing.awaiting = false
		return err
	}

	path := wirePath(c.listing.path)
	if err := c.tr.Write(transport.CommandCharUUID, wire.ListRequest(path), false); err != nil {
		c.listing.awaiting = false
		return err
	}

	c.bus.Publish(Event{Type: EventListing, Data: ListingUpdate{Path: path}})
	return nil
}

// handleListingValue feeds one data-channel notification to the entry
// decoder. Undecodable values are discarded silently; either way the
// awaiting flag clears, so only requests are serialized, not responses.
func (c *Controller) handleListingValue(data []byte) {
	entry, err := wire.ParseDirEntry(data)
	if err == nil {
		c.listing.entries = append(c.listing.entries, entry)
		wire.SortEntries(c.listing.entries)
		c.bus.Publish(Event{Type: EventListing, Data: ListingUpdate{
			Path:    wirePath(c.listing.path),
			Entries: append([]wire.DirEntry(nil), c.listing.entries...),
		}})
	}
	c.listing.awaiting = false
}

// resetListing returns the listing to its initial state (root path, no
// entries). Called when the link drops.
func (c *Controller) resetListing() {
	c.listing = listingState{}
}
