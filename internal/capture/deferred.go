package capture

import (
	"audittrail/internal/audit"
	"audittrail/internal/tracking"
)

type deferredItem struct {
	pending *audit.PendingEntry
	source  tracking.Entry
}

// DeferredSet carries pending entries from Capture to Resolve. It is owned by
// the save that produced it and is not shared between goroutines.
type DeferredSet struct {
	items []deferredItem
}

func (d *DeferredSet) add(pending *audit.PendingEntry, source tracking.Entry) {
	d.items = append(d.items, deferredItem{pending: pending, source: source})
}

// Len is nil-safe.
func (d *DeferredSet) Len() int {
	if d == nil {
		return 0
	}
	return len(d.items)
}

// Entries returns the pending entries as captured, before resolution.
func (d *DeferredSet) Entries() []*audit.PendingEntry {
	if d == nil {
		return nil
	}
	out := make([]*audit.PendingEntry, len(d.items))
	for i, it := range d.items {
		out[i] = it.pending
	}
	return out
}
