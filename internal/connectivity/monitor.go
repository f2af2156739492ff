// Package connectivity tracks network reachability for the sync core.
// Actual reachability detection is a platform concern; collaborators feed
// transitions in via SetOnline.
package connectivity

import (
	"sync/atomic"

	"chatsync/internal/bus"
)

// Change is the payload of a connectivity.changed event.
type Change struct {
	Online bool
}

// Monitor holds the current reachability state and notifies the bus on
// transitions. Going offline never aborts an in-flight sync; the sync is
// allowed to finish or fail on its own.
type Monitor struct {
	online atomic.Bool
	bus    *bus.Bus
}

// NewMonitor creates a monitor starting in the offline state.
func NewMonitor(b *bus.Bus) *Monitor {
	return &Monitor{bus: b}
}

// Online returns the current reachability state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// SetOnline records a reachability change. An event is published only on an
// actual transition; repeated reports of the same state are ignored.
func (m *Monitor) SetOnline(online bool) {
	if m.online.Swap(online) == online {
		return
	}
	if m.bus != nil {
		m.bus.Emit(bus.KindConnectivityChanged, Change{Online: online})
	}
}
