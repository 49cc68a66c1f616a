package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ChangeMonitor is the cache's change-notification seam. Policy.ChangeMonitors
// lets an entry depend on one; when a monitor reports a change the entry is
// removed with reason ChangeMonitorChanged. objcache implements only the
// self-referential monitor returned by CreateCacheEntryChangeMonitor — other
// implementations (file-system watches, pub/sub feeds, ...) are external
// collaborators per the package scope.
type ChangeMonitor interface {
	// NotifyOnChanged registers fn to run when this monitor detects a
	// change. A monitor fires at most once; fn may be nil.
	NotifyOnChanged(fn func())
	// Dispose releases any resources the monitor holds, including
	// unregistering itself from entries it depends on.
	Dispose()
}

// dependentMonitor is the notification side of a ChangeMonitor: an entry
// holds a list of dependents and calls notifyEntryChanged on each when it
// leaves AddedToCache. Registration happens outside the owning shard's
// lock and is guarded by the entry's own mutex.
type dependentMonitor interface {
	notifyEntryChanged(key string, createdUTC time.Time)
}

// CacheEntryChangeMonitor watches a fixed set of keys in one cache and fires
// OnChanged once any of them leaves AddedToCache.
type CacheEntryChangeMonitor struct {
	mu           sync.Mutex
	keys         []string
	uniqueID     string
	lastModified time.Time
	onChanged    func()
	fired        bool

	unregister func() // detaches this monitor from every entry it depends on
}

var _ ChangeMonitor = (*CacheEntryChangeMonitor)(nil)
var _ dependentMonitor = (*CacheEntryChangeMonitor)(nil)

// NotifyOnChanged registers fn to run when any watched entry changes. If the
// monitor has already fired, fn runs immediately.
func (m *CacheEntryChangeMonitor) NotifyOnChanged(fn func()) {
	m.mu.Lock()
	already := m.fired
	m.onChanged = fn
	m.mu.Unlock()
	if already && fn != nil {
		fn()
	}
}

// Dispose unregisters the monitor from every entry it depends on.
func (m *CacheEntryChangeMonitor) Dispose() {
	if m.unregister != nil {
		m.unregister()
	}
}

// UniqueID returns a stable id derived from each watched key plus that
// entry's creation instant (as hex nanoseconds), joined by key order.
func (m *CacheEntryChangeMonitor) UniqueID() string { return m.uniqueID }

// LastModified returns the newest UtcCreated seen across watched entries at
// construction time.
func (m *CacheEntryChangeMonitor) LastModified() time.Time { return m.lastModified }

func (m *CacheEntryChangeMonitor) notifyEntryChanged(key string, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fired {
		return
	}
	m.fired = true
	fn := m.onChanged
	if fn != nil {
		fn()
	}
}

// buildCompositeID renders the §4.5 composite id: "key1=hexticks1;key2=..."
// in watch order.
func buildCompositeID(keys []string, created []time.Time) string {
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(';')
		}
		fmt.Fprintf(&sb, "%s=%x", k, created[i].UnixNano())
	}
	return sb.String()
}
