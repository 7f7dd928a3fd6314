package syncagent

import "sync"

// hostLocks serializes sync attempts per hostname without a global lock.
// Entries are refcounted and reclaimed once the last holder releases, so the
// arena does not grow with the total number of hostnames ever seen.
type hostLocks struct {
	mu      sync.Mutex
	entries map[string]*hostLockEntry
}

type hostLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newHostLocks() *hostLocks {
	return &hostLocks{entries: make(map[string]*hostLockEntry)}
}

// lock blocks until the hostname is exclusively held and returns the release
// function.
func (l *hostLocks) lock(hostname string) (release func()) {
	entry := l.retain(hostname)
	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.put(hostname, entry)
	}
}

// tryLock acquires the hostname lock only when it is not held. The background
// schedulers use it so a device already in flight is skipped, not queued twice.
func (l *hostLocks) tryLock(hostname string) (release func(), ok bool) {
	entry := l.retain(hostname)
	if !entry.mu.TryLock() {
		l.put(hostname, entry)
		return nil, false
	}
	return func() {
		entry.mu.Unlock()
		l.put(hostname, entry)
	}, true
}

func (l *hostLocks) retain(hostname string) *hostLockEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[hostname]
	if !ok {
		entry = &hostLockEntry{}
		l.entries[hostname] = entry
	}
	entry.refs++
	return entry
}

func (l *hostLocks) put(hostname string, entry *hostLockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, hostname)
	}
}

// size reports the number of live entries, for tests.
func (l *hostLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
