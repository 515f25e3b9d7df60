package lock

import (
	"context"
	"sync"
)

// LocalLocker is an in-process keyed mutex. Waiting honours ctx.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	slot chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: map[string]*localEntry{}}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	entry := l.ref(key)
	select {
	case entry.slot <- struct{}{}:
		return &localLease{locker: l, key: key, entry: entry}, nil
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) ref(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{slot: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	return entry
}

func (l *LocalLocker) unref(key string, entry *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}

// held reports how many keys have holders or waiters.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

type localLease struct {
	once   sync.Once
	locker *LocalLocker
	key    string
	entry  *localEntry
}

func (ll *localLease) Release(context.Context) error {
	ll.once.Do(func() {
		<-ll.entry.slot
		ll.locker.unref(ll.key, ll.entry)
	})
	return nil
}
