package memory

import (
	"sync"

	"github.com/okian/awards/internal/adapters/store"
	"github.com/okian/awards/pkg/metrics"
)

type listener struct {
	store *Store
	id    uint64
	kind  string
	eval  func() result

	// last is only touched with store.mu held for writing.
	last result

	mu      sync.Mutex
	pending *store.Snapshot
	release func() bool
	signal  chan struct{}

	stopped  chan struct{}
	stopOnce sync.Once
}

// refreshLocked evaluates the listener and queues a snapshot when the
// result changed. Callers hold store.mu for writing.
func (l *listener) refreshLocked(initial bool) {
	next := l.eval()
	if !initial && next.equal(l.last) {
		return
	}
	l.last = next
	snap := next.snapshot()

	l.mu.Lock()
	l.pending = &snap
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
}

func (l *listener) Next() (store.Snapshot, error) {
	for {
		select {
		case <-l.stopped:
			return store.Snapshot{}, store.ErrStopped
		default:
		}

		l.mu.Lock()
		snap := l.pending
		l.pending = nil
		l.mu.Unlock()
		if snap != nil {
			return *snap, nil
		}

		select {
		case <-l.signal:
		case <-l.stopped:
			return store.Snapshot{}, store.ErrStopped
		}
	}
}

func (l *listener) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopped)
		l.mu.Lock()
		release := l.release
		l.mu.Unlock()
		if release != nil {
			release()
		}
		l.store.remove(l.id)
		metrics.RecordListenerClosed(l.kind)
	})
}
