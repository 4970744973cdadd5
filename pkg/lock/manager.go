package lock

import (
	"time"

	"github.com/cespare/xxhash/v2"

	"lockkv/pkg/waitgraph"
)

// Waiter is the subset of a transaction's behavior the lock manager
// needs to acquire and release locks on its behalf. lockkv/pkg/txn's
// Transaction implements this.
type Waiter interface {
	ID() int
	Aborted() bool
	RecordLock(l *Lock)
	HasLock(l *Lock) bool
	HeldLocks() []*Lock
	ClearHeldLocks()
}

// Registry gives the lock manager just enough visibility into the
// transaction table to run cycle detection and signal a victim: the
// set of currently live transactions (for DFS roots and start_seq
// lookups) and a way to mark one aborted. lockkv/pkg/engine implements
// this over its own transaction slot table.
type Registry interface {
	LiveTransactions() map[int]uint64
	Abort(id int)
}

// Logger is the minimal structured-logging surface the manager uses for
// the informational victim-selection diagnostic. *zap.SugaredLogger
// satisfies this directly. A nil Logger makes diagnostics a no-op.
type Logger interface {
	Warnw(msg string, keysAndValues ...interface{})
}

// Manager owns a fixed pool of per-bucket locks and the wait-for graph
// they feed. Two distinct keys that hash to the same bucket share one
// lock: safe (over-locking) but may reduce concurrency.
type Manager struct {
	buckets      []*Lock
	graph        *waitgraph.Graph
	registry     Registry
	pollInterval time.Duration
	logger       Logger
}

// NewManager creates a manager with numBuckets lock slots. pollInterval
// bounds how long a blocked Acquire waits before re-checking the
// waiter's abort flag.
func NewManager(numBuckets int, graph *waitgraph.Graph, registry Registry, pollInterval time.Duration, logger Logger) *Manager {
	buckets := make([]*Lock, numBuckets)
	for i := range buckets {
		buckets[i] = newLock()
	}
	return &Manager{
		buckets:      buckets,
		graph:        graph,
		registry:     registry,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// bucketFor hashes key to a fixed deterministic bucket. Collisions are
// safe: colliding keys simply share one lock and over-serialize.
func (m *Manager) bucketFor(key []byte) *Lock {
	h := xxhash.Sum64(key)
	return m.buckets[h%uint64(len(m.buckets))]
}

// Acquire acquires the lock covering key on behalf of w. On success, w
// is the unique holder and the lock is recorded in w's held-lock set
// exactly once; any outgoing wait-for edge from w is cleared. Re-
// acquiring a lock already held by w is a no-op. If w is already
// aborted, or becomes aborted while waiting, Acquire returns
// ErrAborted.
//
// No FIFO guarantee is given among waiters: any goroutine that observes
// the lock free may claim it.
func (m *Manager) Acquire(w Waiter, key []byte) (*Lock, error) {
	if w.Aborted() {
		return nil, ErrAborted
	}

	lk := m.bucketFor(key)
	lk.mu.Lock()

	if lk.holder == noHolder || lk.holder == w.ID() {
		m.claimLocked(lk, w)
		lk.mu.Unlock()
		m.graph.ClearOutgoing(w.ID())
		return lk, nil
	}

	// Must wait: register the wait-for edge and run cycle detection
	// once, synchronously, before entering the poll loop. The lock's
	// mutex is held first, the graph mutex acquired only inside this
	// call — the required ordering to avoid the manager deadlocking
	// itself.
	holder := lk.holder
	if victim, found := m.graph.AddEdgeAndDetectVictim(w.ID(), holder, m.registry.LiveTransactions()); found && victim >= 0 {
		m.registry.Abort(victim)
		if m.logger != nil {
			m.logger.Warnw("deadlock detected, aborting youngest transaction in cycle", "victim", victim)
		}
	}

	for {
		if lk.holder == noHolder {
			m.claimLocked(lk, w)
			lk.mu.Unlock()
			m.graph.ClearOutgoing(w.ID())
			return lk, nil
		}
		if w.Aborted() {
			lk.mu.Unlock()
			m.graph.ClearOutgoing(w.ID())
			return nil, ErrAborted
		}

		waitCh := lk.waitCh
		lk.mu.Unlock()
		select {
		case <-waitCh:
		case <-time.After(m.pollInterval):
		}
		lk.mu.Lock()
	}
}

// claimLocked makes w the holder of lk, which must already be locked by
// the caller, and records the lock as held (deduplicated) by w.
func (m *Manager) claimLocked(lk *Lock, w Waiter) {
	lk.holder = w.ID()
	if !w.HasLock(lk) {
		w.RecordLock(lk)
	}
}

// ReleaseAll releases every lock held by w: clears w as holder (if it
// still is), removes every incoming wait-for edge to w so that waiters
// stop waiting on it, and wakes any goroutine parked on each lock.
func (m *Manager) ReleaseAll(w Waiter) {
	for _, lk := range w.HeldLocks() {
		lk.release(w.ID())
		m.graph.RemoveIncoming(w.ID())
	}
	w.ClearHeldLocks()
}
