// Package engine wires the KV map, lock manager, and wait-for graph
// into the transaction lifecycle: begin, get, put, commit, abort.
//
// An Engine owns the transaction slot table and hands out handles, but
// every collaborator (kv.Store, lock.Manager, waitgraph.Graph) is
// otherwise self-contained.
package engine

import (
	"sync"

	"lockkv/pkg/kv"
	"lockkv/pkg/lock"
	"lockkv/pkg/metrics"
	"lockkv/pkg/txn"
	"lockkv/pkg/waitgraph"
)

// Logger is the structured-logging surface the engine uses for
// transaction lifecycle events and the deadlock diagnostic. A nil
// Logger makes all logging a no-op.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

// Engine is the top-level API: Begin/Get/Put/Commit/Abort.
type Engine struct {
	cfg     Config
	store   *kv.Store
	graph   *waitgraph.Graph
	locks   *lock.Manager
	metrics *metrics.Metrics
	logger  Logger

	mu         sync.Mutex
	slots      []*txn.Transaction
	seqCounter uint64
}

// New builds an Engine from cfg. logger and m may be nil.
func New(cfg Config, logger Logger, m *metrics.Metrics) *Engine {
	e := &Engine{
		cfg:     cfg,
		store:   kv.New(),
		graph:   waitgraph.New(cfg.MaxTransactions),
		slots:   make([]*txn.Transaction, cfg.MaxTransactions),
		logger:  logger,
		metrics: m,
	}
	e.locks = lock.NewManager(cfg.MaxKeys, e.graph, registryAdapter{e}, cfg.WaitPollInterval, logger)
	return e
}

// registryAdapter satisfies lock.Registry over the Engine's transaction
// table, kept separate from Engine's own public API so that the
// deadlock-detector's "just flip the flag" Abort doesn't collide with
// Engine.Abort's full release-and-free semantics.
type registryAdapter struct{ e *Engine }

func (r registryAdapter) LiveTransactions() map[int]uint64 { return r.e.liveTransactions() }

func (r registryAdapter) Abort(id int) {
	r.e.markAbortedByID(id)
	if r.e.metrics != nil {
		r.e.metrics.IncDeadlockVictim()
	}
}

func (e *Engine) liveTransactions() map[int]uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	live := make(map[int]uint64, len(e.slots))
	for id, t := range e.slots {
		if t != nil {
			live[id] = t.StartSeq()
		}
	}
	return live
}

func (e *Engine) markAbortedByID(id int) {
	e.mu.Lock()
	t := e.slots[id]
	e.mu.Unlock()
	if t != nil {
		t.MarkAborted()
	}
}

// truncateKey silently shortens key to Config.KeyLengthMax bytes. Get
// and Put both apply it before hashing, locking, buffering or reading,
// so the same over-long key always maps to the same lock bucket,
// write-set entry and store key; kv.Store itself does not limit key
// length.
func (e *Engine) truncateKey(key string) string {
	if len(key) > e.cfg.KeyLengthMax {
		return key[:e.cfg.KeyLengthMax]
	}
	return key
}

func (e *Engine) activeCountLocked() int {
	n := 0
	for _, t := range e.slots {
		if t != nil {
			n++
		}
	}
	return n
}

// Begin allocates a free transaction slot and returns a handle to it, or
// ErrNoSlot if every slot is occupied.
func (e *Engine) Begin() (*txn.Transaction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, t := range e.slots {
		if t == nil {
			e.seqCounter++
			nt := txn.New(i, e.seqCounter, e.cfg.MaxWritesPerTxn)
			e.slots[i] = nt
			if e.metrics != nil {
				e.metrics.IncBegin()
				e.metrics.SetActiveTransactions(e.activeCountLocked())
			}
			return nt, nil
		}
	}
	return nil, txn.ErrNoSlot
}

func (e *Engine) free(t *txn.Transaction) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.slots[t.ID()] == t {
		e.slots[t.ID()] = nil
	}
	if e.metrics != nil {
		e.metrics.SetActiveTransactions(e.activeCountLocked())
	}
}

// Get reads key within t. If t has already buffered a write to key, the
// buffered value is returned without acquiring a lock (read-your-own-
// writes); otherwise the key's lock is acquired first.
func (e *Engine) Get(t *txn.Transaction, key string) ([]byte, error) {
	if t.Aborted() {
		return nil, txn.ErrAborted
	}
	key = e.truncateKey(key)
	if v, ok := t.BufferedValue(key); ok {
		return v, nil
	}
	if _, err := e.locks.Acquire(t, []byte(key)); err != nil {
		return nil, txn.ErrAborted
	}
	v, _ := e.store.Read(key)
	return v, nil
}

// Put acquires key's lock and buffers (key, value) for commit. A key
// longer than Config.KeyLengthMax is silently truncated before it is
// locked, stored, or buffered, so a Get on the same over-long key
// resolves to the same truncated identity.
func (e *Engine) Put(t *txn.Transaction, key string, value []byte) error {
	if t.Aborted() {
		return txn.ErrAborted
	}
	key = e.truncateKey(key)
	if _, err := e.locks.Acquire(t, []byte(key)); err != nil {
		return txn.ErrAborted
	}
	return t.BufferWrite(key, value)
}

// Commit applies t's buffered writes to the store, releases its locks,
// and frees its slot. Every touched key remains exclusively locked
// throughout, which is what makes the multi-key write atomic. If t was
// already aborted (e.g. chosen as a deadlock victim), Commit instead
// cleans up and returns ErrAborted; the handle is consumed either way.
func (e *Engine) Commit(t *txn.Transaction) error {
	if t.Aborted() {
		e.locks.ReleaseAll(t)
		e.free(t)
		if e.metrics != nil {
			e.metrics.IncAbort()
		}
		return txn.ErrAborted
	}

	for _, w := range t.WriteSet() {
		e.store.Replace(w.Key, w.Value)
	}
	e.graph.ClearOutgoing(t.ID())
	e.locks.ReleaseAll(t)
	e.free(t)

	if e.metrics != nil {
		e.metrics.IncCommit()
	}
	if e.logger != nil {
		e.logger.Infow("transaction committed", "txn", t.ID(), "writes", len(t.WriteSet()))
	}
	return nil
}

// Abort marks t aborted, releases its locks, and frees its slot. It
// never fails; the handle is consumed.
func (e *Engine) Abort(t *txn.Transaction) {
	t.MarkAborted()
	e.graph.ClearOutgoing(t.ID())
	e.locks.ReleaseAll(t)
	e.free(t)

	if e.metrics != nil {
		e.metrics.IncAbort()
	}
	if e.logger != nil {
		e.logger.Infow("transaction aborted", "txn", t.ID())
	}
}
