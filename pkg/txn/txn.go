// Package txn implements the transaction handle: its slot id, start
// sequence, abort flag, local write buffer, and the set of locks it
// currently holds. The begin/get/put/commit/abort lifecycle over these
// handles lives in lockkv/pkg/engine.
package txn

import (
	"sync/atomic"

	"lockkv/pkg/lock"
)

// WriteEntry is one buffered (key, value) pair awaiting commit.
type WriteEntry struct {
	Key   string
	Value []byte
}

// Transaction is a single unit of get/put operations, committed or
// aborted as a whole. A live Transaction occupies exactly one slot in
// the engine's transaction table; freeing the slot destroys it.
//
// Transaction is designed for one owning goroutine: only that goroutine
// calls Get/Put/Commit/Abort, RecordLock, or BufferWrite. Aborted may be
// observed (and set) from any goroutine, which is why it is atomic.
type Transaction struct {
	id        int
	startSeq  uint64
	aborted   atomic.Bool
	heldLocks []*lock.Lock
	writeSet  []WriteEntry
	maxWrites int
}

// New creates a Transaction for slot id with the given start sequence.
// maxWrites bounds the write-set buffer.
func New(id int, startSeq uint64, maxWrites int) *Transaction {
	return &Transaction{
		id:        id,
		startSeq:  startSeq,
		maxWrites: maxWrites,
	}
}

// ID returns the transaction's fixed slot id.
func (t *Transaction) ID() int { return t.id }

// StartSeq returns the monotonic sequence assigned at begin; larger is
// younger, and is the sole input to victim selection.
func (t *Transaction) StartSeq() uint64 { return t.startSeq }

// Aborted reports whether the transaction has been marked aborted, by
// its own thread or by deadlock victim selection on another thread.
func (t *Transaction) Aborted() bool { return t.aborted.Load() }

// MarkAborted sets the abort flag. Monotone: once true, never cleared.
func (t *Transaction) MarkAborted() { t.aborted.Store(true) }

// RecordLock records lk as held by this transaction, deduplicated.
func (t *Transaction) RecordLock(lk *lock.Lock) {
	if t.HasLock(lk) {
		return
	}
	t.heldLocks = append(t.heldLocks, lk)
}

// HasLock reports whether lk is already recorded as held.
func (t *Transaction) HasLock(lk *lock.Lock) bool {
	for _, h := range t.heldLocks {
		if h == lk {
			return true
		}
	}
	return false
}

// HeldLocks returns the locks currently recorded as held by this
// transaction, in acquisition order.
func (t *Transaction) HeldLocks() []*lock.Lock { return t.heldLocks }

// ClearHeldLocks empties the held-locks set, called once every held
// lock has actually been released.
func (t *Transaction) ClearHeldLocks() { t.heldLocks = nil }

// BufferedValue implements read-your-own-writes: it returns the most
// recently buffered value for key, if this transaction has written it.
//
// This relies on the invariant that the Put which buffered the value
// already acquired (and still holds) the key's lock; no lock is taken
// here. That invariant holds until this transaction commits or aborts.
func (t *Transaction) BufferedValue(key string) ([]byte, bool) {
	for i := len(t.writeSet) - 1; i >= 0; i-- {
		if t.writeSet[i].Key == key {
			return t.writeSet[i].Value, true
		}
	}
	return nil, false
}

// BufferWrite appends (key, value) to the write set. Duplicates are
// permitted; BufferedValue always returns the most recent.
func (t *Transaction) BufferWrite(key string, value []byte) error {
	if len(t.writeSet) >= t.maxWrites {
		return ErrWriteSetFull
	}
	t.writeSet = append(t.writeSet, WriteEntry{Key: key, Value: value})
	return nil
}

// WriteSet returns the buffered writes in commit order.
func (t *Transaction) WriteSet() []WriteEntry { return t.writeSet }
