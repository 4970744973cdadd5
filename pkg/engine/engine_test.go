package engine

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"lockkv/pkg/txn"
)

func newTestEngine(cfg Config) *Engine {
	return New(cfg, nil, nil)
}

// Test_ClassicTwoPartyDeadlock is scenario S1: T1 (older) puts x then
// wants y; T2 (younger) puts y then wants x. T2 is the youngest member
// of the resulting cycle and is aborted; T1 commits with x=A, y=B.
func Test_ClassicTwoPartyDeadlock(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	t1, err := e.Begin()
	if err != nil {
		t.Fatalf("begin t1: %v", err)
	}
	t2, err := e.Begin()
	if err != nil {
		t.Fatalf("begin t2: %v", err)
	}

	if err := e.Put(t1, "x", []byte("A")); err != nil {
		t.Fatalf("t1 put x: %v", err)
	}
	if err := e.Put(t2, "y", []byte("C")); err != nil {
		t.Fatalf("t2 put y: %v", err)
	}

	var t1Err, t2Err error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		t1Err = e.Put(t1, "y", []byte("B"))
	}()
	go func() {
		defer wg.Done()
		t2Err = e.Put(t2, "x", []byte("D"))
		// The victim's own goroutine aborts it, releasing y so t1 can
		// take it; the engine never releases a victim's locks by itself.
		if t2Err != nil {
			e.Abort(t2)
		}
	}()
	wg.Wait()

	if t2Err != txn.ErrAborted {
		t.Fatalf("expected t2 (younger) to be the deadlock victim, got %v", t2Err)
	}
	if t1Err != nil {
		t.Fatalf("expected t1 to proceed, got %v", t1Err)
	}

	if err := e.Commit(t1); err != nil {
		t.Fatalf("t1 commit: %v", err)
	}

	if v, _ := e.store.Read("x"); string(v) != "A" {
		t.Errorf("expected x=A, got %q", v)
	}
	if v, _ := e.store.Read("y"); string(v) != "B" {
		t.Errorf("expected y=B, got %q", v)
	}

	// S4: a fresh transaction wanting x must not wait behind T2's
	// discarded wait-edge; only the live holder (none now, t1 committed)
	// governs whether it blocks.
	t3, err := e.Begin()
	if err != nil {
		t.Fatalf("begin t3: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- e.Put(t3, "x", []byte("Z")) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("t3 put x: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("t3 blocked on x despite no live holder; T2's wait-edge was not cleared on abort")
	}
	if err := e.Commit(t3); err != nil {
		t.Fatalf("t3 commit: %v", err)
	}
}

// Test_ReentrantAcquireCommitsLatestValue is scenario S2.
func Test_ReentrantAcquireCommitsLatestValue(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	tx, err := e.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Put(tx, "x", []byte("1")); err != nil {
		t.Fatalf("put 1: %v", err)
	}
	if err := e.Put(tx, "x", []byte("2")); err != nil {
		t.Fatalf("put 2: %v", err)
	}
	if got := len(tx.HeldLocks()); got != 1 {
		t.Errorf("expected exactly one held lock for x, got %d", got)
	}
	if err := e.Commit(tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v, _ := e.store.Read("x"); string(v) != "2" {
		t.Errorf("expected x=2, got %q", v)
	}
}

// Test_NoConflictConcurrencyAllCommit is scenario S3.
func Test_NoConflictConcurrencyAllCommit(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	const n = 10
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			tx, err := e.Begin()
			if err != nil {
				errs[i] = err
				return
			}
			key := fmt.Sprintf("k%d", i)
			if err := e.Put(tx, key, []byte{byte(i)}); err != nil {
				errs[i] = err
				return
			}
			errs[i] = e.Commit(tx)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("txn %d: unexpected error %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		key := fmt.Sprintf("k%d", i)
		if v, ok := e.store.Read(key); !ok || v[0] != byte(i) {
			t.Errorf("expected %s=%d, got %v (ok=%v)", key, i, v, ok)
		}
	}
}

// Test_ThreePartyCycleYoungestAborted is scenario S5.
func Test_ThreePartyCycleYoungestAborted(t *testing.T) {
	e := newTestEngine(DefaultConfig())

	t1, _ := e.Begin() // oldest
	t2, _ := e.Begin()
	t3, _ := e.Begin() // youngest

	if err := e.Put(t1, "x", []byte("x1")); err != nil {
		t.Fatalf("t1 put x: %v", err)
	}
	if err := e.Put(t2, "y", []byte("y1")); err != nil {
		t.Fatalf("t2 put y: %v", err)
	}
	if err := e.Put(t3, "z", []byte("z1")); err != nil {
		t.Fatalf("t3 put z: %v", err)
	}

	// Each goroutine finishes its own transaction: the victim aborts,
	// releasing z for T2, and T2 commits, releasing y for T1.
	var t1Err, t2Err, t3Err error
	var t1CommitErr, t2CommitErr error
	var wg sync.WaitGroup
	wg.Add(3)
	go func() { // T1 wants y (held by T2)
		defer wg.Done()
		if t1Err = e.Put(t1, "y", []byte("y2")); t1Err == nil {
			t1CommitErr = e.Commit(t1)
		}
	}()
	go func() { // T2 wants z (held by T3)
		defer wg.Done()
		if t2Err = e.Put(t2, "z", []byte("z2")); t2Err == nil {
			t2CommitErr = e.Commit(t2)
		}
	}()
	go func() { // T3 wants x, closes the cycle
		defer wg.Done()
		if t3Err = e.Put(t3, "x", []byte("x2")); t3Err != nil {
			e.Abort(t3)
		}
	}()
	wg.Wait()

	if t3Err != txn.ErrAborted {
		t.Fatalf("expected t3 (youngest) to be the victim, got t1=%v t2=%v t3=%v", t1Err, t2Err, t3Err)
	}

	if t2Err != nil {
		t.Fatalf("expected t2 to eventually acquire z: %v", t2Err)
	}
	if t2CommitErr != nil {
		t.Fatalf("t2 commit: %v", t2CommitErr)
	}
	if t1Err != nil {
		t.Fatalf("expected t1 to eventually acquire y: %v", t1Err)
	}
	if t1CommitErr != nil {
		t.Fatalf("t1 commit: %v", t1CommitErr)
	}
}

// Test_WriteSetCapacity is scenario S6.
func Test_WriteSetCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxWritesPerTxn = 4
	e := newTestEngine(cfg)

	tx, err := e.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	for i := 0; i < cfg.MaxWritesPerTxn; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := e.Put(tx, key, []byte{byte(i)}); err != nil {
			t.Fatalf("put %d: unexpected error %v", i, err)
		}
	}
	if err := e.Put(tx, "overflow", []byte("x")); err != txn.ErrWriteSetFull {
		t.Fatalf("expected ErrWriteSetFull, got %v", err)
	}
	if got := len(tx.WriteSet()); got != cfg.MaxWritesPerTxn {
		t.Fatalf("expected write set to still hold %d entries, got %d", cfg.MaxWritesPerTxn, got)
	}
	if err := e.Commit(tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, ok := e.store.Read("overflow"); ok {
		t.Errorf("overflow key should never have been buffered, let alone committed")
	}
}

// Test_OverLongKeyIsTruncatedConsistently checks that a key longer than
// KeyLengthMax is silently shortened, and that Get and Put agree on the
// truncated identity so a later Get with the same over-long key sees
// the value a Put with it wrote.
func Test_OverLongKeyIsTruncatedConsistently(t *testing.T) {
	cfg := DefaultConfig()
	cfg.KeyLengthMax = 8
	e := newTestEngine(cfg)

	longKey := "0123456789abcdef" // 16 bytes, twice the limit
	truncated := longKey[:cfg.KeyLengthMax]

	tx, err := e.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Put(tx, longKey, []byte("v1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if v, err := e.Get(tx, longKey); err != nil || string(v) != "v1" {
		t.Fatalf("get with long key: %v, %q", err, v)
	}
	if v, err := e.Get(tx, truncated); err != nil || string(v) != "v1" {
		t.Fatalf("get with pre-truncated key: %v, %q", err, v)
	}
	if err := e.Commit(tx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if v, ok := e.store.Read(truncated); !ok || string(v) != "v1" {
		t.Errorf("expected store to hold value under truncated key %q, got %q (ok=%v)", truncated, v, ok)
	}
	if _, ok := e.store.Read(longKey); ok {
		t.Errorf("store should never see the untruncated key")
	}
}

// Test_RandomSchedulesConverge runs random overlapping schedules and
// checks that after quiescence no key is left in a state no committed
// write produced and every transaction slot has been freed.
func Test_RandomSchedulesConverge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTransactions = 16
	e := newTestEngine(cfg)

	const numTxns = 16
	const numKeys = 5
	rng := rand.New(rand.NewSource(42))

	type outcome struct {
		committed bool
		writes    map[string]string
	}
	outcomes := make([]outcome, numTxns)
	var wg sync.WaitGroup
	wg.Add(numTxns)
	for i := 0; i < numTxns; i++ {
		go func(i int) {
			defer wg.Done()
			tx, err := e.Begin()
			if err != nil {
				return
			}
			writes := map[string]string{}
			nKeys := 1 + rng.Intn(numKeys)
			aborted := false
			for j := 0; j < nKeys; j++ {
				key := fmt.Sprintf("key%d", rng.Intn(numKeys))
				val := fmt.Sprintf("v%d.%d", i, j)
				if err := e.Put(tx, key, []byte(val)); err != nil {
					aborted = true
					break
				}
				writes[key] = val
			}
			if aborted {
				e.Abort(tx)
				outcomes[i] = outcome{committed: false}
				return
			}
			if err := e.Commit(tx); err != nil {
				outcomes[i] = outcome{committed: false}
				return
			}
			outcomes[i] = outcome{committed: true, writes: writes}
		}(i)
	}
	wg.Wait()

	// The last committed writer of each key (by completion order recorded
	// above is not totally ordered across goroutines, so instead check the
	// weaker, still-meaningful property: every key currently in the store
	// was written by some transaction that this test recorded as
	// committed, and every slot was freed.
	committedValues := map[string]bool{}
	for _, o := range outcomes {
		if !o.committed {
			continue
		}
		for _, v := range o.writes {
			committedValues[v] = true
		}
	}
	for k := 0; k < numKeys; k++ {
		key := fmt.Sprintf("key%d", k)
		if v, ok := e.store.Read(key); ok && !committedValues[string(v)] {
			t.Errorf("key %s holds value %q not attributable to any committed transaction", key, v)
		}
	}

	e.mu.Lock()
	for id, tx := range e.slots {
		if tx != nil {
			t.Errorf("slot %d still occupied after quiescence", id)
		}
	}
	e.mu.Unlock()
}
