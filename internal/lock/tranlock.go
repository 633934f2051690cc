package lock

import "sync"

// freePoolCap bounds a transaction's local free-entry pool before
// surplus released entries are simply left for GC rather than
// recycled (spec §3.2: "local free-entry pool + count (cap 10)").
const freePoolCap = 10

// TranLock is the per-transaction lock bookkeeping struct: its hold
// lists at each granularity, its non-2PL list, its local entry pool,
// and escalation/instant-mode state (spec §3.2).
type TranLock struct {
	TranIndex int32

	mu sync.Mutex

	instHold  []*Entry
	classHold []*Entry
	rootHold  *Entry

	non2pl          []*Entry
	numInconsNon2PL int32

	freePool []*Entry

	LockEscalationOn  bool
	IsInstantDuration bool

	// waiting points at the Entry this transaction is currently
	// suspended on, or nil. Set under Resource.Lock() by the requester
	// before it suspends. The deadlock detector builds its edges from
	// the resource lists and reads this field only for victim selection
	// and resolution (tranCanTimeout, resolveVictim).
	waiting *Entry
}

func NewTranLock(tranIndex int32) *TranLock {
	return &TranLock{TranIndex: tranIndex}
}

func (t *TranLock) addHold(e *Entry, isClass bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if isClass {
		t.classHold = append(t.classHold, e)
	} else {
		t.instHold = append(t.instHold, e)
	}
}

func (t *TranLock) removeHold(e *Entry, isClass bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	list := &t.instHold
	if isClass {
		list = &t.classHold
	}
	for i, x := range *list {
		if x == e {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// getFree returns a recycled Entry from the local pool, or nil if the
// pool is empty (caller allocates fresh).
func (t *TranLock) getFree() *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.freePool)
	if n == 0 {
		return nil
	}
	e := t.freePool[n-1]
	t.freePool = t.freePool[:n-1]
	return e
}

// putFree returns e to the local pool if there's room, otherwise drops
// it for the garbage collector (spec §3.2 cap of 10; the original
// falls back to a shared free-list beyond the cap, which in Go is just
// "let GC have it" since there's no benefit to a second manual pool).
func (t *TranLock) putFree(e *Entry) {
	e.reset()
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.freePool) < freePoolCap {
		t.freePool = append(t.freePool, e)
	}
}

// addNon2PL appends e to this transaction's non-2PL list (spec §4.15).
func (t *TranLock) addNon2PL(e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.non2pl = append(t.non2pl, e)
}

// TranLockTable owns the TranLock for every active transaction index.
type TranLockTable struct {
	mu sync.Mutex
	m  map[int32]*TranLock
}

func NewTranLockTable() *TranLockTable {
	return &TranLockTable{m: make(map[int32]*TranLock)}
}

func (t *TranLockTable) GetOrCreate(tranIndex int32) *TranLock {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tl, ok := t.m[tranIndex]; ok {
		return tl
	}
	tl := NewTranLock(tranIndex)
	t.m[tranIndex] = tl
	return tl
}

func (t *TranLockTable) Get(tranIndex int32) (*TranLock, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	tl, ok := t.m[tranIndex]
	return tl, ok
}

func (t *TranLockTable) Remove(tranIndex int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, tranIndex)
}

// Snapshot returns every currently tracked transaction index, used by
// the deadlock detector to reset per-pass WFG node state (spec §4.16
// step 1).
func (t *TranLockTable) Snapshot() []int32 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int32, 0, len(t.m))
	for idx := range t.m {
		out = append(out, idx)
	}
	return out
}
