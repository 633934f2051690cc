// Package txid allocates small, dense transaction indices for the lock
// manager to key its tables by. It is a deliberately minimal stand-in
// for CUBRID's logtb transaction table, which owns the real notion of
// transaction identity (active/aborted state, isolation level, MVCC
// bookkeeping) and is explicitly out of scope here (spec.md §1) — the
// lock manager only needs *an* integer it can treat opaquely.
package txid

import "sync"

// Index is a transaction index: a small, positive, reusable integer.
type Index int32

// Allocator hands out and reclaims Index values from a free list,
// reusing the lowest-numbered freed index before growing the space.
type Allocator struct {
	mu    sync.Mutex
	free  []Index
	next  Index
	inUse map[Index]bool
}

// NewAllocator returns an empty Allocator. Indices start at 1; 0 is
// reserved so callers can use it as a "no transaction" zero value.
func NewAllocator() *Allocator {
	return &Allocator{next: 1, inUse: make(map[Index]bool)}
}

// Alloc returns a fresh, previously-unassigned Index.
func (a *Allocator) Alloc() Index {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		low := 0
		for i := 1; i < n; i++ {
			if a.free[i] < a.free[low] {
				low = i
			}
		}
		idx := a.free[low]
		a.free = append(a.free[:low], a.free[low+1:]...)
		a.inUse[idx] = true
		return idx
	}

	idx := a.next
	a.next++
	a.inUse[idx] = true
	return idx
}

// Release returns idx to the free list. Releasing an index that was
// never allocated, or was already released, is a no-op.
func (a *Allocator) Release(idx Index) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.inUse[idx] {
		return
	}
	delete(a.inUse, idx)
	a.free = append(a.free, idx)
}

// IsActive reports whether idx is currently allocated. Nothing in this
// module installs it as a lock.ActiveChecker; a lock.Manager built with
// a nil checker treats every transaction as active.
func (a *Allocator) IsActive(idx Index) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inUse[idx]
}

// Count returns the number of currently allocated indices.
func (a *Allocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inUse)
}
