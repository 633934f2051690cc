package lock

import (
	"context"
	"time"
)

// Result is the outcome of a lock request (spec §4.10, mirroring the
// LK_GRANTED / LK_NOTGRANTED_* enum in lock_manager.h).
type Result int8

const (
	Granted Result = iota
	NotGrantedDueTimeout
	NotGrantedDueAborted
	NotGrantedDueError
)

// CondFlag selects whether LockObject may wait at all.
type CondFlag int8

const (
	UncondLock CondFlag = iota
	CondLock
)

const (
	// ZeroWait times out immediately instead of suspending.
	ZeroWait = 0
	// InfiniteWait suspends with no timeout.
	InfiniteWait = -1
)

// Request describes one call to LockObject.
type Request struct {
	TranIndex int32
	Key       ResourceKey
	Mode      Mode
	Cond      CondFlag
	// WaitMillis, when >= 0, bounds how long an unconditional request
	// suspends before returning NotGrantedDueTimeout. InfiniteWait (-1)
	// disables the bound.
	WaitMillis int32
	// Instant marks the request as instant-duration (released at
	// statement boundary rather than held to end of transaction); it
	// only affects InstantLockCount bookkeeping, tracked so a caller
	// can later tell lock_hold_object_instant-style grants apart from
	// ordinary holds.
	Instant bool
}

// LockObject implements the single-object request algorithm (spec
// §4.10). classMode, when the key is an instance, is the class-level
// mode currently held by the transaction on req.Key.ClassOID — callers
// are expected to have already looked that up (typically via
// LockObject on the class key first); passing ModeNULL disables the
// escalation short-circuit in step 1.
func (m *Manager) LockObject(ctx context.Context, req Request, classMode Mode) Result {
	tl := m.trans.GetOrCreate(req.TranIndex)

	if req.Key.Type == ResourceInstance && Escalates(classMode, req.Mode) {
		return Granted
	}

	res := m.resources.GetOrCreate(req.Key)
	res.Lock()

	if e := findEntry(res.holders, req.TranIndex); e != nil {
		return m.lockExistingHolder(ctx, tl, res, e, req)
	}

	if Comp(req.Mode, res.TotalHoldersMode) && Comp(req.Mode, res.TotalWaitersMode) {
		e := m.newHoldEntry(tl, res, req)
		res.holders = insertByUPR(res.holders, e)
		recomputeHoldersMode(res)
		m.checkNon2PL(res, req.Mode)
		res.Unlock()
		return Granted
	}

	return m.waitForGrant(ctx, tl, res, nil, req)
}

func (m *Manager) newHoldEntry(tl *TranLock, res *Resource, req Request) *Entry {
	e := tl.getFree()
	if e == nil {
		e = &Entry{}
	}
	e.TranIndex = req.TranIndex
	e.GrantedMode = req.Mode
	e.Count = 1
	e.Resource = res
	if req.Instant {
		e.InstantLockCount = 1
	}
	isClass := req.Key.Type != ResourceInstance
	tl.addHold(e, isClass)
	return e
}

// lockExistingHolder implements step 3: the requester already holds a
// lock on this resource. res is locked on entry; it is unlocked before
// every return.
func (m *Manager) lockExistingHolder(ctx context.Context, tl *TranLock, res *Resource, e *Entry, req Request) Result {
	newMode := Conv(req.Mode, e.GrantedMode)
	if newMode == e.GrantedMode {
		e.Count++
		if req.Instant {
			e.InstantLockCount++
		}
		res.Unlock()
		return Granted
	}

	if compatibleWithOthers(res, e, newMode) {
		e.GrantedMode = newMode
		e.Count++
		if req.Instant {
			e.InstantLockCount++
		}
		res.holders = removeEntry(res.holders, e)
		res.holders = insertByUPR(res.holders, e)
		recomputeHoldersMode(res)
		m.checkNon2PL(res, newMode)
		res.Unlock()
		return Granted
	}

	// Conversion request: must wait.
	req2 := req
	req2.Mode = newMode
	return m.waitForGrant(ctx, tl, res, e, req2)
}

// compatibleWithOthers reports whether mode is compatible with the
// combined granted_mode of every holder of res other than self
// (lock_grant_blocked_holder, lock_manager.c:2465-2481: the other
// holders' granted modes are folded together via Conv, then checked
// with a single Comp call — a holder's own pending conversion doesn't
// factor in, since it isn't granted yet).
func compatibleWithOthers(res *Resource, self *Entry, mode Mode) bool {
	combined := ModeNULL
	for _, h := range res.holders {
		if h == self {
			continue
		}
		combined = Conv(combined, h.GrantedMode)
	}
	return Comp(mode, combined)
}

// waitForGrant implements steps 4's fallthrough and step 5: create or
// update an entry as blocked, register it as a waiter (or reposition a
// converting holder), and suspend until resumed. existing is the
// transaction's current holder entry for a conversion, or nil for a
// brand-new waiter.
func (m *Manager) waitForGrant(ctx context.Context, tl *TranLock, res *Resource, existing *Entry, req Request) Result {
	if req.Cond == CondLock || req.WaitMillis == ZeroWait {
		if existing != nil {
			existing.BlockedMode = req.Mode
			recomputeWaitersAndHolders(res)
		}
		res.Unlock()
		return NotGrantedDueTimeout
	}

	var e *Entry
	isConversion := existing != nil
	if isConversion {
		e = existing
		e.BlockedMode = req.Mode
	} else {
		e = tl.getFree()
		if e == nil {
			e = &Entry{}
		}
		e.TranIndex = req.TranIndex
		e.BlockedMode = req.Mode
		e.Resource = res
	}

	e.wait = newWaitState(req.WaitMillis)
	e.wait.edgeSeqNum = m.nextEdgeSeq()
	e.wait.waitStartNs = time.Now().UnixNano()

	if isConversion {
		res.holders = removeEntry(res.holders, e)
		res.holders = insertByUPR(res.holders, e)
	} else {
		res.waiters = append(res.waiters, e)
	}
	recomputeWaitersAndHolders(res)

	tl.mu.Lock()
	tl.waiting = e
	tl.mu.Unlock()

	resumeCh := e.wait.resumeCh
	res.Unlock()

	result := awaitResume(ctx, resumeCh, req.WaitMillis)

	tl.mu.Lock()
	tl.waiting = nil
	tl.mu.Unlock()

	switch result {
	case Resumed:
		return Granted
	case ResumedTimeout:
		m.removeOwnWaitEntry(res, e, isConversion)
		return NotGrantedDueTimeout
	case ResumedDeadlockTimeout:
		m.removeOwnWaitEntry(res, e, isConversion)
		return NotGrantedDueTimeout
	case ResumedAbortedFirst, ResumedAbortedOther:
		m.removeOwnWaitEntry(res, e, isConversion)
		return NotGrantedDueAborted
	default:
		m.removeOwnWaitEntry(res, e, isConversion)
		return NotGrantedDueError
	}
}

func awaitResume(ctx context.Context, resumeCh <-chan WaitResult, waitMillis int32) WaitResult {
	if waitMillis == InfiniteWait {
		select {
		case r := <-resumeCh:
			return r
		case <-ctx.Done():
			return ResumedInterrupt
		}
	}
	timer := time.NewTimer(time.Duration(waitMillis) * time.Millisecond)
	defer timer.Stop()
	select {
	case r := <-resumeCh:
		return r
	case <-timer.C:
		return ResumedTimeout
	case <-ctx.Done():
		return ResumedInterrupt
	}
}

// removeOwnWaitEntry cleans up an entry that timed out, was aborted,
// or was interrupted while waiting — it never got a RESUMED grant, so
// it must remove itself rather than rely on a granter having already
// done so.
func (m *Manager) removeOwnWaitEntry(res *Resource, e *Entry, wasConversion bool) {
	res.Lock()
	if wasConversion {
		e.BlockedMode = ModeNULL
	} else {
		res.waiters = removeEntry(res.waiters, e)
	}
	recomputeWaitersAndHolders(res)
	empty := res.isEmpty()
	res.Unlock()
	if empty {
		m.resources.DeleteIfEmpty(res)
	}
}

func recomputeHoldersMode(res *Resource) {
	mode := ModeNULL
	for _, h := range res.holders {
		mode = Conv(mode, h.GrantedMode)
		if h.BlockedMode != ModeNULL {
			mode = Conv(mode, h.BlockedMode)
		}
	}
	res.TotalHoldersMode = mode
}

func recomputeWaitersMode(res *Resource) {
	mode := ModeNULL
	for _, w := range res.waiters {
		mode = Conv(mode, w.BlockedMode)
	}
	res.TotalWaitersMode = mode
}

func recomputeWaitersAndHolders(res *Resource) {
	recomputeHoldersMode(res)
	recomputeWaitersMode(res)
}
