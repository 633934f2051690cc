package lock

import "context"

// escalatedTarget returns the class-level mode lock escalation should
// attempt to acquire given the class's current intention mode (spec
// §4.14). ModeNULL means no escalation is needed or possible from this
// starting mode.
func escalatedTarget(classMode Mode) Mode {
	switch classMode {
	case ModeIX, ModeSIX:
		return ModeX
	case ModeIS:
		return ModeS
	default:
		return ModeNULL
	}
}

// MaybeEscalate checks whether classEntry has accumulated enough
// instance-level granules to warrant promoting its transaction's class
// lock, and if so attempts the promotion (spec §4.14). Escalation is
// serialized per transaction via TranLock.LockEscalationOn so two
// goroutines racing to escalate the same class don't both attempt it.
//
// Returns escalated=true if the class lock was promoted; on success
// the instance-level entries the new class lock now dominates are
// released from the resource table (spec §4.14: "clear instance locks
// that are dominated by the new class lock"). mustAbort=true means the
// attempt failed and the configured policy requires the caller to
// abort the transaction (spec §4.14's TRAN_ABORT_DUE_ROLLBACK_ON_ESCALATION).
func (m *Manager) MaybeEscalate(ctx context.Context, tl *TranLock, classEntry *Entry, classKey ResourceKey) (escalated, mustAbort bool) {
	if classEntry.NGranules < m.cfg.EscalationThreshold {
		return false, false
	}

	tl.mu.Lock()
	if tl.LockEscalationOn {
		tl.mu.Unlock()
		return false, false
	}
	tl.LockEscalationOn = true
	tl.mu.Unlock()
	defer func() {
		tl.mu.Lock()
		tl.LockEscalationOn = false
		tl.mu.Unlock()
	}()

	target := escalatedTarget(classEntry.GrantedMode)
	if target == ModeNULL {
		return false, false
	}

	result := m.LockObject(ctx, Request{
		TranIndex:  classEntry.TranIndex,
		Key:        classKey,
		Mode:       target,
		Cond:       CondLock,
		WaitMillis: ZeroWait,
	}, ModeNULL)

	if result != Granted {
		return false, m.cfg.RollbackOnEscalation
	}

	// The conditional LockObject call found the existing class entry
	// and converted it in place (Conv(target, classEntry.GrantedMode) ==
	// target since target already dominates), bumping its Count. Undo
	// the extra recursive count so escalation doesn't leak a reference.
	res, ok := m.resources.Get(classKey)
	if ok {
		res.Lock()
		if e := findEntry(res.holders, classEntry.TranIndex); e != nil && e.Count > 1 {
			e.Count--
		}
		res.Unlock()
	}

	m.pruneDominatedInstanceLocks(tl, classEntry)

	return true, false
}

// pruneDominatedInstanceLocks releases every instance-level entry of
// tl attributed to classEntry, now that classEntry's mode covers them
// (spec §4.14 mandatory scenario S6: escalating to an X class lock
// removes the instance entries it dominates from the resource table).
// Snapshotting under tl.mu before releasing avoids mutating
// tl.instHold while iterating it, since releaseHolder removes each
// entry from that same slice.
func (m *Manager) pruneDominatedInstanceLocks(tl *TranLock, classEntry *Entry) {
	tl.mu.Lock()
	dominated := make([]*Entry, 0, len(tl.instHold))
	for _, e := range tl.instHold {
		if e.ClassEntry == classEntry {
			dominated = append(dominated, e)
		}
	}
	tl.mu.Unlock()

	for _, e := range dominated {
		m.UnlockObject(UnlockRequest{TranIndex: classEntry.TranIndex, Key: e.Resource.Key, Force: true})
	}
}
