package lock

// UnlockRequest describes a call to UnlockObject (spec §4.12, mirrors
// lock_unlock_object's arguments).
type UnlockRequest struct {
	TranIndex int32
	Key       ResourceKey
	// Force, when true, releases the entry outright regardless of its
	// recursive count (lock_unlock_object's `force` parameter).
	Force bool
	// MoveToNon2PL records this release on the resource's non-2PL list
	// (spec §4.15), which only applies under READ COMMITTED before
	// end-of-transaction; callers at a higher layer decide this.
	MoveToNon2PL bool
}

// UnlockObject implements the release algorithm (spec §4.12).
func (m *Manager) UnlockObject(req UnlockRequest) {
	tl, ok := m.trans.Get(req.TranIndex)
	if !ok {
		return
	}
	res, ok := m.resources.Get(req.Key)
	if !ok {
		return
	}

	res.Lock()

	if e := findEntry(res.holders, req.TranIndex); e != nil {
		m.releaseHolder(tl, res, e, req)
		return
	}

	if idx, w := findWaiterIndex(res.waiters, req.TranIndex); w != nil {
		res.waiters = removeEntry(res.waiters, w)
		recomputeWaitersMode(res)
		m.grantBlockedWaiterPartial(res, idx)
		m.finishRelease(res)
		return
	}

	res.Unlock()
}

func findWaiterIndex(waiters []*Entry, tranIndex int32) (int, *Entry) {
	for i, w := range waiters {
		if w.TranIndex == tranIndex {
			return i, w
		}
	}
	return -1, nil
}

// releaseHolder implements steps 1 and 3 of §4.12 for an entry found
// on the holder list. res is locked on entry.
func (m *Manager) releaseHolder(tl *TranLock, res *Resource, e *Entry, req UnlockRequest) {
	if !req.Force {
		e.Count--
		if e.Count > 0 && e.BlockedMode == ModeNULL {
			res.Unlock()
			return
		}
		if e.Count > 0 {
			// Still held but blocked on a conversion the releaser is
			// abandoning: drop the pending conversion, leave the grant.
			e.BlockedMode = ModeNULL
			recomputeWaitersAndHolders(res)
			res.Unlock()
			return
		}
	}

	isClass := req.Key.Type != ResourceInstance
	res.holders = removeEntry(res.holders, e)
	tl.removeHold(e, isClass)
	if e.ClassEntry != nil {
		e.ClassEntry.NGranules--
	}

	if req.MoveToNon2PL && !req.Force {
		non2pl := &Entry{TranIndex: req.TranIndex, GrantedMode: e.GrantedMode, Resource: res}
		res.non2pl = append(res.non2pl, non2pl)
		tl.addNon2PL(non2pl)
	}

	tl.putFree(e)

	recomputeHoldersMode(res)
	m.finishRelease(res)
}

// finishRelease implements steps 5-6: delete the resource if it's now
// wholly empty, otherwise run the granting policy against whatever
// holders/waiters remain. res is locked on entry and is unlocked by
// this call.
func (m *Manager) finishRelease(res *Resource) {
	if res.isEmpty() {
		res.Unlock()
		m.resources.DeleteIfEmpty(res)
		return
	}

	m.grantBlockedHolder(res)
	m.grantBlockedWaiter(res)
	res.Unlock()
}
