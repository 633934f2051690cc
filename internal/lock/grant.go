package lock

// grantBlockedHolder implements §4.13's grant_blocked_holder: walk the
// holder list in order, promoting each blocked holder whose
// blocked_mode is compatible with the combined mode of every *other*
// holder, stopping at the first one that isn't. res must be locked by
// the caller.
func (m *Manager) grantBlockedHolder(res *Resource) {
	for _, h := range res.holders {
		if h.BlockedMode == ModeNULL {
			continue
		}
		if !compatibleWithOthers(res, h, h.BlockedMode) {
			return
		}
		h.GrantedMode = h.BlockedMode
		h.BlockedMode = ModeNULL
		res.holders = removeEntry(res.holders, h)
		res.holders = insertByUPR(res.holders, h)
		recomputeHoldersMode(res)
		m.checkNon2PL(res, h.GrantedMode)
		resumeWaiter(h, Resumed)
	}
}

// grantBlockedWaiter implements §4.13's grant_blocked_waiter: walk the
// waiter list in FIFO order, promoting each waiter whose blocked_mode
// is compatible with the resource's current total holders mode,
// stopping at the first incompatibility to preserve request order.
func (m *Manager) grantBlockedWaiter(res *Resource) {
	m.grantBlockedWaiterPartial(res, 0)
}

// grantBlockedWaiterPartial implements §4.13's
// grant_blocked_waiter_partial(from): only waiters from index `from`
// onward are considered, and the combined mode of waiters preceding
// `from` (who are assumed to still be waiting) is folded into the
// compatibility check so an earlier, still-blocked waiter's claim
// isn't silently bypassed by a later, weaker one.
func (m *Manager) grantBlockedWaiterPartial(res *Resource, from int) {
	precedingMode := ModeNULL
	for i := 0; i < from && i < len(res.waiters); i++ {
		precedingMode = Conv(precedingMode, res.waiters[i].BlockedMode)
	}

	i := from
	for i < len(res.waiters) {
		w := res.waiters[i]
		combinedHolders := res.TotalHoldersMode
		if precedingMode != ModeNULL {
			combinedHolders = Conv(combinedHolders, precedingMode)
		}
		if !Comp(w.BlockedMode, combinedHolders) {
			return
		}

		res.waiters = removeEntry(res.waiters, w)
		w.GrantedMode = w.BlockedMode
		w.BlockedMode = ModeNULL
		res.holders = insertByUPR(res.holders, w)
		recomputeHoldersMode(res)
		recomputeWaitersMode(res)
		m.checkNon2PL(res, w.GrantedMode)
		resumeWaiter(w, Resumed)
		// Don't advance i: the waiter at this index was just removed,
		// so the next waiter has shifted into it.
	}
}

// resumeWaiter delivers result to an entry's suspended goroutine, if
// it is currently waiting. Safe to call on an entry with no wait
// state (a no-op), since release paths may call this opportunistically.
func resumeWaiter(e *Entry, result WaitResult) {
	if e.wait == nil {
		return
	}
	select {
	case e.wait.resumeCh <- result:
	default:
	}
	e.wait = nil
}
