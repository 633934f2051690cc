package lock

// IsolationIncons describes one non-2PL entry that turned out to be
// inconsistent with a later acquisition (spec §4.15) — the resource's
// object no longer reflects what the releasing transaction assumed
// when it let go of its lock early.
type IsolationIncons struct {
	TranIndex int32
	Key       ResourceKey
	Mode      Mode
}

// InconNonTwoPhaseLock tags a non-2PL entry promoted to inconsistent
// (spec §4.15's INCON_NON_TWO_PHASE_LOCK), distinct from an ordinary,
// still-consistent non-2PL record.
const InconNonTwoPhaseLock = ModeNULL - 1

// checkNon2PL inspects res's non-2PL list against a freshly granted
// mode, promoting any entry incompatible with it to inconsistent and
// bumping the releasing transaction's incons counter (spec §4.15). res
// must be locked by the caller.
func (m *Manager) checkNon2PL(res *Resource, grantedMode Mode) {
	for _, n := range res.non2pl {
		if n.GrantedMode == InconNonTwoPhaseLock {
			continue
		}
		if !Comp(grantedMode, n.GrantedMode) {
			n.GrantedMode = InconNonTwoPhaseLock
			if tl, ok := m.trans.Get(n.TranIndex); ok {
				tl.mu.Lock()
				tl.numInconsNon2PL++
				tl.mu.Unlock()
			}
		}
	}
}

// NotifyIsolationIncons walks tranIndex's non-2PL entries and invokes
// fn for every one currently marked inconsistent, matching
// lock_notify_isolation_incons's user-callback signature. It does not
// clear the entries — callers that want to reset the counter do so
// themselves once they've acted on every reported inconsistency (e.g.
// by decaching the affected objects).
func (m *Manager) NotifyIsolationIncons(tranIndex int32, fn func(key ResourceKey) bool) {
	tl, ok := m.trans.Get(tranIndex)
	if !ok {
		return
	}
	tl.mu.Lock()
	entries := append([]*Entry(nil), tl.non2pl...)
	tl.mu.Unlock()

	for _, n := range entries {
		if n.GrantedMode != InconNonTwoPhaseLock {
			continue
		}
		if !fn(n.Resource.Key) {
			return
		}
	}
}
