package lock

// insertByUPR inserts e into holders at the position dictated by the
// Upgrader Positioning Rule (spec §4.11) and returns the updated
// slice. holders must not already contain e.
func insertByUPR(holders []*Entry, e *Entry) []*Entry {
	if e.BlockedMode == ModeNULL {
		return insertCaseA(holders, e)
	}
	return insertCaseB(holders, e)
}

// Case A: e isn't itself blocked (a plain new holder, or a converter
// whose conversion was already granted). Place it at the first
// position where every preceding holder is also unblocked — i.e.
// directly before the first blocked holder, or at the end if there is
// none.
func insertCaseA(holders []*Entry, e *Entry) []*Entry {
	for i, h := range holders {
		if h.BlockedMode != ModeNULL {
			return insertAt(holders, i, e)
		}
	}
	return append(holders, e)
}

// Case B: e is itself a blocked converter. Find ta, tb, tc per spec
// and insert after the first of them found, or at the head if none
// match.
func insertCaseB(holders []*Entry, e *Entry) []*Entry {
	var ta, tb, tc = -1, -1, -1

	for i, h := range holders {
		if h.BlockedMode == ModeNULL {
			if tc == -1 {
				tc = i
			}
			continue
		}
		if ta == -1 && Comp(e.BlockedMode, h.BlockedMode) {
			ta = i
		}
		if tb == -1 && Comp(e.BlockedMode, h.GrantedMode) && !Comp(h.BlockedMode, e.GrantedMode) {
			tb = i
		}
	}

	switch {
	case ta != -1:
		return insertAt(holders, ta+1, e)
	case tb != -1:
		return insertAt(holders, tb+1, e)
	case tc != -1:
		return insertAt(holders, tc+1, e)
	default:
		return insertAt(holders, 0, e)
	}
}

func insertAt(holders []*Entry, idx int, e *Entry) []*Entry {
	holders = append(holders, nil)
	copy(holders[idx+1:], holders[idx:])
	holders[idx] = e
	return holders
}

// removeEntry removes e from list, returning the updated slice. It is
// a no-op (returns list unchanged) if e is not present.
func removeEntry(list []*Entry, e *Entry) []*Entry {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func findEntry(list []*Entry, tranIndex int32) *Entry {
	for _, e := range list {
		if e.TranIndex == tranIndex {
			return e
		}
	}
	return nil
}
