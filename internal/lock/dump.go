package lock

import "github.com/davecgh/go-spew/spew"

// dumpResource is the plain-data view of a Resource that Dump renders,
// since spew.Sdump-ing a *Resource directly would walk its mutex and
// every entry's back-pointers and print a confusing web of repeated
// addresses.
type dumpResource struct {
	Key              ResourceKey
	TotalHoldersMode Mode
	TotalWaitersMode Mode
	Holders          []dumpEntry
	Waiters          []dumpEntry
	NonTwoPhaseLock  []dumpEntry
}

type dumpEntry struct {
	TranIndex   int32
	GrantedMode Mode
	BlockedMode Mode
	Count       int32
	NGranules   int32
}

func toDumpEntry(e *Entry) dumpEntry {
	return dumpEntry{
		TranIndex:   e.TranIndex,
		GrantedMode: e.GrantedMode,
		BlockedMode: e.BlockedMode,
		Count:       e.Count,
		NGranules:   e.NGranules,
	}
}

// Dump renders every resource currently held or waited on, in the
// style of lock_dump_acquired: a point-in-time snapshot for debug
// logging, not a consistent, lock-ordered traversal of the whole
// table.
func (m *Manager) Dump() string {
	var out []dumpResource
	for _, r := range m.resources.Snapshot() {
		r.Lock()
		dr := dumpResource{
			Key:              r.Key,
			TotalHoldersMode: r.TotalHoldersMode,
			TotalWaitersMode: r.TotalWaitersMode,
		}
		for _, e := range r.holders {
			dr.Holders = append(dr.Holders, toDumpEntry(e))
		}
		for _, e := range r.waiters {
			dr.Waiters = append(dr.Waiters, toDumpEntry(e))
		}
		for _, e := range r.non2pl {
			dr.NonTwoPhaseLock = append(dr.NonTwoPhaseLock, toDumpEntry(e))
		}
		r.Unlock()
		out = append(out, dr)
	}
	return spew.Sdump(out)
}
