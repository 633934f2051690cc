package lock

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// holderSnapshot is the comparable, cycle-free projection of an Entry
// list used by the cmp-based assertions below: *Entry carries back
// pointers (Resource, ClassEntry, tranNext/tranPrev) that cmp can't
// walk without an explicit allow-list, so tests compare this instead
// of the raw []*Entry.
type holderSnapshot struct {
	TranIndex   int32
	GrantedMode Mode
	BlockedMode Mode
}

func snapshotHolders(holders []*Entry) []holderSnapshot {
	out := make([]holderSnapshot, len(holders))
	for i, h := range holders {
		out[i] = holderSnapshot{TranIndex: h.TranIndex, GrantedMode: h.GrantedMode, BlockedMode: h.BlockedMode}
	}
	return out
}

func TestInsertByUPRProducesExpectedOrderViaCmp(t *testing.T) {
	h := []*Entry{granted(1, ModeS), granted(2, ModeS)}
	h = insertByUPR(h, granted(3, ModeS))

	want := []holderSnapshot{
		{TranIndex: 1, GrantedMode: ModeS},
		{TranIndex: 2, GrantedMode: ModeS},
		{TranIndex: 3, GrantedMode: ModeS},
	}
	if diff := cmp.Diff(want, snapshotHolders(h), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("holder order mismatch (-want +got):\n%s", diff)
	}
}

func TestGrantBlockedWaiterPartialOrderViaCmp(t *testing.T) {
	res := newResource(instanceKey(1))
	res.holders = append(res.holders, granted(1, ModeS))
	res.TotalHoldersMode = ModeS

	w1 := &Entry{TranIndex: 2, BlockedMode: ModeS, wait: newWaitState(InfiniteWait)}
	w2 := &Entry{TranIndex: 3, BlockedMode: ModeS, wait: newWaitState(InfiniteWait)}
	res.waiters = []*Entry{w1, w2}

	testManager().grantBlockedWaiterPartial(res, 0)

	want := []holderSnapshot{
		{TranIndex: 1, GrantedMode: ModeS},
		{TranIndex: 2, GrantedMode: ModeS},
		{TranIndex: 3, GrantedMode: ModeS},
	}
	if diff := cmp.Diff(want, snapshotHolders(res.holders), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("promoted holder order mismatch (-want +got):\n%s", diff)
	}
}
