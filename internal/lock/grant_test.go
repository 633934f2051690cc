package lock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGrantBlockedWaiterPartialStopsAtFirstIncompatibility(t *testing.T) {
	res := newResource(instanceKey(1))
	res.holders = append(res.holders, granted(1, ModeS))
	res.TotalHoldersMode = ModeS

	w1 := &Entry{TranIndex: 2, BlockedMode: ModeS, wait: newWaitState(InfiniteWait)}
	w2 := &Entry{TranIndex: 3, BlockedMode: ModeX, wait: newWaitState(InfiniteWait)}
	w3 := &Entry{TranIndex: 4, BlockedMode: ModeS, wait: newWaitState(InfiniteWait)}
	res.waiters = []*Entry{w1, w2, w3}

	m := testManager()
	m.grantBlockedWaiterPartial(res, 0)

	require.NotNil(t, findEntry(res.holders, 2), "compatible first waiter should be promoted")
	require.Nil(t, findEntry(res.holders, 4), "waiter behind an incompatible one must stay blocked")
	require.Len(t, res.waiters, 2, "only the promoted waiter leaves the wait list")
}

func TestGrantBlockedHolderPromotesCompatibleConversion(t *testing.T) {
	res := newResource(instanceKey(1))
	converting := blocked(1, ModeS, ModeX)
	res.holders = []*Entry{converting}
	converting.wait = newWaitState(InfiniteWait)
	recomputeHoldersMode(res)

	m := testManager()
	m.grantBlockedHolder(res)

	require.Equal(t, ModeX, converting.GrantedMode)
	require.Equal(t, ModeNULL, converting.BlockedMode)
}

func TestGrantBlockedHolderStopsWhenIncompatibleWithOtherHolder(t *testing.T) {
	res := newResource(instanceKey(1))
	other := granted(1, ModeS)
	converting := blocked(2, ModeS, ModeX)
	converting.wait = newWaitState(InfiniteWait)
	res.holders = []*Entry{other, converting}
	recomputeHoldersMode(res)

	m := testManager()
	m.grantBlockedHolder(res)

	require.Equal(t, ModeX, converting.BlockedMode, "X conversion can't proceed while another S holder remains")
}

func TestResumeWaiterNoopWithoutWaitState(t *testing.T) {
	e := &Entry{TranIndex: 1}
	require.NotPanics(t, func() { resumeWaiter(e, Resumed) })
}

func TestResumeWaiterDeliversAndClears(t *testing.T) {
	e := &Entry{TranIndex: 1, wait: newWaitState(InfiniteWait)}
	ch := e.wait.resumeCh
	resumeWaiter(e, Resumed)
	require.Nil(t, e.wait)
	select {
	case r := <-ch:
		require.Equal(t, Resumed, r)
	default:
		t.Fatal("expected a delivered result on the resume channel")
	}
}

func TestCompatibleWithOthersIgnoresSelf(t *testing.T) {
	res := newResource(instanceKey(1))
	self := granted(1, ModeX)
	res.holders = []*Entry{self}
	require.True(t, compatibleWithOthers(res, self, ModeX), "a holder is always compatible with itself")
}

func TestCompatibleWithOthersIgnoresOtherHoldersBlockedMode(t *testing.T) {
	res := newResource(instanceKey(1))
	self := granted(1, ModeIS)
	// other currently holds IS and is blocked trying to convert to X;
	// only the granted IS counts toward the combined mode.
	other := blocked(2, ModeIS, ModeX)
	res.holders = []*Entry{self, other}
	require.True(t, compatibleWithOthers(res, self, ModeS), "a holder's own pending conversion must not factor into the check")
}
