package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadlockDetectorResolvesWaitCycle(t *testing.T) {
	cfg := DefaultLockConfig()
	cfg.DeadlockDetectInterval = 15 * time.Millisecond
	m := NewManager(cfg, func(int32) bool { return true })
	m.StartDeadlockDetector()
	defer m.StopDeadlockDetector()

	keyA := instanceKey(1)
	keyB := instanceKey(2)

	require.Equal(t, Granted, m.LockObject(context.Background(), Request{TranIndex: 1, Key: keyA, Mode: ModeX}, ModeNULL))
	require.Equal(t, Granted, m.LockObject(context.Background(), Request{TranIndex: 2, Key: keyB, Mode: ModeX}, ModeNULL))

	res1 := make(chan Result, 1)
	res2 := make(chan Result, 1)

	// Tran 1 now waits on B (held by 2); tran 2 waits on A (held by 1):
	// a classic two-transaction cycle.
	go func() {
		res1 <- m.LockObject(context.Background(), Request{TranIndex: 1, Key: keyB, Mode: ModeX, WaitMillis: InfiniteWait}, ModeNULL)
	}()
	time.Sleep(10 * time.Millisecond)
	go func() {
		res2 <- m.LockObject(context.Background(), Request{TranIndex: 2, Key: keyA, Mode: ModeX, WaitMillis: InfiniteWait}, ModeNULL)
	}()

	// Exactly one victim is chosen per cycle. Both sides wait
	// InfiniteWait, so the victim is aborted, not timed out; once it
	// releases the lock it still holds, the survivor is granted.
	var victim int32
	var victimKey ResourceKey
	var survivor chan Result
	select {
	case r := <-res1:
		require.Equal(t, NotGrantedDueAborted, r, "both sides wait InfiniteWait, so the victim must be aborted, not timed out")
		victim, victimKey, survivor = 1, keyA, res2
	case r := <-res2:
		require.Equal(t, NotGrantedDueAborted, r, "both sides wait InfiniteWait, so the victim must be aborted, not timed out")
		victim, victimKey, survivor = 2, keyB, res1
	case <-time.After(2 * time.Second):
		t.Fatal("deadlock detector never resolved the cycle")
	}

	m.UnlockObject(UnlockRequest{TranIndex: victim, Key: victimKey})
	select {
	case r := <-survivor:
		require.Equal(t, Granted, r, "the surviving transaction is granted once the victim releases its lock")
	case <-time.After(1 * time.Second):
		t.Fatal("surviving transaction was not granted after the victim released its lock")
	}
}

func TestSortedSnapshotOrdersAscending(t *testing.T) {
	s := sortedSnapshot([]int32{5, 1, 3, 2, 4})
	var got []int32
	for cur := s.firstIndex(); cur != noIndex; cur = s.nextIndex(cur) {
		got = append(got, cur)
	}
	require.Equal(t, []int32{1, 2, 3, 4, 5}, got)
}

func TestSortedSnapshotEmpty(t *testing.T) {
	s := sortedSnapshot(nil)
	require.Equal(t, noIndex, s.firstIndex())
}

func TestIsStaleEdgeDetectsNewerRegistration(t *testing.T) {
	target := &wfgNode{edges: []wfgEdge{{EdgeSeqNum: 5}}}
	require.True(t, isStaleEdge(wfgEdge{EdgeSeqNum: 3}, target))
	require.False(t, isStaleEdge(wfgEdge{EdgeSeqNum: 5}, target))
	require.False(t, isStaleEdge(wfgEdge{EdgeSeqNum: 7}, target))
}

func TestChooseVictimPrefersHolderSourceThenTimeoutThenYoungest(t *testing.T) {
	m := testManager()
	d := newDeadlockDetector(m)

	// tran 1 is not a holder-source edge in this cycle; tran 2 and 3
	// are. Of those, tran 2 can time out and tran 3 cannot, so tran 2
	// must win even though tran 3 has the higher index.
	setWaiting := func(ti int32, canTimeout bool) {
		tl := m.trans.GetOrCreate(ti)
		tl.waiting = &Entry{TranIndex: ti, wait: &waitState{resumeCh: make(chan WaitResult, 1), canTimeout: canTimeout}}
	}
	setWaiting(1, true)
	setWaiting(2, true)
	setWaiting(3, false)

	victim := d.chooseVictim([]cycleCandidate{
		{tranIndex: 1, isHolderSource: false},
		{tranIndex: 2, isHolderSource: true},
		{tranIndex: 3, isHolderSource: true},
	})
	require.Equal(t, int32(2), victim)
}

func TestChooseVictimFallsBackWhenNoHolderSource(t *testing.T) {
	m := testManager()
	d := newDeadlockDetector(m)

	victim := d.chooseVictim([]cycleCandidate{
		{tranIndex: 5, isHolderSource: false},
		{tranIndex: 9, isHolderSource: false},
	})
	require.Equal(t, int32(9), victim)
}

func TestChooseVictimSkipsInactiveTransactions(t *testing.T) {
	m := NewManager(DefaultLockConfig(), func(ti int32) bool { return ti != 9 })
	d := newDeadlockDetector(m)

	victim := d.chooseVictim([]cycleCandidate{
		{tranIndex: 9, isHolderSource: true},
		{tranIndex: 4, isHolderSource: true},
	})
	require.Equal(t, int32(4), victim)
}
