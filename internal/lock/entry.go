package lock

// WaitResult is the state a suspended requester is resumed with (spec
// §4.10 step 6).
type WaitResult int8

const (
	ResumedNone WaitResult = iota
	Resumed
	ResumedTimeout
	ResumedDeadlockTimeout
	ResumedAbortedFirst
	ResumedAbortedOther
	ResumedInterrupt
)

func (w WaitResult) String() string {
	switch w {
	case Resumed:
		return "RESUMED"
	case ResumedTimeout:
		return "RESUMED_TIMEOUT"
	case ResumedDeadlockTimeout:
		return "RESUMED_DEADLOCK_TIMEOUT"
	case ResumedAbortedFirst:
		return "RESUMED_ABORTED_FIRST"
	case ResumedAbortedOther:
		return "RESUMED_ABORTED_OTHER"
	case ResumedInterrupt:
		return "RESUMED_INTERRUPT"
	default:
		return "RESUMED_NONE"
	}
}

// Entry is a lock list node: the same struct serves as a holder,
// waiter, or non-2PL entry, matching lk_entry's reuse of one struct
// across all three roles (spec §3.2). Released entries are recycled
// through their TranLock's local free pool. The lists an entry sits on
// (a resource's holders/waiters/non-2PL, a transaction's hold lists)
// are slices of *Entry, with an index-stable TranIndex/ResourceKey
// identity for cross-references that must survive a list removal.
type Entry struct {
	TranIndex int32

	GrantedMode Mode
	BlockedMode Mode
	Count       int32

	InstantLockCount int32
	NGranules        int32

	Resource *Resource
	// ClassEntry points at the class-level Entry this instance entry's
	// granules are attributed to (nil for class/root entries).
	ClassEntry *Entry

	// next/prev and tranNext/tranPrev are not set or read by any list
	// operation: resource lists and hold lists are slices (see Resource
	// and TranLock).
	next *Entry
	prev *Entry

	tranNext *Entry
	tranPrev *Entry

	// wait is non-nil while this entry is a suspended waiter.
	wait *waitState
}

// waitState carries the synchronization needed to suspend and resume
// the goroutine that issued a blocking lock request.
type waitState struct {
	resumeCh chan WaitResult
	// edgeSeqNum/waitStartNs are read by the deadlock detector to
	// decide whether an edge into this entry is stale (spec §4.16 step
	// 3); see deadlock.go.
	edgeSeqNum  uint64
	waitStartNs int64
	// canTimeout is the waiter's own request.WaitMillis != InfiniteWait,
	// read by the deadlock detector's victim selection (spec §4.16 step
	// 5: "prefer a transaction that can timeout").
	canTimeout bool
}

func newWaitState(waitMillis int32) *waitState {
	return &waitState{resumeCh: make(chan WaitResult, 1), canTimeout: waitMillis != InfiniteWait}
}

// reset clears an entry for reuse from a free pool, matching lk_entry
// reuse via the "stack"/free-list fields in the C struct.
func (e *Entry) reset() {
	*e = Entry{}
}
