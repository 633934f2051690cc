package lock

import (
	"sync/atomic"
	"time"
)

// Config holds the lock manager's tunables (spec §4.14, §4.16).
type Config struct {
	// EscalationThreshold is the ngranules count at which an
	// instance-level lock holder's class intention lock is escalated
	// to a full class lock.
	EscalationThreshold int32
	// RollbackOnEscalation, if true, aborts a transaction whose
	// escalation attempt fails instead of leaving it with its
	// instance-level locks unchanged.
	RollbackOnEscalation bool
	// DeadlockDetectInterval bounds how often the detector daemon runs
	// a pass; it never runs more often than this even if woken early.
	DeadlockDetectInterval time.Duration
	// MaxVictimsPerPass caps how many transactions one detector pass
	// will abort/timeout (spec §4.16: LK_MAX_VICTIM_COUNT ≈ 300).
	MaxVictimsPerPass int
}

func DefaultLockConfig() Config {
	return Config{
		EscalationThreshold:    10000,
		RollbackOnEscalation:   false,
		DeadlockDetectInterval: time.Second,
		MaxVictimsPerPass:      300,
	}
}

// ActiveChecker reports whether a transaction index is still active,
// standing in for logtb_is_active (out of core scope per spec.md §1 —
// transaction-table bookkeeping is an external collaborator).
type ActiveChecker func(tranIndex int32) bool

// Manager is the lock manager: the resource table, per-transaction
// bookkeeping, and the deadlock-detector daemon, all grounded on
// transaction/lock_manager.h's module-level API (lock_object,
// lock_unlock_object, lock_notify_isolation_incons, ...).
type Manager struct {
	cfg    Config
	active ActiveChecker

	resources *ResourceTable
	trans     *TranLockTable

	edgeSeq atomic.Uint64

	detector *deadlockDetector
}

func NewManager(cfg Config, active ActiveChecker) *Manager {
	m := &Manager{
		cfg:       cfg,
		active:    active,
		resources: NewResourceTable(),
		trans:     NewTranLockTable(),
	}
	m.detector = newDeadlockDetector(m)
	return m
}

// StartDeadlockDetector launches the detector daemon. Safe to call
// once per Manager lifetime.
func (m *Manager) StartDeadlockDetector() {
	m.detector.start()
}

// StopDeadlockDetector stops the daemon and waits for it to exit.
func (m *Manager) StopDeadlockDetector() {
	m.detector.stop()
}

// nextEdgeSeq returns a fresh, monotonically increasing sequence
// number, used both to tag freshly (re)registered waits and to bump
// the global counter at the start of each detector pass (spec §4.16
// step 1 and step 3's staleness check).
func (m *Manager) nextEdgeSeq() uint64 {
	return m.edgeSeq.Add(1)
}
