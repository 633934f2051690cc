package lock

import (
	"sync"
	"time"

	"github.com/twmb/go-rbtree"
)

// wfgNode is one transaction's wait-for-graph bookkeeping, reset at
// the start of every detector pass (spec §3.2, §4.16 step 1).
type wfgNode struct {
	tranIndex int32
	edges     []wfgEdge

	ancestor      int32 // tran index of DFS parent, or -1
	onStack       bool
	visited       bool
	checkedByPass bool
}

// wfgEdge is a directed edge tranIndex -> ToTranIndex meaning
// tranIndex is waiting on (or, for a holder->holder edge, would be
// forced to wait on) ToTranIndex (spec §3.2).
type wfgEdge struct {
	ToTranIndex int32
	EdgeSeqNum  uint64
	HolderFlag  bool
	WaitStartNs int64
}

// rbNode is the intrusive node go-rbtree threads through to give the
// detector a deterministic, sorted-by-tran-index snapshot of active
// transactions for one pass — a plain map iteration would work too,
// but its order varies run to run, which makes a detector pass
// non-reproducible in tests (spec §9 Design Notes: "a copy-on-iterate
// snapshot").
type rbNode struct {
	rbtree.Node
	tranIndex int32
}

// deadlockDetector runs periodic wait-for-graph passes over a
// Manager's resource table, detecting cycles and resolving them by
// timing out or aborting a victim per transaction (spec §4.16).
type deadlockDetector struct {
	m *Manager

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	nodes map[int32]*wfgNode
	// passSeq is the edge sequence number taken at the start of the
	// current pass; every edge of the pass carries at least this value.
	passSeq uint64
}

func newDeadlockDetector(m *Manager) *deadlockDetector {
	return &deadlockDetector{m: m, nodes: make(map[int32]*wfgNode)}
}

func (d *deadlockDetector) start() {
	d.wg.Add(1)
	d.stopCh = make(chan struct{})
	go d.loop()
}

func (d *deadlockDetector) stop() {
	close(d.stopCh)
	d.wg.Wait()
}

func (d *deadlockDetector) loop() {
	defer d.wg.Done()
	interval := d.m.cfg.DeadlockDetectInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.runPass()
		}
	}
}

// runPass executes one full detector pass (spec §4.16 steps 1-6).
func (d *deadlockDetector) runPass() {
	passSeq := d.m.nextEdgeSeq()

	tranIndices := d.m.trans.Snapshot()
	tree := sortedSnapshot(tranIndices)

	d.mu.Lock()
	d.passSeq = passSeq
	d.nodes = make(map[int32]*wfgNode, len(tranIndices))
	for _, ti := range tranIndices {
		d.nodes[ti] = &wfgNode{tranIndex: ti, ancestor: -1, checkedByPass: true}
	}
	d.mu.Unlock()

	for _, res := range d.m.resources.Snapshot() {
		d.addEdgesForResource(res)
	}

	victims := map[int32]bool{}
	for cur := tree.firstIndex(); cur != noIndex; cur = tree.nextIndex(cur) {
		d.mu.Lock()
		node := d.nodes[cur]
		d.mu.Unlock()
		if node == nil || node.visited {
			continue
		}
		d.dfs(node, victims)
		if len(victims) >= d.m.cfg.MaxVictimsPerPass {
			break
		}
	}
}

// addEdgesForResource adds every holder->holder, waiter->holder, and
// waiter->waiter edge implied by one resource's current lists (spec
// §4.16 step 2). res's own mutex is held for the duration so the
// snapshot of its lists is internally consistent.
func (d *deadlockDetector) addEdgesForResource(res *Resource) {
	res.Lock()
	defer res.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	for i, hi := range res.holders {
		for j, hj := range res.holders {
			if i == j {
				continue
			}
			if hj.BlockedMode == ModeNULL {
				continue
			}
			if !Comp(hj.BlockedMode, hi.GrantedMode) || (hi.BlockedMode != ModeNULL && !Comp(hj.BlockedMode, hi.BlockedMode)) {
				d.addEdge(hj, hi, true)
			}
		}
	}

	for _, w := range res.waiters {
		for _, h := range res.holders {
			if !Comp(w.BlockedMode, h.GrantedMode) || (h.BlockedMode != ModeNULL && !Comp(w.BlockedMode, h.BlockedMode)) {
				d.addEdge(w, h, true)
			}
		}
	}

	for i, wi := range res.waiters {
		for j, wj := range res.waiters {
			if i == j {
				continue
			}
			if !Comp(wj.BlockedMode, wi.BlockedMode) {
				d.addEdge(wj, wi, false)
			}
		}
	}
}

func (d *deadlockDetector) addEdge(from, to *Entry, holderFlag bool) {
	fn := d.nodes[from.TranIndex]
	if fn == nil || from.wait == nil {
		return
	}
	// An edge carries the pass's sequence number, or its source's wait
	// sequence number if that wait was registered after the pass began.
	seq := from.wait.edgeSeqNum
	if seq < d.passSeq {
		seq = d.passSeq
	}
	fn.edges = append(fn.edges, wfgEdge{
		ToTranIndex: to.TranIndex,
		EdgeSeqNum:  seq,
		HolderFlag:  holderFlag,
		WaitStartNs: from.wait.waitStartNs,
	})
}

// dfs walks the graph from start using an ancestor-chain cycle check
// (spec §4.16 step 4), pruning stale edges per step 3 as it goes.
func (d *deadlockDetector) dfs(start *wfgNode, victims map[int32]bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stack := []dfsFrame{{node: start}}
	start.onStack = true
	start.visited = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		if top.next >= len(top.node.edges) {
			top.node.onStack = false
			stack = stack[:len(stack)-1]
			continue
		}
		edge := top.node.edges[top.next]
		top.next++

		target := d.nodes[edge.ToTranIndex]
		if target == nil {
			continue
		}
		if isStaleEdge(edge, target) {
			continue
		}

		if target.onStack {
			// Cycle closed: edge (top.node -> target) completes a path
			// back to a node already on the DFS stack.
			d.selectAndResolveVictim(stack, edge, victims)
			continue
		}
		if target.visited {
			continue
		}

		target.visited = true
		target.onStack = true
		stack = append(stack, dfsFrame{node: target, entryHolderFlag: edge.HolderFlag})
	}
}

// dfsFrame is one stack frame of the detector's iterative DFS: the
// node being explored, how many of its edges have been consumed, and
// whether the edge used to reach it from its DFS parent was a
// holder-flag edge (so the parent is that edge's lock-holder source,
// spec §4.16 step 5).
type dfsFrame struct {
	node            *wfgNode
	next            int
	entryHolderFlag bool
}

// isStaleEdge implements §4.16 step 3 by sequence number only: an edge
// is dropped when any of the target's own edges carries a higher edge
// sequence number, i.e. the target registered a newer wait after this
// edge was recorded. Wait-start times are recorded on edges
// (WaitStartNs) but are not compared here.
func isStaleEdge(edge wfgEdge, target *wfgNode) bool {
	for _, te := range target.edges {
		if te.EdgeSeqNum > edge.EdgeSeqNum {
			return true
		}
	}
	return false
}

// cycleCandidate is one node of a detected cycle together with whether
// it is the source of a holder-flag edge within that cycle (spec
// §4.16 step 5's "must be an edge whose source is a lock-holder"
// filter).
type cycleCandidate struct {
	tranIndex      int32
	isHolderSource bool
}

// selectAndResolveVictim implements §4.16 steps 5-6 for one detected
// cycle, identified by the DFS stack at the moment the closing edge
// was found.
func (d *deadlockDetector) selectAndResolveVictim(stack []dfsFrame, closingEdge wfgEdge, victims map[int32]bool) {
	candidates := make([]cycleCandidate, len(stack))
	for i, f := range stack {
		// stack[i] is the DFS parent of stack[i+1], i.e. the source of
		// the edge stack[i+1] was entered on; the last node's outgoing
		// edge in the cycle is the one that closed it.
		var isSource bool
		if i+1 < len(stack) {
			isSource = stack[i+1].entryHolderFlag
		} else {
			isSource = closingEdge.HolderFlag
		}
		candidates[i] = cycleCandidate{tranIndex: f.node.tranIndex, isHolderSource: isSource}
	}

	victim := d.chooseVictim(candidates)
	if victim == 0 || victims[victim] {
		return
	}
	victims[victim] = true
	d.resolveVictim(victim)
}

// chooseVictim applies the priority order from spec §4.16 step 5:
// restrict to lock-holder-sourced edges, then active transactions,
// then prefer one that can time out, then the youngest tran index.
// Activity comes from Manager.active and the timeout preference from
// the waiter's own recorded WaitMillis. Log-record counts and
// deadlock-priority flags are not tracked in this package and play no
// part in the choice.
func (d *deadlockDetector) chooseVictim(candidates []cycleCandidate) int32 {
	pool := make([]cycleCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.isHolderSource {
			pool = append(pool, c)
		}
	}
	if len(pool) == 0 {
		// No edge in this cycle had a lock-holder source (an
		// all-waiter cycle, which the grant algorithm shouldn't
		// produce); fall back to the full cycle rather than leaving
		// the deadlock unresolved.
		pool = candidates
	}

	var best int32
	var bestCanTimeout bool
	for _, c := range pool {
		if d.m.active != nil && !d.m.active(c.tranIndex) {
			continue
		}
		canTimeout := d.tranCanTimeout(c.tranIndex)
		switch {
		case best == 0:
			best, bestCanTimeout = c.tranIndex, canTimeout
		case canTimeout && !bestCanTimeout:
			best, bestCanTimeout = c.tranIndex, canTimeout
		case canTimeout == bestCanTimeout && c.tranIndex > best:
			best, bestCanTimeout = c.tranIndex, canTimeout
		}
	}
	return best
}

// tranCanTimeout reports whether tranIndex's current wait (if any) was
// issued with a bounded WaitMillis. A transaction with no recorded
// wait state is treated as not preferred for the timeout tie-break.
func (d *deadlockDetector) tranCanTimeout(tranIndex int32) bool {
	tl, ok := d.m.trans.Get(tranIndex)
	if !ok {
		return false
	}
	tl.mu.Lock()
	defer tl.mu.Unlock()
	if tl.waiting == nil || tl.waiting.wait == nil {
		return false
	}
	return tl.waiting.wait.canTimeout
}

func (d *deadlockDetector) resolveVictim(tranIndex int32) {
	tl, ok := d.m.trans.Get(tranIndex)
	if !ok {
		return
	}
	tl.mu.Lock()
	waiting := tl.waiting
	tl.mu.Unlock()
	if waiting == nil {
		return
	}

	canTimeout := waiting.wait != nil && waiting.wait.canTimeout
	waiting.Resource.Lock()
	if canTimeout {
		resumeWaiter(waiting, ResumedDeadlockTimeout)
	} else {
		resumeWaiter(waiting, ResumedAbortedFirst)
	}
	waiting.Resource.Unlock()
}

// --- sorted snapshot over a red-black tree, for deterministic pass order ---

const noIndex = int32(-1 << 31)

// sortedTranSet orders a pass's active transaction indices via
// go-rbtree. runPass builds it fresh from a snapshot at the start of
// every pass and walks it once, in ascending tran-index order, to pick
// DFS start nodes; the DFS itself does not consult it, and it is not
// kept between passes.
type sortedTranSet struct {
	tree rbtree.Tree
	// byNode recovers a tran index from the *rbtree.Node the tree
	// hands back from Min/Next, since the tree's own API speaks in
	// terms of *rbtree.Node rather than the caller's payload type.
	byNode map[*rbtree.Node]int32
	byIdx  map[int32]*rbNode
}

func sortedSnapshot(indices []int32) *sortedTranSet {
	s := &sortedTranSet{
		byNode: make(map[*rbtree.Node]int32, len(indices)),
		byIdx:  make(map[int32]*rbNode, len(indices)),
	}
	for _, ti := range indices {
		n := &rbNode{tranIndex: ti}
		s.byNode[&n.Node] = ti
		s.byIdx[ti] = n
		s.tree.Insert(&n.Node, func(a, b *rbtree.Node) bool {
			return s.byNode[a] < s.byNode[b]
		})
	}
	return s
}

func (s *sortedTranSet) firstIndex() int32 {
	n := s.tree.Min()
	if n == nil {
		return noIndex
	}
	if ti, ok := s.byNode[n]; ok {
		return ti
	}
	return noIndex
}

func (s *sortedTranSet) nextIndex(cur int32) int32 {
	n, ok := s.byIdx[cur]
	if !ok {
		return noIndex
	}
	next := n.Next()
	if next == nil {
		return noIndex
	}
	if ti, ok := s.byNode[next]; ok {
		return ti
	}
	return noIndex
}
