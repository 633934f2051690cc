package lock

import (
	"encoding/binary"
	"sync"

	"golang.org/x/crypto/blake2b"
)

// ResourceType classifies what a ResourceKey addresses (spec §3.2).
type ResourceType int8

const (
	ResourceInstance ResourceType = iota
	ResourceClass
	ResourceRootClass
)

// OID is a minimal stand-in for CUBRID's object identifier triple
// (page, slot, volume) — the lock manager only needs it as an opaque,
// comparable, hashable key, not as a storage-layer address.
type OID struct {
	Volume int16
	Page   int32
	Slot   int16
}

// ResourceKey identifies a lock resource: an object (oid, class_oid)
// pair, or a class/root-class keyed purely by oid.
type ResourceKey struct {
	Type     ResourceType
	OID      OID
	ClassOID OID
}

// hash returns the first 64 bits of a blake2b-256 digest of the key,
// used to select a shard of the resource table (see ResourceTable
// below). The table's correctness never depends on this hash's
// distribution — a pathological hash just degrades shard balance — so
// a fast non-cryptographic hash would also work. The resource table is
// the only user of blake2b in this module.
func (k ResourceKey) hash() uint64 {
	var buf [24]byte
	buf[0] = byte(k.Type)
	binary.BigEndian.PutUint16(buf[1:3], uint16(k.OID.Volume))
	binary.BigEndian.PutUint32(buf[3:7], uint32(k.OID.Page))
	binary.BigEndian.PutUint16(buf[7:9], uint16(k.OID.Slot))
	binary.BigEndian.PutUint16(buf[9:11], uint16(k.ClassOID.Volume))
	binary.BigEndian.PutUint32(buf[11:15], uint32(k.ClassOID.Page))
	binary.BigEndian.PutUint16(buf[15:17], uint16(k.ClassOID.Slot))
	sum := blake2b.Sum256(buf[:17])
	return binary.BigEndian.Uint64(sum[:8])
}

// Resource is one lock resource entry: its key, the three lists
// (holder, waiter, non-2PL), aggregate modes, and the mutex that
// guards all of it (spec §3.2). The resource-scoped mutex, not the
// table-level shard mutex, is what request/release/grant operations
// actually hold while mutating lists — the shard mutex only protects
// insertion/deletion of the *Resource pointer itself in the table.
type Resource struct {
	Key ResourceKey

	mu sync.Mutex

	TotalHoldersMode Mode
	TotalWaitersMode Mode

	holders []*Entry
	waiters []*Entry
	non2pl  []*Entry
}

func newResource(key ResourceKey) *Resource {
	return &Resource{Key: key}
}

// Lock acquires the resource's own mutex. Request/release/grant logic
// in algorithm.go call this directly; it is exported as a method
// rather than embedding sync.Mutex so Resource's other fields aren't
// accidentally exposed as lock/unlock-able by embedding.
func (r *Resource) Lock()   { r.mu.Lock() }
func (r *Resource) Unlock() { r.mu.Unlock() }

func (r *Resource) isEmpty() bool {
	return len(r.holders) == 0 && len(r.waiters) == 0 && len(r.non2pl) == 0
}

const resourceTableShards = 256

// ResourceTable is the lock manager's resource hash: a fixed number of
// independently-mutexed shards, each holding a plain Go map from
// ResourceKey to *Resource. Sharding (rather than one global
// sync.Mutex-guarded map, or an attempted from-scratch lock-free hash)
// keeps insert/delete contention bounded without the delete-path race
// the original's lock-free hash exposes (see DESIGN.md's Open
// Question decision on this point).
type ResourceTable struct {
	shards [resourceTableShards]resourceShard
}

type resourceShard struct {
	mu sync.Mutex
	m  map[ResourceKey]*Resource
}

func NewResourceTable() *ResourceTable {
	t := &ResourceTable{}
	for i := range t.shards {
		t.shards[i].m = make(map[ResourceKey]*Resource)
	}
	return t
}

func (t *ResourceTable) shardFor(key ResourceKey) *resourceShard {
	return &t.shards[key.hash()%resourceTableShards]
}

// GetOrCreate returns the existing resource for key, or installs and
// returns a freshly created one.
func (t *ResourceTable) GetOrCreate(key ResourceKey) *Resource {
	shard := t.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if r, ok := shard.m[key]; ok {
		return r
	}
	r := newResource(key)
	shard.m[key] = r
	return r
}

// Get returns the resource for key, if any, without creating one.
func (t *ResourceTable) Get(key ResourceKey) (*Resource, bool) {
	shard := t.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	r, ok := shard.m[key]
	return r, ok
}

// DeleteIfEmpty removes r from the table if all three of its lists are
// empty, called by the release path after it has finished mutating
// those lists and released r's own mutex (spec §4.12 step 5). Returns
// whether it was deleted.
func (t *ResourceTable) DeleteIfEmpty(r *Resource) bool {
	shard := t.shardFor(r.Key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if !r.isEmpty() {
		return false
	}
	// Re-check identity: another goroutine may have already replaced
	// this key with a fresh resource between r.mu.Unlock() (by the
	// caller, before calling us) and our shard lock — don't delete a
	// resource that isn't the one currently installed under its key.
	if cur, ok := shard.m[r.Key]; ok && cur == r {
		delete(shard.m, r.Key)
		return true
	}
	return false
}

// Snapshot returns every resource currently in the table, used by the
// deadlock detector's per-pass iteration (spec §4.16 step 2). The
// returned slice is a point-in-time copy; resources created or deleted
// concurrently may be missed or over-included, which is acceptable
// since a detector pass is inherently approximate and the next pass
// will reconcile.
func (t *ResourceTable) Snapshot() []*Resource {
	var out []*Resource
	for i := range t.shards {
		shard := &t.shards[i]
		shard.mu.Lock()
		for _, r := range shard.m {
			out = append(out, r)
		}
		shard.mu.Unlock()
	}
	return out
}
