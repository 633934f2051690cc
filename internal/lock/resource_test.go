package lock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceKeyHashDeterministic(t *testing.T) {
	k := ResourceKey{Type: ResourceInstance, OID: OID{Volume: 1, Page: 2, Slot: 3}}
	require.Equal(t, k.hash(), k.hash())
}

func TestResourceKeyHashDistinguishesFields(t *testing.T) {
	a := ResourceKey{Type: ResourceInstance, OID: OID{Page: 1}}
	b := ResourceKey{Type: ResourceInstance, OID: OID{Page: 2}}
	require.NotEqual(t, a.hash(), b.hash())
}

func TestResourceTableGetOrCreateReturnsSameInstance(t *testing.T) {
	tbl := NewResourceTable()
	key := instanceKey(1)
	r1 := tbl.GetOrCreate(key)
	r2 := tbl.GetOrCreate(key)
	require.Same(t, r1, r2)
}

func TestResourceTableDeleteIfEmptyRefusesNonEmpty(t *testing.T) {
	tbl := NewResourceTable()
	key := instanceKey(1)
	r := tbl.GetOrCreate(key)
	r.holders = append(r.holders, granted(1, ModeS))

	require.False(t, tbl.DeleteIfEmpty(r))
	_, ok := tbl.Get(key)
	require.True(t, ok)
}

func TestResourceTableDeleteIfEmptyRemovesEmpty(t *testing.T) {
	tbl := NewResourceTable()
	key := instanceKey(1)
	r := tbl.GetOrCreate(key)

	require.True(t, tbl.DeleteIfEmpty(r))
	_, ok := tbl.Get(key)
	require.False(t, ok)
}

func TestResourceTableDeleteIfEmptyIgnoresReplacedResource(t *testing.T) {
	tbl := NewResourceTable()
	key := instanceKey(1)
	stale := tbl.GetOrCreate(key)

	// Simulate another goroutine deleting and recreating the resource
	// under the same key between stale's own unlock and our call.
	shard := tbl.shardFor(key)
	shard.mu.Lock()
	delete(shard.m, key)
	fresh := newResource(key)
	fresh.holders = append(fresh.holders, granted(9, ModeX))
	shard.m[key] = fresh
	shard.mu.Unlock()

	require.False(t, tbl.DeleteIfEmpty(stale), "must not delete a resource no longer installed under its key")
	cur, ok := tbl.Get(key)
	require.True(t, ok)
	require.Same(t, fresh, cur)
}

func TestResourceTableSnapshotCoversAllShards(t *testing.T) {
	tbl := NewResourceTable()
	for i := int32(0); i < 50; i++ {
		tbl.GetOrCreate(instanceKey(i))
	}
	snap := tbl.Snapshot()
	require.Len(t, snap, 50)
}
