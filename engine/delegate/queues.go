package delegate

import (
	"sync"

	"cogentcore.org/core/base/keylist"
	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
	"github.com/Carmen-Shannon/oxy-bridge/engine/host"
	"github.com/Carmen-Shannon/oxy-bridge/engine/render_index"
)

// pending holds the work host callbacks defer to the next sync pass. Every queue is an
// ordered association list keyed by identity: re-enqueuing a key replaces its payload in
// place (rebuild flags are OR-ed) so each key is drained at most once per pass.
type pending struct {
	mu *sync.Mutex

	addedNodes   keylist.List[host.Handle, host.Node]
	removedNodes keylist.List[host.Handle, removal]
	lightsToAdd  keylist.List[host.Handle, host.Node]
	recreate     keylist.List[common.Path, host.Node]
	rebuild      keylist.List[common.Path, adapter.RebuildFlags]
	materialTags keylist.List[common.Path, struct{}]
	dirty        keylist.List[common.Path, render_index.DirtyBits]
}

func newPending() *pending {
	return &pending{mu: &sync.Mutex{}}
}

func (q *pending) addNode(n host.Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addedNodes.Set(n.Handle(), n)
}

func (q *pending) addLight(n host.Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lightsToAdd.Set(n.Handle(), n)
}

// removal is a host node deletion with the identities derived while the node was
// still valid.
type removal struct {
	node host.Node
	ids  []common.Path
}

// removeNode queues the adapters of a deleted node for removal and forgets any add of
// the node that has not run yet.
func (q *pending) removeNode(n host.Node, ids []common.Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	dropped := q.addedNodes.DeleteByKey(n.Handle())
	dropped = q.lightsToAdd.DeleteByKey(n.Handle()) || dropped
	if dropped || len(ids) == 0 {
		return
	}
	q.removedNodes.Set(n.Handle(), removal{node: n, ids: ids})
}

// takeRemovals empties the removal queue and cancels every recreate or rebuild pending
// for the removed identities.
func (q *pending) takeRemovals() []removal {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.removedNodes.Values
	for _, r := range out {
		for _, id := range r.ids {
			q.recreate.DeleteByKey(id)
			q.rebuild.DeleteByKey(id)
		}
	}
	q.removedNodes.Reset()
	return out
}

// scheduleRecreate queues a recreate of id and cancels any rebuild pending for it.
func (q *pending) scheduleRecreate(id common.Path, n host.Node) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recreate.Set(id, n)
	q.rebuild.DeleteByKey(id)
}

// scheduleRebuild merges flags into the rebuild pending for id. A rebuild for an id
// that already waits for a recreate is dropped.
func (q *pending) scheduleRebuild(id common.Path, flags adapter.RebuildFlags) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.recreate.IndexByKey(id) >= 0 {
		return
	}
	prev, _ := q.rebuild.AtTry(id)
	q.rebuild.Set(id, prev|flags)
}

// markDirty merges bits into the dirty bits queued for id.
func (q *pending) markDirty(id common.Path, bits render_index.DirtyBits) {
	if bits == render_index.Clean {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	prev, _ := q.dirty.AtTry(id)
	q.dirty.Set(id, prev|bits)
}

// dirtyEntry is one drained dirty-bit request.
type dirtyEntry struct {
	id   common.Path
	bits render_index.DirtyBits
}

func (q *pending) takeDirty() []dirtyEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]dirtyEntry, 0, q.dirty.Len())
	for i, id := range q.dirty.Keys {
		out = append(out, dirtyEntry{id: id, bits: q.dirty.Values[i]})
	}
	q.dirty.Reset()
	return out
}

// pendingDirty returns the dirty bits queued for id.
func (q *pending) pendingDirty(id common.Path) render_index.DirtyBits {
	q.mu.Lock()
	defer q.mu.Unlock()
	bits, _ := q.dirty.AtTry(id)
	return bits
}

func (q *pending) tagChanged(id common.Path) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.materialTags.Set(id, struct{}{})
}

// takeMaterialTags empties the material tag queue and returns its ids in order.
func (q *pending) takeMaterialTags() []common.Path {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := q.materialTags.Keys
	q.materialTags.Reset()
	return ids
}

func (q *pending) takeLights() []host.Node {
	q.mu.Lock()
	defer q.mu.Unlock()
	nodes := q.lightsToAdd.Values
	q.lightsToAdd.Reset()
	return nodes
}

func (q *pending) takeNodes() []host.Node {
	q.mu.Lock()
	defer q.mu.Unlock()
	nodes := q.addedNodes.Values
	q.addedNodes.Reset()
	return nodes
}

// recreateEntry is one drained recreate request.
type recreateEntry struct {
	id   common.Path
	node host.Node
}

// takeRecreates empties the recreate queue and drops any rebuild that was queued for
// the same ids after the recreate.
func (q *pending) takeRecreates() []recreateEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]recreateEntry, 0, q.recreate.Len())
	for i, id := range q.recreate.Keys {
		out = append(out, recreateEntry{id: id, node: q.recreate.Values[i]})
		q.rebuild.DeleteByKey(id)
	}
	q.recreate.Reset()
	return out
}

// rebuildEntry is one drained rebuild request.
type rebuildEntry struct {
	id    common.Path
	flags adapter.RebuildFlags
}

func (q *pending) takeRebuilds() []rebuildEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]rebuildEntry, 0, q.rebuild.Len())
	for i, id := range q.rebuild.Keys {
		out = append(out, rebuildEntry{id: id, flags: q.rebuild.Values[i]})
	}
	q.rebuild.Reset()
	return out
}

// pendingRebuild returns the flags queued for id.
func (q *pending) pendingRebuild(id common.Path) (adapter.RebuildFlags, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.rebuild.AtTry(id)
}

// pendingRecreate reports whether a recreate is queued for id.
func (q *pending) pendingRecreate(id common.Path) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.recreate.IndexByKey(id) >= 0
}

// sizes reports the queue lengths in drain order.
func (q *pending) sizes() (tags, removals, lights, nodes, recreates, rebuilds int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.materialTags.Len(), q.removedNodes.Len(), q.lightsToAdd.Len(), q.addedNodes.Len(), q.recreate.Len(), q.rebuild.Len()
}
