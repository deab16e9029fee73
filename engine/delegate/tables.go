package delegate

import (
	"maps"
	"slices"

	"github.com/Carmen-Shannon/oxy-bridge/common"
	"github.com/Carmen-Shannon/oxy-bridge/engine/adapter"
)

// adapterTable owns the adapters of one kind, keyed by identity path.
type adapterTable[T adapter.Adapter] struct {
	byPath map[common.Path]T
}

func newAdapterTable[T adapter.Adapter]() *adapterTable[T] {
	return &adapterTable[T]{byPath: make(map[common.Path]T)}
}

func (t *adapterTable[T]) get(id common.Path) (T, bool) {
	a, ok := t.byPath[id]
	return a, ok
}

func (t *adapterTable[T]) has(id common.Path) bool {
	_, ok := t.byPath[id]
	return ok
}

func (t *adapterTable[T]) insert(a T) {
	t.byPath[a.ID()] = a
}

func (t *adapterTable[T]) remove(id common.Path) (T, bool) {
	a, ok := t.byPath[id]
	if ok {
		delete(t.byPath, id)
	}
	return a, ok
}

func (t *adapterTable[T]) len() int {
	return len(t.byPath)
}

// sorted returns the adapters ordered by identity so sync steps visit them
// deterministically.
func (t *adapterTable[T]) sorted() []T {
	ids := slices.Sorted(maps.Keys(t.byPath))
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.byPath[id])
	}
	return out
}

// renderItemTable indexes render item adapters by identity and by the host's fast id.
// Both indexes are only ever changed together.
type renderItemTable struct {
	*adapterTable[adapter.RenderItemAdapter]
	byFast map[int]adapter.RenderItemAdapter
}

func newRenderItemTable() *renderItemTable {
	return &renderItemTable{
		adapterTable: newAdapterTable[adapter.RenderItemAdapter](),
		byFast:       make(map[int]adapter.RenderItemAdapter),
	}
}

func (t *renderItemTable) getFast(fastID int) (adapter.RenderItemAdapter, bool) {
	a, ok := t.byFast[fastID]
	return a, ok
}

func (t *renderItemTable) insert(a adapter.RenderItemAdapter) {
	t.adapterTable.insert(a)
	t.byFast[a.FastID()] = a
}

func (t *renderItemTable) remove(id common.Path) (adapter.RenderItemAdapter, bool) {
	a, ok := t.adapterTable.remove(id)
	if ok {
		if cur, found := t.byFast[a.FastID()]; found && cur == a {
			delete(t.byFast, a.FastID())
		}
	}
	return a, ok
}

func (t *renderItemTable) removeFast(fastID int) (adapter.RenderItemAdapter, bool) {
	a, ok := t.byFast[fastID]
	if !ok {
		return nil, false
	}
	delete(t.byFast, fastID)
	if cur, found := t.adapterTable.get(a.ID()); found && cur == a {
		delete(t.byPath, a.ID())
	}
	return a, true
}

// probe looks an identity up in one table and extracts a result from the adapter.
type probe[R any] func(id common.Path) (R, bool)

// from builds the probe that answers with fn when id is in t.
func from[T adapter.Adapter, R any](t *adapterTable[T], fn func(T) R) probe[R] {
	return func(id common.Path) (R, bool) {
		a, ok := t.get(id)
		if !ok {
			var zero R
			return zero, false
		}
		return fn(a), true
	}
}

// firstOf tries each probe in order and returns the first hit, or def when no table
// holds id.
func firstOf[R any](id common.Path, def R, probes ...probe[R]) R {
	for _, p := range probes {
		if r, ok := p(id); ok {
			return r
		}
	}
	return def
}

func asAdapter[T adapter.Adapter](a T) adapter.Adapter {
	return a
}
