package elements

import (
	"context"
	"sort"
	"sync"
)

// SourceTable maps source ids to the source element currently registered
// under that id. Sources insert themselves when they connect and remove
// themselves when they disconnect. Layers use it to find their source and to
// subscribe to its removal.
type SourceTable struct {
	mu      sync.Mutex
	byID    map[string]*Source
	changed chan struct{}
	subs    map[string]map[uint64]func(id string)
	nextSub uint64
}

// NewSourceTable creates an empty table.
func NewSourceTable() *SourceTable {
	return &SourceTable{
		byID:    make(map[string]*Source),
		changed: make(chan struct{}),
		subs:    make(map[string]map[uint64]func(string)),
	}
}

// Lookup returns the source registered under id.
func (t *SourceTable) Lookup(id string) (*Source, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.byID[id]
	return s, ok
}

// Await blocks until a source is registered under id or ctx is done.
func (t *SourceTable) Await(ctx context.Context, id string) (*Source, error) {
	for {
		t.mu.Lock()
		s, ok := t.byID[id]
		changed := t.changed
		t.mu.Unlock()
		if ok {
			return s, nil
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// changes returns a channel closed on the next insert.
func (t *SourceTable) changes() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.changed
}

// IDs returns the registered source ids, sorted.
func (t *SourceTable) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnRemoved subscribes fn to removal notifications for id. The returned
// release func unsubscribes; it is safe to call more than once.
func (t *SourceTable) OnRemoved(id string, fn func(id string)) (release func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextSub++
	key := t.nextSub
	if t.subs[id] == nil {
		t.subs[id] = make(map[uint64]func(string))
	}
	t.subs[id][key] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs[id], key)
			if len(t.subs[id]) == 0 {
				delete(t.subs, id)
			}
		})
	}
}

// Subscribers returns the number of removal subscriptions for id.
func (t *SourceTable) Subscribers(id string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[id])
}

func (t *SourceTable) insert(id string, s *Source) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[id] = s
	close(t.changed)
	t.changed = make(chan struct{})
}

func (t *SourceTable) remove(id string, s *Source) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.byID[id] == s {
		delete(t.byID, id)
	}
}

// notifyRemoved calls the removal subscribers of id, synchronously.
func (t *SourceTable) notifyRemoved(id string) {
	t.mu.Lock()
	fns := make([]func(string), 0, len(t.subs[id]))
	for _, fn := range t.subs[id] {
		fns = append(fns, fn)
	}
	t.mu.Unlock()

	for _, fn := range fns {
		fn(id)
	}
}
