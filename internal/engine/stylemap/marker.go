package stylemap

import (
	"fmt"
	"sync"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

// Marker is a point marker placed on a Map.
type Marker struct {
	id string

	mu     sync.Mutex
	pos    engine.LngLat
	hasPos bool
	m      *Map
}

// ID returns the marker's unique id.
func (mk *Marker) ID() string { return mk.id }

// SetLngLat moves the marker.
func (mk *Marker) SetLngLat(p engine.LngLat) {
	mk.mu.Lock()
	mk.pos, mk.hasPos = p, true
	m := mk.m
	mk.mu.Unlock()

	if m != nil {
		m.mu.Lock()
		if m.markers[mk.id] == mk {
			m.emitLocked(engine.Event{Kind: engine.EventMarkerMoved, ID: mk.id})
		}
		m.mu.Unlock()
	}
}

// LngLat returns the marker position, if one was set.
func (mk *Marker) LngLat() (engine.LngLat, bool) {
	mk.mu.Lock()
	defer mk.mu.Unlock()
	return mk.pos, mk.hasPos
}

// AddTo places the marker on em, moving it off any previous map.
func (mk *Marker) AddTo(em engine.Map) error {
	m, ok := em.(*Map)
	if !ok {
		return fmt.Errorf("stylemap: cannot add marker to %T", em)
	}

	mk.Remove()

	mk.mu.Lock()
	mk.m = m
	mk.mu.Unlock()

	m.mu.Lock()
	m.markers[mk.id] = mk
	m.emitLocked(engine.Event{Kind: engine.EventMarkerAdded, ID: mk.id})
	m.mu.Unlock()
	return nil
}

// Remove takes the marker off its map. It is safe to call on a detached marker.
func (mk *Marker) Remove() {
	mk.mu.Lock()
	m := mk.m
	mk.m = nil
	mk.mu.Unlock()
	if m == nil {
		return
	}

	m.mu.Lock()
	if m.markers[mk.id] == mk {
		delete(m.markers, mk.id)
		m.emitLocked(engine.Event{Kind: engine.EventMarkerRemoved, ID: mk.id})
	}
	m.mu.Unlock()
}

// Markers returns the markers currently on the map.
func (m *Map) Markers() []*Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Marker, 0, len(m.markers))
	for _, mk := range m.markers {
		out = append(out, mk)
	}
	return out
}

func (mk *Marker) state() MarkerState {
	st := MarkerState{ID: mk.id}
	if p, ok := mk.LngLat(); ok {
		st.LngLat = &[2]float64{p.Lon(), p.Lat()}
	}
	return st
}
