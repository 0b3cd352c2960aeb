// Package engine describes the map rendering engine the elements drive.
//
// The engine is an external capability: it owns projection, tiles and
// painting. The elements only need to construct it, register and unregister
// sources and layers, attach markers, and learn when it has loaded.
package engine

import (
	"github.com/paulmach/orb"
)

// EventLoad is fired once when a map has finished loading its style.
const EventLoad = "load"

// LngLat is a longitude/latitude pair.
type LngLat = orb.Point

// Options configures a new map instance.
type Options struct {
	// Container identifies the node the map renders into.
	Container string
	Style     string
	// Center is nil when the markup does not declare one.
	Center *LngLat
	Zoom   float64
}

// SourceSpec is the payload handed to AddSource.
type SourceSpec struct {
	Type string `json:"type"`
	// Data is either a URL string or inline JSON (json.RawMessage).
	Data any `json:"data"`
}

// LayerSpec is the payload handed to AddLayer.
type LayerSpec struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source,omitempty"`
	Paint  map[string]any `json:"paint,omitempty"`
}

// Map is a live map instance.
type Map interface {
	AddSource(id string, spec SourceSpec) error
	RemoveSource(id string) error
	GetSource(id string) (SourceSpec, bool)
	AddLayer(spec LayerSpec) error
	RemoveLayer(id string) error
	Loaded() bool
	// On registers fn for the named event.
	On(event string, fn func())
}

// Marker is a point marker handle.
type Marker interface {
	SetLngLat(LngLat)
	AddTo(m Map) error
	Remove()
}

// Factory constructs maps and markers.
type Factory interface {
	NewMap(opts Options) (Map, error)
	NewMarker() Marker
}

// EventKind names an engine mutation.
type EventKind string

const (
	EventMapCreated    EventKind = "map.created"
	EventMapLoaded     EventKind = "map.loaded"
	EventSourceAdded   EventKind = "source.added"
	EventSourceRemoved EventKind = "source.removed"
	EventLayerAdded    EventKind = "layer.added"
	EventLayerRemoved  EventKind = "layer.removed"
	EventMarkerAdded   EventKind = "marker.added"
	EventMarkerMoved   EventKind = "marker.moved"
	EventMarkerRemoved EventKind = "marker.removed"
)

// Event describes a single engine mutation, for observers and journals.
type Event struct {
	Kind  EventKind `json:"kind"`
	MapID string    `json:"mapId"`
	ID    string    `json:"id,omitempty"`
	Type  string    `json:"type,omitempty"`
}

// Observer receives engine mutation events.
type Observer func(Event)
