// Package stylemap is an in-memory map engine that maintains a MapLibre style
// document instead of painting pixels.
//
// It enforces the same registration rules as MapLibre: ids are unique, a layer
// can only reference a registered source, and a source cannot be removed while
// a layer still draws from it. The resulting style can be served to a browser
// running MapLibre GL, or inspected in tests.
package stylemap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

// Loader fetches or prepares the base style. The map reports itself loaded
// once the loader returns nil; a failing loader leaves the map unloaded.
type Loader func(ctx context.Context, style string) error

// Config configures a Factory.
type Config struct {
	Loader Loader
	// Observer receives every mutation, in mutation order, while the map lock
	// is held. It must not call back into the map.
	Observer engine.Observer
	Logger   *slog.Logger
}

var layerTypes = []string{
	"background", "circle", "fill", "fill-extrusion", "heatmap",
	"hillshade", "line", "raster", "symbol",
}

// Factory creates stylemap maps and markers.
type Factory struct {
	cfg Config

	mu   sync.Mutex
	maps []*Map
}

// NewFactory creates a factory.
func NewFactory(cfg Config) *Factory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Factory{cfg: cfg}
}

// NewMap creates a map and starts loading it in the background.
func (f *Factory) NewMap(opts engine.Options) (engine.Map, error) {
	m := &Map{
		id:       uuid.NewString(),
		opts:     opts,
		cfg:      f.cfg,
		handlers: make(map[string][]func()),
		sources:  make(map[string]*sourceEntry),
		markers:  make(map[string]*Marker),
	}

	f.mu.Lock()
	f.maps = append(f.maps, m)
	f.mu.Unlock()

	m.mu.Lock()
	m.emitLocked(engine.Event{Kind: engine.EventMapCreated, ID: opts.Container})
	m.mu.Unlock()

	go m.load()
	return m, nil
}

// NewMarker creates a detached marker.
func (f *Factory) NewMarker() engine.Marker {
	return &Marker{id: uuid.NewString()}
}

// Maps returns every map created by f, oldest first.
func (f *Factory) Maps() []*Map {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.maps)
}

type sourceEntry struct {
	spec  engine.SourceSpec
	stats *SourceStats
}

// Map is a style document under construction.
type Map struct {
	id   string
	opts engine.Options
	cfg  Config

	mu       sync.Mutex
	loaded   bool
	loadErr  error
	handlers map[string][]func()
	sources  map[string]*sourceEntry
	order    []string
	layers   []engine.LayerSpec
	markers  map[string]*Marker
}

// ID returns the map's unique id.
func (m *Map) ID() string { return m.id }

// Options returns the options the map was created with.
func (m *Map) Options() engine.Options { return m.opts }

func (m *Map) load() {
	if m.cfg.Loader != nil {
		if err := m.cfg.Loader(context.Background(), m.opts.Style); err != nil {
			m.cfg.Logger.Warn("stylemap: style failed to load", "map", m.id, "style", m.opts.Style, "error", err)
			m.mu.Lock()
			m.loadErr = err
			m.mu.Unlock()
			return
		}
	}

	m.mu.Lock()
	m.loaded = true
	handlers := slices.Clone(m.handlers[engine.EventLoad])
	m.emitLocked(engine.Event{Kind: engine.EventMapLoaded})
	m.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// Loaded reports whether the base style has loaded.
func (m *Map) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// LoadErr returns the loader error, if loading failed.
func (m *Map) LoadErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadErr
}

// On registers fn for event. Like MapLibre, "load" handlers registered after
// the map has loaded are never called.
func (m *Map) On(event string, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[event] = append(m.handlers[event], fn)
}

// AddSource registers a source.
func (m *Map) AddSource(id string, spec engine.SourceSpec) error {
	if id == "" {
		return fmt.Errorf("stylemap: source id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sources[id]; exists {
		return fmt.Errorf("stylemap: source %q already exists", id)
	}

	entry := &sourceEntry{spec: spec}
	if spec.Type == "geojson" {
		stats, err := geojsonStats(spec.Data)
		if err != nil {
			m.cfg.Logger.Debug("stylemap: inline data is not geojson", "source", id, "error", err)
		}
		entry.stats = stats
	}
	m.sources[id] = entry
	m.order = append(m.order, id)
	m.emitLocked(engine.Event{Kind: engine.EventSourceAdded, ID: id, Type: spec.Type})
	return nil
}

// RemoveSource unregisters a source that no layer uses.
func (m *Map) RemoveSource(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sources[id]; !exists {
		return fmt.Errorf("stylemap: source %q does not exist", id)
	}
	for _, l := range m.layers {
		if l.Source == id {
			return fmt.Errorf("stylemap: source %q cannot be removed while layer %q is using it", id, l.ID)
		}
	}
	delete(m.sources, id)
	m.order = slices.DeleteFunc(m.order, func(s string) bool { return s == id })
	m.emitLocked(engine.Event{Kind: engine.EventSourceRemoved, ID: id})
	return nil
}

// GetSource returns a registered source.
func (m *Map) GetSource(id string) (engine.SourceSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sources[id]
	if !ok {
		return engine.SourceSpec{}, false
	}
	return entry.spec, true
}

// AddLayer appends a layer on top of the existing ones.
func (m *Map) AddLayer(spec engine.LayerSpec) error {
	if spec.ID == "" {
		return fmt.Errorf("stylemap: layer id is required")
	}
	if !slices.Contains(layerTypes, spec.Type) {
		return fmt.Errorf("stylemap: layer %q has invalid type %q", spec.ID, spec.Type)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layerIndexLocked(spec.ID) >= 0 {
		return fmt.Errorf("stylemap: layer %q already exists", spec.ID)
	}
	if spec.Type != "background" {
		if _, ok := m.sources[spec.Source]; !ok {
			return fmt.Errorf("stylemap: source %q not found for layer %q", spec.Source, spec.ID)
		}
	}
	m.layers = append(m.layers, spec)
	m.emitLocked(engine.Event{Kind: engine.EventLayerAdded, ID: spec.ID, Type: spec.Type})
	return nil
}

// RemoveLayer removes a layer.
func (m *Map) RemoveLayer(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndexLocked(id)
	if i < 0 {
		return fmt.Errorf("stylemap: layer %q does not exist", id)
	}
	m.layers = slices.Delete(m.layers, i, i+1)
	m.emitLocked(engine.Event{Kind: engine.EventLayerRemoved, ID: id})
	return nil
}

// Layer returns a registered layer.
func (m *Map) Layer(id string) (engine.LayerSpec, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.layerIndexLocked(id)
	if i < 0 {
		return engine.LayerSpec{}, false
	}
	return m.layers[i], true
}

func (m *Map) layerIndexLocked(id string) int {
	return slices.IndexFunc(m.layers, func(l engine.LayerSpec) bool { return l.ID == id })
}

func (m *Map) emitLocked(ev engine.Event) {
	if m.cfg.Observer == nil {
		return
	}
	ev.MapID = m.id
	m.cfg.Observer(ev)
}

// Style returns a snapshot of the style document.
func (m *Map) Style() Style {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := Style{
		Version: 8,
		Zoom:    m.opts.Zoom,
		Sources: make(map[string]engine.SourceSpec, len(m.sources)),
		Layers:  slices.Clone(m.layers),
		Metadata: Metadata{
			BaseStyle: m.opts.Style,
			Container: m.opts.Container,
			Loaded:    m.loaded,
			Sources:   make(map[string]SourceStats),
		},
	}
	if st.Layers == nil {
		st.Layers = []engine.LayerSpec{}
	}
	if c := m.opts.Center; c != nil {
		st.Center = []float64{c.Lon(), c.Lat()}
	}
	for _, id := range m.order {
		entry := m.sources[id]
		st.Sources[id] = entry.spec
		if entry.stats != nil {
			st.Metadata.Sources[id] = *entry.stats
		}
	}
	for _, mk := range m.markers {
		st.Metadata.Markers = append(st.Metadata.Markers, mk.state())
	}
	slices.SortFunc(st.Metadata.Markers, func(a, b MarkerState) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return st
}

// Style is a MapLibre style document (version 8) with engine metadata.
type Style struct {
	Version  int                          `json:"version"`
	Center   []float64                    `json:"center,omitempty"`
	Zoom     float64                      `json:"zoom"`
	Sources  map[string]engine.SourceSpec `json:"sources"`
	Layers   []engine.LayerSpec           `json:"layers"`
	Metadata Metadata                     `json:"metadata"`
}

// Metadata carries state that is not part of the style specification.
type Metadata struct {
	BaseStyle string                 `json:"baseStyle"`
	Container string                 `json:"container,omitempty"`
	Loaded    bool                   `json:"loaded"`
	Sources   map[string]SourceStats `json:"sources,omitempty"`
	Markers   []MarkerState          `json:"markers,omitempty"`
}

// MarkerState is a marker's id and position.
type MarkerState struct {
	ID     string      `json:"id"`
	LngLat *[2]float64 `json:"lngLat,omitempty"`
}

// MarshalYAML renders the style through its JSON form so inline geojson
// payloads stay structured.
func (s Style) MarshalYAML() (any, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
