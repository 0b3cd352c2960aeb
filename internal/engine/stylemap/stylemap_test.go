package stylemap

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

func newLoadedMap(t *testing.T, cfg Config) *Map {
	t.Helper()
	em, err := NewFactory(cfg).NewMap(engine.Options{Style: "https://example.com/style.json", Zoom: 3})
	require.NoError(t, err)
	m := em.(*Map)
	require.Eventually(t, m.Loaded, time.Second, time.Millisecond)
	return m
}

func TestMapLoadsAndFiresHandlers(t *testing.T) {
	gate := make(chan struct{})
	f := NewFactory(Config{Loader: func(ctx context.Context, style string) error {
		<-gate
		return nil
	}})
	em, err := f.NewMap(engine.Options{})
	require.NoError(t, err)

	fired := make(chan struct{})
	em.On(engine.EventLoad, func() { close(fired) })
	assert.False(t, em.Loaded())

	close(gate)
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("load handler never fired")
	}
	assert.True(t, em.Loaded())
	assert.Len(t, f.Maps(), 1)
}

func TestMapLoaderFailureLeavesMapUnloaded(t *testing.T) {
	boom := errors.New("boom")
	em, err := NewFactory(Config{Loader: func(context.Context, string) error { return boom }}).NewMap(engine.Options{})
	require.NoError(t, err)
	m := em.(*Map)

	require.Eventually(t, func() bool { return m.LoadErr() != nil }, time.Second, time.Millisecond)
	assert.False(t, m.Loaded())
}

func TestSourceAndLayerRules(t *testing.T) {
	m := newLoadedMap(t, Config{})

	line := engine.LayerSpec{ID: "l", Type: "line", Source: "s"}
	assert.Error(t, m.AddLayer(line), "layer without source")

	require.NoError(t, m.AddSource("s", engine.SourceSpec{Type: "geojson", Data: "https://example.com/data.geojson"}))
	assert.Error(t, m.AddSource("s", engine.SourceSpec{Type: "geojson"}), "duplicate source")

	require.NoError(t, m.AddLayer(line))
	assert.Error(t, m.AddLayer(line), "duplicate layer")
	assert.Error(t, m.AddLayer(engine.LayerSpec{ID: "x", Type: "blob", Source: "s"}), "bad type")
	require.NoError(t, m.AddLayer(engine.LayerSpec{ID: "bg", Type: "background"}))

	assert.Error(t, m.RemoveSource("s"), "source in use")
	require.NoError(t, m.RemoveLayer("l"))
	assert.Error(t, m.RemoveLayer("l"))
	require.NoError(t, m.RemoveSource("s"))
	assert.Error(t, m.RemoveSource("s"))

	_, ok := m.GetSource("s")
	assert.False(t, ok)
}

func TestObserverSeesMutationsInOrder(t *testing.T) {
	var mu sync.Mutex
	var kinds []engine.EventKind
	m := newLoadedMap(t, Config{Observer: func(ev engine.Event) {
		mu.Lock()
		kinds = append(kinds, ev.Kind)
		mu.Unlock()
	}})

	require.NoError(t, m.AddSource("s", engine.SourceSpec{Type: "geojson", Data: "u"}))
	require.NoError(t, m.AddLayer(engine.LayerSpec{ID: "l", Type: "line", Source: "s"}))
	require.NoError(t, m.RemoveLayer("l"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []engine.EventKind{
		engine.EventMapCreated, engine.EventMapLoaded,
		engine.EventSourceAdded, engine.EventLayerAdded, engine.EventLayerRemoved,
	}, kinds)
}

func TestStyleSnapshot(t *testing.T) {
	em, err := NewFactory(Config{}).NewMap(engine.Options{
		Container: "map",
		Style:     "https://example.com/style.json",
		Center:    &engine.LngLat{4.9, 52.37},
		Zoom:      12,
	})
	require.NoError(t, err)
	m := em.(*Map)

	inline := json.RawMessage(`{"type":"FeatureCollection","features":[
		{"type":"Feature","geometry":{"type":"Point","coordinates":[1,2]},"properties":{}},
		{"type":"Feature","geometry":{"type":"Point","coordinates":[3,-4]},"properties":{}}]}`)
	require.NoError(t, m.AddSource("pts", engine.SourceSpec{Type: "geojson", Data: inline}))
	require.NoError(t, m.AddLayer(engine.LayerSpec{ID: "dots", Type: "circle", Source: "pts"}))

	st := m.Style()
	assert.Equal(t, 8, st.Version)
	assert.Equal(t, []float64{4.9, 52.37}, st.Center)
	assert.Equal(t, 12.0, st.Zoom)
	assert.Equal(t, "map", st.Metadata.Container)
	require.Len(t, st.Layers, 1)
	assert.Equal(t, "dots", st.Layers[0].ID)

	stats := st.Metadata.Sources["pts"]
	assert.Equal(t, 2, stats.Features)
	require.NotNil(t, stats.Bounds)
	assert.Equal(t, [4]float64{1, -4, 3, 2}, *stats.Bounds)

	out, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"type":"FeatureCollection"`)
}

func TestMarkers(t *testing.T) {
	f := NewFactory(Config{})
	m := newLoadedMap(t, Config{})
	other := newLoadedMap(t, Config{})

	mk := f.NewMarker().(*Marker)
	mk.Remove()

	mk.SetLngLat(engine.LngLat{1, 2})
	require.NoError(t, mk.AddTo(m))
	assert.Len(t, m.Markers(), 1)

	require.NoError(t, mk.AddTo(other))
	assert.Empty(t, m.Markers())
	assert.Len(t, other.Markers(), 1)

	st := other.Style()
	require.Len(t, st.Metadata.Markers, 1)
	assert.Equal(t, &[2]float64{1, 2}, st.Metadata.Markers[0].LngLat)

	mk.Remove()
	assert.Empty(t, other.Markers())
}

func TestGeojsonStats(t *testing.T) {
	stats, err := geojsonStats("https://example.com/data.geojson")
	require.NoError(t, err)
	assert.Nil(t, stats)

	stats, err = geojsonStats(json.RawMessage(`{"type":"FeatureCollection","features":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Features)
	assert.Nil(t, stats.Bounds)

	stats, err = geojsonStats(map[string]any{"type": "LineString", "coordinates": [][]float64{{0, 0}, {2, 1}}})
	require.NoError(t, err)
	assert.Equal(t, [4]float64{0, 0, 2, 1}, *stats.Bounds)

	_, err = geojsonStats(json.RawMessage(`[1,2]`))
	assert.Error(t, err)
}
