package elements

import (
	"fmt"

	"github.com/joeblew999/plat-geo-elements/internal/attr"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

const (
	// DefaultZoom is used when a map declares no zoom.
	DefaultZoom = 16.0
	// DefaultStyle is used when a map declares no style.
	DefaultStyle = "https://api.maptiler.com/maps/satellite/style.json"
	// SourceKindGeoJSON is the only source kind registered with the engine.
	SourceKindGeoJSON = "geojson"
)

// LayerTypes is the closed set of layer kinds.
var LayerTypes = []string{
	"background",
	"circle",
	"fill",
	"fill-extrusion",
	"heatmap",
	"hillshade",
	"line",
	"raster",
	"symbol",
}

// option resolves one declared option into C, either with a fallback or by
// failing.
type option[C any] struct {
	name    string
	resolve func(el attr.Source, c *C) error
}

func resolve[C any](el attr.Source, opts []option[C]) (C, error) {
	var c C
	for _, o := range opts {
		if err := o.resolve(el, &c); err != nil {
			return c, fmt.Errorf("%s: %w", o.name, err)
		}
	}
	return c, nil
}

// MapConfig is the declarative configuration of a map element.
type MapConfig struct {
	Style string
	// Center is nil unless both coordinates are present and numeric.
	Center *engine.LngLat
	Zoom   float64
	// MapID references a separate container node; empty means the element itself.
	MapID string
}

var mapOptions = []option[MapConfig]{
	{"style", func(el attr.Source, c *MapConfig) error {
		c.Style = DefaultStyle
		if v, ok := attr.Get(el, "style"); ok && v != "" {
			c.Style = v
		} else if v, ok := el.Attribute("map-style"); ok && v != "" {
			c.Style = v
		}
		return nil
	}},
	{"center", func(el attr.Source, c *MapConfig) error {
		if p, ok := lngLat(el, "center-long", "center-lat"); ok {
			c.Center = &p
		}
		return nil
	}},
	{"zoom", func(el attr.Source, c *MapConfig) error {
		c.Zoom = DefaultZoom
		if z, ok := attr.Float(el, "zoom"); ok {
			c.Zoom = z
		} else if z, ok := attr.Float(el, "initial-zoom", "initialZoom"); ok {
			c.Zoom = z
		}
		return nil
	}},
	{"map-id", func(el attr.Source, c *MapConfig) error {
		c.MapID, _ = attr.Get(el, "map-id")
		return nil
	}},
}

// SourceConfig is the declarative configuration of a source element.
type SourceConfig struct {
	// Kind is empty when the declared type is unsupported.
	Kind string
	// Src is the external reference; HasSrc is false for inline payloads.
	Src    string
	HasSrc bool
}

var sourceOptions = []option[SourceConfig]{
	{"type", func(el attr.Source, c *SourceConfig) error {
		if v, _ := attr.Get(el, "type"); v == SourceKindGeoJSON {
			c.Kind = v
		}
		return nil
	}},
	{"src", func(el attr.Source, c *SourceConfig) error {
		c.Src, c.HasSrc = attr.Get(el, "src")
		return nil
	}},
}

// LayerConfig is the declarative configuration of a layer element. Type is
// validated when the layer is added.
type LayerConfig struct {
	Type   string
	Source string
}

var layerOptions = []option[LayerConfig]{
	{"source", func(el attr.Source, c *LayerConfig) error {
		v, ok := attr.Get(el, "source")
		if !ok || v == "" {
			return &SourceNotFoundError{ID: v}
		}
		c.Source = v
		return nil
	}},
	{"type", func(el attr.Source, c *LayerConfig) error {
		c.Type, _ = attr.Get(el, "type")
		return nil
	}},
}

// MarkerConfig is the declarative configuration of a marker element.
type MarkerConfig struct {
	// Position is nil unless both coordinates are present and numeric.
	Position *engine.LngLat
}

var markerOptions = []option[MarkerConfig]{
	{"position", func(el attr.Source, c *MarkerConfig) error {
		if p, ok := lngLat(el, "long", "lat"); ok {
			c.Position = &p
		}
		return nil
	}},
}

func lngLat(el attr.Source, lonKey, latKey string) (engine.LngLat, bool) {
	lon, ok := attr.Float(el, lonKey)
	if !ok {
		return engine.LngLat{}, false
	}
	lat, ok := attr.Float(el, latKey)
	if !ok {
		return engine.LngLat{}, false
	}
	return engine.LngLat{lon, lat}, true
}
