package stylemap

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SourceStats summarises an inline geojson payload.
type SourceStats struct {
	Features int `json:"features"`
	// Bounds is [west, south, east, north]; nil when there is no geometry.
	Bounds *[4]float64 `json:"bounds,omitempty"`
}

// geojsonStats inspects inline geojson data. URL payloads return nil stats.
func geojsonStats(data any) (*SourceStats, error) {
	var raw []byte
	switch v := data.(type) {
	case string:
		return nil, nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, err
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, f.Geometry)
	case "":
		return nil, fmt.Errorf("missing geojson type")
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, err
		}
		geoms = append(geoms, g.Geometry())
	}

	stats := &SourceStats{Features: len(geoms)}
	var bound orb.Bound
	found := false
	for _, g := range geoms {
		if g == nil {
			continue
		}
		if !found {
			bound, found = g.Bound(), true
			continue
		}
		bound = bound.Union(g.Bound())
	}
	if found {
		stats.Bounds = &[4]float64{bound.Min.Lon(), bound.Min.Lat(), bound.Max.Lon(), bound.Max.Lat()}
	}
	return stats, nil
}
