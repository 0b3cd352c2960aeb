package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-geo-elements/internal/elements"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func renderString(t *testing.T, markup string) (map[string]any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	styles, err := render(ctx, strings.NewReader(markup), quietLogger())
	out := map[string]any{}
	for id, st := range styles {
		out[id] = st
	}
	return out, err
}

func TestRender(t *testing.T) {
	styles, err := renderString(t, `
<div id="surface"></div>
<ml-map map-id="surface" zoom="3">
	<ml-source id="pts" type="geojson">{"type":"FeatureCollection","features":[]}</ml-source>
	<ml-layer id="dots" type="circle" source="pts"></ml-layer>
</ml-map>`)
	require.NoError(t, err)
	require.Contains(t, styles, "surface")
}

func TestRenderReportsFailures(t *testing.T) {
	styles, err := renderString(t, `
<ml-map id="m">
	<ml-layer id="bad" type="sparkles" source="nowhere"></ml-layer>
</ml-map>`)
	require.Error(t, err)
	assert.Len(t, styles, 1)

	var missing *elements.SourceNotFoundError
	var invalid *elements.InvalidLayerTypeError
	assert.True(t, errors.As(err, &missing) || errors.As(err, &invalid), err.Error())
}

func TestNewLogger(t *testing.T) {
	assert.True(t, newLogger("debug").Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, newLogger("warn").Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, newLogger("nonsense").Enabled(context.Background(), slog.LevelInfo))
}
