package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/elements"
	"github.com/joeblew999/plat-geo-elements/internal/engine/stylemap"
)

// render parses markup, attaches its elements against the stylemap engine
// and returns each engine's style keyed by container id. Styles are returned
// alongside the error when some elements failed to attach.
func render(ctx context.Context, r io.Reader, logger *slog.Logger) (map[string]stylemap.Style, error) {
	factory := stylemap.NewFactory(stylemap.Config{Logger: logger})
	reg := dom.NewRegistry()
	if _, err := elements.Define(reg, elements.Options{Factory: factory, Logger: logger}); err != nil {
		return nil, err
	}

	doc, err := dom.Parse(r, reg)
	if err != nil {
		return nil, fmt.Errorf("parsing markup: %w", err)
	}
	settleErr := elements.Settle(ctx, doc)

	styles := make(map[string]stylemap.Style)
	for _, m := range factory.Maps() {
		styles[m.Options().Container] = m.Style()
	}
	return styles, settleErr
}
