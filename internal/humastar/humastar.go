// Package humastar bridges Huma (REST/OpenAPI) with Datastar (SSE/hypermedia).
//
// It provides:
//   - SSE: Huma streaming → Datastar SSE protocol via [SSE] and [Stream]
//   - Links: RFC 8288 Link headers derived from the OpenAPI paths via [LinkSet]
//   - Pagination and state-dependent actions via [PageBody] and [Actor]
//
// Usage:
//
//	func (h *Handler) Events(ctx context.Context, input *humastar.EmptyInput) (*huma.StreamResponse, error) {
//	    return humastar.Stream(func(sse humastar.SSE) {
//	        sse.Signals(map[string]any{"connected": true})
//	    }), nil
//	}
package humastar

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// EmptyInput is a shared input struct for handlers with no parameters.
type EmptyInput struct{}

// Stream returns a Huma StreamResponse that calls fn with a ready SSE helper.
// Use this instead of manually constructing &huma.StreamResponse{Body: ...}.
func Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(humaCtx huma.Context) {
			fn(NewSSE(humaCtx))
		},
	}
}

// SSE wraps a Datastar SSE generator with convenience methods for common
// patterns: signals, custom events and outer element replacement.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE creates a Datastar SSE helper from a Huma streaming context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Replace replaces outer HTML at a CSS selector.
func (s SSE) Replace(html, selector string) error {
	return s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeOuter(),
	)
}

// Error sends an error signal to the UI.
func (s SSE) Error(msg string) error {
	return s.MarshalAndPatchSignals(map[string]any{"error": msg})
}

// Signals sends arbitrary signals to the UI.
func (s SSE) Signals(signals map[string]any) error {
	return s.MarshalAndPatchSignals(signals)
}

// Event dispatches a browser CustomEvent carrying detail.
func (s SSE) Event(name string, detail any) error {
	return s.DispatchCustomEvent(name, detail)
}
