package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-elements/internal/humastar"
	"github.com/joeblew999/plat-geo-elements/internal/service"
	"github.com/joeblew999/plat-geo-elements/internal/templates"
)

type EventsInput struct {
	Document string `query:"document" doc:"Only stream events for this document" example:"amsterdam"`
}

// EventHandler streams document and engine events over Datastar SSE. With a
// renderer it also patches the summary fragment of the affected document.
type EventHandler struct {
	docs     *service.DocumentService
	renderer *templates.Renderer
}

func NewEventHandler(docs *service.DocumentService, renderer *templates.Renderer) *EventHandler {
	return &EventHandler{docs: docs, renderer: renderer}
}

func (h *EventHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/events", h.Events, huma.OperationTags("events"))
}

func (h *EventHandler) Events(ctx context.Context, input *EventsInput) (*huma.StreamResponse, error) {
	if h.docs == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	bus := h.docs.Bus()
	return humastar.Stream(func(sse humastar.SSE) {
		ch := bus.Subscribe()
		defer bus.Unsubscribe(ch)

		if err := sse.Signals(map[string]any{"connected": true}); err != nil {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				if input.Document != "" && ev.Document != input.Document {
					continue
				}
				if err := h.send(sse, ev); err != nil {
					return
				}
			}
		}
	}), nil
}

func (h *EventHandler) send(sse humastar.SSE, ev service.Event) error {
	if err := sse.Event("engine-event", ev); err != nil {
		return err
	}
	if err := sse.Signals(map[string]any{
		"lastResource": ev.Resource,
		"lastAction":   ev.Action,
		"lastId":       ev.ID,
	}); err != nil {
		return err
	}
	if h.renderer == nil || ev.Document == "" {
		return nil
	}

	selector := "#document-" + ev.Document
	info, err := h.docs.Get(ev.Document)
	if err != nil {
		return sse.Replace(h.renderer.MustRender("closed", ev.Document), selector)
	}
	html, err := h.renderer.Render("document", info)
	if err != nil {
		return sse.Error(err.Error())
	}
	return sse.Replace(html, selector)
}
