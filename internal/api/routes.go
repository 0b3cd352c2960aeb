// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-elements/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Documents *service.DocumentService
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status    string   `json:"status" doc:"Health status" example:"ok"`
	Version   string   `json:"version" doc:"API version" example:"1.0.0"`
	Documents []string `json:"documents" doc:"Open documents"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every REST route on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	docs := []string{}
	if h.svc != nil && h.svc.Documents != nil {
		docs = h.svc.Documents.Names()
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0", Documents: docs}}, nil
}

// toHTTPError maps service errors onto Huma status errors.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidName):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrDocumentNotFound),
		errors.Is(err, service.ErrDocumentNotOpen),
		errors.Is(err, service.ErrElementNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, service.ErrNotAMap),
		errors.Is(err, service.ErrNoEngine),
		errors.Is(err, service.ErrNotDetached),
		errors.Is(err, service.ErrDocumentOpen):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("timed out waiting for elements to attach", err)
	}
	return huma.Error500InternalServerError("internal error", err)
}
