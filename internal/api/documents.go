package api

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-elements/internal/engine/stylemap"
	"github.com/joeblew999/plat-geo-elements/internal/humastar"
	"github.com/joeblew999/plat-geo-elements/internal/service"
)

type NameInput struct {
	Name string `path:"name" doc:"Document name" example:"amsterdam"`
}

type ElementInput struct {
	NameInput
	ID string `path:"id" doc:"Element id" example:"buildings"`
}

type OpenInput struct {
	NameInput
	Wait int `query:"wait" minimum:"0" maximum:"60000" default:"5000" doc:"Milliseconds to wait for elements to attach"`
}

// DocumentBody is an open document with its available actions.
type DocumentBody struct {
	service.DocumentInfo
}

var documentActions = []humastar.ActionDef{
	{Rel: "close", Pattern: "/api/v1/documents/%s", Method: http.MethodDelete, Title: "Close document"},
}

func (b DocumentBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(documentActions, b.Name)
	actions = append(actions, humastar.Action{Rel: "journal", Href: "/api/v1/journal", Method: http.MethodGet, Title: "Mutation journal"})
	for _, m := range b.Maps {
		actions = append(actions, humastar.Action{
			Rel:    "style",
			Href:   "/api/v1/documents/" + b.Name + "/maps/" + m.ID + "/style",
			Method: http.MethodGet,
			Title:  "Style of " + m.ID,
		})
	}
	for _, id := range b.Detached {
		actions = append(actions, humastar.Action{
			Rel:    "restore",
			Href:   "/api/v1/documents/" + b.Name + "/elements/" + id + "/restore",
			Method: http.MethodPost,
			Title:  "Restore " + id,
		})
	}
	return actions
}

type DocumentOutput struct {
	Body DocumentBody
}

type ElementOutput struct {
	Body service.ElementInfo
}

// RegisterDocuments registers document routes.
func (h *APIHandler) RegisterDocuments(api huma.API) {
	tags := huma.OperationTags("documents")
	huma.Get(api, "/api/v1/documents", h.ListDocuments, tags)
	huma.Post(api, "/api/v1/documents/{name}/open", h.OpenDocument, tags)
	huma.Get(api, "/api/v1/documents/{name}", h.GetDocument, tags)
	huma.Put(api, "/api/v1/documents/{name}", h.SaveDocument, tags)
	huma.Delete(api, "/api/v1/documents/{name}", h.CloseDocument, tags)
	huma.Get(api, "/api/v1/documents/{name}/maps/{id}/style", h.GetStyle, tags)

	elementTags := huma.OperationTags("elements")
	huma.Put(api, "/api/v1/documents/{name}/elements/{id}/attributes", h.SetAttribute, elementTags)
	huma.Delete(api, "/api/v1/documents/{name}/elements/{id}", h.DetachElement, elementTags)
	huma.Post(api, "/api/v1/documents/{name}/elements/{id}/restore", h.RestoreElement, elementTags)
}

func (h *APIHandler) documents() (*service.DocumentService, error) {
	if h.svc == nil || h.svc.Documents == nil {
		return nil, huma.Error503ServiceUnavailable("service not available")
	}
	return h.svc.Documents, nil
}

func (h *APIHandler) ListDocuments(ctx context.Context, input *struct{}) (*struct{ Body []service.DocumentFile }, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	files, err := docs.List()
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body []service.DocumentFile }{Body: files}, nil
}

func (h *APIHandler) OpenDocument(ctx context.Context, input *OpenInput) (*DocumentOutput, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(input.Wait)*time.Millisecond)
	defer cancel()

	info, err := docs.Open(ctx, input.Name)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &DocumentOutput{Body: DocumentBody{info}}, nil
}

func (h *APIHandler) GetDocument(ctx context.Context, input *NameInput) (*DocumentOutput, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	info, err := docs.Get(input.Name)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &DocumentOutput{Body: DocumentBody{info}}, nil
}

type SaveInput struct {
	NameInput
	RawBody []byte `contentType:"text/html" doc:"Document markup"`
}

func (h *APIHandler) SaveDocument(ctx context.Context, input *SaveInput) (*struct{ Body service.DocumentFile }, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	file, err := docs.Save(input.Name, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body service.DocumentFile }{Body: file}, nil
}

func (h *APIHandler) CloseDocument(ctx context.Context, input *NameInput) (*struct{ Body MessageBody }, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	if err := docs.Close(input.Name); err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Document closed"}}, nil
}

func (h *APIHandler) GetStyle(ctx context.Context, input *ElementInput) (*struct{ Body stylemap.Style }, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	st, err := docs.Style(input.Name, input.ID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body stylemap.Style }{Body: st}, nil
}

func (h *APIHandler) SetAttribute(ctx context.Context, input *struct {
	ElementInput
	Body service.AttributeChange
}) (*ElementOutput, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	el, err := docs.SetAttribute(ctx, input.Name, input.ID, input.Body)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &ElementOutput{Body: el}, nil
}

func (h *APIHandler) DetachElement(ctx context.Context, input *ElementInput) (*struct{ Body MessageBody }, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	if err := docs.Detach(ctx, input.Name, input.ID); err != nil {
		return nil, toHTTPError(err)
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Element detached"}}, nil
}

func (h *APIHandler) RestoreElement(ctx context.Context, input *struct {
	ElementInput
	Wait int `query:"wait" minimum:"0" maximum:"60000" default:"5000" doc:"Milliseconds to wait for the element to attach"`
}) (*ElementOutput, error) {
	docs, err := h.documents()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(input.Wait)*time.Millisecond)
	defer cancel()

	el, err := docs.Restore(ctx, input.Name, input.ID)
	if err != nil {
		return nil, toHTTPError(err)
	}
	return &ElementOutput{Body: el}, nil
}
