package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-elements/internal/db"
	"github.com/joeblew999/plat-geo-elements/internal/humastar"
)

// DBHandler serves the mutation journal and read-only queries over it.
type DBHandler struct {
	journal *db.Journal
}

// NewDBHandler creates a new database handler. journal may be nil, in which
// case every route answers 503.
func NewDBHandler(journal *db.Journal) *DBHandler {
	return &DBHandler{journal: journal}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	tags := huma.OperationTags("journal")
	huma.Get(api, "/api/v1/journal", h.ListJournal, tags)
	huma.Get(api, "/api/v1/tables", h.ListTables, tags)
	huma.Post(api, "/api/v1/query", h.Query, tags)
}

func (h *DBHandler) available() error {
	if h.journal == nil {
		return huma.Error503ServiceUnavailable("Database not available")
	}
	return nil
}

type JournalInput struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Entries to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Page size"`
}

// ListJournal returns recorded engine mutations, newest first.
func (h *DBHandler) ListJournal(ctx context.Context, input *JournalInput) (*struct {
	Body humastar.PageBody[db.Entry]
}, error) {
	if err := h.available(); err != nil {
		return nil, err
	}
	entries, total, err := h.journal.Recent(ctx, input.Offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read journal", err)
	}
	return &struct {
		Body humastar.PageBody[db.Entry]
	}{Body: humastar.PageBody[db.Entry]{
		Total:  total,
		Offset: input.Offset,
		Limit:  input.Limit,
		Data:   entries,
	}}, nil
}

type TablesBody struct {
	Tables []string `json:"tables" doc:"List of table names"`
}

// ListTables returns the tables of the journal database.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if err := h.available(); err != nil {
		return nil, err
	}
	tables, err := h.journal.Tables(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables}}, nil
}

type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" minLength:"1" doc:"Read-only SQL statement" example:"SELECT kind, count(*) AS n FROM journal GROUP BY kind"`
		Limit int    `json:"limit,omitempty" minimum:"0" maximum:"1000" doc:"Maximum rows to return (default 1000)"`
	}
}

// Query runs a read-only statement against the journal database.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body db.QueryResult }, error) {
	if err := h.available(); err != nil {
		return nil, err
	}
	res, err := h.journal.Query(ctx, input.Body.Query, input.Body.Limit)
	if err != nil {
		if errors.Is(err, db.ErrNotReadOnly) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		if ctx.Err() != nil {
			return nil, huma.Error504GatewayTimeout("query timed out", err)
		}
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &struct{ Body db.QueryResult }{Body: res}, nil
}
