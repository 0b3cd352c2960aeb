package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-geo-elements/internal/db"
	"github.com/joeblew999/plat-geo-elements/internal/humastar"
	"github.com/joeblew999/plat-geo-elements/internal/service"
)

const harbour = `<ml-map id="map" center-long="4.9" center-lat="52.37" zoom="12">
	<ml-source id="quays" type="geojson">{"type":"Feature","geometry":{"type":"Point","coordinates":[4.9,52.38]},"properties":{}}</ml-source>
	<ml-layer id="quay-points" type="circle" source="quays"></ml-layer>
	<ml-marker id="ferry" long="4.9" lat="52.38"></ml-marker>
</ml-map>`

func newTestAPI(t *testing.T) (humatest.TestAPI, *service.DocumentService) {
	t.Helper()
	return newJournalTestAPI(t, nil)
}

// newJournalTestAPI serves the harbour document; journal may be nil.
func newJournalTestAPI(t *testing.T, journal *db.Journal) (humatest.TestAPI, *service.DocumentService) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "documents"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "documents", "harbour.html"), []byte(harbour), 0644))

	opts := service.Options{
		DataDir: dir,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if journal != nil {
		opts.Journal = journal
	}
	docs := service.NewDocumentService(opts)
	t.Cleanup(docs.CloseAll)

	config := huma.DefaultConfig("test", "1.0.0")
	config.CreateHooks = nil
	links := humastar.NewLinkSet()
	config.Transformers = append(config.Transformers, links.Transformer())
	_, api := humatest.New(t, config)
	RegisterRoutes(api, &Services{Documents: docs})
	NewInfoHandler(dir, journal != nil).RegisterRoutes(api)
	NewDBHandler(journal).RegisterRoutes(api)
	links.Build(api)
	return api, docs
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

func TestHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[HealthBody](t, resp.Body)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Documents)
}

func TestInfo(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[InfoBody](t, resp.Body)
	assert.Equal(t, []string{"ml-map", "ml-source", "ml-layer", "ml-marker"}, body.Elements)
	assert.Contains(t, body.LayerTypes, "fill-extrusion")
	assert.NotContains(t, body.Features, "journal")
}

func TestDocumentLifecycle(t *testing.T) {
	api, _ := newTestAPI(t)

	resp := api.Get("/api/v1/documents")
	require.Equal(t, http.StatusOK, resp.Code)
	files := decode[[]service.DocumentFile](t, resp.Body)
	require.Len(t, files, 1)
	assert.False(t, files[0].Open)

	resp = api.Post("/api/v1/documents/harbour/open")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	info := decode[DocumentBody](t, resp.Body)
	require.Len(t, info.Maps, 1)
	assert.Equal(t, "engine-loaded", info.Maps[0].State)
	assert.Equal(t, []string{"quays"}, info.Maps[0].Sources)
	assert.Equal(t, []string{"quay-points"}, info.Maps[0].Layers)
	for _, el := range info.Elements {
		assert.Equal(t, service.StatusAttached, el.Status, el.ID)
	}

	resp = api.Get("/api/v1/documents/harbour/maps/map/style")
	require.Equal(t, http.StatusOK, resp.Code)
	style := decode[map[string]any](t, resp.Body)
	assert.EqualValues(t, 8, style["version"])
	assert.Contains(t, style["sources"], "quays")

	resp = api.Get("/api/v1/documents/harbour")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/documents/harbour/maps/map/style>; rel="style"; method="GET"; title="Style of map"`)

	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/documents/harbour>; rel="self"`)

	resp = api.Delete("/api/v1/documents/harbour")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = api.Get("/api/v1/documents/harbour")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestElementRoutes(t *testing.T) {
	api, _ := newTestAPI(t)
	require.Equal(t, http.StatusOK, api.Post("/api/v1/documents/harbour/open").Code)

	resp := api.Put("/api/v1/documents/harbour/elements/ferry/attributes", map[string]any{
		"name":  "long",
		"value": "4.91",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	el := decode[service.ElementInfo](t, resp.Body)
	assert.Equal(t, "ferry", el.ID)

	resp = api.Post("/api/v1/documents/harbour/elements/quays/restore")
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = api.Delete("/api/v1/documents/harbour/elements/quays")
	require.Equal(t, http.StatusOK, resp.Code)

	resp = api.Get("/api/v1/documents/harbour/maps/map/style")
	require.Equal(t, http.StatusOK, resp.Code)
	style := decode[map[string]any](t, resp.Body)
	assert.NotContains(t, style["sources"], "quays")

	resp = api.Post("/api/v1/documents/harbour/elements/quays/restore")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	el = decode[service.ElementInfo](t, resp.Body)
	assert.Equal(t, service.StatusAttached, el.Status)

	resp = api.Get("/api/v1/documents/harbour/maps/ferry/style")
	assert.Equal(t, http.StatusConflict, resp.Code)
	resp = api.Delete("/api/v1/documents/harbour/elements/nope")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestSaveDocument(t *testing.T) {
	api, docs := newTestAPI(t)

	resp := api.Put("/api/v1/documents/empty", "Content-Type: text/html", strings.NewReader(`<ml-map id="m"></ml-map>`))
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	file := decode[service.DocumentFile](t, resp.Body)
	assert.Equal(t, "empty", file.Name)

	files, err := docs.List()
	require.NoError(t, err)
	assert.Len(t, files, 2)

	require.Equal(t, http.StatusOK, api.Post("/api/v1/documents/harbour/open").Code)
	resp = api.Put("/api/v1/documents/harbour", "Content-Type: text/html", strings.NewReader(harbour))
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestOpenErrors(t *testing.T) {
	api, _ := newTestAPI(t)

	assert.Equal(t, http.StatusNotFound, api.Post("/api/v1/documents/missing/open").Code)
	assert.Equal(t, http.StatusBadRequest, api.Post("/api/v1/documents/..secret/open").Code)
	assert.Equal(t, http.StatusNotFound, api.Get("/api/v1/documents/harbour").Code)
}

func TestJournalUnavailable(t *testing.T) {
	api, _ := newTestAPI(t)

	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/journal").Code)
	assert.Equal(t, http.StatusServiceUnavailable, api.Get("/api/v1/tables").Code)
}

func TestJournalRoutes(t *testing.T) {
	conn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	journal, err := db.NewJournal(context.Background(), conn)
	require.NoError(t, err)

	api, _ := newJournalTestAPI(t, journal)
	require.Equal(t, http.StatusOK, api.Post("/api/v1/documents/harbour/open").Code)

	// map created and loaded, source, layer and marker added
	require.Eventually(t, func() bool {
		_, total, err := journal.Recent(context.Background(), 0, 1)
		return err == nil && total >= 5
	}, 2*time.Second, 5*time.Millisecond)

	resp := api.Get("/api/v1/journal?limit=2")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	page := decode[humastar.PageBody[db.Entry]](t, resp.Body)
	assert.Len(t, page.Data, 2)
	assert.GreaterOrEqual(t, page.Total, 5)
	assert.Greater(t, page.Data[0].Seq, page.Data[1].Seq)
	assert.Equal(t, "harbour", page.Data[0].Document)
	links := resp.Header().Values("Link")
	assert.Contains(t, links, `</api/v1/journal?offset=0&limit=2>; rel="first"`)
	assert.Contains(t, links, `</api/v1/journal?offset=2&limit=2>; rel="next"`)
	assert.NotContains(t, strings.Join(links, ","), `rel="prev"`)

	resp = api.Get("/api/v1/journal?offset=2&limit=2")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/journal?offset=0&limit=2>; rel="prev"`)

	resp = api.Get("/api/v1/tables")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, decode[TablesBody](t, resp.Body).Tables, "journal")

	resp = api.Post("/api/v1/query", map[string]any{
		"query": "SELECT subject FROM journal WHERE kind = 'layer.added' AND document = 'harbour'",
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	res := decode[db.QueryResult](t, resp.Body)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, "quay-points", res.Rows[0]["subject"])

	resp = api.Post("/api/v1/query", map[string]any{"query": "DELETE FROM journal"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	resp = api.Post("/api/v1/query", map[string]any{"query": "SELECT * FROM missing"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, decode[InfoBody](t, resp.Body).Features, "journal")
}
