package humastar

import (
	"context"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationLinks(t *testing.T) {
	p := PageBody[int]{Total: 25, Offset: 10, Limit: 10}
	assert.Equal(t, []string{
		`</j?offset=0&limit=10>; rel="first"`,
		`</j?offset=0&limit=10>; rel="prev"`,
		`</j?offset=20&limit=10>; rel="next"`,
		`</j?offset=20&limit=10>; rel="last"`,
	}, p.PaginationLinks("/j"))

	empty := PageBody[int]{Limit: 10}
	assert.Equal(t, []string{
		`</j?offset=0&limit=10>; rel="first"`,
		`</j?offset=0&limit=10>; rel="last"`,
	}, empty.PaginationLinks("/j"))

	assert.Nil(t, PageBody[int]{}.PaginationLinks("/j"))
}

func TestActions(t *testing.T) {
	actions := ActionsFor([]ActionDef{
		{Rel: "close", Pattern: "/docs/%s", Method: http.MethodDelete, Title: "Close"},
		{Rel: "journal", Pattern: "/journal?document=%s"},
	}, "a")
	require.Len(t, actions, 2)
	assert.Equal(t, `</docs/a>; rel="close"; method="DELETE"; title="Close"`, actions[0].LinkHeader())
	assert.Equal(t, `</journal?document=a>; rel="journal"`, actions[1].LinkHeader())
}

type item struct {
	ID string `json:"id"`
}

type itemBody struct {
	item
}

func (itemBody) Actions() []Action {
	return []Action{{Rel: "delete", Href: "/things/x", Method: http.MethodDelete}}
}

func TestLinkSet(t *testing.T) {
	links := NewLinkSet()
	config := huma.DefaultConfig("test", "1.0.0")
	config.CreateHooks = nil
	config.Transformers = append(config.Transformers, links.Transformer())
	_, api := humatest.New(t, config)

	huma.Get(api, "/health", func(ctx context.Context, _ *EmptyInput) (*struct{}, error) {
		return &struct{}{}, nil
	})
	huma.Get(api, "/things", func(ctx context.Context, _ *EmptyInput) (*struct{ Body PageBody[item] }, error) {
		return &struct{ Body PageBody[item] }{Body: PageBody[item]{Total: 3, Limit: 2, Data: []item{{"a"}, {"b"}}}}, nil
	})
	huma.Put(api, "/things/{id}", func(ctx context.Context, in *struct {
		ID string `path:"id"`
	}) (*struct{ Body itemBody }, error) {
		return &struct{ Body itemBody }{Body: itemBody{item{in.ID}}}, nil
	})
	links.Build(api)

	assert.Contains(t, links.For("/health"), `</things>; rel="things"`)
	assert.Contains(t, links.For("/health"), `</openapi.json>; rel="service-desc"`)
	assert.Contains(t, links.For("/things"), `</things/{id}>; rel="item"`)
	assert.Contains(t, links.For("/things/{id}"), `</things>; rel="collection"`)
	assert.Contains(t, links.For("/things/{id}"), `</things/{id}>; rel="edit"`)

	resp := api.Get("/things")
	require.Equal(t, http.StatusOK, resp.Code)
	header := resp.Header().Values("Link")
	assert.Contains(t, header, `</things?offset=2&limit=2>; rel="next"`)
	assert.Contains(t, header, `</health>; rel="up"`)

	resp = api.Put("/things/x")
	require.Equal(t, http.StatusOK, resp.Code)
	header = resp.Header().Values("Link")
	assert.Contains(t, header, `</things/x>; rel="self"`)
	assert.Contains(t, header, `</things/x>; rel="delete"; method="DELETE"`)

	rel, href := parseLinkHeader(`</things>; rel="collection"`)
	assert.Equal(t, "collection", rel)
	assert.Equal(t, "/things", href)
}
