package humastar

import (
	"fmt"
	"path"
	"slices"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
)

// LinkSet holds RFC 8288 Link header values keyed by operation path.
type LinkSet struct {
	mu    sync.RWMutex
	links map[string][]string
}

// NewLinkSet returns an empty link set. Register its Transformer with the
// API config, then call Build once all routes are registered.
func NewLinkSet() *LinkSet {
	return &LinkSet{links: map[string][]string{}}
}

// Build walks the registered OpenAPI paths and derives hypermedia links,
// replacing any previous ones.
//
//   - item paths link to their parent collection (rel="collection", "up")
//   - collections link to their item templates (rel="item") and to /health
//   - /health links to every collection and to the OpenAPI description
//   - paths with PUT link to themselves (rel="edit")
func (ls *LinkSet) Build(api huma.API) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.links = map[string][]string{}
	paths := api.OpenAPI().Paths

	var collections, items []string
	for p := range paths {
		if strings.Contains(p, "{") {
			items = append(items, p)
		} else {
			collections = append(collections, p)
		}
	}
	slices.Sort(collections)
	slices.Sort(items)

	for _, item := range items {
		parent := path.Dir(item)
		if _, ok := paths[parent]; ok {
			ls.add(item, parent, "collection")
			ls.add(item, parent, "up")
		}
		if paths[item].Put != nil {
			ls.add(item, item, "edit")
		}
	}

	for _, coll := range collections {
		for _, item := range items {
			if path.Dir(item) == coll {
				ls.add(coll, item, "item")
			}
		}
		if coll == "/health" {
			continue
		}
		ls.add(coll, "/health", "up")
		ls.add("/health", coll, lastSegment(coll))
	}

	ls.add("/health", "/openapi.json", "describedby")
	ls.add("/health", "/openapi.json", "service-desc")
	ls.add("/health", "/docs", "service-doc")

	for p, headers := range ls.links {
		if pi, ok := paths[p]; ok {
			for _, op := range []*huma.Operation{pi.Get, pi.Post, pi.Put, pi.Patch, pi.Delete} {
				if op != nil {
					injectResponseLinks(op, headers)
				}
			}
		}
	}
}

// For returns the Link header values for an operation path.
func (ls *LinkSet) For(opPath string) []string {
	if ls == nil {
		return nil
	}
	ls.mu.RLock()
	defer ls.mu.RUnlock()
	return slices.Clone(ls.links[opPath])
}

// Transformer returns a Huma Transformer that writes the link set, a self
// link for item endpoints, pagination links and state-dependent actions.
func (ls *LinkSet) Transformer() huma.Transformer {
	return func(ctx huma.Context, status string, v any) (any, error) {
		op := ctx.Operation()
		if op == nil {
			return v, nil
		}

		for _, link := range ls.For(op.Path) {
			ctx.AppendHeader("Link", link)
		}
		if strings.Contains(op.Path, "{") {
			ctx.AppendHeader("Link", fmt.Sprintf(`<%s>; rel="self"`, ctx.URL().Path))
		}
		if p, ok := v.(Pager); ok {
			for _, link := range p.PaginationLinks(ctx.URL().Path) {
				ctx.AppendHeader("Link", link)
			}
		}
		if a, ok := v.(Actor); ok {
			for _, action := range a.Actions() {
				ctx.AppendHeader("Link", action.LinkHeader())
			}
		}
		return v, nil
	}
}

func (ls *LinkSet) add(from, to, rel string) {
	val := fmt.Sprintf(`<%s>; rel="%s"`, to, rel)
	if !slices.Contains(ls.links[from], val) {
		ls.links[from] = append(ls.links[from], val)
	}
}

func lastSegment(p string) string {
	return path.Base(strings.TrimRight(p, "/"))
}

// injectResponseLinks documents the links as OpenAPI Link objects on the
// operation's success response.
func injectResponseLinks(op *huma.Operation, headers []string) {
	var resp *huma.Response
	for code, r := range op.Responses {
		if strings.HasPrefix(code, "2") {
			resp = r
			break
		}
	}
	if resp == nil {
		return
	}
	if resp.Links == nil {
		resp.Links = map[string]*huma.Link{}
	}
	for _, h := range headers {
		rel, href := parseLinkHeader(h)
		if rel == "" {
			continue
		}
		resp.Links[rel] = &huma.Link{
			OperationRef: href,
			Description:  "Related: " + rel,
		}
	}
}

func parseLinkHeader(h string) (rel, href string) {
	target, params, ok := strings.Cut(h, ";")
	if !ok {
		return "", ""
	}
	href = strings.Trim(strings.TrimSpace(target), "<>")
	params = strings.TrimSpace(params)
	if v, ok := strings.CutPrefix(params, `rel="`); ok {
		rel = strings.TrimSuffix(v, `"`)
	}
	return rel, href
}
