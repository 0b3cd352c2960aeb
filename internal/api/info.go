package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-geo-elements/internal/elements"
)

type InfoHandler struct {
	dataDir string
	dbOK    bool
}

func NewInfoHandler(dataDir string, dbOK bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name       string   `json:"name" doc:"Service name"`
	Version    string   `json:"version" doc:"Service version"`
	DataDir    string   `json:"data_dir" doc:"Data directory path"`
	DB         bool     `json:"db" doc:"Whether the journal database is available"`
	Elements   []string `json:"elements" doc:"Registered element tags"`
	LayerTypes []string `json:"layer_types" doc:"Accepted layer type values"`
	Features   []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	tags := elements.DefaultTags
	features := []string{"documents", "styles", "events"}
	if h.dbOK {
		features = append(features, "journal")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:       "plat-geo-elements",
		Version:    "0.1.0",
		DataDir:    h.dataDir,
		DB:         h.dbOK,
		Elements:   []string{tags.Map, tags.Source, tags.Layer, tags.Marker},
		LayerTypes: elements.LayerTypes,
		Features:   features,
	}}, nil
}
