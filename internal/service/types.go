// Package service contains the business logic for serving map documents.
package service

import "time"

// DocumentFile is a map document on disk.
type DocumentFile struct {
	Name string `json:"name" doc:"Document name" example:"amsterdam" card:"title"`
	Size string `json:"size" doc:"Human-readable file size" example:"1.2 KB" card:"meta"`
	Open bool   `json:"open" doc:"Whether the document is currently open" card:"badge"`
}

// Element attach status values.
const (
	StatusPending  = "pending"
	StatusAttached = "attached"
	StatusFailed   = "failed"
	StatusDetached = "detached"
)

// ElementInfo describes one map element of an open document.
type ElementInfo struct {
	ID     string `json:"id" doc:"Element id" example:"buildings"`
	Tag    string `json:"tag" doc:"Element tag" example:"ml-layer"`
	Parent string `json:"parent,omitempty" doc:"Id of the parent element" example:"map"`
	Status string `json:"status" enum:"pending,attached,failed,detached" doc:"Attach status of the current cycle"`
	Error  string `json:"error,omitempty" doc:"Attach failure, if any"`
}

// MapInfo describes a map element and the engine it drives.
type MapInfo struct {
	ID        string   `json:"id" doc:"Map element id" example:"map"`
	Container string   `json:"container,omitempty" doc:"Id of the container the engine renders into"`
	State     string   `json:"state" doc:"Map lifecycle state" example:"engine-loaded"`
	Engine    string   `json:"engine,omitempty" doc:"Engine instance id"`
	Style     string   `json:"style" doc:"Base style URL"`
	Zoom      float64  `json:"zoom" doc:"Initial zoom"`
	Sources   []string `json:"sources" doc:"Registered source ids"`
	Layers    []string `json:"layers" doc:"Registered layer ids, in draw order"`
	Markers   int      `json:"markers" doc:"Number of attached markers"`
}

// DocumentInfo is the state of an open map document.
type DocumentInfo struct {
	Name     string        `json:"name" doc:"Document name" example:"amsterdam"`
	OpenedAt time.Time     `json:"openedAt" doc:"When the document was opened"`
	Maps     []MapInfo     `json:"maps" doc:"Map elements"`
	Elements []ElementInfo `json:"elements" doc:"All map elements, in tree order"`
	Detached []string      `json:"detached,omitempty" doc:"Ids of detached elements that can be restored"`
}

// AttributeChange sets one attribute on an element.
type AttributeChange struct {
	Name  string `json:"name" required:"true" minLength:"1" doc:"Attribute name" example:"long"`
	Value string `json:"value" doc:"Attribute value" example:"4.91"`
}
