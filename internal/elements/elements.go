// Package elements implements the declarative map elements: a map container,
// sources, layers and markers.
//
// Elements initialise in dependency order (map, then source, then layer or
// marker) no matter in which order they are attached. Each attach cycle runs
// on its own goroutine with a context that Disconnected cancels; every engine
// side effect happens under the component lock after re-checking that
// context, so a detach racing an attach either prevents the side effect or
// undoes it.
package elements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
	"github.com/joeblew999/plat-geo-elements/internal/promise"
)

var tracer = otel.Tracer("github.com/joeblew999/plat-geo-elements/internal/elements")

// Tags are the tag names the elements are defined under.
type Tags struct {
	Map    string
	Source string
	Layer  string
	Marker string
}

// DefaultTags are the standard tag names.
var DefaultTags = Tags{
	Map:    "ml-map",
	Source: "ml-source",
	Layer:  "ml-layer",
	Marker: "ml-marker",
}

// Options configures Define.
type Options struct {
	Factory engine.Factory
	Logger  *slog.Logger
	// Tags defaults to DefaultTags; empty fields fall back individually.
	Tags Tags
}

// Set is one definition of the map elements, sharing an engine factory and a
// source table.
type Set struct {
	factory engine.Factory
	logger  *slog.Logger
	tags    Tags
	sources *SourceTable

	// engineMu makes container engine lookup-or-create atomic across maps.
	engineMu sync.Mutex
}

// Define registers the map elements in reg.
func Define(reg *dom.Registry, opts Options) (*Set, error) {
	if opts.Factory == nil {
		return nil, errors.New("elements: engine factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	tags := opts.Tags
	if tags.Map == "" {
		tags.Map = DefaultTags.Map
	}
	if tags.Source == "" {
		tags.Source = DefaultTags.Source
	}
	if tags.Layer == "" {
		tags.Layer = DefaultTags.Layer
	}
	if tags.Marker == "" {
		tags.Marker = DefaultTags.Marker
	}

	s := &Set{
		factory: opts.Factory,
		logger:  opts.Logger,
		tags:    tags,
		sources: NewSourceTable(),
	}

	defs := []struct {
		tag  string
		ctor dom.Constructor
	}{
		{tags.Map, func(el *dom.Element) dom.Component { return newMap(s, el) }},
		{tags.Source, func(el *dom.Element) dom.Component { return newSource(s, el) }},
		{tags.Layer, func(el *dom.Element) dom.Component { return newLayer(s, el) }},
		{tags.Marker, func(el *dom.Element) dom.Component { return newMarker(s, el) }},
	}
	for _, d := range defs {
		if err := reg.Define(d.tag, d.ctor); err != nil {
			return nil, fmt.Errorf("defining %s: %w", d.tag, err)
		}
	}
	return s, nil
}

// Tags returns the tag names this set is defined under.
func (s *Set) Tags() Tags { return s.tags }

// Sources returns the source registration table.
func (s *Set) Sources() *SourceTable { return s.sources }

// FindMap returns the map element enclosing el, or nil.
func FindMap(el *dom.Element) *Map {
	found := el.ClosestFunc(func(e *dom.Element) bool {
		_, ok := e.Component().(*Map)
		return ok
	})
	if found == nil {
		return nil
	}
	return found.Component().(*Map)
}

// Attacher is implemented by every element component.
type Attacher interface {
	// Attached settles with the outcome of the current attach cycle.
	Attached() *promise.Future[struct{}]
}

// Settle waits for every connected element component in doc to finish its
// current attach cycle and joins their failures.
func Settle(ctx context.Context, doc *dom.Document) error {
	var errs []error
	var waitErr error
	doc.Walk(func(el *dom.Element) {
		a, ok := el.Component().(Attacher)
		if !ok || waitErr != nil {
			return
		}
		if _, err := a.Attached().Await(ctx); err != nil {
			if ctx.Err() != nil {
				waitErr = ctx.Err()
				return
			}
			errs = append(errs, fmt.Errorf("<%s id=%q>: %w", el.Tag(), el.ID(), err))
		}
	})
	if waitErr != nil {
		return waitErr
	}
	return errors.Join(errs...)
}

// base holds the attach cycle shared by all components.
type base struct {
	set *Set
	el  *dom.Element
	log *slog.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	attached *promise.Future[struct{}]
}

func newBase(set *Set, el *dom.Element) base {
	return base{
		set:      set,
		el:       el,
		log:      set.logger.With("tag", el.Tag(), "id", el.ID()),
		attached: promise.New[struct{}](),
	}
}

// Element returns the element the component is attached to.
func (b *base) Element() *dom.Element { return b.el }

// Attached settles with the outcome of the current attach cycle.
func (b *base) Attached() *promise.Future[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attached
}

// beginLocked starts an attach cycle, cancelling the previous one.
func (b *base) beginLocked() (context.Context, *promise.Future[struct{}]) {
	if b.cancel != nil {
		b.cancel()
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	if b.started {
		b.attached = promise.New[struct{}]()
	}
	b.started = true
	return b.ctx, b.attached
}

func (b *base) endLocked() {
	if b.cancel != nil {
		b.cancel()
	}
}
