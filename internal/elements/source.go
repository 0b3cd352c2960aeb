package elements

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/joeblew999/plat-geo-elements/internal/attr"
	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
	"github.com/joeblew999/plat-geo-elements/internal/promise"
)

// Registration is the outcome of registering a source with the engine.
type Registration struct {
	ID   string
	Kind string
	// Skipped is set when the declared kind is unsupported. Nothing was
	// registered and dependents never become ready.
	Skipped bool
}

// Source registers a data source with the engine of its enclosing map.
type Source struct {
	base

	id         string
	ready      atomic.Pointer[promise.Future[Registration]]
	registered engine.Map
}

func newSource(set *Set, el *dom.Element) *Source {
	s := &Source{base: newBase(set, el)}
	s.ready.Store(promise.New[Registration]())
	return s
}

// Ready returns the registration future of the current attach cycle.
func (s *Source) Ready() *promise.Future[Registration] {
	return s.ready.Load()
}

// Config resolves the element's declarative configuration.
func (s *Source) Config() SourceConfig {
	cfg, _ := resolve(s.el, sourceOptions)
	return cfg
}

// Kind returns the declared kind, or "" when it is unsupported.
func (s *Source) Kind() string { return s.Config().Kind }

// Data resolves the payload handed to the engine: the `src` reference if
// present, otherwise the element's text parsed as JSON.
func (s *Source) Data() (any, error) {
	if src, ok := attr.Get(s.el, "src"); ok {
		return src, nil
	}

	body := strings.TrimSpace(s.el.TextContent())
	var raw json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, &MalformedPayloadError{ID: s.el.ID(), Err: err}
	}
	return raw, nil
}

func (s *Source) Connected() {
	s.mu.Lock()
	ctx, done := s.beginLocked()
	ready := promise.New[Registration]()
	s.ready.Store(ready)
	s.id = s.el.ID()
	id := s.id
	s.mu.Unlock()

	s.set.sources.insert(id, s)

	go func() {
		reg, err := s.load(ctx)
		if err != nil && ctx.Err() != nil {
			err = errSourceDetached
		}
		ready.Settle(reg, err)
		done.Settle(struct{}{}, err)
	}()
}

func (s *Source) load(ctx context.Context) (Registration, error) {
	ctx, span := tracer.Start(ctx, "elements.source.load",
		trace.WithAttributes(attribute.String("element.id", s.id)))
	defer span.End()

	reg, err := s.register(ctx)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() == nil {
			s.log.ErrorContext(ctx, "source failed to load", "error", err)
		}
	}
	return reg, err
}

func (s *Source) register(ctx context.Context) (Registration, error) {
	mapc := FindMap(s.el)
	if mapc == nil {
		return Registration{}, ErrMapNotFound
	}
	cfg := s.Config()

	var (
		data any
		eng  engine.Map
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.Data()
		data = d
		return err
	})
	g.Go(func() error {
		e, err := mapc.Loaded().Await(gctx)
		eng = e
		return err
	})
	if err := g.Wait(); err != nil {
		return Registration{}, err
	}

	reg := Registration{ID: s.id, Kind: cfg.Kind}
	if cfg.Kind == "" {
		v, _ := attr.Get(s.el, "type")
		s.log.WarnContext(ctx, "unsupported source type, skipping registration", "type", v)
		reg.Skipped = true
		return reg, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return reg, err
	}

	if _, ok := eng.GetSource(s.id); ok {
		s.log.InfoContext(ctx, "replacing source")
		s.set.sources.notifyRemoved(s.id)
		if err := eng.RemoveSource(s.id); err != nil {
			return reg, fmt.Errorf("replacing source %q: %w", s.id, err)
		}
	} else {
		s.log.DebugContext(ctx, "adding source")
	}

	if err := eng.AddSource(s.id, engine.SourceSpec{Type: cfg.Kind, Data: data}); err != nil {
		return reg, fmt.Errorf("adding source %q: %w", s.id, err)
	}
	s.registered = eng
	return reg, nil
}

// Disconnected drops the source from the table, tells dependent layers and
// unregisters it from the engine. A source id taken over by another element
// stays registered.
func (s *Source) Disconnected() {
	s.mu.Lock()
	id := s.id
	s.mu.Unlock()

	s.set.sources.remove(id, s)

	s.mu.Lock()
	s.endLocked()
	eng := s.registered
	s.registered = nil
	s.mu.Unlock()

	if eng == nil {
		s.log.Debug("source was never registered")
		return
	}
	if _, ok := eng.GetSource(id); !ok {
		return
	}
	if other, ok := s.set.sources.Lookup(id); ok && other != s {
		s.log.Debug("source id taken over by another element")
		return
	}

	s.log.Info("removing source")
	s.set.sources.notifyRemoved(id)
	if err := eng.RemoveSource(id); err != nil {
		s.log.Warn("could not remove source", "error", err)
	}
}
