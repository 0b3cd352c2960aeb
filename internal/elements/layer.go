package elements

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
	"github.com/joeblew999/plat-geo-elements/internal/promise"
)

// Layer draws its source on the engine of its enclosing map.
type Layer struct {
	base

	mapc     *Map
	eng      engine.Map
	layerID  string
	sourceID string
	release  func()
}

func newLayer(set *Set, el *dom.Element) *Layer {
	return &Layer{base: newBase(set, el)}
}

// placeholderPaint is applied to every layer; markup styling is not passed
// through.
func placeholderPaint() map[string]any {
	return map[string]any{
		"line-color": "#FFF",
		"line-width": 2,
	}
}

// Config resolves the element's declarative configuration.
func (l *Layer) Config() (LayerConfig, error) {
	return resolve(l.el, layerOptions)
}

// Kind validates the declared layer type.
func (l *Layer) Kind() (string, error) {
	cfg, _ := resolve(l.el, layerOptions)
	if !slices.Contains(LayerTypes, cfg.Type) {
		return "", &InvalidLayerTypeError{Value: cfg.Type}
	}
	return cfg.Type, nil
}

// Added reports whether the layer is currently registered with an engine.
func (l *Layer) Added() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eng != nil
}

func (l *Layer) Connected() {
	l.mu.Lock()
	ctx, done := l.beginLocked()
	l.mu.Unlock()

	go func() {
		done.Settle(struct{}{}, l.attach(ctx))
	}()
}

func (l *Layer) attach(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "elements.layer.attach",
		trace.WithAttributes(attribute.String("element.id", l.el.ID())))
	defer span.End()

	err := l.bind(ctx)
	if err != nil {
		l.mu.Lock()
		l.releaseLocked()
		l.mu.Unlock()

		span.RecordError(err)
		if ctx.Err() == nil {
			l.log.ErrorContext(ctx, "layer failed to attach", "error", err)
		}
	}
	return err
}

func (l *Layer) bind(ctx context.Context) error {
	mapc := FindMap(l.el)
	if mapc == nil {
		return ErrMapNotFound
	}
	eng, err := mapc.Loaded().Await(ctx)
	if err != nil {
		return err
	}

	cfg, err := l.Config()
	if err != nil {
		return err
	}
	reg, ready, err := l.awaitSource(ctx, cfg.Source, true, nil)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mapc = mapc
	l.sourceID = cfg.Source
	if l.release == nil {
		l.release = l.set.sources.OnRemoved(cfg.Source, l.sourceRemoved)
	}
	if reg.Skipped {
		l.log.DebugContext(ctx, "source registration was skipped, waiting for a new one", "source", cfg.Source)
		go l.rebind(l.ctx, cfg.Source, ready)
		return nil
	}
	if l.eng != nil {
		return nil
	}
	return l.addLocked(eng, cfg)
}

// awaitSource waits for the source registered under id. With strict set, an
// id that is neither registered nor present in the document fails at once;
// otherwise it waits for a source to appear. A source whose readiness is skip
// counts as absent until it reconnects or another source takes the id.
func (l *Layer) awaitSource(ctx context.Context, id string, strict bool, skip *promise.Future[Registration]) (Registration, *promise.Future[Registration], error) {
	for {
		changed := l.set.sources.changes()
		src, ok := l.set.sources.Lookup(id)
		if !ok && strict && !l.declared(id) {
			return Registration{}, nil, &SourceNotFoundError{ID: id}
		}
		if !ok || src.Ready() == skip {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return Registration{}, nil, ctx.Err()
			}
		}

		ready := src.Ready()
		reg, err := ready.Await(ctx)
		if errors.Is(err, errSourceDetached) {
			strict = false
			continue
		}
		if err != nil {
			return Registration{}, nil, fmt.Errorf("source %q: %w", id, err)
		}
		return reg, ready, nil
	}
}

// declared reports whether the document holds a source element with id that
// has not connected yet.
func (l *Layer) declared(id string) bool {
	doc := l.el.OwnerDocument()
	if doc == nil {
		return false
	}
	el := doc.GetElementByID(id)
	return el != nil && el.Tag() == l.set.tags.Source
}

func (l *Layer) addLocked(eng engine.Map, cfg LayerConfig) error {
	kind, err := l.Kind()
	if err != nil {
		return err
	}
	id := l.el.ID()
	err = eng.AddLayer(engine.LayerSpec{
		ID:     id,
		Type:   kind,
		Source: cfg.Source,
		Paint:  placeholderPaint(),
	})
	if err != nil {
		return fmt.Errorf("adding layer %q: %w", id, err)
	}
	l.eng = eng
	l.layerID = id
	return nil
}

// sourceRemoved removes the layer so the engine can drop the source, and
// re-adds it once a source registers under the same id.
func (l *Layer) sourceRemoved(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil || l.ctx.Err() != nil || l.eng == nil {
		return
	}

	if err := l.eng.RemoveLayer(l.layerID); err != nil {
		l.log.Warn("could not remove layer", "error", err)
	}
	l.eng = nil
	go l.rebind(l.ctx, id, nil)
}

// rebind waits for a registration under sourceID other than skip and adds
// the layer to it. Skipped registrations are waited past as well.
func (l *Layer) rebind(ctx context.Context, sourceID string, skip *promise.Future[Registration]) {
	var reg Registration
	for {
		r, ready, err := l.awaitSource(ctx, sourceID, false, skip)
		if err != nil {
			if ctx.Err() == nil {
				l.log.Warn("could not re-bind layer", "source", sourceID, "error", err)
			}
			return
		}
		if !r.Skipped {
			reg = r
			break
		}
		skip = ready
	}
	eng, err := l.mapc.Loaded().Await(ctx)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if ctx.Err() != nil || l.eng != nil {
		return
	}
	cfg, err := l.Config()
	if err != nil {
		l.log.Error("could not re-bind layer", "error", err)
		return
	}
	l.log.Info("re-adding layer", "source", reg.ID)
	if err := l.addLocked(eng, cfg); err != nil {
		l.log.Error("could not re-bind layer", "error", err)
	}
}

func (l *Layer) releaseLocked() {
	if l.release != nil {
		l.release()
		l.release = nil
	}
}

// Disconnected releases the source subscription and removes the layer from
// the engine, if it was added.
func (l *Layer) Disconnected() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.endLocked()
	l.releaseLocked()

	if l.eng == nil {
		if l.mapc == nil {
			l.log.Debug("no map container, nothing to remove")
		}
		return
	}
	if err := l.eng.RemoveLayer(l.layerID); err != nil {
		l.log.Warn("could not remove layer", "error", err)
	}
	l.eng = nil
}
