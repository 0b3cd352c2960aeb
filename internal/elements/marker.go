package elements

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

// Marker places a point marker on the engine of its enclosing map.
type Marker struct {
	base

	handle engine.Marker
}

func newMarker(set *Set, el *dom.Element) *Marker {
	return &Marker{base: newBase(set, el)}
}

// ObservedAttributes lists the attributes that move the marker.
func (m *Marker) ObservedAttributes() []string {
	return []string{"long", "data-long", "lat", "data-lat"}
}

// Position returns the declared position if both coordinates are numeric.
func (m *Marker) Position() (engine.LngLat, bool) {
	cfg, _ := resolve(m.el, markerOptions)
	if cfg.Position == nil {
		return engine.LngLat{}, false
	}
	return *cfg.Position, true
}

// Handle returns the engine marker of the current attach cycle, or nil.
func (m *Marker) Handle() engine.Marker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle
}

func (m *Marker) Connected() {
	m.mu.Lock()
	ctx, done := m.beginLocked()
	if m.handle != nil {
		m.handle.Remove()
	}
	m.handle = m.set.factory.NewMarker()
	m.updateLocked()
	handle := m.handle
	m.mu.Unlock()

	go func() {
		done.Settle(struct{}{}, m.attach(ctx, handle))
	}()
}

func (m *Marker) attach(ctx context.Context, handle engine.Marker) error {
	ctx, span := tracer.Start(ctx, "elements.marker.attach",
		trace.WithAttributes(attribute.String("element.id", m.el.ID())))
	defer span.End()

	mapc := FindMap(m.el)
	if mapc == nil {
		m.log.ErrorContext(ctx, "could not resolve map", "error", ErrMapNotFound)
		return nil
	}
	eng, err := mapc.Loaded().Await(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := handle.AddTo(eng); err != nil {
		span.RecordError(err)
		return fmt.Errorf("adding marker: %w", err)
	}
	return nil
}

func (m *Marker) AttributeChanged(name, oldValue, newValue string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return
	}
	m.updateLocked()
}

func (m *Marker) updateLocked() {
	p, ok := m.Position()
	if !ok {
		m.log.Warn("element does not have coordinates specified")
		return
	}
	m.handle.SetLngLat(p)
}

func (m *Marker) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked()
	if m.handle != nil {
		m.handle.Remove()
		m.handle = nil
	}
}
