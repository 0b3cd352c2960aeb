package elements

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
	"github.com/joeblew999/plat-geo-elements/internal/promise"
)

// State is the lifecycle state of a map element.
type State int

const (
	StateUnattached State = iota
	StateContainerResolving
	StateContainerMissing
	StateEngineCreated
	StateEngineLoaded
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateContainerResolving:
		return "container-resolving"
	case StateContainerMissing:
		return "container-missing"
	case StateEngineCreated:
		return "engine-created"
	case StateEngineLoaded:
		return "engine-loaded"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// engineKey stores the engine on its container element, so every map element
// resolving to the same container shares one engine.
type engineKey struct{}

// Map owns the engine instance rendering into its container and coordinates
// the elements nested inside it.
type Map struct {
	base

	container *dom.Element
	state     State
	waiters   []*promise.Future[engine.Map]
	hooked    engine.Map
}

func newMap(set *Set, el *dom.Element) *Map {
	return &Map{base: newBase(set, el)}
}

// Connected resolves the container, creates or reuses the engine and
// re-announces readiness if the engine already loaded.
func (m *Map) Connected() {
	m.mu.Lock()
	ctx, done := m.beginLocked()
	m.mu.Unlock()

	_, span := tracer.Start(ctx, "elements.map.load",
		trace.WithAttributes(attribute.String("element.id", m.el.ID())))
	defer span.End()

	if err := m.load(); err != nil {
		span.RecordError(err)
		m.log.Error("map failed to load", "error", err)
		done.Reject(err)
		return
	}

	go func() {
		_, err := m.Loaded().Await(ctx)
		done.Settle(struct{}{}, err)
	}()
}

// Adopted re-runs the load sequence after the element moved documents.
func (m *Map) Adopted() {
	if err := m.load(); err != nil {
		m.log.Warn("map failed to load after adoption", "error", err)
	}
}

// Disconnected cancels the current attach cycle. The engine stays on its
// container and is reused if the element comes back.
func (m *Map) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endLocked()
}

func (m *Map) load() error {
	m.mu.Lock()
	eng, err := m.ensureEngineLocked()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	if eng.Loaded() {
		m.dispatchLoaded(eng)
	}
	return nil
}

// Config resolves the element's declarative configuration.
func (m *Map) Config() MapConfig {
	cfg, _ := resolve(m.el, mapOptions)
	return cfg
}

// Center returns the declared center, if both coordinates are numeric.
func (m *Map) Center() (engine.LngLat, bool) {
	c := m.Config().Center
	if c == nil {
		return engine.LngLat{}, false
	}
	return *c, true
}

// Zoom returns the declared zoom or DefaultZoom.
func (m *Map) Zoom() float64 { return m.Config().Zoom }

// Style returns the declared style URL or DefaultStyle.
func (m *Map) Style() string { return m.Config().Style }

// State returns the current lifecycle state.
func (m *Map) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// ResolveContainer returns the element itself, or the node referenced by
// `map-id`.
func (m *Map) ResolveContainer() (*dom.Element, error) {
	id := m.Config().MapID
	if id == "" {
		m.log.Debug("`map-id` not specified, using the element itself")
		return m.el, nil
	}
	c := m.el.OwnerDocument().GetElementByID(id)
	if c == nil {
		return nil, &ContainerNotFoundError{ID: id}
	}
	return c, nil
}

// Container returns the resolved container while it is still in the document.
func (m *Map) Container() *dom.Element {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containerLocked()
}

func (m *Map) containerLocked() *dom.Element {
	if m.container == nil {
		return nil
	}
	if !m.container.IsConnected() {
		m.container = nil
		return nil
	}
	return m.container
}

// Engine returns the engine of the current container, or nil.
func (m *Map) Engine() engine.Map {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engineLocked()
}

func (m *Map) engineLocked() engine.Map {
	c := m.containerLocked()
	if c == nil {
		return nil
	}
	eng, _ := c.Prop(engineKey{}).(engine.Map)
	return eng
}

// EnsureEngine resolves the container and returns its engine, creating one
// if the container has none yet.
func (m *Map) EnsureEngine() (engine.Map, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureEngineLocked()
}

func (m *Map) ensureEngineLocked() (engine.Map, error) {
	m.state = StateContainerResolving
	c, err := m.ResolveContainer()
	if err != nil {
		m.state = StateContainerMissing
		return nil, err
	}
	m.container = c

	eng, err := m.engineFor(c)
	if err != nil {
		m.state = StateUnattached
		return nil, err
	}

	if m.hooked != eng {
		m.hooked = eng
		eng.On(engine.EventLoad, func() { m.dispatchLoaded(eng) })
	}
	m.state = StateEngineCreated
	if eng.Loaded() {
		m.state = StateEngineLoaded
	}
	return eng, nil
}

func (m *Map) engineFor(c *dom.Element) (engine.Map, error) {
	m.set.engineMu.Lock()
	defer m.set.engineMu.Unlock()

	if eng, ok := c.Prop(engineKey{}).(engine.Map); ok {
		return eng, nil
	}

	cfg := m.Config()
	eng, err := m.set.factory.NewMap(engine.Options{
		Container: c.ID(),
		Style:     cfg.Style,
		Center:    cfg.Center,
		Zoom:      cfg.Zoom,
	})
	if err != nil {
		return nil, fmt.Errorf("creating map: %w", err)
	}
	c.SetProp(engineKey{}, eng)
	return eng, nil
}

// Loaded returns a future that resolves with the engine once it has loaded.
// A container that left the document is re-resolved first.
func (m *Map) Loaded() *promise.Future[engine.Map] {
	m.mu.Lock()
	defer m.mu.Unlock()

	eng := m.engineLocked()
	if eng == nil && m.el.IsConnected() {
		e, err := m.ensureEngineLocked()
		if err != nil {
			m.log.Debug("container not available yet", "error", err)
		}
		eng = e
	}
	if eng != nil && eng.Loaded() {
		m.state = StateEngineLoaded
		return promise.Resolved(eng)
	}

	f := promise.New[engine.Map]()
	m.waiters = append(m.waiters, f)
	return f
}

// dispatchLoaded resolves pending Loaded futures with eng if eng is still the
// current engine.
func (m *Map) dispatchLoaded(eng engine.Map) {
	m.mu.Lock()
	cur := m.engineLocked()
	if cur == nil {
		m.mu.Unlock()
		m.log.Error("readiness fired without an engine", "error", ErrInconsistentState)
		return
	}
	if cur != eng {
		m.mu.Unlock()
		return
	}
	m.state = StateEngineLoaded
	waiters := m.waiters
	m.waiters = nil
	m.mu.Unlock()

	for _, w := range waiters {
		w.Resolve(eng)
	}
}
