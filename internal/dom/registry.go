package dom

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrInvalidTagName is returned when defining a tag without a hyphen.
var ErrInvalidTagName = errors.New("dom: custom element names must contain a hyphen")

// Component is the behaviour attached to an upgraded element.
type Component interface {
	// Connected is called after the element becomes part of a document tree.
	Connected()
	// Disconnected is called after the element leaves the document tree.
	Disconnected()
}

// AttributeObserver is implemented by components that react to attribute changes.
type AttributeObserver interface {
	ObservedAttributes() []string
	AttributeChanged(name, oldValue, newValue string)
}

// Adopter is implemented by components that react to moving between documents.
type Adopter interface {
	Adopted()
}

// Constructor builds the component for an element the first time it connects.
type Constructor func(el *Element) Component

// Registry maps tag names to component constructors.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Constructor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Constructor)}
}

// Define associates tag with ctor. Defining an already defined tag is a no-op,
// the first constructor stays in place.
func (r *Registry) Define(tag string, ctor Constructor) error {
	tag = strings.ToLower(tag)
	if !strings.Contains(tag, "-") {
		return fmt.Errorf("%w: %q", ErrInvalidTagName, tag)
	}
	if ctor == nil {
		return fmt.Errorf("dom: nil constructor for %q", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[tag]; exists {
		return nil
	}
	r.defs[tag] = ctor
	return nil
}

// Lookup returns the constructor registered for tag.
func (r *Registry) Lookup(tag string) (Constructor, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctor, ok := r.defs[strings.ToLower(tag)]
	return ctor, ok
}

// Tags returns the defined tag names, sorted.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.defs))
	for t := range r.defs {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}
