package dom

import (
	"errors"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/joeblew999/plat-geo-elements/internal/attr"
)

var (
	// ErrWrongDocument is returned when linking elements owned by different documents.
	ErrWrongDocument = errors.New("dom: element belongs to another document")
	// ErrHierarchy is returned when an element would become its own ancestor.
	ErrHierarchy = errors.New("dom: cannot insert an element into its own subtree")
)

// Attr is a single attribute.
type Attr struct {
	Name  string
	Value string
}

// Element is a node in a Document tree. All state is guarded by the owning
// document's lock.
type Element struct {
	doc atomic.Pointer[Document]
	tag string

	attrs     []Attr
	text      string
	parent    *Element
	children  []*Element
	connected bool
	component Component
	props     map[any]any
}

// Tag returns the lowercase tag name.
func (e *Element) Tag() string { return e.tag }

// OwnerDocument returns the document that owns e.
func (e *Element) OwnerDocument() *Document { return e.doc.Load() }

// ID returns the id attribute, or "".
func (e *Element) ID() string {
	id, _ := e.Attribute("id")
	return id
}

// Attribute returns the named attribute.
func (e *Element) Attribute(name string) (string, bool) {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return e.attrLocked(strings.ToLower(name))
}

func (e *Element) attrLocked(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Dataset returns the data-* attribute for the camelCased key.
func (e *Element) Dataset(key string) (string, bool) {
	return e.Attribute("data-" + attr.CamelToKebab(key))
}

// Attributes returns a copy of all attributes in document order.
func (e *Element) Attributes() []Attr {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(e.attrs)
}

// SetAttribute sets an attribute and notifies an observing component.
func (e *Element) SetAttribute(name, value string) {
	e.changeAttribute(strings.ToLower(name), value, true)
}

// RemoveAttribute removes an attribute and notifies an observing component.
func (e *Element) RemoveAttribute(name string) {
	e.changeAttribute(strings.ToLower(name), "", false)
}

func (e *Element) changeAttribute(name, value string, set bool) {
	d := e.OwnerDocument()
	d.mu.Lock()
	old, had := e.attrLocked(name)
	switch {
	case set && had:
		for i := range e.attrs {
			if e.attrs[i].Name == name {
				e.attrs[i].Value = value
			}
		}
	case set:
		e.attrs = append(e.attrs, Attr{Name: name, Value: value})
	case had:
		e.attrs = slices.DeleteFunc(e.attrs, func(a Attr) bool { return a.Name == name })
	default:
		d.mu.Unlock()
		return
	}
	if name == "id" && e.connected {
		d.unindexLocked(old, e)
		if set {
			d.indexLocked(value, e)
		}
	}
	comp := e.component
	d.mu.Unlock()

	obs, ok := comp.(AttributeObserver)
	if !ok || !slices.Contains(obs.ObservedAttributes(), name) {
		return
	}
	obs.AttributeChanged(name, old, value)
}

// TextContent returns the text of e and its descendants.
func (e *Element) TextContent() string {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	var b strings.Builder
	e.textLocked(&b)
	return b.String()
}

func (e *Element) textLocked(b *strings.Builder) {
	b.WriteString(e.text)
	for _, c := range e.children {
		c.textLocked(b)
	}
}

// SetTextContent replaces the element's own text.
func (e *Element) SetTextContent(s string) {
	d := e.OwnerDocument()
	d.mu.Lock()
	e.text = s
	d.mu.Unlock()
}

// Parent returns the parent element, or nil.
func (e *Element) Parent() *Element {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return e.parent
}

// Children returns a copy of the child elements.
func (e *Element) Children() []*Element {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(e.children)
}

// IsConnected reports whether e is part of its document's tree.
func (e *Element) IsConnected() bool {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return e.connected
}

// Closest returns the nearest inclusive ancestor with the given tag.
func (e *Element) Closest(tag string) *Element {
	tag = strings.ToLower(tag)
	return e.ClosestFunc(func(el *Element) bool { return el.tag == tag })
}

// ClosestFunc returns the nearest inclusive ancestor matching fn.
// fn is called without the document lock held.
func (e *Element) ClosestFunc(fn func(*Element) bool) *Element {
	for cur := e; cur != nil; cur = cur.Parent() {
		if fn(cur) {
			return cur
		}
	}
	return nil
}

// Component returns the component e was upgraded to, if any.
func (e *Element) Component() Component {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return e.component
}

// Prop returns a value stored on e with SetProp.
func (e *Element) Prop(key any) any {
	d := e.OwnerDocument()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return e.props[key]
}

// SetProp stores an arbitrary value on e. A nil value deletes the key.
func (e *Element) SetProp(key, value any) {
	d := e.OwnerDocument()
	d.mu.Lock()
	defer d.mu.Unlock()
	if value == nil {
		delete(e.props, key)
		return
	}
	if e.props == nil {
		e.props = make(map[any]any)
	}
	e.props[key] = value
}

// AppendChild inserts child as the last child of e, moving it if it already
// has a parent. Moving an element disconnects and reconnects it.
func (e *Element) AppendChild(child *Element) error {
	d := e.OwnerDocument()
	if child.OwnerDocument() != d {
		return ErrWrongDocument
	}

	d.mu.Lock()
	for cur := e; cur != nil; cur = cur.parent {
		if cur == child {
			d.mu.Unlock()
			return ErrHierarchy
		}
	}

	var gone []*Element
	if child.parent != nil {
		gone = d.detachLocked(child)
	}
	child.parent = e
	e.children = append(e.children, child)

	var added []*Element
	if e.connected {
		added = d.connectLocked(child)
	}
	d.mu.Unlock()

	d.disconnected(gone)
	d.connected(added)
	return nil
}

// Remove detaches e from its parent.
func (e *Element) Remove() {
	d := e.OwnerDocument()
	d.mu.Lock()
	if e.parent == nil {
		d.mu.Unlock()
		return
	}
	gone := d.detachLocked(e)
	d.mu.Unlock()

	d.disconnected(gone)
}

func (e *Element) walkLocked(fn func(*Element)) {
	fn(e)
	for _, c := range e.children {
		c.walkLocked(fn)
	}
}
