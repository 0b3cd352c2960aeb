// Package dom is a small document model for declarative map markup.
//
// It keeps the parts of a browser DOM the map elements rely on: a tree of
// elements with attributes, a dataset view, text bodies, an id table, and a
// registry of custom element constructors with connected/disconnected
// callbacks. Callbacks run on the goroutine that mutated the tree, after the
// document lock is released, in tree order.
package dom

import (
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
)

// Document owns a tree of elements rooted at Root.
type Document struct {
	mu       sync.RWMutex
	registry *Registry
	root     *Element
	ids      map[string]*Element
}

// New creates an empty document whose custom elements come from reg.
func New(reg *Registry) *Document {
	if reg == nil {
		reg = NewRegistry()
	}
	d := &Document{
		registry: reg,
		ids:      make(map[string]*Element),
	}
	d.root = d.newElement("body")
	d.root.connected = true
	return d
}

// Parse reads HTML markup and appends the body's elements to a new document,
// connecting (and upgrading) them in tree order.
func Parse(r io.Reader, reg *Registry) (*Document, error) {
	d := New(reg)
	els, err := d.ParseFragment(r)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		if err := d.root.AppendChild(el); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ParseFragment reads HTML markup into detached elements owned by d.
func (d *Document) ParseFragment(r io.Reader) ([]*Element, error) {
	node, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	body := findBody(node)
	if body == nil {
		return nil, nil
	}

	var out []*Element
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			out = append(out, d.convert(c))
		}
	}
	return out, nil
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

func (d *Document) convert(n *html.Node) *Element {
	el := d.newElement(n.Data)
	for _, a := range n.Attr {
		el.attrs = append(el.attrs, Attr{Name: a.Key, Value: a.Val})
	}
	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			text.WriteString(c.Data)
		case html.ElementNode:
			child := d.convert(c)
			child.parent = el
			el.children = append(el.children, child)
		}
	}
	el.text = text.String()
	return el
}

func (d *Document) newElement(tag string) *Element {
	el := &Element{tag: strings.ToLower(tag)}
	el.doc.Store(d)
	return el
}

// Registry returns the document's element registry.
func (d *Document) Registry() *Registry { return d.registry }

// Root returns the always-connected root element.
func (d *Document) Root() *Element { return d.root }

// CreateElement returns a detached element owned by d.
func (d *Document) CreateElement(tag string) *Element {
	return d.newElement(tag)
}

// GetElementByID returns the connected element with the given id, or nil.
func (d *Document) GetElementByID(id string) *Element {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ids[id]
}

// Contains reports whether el is connected to d.
func (d *Document) Contains(el *Element) bool {
	if el == nil || el.OwnerDocument() != d {
		return false
	}
	return el.IsConnected()
}

// Walk visits connected elements in tree order, skipping the root.
func (d *Document) Walk(fn func(*Element)) {
	d.mu.RLock()
	var all []*Element
	for _, c := range d.root.children {
		c.walkLocked(func(el *Element) { all = append(all, el) })
	}
	d.mu.RUnlock()

	for _, el := range all {
		fn(el)
	}
}

// QueryAll returns the connected elements with the given tag in tree order.
func (d *Document) QueryAll(tag string) []*Element {
	tag = strings.ToLower(tag)
	var out []*Element
	d.Walk(func(el *Element) {
		if el.tag == tag {
			out = append(out, el)
		}
	})
	return out
}

// Adopt moves el (and its subtree) from another document into d. The element
// is detached; components implementing Adopter are notified.
func (d *Document) Adopt(el *Element) {
	old := el.OwnerDocument()
	if old == d {
		return
	}
	el.Remove()

	var comps []Component
	old.mu.Lock()
	el.walkLocked(func(n *Element) {
		n.doc.Store(d)
		if n.component != nil {
			comps = append(comps, n.component)
		}
	})
	old.mu.Unlock()

	for _, c := range comps {
		if a, ok := c.(Adopter); ok {
			a.Adopted()
		}
	}
}

func (d *Document) indexLocked(id string, el *Element) {
	if id == "" {
		return
	}
	if _, taken := d.ids[id]; !taken {
		d.ids[id] = el
	}
}

func (d *Document) unindexLocked(id string, el *Element) {
	if id == "" || d.ids[id] != el {
		return
	}
	delete(d.ids, id)

	// Another connected element may carry the same id.
	var next *Element
	d.root.walkLocked(func(n *Element) {
		if next != nil || n == el || !n.connected {
			return
		}
		if v, ok := n.attrLocked("id"); ok && v == id {
			next = n
		}
	})
	if next != nil {
		d.ids[id] = next
	}
}

// connectLocked marks the subtree connected and returns it in tree order.
func (d *Document) connectLocked(el *Element) []*Element {
	var out []*Element
	el.walkLocked(func(n *Element) {
		n.connected = true
		if id, ok := n.attrLocked("id"); ok {
			d.indexLocked(id, n)
		}
		out = append(out, n)
	})
	return out
}

// detachLocked unlinks el from its parent. It returns the elements that were
// connected before, in tree order.
func (d *Document) detachLocked(el *Element) []*Element {
	if p := el.parent; p != nil {
		for i, c := range p.children {
			if c == el {
				p.children = append(p.children[:i:i], p.children[i+1:]...)
				break
			}
		}
		el.parent = nil
	}
	if !el.connected {
		return nil
	}

	var out []*Element
	el.walkLocked(func(n *Element) {
		n.connected = false
		out = append(out, n)
	})
	for _, n := range out {
		if id, ok := n.attrLocked("id"); ok {
			d.unindexLocked(id, n)
		}
	}
	return out
}

// connected upgrades elements as needed and runs Connected callbacks.
func (d *Document) connected(els []*Element) {
	for _, el := range els {
		comp := d.upgrade(el)
		if comp == nil || !el.IsConnected() {
			continue
		}
		comp.Connected()
	}
}

func (d *Document) disconnected(els []*Element) {
	for _, el := range els {
		comp := el.Component()
		if comp == nil || el.IsConnected() {
			continue
		}
		comp.Disconnected()
	}
}

func (d *Document) upgrade(el *Element) Component {
	if comp := el.Component(); comp != nil {
		return comp
	}
	ctor, ok := d.registry.Lookup(el.tag)
	if !ok {
		return nil
	}
	comp := ctor(el)

	d.mu.Lock()
	defer d.mu.Unlock()
	if el.component == nil {
		el.component = comp
	}
	return el.component
}
