package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/joeblew999/plat-geo-elements/internal/dom"
	"github.com/joeblew999/plat-geo-elements/internal/elements"
	"github.com/joeblew999/plat-geo-elements/internal/engine"
	"github.com/joeblew999/plat-geo-elements/internal/engine/stylemap"
	"github.com/joeblew999/plat-geo-elements/internal/promise"
)

var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrDocumentNotOpen  = errors.New("document is not open")
	ErrElementNotFound  = errors.New("element not found")
	ErrNotAMap          = errors.New("element is not a map")
	ErrNoEngine         = errors.New("map has no engine")
	ErrNotDetached      = errors.New("element is not detached")
)

// Journal records engine mutations.
type Journal interface {
	Record(ctx context.Context, document string, ev engine.Event) error
}

// Options configures a DocumentService.
type Options struct {
	DataDir string
	Bus     *EventBus
	// Journal is optional.
	Journal Journal
	Logger  *slog.Logger
	// Loader prepares each map's base style; nil loads immediately.
	Loader stylemap.Loader
}

// DocumentService opens map documents from disk and keeps their elements
// attached to in-memory style engines.
type DocumentService struct {
	dir     string
	bus     *EventBus
	journal Journal
	logger  *slog.Logger
	loader  stylemap.Loader

	mu   sync.Mutex
	docs map[string]*openDocument

	// opening is called before a document is parsed. Tests use it to hold
	// an Open in flight.
	opening func(name string)
}

// NewDocumentService creates a document service rooted at
// <data-dir>/documents.
func NewDocumentService(opts Options) *DocumentService {
	if opts.Bus == nil {
		opts.Bus = NewEventBus()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &DocumentService{
		dir:     filepath.Join(opts.DataDir, "documents"),
		bus:     opts.Bus,
		journal: opts.Journal,
		logger:  opts.Logger,
		loader:  opts.Loader,
		docs:    make(map[string]*openDocument),
	}
}

// Bus returns the event bus mutations are published on.
func (s *DocumentService) Bus() *EventBus { return s.bus }

type detachedElement struct {
	el     *dom.Element
	parent *dom.Element
}

type openDocument struct {
	name     string
	openedAt time.Time
	// opened settles once parsing is over; doc is set before it resolves.
	opened *promise.Future[struct{}]
	doc    *dom.Document
	set    *elements.Set
	events chan engine.Event
	done   chan struct{}

	mu       sync.Mutex
	detached map[string]detachedElement
}

// Open parses and attaches the named document, waiting until every element
// has finished attaching or ctx is done. Opening an open document returns its
// current state, after waiting for a concurrent Open of it to finish
// parsing. Elements that fail to attach are reported in the result.
func (s *DocumentService) Open(ctx context.Context, name string) (DocumentInfo, error) {
	p, err := s.path(name)
	if err != nil {
		return DocumentInfo{}, err
	}

	s.mu.Lock()
	if existing, ok := s.docs[name]; ok {
		s.mu.Unlock()
		if _, err := existing.opened.Await(ctx); err != nil {
			return DocumentInfo{}, err
		}
		return existing.info(), nil
	}
	d := &openDocument{
		name:     name,
		openedAt: time.Now().UTC(),
		opened:   promise.New[struct{}](),
		events:   make(chan engine.Event, 256),
		done:     make(chan struct{}),
		detached: make(map[string]detachedElement),
	}
	s.docs[name] = d
	s.mu.Unlock()

	doc, err := s.parse(d, p)
	if err != nil {
		s.mu.Lock()
		if s.docs[name] == d {
			delete(s.docs, name)
		}
		s.mu.Unlock()
		d.opened.Reject(err)
		return DocumentInfo{}, err
	}

	// A Close while parsing forgets d without tearing it down.
	s.mu.Lock()
	current := s.docs[name] == d
	if current {
		d.doc = doc
	}
	s.mu.Unlock()
	if !current {
		for _, el := range doc.Root().Children() {
			el.Remove()
		}
		close(d.done)
		err := fmt.Errorf("%w: %s closed while opening", ErrDocumentNotOpen, name)
		d.opened.Reject(err)
		return DocumentInfo{}, err
	}
	d.opened.Resolve(struct{}{})

	logger := s.logger.With("document", name)
	s.bus.Publish(Event{Document: name, Resource: "documents", Action: "opened", ID: name})
	logger.Info("document opened")

	if err := elements.Settle(ctx, doc); err != nil {
		if ctx.Err() != nil {
			return d.info(), err
		}
		logger.Warn("document has elements that failed to attach", "error", err)
	}
	return d.info(), nil
}

// parse reads the document at path into a tree whose elements attach to a
// fresh stylemap factory. The event pump runs until d.done is closed.
func (s *DocumentService) parse(d *openDocument, path string) (*dom.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, d.name)
		}
		return nil, err
	}
	defer f.Close()

	logger := s.logger.With("document", d.name)
	factory := stylemap.NewFactory(stylemap.Config{
		Loader:   s.loader,
		Observer: s.observer(d),
		Logger:   logger,
	})
	reg := dom.NewRegistry()
	set, err := elements.Define(reg, elements.Options{Factory: factory, Logger: logger})
	if err != nil {
		return nil, err
	}
	d.set = set

	if s.opening != nil {
		s.opening(d.name)
	}
	go s.pump(d)
	doc, err := dom.Parse(f, reg)
	if err != nil {
		close(d.done)
		return nil, fmt.Errorf("parsing %s: %w", d.name, err)
	}
	return doc, nil
}

// Get returns the state of an open document.
func (s *DocumentService) Get(name string) (DocumentInfo, error) {
	d, err := s.open(name)
	if err != nil {
		return DocumentInfo{}, err
	}
	return d.info(), nil
}

// Names returns the names of the open documents, sorted.
func (s *DocumentService) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.docs))
	for n := range s.docs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Style returns the style document of the engine driven by map element mapID.
func (s *DocumentService) Style(name, mapID string) (stylemap.Style, error) {
	d, err := s.open(name)
	if err != nil {
		return stylemap.Style{}, err
	}
	el, err := d.element(mapID)
	if err != nil {
		return stylemap.Style{}, err
	}
	m, ok := el.Component().(*elements.Map)
	if !ok {
		return stylemap.Style{}, fmt.Errorf("%w: %s", ErrNotAMap, mapID)
	}
	eng, ok := m.Engine().(*stylemap.Map)
	if !ok {
		return stylemap.Style{}, fmt.Errorf("%w: %s", ErrNoEngine, mapID)
	}
	return eng.Style(), nil
}

// SetAttribute sets an attribute on an element of an open document.
func (s *DocumentService) SetAttribute(ctx context.Context, name, id string, change AttributeChange) (ElementInfo, error) {
	d, err := s.open(name)
	if err != nil {
		return ElementInfo{}, err
	}
	el, err := d.element(id)
	if err != nil {
		return ElementInfo{}, err
	}

	el.SetAttribute(change.Name, change.Value)
	s.bus.Publish(Event{Document: name, Resource: "elements", Action: "updated", ID: id})
	s.logger.DebugContext(ctx, "attribute set", "document", name, "id", id, "attribute", change.Name)
	return d.elementInfo(el), nil
}

// Detach removes an element from its document. It can be put back with
// Restore.
func (s *DocumentService) Detach(ctx context.Context, name, id string) error {
	d, err := s.open(name)
	if err != nil {
		return err
	}
	el, err := d.element(id)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.detached[id] = detachedElement{el: el, parent: el.Parent()}
	d.mu.Unlock()
	el.Remove()

	s.bus.Publish(Event{Document: name, Resource: "elements", Action: "detached", ID: id})
	s.logger.DebugContext(ctx, "element detached", "document", name, "id", id)
	return nil
}

// Restore re-appends a detached element to its previous parent, or to the
// document root if that parent is gone, and waits for it to attach.
func (s *DocumentService) Restore(ctx context.Context, name, id string) (ElementInfo, error) {
	d, err := s.open(name)
	if err != nil {
		return ElementInfo{}, err
	}

	d.mu.Lock()
	det, ok := d.detached[id]
	delete(d.detached, id)
	d.mu.Unlock()
	if !ok {
		return ElementInfo{}, fmt.Errorf("%w: %s", ErrNotDetached, id)
	}

	parent := det.parent
	if parent == nil || !parent.IsConnected() {
		parent = d.doc.Root()
	}
	if err := parent.AppendChild(det.el); err != nil {
		return ElementInfo{}, err
	}
	s.bus.Publish(Event{Document: name, Resource: "elements", Action: "restored", ID: id})

	if a, ok := det.el.Component().(elements.Attacher); ok {
		if _, err := a.Attached().Await(ctx); err != nil && ctx.Err() != nil {
			return d.elementInfo(det.el), err
		}
	}
	return d.elementInfo(det.el), nil
}

// Close detaches every element of a document and forgets it.
func (s *DocumentService) Close(name string) error {
	s.mu.Lock()
	d, ok := s.docs[name]
	delete(s.docs, name)
	var doc *dom.Document
	if ok {
		doc = d.doc
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentNotOpen, name)
	}

	// Without a doc, the Open still parsing it tears it down.
	if doc != nil {
		for _, el := range doc.Root().Children() {
			el.Remove()
		}
		close(d.done)
	}

	s.bus.Publish(Event{Document: name, Resource: "documents", Action: "closed", ID: name})
	s.logger.Info("document closed", "document", name)
	return nil
}

// CloseAll closes every open document.
func (s *DocumentService) CloseAll() {
	for _, name := range s.Names() {
		if err := s.Close(name); err != nil {
			s.logger.Warn("closing document", "document", name, "error", err)
		}
	}
}

func (s *DocumentService) lookup(name string) (*openDocument, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[name]
	return d, ok && d.doc != nil
}

func (s *DocumentService) open(name string) (*openDocument, error) {
	d, ok := s.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotOpen, name)
	}
	return d, nil
}

// observer queues engine mutations for pump. It runs under the engine lock
// and must not block.
func (s *DocumentService) observer(d *openDocument) engine.Observer {
	return func(ev engine.Event) {
		select {
		case d.events <- ev:
		case <-d.done:
		default:
			s.logger.Warn("dropping engine event", "document", d.name, "kind", ev.Kind, "id", ev.ID)
		}
	}
}

// pump publishes queued engine mutations and writes them to the journal.
func (s *DocumentService) pump(d *openDocument) {
	handle := func(ev engine.Event) {
		s.bus.Publish(engineEvent(d.name, ev))
		if s.journal == nil {
			return
		}
		if err := s.journal.Record(context.Background(), d.name, ev); err != nil {
			s.logger.Warn("journal write failed", "document", d.name, "error", err)
		}
	}

	for {
		select {
		case ev := <-d.events:
			handle(ev)
		case <-d.done:
			for {
				select {
				case ev := <-d.events:
					handle(ev)
				default:
					return
				}
			}
		}
	}
}

func (d *openDocument) element(id string) (*dom.Element, error) {
	el := d.doc.GetElementByID(id)
	if el == nil {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	return el, nil
}

func (d *openDocument) info() DocumentInfo {
	info := DocumentInfo{
		Name:     d.name,
		OpenedAt: d.openedAt,
		Maps:     []MapInfo{},
		Elements: []ElementInfo{},
	}
	if d.doc == nil {
		return info
	}

	d.doc.Walk(func(el *dom.Element) {
		if _, ok := el.Component().(elements.Attacher); !ok {
			return
		}
		info.Elements = append(info.Elements, d.elementInfo(el))
		if m, ok := el.Component().(*elements.Map); ok {
			info.Maps = append(info.Maps, mapInfo(el.ID(), m))
		}
	})

	d.mu.Lock()
	for id := range d.detached {
		info.Detached = append(info.Detached, id)
	}
	d.mu.Unlock()
	sort.Strings(info.Detached)
	return info
}

func (d *openDocument) elementInfo(el *dom.Element) ElementInfo {
	info := ElementInfo{ID: el.ID(), Tag: el.Tag(), Status: StatusPending}
	if p := el.Parent(); p != nil && p != d.doc.Root() {
		info.Parent = p.ID()
	}
	if !el.IsConnected() {
		info.Status = StatusDetached
		return info
	}

	a, ok := el.Component().(elements.Attacher)
	if !ok {
		return info
	}
	if _, err, done := a.Attached().Result(); done {
		info.Status = StatusAttached
		if err != nil {
			info.Status = StatusFailed
			info.Error = err.Error()
		}
	}
	return info
}

func mapInfo(id string, m *elements.Map) MapInfo {
	info := MapInfo{
		ID:      id,
		State:   m.State().String(),
		Style:   m.Style(),
		Zoom:    m.Zoom(),
		Sources: []string{},
		Layers:  []string{},
	}
	if c := m.Container(); c != nil {
		info.Container = c.ID()
	}

	eng, ok := m.Engine().(*stylemap.Map)
	if !ok {
		return info
	}
	info.Engine = eng.ID()
	st := eng.Style()
	for sid := range st.Sources {
		info.Sources = append(info.Sources, sid)
	}
	sort.Strings(info.Sources)
	for _, l := range st.Layers {
		info.Layers = append(info.Layers, l.ID)
	}
	info.Markers = len(st.Metadata.Markers)
	return info
}
