package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-geo-elements/internal/engine"
)

const amsterdam = `<!doctype html>
<html><body>
<ml-map id="map" center-long="4.9" center-lat="52.37" zoom="12">
	<ml-source id="canals" type="geojson">{"type":"Feature","geometry":{"type":"LineString","coordinates":[[4.88,52.36],[4.9,52.38]]},"properties":{}}</ml-source>
	<ml-layer id="canal-lines" type="line" source="canals"></ml-layer>
	<ml-marker id="dam" long="4.893" lat="52.373"></ml-marker>
</ml-map>
</body></html>`

type memJournal struct {
	mu      sync.Mutex
	entries []engine.Event
}

func (j *memJournal) Record(ctx context.Context, document string, ev engine.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, ev)
	return nil
}

func (j *memJournal) kinds() []engine.EventKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []engine.EventKind
	for _, ev := range j.entries {
		out = append(out, ev.Kind)
	}
	return out
}

func newTestService(t *testing.T, docs map[string]string) (*DocumentService, *memJournal) {
	t.Helper()
	dir := t.TempDir()
	docDir := filepath.Join(dir, "documents")
	require.NoError(t, os.MkdirAll(docDir, 0755))
	for name, body := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(docDir, name+".html"), []byte(body), 0644))
	}

	j := &memJournal{}
	svc := NewDocumentService(Options{
		DataDir: dir,
		Journal: j,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(svc.CloseAll)
	return svc, j
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestListDocuments(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam, "empty": ""})
	require.NoError(t, os.WriteFile(filepath.Join(svc.DocumentsDir(), "notes.txt"), []byte("x"), 0644))

	files, err := svc.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "amsterdam", files[0].Name)
	assert.False(t, files[0].Open)
	assert.Equal(t, "0 B", files[1].Size)

	_, err = svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)
	files, err = svc.List()
	require.NoError(t, err)
	assert.True(t, files[0].Open)
}

func TestListMissingDirectory(t *testing.T) {
	svc := NewDocumentService(Options{DataDir: filepath.Join(t.TempDir(), "nope")})
	files, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestOpenDocument(t *testing.T) {
	svc, journal := newTestService(t, map[string]string{"amsterdam": amsterdam})

	info, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)
	assert.Equal(t, "amsterdam", info.Name)
	require.Len(t, info.Elements, 4)
	for _, el := range info.Elements {
		assert.Equal(t, StatusAttached, el.Status, el.ID)
	}
	assert.Equal(t, "map", info.Elements[1].Parent)

	require.Len(t, info.Maps, 1)
	m := info.Maps[0]
	assert.Equal(t, "engine-loaded", m.State)
	assert.Equal(t, "map", m.Container)
	assert.Equal(t, []string{"canals"}, m.Sources)
	assert.Equal(t, []string{"canal-lines"}, m.Layers)
	assert.Equal(t, 1, m.Markers)
	assert.Equal(t, 12.0, m.Zoom)

	again, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)
	assert.Equal(t, info.OpenedAt, again.OpenedAt)
	assert.Equal(t, []string{"amsterdam"}, svc.Names())

	require.Eventually(t, func() bool { return len(journal.kinds()) >= 5 }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, journal.kinds(), engine.EventLayerAdded)
}

func TestOpenErrors(t *testing.T) {
	svc, _ := newTestService(t, nil)
	_, err := svc.Open(testContext(t), "missing")
	assert.ErrorIs(t, err, ErrDocumentNotFound)
	_, err = svc.Open(testContext(t), "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = svc.Get("missing")
	assert.ErrorIs(t, err, ErrDocumentNotOpen)
	assert.ErrorIs(t, svc.Close("missing"), ErrDocumentNotOpen)
}

func TestOpenReportsFailedElements(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"broken": `<ml-map id="map">
		<ml-layer id="orphan" type="line" source="nowhere"></ml-layer>
	</ml-map>`})

	info, err := svc.Open(testContext(t), "broken")
	require.NoError(t, err)
	require.Len(t, info.Elements, 2)
	assert.Equal(t, StatusFailed, info.Elements[1].Status)
	assert.Contains(t, info.Elements[1].Error, "source(nowhere) not found")
}

func TestStyle(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	_, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)

	st, err := svc.Style("amsterdam", "map")
	require.NoError(t, err)
	assert.Equal(t, 8, st.Version)
	assert.Equal(t, []float64{4.9, 52.37}, st.Center)
	require.Contains(t, st.Metadata.Sources, "canals")
	assert.Equal(t, &[4]float64{4.88, 52.36, 4.9, 52.38}, st.Metadata.Sources["canals"].Bounds)

	_, err = svc.Style("amsterdam", "canals")
	assert.ErrorIs(t, err, ErrNotAMap)
	_, err = svc.Style("amsterdam", "nope")
	assert.ErrorIs(t, err, ErrElementNotFound)
}

func TestSetAttributeMovesMarker(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	_, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)

	events := svc.Bus().Subscribe()
	defer svc.Bus().Unsubscribe(events)

	_, err = svc.SetAttribute(testContext(t), "amsterdam", "dam", AttributeChange{Name: "long", Value: "4.9"})
	require.NoError(t, err)

	st, err := svc.Style("amsterdam", "map")
	require.NoError(t, err)
	require.Len(t, st.Metadata.Markers, 1)
	assert.Equal(t, &[2]float64{4.9, 52.373}, st.Metadata.Markers[0].LngLat)

	seen := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for !seen["elements/updated"] || !seen["markers/moved"] {
		select {
		case ev := <-events:
			seen[ev.Resource+"/"+ev.Action] = true
		case <-timeout:
			t.Fatalf("missing events, saw %v", seen)
		}
	}
}

func TestDetachAndRestore(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	ctx := testContext(t)
	_, err := svc.Open(ctx, "amsterdam")
	require.NoError(t, err)

	require.NoError(t, svc.Detach(ctx, "amsterdam", "canal-lines"))
	info, err := svc.Get("amsterdam")
	require.NoError(t, err)
	assert.Equal(t, []string{"canal-lines"}, info.Detached)
	assert.Empty(t, info.Maps[0].Layers)

	_, err = svc.Restore(ctx, "amsterdam", "canals")
	assert.ErrorIs(t, err, ErrNotDetached)

	el, err := svc.Restore(ctx, "amsterdam", "canal-lines")
	require.NoError(t, err)
	assert.Equal(t, StatusAttached, el.Status)
	assert.Equal(t, "map", el.Parent)

	info, err = svc.Get("amsterdam")
	require.NoError(t, err)
	assert.Empty(t, info.Detached)
	assert.Equal(t, []string{"canal-lines"}, info.Maps[0].Layers)
}

func TestDetachSourceRebindsLayerOnRestore(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	ctx := testContext(t)
	_, err := svc.Open(ctx, "amsterdam")
	require.NoError(t, err)

	require.NoError(t, svc.Detach(ctx, "amsterdam", "canals"))
	info, err := svc.Get("amsterdam")
	require.NoError(t, err)
	assert.Empty(t, info.Maps[0].Sources)
	assert.Empty(t, info.Maps[0].Layers)

	_, err = svc.Restore(ctx, "amsterdam", "canals")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		info, err := svc.Get("amsterdam")
		return err == nil && len(info.Maps[0].Layers) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCloseDetachesEverything(t *testing.T) {
	svc, journal := newTestService(t, map[string]string{"amsterdam": amsterdam})
	_, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)

	require.NoError(t, svc.Close("amsterdam"))
	assert.Empty(t, svc.Names())
	require.Eventually(t, func() bool {
		kinds := journal.kinds()
		return slices.Contains(kinds, engine.EventSourceRemoved) && slices.Contains(kinds, engine.EventMarkerRemoved)
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, journal.kinds(), engine.EventLayerRemoved)
}

func TestSaveDocument(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	events := svc.Bus().Subscribe()
	defer svc.Bus().Unsubscribe(events)

	file, err := svc.Save("rotterdam", strings.NewReader(`<ml-map id="m"></ml-map>`))
	require.NoError(t, err)
	assert.Equal(t, "rotterdam", file.Name)
	assert.Equal(t, "24 B", file.Size)

	ev := <-events
	assert.Equal(t, "saved", ev.Action)

	info, err := svc.Open(testContext(t), "rotterdam")
	require.NoError(t, err)
	require.Len(t, info.Maps, 1)

	_, err = svc.Save("rotterdam", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrDocumentOpen)
	_, err = svc.Save("../escape", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrInvalidName)

	entries, err := os.ReadDir(svc.DocumentsDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

// holdOpen blocks the first Open of a document before it parses, until the
// returned release func is called.
func holdOpen(svc *DocumentService) (entered <-chan struct{}, release func()) {
	in := make(chan struct{})
	gate := make(chan struct{})
	var once sync.Once
	svc.opening = func(string) {
		once.Do(func() {
			close(in)
			<-gate
		})
	}
	return in, func() { close(gate) }
}

func TestConcurrentOpenWaitsForParse(t *testing.T) {
	svc, _ := newTestService(t, map[string]string{"amsterdam": amsterdam})
	entered, release := holdOpen(svc)

	first := make(chan DocumentInfo, 1)
	go func() {
		info, err := svc.Open(testContext(t), "amsterdam")
		assert.NoError(t, err)
		first <- info
	}()
	<-entered

	second := make(chan DocumentInfo, 1)
	go func() {
		info, err := svc.Open(testContext(t), "amsterdam")
		assert.NoError(t, err)
		second <- info
	}()

	select {
	case <-second:
		t.Fatal("second Open returned before the document was parsed")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	info := <-second
	require.Len(t, info.Maps, 1)
	assert.Len(t, info.Elements, 4)
	assert.Len(t, (<-first).Elements, 4)
}

func TestCloseWhileOpening(t *testing.T) {
	svc, journal := newTestService(t, map[string]string{"amsterdam": amsterdam})
	entered, release := holdOpen(svc)

	errs := make(chan error, 1)
	go func() {
		_, err := svc.Open(testContext(t), "amsterdam")
		errs <- err
	}()
	<-entered

	require.NoError(t, svc.Close("amsterdam"))
	release()
	assert.ErrorIs(t, <-errs, ErrDocumentNotOpen)
	assert.Empty(t, svc.Names())
	_, err := svc.Get("amsterdam")
	assert.ErrorIs(t, err, ErrDocumentNotOpen)

	// the orphaned tree was torn down
	require.Eventually(t, func() bool {
		return slices.Contains(journal.kinds(), engine.EventMarkerRemoved) ||
			!slices.Contains(journal.kinds(), engine.EventMarkerAdded)
	}, 2*time.Second, 5*time.Millisecond)

	info, err := svc.Open(testContext(t), "amsterdam")
	require.NoError(t, err)
	for _, el := range info.Elements {
		assert.Equal(t, StatusAttached, el.Status, el.ID)
	}
}
