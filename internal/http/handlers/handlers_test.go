package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"genpanel/internal/batch"
	"genpanel/internal/canvas"
	"genpanel/internal/domain"
	"genpanel/internal/gateway"
	"genpanel/internal/session"
	"genpanel/internal/settings"
	"genpanel/internal/storage"
)

type stubGateway struct {
	mu     sync.Mutex
	script []gateway.StreamEvent
	calls  int
	block  chan struct{}
}

func (g *stubGateway) Converse(_ context.Context, _ []domain.Turn, _ domain.Turn, _ gateway.GenerateConfig) iter.Seq[gateway.StreamEvent] {
	g.mu.Lock()
	g.calls++
	script := g.script
	g.mu.Unlock()
	return func(yield func(gateway.StreamEvent) bool) {
		if g.block != nil {
			<-g.block
		}
		for _, ev := range script {
			if !yield(ev) {
				return
			}
		}
	}
}

func (g *stubGateway) BuildUserTurn(prompt string, _ []image.Image) domain.Turn {
	return domain.UserTurn(prompt, nil)
}

func (g *stubGateway) EnhancePrompt(context.Context, string, []image.Image) gateway.StructuredPrompt {
	return gateway.StructuredPrompt{FinalPrompt: "Magic Prompt Error: unavailable"}
}

func testPNG(t *testing.T) (image.Image, []byte) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	// The handler only passes bytes through, any payload works.
	buf.WriteString("png-bytes")
	return img, buf.Bytes()
}

func newTestApp(t *testing.T, gw *stubGateway) (*App, string) {
	t.Helper()
	store, err := settings.NewStore(filepath.Join(t.TempDir(), "settings.json"), zerolog.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	storageDir := t.TempDir()
	files, err := storage.NewFileStore(storageDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	doc := canvas.NewMemoryDocument(320, 240)
	host := canvas.NewDocumentHost(canvas.StaticProvider{Doc: doc}, zerolog.Nop())
	ctrl := session.New(gw, host, store, zerolog.Nop(), session.WithBatchOptions(batch.WithDelay(0)))
	t.Cleanup(ctrl.Close)
	return NewApp(ctrl, store, files, zerolog.Nop()), storageDir
}

func waitIdle(t *testing.T, app *App) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !app.Controller.Status().Busy {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("controller did not return to idle")
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	rec := httptest.NewRecorder()
	app.Health(rec, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSendAcceptedAndBusyConflict(t *testing.T) {
	gw := &stubGateway{block: make(chan struct{})}
	app, _ := newTestApp(t, gw)

	if rec := postJSON(t, app.Send, `{"prompt":"a castle"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("first send status = %d, want 202", rec.Code)
	}
	if rec := postJSON(t, app.Send, `{"prompt":"again"}`); rec.Code != http.StatusConflict {
		t.Fatalf("second send status = %d, want 409", rec.Code)
	}
	close(gw.block)
	waitIdle(t, app)
}

func TestSendRejectsMalformedBody(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	if rec := postJSON(t, app.Send, `{"prompt":`); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRetryWithoutHistoryConflicts(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	rec := httptest.NewRecorder()
	app.Retry(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSettingsRoundTripAndRedaction(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})

	rec := postJSON(t, app.PutSettings, `{"api_key":"secret","batch_size":2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d: %s", rec.Code, rec.Body)
	}
	var snap map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap["api_key"] != true {
		t.Fatalf("snapshot = %v, want api_key reduced to presence flag", snap)
	}
	if snap["batch_size"] != float64(2) {
		t.Fatalf("batch_size = %v, want 2", snap["batch_size"])
	}

	if rec := postJSON(t, app.PutSettings, `{"model":"not-a-model"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid model status = %d, want 400", rec.Code)
	}
}

func TestSelectImageUnknownSeedNotFound(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	if rec := postJSON(t, app.SelectImage, `{"seed":999}`); rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestCommitWithoutStagedConflicts(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	if rec := postJSON(t, app.Commit, `{"name":"x"}`); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCommitPersistsImage(t *testing.T) {
	img, png := testPNG(t)
	gw := &stubGateway{script: []gateway.StreamEvent{
		{Kind: gateway.KindImage, Image: img, PNG: png, Seed: 55},
	}}
	app, storageDir := newTestApp(t, gw)

	if rec := postJSON(t, app.Send, `{"prompt":"p"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("send status = %d", rec.Code)
	}
	waitIdle(t, app)

	rec := postJSON(t, app.Commit, `{"name":"Final Art"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit status = %d: %s", rec.Code, rec.Body)
	}
	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["name"] != "Final Art" || resp["seed"] != float64(55) {
		t.Fatalf("response = %v", resp)
	}
	key, _ := resp["storage_key"].(string)
	if key == "" {
		t.Fatal("no storage key in response")
	}
	store, err := storage.NewFileStore(storageDir)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Read(context.Background(), key); err != nil {
		t.Fatalf("committed image not persisted: %v", err)
	}
}

func TestExportZip(t *testing.T) {
	app, _ := newTestApp(t, &stubGateway{})
	rec := httptest.NewRecorder()
	app.ExportZip(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty export status = %d, want 404", rec.Code)
	}

	img, png := testPNG(t)
	gw := &stubGateway{script: []gateway.StreamEvent{
		{Kind: gateway.KindImage, Image: img, PNG: png, Seed: 7},
	}}
	app, _ = newTestApp(t, gw)
	if rec := postJSON(t, app.Send, `{"prompt":"p"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("send status = %d", rec.Code)
	}
	waitIdle(t, app)

	rec = httptest.NewRecorder()
	app.ExportZip(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("content type = %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty archive body")
	}
}

func TestEventsStreamOverWebsocket(t *testing.T) {
	img, png := testPNG(t)
	gw := &stubGateway{script: []gateway.StreamEvent{
		{Kind: gateway.KindText, Text: "Working."},
		{Kind: gateway.KindImage, Image: img, PNG: png, Seed: 3},
	}}
	app, _ := newTestApp(t, gw)

	srv := httptest.NewServer(http.HandlerFunc(app.Events))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to subscribe before events start flowing.
	time.Sleep(50 * time.Millisecond)

	if rec := postJSON(t, app.Send, `{"prompt":"p"}`); rec.Code != http.StatusAccepted {
		t.Fatalf("send status = %d", rec.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var kinds []string
	for {
		var ev wireEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (kinds so far %v)", err, kinds)
		}
		kinds = append(kinds, ev.Kind)
		if ev.Kind == string(domain.EventImageProduced) {
			if ev.Image == nil || ev.Image.Seed != 3 || ev.Image.PNGBase64 == "" {
				t.Fatalf("image event = %+v", ev)
			}
		}
		if ev.Kind == string(domain.EventBatchFinished) {
			break
		}
	}
	want := []string{"progress", "text_delta", "image_produced", "batch_finished"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
	waitIdle(t, app)
}
