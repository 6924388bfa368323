package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"soundloom/internal/api"
	"soundloom/internal/generation"
	"soundloom/internal/generation/replicate"
	"soundloom/internal/library"
	"soundloom/internal/logging"
	"soundloom/internal/pipeline"
	"soundloom/internal/testsupport"
	"soundloom/internal/workflow"
)

type runStoreStub struct {
	runs []*library.Run
}

func (s *runStoreStub) ListRuns(context.Context, ...library.Status) ([]*library.Run, error) {
	return s.runs, nil
}

func (s *runStoreStub) Stats(context.Context) (map[library.Status]int, error) {
	return map[library.Status]int{library.StatusPending: len(s.runs)}, nil
}

func (s *runStoreStub) GetRun(context.Context, int64) (*library.Run, error) {
	if len(s.runs) == 0 {
		return nil, nil
	}
	return s.runs[0], nil
}

func TestAPIServerHandleQueue(t *testing.T) {
	store := &runStoreStub{runs: []*library.Run{{ID: 1, TextID: 2, Status: library.StatusPending}}}
	srv := &apiServer{queueSvc: api.NewQueueService(store)}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(resp.Items))
	}
	if resp.Items[0].Status != string(library.StatusPending) {
		t.Fatalf("unexpected status: %q", resp.Items[0].Status)
	}
}

func TestAPIServerHandleQueueRejectsUnknownStatus(t *testing.T) {
	srv := &apiServer{queueSvc: api.NewQueueService(&runStoreStub{})}

	req := httptest.NewRequest(http.MethodGet, "/api/queue?status=bogus", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithGeneration("http://provider.invalid", "https://hooks.example.test"))
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	mgr := workflow.NewManager(cfg, store, logger)
	mgr.ConfigureStages(workflow.StageSet{
		Producer: pipeline.NewProducer(cfg, store, logger, nil, nil, nil),
		Mixer:    pipeline.NewMixer(cfg, store, logger, nil),
	})
	d, err := New(cfg, store, logger, mgr)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func TestAPIServerHandleWebhook(t *testing.T) {
	d := newTestDaemon(t)
	ctx := context.Background()

	text := testsupport.NewText(t, d.store, "Webhook Test", "A short body.")
	if _, err := d.store.UpsertJob(ctx, library.JobBackgroundMusic, text.ID, text.ID, "pred-1"); err != nil {
		t.Fatalf("UpsertJob: %v", err)
	}

	client := &fakeWebhookClient{downloads: map[string][]byte{
		"https://cdn.example.test/music.mp3": []byte("music-bytes"),
	}}
	registry := generation.NewRegistry(logging.NewNop())
	d.WithWebhookProcessor(generation.NewProcessor(d.store, d.cfg, client, registry, logging.NewNop()))

	srv, err := newAPIServer(d.cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}

	body := `{"id":"pred-1","status":"succeeded","output":"https://cdn.example.test/music.mp3"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/background_music/"+strconv.FormatInt(text.ID, 10), strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleWebhook(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d: %s", w.Code, w.Body.String())
	}
	audio, err := d.store.MusicAudio(ctx, text.ID)
	if err != nil {
		t.Fatalf("MusicAudio: %v", err)
	}
	if string(audio) != "music-bytes" {
		t.Fatalf("expected stored music audio, got %d bytes", len(audio))
	}
}

func TestAPIServerHandleWebhookUnknownTarget(t *testing.T) {
	d := newTestDaemon(t)
	registry := generation.NewRegistry(logging.NewNop())
	d.WithWebhookProcessor(generation.NewProcessor(d.store, d.cfg, &fakeWebhookClient{}, registry, logging.NewNop()))

	srv, err := newAPIServer(d.cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}

	body := `{"id":"pred-9","status":"succeeded","output":"https://cdn.example.test/x.mp3"}`
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/sound_effect/999", strings.NewReader(body))
	w := httptest.NewRecorder()
	srv.handleWebhook(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAPIServerHandleWebhookRejectsBadPath(t *testing.T) {
	d := newTestDaemon(t)
	srv, err := newAPIServer(d.cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}

	cases := []struct {
		path string
		want int
	}{
		{"/api/webhooks/unknown_type/1", http.StatusNotFound},
		{"/api/webhooks/background_music/abc", http.StatusBadRequest},
		{"/api/webhooks/background_music", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, tc.path, strings.NewReader("{}"))
		w := httptest.NewRecorder()
		srv.handleWebhook(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.path, tc.want, w.Code)
		}
	}
}

func TestAPIServerHandleWebhookWithoutProcessor(t *testing.T) {
	d := newTestDaemon(t)
	srv, err := newAPIServer(d.cfg, d, logging.NewNop())
	if err != nil {
		t.Fatalf("newAPIServer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/background_music/1", strings.NewReader("{}"))
	w := httptest.NewRecorder()
	srv.handleWebhook(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestAPIServerHandleHealth(t *testing.T) {
	srv := &apiServer{}
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()
	srv.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "healthy" {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

type fakeWebhookClient struct {
	downloads map[string][]byte
}

func (f *fakeWebhookClient) CreatePrediction(context.Context, replicate.PredictionRequest) (*replicate.Prediction, error) {
	return &replicate.Prediction{ID: "pred-test", Status: "starting"}, nil
}

func (f *fakeWebhookClient) GetPrediction(_ context.Context, id string) (*replicate.Prediction, error) {
	return &replicate.Prediction{ID: id, Status: "processing"}, nil
}

func (f *fakeWebhookClient) Download(_ context.Context, rawURL string) ([]byte, error) {
	if data, ok := f.downloads[rawURL]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("unknown artifact %s", rawURL)
}
