package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/capreel/capreel/internal/capture"
	"github.com/capreel/capreel/internal/config"
	"github.com/capreel/capreel/internal/media"
	"github.com/capreel/capreel/internal/state"
)

// fakePipeline records invocations and returns configured results.
type fakePipeline struct {
	startErr  error
	stopErr   error
	items     []media.Item
	deleteErr error

	started   int
	stopped   int
	paused    int
	cancelled int
	deleted   []string
	lastArea  *capture.Region
}

func (f *fakePipeline) StartRecording(area *capture.Region) error {
	f.started++
	f.lastArea = area
	return f.startErr
}

func (f *fakePipeline) StopRecording() error {
	f.stopped++
	return f.stopErr
}

func (f *fakePipeline) TogglePause() error {
	f.paused++
	return nil
}

func (f *fakePipeline) CancelRecording() error {
	f.cancelled++
	return nil
}

func (f *fakePipeline) DeleteRecording(name string) error {
	f.deleted = append(f.deleted, name)
	return f.deleteErr
}

func (f *fakePipeline) Recordings() ([]media.Item, error) {
	return f.items, nil
}

func newTestServer(t *testing.T, pipeline *fakePipeline) (*httptest.Server, *state.Store, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	store := state.NewStore()
	store.Initialize(cfg.Recording, nil)

	srv := New(pipeline, store, cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, cfg
}

func TestStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakePipeline{})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}

	var st state.AppState
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decoding status: %v", err)
	}
	if st.Phase != state.PhaseIdle {
		t.Errorf("Phase = %s, want IDLE", st.Phase)
	}
}

func TestStartWithArea(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, _ := newTestServer(t, pipeline)

	body := `{"area": {"x": 10, "y": 20, "width": 640, "height": 480}}`
	resp, err := http.Post(ts.URL+"/api/record/start", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if pipeline.started != 1 {
		t.Fatalf("StartRecording called %d times", pipeline.started)
	}
	if pipeline.lastArea == nil || pipeline.lastArea.Width != 640 {
		t.Errorf("Area not passed through: %+v", pipeline.lastArea)
	}
}

func TestStartWithoutBody(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, _ := newTestServer(t, pipeline)

	resp, err := http.Post(ts.URL+"/api/record/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if pipeline.lastArea != nil {
		t.Errorf("Expected full-display start, got area %+v", pipeline.lastArea)
	}
}

func TestDuplicateStartCoalesced(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, _ := newTestServer(t, pipeline)

	for i := 0; i < 3; i++ {
		resp, err := http.Post(ts.URL+"/api/record/start", "application/json", nil)
		if err != nil {
			t.Fatalf("POST start: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("Status = %d", resp.StatusCode)
		}
	}

	// A burst of clicks reaches the pipeline once.
	if pipeline.started != 1 {
		t.Errorf("StartRecording called %d times, want 1", pipeline.started)
	}
}

func TestStartRejectsInvalidArea(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, _ := newTestServer(t, pipeline)

	body := `{"area": {"x": 0, "y": 0, "width": 0, "height": 100}}`
	resp, err := http.Post(ts.URL+"/api/record/start", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", resp.StatusCode)
	}
	if pipeline.started != 0 {
		t.Error("Degenerate area should not reach the pipeline")
	}
}

func TestStartConflict(t *testing.T) {
	pipeline := &fakePipeline{startErr: capture.ErrAlreadyRunning}
	ts, _, _ := newTestServer(t, pipeline)

	resp, err := http.Post(ts.URL+"/api/record/start", "application/json", nil)
	if err != nil {
		t.Fatalf("POST start: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Status = %d, want 409", resp.StatusCode)
	}

	var body GenericResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Success || body.Error == "" {
		t.Errorf("Error envelope not populated: %+v", body)
	}
}

func TestStopAndPauseAndCancel(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, _ := newTestServer(t, pipeline)

	for _, path := range []string{"/api/record/stop", "/api/record/pause", "/api/record/cancel"} {
		resp, err := http.Post(ts.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("POST %s status = %d", path, resp.StatusCode)
		}
	}

	if pipeline.stopped != 1 || pipeline.paused != 1 || pipeline.cancelled != 1 {
		t.Errorf("Calls: stop=%d pause=%d cancel=%d", pipeline.stopped, pipeline.paused, pipeline.cancelled)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakePipeline{})

	// Commands reject GET, status rejects POST.
	resp, _ := http.Get(ts.URL + "/api/record/start")
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET start status = %d", resp.StatusCode)
	}

	resp, _ = http.Post(ts.URL+"/api/status", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", resp.StatusCode)
	}
}

func TestRecordingsList(t *testing.T) {
	pipeline := &fakePipeline{items: []media.Item{
		{Name: "rec_1.gif", Format: media.FormatGIF, Size: 1024},
		{Name: "rec_2.mp4", Format: media.FormatMP4, Size: 2048},
	}}
	ts, _, _ := newTestServer(t, pipeline)

	resp, err := http.Get(ts.URL + "/api/recordings")
	if err != nil {
		t.Fatalf("GET recordings: %v", err)
	}
	defer resp.Body.Close()

	var body RecordingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Decoding: %v", err)
	}
	if body.TotalCount != 2 || len(body.Recordings) != 2 {
		t.Errorf("Response = %+v", body)
	}
}

func TestRecordingStreamAndDelete(t *testing.T) {
	pipeline := &fakePipeline{}
	ts, _, cfg := newTestServer(t, pipeline)

	path := filepath.Join(cfg.Output.Directory, "rec_1.gif")
	if err := os.WriteFile(path, []byte("GIF89a"), 0644); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get(ts.URL + "/api/recordings/rec_1.gif")
	if err != nil {
		t.Fatalf("GET recording: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/gif" {
		t.Errorf("Content-Type = %s", ct)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/recordings/rec_1.gif", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	delResp.Body.Close()
	if len(pipeline.deleted) != 1 || pipeline.deleted[0] != "rec_1.gif" {
		t.Errorf("Deleted = %v", pipeline.deleted)
	}
}

func TestPathTraversalRejected(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakePipeline{})

	resp, err := http.Get(ts.URL + "/api/recordings/..%5c..%5csecret.txt")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", resp.StatusCode)
	}
}

func TestStateStreamPushesUpdates(t *testing.T) {
	ts, store, _ := newTestServer(t, &fakePipeline{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Websocket dial: %v", err)
	}
	defer conn.Close()

	// First frame is the current state.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st state.AppState
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("Reading initial state: %v", err)
	}
	if st.Phase != state.PhaseIdle {
		t.Errorf("Initial phase = %s", st.Phase)
	}

	// A transition is pushed to the client.
	store.StartRecording(state.RecordingSession{ID: "rec_x", StartTime: time.Now()}, "fake")

	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("Reading pushed state: %v", err)
	}
	if st.Phase != state.PhaseRecording {
		t.Errorf("Pushed phase = %s", st.Phase)
	}
	if st.Session == nil || st.Session.ID != "rec_x" {
		t.Errorf("Session not delivered: %+v", st.Session)
	}
}

func TestErrorEnvelopeOnStopFailure(t *testing.T) {
	pipeline := &fakePipeline{stopErr: errors.New("nothing recording")}
	ts, _, _ := newTestServer(t, pipeline)

	resp, err := http.Post(ts.URL+"/api/record/stop", "application/json", bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("POST stop: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("Status = %d, want 409", resp.StatusCode)
	}
}
