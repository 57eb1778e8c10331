package web

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"webp-converter-go/internal/config"
	"webp-converter-go/internal/converter"
	"webp-converter-go/internal/logger"

	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	log := logger.Discard()
	return NewServer(config.DefaultConfig(), log, converter.NewWorker(converter.WithLogger(log)))
}

func imageDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.NRGBA{A: 0})
	for _, name := range names {
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func post(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func getStatus(t *testing.T, h http.Handler) StatusData {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	var resp struct {
		Success bool       `json:"success"`
		Data    StatusData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode status: %v (%s)", err, rec.Body.String())
	}
	return resp.Data
}

func waitIdle(t *testing.T, h http.Handler) StatusData {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		st := getStatus(t, h)
		if !st.Running && st.State != "idle" {
			return st
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("conversion did not finish in time")
	return StatusData{}
}

func TestConvertRejectsBadBody(t *testing.T) {
	s := newTestServer(t)
	if rec := post(t, s.Handler(), "/api/convert", "{not json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if rec := post(t, s.Handler(), "/api/convert", `{"quality": 80}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing directory: status = %d, want 400", rec.Code)
	}
}

func TestConvertRunsToCompletion(t *testing.T) {
	s := newTestServer(t)
	dir := imageDir(t, "a.png", "b.png")

	rec := post(t, s.Handler(), "/api/convert", `{"directory": "`+dir+`", "quality": 70}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}

	st := waitIdle(t, s.Handler())
	if st.State != "completed" || st.Progress != 100 {
		t.Fatalf("unexpected final status %+v", st)
	}
	if st.Statistics == nil || st.Statistics.FilesConverted != 2 {
		t.Fatalf("unexpected statistics %+v", st.Statistics)
	}
	for _, name := range []string{"a.webp", "b.webp"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
}

func TestConvertReportsInvalidQuality(t *testing.T) {
	s := newTestServer(t)
	dir := imageDir(t, "a.png")

	rec := post(t, s.Handler(), "/api/convert", `{"directory": "`+dir+`", "quality": 0}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	st := waitIdle(t, s.Handler())
	if st.State != "error" || !strings.Contains(st.Message, "quality") {
		t.Fatalf("unexpected final status %+v", st)
	}
	if _, err := os.Stat(filepath.Join(dir, "a.webp")); err == nil {
		t.Fatal("no output expected for invalid quality")
	}
}

func TestConvertWhileRunningConflicts(t *testing.T) {
	s := newTestServer(t)
	s.isRunning = true

	rec := post(t, s.Handler(), "/api/convert", `{"directory": "/tmp"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestStopWithoutJob(t *testing.T) {
	s := newTestServer(t)
	if rec := post(t, s.Handler(), "/api/stop", ""); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestListDirectoriesMarksConvertibleImages(t *testing.T) {
	s := newTestServer(t)
	dir := imageDir(t, "a.png")
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/directories?path="+dir, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Data DirectoryListing `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	listing := resp.Data
	if listing.Images != 1 || len(listing.Entries) != 2 {
		t.Fatalf("unexpected listing %+v", listing)
	}
	img, sub := listing.Entries[0], listing.Entries[1]
	if img.Name != "a.png" || !img.Convertible || img.Output != filepath.Join(dir, "a.webp") {
		t.Errorf("unexpected image entry %+v", img)
	}
	if sub.Name != "sub" || !sub.IsDirectory || sub.Convertible {
		t.Errorf("unexpected directory entry %+v", sub)
	}
}

func TestListDirectoriesRejectsBadPaths(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/directories?path=../etc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("traversal: status = %d, want 400", rec.Code)
	}

	missing := filepath.Join(t.TempDir(), "missing")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/directories?path="+missing, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing: status = %d, want 404", rec.Code)
	}
}

func TestConvertAgainRightAfterCompletion(t *testing.T) {
	s := newTestServer(t)
	dir := imageDir(t, "a.png")
	body := `{"directory": "` + dir + `"}`

	for i := 0; i < 5; i++ {
		if rec := post(t, s.Handler(), "/api/convert", body); rec.Code != http.StatusAccepted {
			t.Fatalf("run %d: status = %d: %s", i, rec.Code, rec.Body.String())
		}
		st := waitIdle(t, s.Handler())
		if st.State != "completed" {
			t.Fatalf("run %d: final status %+v", i, st)
		}
	}
}

func TestWebSocketStreamsEventsInOrder(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.clientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	dir := imageDir(t, "a.png", "b.png", "c.png", "d.png")
	resp, err := http.Post(ts.URL+"/api/convert", "application/json",
		strings.NewReader(`{"directory": "`+dir+`", "quality": 50}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	var types []string
	var percents []int
	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (got %v)", err, types)
		}
		types = append(types, msg.Type)
		if msg.Type == "progress" {
			var ev converter.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				t.Fatal(err)
			}
			percents = append(percents, ev.Percent)
		}
		if msg.Type == "completed" || msg.Type == "error" {
			break
		}
	}

	want := "started,progress,progress,progress,progress,completed"
	if got := strings.Join(types, ","); got != want {
		t.Fatalf("message types = %s, want %s", got, want)
	}
	if len(percents) != 4 || percents[0] != 25 || percents[3] != 100 {
		t.Fatalf("percents = %v", percents)
	}
}
