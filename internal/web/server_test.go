package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/photobooth/internal/logic"
	"github.com/sweeney/photobooth/internal/status"
)

type testEnv struct {
	ts      *httptest.Server
	srv     *Server
	tracker *status.Tracker
	images  string
	thumbs  string
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	env := &testEnv{
		images: filepath.Join(root, "images"),
		thumbs: filepath.Join(root, "thumbs"),
	}
	for _, d := range []string{env.images, env.thumbs} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		CountdownMs: 3000,
		GIFFrames:   4,
		GIFFPS:      4,
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
		Camera:      "fake",
	}
	env.tracker = status.NewTracker(start, cfg)
	env.srv = New(Options{Addr: ":0", ImagesDir: env.images, ThumbsDir: env.thumbs}, env.tracker)
	env.ts = httptest.NewServer(env.srv.Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func writeFile(t *testing.T, path, content string, mod time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mod, mod); err != nil {
		t.Fatal(err)
	}
}

func TestJSONEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.tracker.UpdateSession(status.Session{
		Mode:   logic.ModeCountingDown,
		Kind:   logic.KindSingle,
		Counts: logic.Counts{Photos: 5, Bursts: 2},
	})
	env.tracker.SetMQTTConnected(true)

	resp, err := http.Get(env.ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Mode != "COUNTING_DOWN" {
		t.Errorf("Mode: got %q, want COUNTING_DOWN", sj.Status.Mode)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("MQTT.Broker: got %q", sj.Status.MQTT.Broker)
	}
	if sj.Status.Counts.Photos != 5 || sj.Status.Counts.Bursts != 2 {
		t.Errorf("unexpected counts %+v", sj.Status.Counts)
	}
	if sj.Status.Config.CountdownMs != 3000 {
		t.Errorf("Config.CountdownMs: got %d, want 3000", sj.Status.Config.CountdownMs)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	env := newTestServer(t)
	now := time.Now()
	writeFile(t, filepath.Join(env.thumbs, "image_00001.jpg"), "t", now)
	writeFile(t, filepath.Join(env.images, "image_00001.jpg"), "i", now)

	for _, path := range []string{"/", "/index.html"} {
		resp, err := http.Get(env.ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q, want text/html", path, ct)
		}
		if !strings.Contains(string(body), `src="/thumb/image_00001.jpg"`) {
			t.Errorf("%s: expected thumbnail in gallery", path)
		}
		if !strings.Contains(string(body), "IDLE") {
			t.Errorf("%s: expected session mode", path)
		}
	}
}

func TestHTMLEmptyGallery(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "No pictures yet.") {
		t.Error("expected empty gallery message")
	}
}

func TestGalleryJSON(t *testing.T) {
	env := newTestServer(t)
	old := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	newer := old.Add(time.Minute)

	writeFile(t, filepath.Join(env.thumbs, "image_00001.jpg"), "t", old)
	writeFile(t, filepath.Join(env.images, "image_00001.jpg"), "i", old)
	writeFile(t, filepath.Join(env.thumbs, "2026-01-01_10-01-00.jpg"), "t", newer)
	writeFile(t, filepath.Join(env.images, "2026-01-01_10-01-00.jpg"), "p", newer)
	writeFile(t, filepath.Join(env.images, "2026-01-01_10-01-00.gif"), "a", newer)
	writeFile(t, filepath.Join(env.thumbs, ".tmp-123"), "x", newer)
	writeFile(t, filepath.Join(env.thumbs, "notes.txt"), "x", newer)

	resp, err := http.Get(env.ts.URL + "/gallery.json")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var g GalleryJSON
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(g.Items) != 2 {
		t.Fatalf("expected 2 items, got %+v", g.Items)
	}
	first := g.Items[0]
	if first.Name != "2026-01-01_10-01-00" {
		t.Errorf("expected newest first, got %q", first.Name)
	}
	if first.Animation != "/image/2026-01-01_10-01-00.gif" {
		t.Errorf("expected animation link, got %q", first.Animation)
	}
	second := g.Items[1]
	if second.Image != "/image/image_00001.jpg" || second.Thumb != "/thumb/image_00001.jpg" || second.Animation != "" {
		t.Errorf("unexpected still entry %+v", second)
	}
	if second.Time != "2026-01-01T10:00:00Z" {
		t.Errorf("Time: got %q", second.Time)
	}
}

func TestGalleryMissingDirs(t *testing.T) {
	entries, err := listGallery("/nonexistent/images", "/nonexistent/thumbs")
	if err != nil || entries != nil {
		t.Errorf("expected empty listing for missing dirs, got %v, %v", entries, err)
	}
}

func TestServeFiles(t *testing.T) {
	env := newTestServer(t)
	writeFile(t, filepath.Join(env.images, "image_00007.jpg"), "full", time.Now())
	writeFile(t, filepath.Join(env.thumbs, "image_00007.jpg"), "small", time.Now())

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/image/image_00007.jpg", 200, "full"},
		{"/thumb/image_00007.jpg", 200, "small"},
		{"/image/missing.jpg", 404, ""},
		{"/image/.hidden.jpg", 404, ""},
		{"/image/notes.txt", 404, ""},
		{"/image/..%2fthumbs%2fimage_00007.jpg", 404, ""},
	}
	for _, tt := range tests {
		resp, err := http.Get(env.ts.URL + tt.path)
		if err != nil {
			t.Fatalf("GET %s: %v", tt.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != tt.code {
			t.Errorf("%s: status %d, want %d", tt.path, resp.StatusCode, tt.code)
		}
		if tt.body != "" && string(body) != tt.body {
			t.Errorf("%s: body %q, want %q", tt.path, body, tt.body)
		}
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"image_00001.jpg", true},
		{"2026-01-01_10-00-00.mp4", true},
		{"POSTER.JPG", true},
		{"", false},
		{"../secret.jpg", false},
		{"a/b.jpg", false},
		{`a\b.jpg`, false},
		{"..jpg", false},
		{".env", false},
		{"passwd", false},
	}
	for _, tt := range tests {
		path, ok := resolve("/srv/images", tt.name)
		if ok != tt.ok {
			t.Errorf("resolve(%q): ok=%v, want %v", tt.name, ok, tt.ok)
		}
		if ok && path != filepath.Join("/srv/images", tt.name) {
			t.Errorf("resolve(%q): path %q", tt.name, path)
		}
	}
	if _, ok := resolve("", "image_00001.jpg"); ok {
		t.Error("empty dir must not resolve")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Get(env.ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestServer(t)

	resp, err := http.Post(env.ts.URL+"/index.json", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStatus(t *testing.T, conn *websocket.Conn) status.StatusInner {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return sj.Status
}

func TestStreamSendsSnapshotsOnChange(t *testing.T) {
	env := newTestServer(t)
	conn := dialStream(t, env)

	if s := readStatus(t, conn); s.Mode != "IDLE" {
		t.Errorf("initial mode: got %q, want IDLE", s.Mode)
	}

	env.tracker.UpdateSession(status.Session{Mode: logic.ModeCapturingBurst, Kind: logic.KindBurst, FlashOn: true})

	s := readStatus(t, conn)
	if s.Mode != "CAPTURING_BURST" || !s.FlashOn {
		t.Errorf("expected burst capture with flash, got %+v", s)
	}
}

func TestStreamEndsOnShutdown(t *testing.T) {
	env := newTestServer(t)
	conn := dialStream(t, env)
	readStatus(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env.srv.Shutdown(ctx)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("expected going-away close, got %v", err)
	}
}
