// Package web provides the gallery and status server for the photobooth
// daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/sweeney/photobooth/internal/logger"
	"github.com/sweeney/photobooth/internal/status"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Options configures a Server.
type Options struct {
	Addr      string
	ImagesDir string
	ThumbsDir string
}

// Server serves the gallery, status JSON and a live status stream.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	tracker    *status.Tracker
	upgrader   websocket.Upgrader
	opts       Options

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Server that reads state from the given tracker.
func New(opts Options, tracker *status.Tracker) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		tracker: tracker,
		opts:    opts,
		upgrader: websocket.Upgrader{
			// The booth serves a LAN page; any origin may watch.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		done: make(chan struct{}),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.html", s.handleIndex).Methods("GET")
	s.router.HandleFunc("/index.json", s.handleJSON).Methods("GET")
	s.router.HandleFunc("/gallery.json", s.handleGallery).Methods("GET")
	s.router.HandleFunc("/image/{name}", s.fileHandler(func() string { return s.opts.ImagesDir })).Methods("GET")
	s.router.HandleFunc("/thumb/{name}", s.fileHandler(func() string { return s.opts.ThumbsDir })).Methods("GET")
	s.router.HandleFunc("/ws", s.handleStream)
}

// Handler returns the router, for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server and ends open streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.doneOnce.Do(func() { close(s.done) })
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	entries, err := listGallery(s.opts.ImagesDir, s.opts.ThumbsDir)
	if err != nil {
		logger.WithComponent("web").Warn().Err(err).Msg("gallery listing failed")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap, entries); err != nil {
		logger.WithComponent("web").Debug().Err(err).Msg("render index")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request) {
	entries, err := listGallery(s.opts.ImagesDir, s.opts.ThumbsDir)
	if err != nil {
		http.Error(w, "gallery unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(formatGallery(entries))
}

func (s *Server) fileHandler(dir func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, ok := resolve(dir(), mux.Vars(r)["name"])
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}

// handleStream upgrades to a websocket and sends a status snapshot now and
// after every change until the client goes away or the server shuts down.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("web")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	changes, cancel := s.tracker.Subscribe()
	defer cancel()

	// Reads only detect the client closing; messages are discarded.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	send := func() bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, status.FormatJSON(s.tracker.Snapshot())); err != nil {
			log.Debug().Err(err).Msg("websocket write failed")
			return false
		}
		return true
	}

	if !send() {
		return
	}
	for {
		select {
		case <-changes:
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
