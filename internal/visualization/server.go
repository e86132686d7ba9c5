package visualization

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/plexsim/internal/network"
	"github.com/nvandessel/plexsim/internal/store"
)

// SnapshotSource loads the network of a stored run. *store.NetworkDB
// satisfies it.
type SnapshotSource interface {
	Snapshot(ctx context.Context, runID string) (network.Snapshot, error)
}

// Server serves a stored network as an HTML page, DOT text and JSON.
type Server struct {
	source     SnapshotSource
	runID      string
	httpServer *http.Server
	listener   net.Listener
	mu         sync.Mutex
	addr       string
}

// NewServer creates a graph server. runID selects the default run; an
// empty id serves the newest. Requests may override it with ?run=.
func NewServer(src SnapshotSource, runID string) *Server {
	return &Server{source: src, runID: runID}
}

// Addr returns the address the server is listening on (e.g., "localhost:PORT").
// Returns empty string if the server hasn't started yet.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/graph.dot", s.handleDOT)
	mux.HandleFunc("/api/graph", s.handleGraph)
	return mux
}

// ListenAndServe starts the HTTP server on an OS-assigned port and blocks
// until the context is cancelled. Returns nil on clean shutdown.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// Let the OS pick a free port.
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// load resolves the run and filter options of a request.
func (s *Server) load(w http.ResponseWriter, r *http.Request) (network.Snapshot, Options, bool) {
	var opts Options
	if v := r.URL.Query().Get("min"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			http.Error(w, "invalid 'min' query parameter: "+v, http.StatusBadRequest)
			return network.Snapshot{}, opts, false
		}
		opts.MinPopulation = n
	}

	runID := r.URL.Query().Get("run")
	if runID == "" {
		runID = s.runID
	}
	snap, err := s.source.Snapshot(r.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return snap, opts, false
	}
	if err != nil {
		http.Error(w, "load error: "+err.Error(), http.StatusInternalServerError)
		return snap, opts, false
	}
	return snap, opts, true
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	snap, opts, ok := s.load(w, r)
	if !ok {
		return
	}

	html, err := RenderHTML(snap, "plexsim network", opts)
	if err != nil {
		http.Error(w, "render error: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

func (s *Server) handleDOT(w http.ResponseWriter, r *http.Request) {
	snap, opts, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	fmt.Fprint(w, RenderDOT(snap, opts))
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	snap, opts, ok := s.load(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(RenderJSON(snap, opts))
}
