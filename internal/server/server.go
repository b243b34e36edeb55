// Package server provides the HTTP surface over a reactive entry store.
//
// The server exposes a REST API for reading and writing entries, a
// Server-Sent Events stream backed by the store's snapshot-then-tail
// subscriptions, and the embedded live view.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/flowcache/flowcache"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write
	// operation. This prevents goroutine leaks when clients are slow or
	// disconnected. Must be <= shutdownTimeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown after context cancellation.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "FlowCache"

	// titlePlaceholder is the marker in HTML that gets replaced with the
	// actual title.
	titlePlaceholder = "{{.Title}}"
)

// Server handles HTTP requests for the entry API and live view.
//
// Server provides these endpoints:
//   - GET  /:                  Embedded live view HTML
//   - GET  /api/entries:       Current collection snapshot as JSON
//   - GET  /api/entries/{key}: Single entry, 404 when absent
//   - POST /api/entries:       Store one entry
//   - POST /api/entries/batch: Store a batch of entries
//   - PUT  /api/entries:       Replace the whole collection
//   - GET  /api/stream:        SSE stream of collection snapshots
//   - GET  /api/stream?key=K:  SSE stream of one key's values
//
// Snapshot reads go straight to the cache collaborator; streams subscribe
// through the reactive store. The server is designed for graceful shutdown
// via context cancellation.
type Server struct {
	store      *flowcache.Store[string, Entry]
	cache      flowcache.Cache[string, Entry]
	port       int
	assets     fs.FS
	title      string
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - store: The reactive store holding entries
//   - cache: The cache collaborator backing the store, used for snapshot reads
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing live view assets (may be nil)
//   - title: Live view title (defaults to "FlowCache" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Run] is called.
func NewServer(store *flowcache.Store[string, Entry], cache flowcache.Cache[string, Entry], port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:  store,
		cache:  cache,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
}

// Run serves HTTP requests until the context is cancelled.
//
// Run binds the listener synchronously (so port conflicts surface as an
// immediate error), then blocks until ctx is cancelled and graceful
// shutdown completes. Long-running handlers like SSE observe the
// cancellation through their request contexts.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler: s.routes(),
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// routes builds the request mux. Split out so tests can exercise handlers
// via httptest without binding a port.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/entries", s.handleEntries)
	mux.HandleFunc("/api/entries/batch", s.handleBatch)
	mux.HandleFunc("/api/entries/", s.handleEntry)
	mux.HandleFunc("/api/stream", s.handleStream)

	if s.assets != nil {
		mux.HandleFunc("/", s.handleIndex)
	}

	return mux
}

// handleIndex serves the live view page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Live view not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write live view response", "error", err)
	}
}

// handleEntries serves the collection: GET for a snapshot, POST to store a
// single entry, PUT to replace everything.
func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleSnapshot(w, r)
	case http.MethodPost:
		s.handleStoreOne(w, r)
	case http.MethodPut:
		s.handleReplaceAll(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSnapshot returns the current collection as JSON, sorted by key for
// deterministic output.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	entries := s.cache.GetAll()
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Error("failed to encode snapshot response", "error", err)
	}
}

// handleStoreOne decodes one entry and stores it.
func (s *Server) handleStoreOne(w http.ResponseWriter, r *http.Request) {
	var entry Entry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		http.Error(w, fmt.Sprintf("invalid entry: %v", err), http.StatusBadRequest)
		return
	}
	if entry.Key == "" {
		http.Error(w, "entry key is required", http.StatusBadRequest)
		return
	}

	stamped := stampEntry(entry)
	s.store.StoreSingular(stamped)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stamped); err != nil {
		s.logger.Error("failed to encode store response", "error", err)
	}
}

// handleReplaceAll decodes a list of entries and replaces the collection.
func (s *Server) handleReplaceAll(w http.ResponseWriter, r *http.Request) {
	entries, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	s.store.ReplaceAll(entries)
	s.writeStoredCount(w, len(entries))
}

// handleBatch stores a list of entries, merging with the current collection.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entries, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	s.store.StoreAll(entries)
	s.writeStoredCount(w, len(entries))
}

// decodeBatch reads a JSON array of entries, stamping each with a write ID.
// Writes an HTTP error and returns ok=false on invalid input.
func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) ([]Entry, bool) {
	var entries []Entry
	if err := json.NewDecoder(r.Body).Decode(&entries); err != nil {
		http.Error(w, fmt.Sprintf("invalid entries: %v", err), http.StatusBadRequest)
		return nil, false
	}
	for i, e := range entries {
		if e.Key == "" {
			http.Error(w, fmt.Sprintf("entries[%d]: key is required", i), http.StatusBadRequest)
			return nil, false
		}
		entries[i] = stampEntry(e)
	}
	return entries, true
}

// writeStoredCount reports how many entries a bulk write accepted.
func (s *Server) writeStoredCount(w http.ResponseWriter, n int) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]int{"stored": n}); err != nil {
		s.logger.Error("failed to encode store response", "error", err)
	}
}

// handleEntry returns a single entry by key, 404 when absent.
func (s *Server) handleEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/api/entries/")
	if key == "" {
		http.Error(w, "entry key is required", http.StatusBadRequest)
		return
	}

	entry, ok := s.cache.GetSingular(key).Get()
	if !ok {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(entry); err != nil {
		s.logger.Error("failed to encode entry response", "error", err)
	}
}

// handleStream streams store emissions via Server-Sent Events.
//
// Without a key parameter the stream carries whole-collection snapshots
// from the store's aggregate channel; with ?key=K it carries that key's
// values. Either way the first event is the snapshot at subscribe time,
// courtesy of the store's snapshot-then-tail protocol.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	if key := r.URL.Query().Get("key"); key != "" {
		sub := s.store.GetSingular(key)
		defer sub.Unsubscribe()
		s.logger.Debug("stream opened", "subscription_id", sub.ID(), "key", key)
		streamSSE(w, r, s.logger, sub)
		return
	}

	sub := s.store.GetAll()
	defer sub.Unsubscribe()
	s.logger.Debug("stream opened", "subscription_id", sub.ID())
	streamSSE(w, r, s.logger, sub)
}

// streamSSE forwards subscription emissions to the client as SSE events.
//
// Writes carry a deadline to prevent goroutine leaks when clients are slow
// or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or unsubscription.
func streamSSE[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, sub *flowcache.Subscription[T]) {
	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some
	// ResponseWriter impls)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	for {
		select {
		case v, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(v)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// stampEntry assigns the write ID and timestamp for a new revision.
func stampEntry(e Entry) Entry {
	e.ID = uuid.NewString()
	e.UpdatedAt = time.Now().UTC()
	return e
}
