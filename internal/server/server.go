package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/boardlink/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// controlTimeout bounds how long a control request waits on the channel.
	controlTimeout = 10 * time.Second

	// maxBodyBytes limits control request bodies.
	maxBodyBytes = 4 << 10

	defaultTitle = "boardlink"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Errors a [Control] wraps so handlers can choose a status code.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
	ErrInvalid     = errors.New("invalid request")
)

// Control is the write side of the API, implemented by the controller.
type Control interface {
	Update(ctx context.Context, name string) error
	SetEnabled(name string, enabled bool) error
	SetInterval(name string, d time.Duration) error
	Send(command string) error
	Query(ctx context.Context, command string) (string, error)
}

// Server handles HTTP requests for the boardlink dashboard and API.
//
// Read-only routes:
//   - GET /: embedded dashboard HTML
//   - GET /api/components: all component records as JSON
//   - GET /api/components/{name}: one record
//   - GET /api/sse: Server-Sent Events stream of record changes
//
// Control routes, registered only when a [Control] is configured:
//   - POST /api/components/{name}/update: refresh now, returns the record
//   - POST /api/components/{name}/enable and .../disable
//   - PUT /api/components/{name}/interval: body {"interval_ms": N}
//   - POST /api/command: body {"command": "...", "wait": bool}
type Server struct {
	store   store.Store
	control Control
	port    int
	assets  fs.FS
	title   string
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server]. control may be nil for a read-only
// dashboard and assets may be nil to skip the HTML page.
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, control Control, port int, assets fs.FS, title string, logger *slog.Logger) *Server {
	return &Server{
		store:   st,
		control: control,
		port:    port,
		assets:  assets,
		title:   title,
		logger:  logger,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/components", s.handleComponents)
	mux.HandleFunc("GET /api/components/{name}", s.handleComponent)
	mux.HandleFunc("GET /api/sse", s.handleSSE)

	if s.control != nil {
		mux.HandleFunc("POST /api/components/{name}/update", s.handleUpdate)
		mux.HandleFunc("POST /api/components/{name}/enable", s.handleEnable(true))
		mux.HandleFunc("POST /api/components/{name}/disable", s.handleEnable(false))
		mux.HandleFunc("PUT /api/components/{name}/interval", s.handleInterval)
		mux.HandleFunc("POST /api/command", s.handleCommand)
	}

	if s.assets != nil {
		mux.HandleFunc("GET /", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until ctx is cancelled, then shuts down gracefully with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// request contexts end with ctx so SSE handlers return on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or nil before [Server.Start].
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// escape the title to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

func (s *Server) handleComponents(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.store.GetAll())
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.store.Get(r.PathValue("name"))
	if !ok {
		s.writeError(w, fmt.Errorf("%w: component %q", ErrNotFound, r.PathValue("name")))
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()

	if err := s.control.Update(ctx, name); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecord(w, name)
}

func (s *Server) handleEnable(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if err := s.control.SetEnabled(name, enabled); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeRecord(w, name)
	}
}

// maxIntervalMs is the largest interval_ms that fits in a time.Duration.
const maxIntervalMs = math.MaxInt64 / int64(time.Millisecond)

type intervalRequest struct {
	IntervalMs *int64 `json:"interval_ms"`
}

func (s *Server) handleInterval(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var req intervalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if req.IntervalMs == nil {
		s.writeError(w, fmt.Errorf("%w: interval_ms is required", ErrInvalid))
		return
	}

	if *req.IntervalMs > maxIntervalMs {
		s.writeError(w, fmt.Errorf("%w: interval_ms exceeds %d", ErrInvalid, int64(maxIntervalMs)))
		return
	}

	if err := s.control.SetInterval(name, time.Duration(*req.IntervalMs)*time.Millisecond); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeRecord(w, name)
}

type commandRequest struct {
	Command string `json:"command"`
	Wait    bool   `json:"wait"`
}

type commandResponse struct {
	Command  string `json:"command"`
	Response string `json:"response,omitempty"`
	Queued   bool   `json:"queued"`
}

// handleCommand sends a raw command to the board at high priority.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		s.writeError(w, fmt.Errorf("%w: command is required", ErrInvalid))
		return
	}

	if !req.Wait {
		if err := s.control.Send(req.Command); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusAccepted, commandResponse{Command: req.Command, Queued: true})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), controlTimeout)
	defer cancel()
	resp, err := s.control.Query(ctx, req.Command)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commandResponse{Command: req.Command, Response: resp})
}

// handleSSE streams record updates via Server-Sent Events.
//
// Writes carry a deadline so a slow or vanished client cannot pin the
// handler after shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, rec := range s.store.GetAll() {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown
			return
		}
	}
}

func (s *Server) writeRecord(w http.ResponseWriter, name string) {
	rec, ok := s.store.Get(name)
	if !ok {
		s.writeError(w, fmt.Errorf("%w: component %q", ErrNotFound, name))
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("control request failed", "status", status, "error", err)
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}
