package operator

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"PicarNav/internal/journal"
	"PicarNav/internal/model"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

const writeWait = 2 * time.Second

// History is the read side of the tick journal.
type History interface {
	Runs() ([]journal.Run, error)
	Tail(runID string, n int) ([]model.Telemetry, error)
}

// Option configures a Server.
type Option func(*Server)

// WithStatus sets the function serving /api/status.
func WithStatus(fn func() any) Option { return func(s *Server) { s.status = fn } }

// WithHistory exposes journaled runs under /api/runs.
func WithHistory(h History) Option { return func(s *Server) { s.history = h } }

// WithToken requires "Authorization: Bearer <token>" (or ?token=) on every
// route.
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

// client is a websocket peer. Writes are serialised by mu.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// Server is the operator console: it broadcasts telemetry to websocket
// clients and accepts commands over the websocket and a small HTTP API.
type Server struct {
	addr    string
	queue   *Queue
	logger  *slog.Logger
	status  func() any
	history History
	token   string

	mux     *http.ServeMux
	server  *http.Server
	ln      net.Listener
	done    chan struct{}
	mu      sync.Mutex
	clients map[*client]struct{}
	latest  atomic.Pointer[model.Telemetry]
}

// NewServer builds a console listening on addr that submits commands to
// queue.
func NewServer(addr string, queue *Queue, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:    addr,
		queue:   queue,
		logger:  logger.With("component", "operator"),
		mux:     http.NewServeMux(),
		clients: map[*client]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/ws", s.auth(s.handleWS))
	s.mux.HandleFunc("POST /api/command", s.auth(s.handleCommand))
	s.mux.HandleFunc("GET /api/latest", s.auth(s.handleLatest))
	s.mux.HandleFunc("GET /api/status", s.auth(s.handleStatus))
	s.mux.HandleFunc("GET /api/runs", s.auth(s.handleRuns))
	s.mux.HandleFunc("GET /api/runs/{id}", s.auth(s.handleRun))
}

// Handler returns the HTTP handler, for embedding or tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	if s.addr == "" {
		return errors.New("[operator] empty listen address")
	}
	addr := strings.TrimPrefix(strings.TrimPrefix(s.addr, "http://"), "https://")
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("[operator] listen %s: %w", addr, err)
	}
	s.mu.Lock()
	s.ln = ln
	s.server = &http.Server{Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	s.done = make(chan struct{})
	server, done := s.server, s.done
	s.mu.Unlock()
	s.logger.Info("operator console listening", "addr", ln.Addr().String())
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("operator console stopped", "err", err)
		}
	}()
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop closes websocket clients and shuts the HTTP server down gracefully.
func (s *Server) Stop() {
	s.mu.Lock()
	for c := range s.clients {
		_ = c.conn.Close()
		delete(s.clients, c)
	}
	server, done := s.server, s.done
	s.mu.Unlock()
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.logger.Warn("operator console shutdown", "err", err)
	}
	<-done
}

// Name implements the telemetry sink interface.
func (s *Server) Name() string { return "websocket" }

// Publish records t as the latest tick and broadcasts it as JSON.
func (s *Server) Publish(t model.Telemetry) error {
	s.latest.Store(&t)
	msg, err := json.Marshal(t)
	if err != nil {
		return err
	}
	s.broadcast(msg)
	return nil
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) broadcast(msg []byte) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()
	for _, c := range targets {
		if err := c.write(msg); err != nil {
			s.drop(c)
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	if s.token == "" {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if got == "" {
			got = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// handleWS upgrades the connection, registers it for broadcasts and reads
// commands from it until it closes.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Info("console client connected", "remote", r.RemoteAddr)

	go func() {
		defer func() {
			s.drop(c)
			s.logger.Info("console client disconnected", "remote", r.RemoteAddr)
		}()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			reply := s.accept(msg, "websocket")
			b, _ := json.Marshal(reply)
			if err := c.write(b); err != nil {
				return
			}
		}
	}()
}

// commandReply acknowledges a submitted command.
type commandReply struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) accept(payload []byte, origin string) commandReply {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		return commandReply{Error: err.Error()}
	}
	cmd, err = s.queue.Submit(cmd, origin)
	if err != nil {
		s.logger.Warn("command rejected", "command", cmd.String(), "origin", origin, "err", err)
		return commandReply{ID: cmd.ID, Command: cmd.String(), Error: err.Error()}
	}
	s.logger.Info("command queued", "id", cmd.ID, "command", cmd.String(), "origin", origin)
	return commandReply{ID: cmd.ID, Command: cmd.String()}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if cerr := r.Body.Close(); cerr != nil {
			s.logger.Debug("close command body", "err", cerr)
		}
	}()
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		http.Error(w, "failed to read command", http.StatusBadRequest)
		return
	}
	reply := s.accept(body, "http")
	switch {
	case reply.Error == "":
		writeJSON(w, http.StatusAccepted, reply)
	case reply.ID != "":
		writeJSON(w, http.StatusServiceUnavailable, reply)
	default:
		writeJSON(w, http.StatusBadRequest, reply)
	}
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	t := s.latest.Load()
	if t == nil {
		http.Error(w, "no telemetry yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusOK, map[string]any{"clients": s.Clients()})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	runs, err := s.history.Runs()
	if err != nil {
		http.Error(w, "failed to read journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "journal disabled", http.StatusNotFound)
		return
	}
	n := 100
	if q := r.URL.Query().Get("n"); q != "" {
		v, err := strconv.Atoi(q)
		if err != nil {
			http.Error(w, "invalid n", http.StatusBadRequest)
			return
		}
		n = v
	}
	recs, err := s.history.Tail(r.PathValue("id"), n)
	switch {
	case errors.Is(err, journal.ErrRunNotFound):
		http.Error(w, "run not found", http.StatusNotFound)
	case err != nil:
		http.Error(w, "failed to read journal", http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, recs)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
