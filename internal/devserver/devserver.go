// Package devserver pushes hot-update decisions to browser clients over a
// WebSocket and exposes the live module graph as JSON.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Avinash-1994/Nexxo-sub001/graph"
	"github.com/Avinash-1994/Nexxo-sub001/hmr"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/session"
)

const (
	// HMRPath is the WebSocket endpoint.
	HMRPath    = "/__nexxo/hmr"
	GraphPath  = "/__nexxo/graph"
	HealthPath = "/__nexxo/health"

	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

// Message types sent to clients.
const (
	TypeConnected = "connected"
	TypeDecision  = "decision"
	TypeUpdate    = "update"
)

// Message is one server-to-client frame.
type Message struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	GraphHash string          `json:"graphHash,omitempty"`
	Decision  *hmr.Decision   `json:"decision,omitempty"`
	Update    *session.Update `json:"update,omitempty"`
}

// Server serves the HMR socket and graph endpoints for one session.
type Server struct {
	sess     *session.Session
	upgrader websocket.Upgrader
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New creates a server for sess.
func New(ctx context.Context, sess *session.Session) *Server {
	return &Server{
		sess: sess,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local development only
			},
		},
		log:     ctxlog.FromContext(ctx).With("session", sess.ID()),
		clients: make(map[*client]struct{}),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(HMRPath, s.handleHMR)
	mux.HandleFunc(GraphPath, s.handleGraph)
	mux.HandleFunc(HealthPath, s.handleHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("dev server listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// BroadcastDecision sends a decision to every client.
func (s *Server) BroadcastDecision(d hmr.Decision) {
	s.broadcast(Message{Type: TypeDecision, SessionID: s.sess.ID(), GraphHash: s.sess.Hash(), Decision: &d})
}

// BroadcastUpdate sends an applied batch to every client.
func (s *Server) BroadcastUpdate(u session.Update) {
	s.broadcast(Message{Type: TypeUpdate, SessionID: s.sess.ID(), GraphHash: u.GraphHash, Update: &u})
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("encoding message", "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			// slow client: drop it rather than block the session
			delete(s.clients, c)
			close(c.send)
		}
	}
}

// handleHMR upgrades to a WebSocket and registers the client.
func (s *Server) handleHMR(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	hello, _ := json.Marshal(Message{Type: TypeConnected, SessionID: s.sess.ID(), GraphHash: s.sess.Hash()})
	c.send <- hello

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.log.Debug("hmr client connected", "remote", r.RemoteAddr)

	go s.writePump(c)
	s.readPump(c)
}

// readPump discards client frames and unregisters the client on close.
func (s *Server) readPump(c *client) {
	defer func() {
		s.unregister(c)
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) unregister(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c]; ok {
		delete(s.clients, c)
		close(c.send)
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
}

// graphResponse is the JSON shape of GraphPath.
type graphResponse struct {
	SessionID  string             `json:"sessionId"`
	Hash       string             `json:"hash"`
	Nodes      []*graph.Node      `json:"nodes"`
	Unresolved []graph.Unresolved `json:"unresolved"`
	Cycles     []graph.Cycle      `json:"cycles"`
}

// handleGraph returns the current graph state.
type healthResponse struct {
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
	GraphHash string `json:"graphHash"`
	Clients   int    `json:"clients"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		SessionID: s.sess.ID(),
		GraphHash: s.sess.Hash(),
		Clients:   s.Clients(),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g := s.sess.Graph()
	resp := graphResponse{
		SessionID:  s.sess.ID(),
		Hash:       s.sess.Hash(),
		Nodes:      g.Nodes(),
		Unresolved: g.Unresolved(),
	}
	if idx := s.sess.Index(); idx != nil {
		resp.Cycles = graph.FindCycles(idx, "")
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
