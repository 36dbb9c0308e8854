package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait    = 2 * time.Second
	pingInterval = 30 * time.Second
	pongWait     = pingInterval + 10*time.Second
	clientBuffer = 8
	maxReadSize  = 512
)

// Server streams snapshots to WebSocket clients as JSON text frames.
type Server struct {
	addr   string
	fanout *Fanout
	log    *logrus.Logger

	upgrader websocket.Upgrader
	clients  atomic.Int64

	quit     chan struct{}
	quitOnce sync.Once

	mu       sync.Mutex
	listener net.Listener
}

// NewServer prepares a server on addr. Nothing listens until Run.
func NewServer(addr string, fanout *Fanout, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Server{
		addr:   addr,
		fanout: fanout,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  maxReadSize,
			WriteBufferSize: 4096,
			// Visualisers are usually served from a different origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}
}

// Handler exposes /ws and /healthz.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Clients is the number of connected WebSocket clients.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// Addr is the bound address once Run is listening, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Run serves until ctx is cancelled, then disconnects every client.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.WithFields(logrus.Fields{"addr": ln.Addr().String()}).Info("Broadcast server listening")

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.log.Info("Broadcast server stopped")
	return nil
}

func (s *Server) stop() {
	s.quitOnce.Do(func() { close(s.quit) })
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
		Offered uint64 `json:"offered"`
		Dropped uint64 `json:"dropped"`
	}{"ok", s.Clients(), s.fanout.Offered(), s.fanout.Dropped()})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		s.log.WithFields(logrus.Fields{"remote": r.RemoteAddr, "error": err}).Debug("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	s.clients.Add(1)
	defer s.clients.Add(-1)

	snapshots, unsubscribe := s.fanout.Subscribe(clientBuffer)
	defer unsubscribe()
	entry := s.log.WithFields(logrus.Fields{"remote": r.RemoteAddr})
	entry.Info("Client connected")
	defer entry.Info("Client disconnected")

	// Clients only send control frames; the reader keeps pongs flowing and
	// notices when the peer goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(maxReadSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				s.closeConn(conn)
				return
			}
			data, err := json.Marshal(snap)
			if err != nil {
				entry.WithError(err).Warn("Failed to encode snapshot")
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				entry.WithError(err).Debug("Write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.quit:
			s.closeConn(conn)
			return
		}
	}
}

func (s *Server) closeConn(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
