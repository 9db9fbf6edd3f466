// Package ws is the WebSocket transport for the coordinator: it upgrades
// HTTP connections, multiplexes reads through epoll and a bounded worker
// pool, and hands complete text frames to the message dispatcher. All domain
// state lives in the hub; this package only knows connection ids and bytes.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
)

// ServerConfig holds the transport tunables.
type ServerConfig struct {
	ListenAddr        string        // address to listen on, e.g. ":8080"
	WorkerPoolSize    int           // max concurrent read workers
	MaxConnections    int           // hard cap on total connections
	ReadTimeout       time.Duration // per-frame read deadline
	WriteTimeout      time.Duration // per-frame write deadline
	HeartbeatInterval time.Duration // how often to ping clients
	HeartbeatTimeout  time.Duration // extra grace before a silent client is evicted
}

// DefaultServerConfig returns production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:        ":8080",
		WorkerPoolSize:    256,
		MaxConnections:    100000,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
	}
}

// Server accepts WebSocket connections, registers them with epoll, and
// dispatches readable connections to a bounded worker pool. Frame payloads
// go to OnMessage; connection lifecycle is reported through OnConnect and
// OnDisconnect so the coordinator can maintain its registry.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	workerPool chan struct{}
	httpServer *http.Server
	done       chan struct{}
	startedAt  time.Time

	// OnConnect runs after a connection is accepted and registered.
	OnConnect func(conn *Connection)
	// OnMessage runs from a worker goroutine for every complete text frame.
	OnMessage func(conn *Connection, data []byte)
	// OnDisconnect runs once when a connection is removed, before the
	// transport is torn down on the caller's behalf.
	OnDisconnect func(connID string)
	// Admit, when set, gates new upgrades (e.g. per-IP rate limiting).
	Admit func(r *http.Request) bool

	extra map[string]http.Handler // additional HTTP routes
}

// NewServer creates a Server with the given configuration. Callbacks are
// assigned on the returned value before Start.
func NewServer(config ServerConfig) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		done:       make(chan struct{}),
		extra:      make(map[string]http.Handler),
	}
}

// Handle mounts an additional HTTP handler on the server's mux. Must be
// called before Start.
func (s *Server) Handle(pattern string, h http.Handler) {
	s.extra[pattern] = h
}

// Start initializes epoll, begins the event loop and heartbeat, and blocks
// serving HTTP until shutdown.
func (s *Server) Start() error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: create epoll: %w", err)
	}

	s.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	mux.HandleFunc("/health", s.handleHealth)
	for pattern, h := range s.extra {
		mux.Handle(pattern, h)
	}

	s.httpServer = &http.Server{
		Addr:    s.config.ListenAddr,
		Handler: mux,
	}

	go s.eventLoop()
	go s.heartbeatLoop()

	log.Printf("ws: listening on %s (workers=%d, max_conns=%d)",
		s.config.ListenAddr, s.config.WorkerPoolSize, s.config.MaxConnections)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: http server: %w", err)
	}
	return nil
}

// handleUpgrade admits and upgrades an HTTP request to a WebSocket
// connection, assigns it a fresh id, and registers it everywhere.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if s.Admit != nil && !s.Admit(r) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	now := time.Now()
	c := &Connection{
		ID:         uuid.New().String(),
		Conn:       conn,
		Fd:         socketFD(conn),
		CreatedAt:  now,
		LastActive: now,
	}

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Printf("ws: epoll add failed conn=%s: %v", c.ID, err)
		s.conns.Remove(c.ID)
		return
	}

	if s.OnConnect != nil {
		s.OnConnect(c)
	}

	log.Printf("ws: new connection id=%s fd=%d (total=%d)", c.ID, c.Fd, s.conns.Count())
}

// handleHealth reports liveness plus connection count and uptime.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Uptime      string `json:"uptime"`
	}{
		Status:      "ok",
		Connections: s.conns.Count(),
		Uptime:      time.Since(s.startedAt).Round(time.Second).String(),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// eventLoop waits on epoll and fans ready connections out to the worker
// pool. The pool is a semaphore; acquiring blocks when all workers are busy.
func (s *Server) eventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: epoll wait: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn

			s.workerPool <- struct{}{}
			go func() {
				defer func() { <-s.workerPool }()
				s.readFrame(conn)
			}()
		}
	}
}

// readFrame reads one WebSocket frame from a ready connection. Control
// frames are handled here; data frames go to OnMessage. Read failures other
// than timeouts remove the connection.
func (s *Server) readFrame(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Level-triggered epoll can dispatch the same connection twice.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A timeout means a stale wake-up with no data; the heartbeat owns
		// dead-connection detection.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}
	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves liveness.
	c.LastActive = time.Now()

	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		return
	}

	data := make([]byte, header.Length)
	if header.Length > 0 {
		if _, err := io.ReadFull(reader, data); err != nil {
			s.RemoveConnection(c)
			return
		}
	}
	if len(data) == 0 {
		return
	}

	if s.OnMessage != nil {
		s.OnMessage(c, data)
	}
}

// RemoveConnection removes a connection from epoll and the manager and
// closes its transport. Exactly one of the racing cleanup paths proceeds;
// losers are silent no-ops.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	if !s.conns.Remove(c.ID) {
		return
	}

	if s.OnDisconnect != nil {
		s.OnDisconnect(c.ID)
	}

	log.Printf("ws: connection closed id=%s (total=%d)", c.ID, s.conns.Count())
}

// SendMessage writes a text frame to the connection with the given id.
// Unknown ids return an error the caller is free to ignore.
func (s *Server) SendMessage(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}

	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}
	err := c.WriteMessage(data)
	_ = c.Conn.SetWriteDeadline(time.Time{})
	return err
}

// Connections exposes the manager for the heartbeat and diagnostics.
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown stops accepting connections, halts the event loop, and closes
// every active connection.
func (s *Server) Shutdown() error {
	log.Println("ws: shutting down...")

	close(s.done)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Printf("ws: http shutdown: %v", err)
	}

	for _, c := range s.conns.All() {
		_ = s.epoll.Remove(c.Conn)
		c.Close()
	}
	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	log.Printf("ws: stopped, all connections closed")
	return nil
}

// isEINTR reports whether the error is an interrupted syscall, which is
// expected during signal handling and retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" || err.Error() == "errno 4"
}
