// Package hub implements the connection-and-matchmaking coordinator: the
// registry of live connections, the waiting pool and its pairing scan, the
// paired-session relay, and report-driven moderation. All shared state lives
// behind a single mutex, so at most one handler mutates it at a time; that is
// what makes a pool scan atomic with respect to other pairings. Nothing in
// this package blocks on external I/O; report persistence and moderation
// events are handed to fire-and-forget sinks.
package hub

import (
	"log"
	"sync"
	"time"

	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
	"github.com/pairwise/chat-app/internal/report"
)

// DefaultReportThreshold is the number of reports that forcibly closes the
// reported connection.
const DefaultReportThreshold = 3

// Transport is the write side of one client connection. The hub owns the
// handle exclusively; every other reference between connections is a plain
// id re-resolved through the registry on each use.
type Transport interface {
	WriteMessage(data []byte) error
	Close() error
}

// ReportSink receives filed reports for durable storage. Record must not
// block; implementations queue the write and drop on overflow.
type ReportSink interface {
	Record(r report.Report)
}

// EventSink receives moderation events for external fan-out (e.g. NATS).
// Implementations must not block the caller.
type EventSink interface {
	ReportFiled(reporterID, reportedID string, reason string)
	ConnectionBanned(userID string, reportCount int)
}

// user is one registry entry. partnerID is a weak back-reference: it is only
// ever compared and re-looked-up, never held as a *user.
type user struct {
	id           string
	conn         Transport
	interests    []protocol.Interest
	hasVideo     bool
	partnerID    string
	waitingSince time.Time
	blocked      map[string]bool // ids this user refuses to match with
}

// Config holds hub tunables.
type Config struct {
	ReportThreshold int // reports before forced disconnect; 0 means default
}

// Hub is the coordinator state container. Every exported method takes the
// single mutex, re-validates that the acting connection (and partner, where
// relevant) still exists, and no-ops silently when it does not.
type Hub struct {
	mu      sync.Mutex
	users   map[string]*user
	waiting []string        // waiting pool in insertion order
	pooled  map[string]bool // pool membership for O(1) checks
	typing  map[string]bool // sender-side typing state, for teardown cleanup
	reports map[string]int  // reportedID -> report count
	pairs   int             // number of active sessions

	threshold int
	sink      ReportSink
	events    EventSink
	now       func() time.Time
}

// New creates an empty Hub. Both sinks may be nil, in which case reports are
// counted but not persisted and no events are published.
func New(cfg Config, sink ReportSink, events EventSink) *Hub {
	threshold := cfg.ReportThreshold
	if threshold <= 0 {
		threshold = DefaultReportThreshold
	}
	return &Hub{
		users:     make(map[string]*user),
		pooled:    make(map[string]bool),
		typing:    make(map[string]bool),
		reports:   make(map[string]int),
		threshold: threshold,
		sink:      sink,
		events:    events,
		now:       time.Now,
	}
}

// Register adds a new connection to the registry and sends it its assigned
// id. Ids are generated by the transport layer and never reused.
func (h *Hub) Register(id string, conn Transport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.users[id] = &user{
		id:      id,
		conn:    conn,
		blocked: make(map[string]bool),
	}
	metrics.Connections.Set(float64(len(h.users)))

	h.sendLocked(id, protocol.TypeConnection, protocol.ConnectionData{UserID: id})
}

// Disconnect purges a connection from every structure: any active session is
// torn down (the partner is notified), pool membership is dropped, and the
// registry entry is removed. Safe to call for ids that are already gone.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok {
		return
	}
	if u.partnerID != "" {
		h.endSessionLocked(id)
	}
	h.removeFromPoolLocked(id)
	delete(h.typing, id)
	delete(h.reports, id)
	delete(h.users, id)

	metrics.Connections.Set(float64(len(h.users)))
	metrics.Waiting.Set(float64(len(h.waiting)))
}

// Exists reports whether the id is a live registry entry.
func (h *Hub) Exists(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.users[id]
	return ok
}

// Stats is an aggregate snapshot for the read-only stats surface.
type Stats struct {
	OnlineCount        int `json:"onlineCount"`
	WaitingCount       int `json:"waitingCount"`
	ActiveSessionCount int `json:"activeSessionCount"`
}

// Snapshot returns the current aggregate counts.
func (h *Hub) Snapshot() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		OnlineCount:        len(h.users),
		WaitingCount:       len(h.waiting),
		ActiveSessionCount: h.pairs,
	}
}

// sendLocked builds a server frame and writes it to the given connection.
// Best-effort: unknown ids and transport errors are silently dropped, never
// retried, never surfaced to the sender. Delivery to a given id preserves
// send order because the transport serializes its writes.
func (h *Hub) sendLocked(id, msgType string, data interface{}) {
	u, ok := h.users[id]
	if !ok {
		return
	}
	frame, err := protocol.NewServerMessage(msgType, data)
	if err != nil {
		log.Printf("hub: build %s frame for %s: %v", msgType, id, err)
		return
	}
	_ = u.conn.WriteMessage(frame)
}

// sendRawLocked writes pre-encoded frame bytes to the given connection,
// best-effort. Used for signaling passthrough.
func (h *Hub) sendRawLocked(id string, frame []byte) {
	u, ok := h.users[id]
	if !ok {
		return
	}
	_ = u.conn.WriteMessage(frame)
}

// removeFromPoolLocked drops an id from the waiting pool, preserving the
// insertion order of the remaining members. No-op if absent.
func (h *Hub) removeFromPoolLocked(id string) {
	if !h.pooled[id] {
		return
	}
	delete(h.pooled, id)
	for i, wid := range h.waiting {
		if wid == id {
			h.waiting = append(h.waiting[:i], h.waiting[i+1:]...)
			break
		}
	}
}
