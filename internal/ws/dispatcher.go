package ws

import (
	"errors"
	"log"

	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
)

// MessageHandler handles one parsed client message. msg is the concrete
// payload struct returned by protocol.ParseClientMessage for the type the
// handler was registered under.
type MessageHandler func(conn *Connection, msg interface{})

// Dispatcher parses inbound frames once and routes them to per-type
// handlers. It is the single entry point for all coordinator state
// mutation. Malformed frames are dropped with a diagnostic and the
// connection stays open; well-formed frames with an unknown type are
// ignored outright.
type Dispatcher struct {
	handlers map[string]MessageHandler
}

// NewDispatcher creates a Dispatcher with no handlers registered.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]MessageHandler)}
}

// Register associates a handler with a message type, replacing any
// previous registration.
func (d *Dispatcher) Register(msgType string, handler MessageHandler) {
	d.handlers[msgType] = handler
}

// Dispatch is the server's OnMessage callback. It runs on a worker
// goroutine; handlers serialize on the hub's own lock.
func (d *Dispatcher) Dispatch(conn *Connection, data []byte) {
	msgType, msg, err := protocol.ParseClientMessage(data)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			return
		}
		log.Printf("ws: dropping frame conn=%s: %v", conn.ID, err)
		metrics.DroppedFrames.WithLabelValues("malformed").Inc()
		return
	}

	if handler, ok := d.handlers[msgType]; ok {
		handler(conn, msg)
	}
}
