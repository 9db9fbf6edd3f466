package ws

import (
	"testing"

	"github.com/pairwise/chat-app/internal/protocol"
)

func TestDispatch_RoutesByType(t *testing.T) {
	d := NewDispatcher()
	conn := &Connection{ID: "c1"}

	var got interface{}
	d.Register(protocol.TypeChatMessage, func(c *Connection, msg interface{}) {
		if c.ID != "c1" {
			t.Errorf("handler conn = %q, want c1", c.ID)
		}
		got = msg
	})

	d.Dispatch(conn, []byte(`{"type":"chat-message","data":{"content":"hi"}}`))

	m, ok := got.(protocol.ChatMsg)
	if !ok {
		t.Fatalf("payload type %T, want protocol.ChatMsg", got)
	}
	if m.Content != "hi" {
		t.Errorf("content = %q, want hi", m.Content)
	}
}

func TestDispatch_MalformedFrameIsDropped(t *testing.T) {
	d := NewDispatcher()
	conn := &Connection{ID: "c1"}

	called := false
	d.Register(protocol.TypeChatMessage, func(*Connection, interface{}) { called = true })

	d.Dispatch(conn, []byte(`{"type":"chat-message","data":{"content":""}}`))
	d.Dispatch(conn, []byte(`not json at all`))

	if called {
		t.Error("handler invoked for malformed frame")
	}
}

func TestDispatch_UnknownTypeIsIgnored(t *testing.T) {
	d := NewDispatcher()
	conn := &Connection{ID: "c1"}

	// Must not panic with nothing registered.
	d.Dispatch(conn, []byte(`{"type":"join-room","data":{}}`))

	// A known type with no handler is also a quiet no-op.
	d.Dispatch(conn, []byte(`{"type":"end-chat"}`))
}
