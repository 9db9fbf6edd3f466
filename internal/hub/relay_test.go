package hub

import (
	"testing"

	"github.com/pairwise/chat-app/internal/protocol"
)

// pair registers both ids and matches them with each other.
func pair(t *testing.T, h *Hub, a, b string) (*fakeConn, *fakeConn) {
	t.Helper()
	connA := register(t, h, a)
	connB := register(t, h, b)
	h.StartMatching(a, nil, false)
	h.StartMatching(b, nil, false)
	if h.partnerOf(a) != b {
		t.Fatalf("setup: %s and %s did not pair", a, b)
	}
	return connA, connB
}

func TestRelayChat_StampsAndForwards(t *testing.T) {
	h, _ := newTestHub(t)
	alice, bob := pair(t, h, "alice", "bob")

	h.RelayChat("alice", "hello there")

	var msg protocol.ChatMessageData
	decodeData(t, bob.lastOfType(protocol.TypeChatMessage), &msg)
	if msg.Content != "hello there" {
		t.Errorf("content = %q", msg.Content)
	}
	if msg.SenderID != "alice" {
		t.Errorf("senderId = %q, want alice", msg.SenderID)
	}
	if msg.ID == "" {
		t.Error("relayed message missing id")
	}
	if msg.Timestamp == 0 {
		t.Error("relayed message missing timestamp")
	}
	// Sender does not get an echo.
	if alice.countOfType(protocol.TypeChatMessage) != 0 {
		t.Error("chat message echoed back to sender")
	}
}

func TestRelayChat_WithoutPartnerIsDropped(t *testing.T) {
	h, _ := newTestHub(t)
	conn := register(t, h, "alice")

	h.RelayChat("alice", "into the void")

	if conn.countOfType(protocol.TypeChatMessage) != 0 {
		t.Error("unpaired chat message was delivered somewhere")
	}
}

func TestRelayTyping_Forwards(t *testing.T) {
	h, _ := newTestHub(t)
	_, bob := pair(t, h, "alice", "bob")

	h.RelayTyping("alice", true)

	var data protocol.TypingData
	decodeData(t, bob.lastOfType(protocol.TypeTypingStatus), &data)
	if !data.IsTyping {
		t.Error("isTyping = false, want true")
	}
}

func TestRelayRead_Forwards(t *testing.T) {
	h, _ := newTestHub(t)
	_, bob := pair(t, h, "alice", "bob")

	h.RelayRead("alice", "msg-42")

	var data protocol.ReadData
	decodeData(t, bob.lastOfType(protocol.TypeMessageRead), &data)
	if data.MessageID != "msg-42" {
		t.Errorf("messageId = %q, want msg-42", data.MessageID)
	}
}

// Signaling frames pass through byte for byte.
func TestRelaySignal_PassesFrameThrough(t *testing.T) {
	h, _ := newTestHub(t)
	_, bob := pair(t, h, "alice", "bob")

	frame := []byte(`{"type":"webrtc-offer","data":{"sdp":"v=0","type":"offer"}}`)
	h.RelaySignal("alice", frame)

	bob.mu.Lock()
	defer bob.mu.Unlock()
	last := bob.raw[len(bob.raw)-1]
	if string(last) != string(frame) {
		t.Errorf("forwarded frame = %s, want %s", last, frame)
	}
}

func TestEndSession_TearsDownBothSides(t *testing.T) {
	h, _ := newTestHub(t)
	alice, bob := pair(t, h, "alice", "bob")

	h.EndSession("alice")

	if h.partnerOf("alice") != "" || h.partnerOf("bob") != "" {
		t.Error("partner links survived end-chat")
	}
	if alice.countOfType(protocol.TypeChatEnded) != 1 {
		t.Error("initiator missing chat-ended")
	}
	if bob.countOfType(protocol.TypeChatEnded) != 1 {
		t.Error("partner missing chat-ended")
	}
	if got := h.Snapshot().ActiveSessionCount; got != 0 {
		t.Errorf("ActiveSessionCount = %d, want 0", got)
	}
}

func TestEndSession_WithoutPartnerIsNoOp(t *testing.T) {
	h, _ := newTestHub(t)
	conn := register(t, h, "alice")

	h.EndSession("alice")

	if conn.countOfType(protocol.TypeChatEnded) != 0 {
		t.Error("chat-ended sent to an unpaired connection")
	}
	if stats := h.Snapshot(); stats.ActiveSessionCount != 0 || stats.WaitingCount != 0 {
		t.Errorf("state mutated: %+v", stats)
	}
}

func TestFindNewChat_EndsThenRequeues(t *testing.T) {
	h, _ := newTestHub(t)
	alice, bob := pair(t, h, "alice", "bob")

	h.FindNewChat("alice")

	if bob.countOfType(protocol.TypeChatEnded) != 1 {
		t.Error("left-behind partner missing chat-ended")
	}
	if got := h.Snapshot().WaitingCount; got != 1 {
		t.Errorf("WaitingCount = %d, want 1", got)
	}
	var ack protocol.MatchingData
	decodeData(t, alice.lastOfType(protocol.TypeMatching), &ack)
	if ack.Status != protocol.StatusSearching {
		t.Errorf("matching status = %q", ack.Status)
	}
}

// find-new-chat can pair with a waiter in the same call.
func TestFindNewChat_MatchesImmediately(t *testing.T) {
	h, _ := newTestHub(t)
	pair(t, h, "alice", "bob")
	register(t, h, "carol")
	h.StartMatching("carol", nil, false)

	h.FindNewChat("alice")

	if h.partnerOf("alice") != "carol" {
		t.Errorf("alice partner = %q, want carol", h.partnerOf("alice"))
	}
	if h.partnerOf("bob") != "" {
		t.Error("bob still linked to alice")
	}
}

func TestRelayTyping_ClearedOnSessionEnd(t *testing.T) {
	h, _ := newTestHub(t)
	pair(t, h, "alice", "bob")

	h.RelayTyping("alice", true)
	h.EndSession("bob")

	h.mu.Lock()
	_, ok := h.typing["alice"]
	h.mu.Unlock()
	if ok {
		t.Error("typing state survived session teardown")
	}
}
