package hub

import (
	"github.com/google/uuid"

	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
)

// RelayChat stamps a fresh message id, the sender id and a timestamp onto
// the content and forwards it verbatim to the partner. A sender with no
// partner, or a partner that vanished between scheduling and execution, is
// a silent no-op.
func (h *Hub) RelayChat(id, content string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	h.sendLocked(u.partnerID, protocol.TypeChatMessage, protocol.ChatMessageData{
		ID:        uuid.New().String(),
		SenderID:  id,
		Content:   content,
		Timestamp: h.now().UnixMilli(),
	})
	metrics.Relayed.WithLabelValues("chat").Inc()
}

// RelayTyping records the sender's typing state (kept only so teardown can
// clear it) and forwards the boolean as-is to the partner.
func (h *Hub) RelayTyping(id string, isTyping bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	h.typing[id] = isTyping
	h.sendLocked(u.partnerID, protocol.TypeTypingStatus, protocol.TypingData{IsTyping: isTyping})
	metrics.Relayed.WithLabelValues("typing").Inc()
}

// RelayRead forwards a read receipt to the partner. The message id is
// opaque to the coordinator.
func (h *Hub) RelayRead(id, messageID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	h.sendLocked(u.partnerID, protocol.TypeMessageRead, protocol.ReadData{MessageID: messageID})
	metrics.Relayed.WithLabelValues("read").Inc()
}

// RelaySignal forwards a webrtc-* frame to the partner byte-for-byte. The
// payload is never inspected; the coordinator is a pure pass-through for
// signaling envelopes.
func (h *Hub) RelaySignal(id string, frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	h.sendRawLocked(u.partnerID, frame)
	metrics.Relayed.WithLabelValues("signal").Inc()
}

// EndSession tears down the caller's session, if any. Both sides end with a
// cleared partner id and both (if still connected) receive chat-ended, even
// though only one side initiated the teardown.
func (h *Hub) EndSession(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.endSessionLocked(id)
}

// FindNewChat is EndSession followed immediately by StartMatching with the
// preferences already on record, executed as one atomic step under the hub
// lock so no other handler observes the intermediate unpaired state.
func (h *Hub) FindNewChat(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok {
		return
	}

	h.endSessionLocked(id)

	if !h.pooled[id] {
		h.waiting = append(h.waiting, id)
		h.pooled[id] = true
	}
	u.waitingSince = h.now()
	metrics.Waiting.Set(float64(len(h.waiting)))

	h.scanLocked(id)

	h.sendLocked(id, protocol.TypeMatching, protocol.MatchingData{Status: protocol.StatusSearching})
}

// endSessionLocked is the idempotent teardown primitive. A caller with no
// partner is a no-op: no message, no state change. Otherwise both partner
// links are cleared, both typing states dropped, and chat-ended sent to
// whichever ends are still connected. The partner is re-resolved through
// the registry; a vanished partner leaves only the caller to clean up.
func (h *Hub) endSessionLocked(id string) {
	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	partnerID := u.partnerID
	u.partnerID = ""
	delete(h.typing, id)
	h.pairs--
	metrics.ActiveSessions.Set(float64(h.pairs))

	h.sendLocked(id, protocol.TypeChatEnded, protocol.ChatEndedData{})

	if p, ok := h.users[partnerID]; ok {
		p.partnerID = ""
		delete(h.typing, partnerID)
		h.sendLocked(partnerID, protocol.TypeChatEnded, protocol.ChatEndedData{})
	}
}

// partnerOf returns the caller's current partner id, or "" when unpaired.
func (h *Hub) partnerOf(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if u, ok := h.users[id]; ok {
		return u.partnerID
	}
	return ""
}
