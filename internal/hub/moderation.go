package hub

import (
	"log"

	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
	"github.com/pairwise/chat-app/internal/report"
)

// Block adds the current partner to the caller's block set, confirms with
// block-success, and ends the session. Blocks are directional: the partner
// is not notified and may still be matched with others, but no future scan
// will pair these two in either direction. A caller with no partner is a
// no-op.
func (h *Hub) Block(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}

	blockedID := u.partnerID
	u.blocked[blockedID] = true

	h.sendLocked(id, protocol.TypeBlockSuccess, protocol.BlockSuccessData{BlockedUserID: blockedID})
	h.endSessionLocked(id)

	log.Printf("hub: %s blocked %s", id, blockedID)
}

// Report files a report against the caller's current partner. The report is
// handed to the durable sink (fire-and-forget) and counted in memory per
// reported id; reaching the threshold forcibly closes the reported
// connection and purges it from the registry without further notification.
// The reporter's own session is always ended. A caller with no partner is a
// no-op.
func (h *Hub) Report(id string, reason protocol.ReportReason, details string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok || u.partnerID == "" {
		return
	}
	reportedID := u.partnerID

	if h.sink != nil {
		h.sink.Record(report.Report{
			ReporterID: id,
			ReportedID: reportedID,
			Reason:     string(reason),
			Details:    details,
			Timestamp:  h.now(),
		})
	}
	if h.events != nil {
		h.events.ReportFiled(id, reportedID, string(reason))
	}
	metrics.Reports.Inc()

	h.reports[reportedID]++
	count := h.reports[reportedID]
	log.Printf("hub: %s reported %s reason=%s count=%d", id, reportedID, reason, count)

	if count >= h.threshold {
		h.banLocked(reportedID, count)
	}

	h.endSessionLocked(id)
}

// banLocked forcibly closes the target's transport and purges its registry
// entry. No message is sent to the target. Partner links stay as they are;
// the reporter's own teardown resolves the vanished partner through the
// registry and cleans up only its side, the same guarded path a disconnect
// race takes.
func (h *Hub) banLocked(id string, count int) {
	u, ok := h.users[id]
	if !ok {
		return
	}

	h.removeFromPoolLocked(id)
	delete(h.typing, id)
	delete(h.reports, id)
	delete(h.users, id)
	_ = u.conn.Close()

	metrics.Connections.Set(float64(len(h.users)))
	metrics.Waiting.Set(float64(len(h.waiting)))
	metrics.Bans.Inc()

	if h.events != nil {
		h.events.ConnectionBanned(id, count)
	}

	log.Printf("hub: banned %s after %d reports", id, count)
}
