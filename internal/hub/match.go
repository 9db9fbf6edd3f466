package hub

import (
	"log"
	"time"

	"github.com/pairwise/chat-app/internal/metrics"
	"github.com/pairwise/chat-app/internal/protocol"
)

// Scoring constants for the pairing scan.
const (
	waitBonusUnit = 10 * time.Second // one bonus point per 10s waited
	waitBonusCap  = 5.0              // wait bonus saturates at 50s
	interestBonus = 2.0              // points per shared interest
)

// StartMatching stores the caller's preferences and enters it into the
// waiting pool. If the caller is currently paired, that session is ended
// first. The pool is then scanned once, from the caller's perspective only;
// other waiters are not re-scored. A matching acknowledgement is sent
// regardless of the scan outcome.
func (h *Hub) StartMatching(id string, interests []protocol.Interest, hasVideo bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	u, ok := h.users[id]
	if !ok {
		return
	}

	u.interests = interests
	u.hasVideo = hasVideo

	if u.partnerID != "" {
		h.endSessionLocked(id)
	}

	if !h.pooled[id] {
		h.waiting = append(h.waiting, id)
		h.pooled[id] = true
	}
	u.waitingSince = h.now()
	metrics.Waiting.Set(float64(len(h.waiting)))

	h.scanLocked(id)

	h.sendLocked(id, protocol.TypeMatching, protocol.MatchingData{Status: protocol.StatusSearching})
}

// CancelMatching removes the caller from the waiting pool. No message is
// produced; once removed, no matched event can arrive for that attempt.
func (h *Hub) CancelMatching(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromPoolLocked(id)
	metrics.Waiting.Set(float64(len(h.waiting)))
}

// scanLocked runs one pairing scan from the seeker's perspective. Pool
// members are iterated in insertion order; the first highest-scoring
// eligible candidate wins (strictly-greater comparison, so ties keep the
// earliest). If nobody qualifies the seeker stays queued and is only paired
// by a later seeker's scan or its own next StartMatching call.
func (h *Hub) scanLocked(seekerID string) {
	seeker, ok := h.users[seekerID]
	if !ok || !h.pooled[seekerID] {
		return
	}

	now := h.now()
	bestID := ""
	bestScore := -1.0

	for _, cid := range h.waiting {
		if cid == seekerID {
			continue
		}
		cand, ok := h.users[cid]
		if !ok {
			continue
		}
		if seeker.hasVideo != cand.hasVideo {
			continue
		}
		// A block in either direction disqualifies the pair.
		if seeker.blocked[cid] || cand.blocked[seekerID] {
			continue
		}

		score := waitScore(now.Sub(cand.waitingSince)) +
			interestBonus*float64(len(sharedInterests(seeker.interests, cand.interests)))
		if score > bestScore {
			bestScore = score
			bestID = cid
		}
	}

	if bestID != "" {
		h.pairLocked(seekerID, bestID)
	}
}

// waitScore converts a candidate's time in the pool into its score bonus:
// one point per waitBonusUnit, capped at waitBonusCap. Long-waiting members
// accrue this bonus to offset never being re-scanned themselves.
func waitScore(waited time.Duration) float64 {
	score := float64(waited) / float64(waitBonusUnit)
	if score > waitBonusCap {
		return waitBonusCap
	}
	if score < 0 {
		return 0
	}
	return score
}

// sharedInterests returns the intersection of a and b, in a's order.
func sharedInterests(a, b []protocol.Interest) []protocol.Interest {
	set := make(map[protocol.Interest]bool, len(b))
	for _, i := range b {
		set[i] = true
	}
	shared := make([]protocol.Interest, 0, len(a))
	for _, i := range a {
		if set[i] {
			shared = append(shared, i)
		}
	}
	return shared
}

// pairLocked links the seeker and the chosen candidate: both leave the pool,
// partner ids are set symmetrically, and each side receives a matched event
// carrying the partner's id, the shared-interest set, and its own hasVideo
// preference.
func (h *Hub) pairLocked(seekerID, candID string) {
	seeker, sok := h.users[seekerID]
	cand, cok := h.users[candID]
	if !sok || !cok {
		return
	}

	h.removeFromPoolLocked(seekerID)
	h.removeFromPoolLocked(candID)
	metrics.Waiting.Set(float64(len(h.waiting)))

	seeker.partnerID = candID
	cand.partnerID = seekerID
	h.pairs++
	metrics.ActiveSessions.Set(float64(h.pairs))

	shared := sharedInterests(seeker.interests, cand.interests)

	h.sendLocked(seekerID, protocol.TypeMatched, protocol.MatchedData{
		PartnerID:       candID,
		SharedInterests: shared,
		HasVideo:        seeker.hasVideo,
	})
	h.sendLocked(candID, protocol.TypeMatched, protocol.MatchedData{
		PartnerID:       seekerID,
		SharedInterests: shared,
		HasVideo:        cand.hasVideo,
	})

	log.Printf("hub: paired %s with %s shared=%d", seekerID, candID, len(shared))
}
