package hub

import (
	"testing"
	"time"

	"github.com/pairwise/chat-app/internal/protocol"
)

func interests(tags ...string) []protocol.Interest {
	out := make([]protocol.Interest, len(tags))
	for i, tag := range tags {
		out[i] = protocol.Interest(tag)
	}
	return out
}

func TestMatching_AckWhenPoolEmpty(t *testing.T) {
	h, _ := newTestHub(t)
	conn := register(t, h, "alice")

	h.StartMatching("alice", interests("Music"), false)

	var ack protocol.MatchingData
	decodeData(t, conn.lastOfType(protocol.TypeMatching), &ack)
	if ack.Status != protocol.StatusSearching {
		t.Errorf("matching status = %q, want %q", ack.Status, protocol.StatusSearching)
	}
	if got := h.Snapshot().WaitingCount; got != 1 {
		t.Errorf("WaitingCount = %d, want 1", got)
	}
}

func TestMatching_PairsWithSharedInterests(t *testing.T) {
	h, _ := newTestHub(t)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.StartMatching("alice", interests("Music", "Art"), false)
	h.StartMatching("bob", interests("Art", "Books"), false)

	var aliceMatch, bobMatch protocol.MatchedData
	decodeData(t, alice.lastOfType(protocol.TypeMatched), &aliceMatch)
	decodeData(t, bob.lastOfType(protocol.TypeMatched), &bobMatch)

	if aliceMatch.PartnerID != "bob" || bobMatch.PartnerID != "alice" {
		t.Errorf("partner ids %q / %q, want bob / alice", aliceMatch.PartnerID, bobMatch.PartnerID)
	}
	if len(aliceMatch.SharedInterests) != 1 || aliceMatch.SharedInterests[0] != "Art" {
		t.Errorf("alice sharedInterests = %v, want [Art]", aliceMatch.SharedInterests)
	}
	if len(bobMatch.SharedInterests) != 1 || bobMatch.SharedInterests[0] != "Art" {
		t.Errorf("bob sharedInterests = %v, want [Art]", bobMatch.SharedInterests)
	}

	stats := h.Snapshot()
	if stats.WaitingCount != 0 || stats.ActiveSessionCount != 1 {
		t.Errorf("stats after pairing = %+v", stats)
	}
}

// A successful immediate pairing still sends the searching ack to the
// second seeker, after the matched event.
func TestMatching_MatchedPrecedesAck(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	bob := register(t, h, "bob")

	h.StartMatching("alice", nil, false)
	h.StartMatching("bob", nil, false)

	types := bob.typesSent()
	matchedAt, ackAt := -1, -1
	for i, typ := range types {
		switch typ {
		case protocol.TypeMatched:
			matchedAt = i
		case protocol.TypeMatching:
			ackAt = i
		}
	}
	if matchedAt < 0 || ackAt < 0 {
		t.Fatalf("missing frames, sequence %v", types)
	}
	if matchedAt > ackAt {
		t.Errorf("matched arrived after matching ack: %v", types)
	}
}

func TestMatching_VideoPrefsMustAgree(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	register(t, h, "bob")
	register(t, h, "carol")

	h.StartMatching("alice", nil, true)
	h.StartMatching("bob", nil, false)
	if h.partnerOf("bob") != "" {
		t.Fatal("paired despite differing hasVideo")
	}

	h.StartMatching("carol", nil, true)
	if h.partnerOf("carol") != "alice" {
		t.Errorf("carol partner = %q, want alice", h.partnerOf("carol"))
	}
}

// Each side's matched event carries its own video preference.
func TestMatching_MatchedEchoesOwnVideoPref(t *testing.T) {
	h, _ := newTestHub(t)
	alice := register(t, h, "alice")
	bob := register(t, h, "bob")

	h.StartMatching("alice", nil, true)
	h.StartMatching("bob", nil, true)

	var aliceMatch, bobMatch protocol.MatchedData
	decodeData(t, alice.lastOfType(protocol.TypeMatched), &aliceMatch)
	decodeData(t, bob.lastOfType(protocol.TypeMatched), &bobMatch)
	if !aliceMatch.HasVideo || !bobMatch.HasVideo {
		t.Errorf("hasVideo = %v / %v, want true / true", aliceMatch.HasVideo, bobMatch.HasVideo)
	}
}

// With equal scores the earliest pool entrant wins.
func TestMatching_TieKeepsPoolOrder(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "first")
	register(t, h, "second")
	register(t, h, "seeker")

	// Make first and second mutually unmatchable so both can sit in the
	// pool together, first ahead of second.
	h.StartMatching("first", nil, false)
	h.StartMatching("second", nil, false)
	h.Block("first")
	h.StartMatching("first", nil, false)
	h.StartMatching("second", nil, false)

	h.StartMatching("seeker", nil, false)
	if h.partnerOf("seeker") != "first" {
		t.Errorf("seeker partner = %q, want first", h.partnerOf("seeker"))
	}
}

// Two shared interests outweigh a short wait; a long enough wait
// outweighs interests, capped at 50 seconds of credit.
func TestMatching_WaitTimeBeatsInterests(t *testing.T) {
	h, clock := newTestHub(t)
	register(t, h, "patient")
	register(t, h, "hobbyist")
	register(t, h, "seeker")

	// Keep patient and hobbyist apart so both wait for the seeker.
	h.StartMatching("patient", nil, false)
	h.StartMatching("hobbyist", nil, false)
	h.Block("patient")

	h.StartMatching("patient", nil, false)
	clock.Advance(45 * time.Second) // worth 4.5 points, more than 2 shared interests
	h.StartMatching("hobbyist", interests("Music", "Art"), false)
	h.StartMatching("seeker", interests("Music", "Art"), false)

	if h.partnerOf("seeker") != "patient" {
		t.Errorf("seeker partner = %q, want patient", h.partnerOf("seeker"))
	}
}

func TestMatching_WaitBonusIsCapped(t *testing.T) {
	h, clock := newTestHub(t)
	register(t, h, "ancient")
	register(t, h, "hobbyist")
	register(t, h, "seeker")

	h.StartMatching("ancient", nil, false)
	h.StartMatching("hobbyist", nil, false)
	h.Block("ancient")

	h.StartMatching("ancient", nil, false)
	clock.Advance(10 * time.Minute) // capped at 5 points
	h.StartMatching("hobbyist", interests("Music", "Art", "Gaming"), false)
	h.StartMatching("seeker", interests("Music", "Art", "Gaming"), false)

	// hobbyist scores 6.0 on interests alone, beating the capped waiter.
	if h.partnerOf("seeker") != "hobbyist" {
		t.Errorf("seeker partner = %q, want hobbyist", h.partnerOf("seeker"))
	}
}

func TestMatching_BlockedPairsAreSkippedBothWays(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	register(t, h, "bob")
	register(t, h, "carol")

	h.StartMatching("alice", nil, false)
	h.StartMatching("bob", nil, false)
	h.Block("alice") // alice blocks bob, session ends

	// Blocker seeking: bob must be skipped.
	h.StartMatching("bob", nil, false)
	h.StartMatching("alice", nil, false)
	if h.partnerOf("alice") != "" {
		t.Fatalf("alice paired with %q despite block", h.partnerOf("alice"))
	}

	// bob is skipped for alice but stays matchable with everyone else.
	h.StartMatching("carol", nil, false)
	if h.partnerOf("carol") != "bob" {
		t.Errorf("carol partner = %q, want bob", h.partnerOf("carol"))
	}
}

func TestMatching_RestartWhileWaitingRefreshesPrefs(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	register(t, h, "bob")

	h.StartMatching("alice", nil, true)
	h.StartMatching("alice", nil, false) // change of heart on video

	if got := h.Snapshot().WaitingCount; got != 1 {
		t.Fatalf("WaitingCount = %d, want 1", got)
	}
	h.StartMatching("bob", nil, false)
	if h.partnerOf("bob") != "alice" {
		t.Errorf("bob partner = %q, want alice", h.partnerOf("bob"))
	}
}

// Starting a new search while paired tears down the current session first.
func TestMatching_WhilePairedEndsSession(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	bob := register(t, h, "bob")

	h.StartMatching("alice", nil, false)
	h.StartMatching("bob", nil, false)
	h.StartMatching("alice", nil, false)

	if h.partnerOf("bob") != "" {
		t.Error("bob still paired after alice restarted matching")
	}
	if bob.countOfType(protocol.TypeChatEnded) != 1 {
		t.Error("bob missing chat-ended after partner restarted matching")
	}
	if got := h.Snapshot().WaitingCount; got != 1 {
		t.Errorf("WaitingCount = %d, want 1", got)
	}
}

func TestCancelMatching_RemovesFromPool(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	register(t, h, "bob")

	h.StartMatching("alice", nil, false)
	h.CancelMatching("alice")

	if got := h.Snapshot().WaitingCount; got != 0 {
		t.Fatalf("WaitingCount = %d, want 0", got)
	}
	h.StartMatching("bob", nil, false)
	if h.partnerOf("bob") != "" {
		t.Error("cancelled waiter was still matched")
	}
}

// Matching only scans when a seeker arrives; two compatible users already
// idle in the pool stay unpaired until one of them re-enters.
func TestMatching_ScanOnlyOnArrival(t *testing.T) {
	h, _ := newTestHub(t)
	register(t, h, "alice")
	register(t, h, "bob")

	h.StartMatching("alice", nil, true)
	h.StartMatching("bob", nil, false)
	if h.partnerOf("alice") != "" {
		t.Fatal("incompatible users paired")
	}

	// bob flips to video; his re-entry triggers the scan that pairs them.
	h.StartMatching("bob", nil, true)
	if h.partnerOf("bob") != "alice" {
		t.Errorf("bob partner = %q, want alice", h.partnerOf("bob"))
	}
}
