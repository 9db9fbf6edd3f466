// Package protocol defines the WebSocket message envelope and the closed set
// of message kinds exchanged between clients and the coordinator. Every frame
// is a JSON object of the form {"type": <string>, "data": <object>}; the type
// discriminator selects how the data object is decoded. Frames are validated
// once here, at the boundary, so handlers downstream never re-check shapes.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Client -> Server message types.
const (
	TypeStartMatching  = "start-matching"
	TypeCancelMatching = "cancel-matching"
	TypeChatMessage    = "chat-message"
	TypeEndChat        = "end-chat"
	TypeFindNewChat    = "find-new-chat"
	TypeReportUser     = "report-user"
	TypeTypingStatus   = "typing-status"
	TypeMessageRead    = "message-read"
	TypeBlockUser      = "block-user"
)

// WebRTC signaling types. These flow in both directions and their data
// objects are relayed byte-for-byte, never decoded.
const (
	TypeWebRTCOffer        = "webrtc-offer"
	TypeWebRTCAnswer       = "webrtc-answer"
	TypeWebRTCICECandidate = "webrtc-ice-candidate"
)

// Server -> Client message types. chat-message, typing-status and
// message-read reuse the inbound constants with server-side data shapes.
const (
	TypeConnection   = "connection"
	TypeMatching     = "matching"
	TypeMatched      = "matched"
	TypeChatEnded    = "chat-ended"
	TypeBlockSuccess = "block-success"
)

// Content limits for relayed chat messages.
const (
	MaxMessageBytes = 4096 // max content size in bytes
	MaxTextChars    = 2000 // max content size in characters
)

// ---------------------------------------------------------------------------
// Closed enumerations
// ---------------------------------------------------------------------------

// Interest is one tag from the fixed enumeration used for matching affinity.
type Interest string

// Interests is the full set of valid interest tags, in display order.
var Interests = []Interest{
	"Music", "Movies", "Sports", "Gaming", "Technology", "Art", "Travel",
	"Food", "Fashion", "Books", "Science", "Photography", "History",
	"Fitness", "Politics", "Languages", "Dance", "Writing", "Cooking",
	"Pets", "Nature", "Programming", "Education", "Design", "Cars",
}

var validInterests = func() map[Interest]bool {
	m := make(map[Interest]bool, len(Interests))
	for _, i := range Interests {
		m[i] = true
	}
	return m
}()

// ValidInterest reports whether the tag is part of the closed enumeration.
func ValidInterest(i Interest) bool {
	return validInterests[i]
}

// FilterInterests returns only the tags that belong to the closed
// enumeration, preserving order and dropping duplicates.
func FilterInterests(tags []Interest) []Interest {
	out := make([]Interest, 0, len(tags))
	seen := make(map[Interest]bool, len(tags))
	for _, tag := range tags {
		if validInterests[tag] && !seen[tag] {
			out = append(out, tag)
			seen[tag] = true
		}
	}
	return out
}

// ReportReason is the closed set of reasons a user can be reported for.
type ReportReason string

const (
	ReasonInappropriate ReportReason = "inappropriate"
	ReasonSpam          ReportReason = "spam"
	ReasonOffensive     ReportReason = "offensive"
	ReasonOther         ReportReason = "other"
)

// ValidReason reports whether the reason is part of the closed enumeration.
func ValidReason(r ReportReason) bool {
	switch r {
	case ReasonInappropriate, ReasonSpam, ReasonOffensive, ReasonOther:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the outer frame shape. Data is kept raw so that the payload is
// decoded exactly once, by type, and so that signaling payloads can be
// forwarded without ever being interpreted.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ---------------------------------------------------------------------------
// Client -> Server payloads
// ---------------------------------------------------------------------------

// StartMatchingMsg carries the caller's matching preferences.
type StartMatchingMsg struct {
	Interests []Interest `json:"interests"`
	HasVideo  bool       `json:"hasVideo"`
}

// CancelMatchingMsg has no fields.
type CancelMatchingMsg struct{}

// ChatMsg is a text message addressed to the current partner.
type ChatMsg struct {
	Content string `json:"content"`
}

// EndChatMsg has no fields.
type EndChatMsg struct{}

// FindNewChatMsg has no fields.
type FindNewChatMsg struct{}

// ReportMsg reports the current partner.
type ReportMsg struct {
	Reason  ReportReason `json:"reason"`
	Details string       `json:"details,omitempty"`
}

// TypingMsg carries the caller's typing indicator.
type TypingMsg struct {
	IsTyping bool `json:"isTyping"`
}

// ReadMsg acknowledges that a relayed message was read.
type ReadMsg struct {
	MessageID string `json:"messageId"`
}

// BlockMsg has no fields; the target is always the current partner.
type BlockMsg struct{}

// SignalMsg wraps a webrtc-* frame. Frame holds the complete original
// envelope bytes so the relay can forward them untouched.
type SignalMsg struct {
	Type  string
	Frame []byte
}

// ---------------------------------------------------------------------------
// Server -> Client payloads
// ---------------------------------------------------------------------------

// ConnectionData announces the id assigned to a new connection.
type ConnectionData struct {
	UserID string `json:"userId"`
}

// MatchingData acknowledges entry into the waiting pool.
type MatchingData struct {
	Status string `json:"status"`
}

// StatusSearching is the only matching status the coordinator emits.
const StatusSearching = "searching"

// MatchedData announces a pairing. HasVideo echoes the recipient's own
// preference, not a negotiated value.
type MatchedData struct {
	PartnerID       string     `json:"partnerId"`
	SharedInterests []Interest `json:"sharedInterests"`
	HasVideo        bool       `json:"hasVideo"`
}

// ChatMessageData is a relayed chat message, stamped by the coordinator.
type ChatMessageData struct {
	ID        string `json:"id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds
}

// ChatEndedData has no fields.
type ChatEndedData struct{}

// TypingData relays the partner's typing indicator.
type TypingData struct {
	IsTyping bool `json:"isTyping"`
}

// ReadData relays a read receipt.
type ReadData struct {
	MessageID string `json:"messageId"`
}

// BlockSuccessData confirms a block to the caller.
type BlockSuccessData struct {
	BlockedUserID string `json:"blockedUserId"`
}

// ---------------------------------------------------------------------------
// Codec
// ---------------------------------------------------------------------------

// ErrUnknownType marks a well-formed frame whose type is outside the closed
// inbound set. Such frames are ignored, not treated as malformed.
var ErrUnknownType = errors.New("protocol: unknown message type")

// ParseClientMessage decodes raw frame bytes into a typed client message.
// It returns the type string, the decoded payload struct, and an error for
// frames that are unparseable or missing required fields. Unknown types
// return ErrUnknownType so the caller can ignore them without escalation.
func ParseClientMessage(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: unparseable frame: %w", err)
	}
	if env.Type == "" {
		return "", nil, fmt.Errorf("protocol: frame has no type")
	}

	switch env.Type {
	case TypeStartMatching:
		var m StartMatchingMsg
		if err := decodeData(env, &m); err != nil {
			return env.Type, nil, err
		}
		m.Interests = FilterInterests(m.Interests)
		return env.Type, m, nil

	case TypeCancelMatching:
		return env.Type, CancelMatchingMsg{}, nil

	case TypeChatMessage:
		var m ChatMsg
		if err := decodeData(env, &m); err != nil {
			return env.Type, nil, err
		}
		if err := validateContent(m.Content); err != nil {
			return env.Type, nil, err
		}
		return env.Type, m, nil

	case TypeEndChat:
		return env.Type, EndChatMsg{}, nil

	case TypeFindNewChat:
		return env.Type, FindNewChatMsg{}, nil

	case TypeReportUser:
		var m ReportMsg
		if err := decodeData(env, &m); err != nil {
			return env.Type, nil, err
		}
		if !ValidReason(m.Reason) {
			return env.Type, nil, fmt.Errorf("protocol: invalid report reason %q", m.Reason)
		}
		return env.Type, m, nil

	case TypeTypingStatus:
		var m TypingMsg
		if err := decodeData(env, &m); err != nil {
			return env.Type, nil, err
		}
		return env.Type, m, nil

	case TypeMessageRead:
		var m ReadMsg
		if err := decodeData(env, &m); err != nil {
			return env.Type, nil, err
		}
		if m.MessageID == "" {
			return env.Type, nil, fmt.Errorf("protocol: message-read without messageId")
		}
		return env.Type, m, nil

	case TypeBlockUser:
		return env.Type, BlockMsg{}, nil

	case TypeWebRTCOffer, TypeWebRTCAnswer, TypeWebRTCICECandidate:
		// Signaling envelopes are opaque; keep the original bytes intact.
		frame := make([]byte, len(data))
		copy(frame, data)
		return env.Type, SignalMsg{Type: env.Type, Frame: frame}, nil
	}

	return env.Type, nil, ErrUnknownType
}

// decodeData unmarshals the envelope's data object into dst. A missing or
// null data object is an error for payload-carrying types.
func decodeData(env Envelope, dst interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return fmt.Errorf("protocol: %s frame without data object", env.Type)
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("protocol: bad %s payload: %w", env.Type, err)
	}
	return nil
}

// validateContent enforces the relay limits on chat message content.
func validateContent(text string) error {
	if len(text) == 0 {
		return fmt.Errorf("protocol: chat-message with empty content")
	}
	if len(text) > MaxMessageBytes {
		return fmt.Errorf("protocol: content exceeds %d byte limit", MaxMessageBytes)
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("protocol: content exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("protocol: content is not valid UTF-8")
	}
	return nil
}

// NewServerMessage builds the wire bytes for a server frame of the given
// type carrying the given data payload.
func NewServerMessage(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s payload: %w", msgType, err)
	}
	out, err := json.Marshal(Envelope{Type: msgType, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("protocol: marshal %s frame: %w", msgType, err)
	}
	return out, nil
}
