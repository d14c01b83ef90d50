package ws

import "encoding/json"

// MessageType constants for the assessment stream protocol.
const (
	// Client -> Server
	TypeWatchAssessment = "watch_assessment"
	TypePing            = "ping"

	// Server -> Client
	TypeTimerTick    = "timer_tick"
	TypeTimerExpired = "timer_expired"
	TypeWatchAck     = "watch_ack"
	TypeError        = "error"
	TypePong         = "pong"
)

// Message wraps every stream payload with a type and optional request id.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// Client messages (incoming)

type WatchAssessmentPayload struct {
	AssessmentID string `json:"assessment_id"`
}

// Server messages (outgoing)

type TimerTickPayload struct {
	AssessmentID     string `json:"assessment_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	TotalSeconds     int    `json:"total_seconds"`
}

type TimerExpiredPayload struct {
	AssessmentID string `json:"assessment_id"`
}

type WatchAckPayload struct {
	AssessmentID     string `json:"assessment_id"`
	RemainingSeconds int    `json:"remaining_seconds"`
	TotalSeconds     int    `json:"total_seconds"`
	Expired          bool   `json:"expired"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Encode marshals a payload into a Message, panicking only on types that
// cannot marshal, which none of the payloads above are.
func Encode(msgType string, payload interface{}) Message {
	raw, _ := json.Marshal(payload)
	return Message{Type: msgType, Payload: raw}
}
