package api

import (
	"encoding/json"
	"time"
)

// Message types carried in Envelope.Type
const (
	TypePush         = "push"
	TypePushResponse = "push-response"
	TypePull         = "pull"
	TypePullResponse = "pull-response"
	TypeError        = "error"
)

// Envelope is the self-describing wrapper for every wire message.
// Payload holds the type-specific body and is decoded after Type is known.
type Envelope struct {
	SentAt  time.Time       `json:"sent_at"`           // SentAt sender wall-clock time, informational
	Type    string          `json:"type"`              // Type one of the Type* constants
	ID      string          `json:"id"`                // ID correlation identifier, echoed in responses
	Payload json.RawMessage `json:"payload,omitempty"` // Payload type-specific message body
}

// NewEnvelope builds an envelope around an already-marshaled payload.
func NewEnvelope(msgType, id string, payload any) (Envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:    msgType,
		ID:      id,
		SentAt:  time.Now().UTC(),
		Payload: body,
	}, nil
}
