package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PayloadKind distinguishes the two shapes accepted on the webhook endpoint.
type PayloadKind int

const (
	// KindHandshake is a one-time verification delivery establishing the secret.
	KindHandshake PayloadKind = iota
	// KindEvent is a steady-state notification.
	KindEvent
)

// Payload is the decoded form of an inbound body: either a handshake carrying
// the verification token, or an event candidate.
type Payload struct {
	Kind  PayloadKind
	Token string
	Event *EventPayload
}

// Classify decodes a raw body into a handshake or an event candidate.
//
// A payload is a handshake iff it carries verification_token and no entity
// reference; the two markers are mutually exclusive in the protocol. An
// unparseable body is the only hard error.
func Classify(rawBody []byte) (*Payload, error) {
	var probe struct {
		VerificationToken string          `json:"verification_token"`
		Entity            json.RawMessage `json:"entity"`
	}
	if err := json.Unmarshal(rawBody, &probe); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	if probe.VerificationToken != "" && isAbsent(probe.Entity) {
		return &Payload{
			Kind:  KindHandshake,
			Token: probe.VerificationToken,
		}, nil
	}

	var event EventPayload
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return &Payload{
		Kind:  KindEvent,
		Event: &event,
	}, nil
}

// ValidateShape reports whether an event candidate carries all required
// fields: entity.type, entity.id, and type.
func ValidateShape(event *EventPayload) bool {
	if event == nil {
		return false
	}
	return event.Entity.Type != "" && event.Entity.ID != "" && event.Type != ""
}

// isAbsent treats a missing or null field as not present.
func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}
