// Package p2p implements the nearby device-to-device sync channel:
// versioned message envelopes over a direct peer session, full-snapshot
// and delta exchange, and chunked resource transfer.
package p2p

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProtocolVersion is the highest envelope version this build understands.
const ProtocolVersion = 1

// MessageType tags an envelope's payload.
type MessageType string

const (
	TypeHello           MessageType = "hello"
	TypeCapabilities    MessageType = "capabilities"
	TypeProfileSnapshot MessageType = "profile-snapshot"
	TypeActionsDelta    MessageType = "actions-delta"
	TypeAck             MessageType = "ack"
	TypeError           MessageType = "error"
	TypeResourceChunk   MessageType = "resource-chunk"
)

// Envelope is the wire unit. Payload is opaque here: plaintext JSON for
// handshake messages, AES-GCM ciphertext (with Nonce set) for
// everything after pairing.
type Envelope struct {
	Version int         `json:"version"`
	Type    MessageType `json:"type"`
	Payload []byte      `json:"payload,omitempty"`
	Nonce   []byte      `json:"nonce,omitempty"`
	SentAt  time.Time   `json:"sent_at"`
}

// IncompatibleError signals an envelope from a peer running a different
// app version: either a version newer than ProtocolVersion or a payload
// this build cannot decode. Callers show a soft "update required" state
// instead of treating it as a transport failure.
type IncompatibleError struct {
	Version int
	Reason  string
}

func (e *IncompatibleError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("incompatible peer message: version %d (supported up to %d)", e.Version, ProtocolVersion)
	}
	return fmt.Sprintf("incompatible peer message: %s", e.Reason)
}

// NewEnvelope wraps a plaintext payload.
func NewEnvelope(t MessageType, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return &Envelope{
		Version: ProtocolVersion,
		Type:    t,
		Payload: data,
		SentAt:  time.Now(),
	}, nil
}

// DecodeEnvelope parses wire data. The version is checked before any
// payload decode is attempted; both a too-new version and malformed
// framing surface as *IncompatibleError.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &IncompatibleError{Reason: "malformed envelope"}
	}
	if env.Version > ProtocolVersion {
		return nil, &IncompatibleError{Version: env.Version}
	}
	if env.Type == "" {
		return nil, &IncompatibleError{Reason: "missing message type"}
	}
	return &env, nil
}

// Decode unmarshals a plaintext payload into v. Failures downgrade to
// *IncompatibleError: a peer speaking the same envelope version may
// still serialize payloads this build does not understand.
func (e *Envelope) Decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return &IncompatibleError{Reason: fmt.Sprintf("undecodable %s payload", e.Type)}
	}
	return nil
}
