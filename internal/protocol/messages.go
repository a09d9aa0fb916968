// Package protocol defines the messages streamed to clients over SSE and
// WebSocket while a run executes.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/hochfrequenz/prompt-scraper/internal/domain"
	"github.com/hochfrequenz/prompt-scraper/internal/executor"
)

// Envelope wraps all messages with a type discriminator.
// When marshaling, Payload can be any message struct.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the payload
// needs to be unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and payload
func MarshalEnvelope(msgType string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Payload: payload})
}

// Server -> client messages

// ResetMessage announces a new run; clients clear the phase log and results
type ResetMessage struct {
	RunID  string `json:"run_id"`
	Prompt string `json:"prompt"`
}

// PhaseMessage carries one newly emitted phase
type PhaseMessage struct {
	RunID    string                  `json:"run_id"`
	Phase    domain.ExecutionPhase   `json:"phase"`
	Progress int                     `json:"progress"`
	Phases   []domain.ExecutionPhase `json:"phases"`
}

// ResultsMessage delivers the complete result set
type ResultsMessage struct {
	RunID   string                `json:"run_id"`
	Results []domain.ResultRecord `json:"results"`
}

// CancelledMessage reports that the live run stopped without results
type CancelledMessage struct {
	RunID    string `json:"run_id"`
	Progress int    `json:"progress"`
}

// SnapshotMessage is sent once on connect with the current state
type SnapshotMessage struct {
	State executor.Snapshot `json:"state"`
}

// ErrorMessage reports a rejected client request
type ErrorMessage struct {
	Message string `json:"message"`
}

// Client -> server messages

// StartMessage submits a prompt
type StartMessage struct {
	Prompt string `json:"prompt"`
}

// CancelMessage requests cancellation of the live run
type CancelMessage struct{}

// Message type constants
const (
	TypeReset     = "reset"
	TypePhase     = "phase"
	TypeResults   = "results"
	TypeCancelled = "cancelled"
	TypeSnapshot  = "snapshot"
	TypeError     = "error"
	TypeStart     = "start"
	TypeCancel    = "cancel"
)

// FromSnapshot converts a manager snapshot into the envelope describing
// the update that produced it
func FromSnapshot(s executor.Snapshot) Envelope {
	switch s.Event {
	case executor.UpdateReset:
		return Envelope{Type: TypeReset, Payload: ResetMessage{RunID: s.RunID, Prompt: s.Prompt}}
	case executor.UpdatePhase:
		var last domain.ExecutionPhase
		if n := len(s.Report.Phases); n > 0 {
			last = s.Report.Phases[n-1]
		}
		return Envelope{Type: TypePhase, Payload: PhaseMessage{
			RunID:    s.RunID,
			Phase:    last,
			Progress: s.Report.Progress,
			Phases:   s.Report.Phases,
		}}
	case executor.UpdateResults:
		return Envelope{Type: TypeResults, Payload: ResultsMessage{RunID: s.RunID, Results: s.Results}}
	case executor.UpdateCancelled:
		return Envelope{Type: TypeCancelled, Payload: CancelledMessage{RunID: s.RunID, Progress: s.Report.Progress}}
	default:
		return Envelope{Type: TypeSnapshot, Payload: SnapshotMessage{State: s}}
	}
}

// DecodeClient parses a client message into StartMessage or CancelMessage
func DecodeClient(data []byte) (any, error) {
	var raw EnvelopeRaw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	switch raw.Type {
	case TypeStart:
		var msg StartMessage
		if len(raw.Payload) > 0 {
			if err := json.Unmarshal(raw.Payload, &msg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", raw.Type, err)
			}
		}
		return msg, nil
	case TypeCancel:
		return CancelMessage{}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", raw.Type)
	}
}
