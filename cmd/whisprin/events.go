package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Pen Events
// ============================================================================
// PenEvent is the normalized output of every input provider: contact begin,
// pressure change while in contact, contact end. A Move or Up is only
// meaningful after a prior Down without an intervening Up; the contact
// tracker enforces that ordering before anything is emitted.
// ============================================================================

// PenEvent is a marker interface for normalized stylus events.
type PenEvent interface {
	penEvent()
}

// PenDown indicates the stylus tip touched the surface.
type PenDown struct {
	Pressure float64 `json:"pressure"` // normalized, [0,1]
}

func (PenDown) penEvent() {}

// PenMove indicates a pressure change while in contact.
type PenMove struct {
	Pressure float64 `json:"pressure"`
}

func (PenMove) penEvent() {}

// PenUp indicates the stylus tip left the surface.
type PenUp struct{}

func (PenUp) penEvent() {}

// ============================================================================
// Control Actions
// ============================================================================
// Actions represent intent from external controllers (IPC socket, status
// WebSocket, tray UI). They carry no timestamps; the daemon applies them
// immediately on receipt.
// ============================================================================

// Action is a marker interface for all control commands.
type Action interface {
	actionMarker()
}

// Enable turns pen-driven playback on.
type Enable struct{}

func (Enable) actionMarker() {}

// Disable turns pen-driven playback off and forces the audio session to stop.
type Disable struct{}

func (Disable) actionMarker() {}

// SetVolumeOffset adjusts the output gain offset. Out-of-range values are
// clamped to [-12, 0] dB, never rejected.
type SetVolumeOffset struct {
	Db float64 `json:"db"`
}

func (SetVolumeOffset) actionMarker() {}

// RequestStatus asks for a status snapshot. Only meaningful over IPC, where
// the server replies with the snapshot inline.
type RequestStatus struct{}

func (RequestStatus) actionMarker() {}

// StatusSnapshot is the externally visible daemon state.
type StatusSnapshot struct {
	Enabled        bool    `json:"enabled"`
	ActiveProvider string  `json:"active_provider"`
	OffsetDb       float64 `json:"offset_db"`
	Playing        bool    `json:"playing"`
	LastPressure   float64 `json:"last_pressure"`
}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// ActionEnvelope wraps actions for JSON serialization. Since Go doesn't have
// union types, we use a type discriminator.
// ============================================================================

// ActionEnvelope wraps an action with a type discriminator for JSON marshaling
type ActionEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalAction deserializes a JSON action envelope into a concrete Action
func UnmarshalAction(data []byte) (Action, error) {
	var env ActionEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "enable":
		return Enable{}, nil

	case "disable":
		return Disable{}, nil

	case "set_volume_offset":
		var a SetVolumeOffset
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetVolumeOffset: %w", err)
		}
		return a, nil

	case "status":
		return RequestStatus{}, nil

	default:
		return nil, fmt.Errorf("unknown action type: %q", env.Type)
	}
}

// MarshalAction serializes an Action into a JSON envelope with type discriminator
func MarshalAction(a Action) ([]byte, error) {
	var env ActionEnvelope

	switch a := a.(type) {
	case Enable:
		env.Type = "enable"

	case Disable:
		env.Type = "disable"

	case SetVolumeOffset:
		env.Type = "set_volume_offset"
		data, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("marshal SetVolumeOffset: %w", err)
		}
		env.Data = data

	case RequestStatus:
		env.Type = "status"

	default:
		return nil, fmt.Errorf("unsupported action type: %T", a)
	}

	return json.Marshal(env)
}
