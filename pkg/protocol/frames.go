// Package protocol defines the wire format spoken between devices and the relay.
// One WebSocket text frame carries exactly one JSON object with a "type" tag.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Protocol version reported in auth_success.
const ProtocolVersion = 1

// Inbound message types (device → relay).
const (
	TypeAuth         = "auth"
	TypeCommand      = "command"
	TypePairRequest  = "pair_request"
	TypePairResponse = "pair_response"
	TypeDeviceList   = "device_list"
	TypePing         = "ping"
	TypeDeviceInfo   = "device_info"
)

// Outbound-only message types (relay → device). command, pair_request,
// pair_response, device_list and device_info are reused in both directions.
const (
	TypeAuthSuccess   = "auth_success"
	TypeError         = "error"
	TypeDeviceOnline  = "device_online"
	TypeDeviceOffline = "device_offline"
	TypePairSent      = "pair_sent"
	TypePairAlready   = "pair_already"
	TypePairUpdated   = "pair_updated"
	TypePong          = "pong"
)

var (
	// ErrMalformed is returned when a frame is not a JSON object or a known
	// variant fails to decode.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownType is returned for a well-formed frame with an unrecognized tag.
	ErrUnknownType = errors.New("unknown message type")
)

// Inbound is the closed set of messages a device may send.
// Only types in this package implement it.
type Inbound interface {
	MessageType() string
	inbound()
}

// Auth is the first message on every connection.
type Auth struct {
	Token      string `json:"token"`
	DeviceID   string `json:"deviceId,omitempty"`
	DeviceName string `json:"deviceName,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
	Platform   string `json:"platform,omitempty"`
}

// Command asks the relay to forward an opaque payload to a paired device.
type Command struct {
	Target  string          `json:"target"`
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PairRequest asks Target to pair with the sending device.
type PairRequest struct {
	Target string `json:"target"`
}

// PairResponse answers a pending request issued by Requester.
type PairResponse struct {
	Requester string `json:"requester"`
	Accept    bool   `json:"accept"`
}

// DeviceList requests the caller's devices with live presence.
type DeviceList struct{}

// Ping is an application-level liveness check answered with pong.
type Ping struct{}

// DeviceInfo requests one device; an empty DeviceID means the caller's own.
type DeviceInfo struct {
	DeviceID string `json:"deviceId,omitempty"`
}

func (Auth) MessageType() string         { return TypeAuth }
func (Command) MessageType() string      { return TypeCommand }
func (PairRequest) MessageType() string  { return TypePairRequest }
func (PairResponse) MessageType() string { return TypePairResponse }
func (DeviceList) MessageType() string   { return TypeDeviceList }
func (Ping) MessageType() string         { return TypePing }
func (DeviceInfo) MessageType() string   { return TypeDeviceInfo }

func (Auth) inbound()         {}
func (Command) inbound()      {}
func (PairRequest) inbound()  {}
func (PairResponse) inbound() {}
func (DeviceList) inbound()   {}
func (Ping) inbound()         {}
func (DeviceInfo) inbound()   {}

// ParseType extracts the type tag from raw JSON bytes.
func ParseType(data []byte) (string, error) {
	var raw struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return raw.Type, nil
}

// Parse decodes a frame into its concrete inbound variant.
// The returned error wraps ErrMalformed or ErrUnknownType.
func Parse(data []byte) (Inbound, error) {
	typ, err := ParseType(data)
	if err != nil {
		return nil, err
	}

	var msg Inbound
	switch typ {
	case TypeAuth:
		var m Auth
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeCommand:
		var m Command
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePairRequest:
		var m PairRequest
		err = json.Unmarshal(data, &m)
		msg = m
	case TypePairResponse:
		var m PairResponse
		err = json.Unmarshal(data, &m)
		msg = m
	case TypeDeviceList:
		msg = DeviceList{}
	case TypePing:
		msg = Ping{}
	case TypeDeviceInfo:
		var m DeviceInfo
		err = json.Unmarshal(data, &m)
		msg = m
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, typ, err)
	}
	return msg, nil
}

// Frame is an outbound message: a type tag plus flat fields.
// Encode adds the "ts" field.
type Frame struct {
	Type   string
	Fields map[string]any
}

// NewFrame creates an outbound frame of the given type.
func NewFrame(typ string, fields map[string]any) Frame {
	return Frame{Type: typ, Fields: fields}
}

// Encode renders the frame as one flat JSON object stamped with ts (unix ms).
func (f Frame) Encode(now time.Time) ([]byte, error) {
	out := make(map[string]any, len(f.Fields)+2)
	for k, v := range f.Fields {
		out[k] = v
	}
	out["type"] = f.Type
	out["ts"] = now.UnixMilli()
	return json.Marshal(out)
}

// NewError creates an error frame.
func NewError(code, message string) Frame {
	return NewFrame(TypeError, map[string]any{
		"code":    code,
		"message": message,
	})
}
