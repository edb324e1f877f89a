package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Socket.IO over engine.io text packet prefixes used by the simulator.
const (
	EngineIOPing  = "2"
	EngineIOPong  = "3"
	SocketIOEvent = "42"
)

// EventPayload returns the JSON array part of a "42[...]" message. It
// returns "" when the message carries no data: the simulator sends a null
// payload while in manual mode.
func EventPayload(msg string) string {
	if strings.Contains(msg, "null") {
		return ""
	}
	b1 := strings.Index(msg, "[")
	b2 := strings.LastIndex(msg, "]")
	if b1 < 0 || b2 < b1 {
		return ""
	}
	return msg[b1 : b2+1]
}

// DecodeEvent splits a JSON array payload into the event name and its
// argument.
func DecodeEvent(payload string) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &parts); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("decode event: empty array")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("decode event name: %w", err)
	}
	if len(parts) < 2 {
		return name, nil, nil
	}
	return name, parts[1], nil
}

// EncodeEvent builds a `42["event",payload]` message.
func EncodeEvent(event string, payload any) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal([]any{event, payload})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", event, err)
	}
	return append([]byte(SocketIOEvent), body...), nil
}
