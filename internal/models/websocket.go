package models

import "encoding/json"

type EventName string

// Inbound event names.
const (
	EventJoin        EventName = "join"
	EventMessage     EventName = "message"
	EventAddUser     EventName = "add_user"
	EventLeave       EventName = "leave"
	EventTypingStart EventName = "typing_start"
	EventTypingStop  EventName = "typing_stop"
	EventKick        EventName = "kick"
)

// Outbound-only event names.
const (
	EventOnline  EventName = "online"
	EventOffline EventName = "offline"
)

// InboundFrame is what a client writes on the socket.
type InboundFrame struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is what the server pushes to room members.
type OutboundFrame struct {
	Event EventName   `json:"event"`
	Data  interface{} `json:"data"`
}
