package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"plainchat/internal/models"

	"github.com/google/uuid"
)

var errUnknownEvent = errors.New("unknown event")

// Event is one decoded inbound frame. The set of variants is closed.
type Event interface {
	Name() models.EventName
	isEvent()
}

type Join struct{ RoomID uuid.UUID }

type SendMessage struct{ Text string }

type AddUser struct{ Username string }

type Leave struct{}

// Typing covers typing_start (Started) and typing_stop.
type Typing struct{ Started bool }

type Kick struct{ Username string }

func (Join) Name() models.EventName        { return models.EventJoin }
func (SendMessage) Name() models.EventName { return models.EventMessage }
func (AddUser) Name() models.EventName     { return models.EventAddUser }
func (Leave) Name() models.EventName       { return models.EventLeave }
func (Kick) Name() models.EventName        { return models.EventKick }
func (t Typing) Name() models.EventName {
	if t.Started {
		return models.EventTypingStart
	}
	return models.EventTypingStop
}

func (Join) isEvent()        {}
func (SendMessage) isEvent() {}
func (AddUser) isEvent()     {}
func (Leave) isEvent()       {}
func (Typing) isEvent()      {}
func (Kick) isEvent()        {}

// Decode parses a {"event", "data"} frame into its variant.
func Decode(raw []byte) (Event, error) {
	var f models.InboundFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("malformed frame: %w", err)
	}

	var data string
	if len(f.Data) > 0 && string(f.Data) != "null" {
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return nil, fmt.Errorf("%s: data must be a string: %w", f.Event, err)
		}
	}

	switch f.Event {
	case models.EventJoin:
		id, err := uuid.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("join: invalid room id %q: %w", data, err)
		}
		return Join{RoomID: id}, nil
	case models.EventMessage:
		if data == "" {
			return nil, errors.New("message: empty text")
		}
		return SendMessage{Text: data}, nil
	case models.EventAddUser:
		if data == "" {
			return nil, errors.New("add_user: empty username")
		}
		return AddUser{Username: data}, nil
	case models.EventKick:
		if data == "" {
			return nil, errors.New("kick: empty username")
		}
		return Kick{Username: data}, nil
	case models.EventLeave:
		return Leave{}, nil
	case models.EventTypingStart:
		return Typing{Started: true}, nil
	case models.EventTypingStop:
		return Typing{Started: false}, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownEvent, f.Event)
	}
}

func encode(name models.EventName, data interface{}) ([]byte, error) {
	return json.Marshal(models.OutboundFrame{Event: name, Data: data})
}

func addUserPayload(username, actor string, online bool) string {
	return username + "," + actor + "," + strconv.FormatBool(online)
}

func kickPayload(username, actor string) string {
	return username + "," + actor
}

func joinedText(username string) string { return username + " joined." }

func leftText(username string) string { return username + " left." }

func kickedText(username, actor string) string {
	return username + " was kicked out by " + actor + "."
}
