package realtime

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/status"
)

// EventKind tags an inbound channel event.
type EventKind int

const (
	EventState EventKind = iota + 1
	EventJoined
	EventMessage
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventState:
		return "state"
	case EventJoined:
		return "joined"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// InboundMessage is a new_message payload. CreatedAt is the raw server
// timestamp; parsing is left to the consumer.
type InboundMessage struct {
	ID        string
	RoomID    string
	Sender    string
	Text      string
	CreatedAt string
}

// Event is delivered to channel subscribers. Which fields are set depends on
// Kind: State for EventState, RoomID for EventJoined, Message for
// EventMessage, Err for EventError.
type Event struct {
	Kind    EventKind
	State   status.State
	RoomID  string
	Message InboundMessage
	Err     string
}

// Socket.IO event names used by the room server.
const (
	evJoinRoom    = "join_room"
	evSendMessage = "send_message"
	evJoinedRoom  = "joined_room"
	evNewMessage  = "new_message"
	evError       = "error"
)

type joinRoomPayload struct {
	RoomID string `json:"room_id"`
}

type sendMessagePayload struct {
	RoomID string `json:"room_id"`
	Text   string `json:"text"`
}

// parseEvent maps a Socket.IO event frame to a channel event. ok is false for
// events the client does not consume.
func parseEvent(body []byte) (Event, bool, error) {
	name := eventName(body)
	data := eventData(body)

	switch name {
	case evJoinedRoom:
		room := data.Get("room_id")
		if !room.Exists() {
			return Event{}, false, fault.New(fault.Parse, evJoinedRoom, "missing room_id")
		}
		return Event{Kind: EventJoined, RoomID: room.String()}, true, nil
	case evNewMessage:
		msg, err := parseNewMessage(data)
		if err != nil {
			return Event{}, false, err
		}
		return Event{Kind: EventMessage, Message: msg}, true, nil
	case evError:
		return Event{Kind: EventError, Err: errorText(data)}, true, nil
	default:
		return Event{}, false, nil
	}
}

func parseNewMessage(data gjson.Result) (InboundMessage, error) {
	if !data.IsObject() {
		return InboundMessage{}, fault.New(fault.Parse, evNewMessage, "payload is not an object")
	}
	msg := InboundMessage{
		ID:        data.Get("id").String(),
		RoomID:    data.Get("room_id").String(),
		Sender:    data.Get("sender_username").String(),
		Text:      data.Get("text").String(),
		CreatedAt: data.Get("created_at").String(),
	}
	if msg.ID == "" || msg.RoomID == "" {
		return InboundMessage{}, fault.New(fault.Parse, evNewMessage, "missing id or room_id")
	}
	return msg, nil
}
