package store

import "fmt"

// DeliveryState is the lifecycle of an outbound or inbound message.
type DeliveryState int

const (
	Sending DeliveryState = iota + 1
	Sent
	Delivered
	Failed
	Queued
)

func (s DeliveryState) String() string {
	switch s {
	case Sending:
		return "sending"
	case Sent:
		return "sent"
	case Delivered:
		return "delivered"
	case Failed:
		return "failed"
	case Queued:
		return "queued"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// SentToServer reports the persisted flag for s. Only the server
// acknowledging a message makes it durable as sent; Sending and Failed
// collapse to not-sent and come back as Queued after a restart.
func (s DeliveryState) SentToServer() bool {
	switch s {
	case Sent, Delivered:
		return true
	case Sending, Failed, Queued:
		return false
	}
	return false
}

// stateFromRow rebuilds the delivery state from the persisted flag.
func stateFromRow(sentToServer bool) DeliveryState {
	if sentToServer {
		return Delivered
	}
	return Queued
}

// Chat is one room the user participates in.
type Chat struct {
	ID                   string
	Title                string
	LastMessage          string
	LastMessageTimestamp int64
	UnreadCount          int
}

// Message is a single chat entry. ServerMessageID is empty until the server
// has assigned the canonical id, either on the row itself (server-origin) or
// adopted onto a locally generated row.
type Message struct {
	ID              string
	ChatID          string
	Content         string
	Timestamp       int64
	IsFromUser      bool
	SenderUsername  string
	State           DeliveryState
	ServerMessageID string
}

// NoMessagesYet is the preview stored on a freshly created chat.
const NoMessagesYet = "No messages yet"
