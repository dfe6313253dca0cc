package api

import (
	"github.com/matheus3301/roomchat/internal/store"
)

// Chat is a chat-list row.
type Chat struct {
	ID                   string `json:"id"`
	Title                string `json:"title"`
	LastMessage          string `json:"last_message"`
	LastMessageTimestamp int64  `json:"last_message_timestamp"`
	UnreadCount          int    `json:"unread_count"`
}

// Message is one thread entry. State is the lowercase delivery state name.
type Message struct {
	ID              string `json:"id"`
	ChatID          string `json:"chat_id"`
	Content         string `json:"content"`
	Timestamp       int64  `json:"timestamp"`
	IsFromUser      bool   `json:"is_from_user"`
	SenderUsername  string `json:"sender_username"`
	State           string `json:"state"`
	ServerMessageID string `json:"server_message_id,omitempty"`
}

// Event is one bus event flattened for clients. Which fields are set
// depends on Kind.
type Event struct {
	ID     string `json:"id"`
	Kind   string `json:"kind"`
	TimeMs int64  `json:"time_ms"`
	ChatID string `json:"chat_id,omitempty"`
	State  string `json:"state,omitempty"`
	Online bool   `json:"online,omitempty"`
	Notice string `json:"notice,omitempty"`
	Text   string `json:"text,omitempty"`
}

type StatusRequest struct{}

type StatusResponse struct {
	Profile      string `json:"profile"`
	Username     string `json:"username"`
	ServerURL    string `json:"server_url"`
	State        string `json:"state"`
	StateReason  string `json:"state_reason,omitempty"`
	Online       bool   `json:"online"`
	CurrentChat  string `json:"current_chat,omitempty"`
	UptimeMs     int64  `json:"uptime_ms"`
	ChatCount    int    `json:"chat_count"`
	MessageCount int    `json:"message_count"`
}

type LoginRequest struct {
	Username string `json:"username"`
}

type LoginResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type WatchEventsRequest struct {
	// Prefix filters by kind prefix; empty means everything.
	Prefix string `json:"prefix,omitempty"`
}

type ListChatsRequest struct{}

type ListChatsResponse struct {
	Chats []Chat `json:"chats"`
}

type CreateChatRequest struct{}

type ChatResponse struct {
	Chat Chat `json:"chat"`
}

type ChatRequest struct {
	ChatID string `json:"chat_id"`
}

type Empty struct{}

type WatchChatsRequest struct{}

type ListMessagesRequest struct {
	ChatID string `json:"chat_id"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SendRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

// SendResponse reports a stored message. Queued means it waits in the
// outbox; Reason says why.
type SendResponse struct {
	Message Message `json:"message"`
	Queued  bool    `json:"queued"`
	Reason  string  `json:"reason,omitempty"`
}

type RetryRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
}

func chatFromStore(c *store.Chat) Chat {
	return Chat{
		ID:                   c.ID,
		Title:                c.Title,
		LastMessage:          c.LastMessage,
		LastMessageTimestamp: c.LastMessageTimestamp,
		UnreadCount:          c.UnreadCount,
	}
}

func chatsFromStore(cs []store.Chat) []Chat {
	out := make([]Chat, 0, len(cs))
	for i := range cs {
		out = append(out, chatFromStore(&cs[i]))
	}
	return out
}

func messageFromStore(m *store.Message) Message {
	return Message{
		ID:              m.ID,
		ChatID:          m.ChatID,
		Content:         m.Content,
		Timestamp:       m.Timestamp,
		IsFromUser:      m.IsFromUser,
		SenderUsername:  m.SenderUsername,
		State:           m.State.String(),
		ServerMessageID: m.ServerMessageID,
	}
}

func messagesFromStore(ms []store.Message) []Message {
	out := make([]Message, 0, len(ms))
	for i := range ms {
		out = append(out, messageFromStore(&ms[i]))
	}
	return out
}
