package bus

import "time"

// Event kinds published by the daemon. Subscribers filter by prefix, so
// "realtime." receives every channel event and "store." every change signal.
const (
	KindChannelState   = "realtime.state"
	KindChannelJoined  = "realtime.joined"
	KindChannelMessage = "realtime.message"
	KindChannelError   = "realtime.error"

	KindStatusChanged  = "status.changed"
	KindNetworkChanged = "net.changed"

	KindStoreChats    = "store.chats"
	KindStoreMessages = "store.messages"

	KindMessageIngested = "sync.message_ingested"
	KindHistoryMerged   = "sync.history_merged"

	KindNotice        = "conversation.notice"
	KindChatOpened    = "conversation.opened"
	KindChatClosed    = "conversation.closed"
	KindOutboxFlushed = "outbox.flushed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
