package conversation

import "fmt"

// NoticeKind tags a user-facing notice.
type NoticeKind int

const (
	// NoticeOffline tells the user messages are being queued.
	NoticeOffline NoticeKind = iota + 1
	// NoticeError reports a channel or send failure.
	NoticeError
	// NoticeInfo is informational.
	NoticeInfo
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeOffline:
		return "offline"
	case NoticeError:
		return "error"
	case NoticeInfo:
		return "info"
	}
	return fmt.Sprintf("notice(%d)", int(k))
}

// Notice is published on the bus under bus.KindNotice.
type Notice struct {
	Kind   NoticeKind
	ChatID string
	Text   string
}

const (
	offlineText      = "You're offline. Messages will be sent when you reconnect."
	notConnectedText = "Not connected to server"
)
