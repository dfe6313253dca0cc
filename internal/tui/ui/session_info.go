package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds daemon status for display.
type SessionData struct {
	Profile      string
	Username     string
	Server       string
	State        string
	Online       bool
	ChatCount    int
	MessageCount int
	Uptime       time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	if data == nil {
		return
	}

	fgColor := ColorName(si.theme.FgColor)
	counterColor := ColorName(si.theme.CounterColor)

	user := data.Username
	if user == "" {
		user = "-"
	}
	network := "online"
	netColor := counterColor
	if !data.Online {
		network = "offline"
		netColor = ColorName(si.theme.FlashWarnColor)
	}

	text := fmt.Sprintf(
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Server:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]State:[-:-:-]   [%s]%s[-] [%s]%s[-]\n"+
			"[%s::b]Chats:[-:-:-]   [%s]%d[-] [%s::b]Msgs:[-:-:-] [%s]%d[-]\n"+
			"[%s::b]Uptime:[-:-:-]  [%s]%s[-]",
		fgColor, counterColor, tview.Escape(data.Profile),
		fgColor, counterColor, tview.Escape(user),
		fgColor, counterColor, tview.Escape(data.Server),
		fgColor, counterColor, tview.Escape(data.State), netColor, network,
		fgColor, counterColor, data.ChatCount, fgColor, counterColor, data.MessageCount,
		fgColor, counterColor, formatDuration(data.Uptime),
	)

	_, _ = fmt.Fprint(si, text)
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
