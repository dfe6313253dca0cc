package views

import (
	"fmt"

	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// ConversationInfo displays detailed information about a chat.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewConversationInfo creates a new conversation info view.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Chat Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &ConversationInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// Hints implements Component.
func (ci *ConversationInfo) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// Update renders chat details. msgs is the loaded thread, which may be nil.
func (ci *ConversationInfo) Update(chat *api.Chat, msgs []api.Message) {
	ci.Clear()
	if chat == nil {
		return
	}

	fg := ui.ColorName(ci.theme.FgColor)
	ct := ui.ColorName(ci.theme.CounterColor)

	lastActive := formatTimestamp(chat.LastMessageTimestamp)
	if lastActive == "" {
		lastActive = "-"
	}

	var queued, failed int
	for _, m := range msgs {
		switch m.State {
		case "queued":
			queued++
		case "failed":
			failed++
		}
	}

	text := fmt.Sprintf(
		"\n [%s::b]Title:[-:-:-]        [%s]%s[-]\n"+
			" [%s::b]Room ID:[-:-:-]      [%s]%s[-]\n"+
			" [%s::b]Unread:[-:-:-]       [%s]%d[-]\n"+
			" [%s::b]Messages:[-:-:-]     [%s]%d (%d queued, %d failed)[-]\n"+
			" [%s::b]Last Active:[-:-:-]  [%s]%s[-]\n"+
			" [%s::b]Last Message:[-:-:-] [%s]%s[-]",
		fg, ct, displayText(chat.Title),
		fg, ct, tview.Escape(chat.ID),
		fg, ct, chat.UnreadCount,
		fg, ct, len(msgs), queued, failed,
		fg, ct, lastActive,
		fg, ct, displayText(chat.LastMessage),
	)

	_, _ = fmt.Fprint(ci, text)
	ci.SetTitle(fmt.Sprintf(" %s Details ", displayText(chat.Title)))
}
