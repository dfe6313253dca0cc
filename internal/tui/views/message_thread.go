package views

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays messages and a composer for a single chat.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	chatName string
	chatID   string
	onSend   func(text string)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" " + aiPrefix).
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.AssistantColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && mt.onSend != nil {
			if text, ok := draft(composer.GetText()); ok {
				mt.onSend(text)
				composer.SetText("")
			}
		}
	})

	return mt
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.chatName != "" {
		return mt.chatName
	}
	return "Messages"
}

// Hints implements Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "r", Description: "Retry"},
		{Key: "d", Description: "Details"},
		{Key: "S", Description: "Share"},
		{Key: "Esc", Description: "Back"},
		{Key: ":", Description: "Command"},
		{Key: "?", Description: "Help"},
	}
}

// SetChat updates the chat shown by the thread.
func (mt *MessageThread) SetChat(id, name string) {
	mt.chatID = id
	mt.chatName = name
	mt.messages.SetTitle(fmt.Sprintf(" %s ", displayText(name)))
}

// ChatID returns the current chat ID.
func (mt *MessageThread) ChatID() string {
	return mt.chatID
}

// SetOnSend sets the callback when a message is sent.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// Update refreshes the message view. msgs are oldest first.
func (mt *MessageThread) Update(msgs []api.Message) {
	mt.messages.Clear()
	for _, m := range msgs {
		_, _ = fmt.Fprint(mt.messages, mt.formatMessage(m))
	}
	mt.messages.ScrollToEnd()
}

func (mt *MessageThread) formatMessage(m api.Message) string {
	sender := m.SenderUsername
	if m.IsFromUser {
		sender = "You"
	}
	line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]", displayText(sender), formatTimestamp(m.Timestamp))
	if m.IsFromUser {
		line += " " + mt.stateMarker(m.State)
	}
	return line + "\n" + displayText(m.Content) + "\n\n"
}

// stateMarker renders the delivery state of an own message.
func (mt *MessageThread) stateMarker(state string) string {
	var color, mark string
	switch state {
	case "sending":
		color, mark = ui.ColorName(mt.theme.PendingColor), "…"
	case "sent":
		color, mark = ui.ColorName(mt.theme.SentColor), "✓"
	case "delivered":
		color, mark = ui.ColorName(mt.theme.SentColor), "✓✓"
	case "queued":
		color, mark = ui.ColorName(mt.theme.QueuedColor), "queued"
	case "failed":
		color, mark = ui.ColorName(mt.theme.FailedColor), "failed (r to retry)"
	default:
		return ""
	}
	return "[" + color + "]" + mark + "[-]"
}

// aiPrefix is fixed in the composer; the server only answers messages
// that start with it.
const aiPrefix = "@AI "

// draft turns composer input into message text. Input that already carries
// the prefix is sent as is.
func draft(input string) (string, bool) {
	body := strings.TrimSpace(input)
	if body == "" {
		return "", false
	}
	if strings.HasPrefix(body, aiPrefix) {
		return body, true
	}
	return aiPrefix + body, true
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}
