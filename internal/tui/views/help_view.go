package views

import (
	"fmt"

	"github.com/matheus3301/roomchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	hv.render()
	return hv
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func (hv *HelpView) render() {
	kc := ui.ColorName(hv.theme.MenuKeyColor)

	help := fmt.Sprintf(`
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode        [%[1]s]Esc[-:-:-]    Cancel / Go back
  [%[1]s]/[-:-:-]      Filter chats        [%[1]s]?[-:-:-]      Help
  [%[1]s]q[-:-:-]      Quit                [%[1]s]Ctrl-C[-:-:-] Quit immediately

  [::b]Chat List[-:-:-]

  [%[1]s]Enter[-:-:-]  Open chat           [%[1]s]c[-:-:-]      Create room
  [%[1]s]x[-:-:-]      Delete room         [%[1]s]d[-:-:-]      Chat details
  [%[1]s]1-9[-:-:-]    Jump to Nth chat    [%[1]s]j/k[-:-:-]    Move down / up

  [::b]Chat[-:-:-]

  [%[1]s]i[-:-:-]      Focus composer      [%[1]s]Enter[-:-:-]  Send (in composer)
  [%[1]s]r[-:-:-]      Retry last unsent   [%[1]s]S[-:-:-]      Share room as QR
  [%[1]s]d[-:-:-]      Chat details        [%[1]s]Esc[-:-:-]    Leave chat

  The composer prefixes every message with [%[1]s]@AI [-:-:-] for the assistant.
  While offline, messages are queued and sent when the connection returns.

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:login <username>[-:-:-]   Log in as username
  [%[1]s]:new[-:-:-]                Create a room
  [%[1]s]:open <title|id>[-:-:-]    Open chat by title or id
  [%[1]s]:delete[-:-:-]             Delete the selected or open room
  [%[1]s]:retry[-:-:-]              Retry the last unsent message
  [%[1]s]:share[-:-:-]              Show the open room as a QR code
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]         Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]         Quit application
`, kc)

	_, _ = fmt.Fprint(hv, help)
}
