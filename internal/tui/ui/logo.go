package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

const logoArt = ` ╦═╗╔═╗╔═╗╔╦╗
 ╠╦╝║ ║║ ║║║║
 ╩╚═╚═╝╚═╝╩ ╩`

// Logo displays the application name and a tagline.
type Logo struct {
	*tview.TextView
}

// NewLogo creates a new logo component.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)

	_, _ = fmt.Fprintf(tv, "[%s::b]%s[-:-:-]\n[%s] chat, offline too[-:-:-]",
		ColorName(theme.TitleColor), logoArt, ColorName(theme.FgColor))
	return &Logo{TextView: tv}
}
