package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// Crumbs is a breadcrumb bar: the profile badge followed by the page path.
type Crumbs struct {
	*tview.TextView
	theme   *Theme
	profile string
}

// NewCrumbs creates a new breadcrumb bar.
func NewCrumbs(theme *Theme) *Crumbs {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &Crumbs{
		TextView: tv,
		theme:    theme,
	}
}

// SetProfile sets the profile shown before the path.
func (c *Crumbs) SetProfile(name string) {
	c.profile = name
}

// Update renders the breadcrumb trail from the page names.
func (c *Crumbs) Update(path []string) {
	c.Clear()

	var parts []string
	if c.profile != "" {
		parts = append(parts, fmt.Sprintf("[%s:%s:b] @%s [-:-:-]",
			ColorName(c.theme.CrumbActiveFg), ColorName(c.theme.CrumbProfileBg), tview.Escape(c.profile)))
	}
	for i, name := range path {
		fg, bg, attr := c.theme.CrumbInactiveFg, c.theme.CrumbInactiveBg, ""
		if i == len(path)-1 {
			fg, bg, attr = c.theme.CrumbActiveFg, c.theme.CrumbActiveBg, "b"
		}
		parts = append(parts, fmt.Sprintf("[%s:%s:%s] %s [-:-:-]", ColorName(fg), ColorName(bg), attr, tview.Escape(name)))
	}
	_, _ = fmt.Fprint(c, strings.Join(parts, " "))
}
