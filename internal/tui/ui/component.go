package ui

// MenuHint describes a keyboard shortcut for display in the menu.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // 1-9 jump keys, drawn in NumericKeyColor
}

// Component is a page that names itself in the crumbs and lists its keys
// in the menu.
type Component interface {
	Name() string
	Hints() []MenuHint
}
