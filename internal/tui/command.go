package tui

import "strings"

// Command is a parsed ":" prompt entry.
type Command struct {
	Name string
	Args string
}

// commandAliases maps short forms to canonical command names.
var commandAliases = map[string]string{
	"q":      "quit",
	"h":      "help",
	"new":    "create",
	"del":    "delete",
	"rm":     "delete",
	"chat":   "open",
	"resend": "retry",
	"qr":     "share",
}

// ParseCommand parses a command string. A leading ':' is optional and
// aliases resolve to their canonical name.
func ParseCommand(input string) Command {
	input = strings.TrimPrefix(strings.TrimSpace(input), ":")
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	if canonical, ok := commandAliases[name]; ok {
		name = canonical
	}
	return Command{Name: name, Args: strings.TrimSpace(args)}
}
