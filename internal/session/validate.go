package session

import (
	"fmt"
	"strings"
)

// MaxNameLen bounds a profile name, which doubles as a directory name.
const MaxNameLen = 64

// NameError explains why a profile name was rejected.
type NameError struct {
	Name   string
	Reason string
	// Suggest is a valid spelling of Name when one is obvious, e.g. the
	// lowercase form.
	Suggest string
}

func (e *NameError) Error() string {
	msg := fmt.Sprintf("invalid profile name %q: %s", e.Name, e.Reason)
	if e.Suggest != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", e.Suggest)
	}
	return msg
}

// ValidateName checks that name is 1 to MaxNameLen characters of a-z, 0-9,
// '_' or '-'.
func ValidateName(name string) error {
	switch {
	case name == "":
		return &NameError{Name: name, Reason: "must not be empty"}
	case len(name) > MaxNameLen:
		return &NameError{Name: name, Reason: fmt.Sprintf("longer than %d characters", MaxNameLen)}
	}
	for i, r := range name {
		if !nameRune(r) {
			err := &NameError{Name: name, Reason: fmt.Sprintf("character %q at %d not allowed, use a-z, 0-9, _ or -", r, i)}
			if lower := strings.ToLower(name); lower != name && validName(lower) {
				err.Suggest = lower
			}
			return err
		}
	}
	return nil
}

func validName(name string) bool {
	if name == "" || len(name) > MaxNameLen {
		return false
	}
	for _, r := range name {
		if !nameRune(r) {
			return false
		}
	}
	return true
}

func nameRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '-'
}
