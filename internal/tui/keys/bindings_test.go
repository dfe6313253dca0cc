package keys

import (
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func runeKey(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestHandleEventViewShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal("details", &Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { hit = "global" }})
	r.AddView("chat", "details", &Action{Key: tcell.KeyRune, Rune: 'd', Handler: func() { hit = "chat" }})

	if !r.HandleEvent("chat", runeKey('d')) || hit != "chat" {
		t.Errorf("got %q, want chat", hit)
	}
	if !r.HandleEvent("chats", runeKey('d')) || hit != "global" {
		t.Errorf("got %q, want global", hit)
	}
	if r.HandleEvent("chats", runeKey('z')) {
		t.Error("unbound key handled")
	}
}

func TestHandleEventSpecialKey(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddGlobal("back", &Action{Key: tcell.KeyEscape, Handler: func() { called = true }})

	if !r.HandleEvent("chat", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)) || !called {
		t.Error("escape binding not dispatched")
	}
	if r.HandleEvent("chat", runeKey('\x1b')) {
		t.Error("rune event matched a special-key binding")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal("quit", &Action{Description: "q:quit", Visible: true})
	r.AddGlobal("hidden", &Action{Description: "x:hidden"})
	r.AddView("chat", "retry", &Action{Description: "r:retry", Visible: true})
	r.AddView("chat", "share", &Action{Description: "S:share", Visible: true})
	r.AddView("chat", "retry", &Action{Description: "r:resend", Visible: true})

	got := r.Hints("chat")
	want := []string{"r:resend", "S:share", "q:quit"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
