package status

import (
	"testing"
	"time"

	"github.com/matheus3301/roomchat/internal/bus"
)

func TestInitialState(t *testing.T) {
	m := NewMachine(nil)
	if m.Current().Kind != Disconnected {
		t.Errorf("initial state = %s, want DISCONNECTED", m.Current())
	}
}

// walkTo drives a fresh machine to the target kind via the shortest valid path.
func walkTo(t *testing.T, m *Machine, target Kind) {
	t.Helper()
	paths := map[Kind][]State{
		Disconnected: {},
		Connecting:   {{Kind: Connecting}},
		Connected:    {{Kind: Connecting}, {Kind: Connected}},
		Error:        {{Kind: Connecting}, {Kind: Error, Reason: "dial"}},
	}
	for _, s := range paths[target] {
		if err := m.Transition(s); err != nil {
			t.Fatalf("walkTo(%s): %v", target, err)
		}
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Kind
		to   Kind
	}{
		{Disconnected, Connecting},
		{Connecting, Connected},
		{Connecting, Error},
		{Connecting, Disconnected},
		{Connected, Disconnected},
		{Error, Connecting},
		{Error, Disconnected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(State{Kind: tt.to}); err != nil {
				t.Errorf("Transition(%s -> %s) error = %v", tt.from, tt.to, err)
			}
			if m.Current().Kind != tt.to {
				t.Errorf("state = %s, want %s", m.Current(), tt.to)
			}
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	tests := []struct {
		from Kind
		to   Kind
	}{
		{Disconnected, Connected},
		{Disconnected, Error},
		{Connected, Connecting},
		{Connected, Error},
		{Error, Connected},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, tt.from)
			if err := m.Transition(State{Kind: tt.to}); err == nil {
				t.Errorf("Transition(%s -> %s) should fail", tt.from, tt.to)
			}
			if m.Current().Kind != tt.from {
				t.Errorf("state = %s, want unchanged %s", m.Current(), tt.from)
			}
		})
	}
}

func TestTransitionEmitsEvent(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	walkTo(t, m, Connecting)
	if err := m.Transition(State{Kind: Error, Reason: "timeout"}); err != nil {
		t.Fatal(err)
	}

	var last Change
	for range 2 {
		select {
		case evt := <-ch:
			if evt.Kind != bus.KindStatusChanged {
				t.Errorf("event kind = %q, want %q", evt.Kind, bus.KindStatusChanged)
			}
			change, ok := evt.Payload.(Change)
			if !ok {
				t.Fatalf("payload type = %T, want Change", evt.Payload)
			}
			last = change
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for state event")
		}
	}
	if last.From.Kind != Connecting || last.To.Kind != Error || last.To.Reason != "timeout" {
		t.Errorf("change = %v -> %v, want CONNECTING -> ERROR(timeout)", last.From, last.To)
	}
}

func TestResetFromAnyState(t *testing.T) {
	for _, k := range []Kind{Connecting, Connected, Error} {
		t.Run(string(k), func(t *testing.T) {
			m := NewMachine(nil)
			walkTo(t, m, k)
			if !m.Reset() {
				t.Error("Reset() = false, want true")
			}
			if !m.Is(Disconnected) {
				t.Errorf("state = %s, want DISCONNECTED", m.Current())
			}
		})
	}
}

func TestResetWhenDisconnectedIsQuiet(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	m := NewMachine(b)
	if m.Reset() {
		t.Error("Reset() on DISCONNECTED = true, want false")
	}
	select {
	case evt := <-ch:
		t.Errorf("unexpected event %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStateString(t *testing.T) {
	if got := (State{Kind: Error, Reason: "refused"}).String(); got != "ERROR(refused)" {
		t.Errorf("got %q, want ERROR(refused)", got)
	}
	if got := (State{Kind: Connected}).String(); got != "CONNECTED" {
		t.Errorf("got %q, want CONNECTED", got)
	}
}
