package outbox

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/store"
)

// mockTransmitter records calls and can fail after a number of sends.
type mockTransmitter struct {
	mu      sync.Mutex
	calls   []sendCall
	failAt  int // 1-based call that fails; 0 never fails
	failErr error
}

type sendCall struct {
	RoomID string
	Text   string
}

func (m *mockTransmitter) Send(_ context.Context, roomID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, sendCall{RoomID: roomID, Text: text})
	if m.failAt > 0 && len(m.calls) == m.failAt {
		return m.failErr
	}
	return nil
}

func (m *mockTransmitter) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Text
	}
	return out
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seed(t *testing.T, db *store.DB, msgs ...store.Message) {
	t.Helper()
	if err := db.UpsertChat(&store.Chat{ID: "r1", Title: "Chat 1", LastMessage: store.NoMessagesYet}); err != nil {
		t.Fatal(err)
	}
	for i := range msgs {
		if err := db.UpsertMessage(&msgs[i]); err != nil {
			t.Fatal(err)
		}
	}
}

func queued(id, text string, ts int64) store.Message {
	return store.Message{ID: id, ChatID: "r1", Content: text, Timestamp: ts, IsFromUser: true, SenderUsername: "alice", State: store.Queued}
}

func always() bool { return true }

func TestFlushSendsQueuedInOrder(t *testing.T) {
	db := testDB(t)
	seed(t, db,
		queued("c", "@AI third", 3000),
		queued("a", "@AI first", 1000),
		store.Message{ID: "d", ChatID: "r1", Content: "done", Timestamp: 1500, SenderUsername: "bob", State: store.Delivered, ServerMessageID: "d"},
		queued("b", "@AI second", 2000),
	)
	b := bus.New()
	tx := &mockTransmitter{}
	f := NewFlusher(db, tx, b, nil)

	events, unsub := b.Subscribe(bus.KindOutboxFlushed, 1)
	defer unsub()

	res, err := f.Flush(context.Background(), "r1", always)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 3 || res.Remaining != 0 {
		t.Errorf("got %+v, want 3 sent", res)
	}

	got := tx.texts()
	want := []string{"@AI first", "@AI second", "@AI third"}
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("send #%d = %q, want %q", i, got[i], want[i])
		}
	}

	// Rows stay queued until the echo arrives.
	pending, err := db.QueuedMessages("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 3 {
		t.Errorf("queued after flush = %d, want 3", len(pending))
	}

	select {
	case evt := <-events:
		if r, ok := evt.Payload.(FlushResult); !ok || r.Sent != 3 {
			t.Errorf("event payload = %+v", evt.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for flush event")
	}
}

func TestFlushStopsWhenNotReady(t *testing.T) {
	db := testDB(t)
	seed(t, db, queued("a", "@AI 1", 1000), queued("b", "@AI 2", 2000), queued("c", "@AI 3", 3000))
	tx := &mockTransmitter{}
	f := NewFlusher(db, tx, bus.New(), nil)

	calls := 0
	ready := func() bool {
		calls++
		return calls <= 1
	}
	res, err := f.Flush(context.Background(), "r1", ready)
	if !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("got %v, want transport fault", err)
	}
	if res.Sent != 1 || res.Remaining != 2 {
		t.Errorf("got %+v, want 1 sent 2 remaining", res)
	}
}

func TestFlushStopsOnSendError(t *testing.T) {
	db := testDB(t)
	seed(t, db, queued("a", "@AI 1", 1000), queued("b", "@AI 2", 2000), queued("c", "@AI 3", 3000))
	tx := &mockTransmitter{failAt: 2, failErr: fault.New(fault.Transport, "send message", "not connected")}
	f := NewFlusher(db, tx, bus.New(), nil)

	res, err := f.Flush(context.Background(), "r1", always)
	if !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("got %v, want transport fault", err)
	}
	if res.Sent != 1 || res.Remaining != 2 {
		t.Errorf("got %+v, want 1 sent 2 remaining", res)
	}
	if n := len(tx.texts()); n != 2 {
		t.Errorf("transmitter called %d times, want 2", n)
	}
}

func TestFlushEmptyOutbox(t *testing.T) {
	db := testDB(t)
	seed(t, db)
	tx := &mockTransmitter{}
	f := NewFlusher(db, tx, bus.New(), nil)

	res, err := f.Flush(context.Background(), "r1", always)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sent != 0 || len(tx.texts()) != 0 {
		t.Errorf("got %+v with %d sends, want nothing", res, len(tx.texts()))
	}
}

func TestResend(t *testing.T) {
	db := testDB(t)
	seed(t, db,
		queued("q", "@AI retry me", 1000),
		store.Message{ID: "d", ChatID: "r1", Content: "@AI done", Timestamp: 2000, IsFromUser: true, SenderUsername: "alice", State: store.Delivered, ServerMessageID: "s1"},
	)
	tx := &mockTransmitter{}
	f := NewFlusher(db, tx, bus.New(), nil)
	ctx := context.Background()

	if err := f.Resend(ctx, "r1", "q"); err != nil {
		t.Fatal(err)
	}
	if err := f.Resend(ctx, "r1", "d"); err != nil {
		t.Fatal(err)
	}
	if got := tx.texts(); len(got) != 1 || got[0] != "@AI retry me" {
		t.Errorf("sent %v, want only the queued message", got)
	}

	tests := []struct {
		name, chat, id string
	}{
		{"missing", "r1", "nope"},
		{"other chat", "r2", "q"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := f.Resend(ctx, tt.chat, tt.id); !errors.Is(err, fault.ErrValidation) {
				t.Errorf("got %v, want validation fault", err)
			}
		})
	}
}
