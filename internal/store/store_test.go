package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/roomchat/internal/fault"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedChat(t *testing.T, db *DB, id string) {
	t.Helper()
	if err := db.UpsertChat(&Chat{ID: id, Title: "Chat " + id, LastMessage: NoMessagesYet}); err != nil {
		t.Fatal(err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
	if result.Dirty {
		t.Error("expected clean migration state")
	}
}

func TestChatRoundTrip(t *testing.T) {
	db := testDB(t)

	want := Chat{ID: "room-1", Title: "Chat 1", LastMessage: "@AI hi", LastMessageTimestamp: 1700000000123, UnreadCount: 3}
	if err := db.UpsertChat(&want); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetChat("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || *got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")

	tests := []struct {
		name string
		msg  Message
	}{
		{"queued local", Message{ID: "local-1", ChatID: "room-1", Content: "@AI hello", Timestamp: 1000, IsFromUser: true, SenderUsername: "alice", State: Queued}},
		{"delivered remote", Message{ID: "srv-1", ChatID: "room-1", Content: "hi back", Timestamp: 2000, SenderUsername: "bot", State: Delivered, ServerMessageID: "srv-1"}},
		{"merged local", Message{ID: "local-2", ChatID: "room-1", Content: "@AI again", Timestamp: 3000, IsFromUser: true, SenderUsername: "alice", State: Delivered, ServerMessageID: "srv-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := db.UpsertMessage(&tt.msg); err != nil {
				t.Fatal(err)
			}
			got, err := db.GetMessage(tt.msg.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got == nil || *got != tt.msg {
				t.Errorf("got %+v, want %+v", got, tt.msg)
			}
		})
	}
}

func TestTransientStatesPersistAsQueued(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")

	for _, st := range []DeliveryState{Sending, Failed} {
		m := Message{ID: "m-" + st.String(), ChatID: "room-1", Content: "@AI x", Timestamp: 1, State: st}
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
		got, err := db.GetMessage(m.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.State != Queued {
			t.Errorf("%s persisted as %s, want queued", st, got.State)
		}
	}

	m := Message{ID: "m-sent", ChatID: "room-1", Content: "@AI y", Timestamp: 2, State: Sent}
	if err := db.UpsertMessage(&m); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetMessage("m-sent")
	if got.State != Delivered {
		t.Errorf("sent persisted as %s, want delivered", got.State)
	}
}

func TestUpsertMessageReplacesRow(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")

	msg := &Message{ID: "m1", ChatID: "room-1", Content: "hello", Timestamp: 1000, State: Queued}
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}
	msg.Content = "hello updated"
	if err := db.UpsertMessage(msg); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Content != "hello updated" {
		t.Errorf("content = %q, want hello updated", msgs[0].Content)
	}
}

func TestUpsertChatKeepsMessages(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")
	if err := db.UpsertMessage(&Message{ID: "m1", ChatID: "room-1", Content: "x", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if err := db.UpsertChat(&Chat{ID: "room-1", Title: "Renamed"}); err != nil {
		t.Fatal(err)
	}

	n, err := db.MessageCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("message count = %d, want 1 after chat upsert", n)
	}
}

func TestMessageRequiresChat(t *testing.T) {
	db := testDB(t)

	err := db.UpsertMessage(&Message{ID: "orphan", ChatID: "nope", Content: "x", Timestamp: 1})
	if !errors.Is(err, fault.ErrStorage) {
		t.Errorf("got %v, want storage fault", err)
	}
}

func TestListChatsOrder(t *testing.T) {
	db := testDB(t)

	for _, c := range []Chat{
		{ID: "old", LastMessageTimestamp: 100},
		{ID: "new", LastMessageTimestamp: 300},
		{ID: "mid", LastMessageTimestamp: 200},
	} {
		if err := db.UpsertChat(&c); err != nil {
			t.Fatal(err)
		}
	}

	chats, err := db.ListChats()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, c := range chats {
		ids = append(ids, c.ID)
	}
	want := []string{"new", "mid", "old"}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("got %v, want %v", ids, want)
			break
		}
	}
}

func TestGetMissing(t *testing.T) {
	db := testDB(t)

	c, err := db.GetChat("missing")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Errorf("expected nil for missing chat, got %+v", c)
	}
	m, err := db.GetMessage("missing")
	if err != nil {
		t.Fatal(err)
	}
	if m != nil {
		t.Errorf("expected nil for missing message, got %+v", m)
	}
}

func TestDeleteChatCascades(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "C")
	seedChat(t, db, "D")
	for _, m := range []Message{
		{ID: "c1", ChatID: "C", Content: "a", Timestamp: 1},
		{ID: "c2", ChatID: "C", Content: "b", Timestamp: 2},
		{ID: "d1", ChatID: "D", Content: "c", Timestamp: 3},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.DeleteChat("C"); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("C")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("got %d messages for deleted chat, want 0", len(msgs))
	}
	n, _ := db.MessageCount()
	if n != 1 {
		t.Errorf("message count = %d, want 1", n)
	}

	if err := db.DeleteChat("does-not-exist"); err != nil {
		t.Errorf("deleting a missing chat should be a no-op, got %v", err)
	}
}

func TestMessageExistsChecksServerID(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")
	if err := db.UpsertMessage(&Message{ID: "local-1", ChatID: "room-1", Content: "@AI hi", Timestamp: 1, State: Queued}); err != nil {
		t.Fatal(err)
	}

	if ok, _ := db.MessageExists("srv-9"); ok {
		t.Fatal("srv-9 should not exist yet")
	}
	if err := db.MarkMessageSent("local-1", "srv-9"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"local-1", "srv-9"} {
		ok, err := db.MessageExists(id)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Errorf("MessageExists(%q) = false, want true", id)
		}
	}

	got, _ := db.GetMessage("local-1")
	if got.State != Delivered || got.ServerMessageID != "srv-9" {
		t.Errorf("got state=%s server=%q, want delivered srv-9", got.State, got.ServerMessageID)
	}
}

func TestMarkMessageSentMissingIsNoop(t *testing.T) {
	db := testDB(t)
	if err := db.MarkMessageSent("ghost", "srv-1"); err != nil {
		t.Errorf("got %v, want nil", err)
	}
}

func TestQueuedMessagesOrdered(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")
	for _, m := range []Message{
		{ID: "late", ChatID: "room-1", Content: "@AI 2", Timestamp: 2000, State: Queued},
		{ID: "done", ChatID: "room-1", Content: "@AI 0", Timestamp: 500, State: Delivered, ServerMessageID: "s0"},
		{ID: "early", ChatID: "room-1", Content: "@AI 1", Timestamp: 1000, State: Queued},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	queued, err := db.QueuedMessages("room-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(queued) != 2 || queued[0].ID != "early" || queued[1].ID != "late" {
		t.Errorf("got %+v, want [early late]", queued)
	}
}

func TestFindUnmergedByContentSender(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")
	for _, m := range []Message{
		{ID: "merged", ChatID: "room-1", Content: "@AI hi", SenderUsername: "alice", Timestamp: 1, State: Delivered, ServerMessageID: "s1"},
		{ID: "second", ChatID: "room-1", Content: "@AI hi", SenderUsername: "alice", Timestamp: 3, State: Queued},
		{ID: "first", ChatID: "room-1", Content: "@AI hi", SenderUsername: "alice", Timestamp: 2, State: Queued},
		{ID: "other", ChatID: "room-1", Content: "@AI hi", SenderUsername: "bob", Timestamp: 0, State: Queued},
	} {
		if err := db.UpsertMessage(&m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := db.FindUnmergedByContentSender("room-1", "@AI hi", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "first" {
		t.Errorf("got %+v, want first", got)
	}

	got, err = db.FindUnmergedByContentSender("room-1", "@AI nope", "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestUnreadCounters(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")

	for range 3 {
		if err := db.IncrementUnread("room-1"); err != nil {
			t.Fatal(err)
		}
	}
	c, _ := db.GetChat("room-1")
	if c.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", c.UnreadCount)
	}

	if err := db.MarkChatRead("room-1"); err != nil {
		t.Fatal(err)
	}
	c, _ = db.GetChat("room-1")
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", c.UnreadCount)
	}
}

func TestUpdateLastMessage(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")

	if err := db.UpdateLastMessage("room-1", "@AI latest", 4242); err != nil {
		t.Fatal(err)
	}
	c, _ := db.GetChat("room-1")
	if c.LastMessage != "@AI latest" || c.LastMessageTimestamp != 4242 {
		t.Errorf("got (%q, %d), want (@AI latest, 4242)", c.LastMessage, c.LastMessageTimestamp)
	}
}

func TestReset(t *testing.T) {
	db := testDB(t)
	seedChat(t, db, "room-1")
	if err := db.UpsertMessage(&Message{ID: "m", ChatID: "room-1", Content: "x", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}

	if err := db.Reset(); err != nil {
		t.Fatal(err)
	}

	chats, _ := db.ChatCount()
	msgs, _ := db.MessageCount()
	if chats != 0 || msgs != 0 {
		t.Errorf("got (%d chats, %d messages), want (0, 0)", chats, msgs)
	}
}
