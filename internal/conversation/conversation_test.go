package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/connectivity"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/outbox"
	"github.com/matheus3301/roomchat/internal/realtime"
	"github.com/matheus3301/roomchat/internal/rest"
	"github.com/matheus3301/roomchat/internal/status"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// fakeChannel records what the conversation asks of the channel and lets
// tests inject channel events.
type fakeChannel struct {
	mu        sync.Mutex
	connected bool
	connects  []string
	joins     []string
	sends     []string
	subs      map[int]chan realtime.Event
	next      int
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{subs: make(map[int]chan realtime.Event)}
}

func (f *fakeChannel) Connect(identity string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, identity)
}

func (f *fakeChannel) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChannel) JoinRoom(_ context.Context, roomID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fault.New(fault.Transport, "join room", "not connected")
	}
	f.joins = append(f.joins, roomID)
	return nil
}

func (f *fakeChannel) Send(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return fault.New(fault.Transport, "send message", "not connected")
	}
	f.sends = append(f.sends, text)
	return nil
}

func (f *fakeChannel) Subscribe(buf int) (<-chan realtime.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	ch := make(chan realtime.Event, buf)
	f.subs[id] = ch
	return ch, func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeChannel) emit(e realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- e
	}
}

func (f *fakeChannel) setConnected(v bool) {
	f.mu.Lock()
	f.connected = v
	f.mu.Unlock()
}

func (f *fakeChannel) counts() (connects, joins, sends int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects), len(f.joins), len(f.sends)
}

func (f *fakeChannel) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sends...)
}

// fakeHistory serves canned history. A non-nil gate holds every fetch
// until it is closed.
type fakeHistory struct {
	mu    sync.Mutex
	msgs  []rest.RemoteMessage
	err   error
	calls int
	gate  chan struct{}
}

func (h *fakeHistory) FetchHistory(ctx context.Context, _ string, _ int) ([]rest.RemoteMessage, error) {
	h.mu.Lock()
	h.calls++
	gate := h.gate
	h.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msgs, h.err
}

func (h *fakeHistory) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func (h *fakeHistory) setErr(err error) {
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
}

type env struct {
	db      *store.DB
	engine  *intsync.Engine
	ch      *fakeChannel
	mon     *connectivity.Static
	hist    *fakeHistory
	bus     *bus.Bus
	mgr     *Manager
	notices <-chan bus.Event
}

func newEnv(t *testing.T, online bool) *env {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	for _, id := range []string{"r1", "r2"} {
		if err := db.UpsertChat(&store.Chat{ID: id, Title: "Chat " + id, LastMessage: store.NoMessagesYet}); err != nil {
			t.Fatal(err)
		}
	}

	b := bus.New()
	e := &env{
		db:   db,
		ch:   newFakeChannel(),
		mon:  connectivity.NewStatic(b, online),
		hist: &fakeHistory{},
		bus:  b,
	}
	e.engine = intsync.NewEngine(db, b, nil)
	e.engine.SetUser("alice")
	e.mgr = NewManager(Config{
		DB:      db,
		Engine:  e.engine,
		Channel: e.ch,
		Monitor: e.mon,
		History: e.hist,
		Flusher: outbox.NewFlusher(db, e.ch, b, nil),
		Bus:     b,
	})
	t.Cleanup(e.mgr.Close)

	notices, unsub := b.Subscribe(bus.KindNotice, 16)
	t.Cleanup(unsub)
	e.notices = notices
	return e
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (e *env) notice(t *testing.T) Notice {
	t.Helper()
	select {
	case evt := <-e.notices:
		return evt.Payload.(Notice)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for notice")
		return Notice{}
	}
}

func (e *env) noNotice(t *testing.T) {
	t.Helper()
	select {
	case evt := <-e.notices:
		t.Errorf("unexpected notice %+v", evt.Payload)
	case <-time.After(100 * time.Millisecond):
	}
}

func (e *env) queued(t *testing.T, chatID string) int {
	t.Helper()
	msgs, err := e.db.QueuedMessages(chatID)
	if err != nil {
		t.Fatal(err)
	}
	return len(msgs)
}

func (e *env) joinRoom(t *testing.T, c *Conversation) {
	t.Helper()
	e.ch.setConnected(true)
	e.ch.emit(realtime.Event{Kind: realtime.EventState, State: status.State{Kind: status.Connected}})
	waitFor(t, "join request", func() bool { _, joins, _ := e.ch.counts(); return joins > 0 })
	e.ch.emit(realtime.Event{Kind: realtime.EventJoined, RoomID: c.ID()})
	waitFor(t, "room joined", func() bool {
		joined, err := c.Joined(context.Background())
		return err == nil && joined
	})
}

func TestOfflineSendQueuesAndNotifiesOnce(t *testing.T) {
	e := newEnv(t, false)
	ctx := context.Background()

	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "connect attempt", func() bool { n, _, _ := e.ch.counts(); return n == 1 })

	res, err := c.Send(ctx, "@AI one")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued || !errors.Is(res.Reason, fault.ErrTransport) {
		t.Errorf("got %+v, want queued with transport reason", res)
	}
	if n := e.notice(t); n.Kind != NoticeOffline || n.ChatID != "r1" {
		t.Errorf("notice = %+v, want offline for r1", n)
	}

	res, err = c.Send(ctx, "@AI two")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued {
		t.Error("second send not queued")
	}
	e.noNotice(t)

	if got := e.queued(t, "r1"); got != 2 {
		t.Errorf("queued = %d, want 2", got)
	}
	if _, _, sends := e.ch.counts(); sends != 0 {
		t.Errorf("channel sends = %d, want 0 while offline", sends)
	}
	if calls := e.hist.callCount(); calls != 0 {
		t.Errorf("history fetched %d times while offline", calls)
	}
}

func TestSendValidationHasNoSideEffects(t *testing.T) {
	e := newEnv(t, false)
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = c.Send(context.Background(), "no marker")
	if !errors.Is(err, fault.ErrValidation) {
		t.Fatalf("got %v, want validation fault", err)
	}
	e.noNotice(t)
	if n, err := e.db.MessageCount(); err != nil || n != 0 {
		t.Errorf("message count = %d (%v), want 0", n, err)
	}
}

func TestJoinFlushesQueuedInOrder(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()

	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	for _, text := range []string{"@AI one", "@AI two"} {
		if _, err := c.Send(ctx, text); err != nil {
			t.Fatal(err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	e.joinRoom(t, c)
	waitFor(t, "flush", func() bool { _, _, sends := e.ch.counts(); return sends == 2 })
	got := e.ch.sent()
	if got[0] != "@AI one" || got[1] != "@AI two" {
		t.Errorf("flushed %v, want [@AI one @AI two]", got)
	}

	res, err := c.Send(ctx, "@AI three")
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued {
		t.Errorf("send while joined was queued: %+v", res)
	}
	if got := e.ch.sent(); len(got) != 3 || got[2] != "@AI three" {
		t.Errorf("sends = %v", got)
	}
}

func TestJoinForOtherRoomIgnored(t *testing.T) {
	e := newEnv(t, true)
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	e.ch.setConnected(true)
	e.ch.emit(realtime.Event{Kind: realtime.EventJoined, RoomID: "r2"})

	joined, err := c.Joined(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if joined {
		t.Error("joined after confirmation for another room")
	}
}

func TestDisconnectClearsJoin(t *testing.T) {
	e := newEnv(t, true)
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	e.joinRoom(t, c)

	e.ch.setConnected(false)
	e.ch.emit(realtime.Event{Kind: realtime.EventState, State: status.State{Kind: status.Disconnected}})
	waitFor(t, "join cleared", func() bool {
		joined, err := c.Joined(context.Background())
		return err == nil && !joined
	})

	res, err := c.Send(context.Background(), "@AI later")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Queued {
		t.Error("send after disconnect was not queued")
	}
}

func TestOnlineReconnectsAndSyncsOnce(t *testing.T) {
	e := newEnv(t, false)
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "initial connect", func() bool { n, _, _ := e.ch.counts(); return n == 1 })

	e.mon.Set(true)
	waitFor(t, "reconnect", func() bool { n, _, _ := e.ch.counts(); return n == 2 })
	waitFor(t, "history sync", func() bool {
		synced, err := c.Synced(context.Background())
		return err == nil && synced
	})

	e.mon.Set(false)
	e.mon.Set(true)
	waitFor(t, "second reconnect", func() bool { n, _, _ := e.ch.counts(); return n == 3 })
	if calls := e.hist.callCount(); calls != 1 {
		t.Errorf("history fetched %d times, want 1", calls)
	}
}

func TestFailedSyncRetriesWhenOnline(t *testing.T) {
	e := newEnv(t, true)
	e.hist.setErr(fault.HTTP("fetch history", 503, "unavailable"))

	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "first sync attempt", func() bool { return e.hist.callCount() == 1 })
	if synced, _ := c.Synced(context.Background()); synced {
		t.Fatal("synced after a failed fetch")
	}

	// Keep signalling online until the retry lands; signals that arrive
	// while the failed attempt is still settling are ignored.
	e.hist.setErr(nil)
	waitFor(t, "retried sync", func() bool {
		e.mon.Set(false)
		e.mon.Set(true)
		synced, err := c.Synced(context.Background())
		return err == nil && synced
	})
	if calls := e.hist.callCount(); calls != 2 {
		t.Errorf("history fetched %d times, want 2", calls)
	}
}

func TestOfflineNoticeResetsWhenOnline(t *testing.T) {
	e := newEnv(t, false)
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Send(context.Background(), "@AI one"); err != nil {
		t.Fatal(err)
	}
	if n := e.notice(t); n.Kind != NoticeOffline {
		t.Fatalf("notice = %+v, want offline", n)
	}

	e.mon.Set(true)
	waitFor(t, "reconnect", func() bool { n, _, _ := e.ch.counts(); return n == 2 })

	if _, err := c.Send(context.Background(), "@AI two"); err != nil {
		t.Fatal(err)
	}
	if n := e.notice(t); n.Kind != NoticeOffline {
		t.Errorf("notice = %+v, want offline again after reconnecting", n)
	}
}

func TestErrorNoticesOnlyWhenOnline(t *testing.T) {
	e := newEnv(t, false)
	if _, err := e.mgr.Open("r1"); err != nil {
		t.Fatal(err)
	}

	e.ch.emit(realtime.Event{Kind: realtime.EventState, State: status.State{Kind: status.Error, Reason: "dial failed"}})
	e.ch.emit(realtime.Event{Kind: realtime.EventError, Err: "dial failed"})
	e.noNotice(t)

	e.mon.Set(true)
	e.ch.emit(realtime.Event{Kind: realtime.EventError, Err: "room not found"})
	n := e.notice(t)
	if n.Kind != NoticeError || n.Text != "room not found" {
		t.Errorf("notice = %+v, want error room not found", n)
	}
}

func TestIngestsOnlyCurrentRoom(t *testing.T) {
	e := newEnv(t, true)
	if _, err := e.mgr.Open("r1"); err != nil {
		t.Fatal(err)
	}

	e.ch.emit(realtime.Event{Kind: realtime.EventMessage, Message: realtime.InboundMessage{ID: "s2", RoomID: "r2", Sender: "bob", Text: "elsewhere"}})
	e.ch.emit(realtime.Event{Kind: realtime.EventMessage, Message: realtime.InboundMessage{ID: "s1", RoomID: "r1", Sender: "bob", Text: "hello"}})

	waitFor(t, "ingest", func() bool {
		m, err := e.db.GetMessage("s1")
		return err == nil && m != nil
	})
	if m, _ := e.db.GetMessage("s2"); m != nil {
		t.Error("message for another room was ingested by the conversation")
	}
	chat, err := e.db.GetChat("r1")
	if err != nil {
		t.Fatal(err)
	}
	if chat.LastMessage != "hello" {
		t.Errorf("preview = %q, want hello", chat.LastMessage)
	}
}

func TestRetryRequiresJoinedRoom(t *testing.T) {
	e := newEnv(t, true)
	ctx := context.Background()
	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.Send(ctx, "@AI again")
	if err != nil {
		t.Fatal(err)
	}

	err = c.Retry(ctx, res.Message.ID)
	if !errors.Is(err, fault.ErrTransport) {
		t.Fatalf("got %v, want transport fault", err)
	}
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Msg != "Not connected to server" {
		t.Errorf("msg = %q", fe.Msg)
	}

	e.joinRoom(t, c)
	waitFor(t, "flush", func() bool { _, _, sends := e.ch.counts(); return sends == 1 })
	if err := c.Retry(ctx, res.Message.ID); err != nil {
		t.Fatal(err)
	}
	if _, _, sends := e.ch.counts(); sends != 2 {
		t.Errorf("sends = %d, want 2 after retry", sends)
	}
}

func TestManagerSwitchesChats(t *testing.T) {
	e := newEnv(t, false)

	first, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	same, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	if same != first {
		t.Error("reopening the current chat created a new conversation")
	}

	if _, err := e.mgr.Open("r2"); err != nil {
		t.Fatal(err)
	}
	if got := e.engine.Current(); got != "r2" {
		t.Errorf("current = %q, want r2", got)
	}
	if _, err := first.Send(context.Background(), "@AI stale"); !errors.Is(err, ErrClosed) {
		t.Errorf("send on closed conversation = %v, want ErrClosed", err)
	}

	e.mgr.CloseIf("r1")
	if e.mgr.Active() == nil {
		t.Error("CloseIf closed a different chat")
	}
	e.mgr.Close()
	if e.mgr.Active() != nil || e.engine.Current() != "" {
		t.Error("Close left a chat open")
	}

	if _, err := e.mgr.Open("missing"); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("open missing chat = %v, want validation fault", err)
	}
}

func TestOpenMarksRead(t *testing.T) {
	e := newEnv(t, false)
	for i := 0; i < 2; i++ {
		if err := e.db.IncrementUnread("r1"); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := e.mgr.Open("r1"); err != nil {
		t.Fatal(err)
	}
	chat, err := e.db.GetChat("r1")
	if err != nil {
		t.Fatal(err)
	}
	if chat.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", chat.UnreadCount)
	}
}

func TestJoinDuringHistorySyncFlushesAfterMerge(t *testing.T) {
	e := newEnv(t, true)
	gate := make(chan struct{})
	e.hist.gate = gate
	e.hist.msgs = []rest.RemoteMessage{
		{ID: "srv-9", RoomID: "r1", SenderUsername: "alice", Text: "@AI hi", CreatedAt: "2024-01-02T03:04:05"},
	}
	if err := e.db.UpsertMessage(&store.Message{
		ID: "local-1", ChatID: "r1", Content: "@AI hi", Timestamp: 1000,
		IsFromUser: true, SenderUsername: "alice", State: store.Queued,
	}); err != nil {
		t.Fatal(err)
	}

	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "history fetch", func() bool { return e.hist.callCount() == 1 })
	e.joinRoom(t, c)

	time.Sleep(50 * time.Millisecond)
	if got := e.ch.sent(); len(got) != 0 {
		t.Fatalf("sent %v before history was merged", got)
	}

	close(gate)
	waitFor(t, "history sync", func() bool {
		synced, err := c.Synced(context.Background())
		return err == nil && synced
	})
	if got := e.ch.sent(); len(got) != 0 {
		t.Errorf("sent %v, want nothing once the server copy was adopted", got)
	}

	e.ch.emit(realtime.Event{Kind: realtime.EventMessage, Message: realtime.InboundMessage{ID: "srv-9", RoomID: "r1", Sender: "alice", Text: "@AI hi"}})
	time.Sleep(50 * time.Millisecond)
	msgs, err := e.db.ListMessages("r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].ID != "local-1" || msgs[0].ServerMessageID != "srv-9" {
		t.Errorf("messages = %+v, want local-1 carrying srv-9", msgs)
	}
}

func TestJoinDuringHistorySyncStillFlushesUnknownRows(t *testing.T) {
	e := newEnv(t, true)
	gate := make(chan struct{})
	e.hist.gate = gate
	if err := e.db.UpsertMessage(&store.Message{
		ID: "local-1", ChatID: "r1", Content: "@AI pending", Timestamp: 1000,
		IsFromUser: true, SenderUsername: "alice", State: store.Queued,
	}); err != nil {
		t.Fatal(err)
	}

	c, err := e.mgr.Open("r1")
	if err != nil {
		t.Fatal(err)
	}
	waitFor(t, "history fetch", func() bool { return e.hist.callCount() == 1 })
	e.joinRoom(t, c)
	close(gate)

	waitFor(t, "deferred flush", func() bool { _, _, sends := e.ch.counts(); return sends == 1 })
	if got := e.ch.sent(); got[0] != "@AI pending" {
		t.Errorf("sent %v, want [@AI pending]", got)
	}
}

func TestMessageBeforeRunIsIngested(t *testing.T) {
	e := newEnv(t, false)
	c := newConversation("r1", e.mgr.d)
	c.subscribe()
	e.ch.emit(realtime.Event{Kind: realtime.EventMessage, Message: realtime.InboundMessage{ID: "s1", RoomID: "r1", Sender: "bob", Text: "early"}})
	e.engine.Select("r1")
	c.run()
	t.Cleanup(c.close)

	waitFor(t, "ingest", func() bool {
		m, err := e.db.GetMessage("s1")
		return err == nil && m != nil
	})
}

func TestCloseIngestsBufferedMessages(t *testing.T) {
	e := newEnv(t, false)
	c := newConversation("r1", e.mgr.d)
	c.subscribe()
	e.engine.Select("r1")
	for _, id := range []string{"s1", "s2"} {
		e.ch.emit(realtime.Event{Kind: realtime.EventMessage, Message: realtime.InboundMessage{ID: id, RoomID: "r1", Sender: "bob", Text: "late " + id}})
	}
	e.engine.ClearIf("r1")
	c.cancel()
	c.run()
	<-c.done

	for _, id := range []string{"s1", "s2"} {
		if m, err := e.db.GetMessage(id); err != nil || m == nil {
			t.Errorf("message %s not stored after close (%v)", id, err)
		}
	}
}
