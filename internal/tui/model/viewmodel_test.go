package model

import (
	"context"
	"errors"
	"testing"

	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/tui/ui"
	"google.golang.org/grpc"
)

type fakeClient struct {
	chats    []api.Chat
	messages map[string][]api.Message
	sendResp *api.SendResponse
	retried  []string
	closed   int
	err      error
}

func (f *fakeClient) Status(context.Context) (*api.StatusResponse, error) {
	return &api.StatusResponse{Profile: "main", Username: "alice"}, f.err
}

func (f *fakeClient) Login(_ context.Context, username string) (*api.LoginResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.LoginResponse{UserID: "u1", Username: username}, nil
}

func (f *fakeClient) WatchEvents(context.Context, string) (grpc.ServerStreamingClient[api.Event], error) {
	return nil, errors.New("not streaming")
}

func (f *fakeClient) ListChats(context.Context) ([]api.Chat, error) { return f.chats, f.err }

func (f *fakeClient) CreateChat(context.Context) (*api.Chat, error) {
	c := api.Chat{ID: "new", Title: "Chat 3"}
	f.chats = append(f.chats, c)
	return &c, nil
}

func (f *fakeClient) DeleteChat(_ context.Context, chatID string) error {
	for i, c := range f.chats {
		if c.ID == chatID {
			f.chats = append(f.chats[:i], f.chats[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeClient) OpenChat(_ context.Context, chatID string) (*api.Chat, error) {
	for _, c := range f.chats {
		if c.ID == chatID {
			return &c, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeClient) CloseChat(context.Context) error {
	f.closed++
	return nil
}

func (f *fakeClient) WatchChats(context.Context) (grpc.ServerStreamingClient[api.ListChatsResponse], error) {
	return nil, errors.New("not streaming")
}

func (f *fakeClient) ListMessages(_ context.Context, chatID string) ([]api.Message, error) {
	return f.messages[chatID], nil
}

func (f *fakeClient) Send(_ context.Context, chatID, text string) (*api.SendResponse, error) {
	return f.sendResp, f.err
}

func (f *fakeClient) Retry(_ context.Context, chatID, messageID string) error {
	f.retried = append(f.retried, chatID+"/"+messageID)
	return nil
}

func (f *fakeClient) WatchMessages(context.Context, string) (grpc.ServerStreamingClient[api.ListMessagesResponse], error) {
	return nil, errors.New("not streaming")
}

func newFake() *fakeClient {
	return &fakeClient{
		chats: []api.Chat{{ID: "r1", Title: "Chat 1"}, {ID: "r2", Title: "Chat 2"}},
		messages: map[string][]api.Message{
			"r1": {
				{ID: "m1", IsFromUser: true, State: "failed"},
				{ID: "m2", IsFromUser: true, State: "queued"},
				{ID: "m3", SenderUsername: "bob", State: "delivered"},
			},
		},
	}
}

func TestOpenAndCloseChat(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	vm := NewViewModel(f)

	if _, err := vm.OpenChat(ctx, "r1"); err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	if c := vm.ActiveChat(); c == nil || c.ID != "r1" {
		t.Fatalf("active = %+v, want r1", c)
	}
	if got := len(vm.Messages()); got != 3 {
		t.Errorf("got %d messages, want 3", got)
	}

	vm.SetMessages("r2", nil)
	if got := len(vm.Messages()); got != 3 {
		t.Errorf("snapshot for another chat replaced thread: %d messages", got)
	}

	if err := vm.CloseChat(ctx); err != nil {
		t.Fatal(err)
	}
	if vm.ActiveChat() != nil || vm.Messages() != nil || f.closed != 1 {
		t.Errorf("chat still open after CloseChat")
	}
}

func TestRetryLastPicksNewestUnsent(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	vm := NewViewModel(f)

	if err := vm.RetryLast(ctx); err == nil {
		t.Error("RetryLast() without open chat expected error")
	}
	if _, err := vm.OpenChat(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := vm.RetryLast(ctx); err != nil {
		t.Fatal(err)
	}
	if len(f.retried) != 1 || f.retried[0] != "r1/m2" {
		t.Errorf("retried %v, want [r1/m2]", f.retried)
	}
}

func TestSendTextQueuedFlashes(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	f.sendResp = &api.SendResponse{Queued: true, Reason: "offline"}
	vm := NewViewModel(f)

	if _, err := vm.SendText(ctx, "hi"); err == nil {
		t.Error("SendText() without open chat expected error")
	}
	if _, err := vm.OpenChat(ctx, "r2"); err != nil {
		t.Fatal(err)
	}
	if _, err := vm.SendText(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	msg := vm.Flash.GetMessage()
	if msg == nil || msg.Level != ui.FlashWarn || msg.Text != "Message queued: offline" {
		t.Errorf("flash = %+v", msg)
	}
}

func TestDeleteActiveChatLeavesIt(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	vm := NewViewModel(f)

	if _, err := vm.OpenChat(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if err := vm.DeleteChat(ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	if vm.ActiveChat() != nil {
		t.Error("deleted chat still active")
	}
	if got := vm.Chats(); len(got) != 1 || got[0].ID != "r2" {
		t.Errorf("chats = %+v, want [r2]", got)
	}
}

func TestSetChatsRefreshesActive(t *testing.T) {
	ctx := context.Background()
	vm := NewViewModel(newFake())
	if _, err := vm.OpenChat(ctx, "r2"); err != nil {
		t.Fatal(err)
	}

	vm.SetChats([]api.Chat{{ID: "r2", Title: "Chat 2", UnreadCount: 0, LastMessage: "new"}})
	if c := vm.ActiveChat(); c.LastMessage != "new" {
		t.Errorf("active last message = %q, want new", c.LastMessage)
	}
	select {
	case <-vm.RefreshCh():
	default:
		t.Error("no refresh signalled")
	}
}

func TestLoginFailure(t *testing.T) {
	f := newFake()
	f.err = errors.New("user not found")
	vm := NewViewModel(f)
	if err := vm.Login(context.Background(), "ghost"); err == nil {
		t.Error("Login() expected error")
	}
	if vm.Status() != nil {
		t.Error("status loaded after failed login")
	}
}
