package model

import (
	"context"
	"errors"
	"sync"

	"github.com/matheus3301/roomchat/internal/api"
	"github.com/matheus3301/roomchat/internal/tui/ui"
	"google.golang.org/grpc"
)

// Client is the daemon API the TUI talks to. *api.Client satisfies it.
type Client interface {
	Status(ctx context.Context) (*api.StatusResponse, error)
	Login(ctx context.Context, username string) (*api.LoginResponse, error)
	WatchEvents(ctx context.Context, prefix string) (grpc.ServerStreamingClient[api.Event], error)
	ListChats(ctx context.Context) ([]api.Chat, error)
	CreateChat(ctx context.Context) (*api.Chat, error)
	DeleteChat(ctx context.Context, chatID string) error
	OpenChat(ctx context.Context, chatID string) (*api.Chat, error)
	CloseChat(ctx context.Context) error
	WatchChats(ctx context.Context) (grpc.ServerStreamingClient[api.ListChatsResponse], error)
	ListMessages(ctx context.Context, chatID string) ([]api.Message, error)
	Send(ctx context.Context, chatID, text string) (*api.SendResponse, error)
	Retry(ctx context.Context, chatID, messageID string) error
	WatchMessages(ctx context.Context, chatID string) (grpc.ServerStreamingClient[api.ListMessagesResponse], error)
}

var errNoActiveChat = errors.New("no chat open")

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	client   Client
	status   *api.StatusResponse
	chats    []api.Chat
	messages []api.Message
	active   *api.Chat
	Flash    *ui.FlashModel

	refreshCh chan struct{}
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c Client) *ViewModel {
	return &ViewModel{
		client:    c,
		Flash:     ui.NewFlashModel(),
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadStatus fetches the daemon status.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	resp, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.status = resp
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadChats fetches the chat list.
func (vm *ViewModel) LoadChats(ctx context.Context) error {
	chats, err := vm.client.ListChats(ctx)
	if err != nil {
		return err
	}
	vm.SetChats(chats)
	return nil
}

// SetChats replaces the cached chat list, e.g. from a watch snapshot.
func (vm *ViewModel) SetChats(chats []api.Chat) {
	vm.mu.Lock()
	vm.chats = chats
	if vm.active != nil {
		for i := range chats {
			if chats[i].ID == vm.active.ID {
				c := chats[i]
				vm.active = &c
				break
			}
		}
	}
	vm.mu.Unlock()
	vm.signalRefresh()
}

// SetMessages replaces the cached thread if chatID is still the active chat.
func (vm *ViewModel) SetMessages(chatID string, msgs []api.Message) {
	vm.mu.Lock()
	if vm.active == nil || vm.active.ID != chatID {
		vm.mu.Unlock()
		return
	}
	vm.messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
}

// Login verifies username with the daemon and reloads status.
func (vm *ViewModel) Login(ctx context.Context, username string) error {
	resp, err := vm.client.Login(ctx, username)
	if err != nil {
		return err
	}
	vm.Flash.Info("Logged in as " + resp.Username)
	return vm.LoadStatus(ctx)
}

// CreateChat creates a room and returns it.
func (vm *ViewModel) CreateChat(ctx context.Context) (*api.Chat, error) {
	chat, err := vm.client.CreateChat(ctx)
	if err != nil {
		return nil, err
	}
	vm.Flash.Info("Created " + chat.Title)
	return chat, vm.LoadChats(ctx)
}

// DeleteChat deletes a room. Deleting the active chat leaves it.
func (vm *ViewModel) DeleteChat(ctx context.Context, chatID string) error {
	if err := vm.client.DeleteChat(ctx, chatID); err != nil {
		return err
	}
	vm.mu.Lock()
	if vm.active != nil && vm.active.ID == chatID {
		vm.active = nil
		vm.messages = nil
	}
	vm.mu.Unlock()
	return vm.LoadChats(ctx)
}

// OpenChat opens chatID on the daemon and loads its thread.
func (vm *ViewModel) OpenChat(ctx context.Context, chatID string) (*api.Chat, error) {
	chat, err := vm.client.OpenChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	msgs, err := vm.client.ListMessages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	vm.mu.Lock()
	vm.active = chat
	vm.messages = msgs
	vm.mu.Unlock()
	vm.signalRefresh()
	return chat, nil
}

// CloseChat leaves the active chat.
func (vm *ViewModel) CloseChat(ctx context.Context) error {
	vm.mu.Lock()
	vm.active = nil
	vm.messages = nil
	vm.mu.Unlock()
	vm.signalRefresh()
	return vm.client.CloseChat(ctx)
}

// SendText sends text to the active chat.
func (vm *ViewModel) SendText(ctx context.Context, text string) (*api.SendResponse, error) {
	chat := vm.ActiveChat()
	if chat == nil {
		return nil, errNoActiveChat
	}
	resp, err := vm.client.Send(ctx, chat.ID, text)
	if err != nil {
		return nil, err
	}
	if resp.Queued {
		msg := "Message queued"
		if resp.Reason != "" {
			msg += ": " + resp.Reason
		}
		vm.Flash.Warn(msg)
	}
	vm.signalRefresh()
	return resp, nil
}

// RetryLast resends the newest unsent message of the active chat.
func (vm *ViewModel) RetryLast(ctx context.Context) error {
	chat := vm.ActiveChat()
	if chat == nil {
		return errNoActiveChat
	}
	id := vm.LastUnsent()
	if id == "" {
		vm.Flash.Info("Nothing to retry")
		return nil
	}
	return vm.client.Retry(ctx, chat.ID, id)
}

// LastUnsent returns the id of the newest own message that is queued or
// failed, or "".
func (vm *ViewModel) LastUnsent() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	for i := len(vm.messages) - 1; i >= 0; i-- {
		m := vm.messages[i]
		if m.IsFromUser && (m.State == "queued" || m.State == "failed") {
			return m.ID
		}
	}
	return ""
}

// Chats returns a snapshot of the current chat list.
func (vm *ViewModel) Chats() []api.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.chats
}

// Messages returns a snapshot of the active thread.
func (vm *ViewModel) Messages() []api.Message {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.messages
}

// ActiveChat returns the open chat, or nil.
func (vm *ViewModel) ActiveChat() *api.Chat {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if vm.active == nil {
		return nil
	}
	c := *vm.active
	return &c
}

// Status returns a snapshot of the daemon status.
func (vm *ViewModel) Status() *api.StatusResponse {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.status
}

// Client returns the underlying daemon client.
func (vm *ViewModel) Client() Client {
	return vm.client
}
