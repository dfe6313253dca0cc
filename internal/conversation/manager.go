package conversation

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/connectivity"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/outbox"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// DefaultHistoryLimit is how many messages a history sync asks for.
const DefaultHistoryLimit = 50

// Config wires a Manager.
type Config struct {
	DB           *store.DB
	Engine       *intsync.Engine
	Channel      Channel
	Monitor      connectivity.Monitor
	History      intsync.HistorySource
	Flusher      *outbox.Flusher
	Bus          *bus.Bus
	HistoryLimit int
	Logger       *zap.Logger
}

// Manager keeps at most one conversation open, matching the engine's
// current chat selector.
type Manager struct {
	d *deps

	mu     sync.Mutex
	active *Conversation
}

// NewManager creates a manager with nothing open.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	limit := cfg.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Manager{d: &deps{
		db:           cfg.DB,
		engine:       cfg.Engine,
		channel:      cfg.Channel,
		monitor:      cfg.Monitor,
		history:      cfg.History,
		flusher:      cfg.Flusher,
		bus:          cfg.Bus,
		historyLimit: limit,
		logger:       logger.Named("conversation"),
	}}
}

// Open makes chatID the current chat: any previous conversation is closed,
// the chat is marked read and a new conversation starts. Opening the chat
// that is already open returns it unchanged.
func (m *Manager) Open(chatID string) (*Conversation, error) {
	chat, err := m.d.db.GetChat(chatID)
	if err != nil {
		return nil, err
	}
	if chat == nil {
		return nil, fault.New(fault.Validation, "open chat", "chat not found")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.id == chatID {
		return m.active, nil
	}
	m.closeLocked()

	// Subscribe before selecting so a message that arrives in between is
	// buffered for the conversation rather than skipped by the engine.
	c := newConversation(chatID, m.d)
	c.subscribe()
	m.d.engine.Select(chatID)
	if err := m.d.db.MarkChatRead(chatID); err != nil {
		m.d.engine.ClearCurrent()
		c.unsubscribe()
		c.cancel()
		return nil, err
	}

	c.run()
	m.active = c
	m.d.logger.Info("chat opened", zap.String("chat_id", chatID))
	m.d.bus.Emit(bus.KindChatOpened, chatID)
	return c, nil
}

// Active returns the open conversation, or nil.
func (m *Manager) Active() *Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Close closes the open conversation, if any. The channel stays up.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

// CloseIf closes the open conversation only if it is chatID.
func (m *Manager) CloseIf(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.id == chatID {
		m.closeLocked()
	}
}

func (m *Manager) closeLocked() {
	if m.active == nil {
		return
	}
	id := m.active.id
	m.d.engine.ClearIf(id)
	m.active.close()
	m.active = nil
	m.d.logger.Info("chat closed", zap.String("chat_id", id))
	m.d.bus.Emit(bus.KindChatClosed, id)
}

// Send opens chatID if needed and sends text through its conversation.
func (m *Manager) Send(ctx context.Context, chatID, text string) (SendResult, error) {
	c, err := m.Open(chatID)
	if err != nil {
		return SendResult{}, err
	}
	return c.Send(ctx, text)
}

// Retry opens chatID if needed and resends one message.
func (m *Manager) Retry(ctx context.Context, chatID, messageID string) error {
	c, err := m.Open(chatID)
	if err != nil {
		return err
	}
	return c.Retry(ctx, messageID)
}
