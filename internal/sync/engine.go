// Package sync reconciles the local store with the room server: outbound
// queueing, realtime ingestion with echo matching, and history merges.
package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/metrics"
	"github.com/matheus3301/roomchat/internal/realtime"
	"github.com/matheus3301/roomchat/internal/store"
)

// IngestOutcome tags what IngestInbound did with a server message.
type IngestOutcome int

const (
	// Inserted stored a new Delivered row.
	Inserted IngestOutcome = iota + 1
	// Acknowledged matched the echo to a Queued local row and marked it sent.
	Acknowledged
	// Duplicate found the server id already stored.
	Duplicate
)

func (o IngestOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Acknowledged:
		return "acknowledged"
	case Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// IngestResult is published on the bus after every ingestion.
type IngestResult struct {
	Outcome IngestOutcome
	ChatID  string
	// MessageID is the local row the message landed on.
	MessageID string
	ServerID  string
}

// Engine owns every write that reconciles local and server state, plus the
// process-wide current chat selector.
type Engine struct {
	db       *store.DB
	bus      *bus.Bus
	logger   *zap.Logger
	validate *validator.Validate

	// ingest serialises ingestion and merges so echo matching never races.
	ingest sync.Mutex

	mu      sync.RWMutex
	current string
	user    string
	cancel  context.CancelFunc
}

// NewEngine creates a new sync engine.
func NewEngine(db *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		db:       db,
		bus:      b,
		logger:   logger.Named("sync"),
		validate: newValidator(),
	}
}

// SetUser records the logged-in username used to tell own messages apart.
func (e *Engine) SetUser(username string) {
	e.mu.Lock()
	e.user = username
	e.mu.Unlock()
}

// User returns the logged-in username.
func (e *Engine) User() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.user
}

// Select makes chatID the current chat.
func (e *Engine) Select(chatID string) {
	e.mu.Lock()
	e.current = chatID
	e.mu.Unlock()
}

// Current returns the current chat id, or "" when none is open.
func (e *Engine) Current() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// ClearCurrent drops the selection.
func (e *Engine) ClearCurrent() {
	e.mu.Lock()
	e.current = ""
	e.mu.Unlock()
}

// ClearIf drops the selection only if it is chatID, and reports whether it
// did.
func (e *Engine) ClearIf(chatID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != chatID {
		return false
	}
	e.current = ""
	return true
}

// Start handles channel events for chats that are not open: messages are
// ingested and counted as unread, and joins for unknown rooms create the
// chat. The open chat's events belong to its conversation.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)
	ch, unsub := e.bus.Subscribe("realtime.", 256)

	go func() {
		defer unsub()
		for {
			select {
			case evt := <-ch:
				e.handleEvent(ctx, evt)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop stops the engine.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
}

func (e *Engine) handleEvent(ctx context.Context, evt bus.Event) {
	re, ok := evt.Payload.(realtime.Event)
	if !ok {
		return
	}
	switch re.Kind {
	case realtime.EventMessage:
		if re.Message.RoomID == e.Current() {
			return
		}
		if err := e.ingestBackground(ctx, re.Message); err != nil {
			e.logger.Error("failed to ingest message", zap.Error(err), zap.String("msg_id", re.Message.ID))
		}
	case realtime.EventJoined:
		if err := e.ensureChat(re.RoomID); err != nil {
			e.logger.Error("failed to create chat for joined room", zap.Error(err), zap.String("room_id", re.RoomID))
		}
	case realtime.EventState, realtime.EventError:
	}
}

func (e *Engine) ingestBackground(ctx context.Context, m realtime.InboundMessage) error {
	chat, err := e.db.GetChat(m.RoomID)
	if err != nil {
		return err
	}
	if chat == nil {
		e.logger.Debug("ignoring message for unknown room", zap.String("room_id", m.RoomID))
		return nil
	}

	user := e.User()
	res, err := e.IngestInbound(ctx, m, user)
	if err != nil {
		return err
	}
	if res.Outcome == Inserted && m.Sender != user {
		return e.db.IncrementUnread(m.RoomID)
	}
	return nil
}

// ensureChat creates a chat for a joined room the store does not know yet.
func (e *Engine) ensureChat(roomID string) error {
	chat, err := e.db.GetChat(roomID)
	if err != nil || chat != nil {
		return err
	}
	e.logger.Info("creating chat for joined room", zap.String("room_id", roomID))
	return e.db.UpsertChat(&store.Chat{
		ID:                   roomID,
		Title:                roomID,
		LastMessage:          store.NoMessagesYet,
		LastMessageTimestamp: time.Now().UnixMilli(),
	})
}

// QueueOutbound validates and persists a draft as a Queued message. The row
// exists before any send is attempted.
func (e *Engine) QueueOutbound(ctx context.Context, chatID, sender, content string) (*store.Message, error) {
	text, err := e.ValidateDraft(content)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ChatID:         chatID,
		Content:        text,
		Timestamp:      time.Now().UnixMilli(),
		IsFromUser:     true,
		SenderUsername: sender,
		State:          store.Queued,
	}
	if err := e.db.UpsertMessage(msg); err != nil {
		return nil, err
	}
	metrics.MessagesQueued().Inc()
	e.logger.Debug("message queued", zap.String("msg_id", msg.ID), zap.String("chat_id", chatID))
	return msg, nil
}

// IngestInbound stores a realtime message. A server id already in the store,
// as a row id or an adopted server id, is a duplicate. Otherwise own messages
// are matched against Queued rows by content so the echo acknowledges the
// local copy instead of duplicating it. The chat preview is updated in every
// case.
func (e *Engine) IngestInbound(ctx context.Context, m realtime.InboundMessage, currentUser string) (IngestResult, error) {
	if err := ctx.Err(); err != nil {
		return IngestResult{}, err
	}
	e.ingest.Lock()
	defer e.ingest.Unlock()

	ts := e.Timestamp(m.CreatedAt)
	res := IngestResult{ChatID: m.RoomID, ServerID: m.ID}

	exists, err := e.db.MessageExists(m.ID)
	if err != nil {
		return IngestResult{}, err
	}
	if exists {
		res.Outcome = Duplicate
		res.MessageID = m.ID
		metrics.MessagesDuplicate().Inc()
	} else if m.Sender == currentUser {
		queued, err := e.db.QueuedMessages(m.RoomID)
		if err != nil {
			return IngestResult{}, err
		}
		for _, q := range queued {
			if q.Content != m.Text {
				continue
			}
			if err := e.db.MarkMessageSent(q.ID, m.ID); err != nil {
				return IngestResult{}, err
			}
			res.Outcome = Acknowledged
			res.MessageID = q.ID
			metrics.MessagesDelivered().WithLabelValues(metrics.SourceEcho).Inc()
			break
		}
	}

	if res.Outcome == 0 {
		if err := e.db.UpsertMessage(&store.Message{
			ID:              m.ID,
			ChatID:          m.RoomID,
			Content:         m.Text,
			Timestamp:       ts,
			IsFromUser:      m.Sender == currentUser,
			SenderUsername:  m.Sender,
			State:           store.Delivered,
			ServerMessageID: m.ID,
		}); err != nil {
			return IngestResult{}, err
		}
		res.Outcome = Inserted
		res.MessageID = m.ID
		metrics.MessagesDelivered().WithLabelValues(metrics.SourcePush).Inc()
	}

	if err := e.db.UpdateLastMessage(m.RoomID, m.Text, ts); err != nil {
		return IngestResult{}, err
	}

	e.logger.Debug("message ingested",
		zap.String("chat_id", m.RoomID),
		zap.String("server_id", m.ID),
		zap.Stringer("outcome", res.Outcome),
	)
	e.bus.Emit(bus.KindMessageIngested, res)
	return res, nil
}
