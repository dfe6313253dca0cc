// Package outbox pushes a chat's Queued messages to the realtime channel.
// Rows stay Queued after a send; only the server's echo marks them sent.
package outbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/store"
)

// Transmitter writes a message to a room. *realtime.Channel implements it.
type Transmitter interface {
	Send(ctx context.Context, roomID, text string) error
}

// FlushResult is published on the bus after every flush.
type FlushResult struct {
	ChatID string
	// Sent is how many Queued messages were written to the channel.
	Sent int
	// Remaining were left Queued because the channel stopped being ready or
	// a write failed.
	Remaining int
}

// Flusher drains the outbox of one chat at a time.
type Flusher struct {
	db     *store.DB
	tx     Transmitter
	bus    *bus.Bus
	logger *zap.Logger
}

// NewFlusher creates a new outbox flusher.
func NewFlusher(db *store.DB, tx Transmitter, b *bus.Bus, logger *zap.Logger) *Flusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Flusher{
		db:     db,
		tx:     tx,
		bus:    b,
		logger: logger.Named("outbox"),
	}
}

// Flush sends the chat's Queued messages oldest first. ready is checked
// before every send so a drop mid-flush leaves the rest queued. The first
// write error stops the flush and is returned.
func (f *Flusher) Flush(ctx context.Context, chatID string, ready func() bool) (FlushResult, error) {
	res := FlushResult{ChatID: chatID}

	pending, err := f.db.QueuedMessages(chatID)
	if err != nil {
		return res, err
	}
	if len(pending) == 0 {
		return res, nil
	}

	var sendErr error
	for i, m := range pending {
		if err := ctx.Err(); err != nil {
			sendErr = err
		} else if !ready() {
			sendErr = fault.New(fault.Transport, "flush outbox", "channel not ready")
		} else if err := f.tx.Send(ctx, chatID, m.Content); err != nil {
			sendErr = err
		}
		if sendErr != nil {
			res.Remaining = len(pending) - i
			break
		}
		res.Sent++
		f.logger.Debug("queued message sent", zap.String("msg_id", m.ID), zap.String("chat_id", chatID))
	}

	if sendErr != nil {
		f.logger.Warn("outbox flush stopped",
			zap.String("chat_id", chatID), zap.Int("sent", res.Sent), zap.Int("remaining", res.Remaining), zap.Error(sendErr))
	} else {
		f.logger.Info("outbox flushed", zap.String("chat_id", chatID), zap.Int("sent", res.Sent))
	}
	f.bus.Emit(bus.KindOutboxFlushed, res)
	return res, sendErr
}

// Resend writes one message again. A message the server already
// acknowledged is left alone.
func (f *Flusher) Resend(ctx context.Context, chatID, messageID string) error {
	m, err := f.db.GetMessage(messageID)
	if err != nil {
		return err
	}
	if m == nil || m.ChatID != chatID {
		return fault.New(fault.Validation, "resend message", "message not found")
	}
	if m.State.SentToServer() {
		f.logger.Debug("resend skipped, already delivered", zap.String("msg_id", messageID))
		return nil
	}
	if err := f.tx.Send(ctx, chatID, m.Content); err != nil {
		return err
	}
	f.logger.Info("message resent", zap.String("msg_id", messageID), zap.String("chat_id", chatID))
	return nil
}
