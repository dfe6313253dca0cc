package sync

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/bus"
	"github.com/matheus3301/roomchat/internal/metrics"
	"github.com/matheus3301/roomchat/internal/rest"
	"github.com/matheus3301/roomchat/internal/store"
)

// HistorySource fetches a room's recent messages.
type HistorySource interface {
	FetchHistory(ctx context.Context, roomID string, limit int) ([]rest.RemoteMessage, error)
}

// MergeResult summarises a history merge.
type MergeResult struct {
	ChatID string
	// Fetched is the number of server messages considered.
	Fetched int
	// Inserted rows were new to the store.
	Inserted int
	// Adopted rows were local copies that took the server id.
	Adopted int
	// Duplicates were already stored under the server id.
	Duplicates int
}

type timedMessage struct {
	rest.RemoteMessage
	ts int64
}

// MergeHistory folds a fetched history into the store. Entries are ordered by
// timestamp first, so the chat preview ends on the newest one. An entry whose
// id is already stored is skipped; one matching an unmerged local row by
// content and sender lends that row its id; anything else is inserted.
func (e *Engine) MergeHistory(ctx context.Context, chatID string, remote []rest.RemoteMessage, currentUser string) (MergeResult, error) {
	e.ingest.Lock()
	defer e.ingest.Unlock()

	res := MergeResult{ChatID: chatID, Fetched: len(remote)}

	entries := make([]timedMessage, len(remote))
	for i, r := range remote {
		entries[i] = timedMessage{RemoteMessage: r, ts: e.Timestamp(r.CreatedAt)}
	}
	slices.SortStableFunc(entries, func(a, b timedMessage) int {
		switch {
		case a.ts < b.ts:
			return -1
		case a.ts > b.ts:
			return 1
		default:
			return 0
		}
	})

	for _, r := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		exists, err := e.db.MessageExists(r.ID)
		if err != nil {
			return res, err
		}
		if exists {
			res.Duplicates++
			metrics.MessagesDuplicate().Inc()
			continue
		}

		local, err := e.db.FindUnmergedByContentSender(chatID, r.Text, r.SenderUsername)
		if err != nil {
			return res, err
		}
		if local != nil {
			if err := e.db.MarkMessageSent(local.ID, r.ID); err != nil {
				return res, err
			}
			res.Adopted++
			metrics.MessagesDelivered().WithLabelValues(metrics.SourceHistory).Inc()
			continue
		}

		if err := e.db.UpsertMessage(&store.Message{
			ID:              r.ID,
			ChatID:          chatID,
			Content:         r.Text,
			Timestamp:       r.ts,
			IsFromUser:      r.SenderUsername == currentUser,
			SenderUsername:  r.SenderUsername,
			State:           store.Delivered,
			ServerMessageID: r.ID,
		}); err != nil {
			return res, err
		}
		res.Inserted++
		metrics.MessagesDelivered().WithLabelValues(metrics.SourceHistory).Inc()
	}

	if n := len(entries); n > 0 {
		last := entries[n-1]
		if err := e.db.UpdateLastMessage(chatID, last.Text, last.ts); err != nil {
			return res, err
		}
	}

	e.logger.Info("history merged",
		zap.String("chat_id", chatID),
		zap.Int("fetched", res.Fetched),
		zap.Int("inserted", res.Inserted),
		zap.Int("adopted", res.Adopted),
		zap.Int("duplicates", res.Duplicates),
	)
	e.bus.Emit(bus.KindHistoryMerged, res)
	return res, nil
}

// SyncHistory fetches up to limit messages from src and merges them. Any
// failure is returned unchanged so the caller can retry later.
func (e *Engine) SyncHistory(ctx context.Context, src HistorySource, chatID string, limit int, currentUser string) (MergeResult, error) {
	start := time.Now()
	remote, err := src.FetchHistory(ctx, chatID, limit)
	if err != nil {
		return MergeResult{ChatID: chatID}, err
	}
	res, err := e.MergeHistory(ctx, chatID, remote, currentUser)
	if err == nil {
		metrics.HistorySyncDuration().Observe(time.Since(start).Seconds())
	}
	return res, err
}
