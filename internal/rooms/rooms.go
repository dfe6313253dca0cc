// Package rooms manages the account and the server-side rooms behind the
// local chat list.
package rooms

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/roomchat/internal/fault"
	"github.com/matheus3301/roomchat/internal/rest"
	"github.com/matheus3301/roomchat/internal/store"
	intsync "github.com/matheus3301/roomchat/internal/sync"
)

// Closer closes the conversation for a chat if it is open.
type Closer interface {
	CloseIf(chatID string)
}

// Directory creates and deletes rooms on the server and mirrors the result
// into the store.
type Directory struct {
	db     *store.DB
	api    *rest.Client
	engine *intsync.Engine
	closer Closer
	logger *zap.Logger
}

// New creates a room directory. closer may be nil.
func New(db *store.DB, api *rest.Client, engine *intsync.Engine, closer Closer, logger *zap.Logger) *Directory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Directory{
		db:     db,
		api:    api,
		engine: engine,
		closer: closer,
		logger: logger.Named("rooms"),
	}
}

// Login checks that username exists on the server and makes it the
// identity for REST calls and message attribution.
func (d *Directory) Login(ctx context.Context, username string) (*rest.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fault.New(fault.Validation, "login", "username is empty")
	}

	user, err := d.api.WithUsername(username).Me(ctx)
	if err != nil {
		d.logger.Warn("login failed", zap.String("username", username), zap.Error(err))
		return nil, err
	}
	if user.Username == "" {
		user.Username = username
	}
	d.api.SetUsername(user.Username)
	d.engine.SetUser(user.Username)
	d.logger.Info("logged in", zap.String("username", user.Username), zap.String("user_id", user.ID))
	return user, nil
}

// Create makes a new room named "Chat N", N being one past the current
// chat count, with the user as sole participant, and stores it locally.
func (d *Directory) Create(ctx context.Context) (*store.Chat, error) {
	user := d.engine.User()
	if user == "" {
		return nil, fault.New(fault.Validation, "create room", "not logged in")
	}
	n, err := d.db.ChatCount()
	if err != nil {
		return nil, err
	}

	room, err := d.api.CreateRoom(ctx, fmt.Sprintf("Chat %d", n+1), []string{user})
	if err != nil {
		return nil, err
	}

	chat := &store.Chat{
		ID:                   room.ID,
		Title:                room.Name,
		LastMessage:          store.NoMessagesYet,
		LastMessageTimestamp: time.Now().UnixMilli(),
	}
	if err := d.db.UpsertChat(chat); err != nil {
		return nil, err
	}
	d.logger.Info("room created", zap.String("room_id", room.ID), zap.String("name", room.Name))
	return chat, nil
}

// Delete removes the room on the server, then the local chat and its
// messages. Nothing local changes if the server refuses.
func (d *Directory) Delete(ctx context.Context, chatID string) error {
	if err := d.api.DeleteRoom(ctx, chatID); err != nil {
		return err
	}
	if d.closer != nil {
		d.closer.CloseIf(chatID)
	}
	if err := d.db.DeleteChat(chatID); err != nil {
		return err
	}
	d.engine.ClearIf(chatID)
	d.logger.Info("room deleted", zap.String("room_id", chatID))
	return nil
}
