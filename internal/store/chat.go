package store

import (
	"database/sql"
	"errors"

	"github.com/matheus3301/roomchat/internal/fault"
)

const chatColumns = `id, title, last_message, last_message_timestamp, unread_count`

// UpsertChat inserts or fully replaces a chat record. The conflict clause
// updates in place so existing messages keep their parent row.
func (db *DB) UpsertChat(c *Chat) error {
	_, err := db.Exec(`
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			last_message = excluded.last_message,
			last_message_timestamp = excluded.last_message_timestamp,
			unread_count = excluded.unread_count`,
		c.ID, c.Title, c.LastMessage, c.LastMessageTimestamp, c.UnreadCount)
	if err != nil {
		return fault.Wrap(fault.Storage, "upsert chat", err)
	}
	db.live.notify(keyChats, chatKey(c.ID))
	return nil
}

// ListChats returns chats sorted by last message timestamp descending.
func (db *DB) ListChats() ([]Chat, error) {
	rows, err := db.Query(`SELECT ` + chatColumns + ` FROM chats ORDER BY last_message_timestamp DESC`)
	if err != nil {
		return nil, fault.Wrap(fault.Storage, "list chats", err)
	}
	defer func() { _ = rows.Close() }()

	chats := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.Title, &c.LastMessage, &c.LastMessageTimestamp, &c.UnreadCount); err != nil {
			return nil, fault.Wrap(fault.Storage, "scan chat", err)
		}
		chats = append(chats, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Storage, "list chats", err)
	}
	return chats, nil
}

// GetChat returns a single chat by id, or nil if it does not exist.
func (db *DB) GetChat(id string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`SELECT `+chatColumns+` FROM chats WHERE id = ?`, id).
		Scan(&c.ID, &c.Title, &c.LastMessage, &c.LastMessageTimestamp, &c.UnreadCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Storage, "get chat", err)
	}
	return &c, nil
}

// DeleteChat removes a chat and, through the foreign key, all of its
// messages. Deleting an unknown id is a no-op.
func (db *DB) DeleteChat(id string) error {
	if _, err := db.Exec(`DELETE FROM chats WHERE id = ?`, id); err != nil {
		return fault.Wrap(fault.Storage, "delete chat", err)
	}
	db.live.notify(keyChats, chatKey(id), messagesKey(id))
	return nil
}

// UpdateLastMessage sets the chat preview. Last write wins.
func (db *DB) UpdateLastMessage(id, text string, ts int64) error {
	_, err := db.Exec(`UPDATE chats SET last_message = ?, last_message_timestamp = ? WHERE id = ?`, text, ts, id)
	if err != nil {
		return fault.Wrap(fault.Storage, "update last message", err)
	}
	db.live.notify(keyChats, chatKey(id))
	return nil
}

// MarkChatRead resets the unread counter.
func (db *DB) MarkChatRead(id string) error {
	if _, err := db.Exec(`UPDATE chats SET unread_count = 0 WHERE id = ?`, id); err != nil {
		return fault.Wrap(fault.Storage, "mark chat read", err)
	}
	db.live.notify(keyChats, chatKey(id))
	return nil
}

// IncrementUnread bumps the unread counter by one.
func (db *DB) IncrementUnread(id string) error {
	if _, err := db.Exec(`UPDATE chats SET unread_count = unread_count + 1 WHERE id = ?`, id); err != nil {
		return fault.Wrap(fault.Storage, "increment unread", err)
	}
	db.live.notify(keyChats, chatKey(id))
	return nil
}
