package store

import (
	"database/sql"
	"errors"

	"github.com/matheus3301/roomchat/internal/fault"
)

const messageColumns = `id, chat_id, content, timestamp, is_from_user, sender_username, is_sent_to_server, server_message_id`

// UpsertMessage inserts or fully replaces a message keyed by id. The parent
// chat must exist.
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			chat_id = excluded.chat_id,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_user = excluded.is_from_user,
			sender_username = excluded.sender_username,
			is_sent_to_server = excluded.is_sent_to_server,
			server_message_id = excluded.server_message_id`,
		m.ID, m.ChatID, m.Content, m.Timestamp, m.IsFromUser, m.SenderUsername,
		m.State.SentToServer(), nullString(m.ServerMessageID))
	if err != nil {
		return fault.Wrap(fault.Storage, "upsert message", err)
	}
	db.live.notify(messagesKey(m.ChatID))
	return nil
}

// GetMessage returns a message by its row id, or nil if absent.
func (db *DB) GetMessage(id string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Storage, "get message", err)
	}
	return m, nil
}

// MessageExists reports whether any row already carries id, either as its
// own id or as an adopted server id.
func (db *DB) MessageExists(id string) (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM messages WHERE id = ? OR server_message_id = ?)`, id, id).Scan(&exists)
	if err != nil {
		return false, fault.Wrap(fault.Storage, "message exists", err)
	}
	return exists, nil
}

// FindUnmergedByContentSender returns the oldest row in chatID with the given
// content and sender that has no server id yet, or nil.
func (db *DB) FindUnmergedByContentSender(chatID, content, sender string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND content = ? AND sender_username = ? AND server_message_id IS NULL
		ORDER BY timestamp ASC
		LIMIT 1`, chatID, content, sender))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fault.Wrap(fault.Storage, "find message by content", err)
	}
	return m, nil
}

// ListMessages returns every message of a chat in timestamp order.
func (db *DB) ListMessages(chatID string) ([]Message, error) {
	return db.queryMessages("list messages", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ?
		ORDER BY timestamp ASC`, chatID)
}

// QueuedMessages returns the chat's messages not yet acknowledged by the
// server, oldest first.
func (db *DB) QueuedMessages(chatID string) ([]Message, error) {
	return db.queryMessages("queued messages", `
		SELECT `+messageColumns+`
		FROM messages
		WHERE chat_id = ? AND is_sent_to_server = 0
		ORDER BY timestamp ASC`, chatID)
}

// MarkMessageSent flags a local row as acknowledged and records the server id.
func (db *DB) MarkMessageSent(localID, serverID string) error {
	var chatID string
	err := db.QueryRow(`
		UPDATE messages SET is_sent_to_server = 1, server_message_id = ?
		WHERE id = ?
		RETURNING chat_id`, nullString(serverID), localID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fault.Wrap(fault.Storage, "mark message sent", err)
	}
	db.live.notify(messagesKey(chatID))
	return nil
}

func (db *DB) queryMessages(op, q string, args ...any) ([]Message, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fault.Wrap(fault.Storage, op, err)
	}
	defer func() { _ = rows.Close() }()

	msgs := []Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fault.Wrap(fault.Storage, op, err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fault.Wrap(fault.Storage, op, err)
	}
	return msgs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (*Message, error) {
	var (
		m        Message
		sent     bool
		serverID sql.NullString
	)
	if err := r.Scan(&m.ID, &m.ChatID, &m.Content, &m.Timestamp, &m.IsFromUser, &m.SenderUsername, &sent, &serverID); err != nil {
		return nil, err
	}
	m.State = stateFromRow(sent)
	m.ServerMessageID = serverID.String
	return &m, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
