package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Chat session methods
func (s *SQLiteStore) CreateChatSession(userID int64, contentItemID *string, title string) (*ChatSession, error) {
	chatID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO chat_sessions (id, user_id, content_item_id, title, created_at) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chat insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	_, err = stmt.Exec(chatID, userID, contentItemID, title, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute chat insert: %w", err)
	}
	return &ChatSession{ID: chatID, UserID: userID, ContentItemID: contentItemID, Title: title, CreatedAt: now}, nil
}

func (s *SQLiteStore) GetChatSession(chatID string, userID int64) (*ChatSession, error) {
	var chat ChatSession
	var itemID sql.NullString
	err := s.db.QueryRow("SELECT id, user_id, content_item_id, title, created_at FROM chat_sessions WHERE id = ? AND user_id = ?", chatID, userID).
		Scan(&chat.ID, &chat.UserID, &itemID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if itemID.Valid {
		chat.ContentItemID = &itemID.String
	}
	return &chat, nil
}

func (s *SQLiteStore) ListChatSessions(userID int64) ([]ChatSession, error) {
	rows, err := s.db.Query("SELECT id, user_id, content_item_id, title, created_at FROM chat_sessions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}
	defer rows.Close()

	chats := []ChatSession{}
	for rows.Next() {
		var chat ChatSession
		var itemID sql.NullString
		if err := rows.Scan(&chat.ID, &chat.UserID, &itemID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat row: %w", err)
		}
		if itemID.Valid {
			chat.ContentItemID = &itemID.String
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// CreateChatExchange stores a user message and its reply together.
func (s *SQLiteStore) CreateChatExchange(userMsg, aiMsg *Message) error {
	return s.createMessages("chat_messages", userMsg, aiMsg)
}

func (s *SQLiteStore) GetChatMessages(sessionID string) ([]Message, error) {
	return s.messages("chat_messages", sessionID)
}

// Repo session methods

// GetOrCreateRepoSession returns the user's session for owner/name, creating
// it with repoURL the first time.
func (s *SQLiteStore) GetOrCreateRepoSession(userID int64, owner, name, repoURL string) (*RepoSession, error) {
	_, err := s.db.Exec("INSERT OR IGNORE INTO repo_sessions (id, user_id, owner, name, url, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		uuid.NewString(), userID, owner, name, repoURL, s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to insert repo session: %w", err)
	}
	return s.scanRepoSession(s.db.QueryRow(
		"SELECT id, user_id, owner, name, url, created_at FROM repo_sessions WHERE user_id = ? AND owner = ? AND name = ?",
		userID, owner, name))
}

func (s *SQLiteStore) GetRepoSession(sessionID string, userID int64) (*RepoSession, error) {
	return s.scanRepoSession(s.db.QueryRow(
		"SELECT id, user_id, owner, name, url, created_at FROM repo_sessions WHERE id = ? AND user_id = ?",
		sessionID, userID))
}

func (s *SQLiteStore) scanRepoSession(row *sql.Row) (*RepoSession, error) {
	var rs RepoSession
	if err := row.Scan(&rs.ID, &rs.UserID, &rs.Owner, &rs.Name, &rs.URL, &rs.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get repo session: %w", err)
	}
	return &rs, nil
}

func (s *SQLiteStore) CreateRepoExchange(userMsg, aiMsg *Message) error {
	return s.createMessages("repo_messages", userMsg, aiMsg)
}

func (s *SQLiteStore) GetRepoMessages(sessionID string) ([]Message, error) {
	return s.messages("repo_messages", sessionID)
}

// Message methods shared by both chat kinds

// createMessages inserts msgs in order within one transaction; either all of
// them are stored or none.
func (s *SQLiteStore) createMessages(table string, msgs ...*Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare("INSERT INTO " + table + " (id, session_id, sender, content, timestamp) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, msg := range msgs {
		msg.ID = uuid.NewString()
		msg.Timestamp = now
		if _, err := stmt.Exec(msg.ID, msg.SessionID, msg.Sender, msg.Content, msg.Timestamp); err != nil {
			return fmt.Errorf("failed to execute message insert: %w", err)
		}
	}
	return tx.Commit()
}

// messages returns a session's messages in insertion order; rowid breaks
// timestamp ties.
func (s *SQLiteStore) messages(table, sessionID string) ([]Message, error) {
	rows, err := s.db.Query("SELECT id, session_id, sender, content, timestamp FROM "+table+" WHERE session_id = ? ORDER BY timestamp ASC, rowid ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
