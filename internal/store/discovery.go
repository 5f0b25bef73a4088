package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Discovery session methods

// CreateDiscoverySession stores a session and its items in one transaction
// and fills in their IDs.
func (s *SQLiteStore) CreateDiscoverySession(userID int64, query string, items []ContentItem) (*DiscoverySession, error) {
	session := &DiscoverySession{ID: uuid.NewString(), UserID: userID, Query: query, CreatedAt: s.now()}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec("INSERT INTO discovery_sessions (id, user_id, query, created_at) VALUES (?, ?, ?, ?)",
		session.ID, session.UserID, session.Query, session.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert discovery session: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO content_items (id, session_id, title, url, source) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare content item insert: %w", err)
	}
	defer stmt.Close()

	for i := range items {
		items[i].ID = uuid.NewString()
		items[i].SessionID = session.ID
		if _, err := stmt.Exec(items[i].ID, session.ID, items[i].Title, items[i].URL, items[i].Source); err != nil {
			return nil, fmt.Errorf("failed to execute content item insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit discovery session: %w", err)
	}
	session.Items = items
	return session, nil
}

// GetDiscoverySession returns the session with its items, or nil when it does
// not exist or belongs to another user.
func (s *SQLiteStore) GetDiscoverySession(sessionID string, userID int64) (*DiscoverySession, error) {
	var session DiscoverySession
	err := s.db.QueryRow("SELECT id, user_id, query, created_at FROM discovery_sessions WHERE id = ? AND user_id = ?", sessionID, userID).
		Scan(&session.ID, &session.UserID, &session.Query, &session.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get discovery session: %w", err)
	}

	rows, err := s.db.Query("SELECT "+itemColumns+" FROM content_items WHERE session_id = ? ORDER BY rowid ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query content items: %w", err)
	}
	defer rows.Close()

	session.Items = []ContentItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan content item row: %w", err)
		}
		session.Items = append(session.Items, *item)
	}
	return &session, rows.Err()
}

// ListDiscoverySessions returns the user's sessions, newest first, without items.
func (s *SQLiteStore) ListDiscoverySessions(userID int64) ([]DiscoverySession, error) {
	rows, err := s.db.Query("SELECT id, user_id, query, created_at FROM discovery_sessions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discovery sessions: %w", err)
	}
	defer rows.Close()

	sessions := []DiscoverySession{}
	for rows.Next() {
		var session DiscoverySession
		if err := rows.Scan(&session.ID, &session.UserID, &session.Query, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan discovery session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// DeleteDiscoverySession removes one session and, by cascade, its items.
// It reports whether anything was deleted.
func (s *SQLiteStore) DeleteDiscoverySession(sessionID string, userID int64) (bool, error) {
	res, err := s.db.Exec("DELETE FROM discovery_sessions WHERE id = ? AND user_id = ?", sessionID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete discovery session: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// ClearDiscoverySessions removes every session of the user and returns how
// many were deleted.
func (s *SQLiteStore) ClearDiscoverySessions(userID int64) (int64, error) {
	res, err := s.db.Exec("DELETE FROM discovery_sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear discovery sessions: %w", err)
	}
	return res.RowsAffected()
}

// Content item methods
const itemColumns = "content_items.id, content_items.session_id, content_items.title, content_items.url, content_items.source, content_items.raw_content, content_items.analysis_json"

func scanItem(row interface{ Scan(...any) error }) (*ContentItem, error) {
	var item ContentItem
	var analysisJSON string
	if err := row.Scan(&item.ID, &item.SessionID, &item.Title, &item.URL, &item.Source, &item.RawContent, &analysisJSON); err != nil {
		return nil, err
	}
	if analysisJSON != "" {
		var a Analysis
		if err := json.Unmarshal([]byte(analysisJSON), &a); err == nil {
			item.Analysis = &a
		}
	}
	return &item, nil
}

// GetContentItem returns the item when its session belongs to userID.
func (s *SQLiteStore) GetContentItem(itemID string, userID int64) (*ContentItem, error) {
	row := s.db.QueryRow(`SELECT `+itemColumns+` FROM content_items
        JOIN discovery_sessions ON discovery_sessions.id = content_items.session_id
        WHERE content_items.id = ? AND discovery_sessions.user_id = ?`, itemID, userID)
	item, err := scanItem(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get content item: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) UpdateContentItemRawContent(itemID, raw string) error {
	return s.updateItem("raw_content", itemID, raw)
}

func (s *SQLiteStore) UpdateContentItemAnalysis(itemID string, analysis Analysis) error {
	b, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}
	return s.updateItem("analysis_json", itemID, string(b))
}

func (s *SQLiteStore) updateItem(column, itemID, value string) error {
	res, err := s.db.Exec("UPDATE content_items SET "+column+" = ? WHERE id = ?", value, itemID)
	if err != nil {
		return fmt.Errorf("failed to update content item %s: %w", column, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("content item not found, %s not updated", column)
	}
	return nil
}
