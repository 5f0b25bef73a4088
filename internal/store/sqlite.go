package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens the database with foreign keys enforced; cascades
// depend on it.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	dsn := dataSourceName
	if !strings.Contains(dsn, "_foreign_keys") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases alive and serialises writers.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS user_profiles (
        user_id INTEGER PRIMARY KEY,
        gemini_api_key TEXT NOT NULL DEFAULT '',
        github_token TEXT NOT NULL DEFAULT '',
        is_premium BOOLEAN NOT NULL DEFAULT FALSE,
        search_limit_daily INTEGER NOT NULL DEFAULT 5,
        last_search_date TEXT NOT NULL DEFAULT '',
        searches_today INTEGER NOT NULL DEFAULT 0,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS discovery_sessions (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        query TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS content_items (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        title TEXT NOT NULL,
        url TEXT NOT NULL,
        source TEXT NOT NULL DEFAULT 'reddit',
        raw_content TEXT NOT NULL DEFAULT '',
        analysis_json TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (session_id) REFERENCES discovery_sessions (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS chat_sessions (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        content_item_id TEXT,
        title TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE,
        FOREIGN KEY (content_item_id) REFERENCES content_items (id) ON DELETE SET NULL
    );

    CREATE TABLE IF NOT EXISTS chat_messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
        content TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES chat_sessions (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS repo_sessions (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        owner TEXT NOT NULL,
        name TEXT NOT NULL,
        url TEXT NOT NULL,
        created_at DATETIME NOT NULL,
        UNIQUE (user_id, owner, name),
        FOREIGN KEY (user_id) REFERENCES users (id) ON DELETE CASCADE
    );

    CREATE TABLE IF NOT EXISTS repo_messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        sender TEXT NOT NULL CHECK (sender IN ('user', 'ai')),
        content TEXT NOT NULL,
        timestamp DATETIME NOT NULL,
        FOREIGN KEY (session_id) REFERENCES repo_sessions (id) ON DELETE CASCADE
    );

    CREATE INDEX IF NOT EXISTS idx_content_items_session ON content_items (session_id);
    CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, timestamp);
    CREATE INDEX IF NOT EXISTS idx_repo_messages_session ON repo_messages (session_id, timestamp);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetUserByID(id)
}

func (s *SQLiteStore) GetUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// GetOrCreateUser returns the named user, creating a password-less account
// on first use. The CLI runs as such a local user.
func (s *SQLiteStore) GetOrCreateUser(username string) (*User, error) {
	user, err := s.GetUserByUsername(username)
	if err != nil || user != nil {
		return user, err
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO users (username, password_hash) VALUES (?, '')", username); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return s.GetUserByUsername(username)
}

// Profile methods
const profileColumns = "user_id, gemini_api_key, github_token, is_premium, search_limit_daily, last_search_date, searches_today"

func scanProfile(row interface{ Scan(...any) error }) (*UserProfile, error) {
	var p UserProfile
	if err := row.Scan(&p.UserID, &p.GeminiAPIKey, &p.GitHubToken, &p.IsPremium, &p.SearchLimitDaily, &p.LastSearchDate, &p.SearchesToday); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetOrCreateProfile returns the user's profile, creating it with
// defaultLimit searches per day on first access.
func (s *SQLiteStore) GetOrCreateProfile(userID int64, defaultLimit int) (*UserProfile, error) {
	if _, err := s.db.Exec("INSERT OR IGNORE INTO user_profiles (user_id, search_limit_daily) VALUES (?, ?)", userID, defaultLimit); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	p, err := scanProfile(s.db.QueryRow("SELECT "+profileColumns+" FROM user_profiles WHERE user_id = ?", userID))
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// UpdateProfileKeys stores new credentials. A blank value leaves the stored
// one untouched.
func (s *SQLiteStore) UpdateProfileKeys(userID int64, geminiKey, githubToken string) error {
	stmt, err := s.db.Prepare(`UPDATE user_profiles SET
        gemini_api_key = COALESCE(NULLIF(?, ''), gemini_api_key),
        github_token = COALESCE(NULLIF(?, ''), github_token)
        WHERE user_id = ?`)
	if err != nil {
		return fmt.Errorf("failed to prepare profile update: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(strings.TrimSpace(geminiKey), strings.TrimSpace(githubToken), userID)
	if err != nil {
		return fmt.Errorf("failed to execute profile update: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("profile not found, keys not updated")
	}
	return nil
}

// SetPremium lifts or restores the daily search limit for a user.
func (s *SQLiteStore) SetPremium(userID int64, premium bool) error {
	res, err := s.db.Exec("UPDATE user_profiles SET is_premium = ? WHERE user_id = ?", premium, userID)
	if err != nil {
		return fmt.Errorf("failed to update premium flag: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("profile not found, premium flag not updated")
	}
	return nil
}

// ConsumeSearch records one search on day if the profile still has quota for
// it, restarting the counter when day differs from the stored date. Check and
// increment are a single statement. It reports whether the search was allowed.
func (s *SQLiteStore) ConsumeSearch(userID int64, day string) (bool, error) {
	res, err := s.db.Exec(`UPDATE user_profiles SET
        searches_today = CASE WHEN last_search_date = ? THEN searches_today + 1 ELSE 1 END,
        last_search_date = ?
        WHERE user_id = ?
          AND (is_premium OR last_search_date <> ? OR searches_today < search_limit_daily)`,
		day, day, userID, day)
	if err != nil {
		return false, fmt.Errorf("failed to consume search: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to consume search: %w", err)
	}
	return affected > 0, nil
}
