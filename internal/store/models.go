package store

import (
	"strings"
	"time"
)

const (
	SenderUser = "user"
	SenderAI   = "ai"
)

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// UserProfile holds per-user credentials and the daily search quota.
type UserProfile struct {
	UserID           int64  `json:"user_id"`
	GeminiAPIKey     string `json:"-"`
	GitHubToken      string `json:"-"`
	IsPremium        bool   `json:"is_premium"`
	SearchLimitDaily int    `json:"search_limit_daily"`
	LastSearchDate   string `json:"last_search_date"` // YYYY-MM-DD, empty before the first search
	SearchesToday    int    `json:"searches_today"`
}

func (p *UserProfile) HasGeminiKey() bool {
	return strings.TrimSpace(p.GeminiAPIKey) != ""
}

func (p *UserProfile) HasGitHubToken() bool {
	return strings.TrimSpace(p.GitHubToken) != ""
}

// SearchesOn is the number of searches counted against day; the counter
// belongs to LastSearchDate and reads as zero on any other day.
func (p *UserProfile) SearchesOn(day string) int {
	if p.LastSearchDate != day {
		return 0
	}
	return p.SearchesToday
}

func (p *UserProfile) CanSearch(day string) bool {
	return p.IsPremium || p.SearchesOn(day) < p.SearchLimitDaily
}

type DiscoverySession struct {
	ID        string        `json:"id"`
	UserID    int64         `json:"user_id"`
	Query     string        `json:"query"`
	CreatedAt time.Time     `json:"created_at"`
	Items     []ContentItem `json:"items,omitempty"`
}

// Analysis is the structured model output stored on a content item.
type Analysis struct {
	HypeScore  int      `json:"hype_score"`
	Difficulty string   `json:"difficulty"`
	Summary    string   `json:"summary"`
	TechStack  []string `json:"tech_stack"`
}

type ContentItem struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	Source     string    `json:"source"`
	RawContent string    `json:"raw_content,omitempty"`
	Analysis   *Analysis `json:"analysis,omitempty"` // nil until analysed
}

type ChatSession struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	ContentItemID *string   `json:"content_item_id"` // Nullable, cleared when the item goes away
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"created_at"`
}

type RepoSession struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"user_id"`
	Owner     string    `json:"owner"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is a chat turn in either a chat session or a repo session.
type Message struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Sender    string    `json:"sender"` // "user" or "ai"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
