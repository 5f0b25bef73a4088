package core

import (
	"context"
	"fmt"
	"io"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/repos"
	"nexusai.dev/nexus/internal/store"
)

// GitHubFactory builds a GitHub client for a token; an empty token means
// anonymous access.
type GitHubFactory func(ctx context.Context, token string) *github.Client

// AccountConfig holds the server-wide fallback credentials and defaults.
type AccountConfig struct {
	GeminiAPIKey     string
	GitHubToken      string
	DailySearchLimit int
}

// AccountService owns users, profiles and the per-user credential
// resolution: a user's own key wins over the server's.
type AccountService struct {
	dbStore   *store.SQLiteStore
	cfg       AccountConfig
	newModel  ModelFactory
	newGitHub GitHubFactory
	logger    *zap.Logger
}

func NewAccountService(db *store.SQLiteStore, cfg AccountConfig, newModel ModelFactory, newGitHub GitHubFactory, logger *zap.Logger) *AccountService {
	if newGitHub == nil {
		newGitHub = repos.NewGitHubClient
	}
	if cfg.DailySearchLimit <= 0 {
		cfg.DailySearchLimit = 5
	}
	return &AccountService{dbStore: db, cfg: cfg, newModel: newModel, newGitHub: newGitHub, logger: logging.OrNop(logger)}
}

// CreateUser registers a user; ErrUserExists when the name is taken.
func (s *AccountService) CreateUser(username, passwordHash string) (*store.User, error) {
	existing, err := s.dbStore.GetUserByUsername(username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUserExists
	}
	user, err := s.dbStore.CreateUser(username, passwordHash)
	if err != nil {
		return nil, err
	}
	if _, err := s.Profile(user.ID); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AccountService) GetUserByUsername(username string) (*store.User, error) {
	return s.dbStore.GetUserByUsername(username)
}

// GetOrCreateUser ensures a user exists and returns it.
func (s *AccountService) GetOrCreateUser(username string) (*store.User, error) {
	return s.dbStore.GetOrCreateUser(username)
}

// Profile returns the user's profile, creating it on first access.
func (s *AccountService) Profile(userID int64) (*store.UserProfile, error) {
	p, err := s.dbStore.GetOrCreateProfile(userID, s.cfg.DailySearchLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return p, nil
}

// SetPremium lifts (or restores) the daily search limit of the named user.
func (s *AccountService) SetPremium(username string, premium bool) error {
	user, err := s.dbStore.GetUserByUsername(username)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("%w: user %q", ErrNotFound, username)
	}
	if _, err := s.Profile(user.ID); err != nil {
		return err
	}
	if err := s.dbStore.SetPremium(user.ID, premium); err != nil {
		return err
	}
	s.logger.Info("premium flag updated", zap.String("username", username), zap.Bool("premium", premium))
	return nil
}

// Settings is the user-visible view of a profile. Keys are never echoed.
type Settings struct {
	HasGeminiKey     bool `json:"has_gemini_key"`
	HasGitHubToken   bool `json:"has_github_token"`
	ServerGeminiKey  bool `json:"server_gemini_key"`
	IsPremium        bool `json:"is_premium"`
	SearchLimitDaily int  `json:"search_limit_daily"`
	SearchesToday    int  `json:"searches_today"`
	CanSearch        bool `json:"can_search"`
}

func (s *AccountService) Settings(userID int64, today string) (Settings, error) {
	p, err := s.Profile(userID)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		HasGeminiKey:     p.HasGeminiKey(),
		HasGitHubToken:   p.HasGitHubToken(),
		ServerGeminiKey:  s.cfg.GeminiAPIKey != "",
		IsPremium:        p.IsPremium,
		SearchLimitDaily: p.SearchLimitDaily,
		SearchesToday:    p.SearchesOn(today),
		CanSearch:        p.CanSearch(today),
	}, nil
}

// UpdateSettings stores new keys; blank values keep the stored ones.
func (s *AccountService) UpdateSettings(userID int64, geminiKey, githubToken, today string) (Settings, error) {
	if _, err := s.Profile(userID); err != nil {
		return Settings{}, err
	}
	if err := s.dbStore.UpdateProfileKeys(userID, geminiKey, githubToken); err != nil {
		return Settings{}, err
	}
	return s.Settings(userID, today)
}

// Engine builds an engine bound to the user's credential. The returned
// release func closes the underlying client and must be called.
func (s *AccountService) Engine(ctx context.Context, userID int64) (*Engine, func(), error) {
	p, err := s.Profile(userID)
	if err != nil {
		return nil, nil, err
	}

	key := s.cfg.GeminiAPIKey
	if p.HasGeminiKey() {
		key = p.GeminiAPIKey
	}
	if key == "" || s.newModel == nil {
		return NewEngine(nil, s.logger), func() {}, nil
	}

	model, err := s.newModel(ctx, key)
	if err != nil {
		s.logger.Warn("model client unavailable, engine unconfigured", zap.Int64("user_id", userID), zap.Error(err))
		return NewEngine(nil, s.logger), func() {}, nil
	}
	release := func() {
		if c, ok := model.(io.Closer); ok {
			if err := c.Close(); err != nil {
				s.logger.Debug("model client close failed", zap.Error(err))
			}
		}
	}
	return NewEngine(model, s.logger), release, nil
}

// GitHub returns a client authenticated with the user's token, the server
// token, or nothing.
func (s *AccountService) GitHub(ctx context.Context, userID int64) (*github.Client, error) {
	p, err := s.Profile(userID)
	if err != nil {
		return nil, err
	}
	token := s.cfg.GitHubToken
	if p.HasGitHubToken() {
		token = p.GitHubToken
	}
	return s.newGitHub(ctx, token), nil
}
