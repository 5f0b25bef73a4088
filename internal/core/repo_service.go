package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nexusai.dev/nexus/internal/cache"
	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/repos"
	"nexusai.dev/nexus/internal/store"
	"nexusai.dev/nexus/internal/utils"
)

// Discovery modes of the repository browser.
const (
	ModeTrending     = "trending"
	ModeHiddenGems   = "hidden_gems"
	ModeSerendipity  = "serendipity"
	ModeAwesome      = "awesome"
	ModeSearch       = "search"
	ModeDeepResearch = "deep_research"
)

type RepoServiceConfig struct {
	CacheTTL            time.Duration
	ResearchConcurrency int
	SearchRPM           int
}

// RepoService serves repository discovery and repository chat.
type RepoService struct {
	dbStore     *store.SQLiteStore
	accounts    *AccountService
	cache       cache.Store
	cfg         RepoServiceConfig
	limiter     *rate.Limiter
	searcherOpt []repos.SearcherOption
	logger      *zap.Logger
}

func NewRepoService(db *store.SQLiteStore, accounts *AccountService, c cache.Store, cfg RepoServiceConfig, logger *zap.Logger, opts ...repos.SearcherOption) *RepoService {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	if cfg.SearchRPM <= 0 {
		cfg.SearchRPM = 30
	}
	logger = logging.OrNop(logger)
	return &RepoService{
		dbStore:     db,
		accounts:    accounts,
		cache:       c,
		cfg:         cfg,
		limiter:     rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.SearchRPM)), cfg.SearchRPM),
		searcherOpt: opts,
		logger:      logger,
	}
}

func (s *RepoService) searcher(ctx context.Context, userID int64) (*repos.Searcher, error) {
	client, err := s.accounts.GitHub(ctx, userID)
	if err != nil {
		return nil, err
	}
	opts := append([]repos.SearcherOption{repos.WithLimiter(s.limiter), repos.WithLogger(s.logger)}, s.searcherOpt...)
	return repos.NewSearcher(client, opts...), nil
}

type DiscoverResult struct {
	Mode       string       `json:"mode"`
	Repos      []repos.Repo `json:"repos"`
	Queries    []string     `json:"queries,omitempty"`
	EngineMode Mode         `json:"engine_mode,omitempty"`
	Cached     bool         `json:"cached"`
}

func discoverCacheKey(mode, query string) string {
	if mode == ModeSearch || mode == ModeDeepResearch {
		return "github_surf:" + mode + ":" + utils.HashKey(utils.NormalizeQuery(query))
	}
	return "github_surf:" + mode
}

// Discover runs one discovery mode. Non-empty results are cached per mode,
// and per query for the query-driven modes; model-backed modes are cached
// only when the model answered.
func (s *RepoService) Discover(ctx context.Context, userID int64, mode, query string) (*DiscoverResult, error) {
	if mode == "" {
		mode = ModeTrending
	}
	query = strings.TrimSpace(query)

	switch mode {
	case ModeTrending, ModeHiddenGems, ModeSerendipity, ModeAwesome:
	case ModeSearch, ModeDeepResearch:
		if query == "" {
			return &DiscoverResult{Mode: mode, Repos: []repos.Repo{}}, nil
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	key := discoverCacheKey(mode, query)
	if cached, ok := cache.GetJSON[DiscoverResult](ctx, s.cache, key); ok {
		cached.Cached = true
		return &cached, nil
	}

	searcher, err := s.searcher(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := &DiscoverResult{Mode: mode}
	switch mode {
	case ModeTrending:
		result.Repos = searcher.Trending(ctx)
	case ModeHiddenGems:
		result.Repos = searcher.HiddenGems(ctx)
	case ModeSerendipity:
		result.Repos = searcher.Serendipity(ctx)
	case ModeAwesome:
		result.Repos = searcher.Awesome(ctx)
	case ModeSearch, ModeDeepResearch:
		engine, release, err := s.accounts.Engine(ctx, userID)
		if err != nil {
			return nil, err
		}
		defer release()

		if mode == ModeSearch {
			ghQuery := engine.GenerateGitHubQuery(ctx, query)
			s.logger.Info("github query translated", zap.String("input", query), zap.String("query", ghQuery.Value))
			result.Repos = searcher.Search(ctx, ghQuery.Value)
			result.Queries = []string{ghQuery.Value}
			result.EngineMode = ghQuery.Mode
		} else {
			report := NewResearcher(engine, searcher, s.cfg.ResearchConcurrency, s.logger).Run(ctx, query)
			result.Repos = report.Repos
			result.Queries = report.Queries
			result.EngineMode = report.Mode
		}
	}

	// Placeholder results depend on the caller's credentials and stay uncached.
	if len(result.Repos) > 0 && (result.EngineMode == "" || result.EngineMode == ModeOK) {
		cache.SetJSON(ctx, s.cache, key, *result, s.cfg.CacheTTL, s.logger)
	}
	return result, nil
}

// AnalyzeRepo opens (or reopens) the user's chat session for a repository URL.
func (s *RepoService) AnalyzeRepo(userID int64, repoURL string) (*store.RepoSession, error) {
	owner, name, err := repos.ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}
	return s.dbStore.GetOrCreateRepoSession(userID, owner, name, strings.TrimSpace(repoURL))
}

func (s *RepoService) GetRepoChat(sessionID string, userID int64) (*store.RepoSession, []store.Message, error) {
	session, err := s.dbStore.GetRepoSession(sessionID, userID)
	if err != nil {
		return nil, nil, err
	}
	if session == nil {
		return nil, nil, ErrNotFound
	}
	messages, err := s.dbStore.GetRepoMessages(sessionID)
	if err != nil {
		return nil, nil, err
	}
	return session, messages, nil
}

// RepoContext builds (or reuses a cached) context bundle for owner/name.
func (s *RepoService) RepoContext(ctx context.Context, userID int64, owner, name string) (repos.Context, error) {
	key := "repo_context:" + strings.ToLower(owner+"/"+name)
	if rc, ok := cache.GetJSON[repos.Context](ctx, s.cache, key); ok {
		return rc, nil
	}

	client, err := s.accounts.GitHub(ctx, userID)
	if err != nil {
		return repos.Context{}, err
	}
	rc := repos.NewAnalyzer(client, s.logger).BuildContext(ctx, owner, name)
	if rc.Structure != nil || rc.Readme != "" {
		cache.SetJSON(ctx, s.cache, key, rc, s.cfg.CacheTTL, s.logger)
	}
	return rc, nil
}

// PostRepoMessage is the repository counterpart of ChatService.PostMessage.
func (s *RepoService) PostRepoMessage(ctx context.Context, sessionID string, userID int64, userContent, lang string) ([]store.Message, Mode, error) {
	session, previous, err := s.GetRepoChat(sessionID, userID)
	if err != nil {
		return nil, "", err
	}

	rc, err := s.RepoContext(ctx, userID, session.Owner, session.Name)
	if err != nil {
		return nil, "", err
	}

	engine, release, err := s.accounts.Engine(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	defer release()

	reply := engine.ChatWithRepo(ctx, userContent, rc, toTurns(previous), lang)
	if reply.Err != nil {
		s.logger.Warn("repo chat reply degraded", zap.String("session_id", sessionID), zap.Error(reply.Err))
	}

	userMsg := store.Message{SessionID: sessionID, Sender: store.SenderUser, Content: userContent}
	aiMsg := store.Message{SessionID: sessionID, Sender: store.SenderAI, Content: reply.Value}
	if err := s.dbStore.CreateRepoExchange(&userMsg, &aiMsg); err != nil {
		return nil, "", fmt.Errorf("failed to store messages: %w", err)
	}
	return []store.Message{userMsg, aiMsg}, reply.Mode, nil
}
