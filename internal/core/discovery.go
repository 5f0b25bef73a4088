package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/search"
	"nexusai.dev/nexus/internal/store"
)

// ContentFetcher turns a URL into text and never fails.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) string
}

// DiscoveryService runs thread searches into discovery sessions and analyses
// their items.
type DiscoveryService struct {
	dbStore  *store.SQLiteStore
	accounts *AccountService
	search   search.Strategy
	fetcher  ContentFetcher
	now      func() time.Time
	logger   *zap.Logger
}

func NewDiscoveryService(db *store.SQLiteStore, accounts *AccountService, strategy search.Strategy, fetcher ContentFetcher, logger *zap.Logger) *DiscoveryService {
	return &DiscoveryService{
		dbStore:  db,
		accounts: accounts,
		search:   strategy,
		fetcher:  fetcher,
		now:      time.Now,
		logger:   logging.OrNop(logger),
	}
}

// Today is the quota day in YYYY-MM-DD form.
func (s *DiscoveryService) Today() string {
	return s.now().Format("2006-01-02")
}

// Search takes one search from the daily quota, runs query and records the
// results as a new session.
func (s *DiscoveryService) Search(ctx context.Context, userID int64, query string) (*store.DiscoverySession, error) {
	query = strings.TrimSpace(query)

	if _, err := s.accounts.Profile(userID); err != nil {
		return nil, err
	}
	allowed, err := s.dbStore.ConsumeSearch(userID, s.Today())
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrSearchLimitReached
	}

	results := s.search.Search(ctx, query)
	items := make([]store.ContentItem, 0, len(results))
	for _, r := range results {
		items = append(items, store.ContentItem{Title: r.Title, URL: r.URL, Source: r.Source()})
	}

	session, err := s.dbStore.CreateDiscoverySession(userID, query, items)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	s.logger.Info("discovery search", zap.Int64("user_id", userID), zap.String("query", query), zap.Int("items", len(items)))
	return session, nil
}

func (s *DiscoveryService) ListSessions(userID int64) ([]store.DiscoverySession, error) {
	return s.dbStore.ListDiscoverySessions(userID)
}

func (s *DiscoveryService) GetSession(userID int64, sessionID string) (*store.DiscoverySession, error) {
	session, err := s.dbStore.GetDiscoverySession(sessionID, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *DiscoveryService) DeleteSession(userID int64, sessionID string) error {
	deleted, err := s.dbStore.DeleteDiscoverySession(sessionID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrNotFound
	}
	return nil
}

func (s *DiscoveryService) ClearSessions(userID int64) (int64, error) {
	return s.dbStore.ClearDiscoverySessions(userID)
}

// AnalyzeItem fetches the item's text on first use and runs the analysis.
// Only genuine analyses are persisted; a placeholder is returned with its
// mode but not stored.
func (s *DiscoveryService) AnalyzeItem(ctx context.Context, userID int64, itemID, lang string) (*store.ContentItem, Mode, error) {
	item, err := s.dbStore.GetContentItem(itemID, userID)
	if err != nil {
		return nil, "", err
	}
	if item == nil {
		return nil, "", ErrNotFound
	}

	if item.RawContent == "" {
		item.RawContent = s.fetcher.Fetch(ctx, item.URL)
		if err := s.dbStore.UpdateContentItemRawContent(item.ID, item.RawContent); err != nil {
			return nil, "", err
		}
	}

	engine, release, err := s.accounts.Engine(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	defer release()

	result := engine.AnalyzeContent(ctx, item.RawContent, lang)
	analysis := result.Value
	item.Analysis = &analysis
	if result.OK() {
		if err := s.dbStore.UpdateContentItemAnalysis(item.ID, analysis); err != nil {
			return nil, "", err
		}
	}
	return item, result.Mode, nil
}
