// Package main is the nexus server and its operator commands.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/cache"
	"nexusai.dev/nexus/internal/config"
	"nexusai.dev/nexus/internal/core"
	"nexusai.dev/nexus/internal/fetch"
	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/search"
	"nexusai.dev/nexus/internal/store"
)

var (
	version = "dev"

	// shared flags
	langFlag string
	jsonFlag bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Discovery and analysis server for Reddit threads and GitHub repositories",
	Long: `nexus finds Reddit discussions and GitHub repositories for a topic, scores
and summarises them with Gemini, and lets users chat about what it found.

Run "nexus serve" for the HTTP API; the other commands run single operations
from the terminal.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", core.DefaultLanguage, "Response language (en, tr)")
	rootCmd.PersistentFlags().BoolVar(&jsonFlag, "json", false, "Print results as JSON")
}

// app holds the wired services shared by every command.
type app struct {
	cfg       config.Config
	logger    *zap.Logger
	db        *store.SQLiteStore
	cache     cache.Store
	accounts  *core.AccountService
	discovery *core.DiscoveryService
	chats     *core.ChatService
	repos     *core.RepoService
	fetcher   *fetch.Fetcher
	closers   []io.Closer
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, closers: []io.Closer{db}}

	if cfg.RedisAddr != "" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   "nexus:",
		}, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.cache = rs
		a.closers = append(a.closers, rs)
	} else {
		a.cache = cache.NewMemoryStore(1000)
	}

	var strategies []search.Strategy
	if cfg.BrowserSearch {
		strategies = append(strategies, search.NewBrowserStrategy(search.NewRodRenderer(cfg.BrowserBin), logger))
	}
	strategies = append(strategies, search.NewRedditJSONStrategy(logger), search.NewDuckDuckGoStrategy(logger))
	threads := search.NewCached(search.NewChain(logger, strategies...), a.cache, cfg.SearchCacheTTL, logger)

	a.fetcher = fetch.New(logger)
	a.accounts = core.NewAccountService(db, core.AccountConfig{
		GeminiAPIKey:     cfg.GeminiAPIKey,
		GitHubToken:      cfg.GitHubToken,
		DailySearchLimit: cfg.DailySearchLimit,
	}, core.GeminiFactory(cfg.GeminiModel), nil, logger)
	a.discovery = core.NewDiscoveryService(db, a.accounts, threads, a.fetcher, logger)
	a.chats = core.NewChatService(db, a.accounts, logger)
	a.repos = core.NewRepoService(db, a.accounts, a.cache, core.RepoServiceConfig{
		CacheTTL:            cfg.GitHubCacheTTL,
		ResearchConcurrency: cfg.ResearchConcurrency,
		SearchRPM:           cfg.GitHubSearchRPM,
	}, logger)

	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, analysis runs unconfigured unless users store their own key")
	}
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// cliUser is the account terminal commands run as; it has no password and
// cannot log in over HTTP.
func (a *app) cliUser() (int64, error) {
	u, err := a.accounts.GetOrCreateUser("cli")
	if err != nil {
		return 0, fmt.Errorf("failed to prepare cli user: %w", err)
	}
	return u.ID, nil
}
