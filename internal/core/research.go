package core

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/repos"
)

// RepoSearcher runs one research query against the code host.
type RepoSearcher interface {
	Research(ctx context.Context, query string) []repos.Repo
}

// Researcher runs deep research: the engine proposes queries, the queries
// fan out to the code host, and the engine curates the merged results.
// A failing step degrades the report instead of aborting it.
type Researcher struct {
	engine      *Engine
	searcher    RepoSearcher
	concurrency int
	logger      *zap.Logger
}

func NewResearcher(engine *Engine, searcher RepoSearcher, concurrency int, logger *zap.Logger) *Researcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Researcher{engine: engine, searcher: searcher, concurrency: concurrency, logger: logging.OrNop(logger)}
}

type ResearchReport struct {
	Queries    []string     `json:"queries"`
	Candidates int          `json:"candidates"`
	Repos      []repos.Repo `json:"repos"`
	Mode       Mode         `json:"mode"`
}

func (r *Researcher) Run(ctx context.Context, prompt string) ResearchReport {
	strategy := r.engine.GenerateResearchStrategy(ctx, prompt)
	queries := strategy.Value
	r.logger.Info("research strategy",
		zap.String("prompt", prompt), zap.Strings("queries", queries), zap.String("mode", string(strategy.Mode)))

	// Each query owns its slot, so the fan-out never shares a writer.
	perQuery := make([][]repos.Repo, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, q := range queries {
		g.Go(func() error {
			perQuery[i] = r.searcher.Research(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	combined := MergeRepos(perQuery...)
	r.logger.Info("research harvested", zap.Int("unique", len(combined)))

	curated := r.engine.FilterRepositories(ctx, prompt, combined)
	return ResearchReport{
		Queries:    queries,
		Candidates: len(combined),
		Repos:      curated.Value,
		Mode:       worst(strategy.Mode, curated.Mode),
	}
}

// MergeRepos concatenates result lists, keeping the first occurrence of each
// repository ID.
func MergeRepos(lists ...[]repos.Repo) []repos.Repo {
	seen := make(map[int64]bool)
	merged := []repos.Repo{}
	for _, list := range lists {
		for _, repo := range list {
			if seen[repo.ID] {
				continue
			}
			seen[repo.ID] = true
			merged = append(merged, repo)
		}
	}
	return merged
}
