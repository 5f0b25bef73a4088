package repos

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nexusai.dev/nexus/internal/logging"
)

const (
	DefaultPerPage  = 30
	ResearchPerPage = 20
)

var (
	hiddenGemTopics = []string{
		"system-design", "architecture", "learning", "roadmap",
		"reverse-engineering", "algorithm", "design-patterns", "distributed-systems",
	}
	serendipityTopics = []string{
		"compilers", "generative-ai", "p2p", "os-dev", "database-internals",
		"virtual-machine", "game-engine", "cryptography", "webrtc",
	}
)

// Searcher wraps the GitHub repository search API. Rate limiting (403) and
// invalid queries (422) yield an empty slice, never an error.
//
// The discovery templates pick topics and pages at random on purpose; the
// random source and clock are injectable so tests can pin them.
type Searcher struct {
	client  *github.Client
	limiter *rate.Limiter
	logger  *zap.Logger
	now     func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

type SearcherOption func(*Searcher)

func WithRand(r *rand.Rand) SearcherOption {
	return func(s *Searcher) { s.rng = r }
}

func WithClock(now func() time.Time) SearcherOption {
	return func(s *Searcher) { s.now = now }
}

// WithRequestsPerMinute throttles outgoing search calls. GitHub allows 30
// authenticated (10 anonymous) search requests per minute.
func WithRequestsPerMinute(rpm int) SearcherOption {
	return func(s *Searcher) {
		if rpm <= 0 {
			return
		}
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
}

// WithLimiter shares one limiter between searchers, e.g. across requests.
func WithLimiter(l *rate.Limiter) SearcherOption {
	return func(s *Searcher) {
		if l != nil {
			s.limiter = l
		}
	}
}

func WithLogger(logger *zap.Logger) SearcherOption {
	return func(s *Searcher) { s.logger = logging.OrNop(logger) }
}

func NewSearcher(client *github.Client, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		client:  client,
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zap.NewNop(),
		now:     time.Now,
		rng:     rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch runs a raw qualifier query sorted by stars. page 0 means the first page.
func (s *Searcher) Fetch(ctx context.Context, query string, perPage, page int) []Repo {
	if err := s.limiter.Wait(ctx); err != nil {
		s.logger.Warn("github search throttled", zap.String("query", query), zap.Error(err))
		return []Repo{}
	}

	opts := &github.SearchOptions{
		Sort:        "stars",
		Order:       "desc",
		ListOptions: github.ListOptions{Page: page, PerPage: perPage},
	}
	result, resp, err := s.client.Search.Repositories(ctx, query, opts)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		switch status {
		case http.StatusForbidden:
			s.logger.Warn("github rate limit exceeded, add a GitHub token for higher limits",
				zap.String("query", query))
		case http.StatusUnprocessableEntity:
			s.logger.Warn("github rejected query", zap.String("query", query))
		default:
			s.logger.Warn("github search failed",
				zap.String("query", query), zap.Int("status", status), zap.Error(err))
		}
		return []Repo{}
	}

	repos := make([]Repo, 0, len(result.Repositories))
	for _, r := range result.Repositories {
		repos = append(repos, fromGitHub(r))
	}
	return repos
}

// Search runs a raw query with the default page size.
func (s *Searcher) Search(ctx context.Context, query string) []Repo {
	return sortByStars(s.Fetch(ctx, query, DefaultPerPage, 0))
}

// Research is the per-query fetch used by deep research.
func (s *Searcher) Research(ctx context.Context, query string) []Repo {
	return s.Fetch(ctx, query, ResearchPerPage, 0)
}

// Trending returns repositories created in the last seven days.
func (s *Searcher) Trending(ctx context.Context) []Repo {
	since := s.now().AddDate(0, 0, -7).Format("2006-01-02")
	return sortByStars(s.Fetch(ctx, "created:>"+since, DefaultPerPage, 0))
}

// HiddenGems returns modestly starred, recently pushed repositories for a
// random curated topic.
func (s *Searcher) HiddenGems(ctx context.Context) []Repo {
	topic := s.pick(hiddenGemTopics)
	since := s.now().AddDate(0, 0, -30).Format("2006-01-02")
	query := fmt.Sprintf("topic:%s stars:100..2000 pushed:>%s", topic, since)
	return sortByStars(s.Fetch(ctx, query, DefaultPerPage, 0))
}

// Serendipity returns a single random repository from a random technical
// topic, so two calls rarely agree.
func (s *Searcher) Serendipity(ctx context.Context) []Repo {
	topic := s.pick(serendipityTopics)
	page := s.intN(5) + 1
	items := s.Fetch(ctx, fmt.Sprintf("topic:%s stars:>500", topic), 5, page)
	if len(items) == 0 {
		return []Repo{}
	}
	return []Repo{items[s.intN(len(items))]}
}

// Awesome returns a random page of the awesome-list ecosystem.
func (s *Searcher) Awesome(ctx context.Context) []Repo {
	page := s.intN(5) + 1
	return sortByStars(s.Fetch(ctx, "topic:awesome", 10, page))
}

func (s *Searcher) pick(options []string) string {
	return options[s.intN(len(options))]
}

func (s *Searcher) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

func sortByStars(repos []Repo) []Repo {
	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Stars > repos[j].Stars })
	return repos
}
