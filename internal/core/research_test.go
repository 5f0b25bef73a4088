package core

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nexusai.dev/nexus/internal/repos"
)

type stubSearcher struct {
	mu      sync.Mutex
	byQuery map[string][]repos.Repo
	seen    []string
}

func (s *stubSearcher) Research(_ context.Context, query string) []repos.Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, query)
	return s.byQuery[query]
}

func repo(id int64, name string) repos.Repo {
	return repos.Repo{ID: id, Owner: "o", Name: name}
}

func TestMergeRepos_FirstOccurrenceWins(t *testing.T) {
	a := repos.Repo{ID: 42, Owner: "a", Name: "x"}
	b := repos.Repo{ID: 42, Owner: "b", Name: "x"}

	merged := MergeRepos([]repos.Repo{a}, []repos.Repo{b})
	require.Len(t, merged, 1)
	assert.Equal(t, "a", merged[0].Owner)

	merged = MergeRepos([]repos.Repo{b}, []repos.Repo{a})
	require.Len(t, merged, 1)
	assert.Equal(t, "b", merged[0].Owner)

	assert.Empty(t, MergeRepos())
}

func TestResearcher_RustNetworking(t *testing.T) {
	m := &stubModel{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "GitHub Search Strategist") {
			return `["topic:networking language:rust", "topic:p2p language:rust"]`, nil
		}
		return `[{"repo":"o/one","reason":"core"},{"repo":"o/two","reason":"p2p"},{"repo":"o/three","reason":"new"}]`, nil
	}}
	searcher := &stubSearcher{byQuery: map[string][]repos.Repo{
		"topic:networking language:rust": {repo(1, "one"), repo(2, "two")},
		"topic:p2p language:rust":        {repo(2, "two"), repo(3, "three")},
	}}

	report := NewResearcher(newTestEngine(t, m), searcher, 2, zaptest.NewLogger(t)).Run(context.Background(), "rust networking")

	assert.Equal(t, ModeOK, report.Mode)
	assert.Equal(t, []string{"topic:networking language:rust", "topic:p2p language:rust"}, report.Queries)
	assert.Equal(t, 3, report.Candidates)
	require.Len(t, report.Repos, 3)
	var ids []int64
	for _, r := range report.Repos {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.ElementsMatch(t, []string{"topic:networking language:rust", "topic:p2p language:rust"}, searcher.seen)
}

func TestResearcher_UnconfiguredSearchesPrompt(t *testing.T) {
	searcher := &stubSearcher{byQuery: map[string][]repos.Repo{
		"rust networking": {repo(7, "seven")},
	}}

	report := NewResearcher(newTestEngine(t, nil), searcher, 0, nil).Run(context.Background(), "rust networking")

	assert.Equal(t, ModeUnconfigured, report.Mode)
	assert.Equal(t, []string{"rust networking"}, report.Queries)
	require.Len(t, report.Repos, 1)
	assert.Equal(t, int64(7), report.Repos[0].ID)
}

func TestResearcher_FilterFailureDegrades(t *testing.T) {
	m := &stubModel{respond: func(prompt string) (string, error) {
		if strings.Contains(prompt, "GitHub Search Strategist") {
			return `["q"]`, nil
		}
		return "no json here", nil
	}}
	searcher := &stubSearcher{byQuery: map[string][]repos.Repo{"q": {repo(1, "a"), repo(2, "b")}}}

	report := NewResearcher(newTestEngine(t, m), searcher, 1, nil).Run(context.Background(), "p")
	assert.Equal(t, ModeDegraded, report.Mode)
	assert.Len(t, report.Repos, 2)
}
