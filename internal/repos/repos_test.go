package repos

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func repoJSON(id int64, owner, name string, stars int) string {
	return fmt.Sprintf(`{"id":%d,"name":%q,"full_name":"%s/%s","owner":{"login":%q},"stargazers_count":%d,
		"topics":["go"],"language":"Go","html_url":"https://github.com/%s/%s","created_at":"2025-01-02T03:04:05Z"}`,
		id, name, owner, name, owner, stars, owner, name)
}

// searchRecorder answers /search/repositories and remembers the query params.
type searchRecorder struct {
	mu      sync.Mutex
	queries []url.Values
	status  int
	items   []string
}

func (s *searchRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.queries = append(s.queries, r.URL.Query())
	s.mu.Unlock()

	if s.status != 0 {
		w.WriteHeader(s.status)
		fmt.Fprint(w, `{"message":"nope"}`)
		return
	}
	fmt.Fprintf(w, `{"total_count":%d,"items":[%s]}`, len(s.items), strings.Join(s.items, ","))
}

func (s *searchRecorder) last() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[len(s.queries)-1]
}

func TestParseRepoURL(t *testing.T) {
	cases := []struct {
		in, owner, name string
	}{
		{"https://github.com/golang/go", "golang", "go"},
		{"https://github.com/golang/go/", "golang", "go"},
		{"https://www.github.com/tokio-rs/tokio/tree/master/tokio", "tokio-rs", "tokio"},
		{"github.com/owner/repo.git", "owner", "repo"},
	}
	for _, tc := range cases {
		owner, name, err := ParseRepoURL(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.owner, owner)
		assert.Equal(t, tc.name, name)
	}

	for _, bad := range []string{"", "https://gitlab.com/a/b", "https://github.com/onlyowner", "::"} {
		_, _, err := ParseRepoURL(bad)
		assert.ErrorIs(t, err, ErrInvalidURL, bad)
	}
}

func TestSearcher_Fetch(t *testing.T) {
	rec := &searchRecorder{items: []string{repoJSON(1, "a", "one", 10), repoJSON(2, "b", "two", 20)}}
	mux := http.NewServeMux()
	mux.Handle("/search/repositories", rec)

	s := NewSearcher(newTestClient(t, mux), WithLogger(zaptest.NewLogger(t)))
	repos := s.Fetch(context.Background(), "language:go", 20, 0)

	require.Len(t, repos, 2)
	assert.Equal(t, int64(1), repos[0].ID)
	assert.Equal(t, "a/one", repos[0].Slug())
	assert.Equal(t, "a/one", repos[0].FullName)
	assert.Equal(t, 10, repos[0].Stars)
	assert.Equal(t, []string{"go"}, repos[0].Topics)
	assert.Equal(t, 2025, repos[0].CreatedAt.Year())

	q := rec.last()
	assert.Equal(t, "language:go", q.Get("q"))
	assert.Equal(t, "stars", q.Get("sort"))
	assert.Equal(t, "desc", q.Get("order"))
	assert.Equal(t, "20", q.Get("per_page"))
}

func TestSearcher_PolicyErrorsAreEmpty(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusUnprocessableEntity, http.StatusInternalServerError} {
		rec := &searchRecorder{status: status}
		mux := http.NewServeMux()
		mux.Handle("/search/repositories", rec)

		s := NewSearcher(newTestClient(t, mux))
		repos := s.Fetch(context.Background(), "bad::query", 30, 0)
		assert.NotNil(t, repos, "status %d", status)
		assert.Empty(t, repos, "status %d", status)
	}
}

func TestSearcher_TrendingUsesClock(t *testing.T) {
	rec := &searchRecorder{items: []string{repoJSON(1, "a", "low", 5), repoJSON(2, "b", "high", 50)}}
	mux := http.NewServeMux()
	mux.Handle("/search/repositories", rec)

	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	s := NewSearcher(newTestClient(t, mux), WithClock(func() time.Time { return now }))

	repos := s.Trending(context.Background())
	assert.Equal(t, "created:>2025-03-03", rec.last().Get("q"))
	assert.Equal(t, "30", rec.last().Get("per_page"))
	require.Len(t, repos, 2)
	assert.Equal(t, "high", repos[0].Name)
}

func TestSearcher_HiddenGems(t *testing.T) {
	rec := &searchRecorder{}
	mux := http.NewServeMux()
	mux.Handle("/search/repositories", rec)

	now := time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)
	s := NewSearcher(newTestClient(t, mux), WithClock(func() time.Time { return now }), WithRand(rand.New(rand.NewPCG(7, 7))))
	s.HiddenGems(context.Background())

	q := rec.last().Get("q")
	assert.True(t, strings.HasPrefix(q, "topic:"), q)
	assert.True(t, strings.HasSuffix(q, " stars:100..2000 pushed:>2025-03-01"), q)
	topic := strings.TrimPrefix(strings.Fields(q)[0], "topic:")
	assert.Contains(t, hiddenGemTopics, topic)
}

func TestSearcher_SerendipityIsDeterministicForSeed(t *testing.T) {
	items := []string{
		repoJSON(1, "a", "one", 600), repoJSON(2, "a", "two", 700), repoJSON(3, "a", "three", 800),
		repoJSON(4, "a", "four", 900), repoJSON(5, "a", "five", 1000),
	}

	run := func() (Repo, url.Values) {
		rec := &searchRecorder{items: items}
		mux := http.NewServeMux()
		mux.Handle("/search/repositories", rec)
		s := NewSearcher(newTestClient(t, mux), WithRand(rand.New(rand.NewPCG(42, 1))))
		got := s.Serendipity(context.Background())
		require.Len(t, got, 1)
		return got[0], rec.last()
	}

	first, q1 := run()
	second, q2 := run()
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, q1, q2)
	assert.Equal(t, "5", q1.Get("per_page"))
	assert.Contains(t, []string{"1", "2", "3", "4", "5"}, q1.Get("page"))
	assert.True(t, strings.HasSuffix(q1.Get("q"), " stars:>500"))
}

func TestSearcher_SerendipityEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.Handle("/search/repositories", &searchRecorder{})
	s := NewSearcher(newTestClient(t, mux))
	assert.Empty(t, s.Serendipity(context.Background()))
}

func TestSearcher_Awesome(t *testing.T) {
	rec := &searchRecorder{}
	mux := http.NewServeMux()
	mux.Handle("/search/repositories", rec)

	s := NewSearcher(newTestClient(t, mux), WithRand(rand.New(rand.NewPCG(1, 2))))
	s.Awesome(context.Background())
	assert.Equal(t, "topic:awesome", rec.last().Get("q"))
	assert.Equal(t, "10", rec.last().Get("per_page"))
}

func b64(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}

func contentJSON(path, body string) string {
	return fmt.Sprintf(`{"type":"file","encoding":"base64","path":%q,"content":%q}`, path, b64(body))
}

func analyzerMux(t *testing.T, readme string) (*http.ServeMux, *sync.Map) {
	t.Helper()
	requested := &sync.Map{}
	mux := http.NewServeMux()

	mux.HandleFunc("/repos/o/r/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})
	mux.HandleFunc("/repos/o/r/git/trees/master", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprint(w, `{"sha":"abc","tree":[
			{"path":"cmd","type":"tree"},
			{"path":"cmd/server/main.go","type":"blob"},
			{"path":"app.py","type":"blob"},
			{"path":"server.py","type":"blob"},
			{"path":"go.mod","type":"blob"},
			{"path":"Dockerfile","type":"blob"},
			{"path":"package.json","type":"blob"},
			{"path":"requirements.txt","type":"blob"},
			{"path":"internal/store/store_test.go","type":"blob"}
		]}`)
	})
	mux.HandleFunc("/repos/o/r/readme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentJSON("README.md", readme))
	})
	mux.HandleFunc("/repos/o/r/contents/", func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/repos/o/r/contents/")
		requested.Store(path, true)
		if path == "go.mod" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, contentJSON(path, strings.Repeat("x", 2500)))
	})
	return mux, requested
}

func TestAnalyzer_BuildContext(t *testing.T) {
	mux, requested := analyzerMux(t, strings.Repeat("r", 9000))
	a := NewAnalyzer(newTestClient(t, mux), zaptest.NewLogger(t))

	got := a.BuildContext(context.Background(), "o", "r")

	assert.Len(t, got.Readme, MaxReadme)
	require.NotNil(t, got.Structure)
	assert.Equal(t, "master", got.Structure.Branch)
	assert.Equal(t, []string{"cmd"}, got.Structure.Directories)
	assert.Equal(t, []string{"cmd/server/main.go", "app.py", "server.py"}, got.Structure.EntryPoints)
	assert.Equal(t, []string{"go.mod", "Dockerfile", "package.json", "requirements.txt"}, got.Structure.ConfigFiles)
	assert.Equal(t, []string{"internal/store/store_test.go"}, got.Structure.TestFiles)

	// two entry points, then three config files; go.mod fails and is skipped
	var paths []string
	for _, f := range got.CriticalFiles {
		paths = append(paths, f.Path)
		assert.Len(t, f.Content, MaxCriticalFile)
	}
	assert.Equal(t, []string{"cmd/server/main.go", "app.py", "Dockerfile", "package.json"}, paths)

	_, askedServer := requested.Load("server.py")
	_, askedRequirements := requested.Load("requirements.txt")
	assert.False(t, askedServer)
	assert.False(t, askedRequirements)
}

func TestAnalyzer_NoBranchAnswers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r/readme", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, contentJSON("README.md", "short readme"))
	})
	a := NewAnalyzer(newTestClient(t, mux), nil)

	got := a.BuildContext(context.Background(), "o", "r")
	assert.Equal(t, "short readme", got.Readme)
	assert.Nil(t, got.Structure)
	assert.Empty(t, got.CriticalFiles)
}

func TestStructureSummary(t *testing.T) {
	assert.Equal(t, "No structure available.", StructureSummary(nil))

	s := &Structure{
		Directories: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"},
		Files:       []string{"x", "y"},
		ConfigFiles: []string{"1", "2", "3", "4", "5", "6"},
	}
	summary := StructureSummary(s)
	assert.Contains(t, summary, "- Total Directories: 11\n")
	assert.Contains(t, summary, "- Configuration Files: 1, 2, 3, 4, 5\n")
	assert.Contains(t, summary, "- Entry Points: None\n")
	assert.Contains(t, summary, "- Has Tests: No\n")
	assert.Contains(t, summary, "  - j\n")
	assert.NotContains(t, summary, "  - k\n")
}
