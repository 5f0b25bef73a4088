package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"nexusai.dev/nexus/internal/repos"
	"nexusai.dev/nexus/internal/store"
)

// stubModel answers with respond, or with reply/err when respond is nil, and
// records every call.
type stubModel struct {
	mu      sync.Mutex
	reply   string
	err     error
	respond func(prompt string) (string, error)

	prompts  []string
	messages []string
	history  [][]Turn
	closed   bool
}

func (m *stubModel) answer(prompt string) (string, error) {
	if m.respond != nil {
		return m.respond(prompt)
	}
	return m.reply, m.err
}

func (m *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.answer(prompt)
}

func (m *stubModel) Chat(_ context.Context, history []Turn, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, message)
	m.history = append(m.history, append([]Turn(nil), history...))
	return m.answer(message)
}

func (m *stubModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *stubModel) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts[len(m.prompts)-1]
}

func newTestEngine(t *testing.T, m *stubModel) *Engine {
	t.Helper()
	if m == nil {
		return NewEngine(nil, zaptest.NewLogger(t))
	}
	return NewEngine(m, zaptest.NewLogger(t))
}

func TestAnalyzeContent_Unconfigured(t *testing.T) {
	e := newTestEngine(t, nil)
	res := e.AnalyzeContent(context.Background(), "anything", "en")

	assert.Equal(t, ModeUnconfigured, res.Mode)
	assert.Equal(t, 0, res.Value.HypeScore)
	assert.Equal(t, "Unknown", res.Value.Difficulty)
	assert.Equal(t, "API Key missing.", res.Value.Summary)
	assert.Empty(t, res.Value.TechStack)
}

func TestAnalyzeContent_ParsesFencedReply(t *testing.T) {
	m := &stubModel{reply: "```json\n{\"hype_score\": 87.6, \"difficulty\": \"Hard\", \"summary\": \"Fast.\", \"tech_stack\": [\"Rust\", \"tokio\"]}\n```"}
	res := newTestEngine(t, m).AnalyzeContent(context.Background(), "post", "en")

	require.Equal(t, ModeOK, res.Mode)
	assert.Equal(t, store.Analysis{HypeScore: 88, Difficulty: "Hard", Summary: "Fast.", TechStack: []string{"Rust", "tokio"}}, res.Value)
}

func TestAnalyzeContent_ClampsScore(t *testing.T) {
	m := &stubModel{reply: `{"hype_score": 140, "difficulty": "Easy", "summary": "s"}`}
	res := newTestEngine(t, m).AnalyzeContent(context.Background(), "post", "en")

	require.True(t, res.OK())
	assert.Equal(t, 100, res.Value.HypeScore)
	assert.Equal(t, []string{}, res.Value.TechStack)
}

func TestAnalyzeContent_Degraded(t *testing.T) {
	for name, m := range map[string]*stubModel{
		"call fails":  {err: errors.New("quota")},
		"not json":    {reply: "I think it is great"},
		"wrong shape": {reply: `["a"]`},
	} {
		t.Run(name, func(t *testing.T) {
			res := newTestEngine(t, m).AnalyzeContent(context.Background(), "post", "en")
			assert.Equal(t, ModeDegraded, res.Mode)
			assert.Error(t, res.Err)
			assert.Equal(t, "Analysis failed.", res.Value.Summary)
			assert.Equal(t, "Unknown", res.Value.Difficulty)
		})
	}
}

func TestAnalyzeContent_TruncatesInputAndLocalises(t *testing.T) {
	m := &stubModel{reply: `{}`}
	e := newTestEngine(t, m)

	e.AnalyzeContent(context.Background(), strings.Repeat("x", 9000)+"TAIL", "tr-TR")
	p := m.lastPrompt()
	assert.Contains(t, p, strings.Repeat("x", 8000))
	assert.NotContains(t, p, strings.Repeat("x", 8001))
	assert.NotContains(t, p, "TAIL")
	assert.Contains(t, p, `"Kolay"`)
	assert.Contains(t, p, "Respond in Turkish.")

	e.AnalyzeContent(context.Background(), "short", "de")
	assert.Contains(t, m.lastPrompt(), `"Easy"`)
}

func TestChat_Unconfigured(t *testing.T) {
	res := newTestEngine(t, nil).Chat(context.Background(), "hi", nil, nil, "en")
	assert.Equal(t, ModeUnconfigured, res.Mode)
	assert.Equal(t, "Error: Gemini API Key is missing.", res.Value)
}

func TestChat_FirstTurnCarriesItem(t *testing.T) {
	m := &stubModel{reply: "answer"}
	e := newTestEngine(t, m)
	item := &ItemContext{
		Title:      "Tokio vs async-std",
		Analysis:   &store.Analysis{HypeScore: 70, Difficulty: "Medium", Summary: "Runtimes.", TechStack: []string{"Rust", "tokio"}},
		RawContent: strings.Repeat("r", 5000),
	}

	res := e.Chat(context.Background(), "which one?", nil, item, "en")
	require.True(t, res.OK())
	assert.Equal(t, "answer", res.Value)

	msg := m.messages[0]
	assert.Contains(t, msg, "Title: Tokio vs async-std")
	assert.Contains(t, msg, "Hype Score: 70/100")
	assert.Contains(t, msg, "Identified Tech Stack: Rust, tokio")
	assert.Contains(t, msg, strings.Repeat("r", 4000))
	assert.NotContains(t, msg, strings.Repeat("r", 4001))
	assert.True(t, strings.HasSuffix(msg, "\n\nUser Query: which one?"))
}

func TestChat_RawContentFallsBackToTitle(t *testing.T) {
	m := &stubModel{reply: "ok"}
	newTestEngine(t, m).Chat(context.Background(), "q", nil, &ItemContext{Title: "Only a title"}, "en")
	assert.Contains(t, m.messages[0], "RAW CONTENT SOURCE:\nOnly a title")
	assert.Contains(t, m.messages[0], "Hype Score: N/A/100")
}

func TestChat_LaterTurnsCarryOnlyReminder(t *testing.T) {
	m := &stubModel{reply: "ok"}
	history := []Turn{{Role: roleUser, Text: "a"}, {Role: roleModel, Text: "b"}}

	newTestEngine(t, m).Chat(context.Background(), "next", history, &ItemContext{Title: "t"}, "tr")
	assert.Equal(t, "[System Note: Respond in Turkish.]\nnext", m.messages[0])
	assert.Equal(t, history, m.history[0])
}

func TestChat_Degraded(t *testing.T) {
	m := &stubModel{err: errors.New("boom")}
	res := newTestEngine(t, m).Chat(context.Background(), "q", nil, nil, "en")
	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Equal(t, "Error generating response: boom", res.Value)
}

func TestChatWithRepo_FirstTurn(t *testing.T) {
	m := &stubModel{reply: "audit"}
	rc := repos.Context{
		Owner:         "o",
		Repo:          "r",
		Readme:        strings.Repeat("m", repos.MaxReadme),
		Structure:     &repos.Structure{Branch: "main", Files: []string{"main.go"}, EntryPoints: []string{"main.go"}},
		CriticalFiles: []repos.CriticalFile{{Path: "main.go", Content: "package main"}},
	}

	res := newTestEngine(t, m).ChatWithRepo(context.Background(), "how is it built?", rc, nil, "en")
	require.True(t, res.OK())

	msg := m.messages[0]
	assert.Contains(t, msg, "Repository: o/r")
	assert.Contains(t, msg, strings.Repeat("m", repos.MaxReadme))
	assert.Contains(t, msg, "--- main.go ---\npackage main")
	assert.True(t, strings.HasSuffix(msg, "\n\nUser Question: how is it built?"))
}

func TestChatWithRepo_NoReadmeAndDegraded(t *testing.T) {
	m := &stubModel{err: errors.New("down")}
	res := newTestEngine(t, m).ChatWithRepo(context.Background(), "q", repos.Context{Owner: "o", Repo: "r"}, nil, "en")

	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Equal(t, "Error analyzing repository: down", res.Value)
	assert.Contains(t, m.messages[0], "No README available")
	assert.Contains(t, m.messages[0], "No structure available.")
}

func TestGenerateResearchStrategy(t *testing.T) {
	m := &stubModel{reply: "```json\n[\"topic:networking language:rust\", \"  \", \"q2\", \"q3\", \"q4\", \"q5\", \"q6\"]\n```"}
	res := newTestEngine(t, m).GenerateResearchStrategy(context.Background(), "rust networking")

	require.True(t, res.OK())
	assert.Equal(t, []string{"topic:networking language:rust", "q2", "q3", "q4", "q5"}, res.Value)
}

func TestGenerateResearchStrategy_FallsBackToPrompt(t *testing.T) {
	for name, m := range map[string]*stubModel{
		"call fails": {err: errors.New("x")},
		"not json":   {reply: "topic:rust"},
		"empty list": {reply: `["", " "]`},
	} {
		t.Run(name, func(t *testing.T) {
			res := newTestEngine(t, m).GenerateResearchStrategy(context.Background(), "rust networking")
			assert.Equal(t, ModeDegraded, res.Mode)
			assert.Equal(t, []string{"rust networking"}, res.Value)
		})
	}

	res := newTestEngine(t, nil).GenerateResearchStrategy(context.Background(), "p")
	assert.Equal(t, ModeUnconfigured, res.Mode)
	assert.Equal(t, []string{"p"}, res.Value)
}

func candidates(n int) []repos.Repo {
	out := make([]repos.Repo, n)
	for i := range out {
		out[i] = repos.Repo{
			ID:        int64(i + 1),
			Owner:     "o",
			Name:      fmt.Sprintf("r%d", i),
			Stars:     100 - i,
			UpdatedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return out
}

func TestFilterRepositories_ResolvesPicks(t *testing.T) {
	m := &stubModel{reply: `[
		{"repo": "o/r3", "reason": "fits"},
		{"repo_full_name": "o/r1", "reason": "also"},
		{"repo": "ghost/none", "reason": "made up"},
		{"repo": "o/r3", "reason": "again"}
	]`}
	input := candidates(5)

	res := newTestEngine(t, m).FilterRepositories(context.Background(), "p", input)
	require.True(t, res.OK())
	require.Len(t, res.Value, 2)
	assert.Equal(t, int64(4), res.Value[0].ID)
	assert.Equal(t, "fits", res.Value[0].AIReason)
	assert.Equal(t, int64(2), res.Value[1].ID)
	assert.Equal(t, "also", res.Value[1].AIReason)

	for _, r := range input {
		assert.Empty(t, r.AIReason)
	}
}

func TestFilterRepositories_CapsInputAndOutput(t *testing.T) {
	picks := make([]string, 0, 15)
	for i := 0; i < 15; i++ {
		picks = append(picks, fmt.Sprintf(`{"repo":"o/r%d","reason":"x"}`, i))
	}
	m := &stubModel{reply: "[" + strings.Join(picks, ",") + "]"}

	res := newTestEngine(t, m).FilterRepositories(context.Background(), "p", candidates(75))
	require.True(t, res.OK())
	assert.Len(t, res.Value, 10)

	p := m.lastPrompt()
	assert.Contains(t, p, `"o/r59"`)
	assert.NotContains(t, p, `"o/r60"`)
	assert.Contains(t, p, "Here are 60 potential repositories")
	assert.Contains(t, p, `"No description"`)
	assert.Contains(t, p, `"N/A"`)
	assert.Contains(t, p, `"2025-03-01"`)
}

func TestFilterRepositories_IdempotentOnSameReply(t *testing.T) {
	m := &stubModel{reply: `[{"repo":"o/r2","reason":"x"},{"repo":"o/r0","reason":"y"}]`}
	e := newTestEngine(t, m)

	first := e.FilterRepositories(context.Background(), "p", candidates(4))
	second := e.FilterRepositories(context.Background(), "p", first.Value)
	assert.Equal(t, first.Value, second.Value)
}

func TestFilterRepositories_Fallbacks(t *testing.T) {
	input := candidates(12)

	res := newTestEngine(t, &stubModel{reply: "not json"}).FilterRepositories(context.Background(), "p", input)
	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Equal(t, input[:10], res.Value)

	res = newTestEngine(t, nil).FilterRepositories(context.Background(), "p", input)
	assert.Equal(t, ModeUnconfigured, res.Mode)
	assert.Len(t, res.Value, 10)

	res = newTestEngine(t, &stubModel{reply: `[{"repo":"x/y","reason":"?"}]`}).FilterRepositories(context.Background(), "p", input)
	assert.Equal(t, ModeOK, res.Mode)
	assert.Empty(t, res.Value)
}

func TestGenerateGitHubQuery(t *testing.T) {
	m := &stubModel{reply: "`topic:web-framework language:python stars:>1000`\n"}
	res := newTestEngine(t, m).GenerateGitHubQuery(context.Background(), "python web frameworks")
	require.True(t, res.OK())
	assert.Equal(t, "topic:web-framework language:python stars:>1000", res.Value)

	res = newTestEngine(t, &stubModel{err: errors.New("x")}).GenerateGitHubQuery(context.Background(), "python web frameworks")
	assert.Equal(t, ModeDegraded, res.Mode)
	assert.Equal(t, "python web frameworks", res.Value)
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "tr", LanguageFor("tr-TR").Code)
	assert.Equal(t, "en", LanguageFor("en_US").Code)
	assert.Equal(t, "en", LanguageFor("xx").Code)
	assert.Equal(t, "en", LanguageFor("").Code)

	RegisterLanguage(Language{Code: "DE", ChatInstruction: "Antworte auf Deutsch.", Difficulty: [3]string{"Leicht", "Mittel", "Schwer"}})
	assert.Equal(t, "Antworte auf Deutsch.", LanguageFor("de-AT").ChatInstruction)
}

func TestWorst(t *testing.T) {
	assert.Equal(t, ModeOK, worst(ModeOK, ModeOK))
	assert.Equal(t, ModeDegraded, worst(ModeOK, ModeDegraded))
	assert.Equal(t, ModeUnconfigured, worst(ModeDegraded, ModeUnconfigured))
}
