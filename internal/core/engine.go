package core

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/repos"
	"nexusai.dev/nexus/internal/store"
	"nexusai.dev/nexus/internal/utils"
)

const (
	maxAnalysisInput   = 8000
	maxChatContext     = 4000
	maxPromptInput     = 2000
	maxFilterInput     = 60
	maxCurated         = 10
	maxStrategyQueries = 5
	maxDescription     = 200
	maxTopics          = 5

	missingKeyReply = "Error: Gemini API Key is missing."
)

// Engine wraps a LanguageModel with prompt templates and reply parsing.
// Without a model every operation returns its placeholder tagged
// ModeUnconfigured; a failed call or unparsable reply returns the fallback
// tagged ModeDegraded. No operation returns an error.
type Engine struct {
	model  LanguageModel
	logger *zap.Logger
}

// NewEngine returns an engine; a nil model yields an unconfigured engine.
func NewEngine(model LanguageModel, logger *zap.Logger) *Engine {
	return &Engine{model: model, logger: logging.OrNop(logger)}
}

func (e *Engine) Configured() bool { return e.model != nil }

func placeholderAnalysis(summary string) store.Analysis {
	return store.Analysis{HypeScore: 0, Difficulty: "Unknown", Summary: summary, TechStack: []string{}}
}

type analysisReply struct {
	HypeScore  float64  `json:"hype_score"`
	Difficulty string   `json:"difficulty"`
	Summary    string   `json:"summary"`
	TechStack  []string `json:"tech_stack"`
}

// AnalyzeContent asks for a hype score, difficulty, summary and tech stack.
func (e *Engine) AnalyzeContent(ctx context.Context, text, lang string) Result[store.Analysis] {
	if !e.Configured() {
		return unconfigured(placeholderAnalysis("API Key missing."))
	}

	l := LanguageFor(lang)
	prompt := fmt.Sprintf(`You are an expert tech analyst. Analyze the following Reddit discussion or article and provide a structured JSON response.
%s

Content:
%s

Return ONLY a valid JSON object with these exact keys:
- hype_score: (integer 0-100) How much excitement or buzz is there?
- difficulty: (string) one of %q, %q or %q, how hard it is to understand or implement.
- summary: (string) A concise 2-3 sentence summary of the main points in the requested language.
- tech_stack: (list of strings) Any specific technologies, libraries, or models mentioned.
`, l.AnalysisInstruction, utils.Truncate(text, maxAnalysisInput), l.Difficulty[0], l.Difficulty[1], l.Difficulty[2])

	reply, err := e.model.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("analysis call failed", zap.Error(err))
		return degraded(placeholderAnalysis("Analysis failed."), err)
	}

	var parsed analysisReply
	if err := json.Unmarshal([]byte(utils.StripCodeFence(reply)), &parsed); err != nil {
		e.logger.Warn("analysis reply unparsable", zap.Error(err))
		return degraded(placeholderAnalysis("Analysis failed."), err)
	}

	analysis := store.Analysis{
		HypeScore:  int(math.Max(0, math.Min(100, math.Round(parsed.HypeScore)))),
		Difficulty: parsed.Difficulty,
		Summary:    parsed.Summary,
		TechStack:  parsed.TechStack,
	}
	if analysis.TechStack == nil {
		analysis.TechStack = []string{}
	}
	return okResult(analysis)
}

// ItemContext grounds a chat in one analysed content item.
type ItemContext struct {
	Title      string
	Analysis   *store.Analysis
	RawContent string
}

// Chat continues a conversation. When item is set and there is no history,
// the first turn carries the item's metadata and up to 4000 characters of its
// raw content; every other turn carries only a language reminder.
func (e *Engine) Chat(ctx context.Context, message string, history []Turn, item *ItemContext, lang string) Result[string] {
	if !e.Configured() {
		return unconfigured(missingKeyReply)
	}

	l := LanguageFor(lang)
	full := fmt.Sprintf("[System Note: %s]\n%s", l.ChatInstruction, message)
	if item != nil && len(history) == 0 {
		full = itemSystemPrompt(item, l) + "\n\nUser Query: " + message
	}

	reply, err := e.model.Chat(ctx, history, full)
	if err != nil {
		e.logger.Warn("chat call failed", zap.Error(err))
		return degraded(fmt.Sprintf("Error generating response: %v", err), err)
	}
	return okResult(reply)
}

func itemSystemPrompt(item *ItemContext, l Language) string {
	hype, difficulty, summary, tech := "N/A", "N/A", "", ""
	if a := item.Analysis; a != nil {
		hype = fmt.Sprint(a.HypeScore)
		difficulty = a.Difficulty
		summary = a.Summary
		tech = strings.Join(a.TechStack, ", ")
	}

	raw := item.RawContent
	if raw == "" {
		raw = item.Title
	}

	return fmt.Sprintf(`You are a helpful research assistant. %s

CONTEXT INFORMATION:
Title: %s

AI ANALYSIS METADATA:
- Hype Score: %s/100
- Difficulty Level: %s
- Identified Tech Stack: %s
- Brief Summary: %s

RAW CONTENT SOURCE:
%s

INSTRUCTIONS:
Use the metadata above to inform your tone. If the hype is low, be skeptical. If difficulty is high, explain concepts simply.
Answer the user's question based primarily on the content provided above.`,
		l.ChatInstruction, item.Title, hype, difficulty, tech, summary, utils.Truncate(raw, maxChatContext))
}

// ChatWithRepo is Chat for a repository: the first turn embeds the README,
// the structure summary and the critical files.
func (e *Engine) ChatWithRepo(ctx context.Context, message string, rc repos.Context, history []Turn, lang string) Result[string] {
	if !e.Configured() {
		return unconfigured(missingKeyReply)
	}

	l := LanguageFor(lang)
	full := fmt.Sprintf("[System Note: %s]\n%s", l.ChatInstruction, message)
	if len(history) == 0 {
		full = repoSystemPrompt(rc, l) + "\n\nUser Question: " + message
	}

	reply, err := e.model.Chat(ctx, history, full)
	if err != nil {
		e.logger.Warn("repo chat call failed", zap.String("repo", rc.Owner+"/"+rc.Repo), zap.Error(err))
		return degraded(fmt.Sprintf("Error analyzing repository: %v", err), err)
	}
	return okResult(reply)
}

func repoSystemPrompt(rc repos.Context, l Language) string {
	readme := rc.Readme
	if readme == "" {
		readme = "No README available"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a Senior Code Auditor and Software Architect with 15+ years of experience. %s\n\n", l.ChatInstruction)
	b.WriteString("REPOSITORY ANALYSIS CONTEXT:\n")
	fmt.Fprintf(&b, "Repository: %s/%s\n\n", rc.Owner, rc.Repo)
	fmt.Fprintf(&b, "README.md (First %d chars):\n%s\n\n", repos.MaxReadme, readme)
	fmt.Fprintf(&b, "REPOSITORY STRUCTURE:\n%s\n", repos.StructureSummary(rc.Structure))
	b.WriteString("CRITICAL FILES CONTENT:\n")
	for _, f := range rc.CriticalFiles {
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", f.Path, f.Content)
	}
	b.WriteString(`
YOUR ROLE:
1. Analyze the architecture and design patterns used
2. Identify all libraries, frameworks, and dependencies
3. Critique the code organization and structure
4. Explain how different components interact
5. Point out potential improvements or issues
6. Answer specific technical questions about the codebase

When answering:
- Be direct and technical
- Reference specific files when relevant
- If you don't have enough context about a file, say so
- Suggest which files to examine for more details`)
	return b.String()
}

// GenerateResearchStrategy asks for 3-5 differently angled GitHub search
// queries. On failure the prompt itself is the only query.
func (e *Engine) GenerateResearchStrategy(ctx context.Context, prompt string) Result[[]string] {
	if !e.Configured() {
		return unconfigured([]string{prompt})
	}

	request := fmt.Sprintf(`You are a GitHub Search Strategist. The user wants to do deep research with this request:

"%s"

Generate 3-5 DISTINCT GitHub Search API queries that cover different angles of this request:
- A broad search on the main topics or language
- Niche or specific tags (advanced features, patterns)
- Trending or recent work (created recently, high activity)
- Optionally quality filters or alternative approaches

Rules:
1. Use valid GitHub qualifiers: topic:, language:, stars:, created:, pushed:, size:
2. Each query must be different
3. Return ONLY a JSON array of query strings, no explanations
4. Example: ["topic:networking language:rust stars:>500", "topic:async-io topic:p2p language:rust", "language:rust created:>2024-01-01 stars:50..500"]
`, utils.Truncate(prompt, maxPromptInput))

	reply, err := e.model.Generate(ctx, request)
	if err != nil {
		e.logger.Warn("research strategy call failed", zap.Error(err))
		return degraded([]string{prompt}, err)
	}

	var raw []string
	if err := json.Unmarshal([]byte(utils.StripCodeFence(reply)), &raw); err != nil {
		e.logger.Warn("research strategy reply unparsable", zap.Error(err))
		return degraded([]string{prompt}, err)
	}

	queries := make([]string, 0, len(raw))
	for _, q := range raw {
		if q = strings.TrimSpace(q); q != "" && len(queries) < maxStrategyQueries {
			queries = append(queries, q)
		}
	}
	if len(queries) == 0 {
		return degraded([]string{prompt}, fmt.Errorf("model returned no queries"))
	}
	return okResult(queries)
}

type filterCandidate struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stars"`
	Updated     string   `json:"updated"`
	Language    string   `json:"language"`
}

type filterPick struct {
	Repo         string `json:"repo"`
	RepoFullName string `json:"repo_full_name"`
	Reason       string `json:"reason"`
}

// FilterRepositories asks the model to pick up to 10 of the first 60
// candidates and justify each pick. Picks are resolved back to candidates by
// exact owner/name; unknown names are dropped. On failure the first 10
// candidates are returned unchanged.
func (e *Engine) FilterRepositories(ctx context.Context, prompt string, candidates []repos.Repo) Result[[]repos.Repo] {
	fallback := append([]repos.Repo{}, candidates[:min(len(candidates), maxCurated)]...)
	if !e.Configured() {
		return unconfigured(fallback)
	}
	if len(candidates) == 0 {
		return okResult([]repos.Repo{})
	}

	payload := make([]filterCandidate, 0, maxFilterInput)
	for _, r := range candidates[:min(len(candidates), maxFilterInput)] {
		c := filterCandidate{
			Name:        r.Slug(),
			Description: utils.Truncate(r.Description, maxDescription),
			Topics:      r.Topics[:min(len(r.Topics), maxTopics)],
			Stars:       r.Stars,
			Language:    r.Language,
		}
		if c.Description == "" {
			c.Description = "No description"
		}
		if c.Topics == nil {
			c.Topics = []string{}
		}
		if c.Language == "" {
			c.Language = "N/A"
		}
		if !r.UpdatedAt.IsZero() {
			c.Updated = r.UpdatedAt.Format("2006-01-02")
		}
		payload = append(payload, c)
	}
	listing, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return degraded(fallback, err)
	}

	request := fmt.Sprintf(`You are a Senior Developer doing code research. The user asked:

"%s"

Here are %d potential repositories. CURATE the best matches.

REPOSITORIES:
%s

TASK:
1. Analyze each repo against the user's SPECIFIC request
2. Filter out abandoned projects, overly generic ones, and anything irrelevant to the nuance
3. Pick the TOP %d that best fit the request
4. For each pick, give a one-sentence reason why it matches

OUTPUT FORMAT (JSON only):
[{"repo": "owner/name", "reason": "Why this is a great match"}]

Return ONLY a valid JSON array, no extra text.
`, utils.Truncate(prompt, maxPromptInput), len(payload), listing, maxCurated)

	reply, err := e.model.Generate(ctx, request)
	if err != nil {
		e.logger.Warn("repository filter call failed", zap.Error(err))
		return degraded(fallback, err)
	}

	var picks []filterPick
	if err := json.Unmarshal([]byte(utils.StripCodeFence(reply)), &picks); err != nil {
		e.logger.Warn("repository filter reply unparsable", zap.Error(err))
		return degraded(fallback, err)
	}

	bySlug := make(map[string]repos.Repo, len(candidates))
	for _, r := range candidates {
		if _, dup := bySlug[r.Slug()]; !dup {
			bySlug[r.Slug()] = r
		}
	}

	curated := make([]repos.Repo, 0, maxCurated)
	taken := make(map[int64]bool)
	for _, p := range picks {
		if len(curated) == maxCurated {
			break
		}
		name := p.Repo
		if name == "" {
			name = p.RepoFullName
		}
		r, ok := bySlug[name]
		if !ok || taken[r.ID] {
			continue
		}
		taken[r.ID] = true
		r.AIReason = p.Reason
		curated = append(curated, r)
	}
	return okResult(curated)
}

// GenerateGitHubQuery translates a natural-language request into GitHub
// search syntax; on failure the input is used as the query.
func (e *Engine) GenerateGitHubQuery(ctx context.Context, text string) Result[string] {
	if !e.Configured() {
		return unconfigured(text)
	}

	request := fmt.Sprintf(`You are an expert at GitHub Search Syntax. Convert the following natural language request into a strict GitHub Search API query string.

User Request: "%s"

Rules:
1. Use only valid GitHub qualifiers: topic:, language:, stars:, created:, pushed:, user:, org:.
2. Do NOT include any explanation. Return ONLY the query string.
3. If the user asks for "popular" or "best", assume stars:>500.
4. If the user asks for "recent" or "new", use a created:> qualifier for the current year.

Examples:
- "python web frameworks" -> topic:web-framework language:python stars:>1000
- "tools to build a database in C" -> topic:database language:c stars:>100
- "machine learning papers" -> topic:machine-learning topic:papers

Query String:`, utils.Truncate(text, maxPromptInput))

	reply, err := e.model.Generate(ctx, request)
	if err != nil {
		e.logger.Warn("github query call failed", zap.Error(err))
		return degraded(text, err)
	}

	query := strings.Trim(utils.StripCodeFence(reply), "`\"' \n")
	if query == "" {
		return degraded(text, fmt.Errorf("model returned an empty query"))
	}
	return okResult(query)
}
