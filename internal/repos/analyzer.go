package repos

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nexusai.dev/nexus/internal/logging"
	"nexusai.dev/nexus/internal/utils"
)

const (
	MaxReadme       = 8000
	MaxCriticalFile = 2000
	maxEntryPoints  = 2
	maxConfigFiles  = 3
)

var (
	defaultBranches = []string{"main", "master", "develop"}

	configMarkers = []string{
		"package.json", "requirements.txt", "composer.json",
		"cargo.toml", "go.mod", "pom.xml", "build.gradle",
		"dockerfile", "docker-compose",
	}
	entryMarkers = []string{
		"main.py", "app.py", "index.js", "main.js", "app.js",
		"main.go", "main.rs", "index.html", "server.py",
	}
)

// Structure is a repository tree bucketed by role.
type Structure struct {
	Branch      string   `json:"branch"`
	Directories []string `json:"directories"`
	Files       []string `json:"files"`
	ConfigFiles []string `json:"config_files"`
	EntryPoints []string `json:"entry_points"`
	TestFiles   []string `json:"test_files"`
}

// CriticalFile is a truncated file body selected as high-value context.
type CriticalFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Context is everything the repo chat prompt is built from. Structure is nil
// when no branch could be listed.
type Context struct {
	Owner         string         `json:"owner"`
	Repo          string         `json:"repo"`
	Readme        string         `json:"readme"`
	Structure     *Structure     `json:"structure,omitempty"`
	CriticalFiles []CriticalFile `json:"critical_files"`
}

// Analyzer assembles a size-bounded Context for one repository.
type Analyzer struct {
	client   *github.Client
	Branches []string
	logger   *zap.Logger
}

func NewAnalyzer(client *github.Client, logger *zap.Logger) *Analyzer {
	return &Analyzer{client: client, Branches: defaultBranches, logger: logging.OrNop(logger)}
}

// Structure lists the recursive tree of the first branch that answers.
func (a *Analyzer) Structure(ctx context.Context, owner, repo string) (*Structure, bool) {
	for _, branch := range a.Branches {
		tree, _, err := a.client.Git.GetTree(ctx, owner, repo, branch, true)
		if err != nil {
			a.logger.Debug("tree fetch failed",
				zap.String("repo", owner+"/"+repo), zap.String("branch", branch), zap.Error(err))
			continue
		}
		return classify(branch, tree.Entries), true
	}
	a.logger.Warn("could not fetch repository structure", zap.String("repo", owner+"/"+repo))
	return nil, false
}

func classify(branch string, entries []*github.TreeEntry) *Structure {
	s := &Structure{
		Branch:      branch,
		Directories: []string{},
		Files:       []string{},
		ConfigFiles: []string{},
		EntryPoints: []string{},
		TestFiles:   []string{},
	}
	for _, e := range entries {
		path := e.GetPath()
		switch e.GetType() {
		case "tree":
			s.Directories = append(s.Directories, path)
		case "blob":
			s.Files = append(s.Files, path)
			lower := strings.ToLower(path)
			if containsAny(lower, configMarkers) {
				s.ConfigFiles = append(s.ConfigFiles, path)
			}
			if containsAny(lower, entryMarkers) {
				s.EntryPoints = append(s.EntryPoints, path)
			}
			if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
				s.TestFiles = append(s.TestFiles, path)
			}
		}
	}
	return s
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// FileContent returns the decoded body of a single file.
func (a *Analyzer) FileContent(ctx context.Context, owner, repo, path string) (string, error) {
	file, _, _, err := a.client.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return "", err
	}
	if file == nil {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return file.GetContent()
}

// Readme returns the repository README, whatever its file name.
func (a *Analyzer) Readme(ctx context.Context, owner, repo string) (string, error) {
	file, _, err := a.client.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return "", err
	}
	return file.GetContent()
}

// BuildContext gathers the README (capped at MaxReadme), the tree, and up to
// two entry points followed by up to three config files, each capped at
// MaxCriticalFile. A file that cannot be read is left out.
func (a *Analyzer) BuildContext(ctx context.Context, owner, repo string) Context {
	out := Context{Owner: owner, Repo: repo, CriticalFiles: []CriticalFile{}}

	if readme, err := a.Readme(ctx, owner, repo); err != nil {
		a.logger.Debug("readme fetch failed", zap.String("repo", owner+"/"+repo), zap.Error(err))
	} else {
		out.Readme = utils.Truncate(readme, MaxReadme)
	}

	structure, ok := a.Structure(ctx, owner, repo)
	if !ok {
		return out
	}
	out.Structure = structure

	paths := append(head(structure.EntryPoints, maxEntryPoints), head(structure.ConfigFiles, maxConfigFiles)...)
	contents := make([]string, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			body, err := a.FileContent(gctx, owner, repo, path)
			if err != nil {
				a.logger.Debug("critical file skipped", zap.String("path", path), zap.Error(err))
				return nil
			}
			contents[i] = utils.Truncate(body, MaxCriticalFile)
			return nil
		})
	}
	_ = g.Wait()

	for i, path := range paths {
		if contents[i] != "" {
			out.CriticalFiles = append(out.CriticalFiles, CriticalFile{Path: path, Content: contents[i]})
		}
	}
	return out
}

func head(s []string, n int) []string {
	if len(s) < n {
		n = len(s)
	}
	return append([]string(nil), s[:n]...)
}

// StructureSummary renders a short human-readable overview of s.
func StructureSummary(s *Structure) string {
	if s == nil {
		return "No structure available."
	}

	var b strings.Builder
	b.WriteString("Repository Structure Overview:\n")
	fmt.Fprintf(&b, "- Total Directories: %d\n", len(s.Directories))
	fmt.Fprintf(&b, "- Total Files: %d\n", len(s.Files))
	fmt.Fprintf(&b, "- Configuration Files: %s\n", joinOrNone(head(s.ConfigFiles, 5)))
	fmt.Fprintf(&b, "- Entry Points: %s\n", joinOrNone(s.EntryPoints))
	if len(s.TestFiles) > 0 {
		b.WriteString("- Has Tests: Yes\n")
	} else {
		b.WriteString("- Has Tests: No\n")
	}
	b.WriteString("\nKey Directories:\n")
	for _, d := range head(s.Directories, 10) {
		fmt.Fprintf(&b, "  - %s\n", d)
	}
	return b.String()
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "None"
	}
	return strings.Join(items, ", ")
}
