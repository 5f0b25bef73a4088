// Package repos talks to the GitHub API: repository search with a handful of
// fixed discovery templates, and context assembly for a single repository.
package repos

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

var ErrInvalidURL = errors.New("invalid GitHub repository URL")

// Repo is the subset of repository metadata the application works with.
type Repo struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Owner       string    `json:"owner"`
	Description string    `json:"description"`
	Stars       int       `json:"stars"`
	Topics      []string  `json:"topics"`
	Language    string    `json:"language"`
	HTMLURL     string    `json:"html_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	PushedAt    time.Time `json:"pushed_at"`
	AIReason    string    `json:"ai_reason,omitempty"`
}

// Slug is "owner/name", the form used when the model refers to a repo.
func (r Repo) Slug() string {
	return r.Owner + "/" + r.Name
}

func fromGitHub(r *github.Repository) Repo {
	return Repo{
		ID:          r.GetID(),
		Name:        r.GetName(),
		FullName:    r.GetFullName(),
		Owner:       r.GetOwner().GetLogin(),
		Description: r.GetDescription(),
		Stars:       r.GetStargazersCount(),
		Topics:      r.Topics,
		Language:    r.GetLanguage(),
		HTMLURL:     r.GetHTMLURL(),
		CreatedAt:   r.GetCreatedAt().Time,
		UpdatedAt:   r.GetUpdatedAt().Time,
		PushedAt:    r.GetPushedAt().Time,
	}
}

// NewGitHubClient returns an authenticated client when token is set and an
// anonymous one otherwise. Public search works without a token at a lower
// rate limit.
func NewGitHubClient(ctx context.Context, token string) *github.Client {
	if token == "" {
		return github.NewClient(&http.Client{Timeout: 10 * time.Second})
	}
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(ctx, ts)
	tc.Timeout = 10 * time.Second
	return github.NewClient(tc)
}

// ParseRepoURL extracts owner and repository name from a github.com URL such
// as https://github.com/owner/repo or https://github.com/owner/repo/tree/main.
func ParseRepoURL(raw string) (owner, name string, err error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", ErrInvalidURL
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "github.com" {
		return "", "", ErrInvalidURL
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	if len(parts) < 2 {
		return "", "", ErrInvalidURL
	}
	owner, name = parts[0], strings.TrimSuffix(parts[1], ".git")
	if owner == "" || name == "" {
		return "", "", ErrInvalidURL
	}
	return owner, name, nil
}
