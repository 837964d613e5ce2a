// Package github is a thin client for the parts of the GitHub REST API
// Commeet needs: the authenticated user, their repositories, and recent
// commits with file-level stats.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/commeet/backend/internal/gitsync"
	"github.com/commeet/backend/internal/models"
)

const (
	defaultBaseURL = "https://api.github.com"
	acceptHeader   = "application/vnd.github+json"

	// GitHub lists up to 100 commits per page; fetching file stats
	// needs one extra request per commit, so cap the detail fetches.
	maxCommitDetails = 50

	defaultTimeout = 30 * time.Second
)

// Client calls the GitHub REST API with a user's OAuth token
type Client struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewClient creates a GitHub API client for one user token
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a custom API root,
// useful for tests.
func NewClientWithBaseURL(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) get(ctx context.Context, path string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("github api error: %d %s", resp.StatusCode, string(body))
	}

	return json.NewDecoder(resp.Body).Decode(dest)
}

// User is the authenticated GitHub user
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// FetchUser returns the authenticated user for the client's token
func (c *Client) FetchUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.get(ctx, "/user", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type apiRepo struct {
	ID            int64  `json:"id"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	DefaultBranch string `json:"default_branch"`
	HTMLURL       string `json:"html_url"`
}

// ListRepositories fetches the user's repositories, most recently
// updated first, as sync-ready snapshots.
func (c *Client) ListRepositories(ctx context.Context) ([]gitsync.RepoSnapshot, error) {
	var repos []apiRepo
	if err := c.get(ctx, "/user/repos?per_page=100&sort=updated", &repos); err != nil {
		return nil, err
	}

	snapshots := make([]gitsync.RepoSnapshot, 0, len(repos))
	for _, r := range repos {
		snapshots = append(snapshots, gitsync.RepoSnapshot{
			GithubRepoID:  r.ID,
			Name:          r.FullName,
			Description:   r.Description,
			DefaultBranch: r.DefaultBranch,
			URL:           r.HTMLURL,
			IsPublic:      !r.Private,
		})
	}
	return snapshots, nil
}

type apiCommitRef struct {
	SHA string `json:"sha"`
}

type apiCommitDetail struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Stats struct {
		Additions int `json:"additions"`
		Deletions int `json:"deletions"`
	} `json:"stats"`
	Files []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
	} `json:"files"`
}

// ListCommits fetches recent commits for a repository ("owner/repo")
// since the given time, then fetches each commit's detail so the
// snapshots carry per-file changes and aggregate stats.
func (c *Client) ListCommits(ctx context.Context, fullName string, since *time.Time) ([]gitsync.CommitSnapshot, error) {
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(100))
	if since != nil {
		params.Set("since", since.UTC().Format(time.RFC3339))
	}

	var refs []apiCommitRef
	path := fmt.Sprintf("/repos/%s/commits?%s", fullName, params.Encode())
	if err := c.get(ctx, path, &refs); err != nil {
		return nil, err
	}

	if len(refs) > maxCommitDetails {
		refs = refs[:maxCommitDetails]
	}

	snapshots := make([]gitsync.CommitSnapshot, 0, len(refs))
	for _, ref := range refs {
		var detail apiCommitDetail
		if err := c.get(ctx, fmt.Sprintf("/repos/%s/commits/%s", fullName, ref.SHA), &detail); err != nil {
			return nil, err
		}

		files := make([]models.FileChange, 0, len(detail.Files))
		for _, f := range detail.Files {
			files = append(files, models.FileChange{
				Filename:  f.Filename,
				Status:    f.Status,
				Additions: f.Additions,
				Deletions: f.Deletions,
			})
		}

		snapshots = append(snapshots, gitsync.CommitSnapshot{
			SHA:            detail.SHA,
			Message:        detail.Commit.Message,
			AuthorName:     detail.Commit.Author.Name,
			AuthorEmail:    detail.Commit.Author.Email,
			CommittedAt:    detail.Commit.Author.Date,
			URL:            detail.HTMLURL,
			Files:          files,
			TotalAdditions: detail.Stats.Additions,
			TotalDeletions: detail.Stats.Deletions,
		})
	}
	return snapshots, nil
}
