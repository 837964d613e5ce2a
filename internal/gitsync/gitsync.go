// Package gitsync merges batches of externally fetched GitHub records
// into local storage. Syncing is idempotent: every record is keyed by a
// stable external identifier backed by a unique index, and an insert
// conflict means the record is already known and is silently skipped.
package gitsync

import (
	"fmt"
	"time"

	"github.com/commeet/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RepoSnapshot is one repository as fetched from the GitHub API
type RepoSnapshot struct {
	GithubRepoID  int64  `json:"github_repo_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	URL           string `json:"url"`
	IsPublic      bool   `json:"is_public"`
}

// CommitSnapshot is one commit as fetched from the GitHub API
type CommitSnapshot struct {
	SHA            string              `json:"sha"`
	Message        string              `json:"message"`
	AuthorName     string              `json:"author_name"`
	AuthorEmail    string              `json:"author_email"`
	CommittedAt    time.Time           `json:"committed_at"`
	URL            string              `json:"url"`
	Files          []models.FileChange `json:"files"`
	TotalAdditions int                 `json:"total_additions"`
	TotalDeletions int                 `json:"total_deletions"`
}

// RecordError reports a single record in a batch that failed
// validation. The rest of the batch is still attempted.
type RecordError struct {
	Index  int    `json:"index"`
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("record %d (%s): %s", e.Index, e.Key, e.Reason)
}

// SyncResult reports the outcome of one sync batch. Only newly
// inserted rows are listed; already-known records count as skipped.
type SyncResult struct {
	Inserted  []uint        `json:"inserted"`
	Skipped   int           `json:"skipped"`
	Malformed []RecordError `json:"malformed,omitempty"`
}

// Synchronizer upserts external snapshots into local storage
type Synchronizer struct {
	db *gorm.DB
}

func NewSynchronizer(db *gorm.DB) *Synchronizer {
	return &Synchronizer{db: db}
}

// SyncRepositories inserts any repositories not yet known locally.
// Existing rows are never modified on resync: repository metadata is
// first-write-wins. New rows are stored inactive; connecting a
// repository is a separate action.
func (s *Synchronizer) SyncRepositories(userID uint, snapshots []RepoSnapshot) (SyncResult, error) {
	result := SyncResult{Inserted: []uint{}}
	seen := make(map[int64]bool, len(snapshots))

	for i, snap := range snapshots {
		if reason := validateRepo(snap); reason != "" {
			result.Malformed = append(result.Malformed, RecordError{
				Index:  i,
				Key:    fmt.Sprintf("%d", snap.GithubRepoID),
				Reason: reason,
			})
			continue
		}
		if seen[snap.GithubRepoID] {
			result.Skipped++
			continue
		}
		seen[snap.GithubRepoID] = true

		repo := models.Repository{
			UserID:        userID,
			Provider:      models.ProviderGithub,
			GithubRepoID:  snap.GithubRepoID,
			Name:          snap.Name,
			Description:   snap.Description,
			DefaultBranch: snap.DefaultBranch,
			URL:           snap.URL,
			IsPublic:      snap.IsPublic,
			IsActive:      false,
		}
		res := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "github_repo_id"}},
			DoNothing: true,
		}).Create(&repo)
		if res.Error != nil {
			return result, res.Error
		}
		if res.RowsAffected == 0 {
			result.Skipped++
			continue
		}
		result.Inserted = append(result.Inserted, repo.ID)
	}

	return result, nil
}

// SyncCommits inserts any commits not yet known locally, keyed by SHA.
// A malformed record fails only itself; the rest of the batch is still
// attempted.
func (s *Synchronizer) SyncCommits(userID, repositoryID uint, snapshots []CommitSnapshot) (SyncResult, error) {
	result := SyncResult{Inserted: []uint{}}
	seen := make(map[string]bool, len(snapshots))

	for i, snap := range snapshots {
		if reason := validateCommit(snap); reason != "" {
			result.Malformed = append(result.Malformed, RecordError{
				Index:  i,
				Key:    snap.SHA,
				Reason: reason,
			})
			continue
		}
		if seen[snap.SHA] {
			result.Skipped++
			continue
		}
		seen[snap.SHA] = true

		commit := models.Commit{
			RepositoryID:   repositoryID,
			UserID:         userID,
			SHA:            snap.SHA,
			Message:        snap.Message,
			AuthorName:     snap.AuthorName,
			AuthorEmail:    snap.AuthorEmail,
			CommittedAt:    snap.CommittedAt,
			URL:            snap.URL,
			FilesChanged:   snap.Files,
			TotalAdditions: snap.TotalAdditions,
			TotalDeletions: snap.TotalDeletions,
		}
		res := s.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sha"}},
			DoNothing: true,
		}).Create(&commit)
		if res.Error != nil {
			return result, res.Error
		}
		if res.RowsAffected == 0 {
			result.Skipped++
			continue
		}
		result.Inserted = append(result.Inserted, commit.ID)
	}

	return result, nil
}

func validateRepo(snap RepoSnapshot) string {
	switch {
	case snap.GithubRepoID == 0:
		return "missing github repo id"
	case snap.Name == "":
		return "missing name"
	case snap.DefaultBranch == "":
		return "missing default branch"
	}
	return ""
}

func validateCommit(snap CommitSnapshot) string {
	switch {
	case snap.SHA == "":
		return "missing sha"
	case snap.Message == "":
		return "missing message"
	case snap.AuthorName == "":
		return "missing author name"
	case snap.CommittedAt.IsZero():
		return "missing committed at"
	}
	return ""
}
