package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Provider represents the git hosting provider of a repository
type Provider string

const (
	ProviderGithub Provider = "github"
	ProviderGitlab Provider = "gitlab"
)

// Repository represents a locally cached snapshot of a GitHub repository
type Repository struct {
	ID     uint `gorm:"column:id;primaryKey" json:"id"`
	UserID uint `gorm:"column:user_id;not null;index;index:idx_repositories_user_active,priority:1" json:"user_id"`

	Provider     Provider `gorm:"column:provider;size:20;not null;default:github" json:"provider"`
	GithubRepoID int64    `gorm:"column:github_repo_id;not null;uniqueIndex" json:"github_repo_id"`
	Name         string   `gorm:"column:name;size:255;not null" json:"name"`
	Description  string   `gorm:"column:description;size:1000" json:"description"`
	DefaultBranch string  `gorm:"column:default_branch;size:100;not null" json:"default_branch"`
	URL          string   `gorm:"column:url;size:500" json:"url"`
	IsPublic     bool     `gorm:"column:is_public;default:false" json:"is_public"`

	// A repository is stored inactive on sync; connecting it is a
	// separate, entitlement-gated action.
	IsActive bool `gorm:"column:is_active;default:false;index:idx_repositories_user_active,priority:2" json:"is_active"`

	LastSyncedAt *time.Time `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Repository) TableName() string {
	return "repositories"
}

// FileChange describes a single changed file within a commit
type FileChange struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// FileChangeList is stored as a JSON column on commits
type FileChangeList []FileChange

func (l FileChangeList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *FileChangeList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return errors.New("unsupported type for FileChangeList")
}

// Commit represents a locally cached snapshot of a GitHub commit
type Commit struct {
	ID           uint `gorm:"column:id;primaryKey" json:"id"`
	RepositoryID uint `gorm:"column:repository_id;not null;index" json:"repository_id"`
	UserID       uint `gorm:"column:user_id;not null;index" json:"user_id"`

	// Commit hashes are globally unique across the source, so the
	// uniqueness key is not scoped per repository.
	SHA         string    `gorm:"column:sha;size:64;not null;uniqueIndex" json:"sha"`
	Message     string    `gorm:"column:message;type:text;not null" json:"message"`
	AuthorName  string    `gorm:"column:author_name;size:255;not null" json:"author_name"`
	AuthorEmail string    `gorm:"column:author_email;size:255" json:"author_email"`
	CommittedAt time.Time `gorm:"column:committed_at;not null;index" json:"committed_at"`
	URL         string    `gorm:"column:url;size:500" json:"url"`

	FilesChanged   FileChangeList `gorm:"column:files_changed;type:json" json:"files_changed"`
	TotalAdditions int            `gorm:"column:total_additions;default:0" json:"total_additions"`
	TotalDeletions int            `gorm:"column:total_deletions;default:0" json:"total_deletions"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Commit) TableName() string {
	return "commits"
}
