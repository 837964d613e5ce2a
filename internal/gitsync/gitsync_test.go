package gitsync

import (
	"fmt"
	"testing"
	"time"

	"github.com/commeet/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	user := models.User{
		Email:    email,
		Password: "hashed",
		Plan:     models.PlanFree,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func repoSnapshot(id int64) RepoSnapshot {
	return RepoSnapshot{
		GithubRepoID:  id,
		Name:          fmt.Sprintf("acme/repo-%d", id),
		Description:   "test repo",
		DefaultBranch: "main",
		URL:           fmt.Sprintf("https://github.com/acme/repo-%d", id),
		IsPublic:      true,
	}
}

func commitSnapshot(sha string) CommitSnapshot {
	return CommitSnapshot{
		SHA:         sha,
		Message:     "fix: resolve nil pointer in parser",
		AuthorName:  "Dev",
		AuthorEmail: "dev@example.com",
		CommittedAt: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		URL:         "https://github.com/acme/repo/commit/" + sha,
		Files: []models.FileChange{
			{Filename: "parser.go", Status: "modified", Additions: 12, Deletions: 4},
		},
		TotalAdditions: 12,
		TotalDeletions: 4,
	}
}

func TestSyncRepositories(t *testing.T) {
	db := setupDB(t)
	syncer := NewSynchronizer(db)
	user := createUser(t, db, "sync@example.com")

	t.Run("inserts new repositories inactive", func(t *testing.T) {
		result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{
			repoSnapshot(101), repoSnapshot(102),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 2)
		assert.Equal(t, 0, result.Skipped)
		assert.Empty(t, result.Malformed)

		var repos []models.Repository
		require.NoError(t, db.Where("user_id = ?", user.ID).Find(&repos).Error)
		require.Len(t, repos, 2)
		for _, r := range repos {
			assert.False(t, r.IsActive)
		}
	})

	t.Run("resync skips known repositories", func(t *testing.T) {
		result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{
			repoSnapshot(101), repoSnapshot(102), repoSnapshot(103),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 1)
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("resync never modifies existing rows", func(t *testing.T) {
		changed := repoSnapshot(101)
		changed.Name = "acme/renamed"
		changed.Description = "new description"

		result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{changed})
		require.NoError(t, err)
		assert.Empty(t, result.Inserted)
		assert.Equal(t, 1, result.Skipped)

		var repo models.Repository
		require.NoError(t, db.Where("github_repo_id = ?", 101).First(&repo).Error)
		assert.Equal(t, "acme/repo-101", repo.Name)
		assert.Equal(t, "test repo", repo.Description)
	})

	t.Run("duplicates within one batch insert once", func(t *testing.T) {
		result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{
			repoSnapshot(201), repoSnapshot(201), repoSnapshot(201),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 1)
		assert.Equal(t, 2, result.Skipped)
	})

	t.Run("malformed record fails only itself", func(t *testing.T) {
		missing := repoSnapshot(301)
		missing.DefaultBranch = ""

		result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{
			repoSnapshot(300), missing, repoSnapshot(302),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 2)
		require.Len(t, result.Malformed, 1)
		assert.Equal(t, 1, result.Malformed[0].Index)
		assert.Equal(t, "301", result.Malformed[0].Key)
		assert.Equal(t, "missing default branch", result.Malformed[0].Reason)

		var count int64
		require.NoError(t, db.Model(&models.Repository{}).Where("github_repo_id = ?", 301).Count(&count).Error)
		assert.EqualValues(t, 0, count)
	})
}

func TestSyncRepositoriesValidation(t *testing.T) {
	db := setupDB(t)
	syncer := NewSynchronizer(db)
	user := createUser(t, db, "validate@example.com")

	noID := repoSnapshot(0)
	noName := repoSnapshot(401)
	noName.Name = ""

	result, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{noID, noName})
	require.NoError(t, err)
	assert.Empty(t, result.Inserted)
	require.Len(t, result.Malformed, 2)
	assert.Equal(t, "missing github repo id", result.Malformed[0].Reason)
	assert.Equal(t, "missing name", result.Malformed[1].Reason)
}

func TestSyncCommits(t *testing.T) {
	db := setupDB(t)
	syncer := NewSynchronizer(db)
	user := createUser(t, db, "commits@example.com")

	repoResult, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{repoSnapshot(501)})
	require.NoError(t, err)
	require.Len(t, repoResult.Inserted, 1)
	repoID := repoResult.Inserted[0]

	t.Run("inserts new commits", func(t *testing.T) {
		result, err := syncer.SyncCommits(user.ID, repoID, []CommitSnapshot{
			commitSnapshot("aaa111"), commitSnapshot("bbb222"),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 2)
		assert.Equal(t, 0, result.Skipped)

		var commit models.Commit
		require.NoError(t, db.Where("sha = ?", "aaa111").First(&commit).Error)
		assert.Equal(t, repoID, commit.RepositoryID)
		assert.Equal(t, user.ID, commit.UserID)
		require.Len(t, commit.FilesChanged, 1)
		assert.Equal(t, "parser.go", commit.FilesChanged[0].Filename)
		assert.Equal(t, 12, commit.TotalAdditions)
	})

	t.Run("second sync of same batch inserts nothing", func(t *testing.T) {
		result, err := syncer.SyncCommits(user.ID, repoID, []CommitSnapshot{
			commitSnapshot("aaa111"), commitSnapshot("bbb222"),
		})
		require.NoError(t, err)
		assert.Empty(t, result.Inserted)
		assert.Equal(t, 2, result.Skipped)

		var count int64
		require.NoError(t, db.Model(&models.Commit{}).Count(&count).Error)
		assert.EqualValues(t, 2, count)
	})

	t.Run("sha is unique across repositories", func(t *testing.T) {
		otherRepo, err := syncer.SyncRepositories(user.ID, []RepoSnapshot{repoSnapshot(502)})
		require.NoError(t, err)
		require.Len(t, otherRepo.Inserted, 1)

		result, err := syncer.SyncCommits(user.ID, otherRepo.Inserted[0], []CommitSnapshot{
			commitSnapshot("aaa111"),
		})
		require.NoError(t, err)
		assert.Empty(t, result.Inserted)
		assert.Equal(t, 1, result.Skipped)

		// The original row is untouched
		var commit models.Commit
		require.NoError(t, db.Where("sha = ?", "aaa111").First(&commit).Error)
		assert.Equal(t, repoID, commit.RepositoryID)
	})

	t.Run("malformed commit fails only itself", func(t *testing.T) {
		noMessage := commitSnapshot("ccc333")
		noMessage.Message = ""
		noDate := commitSnapshot("ddd444")
		noDate.CommittedAt = time.Time{}

		result, err := syncer.SyncCommits(user.ID, repoID, []CommitSnapshot{
			noMessage, commitSnapshot("eee555"), noDate,
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 1)
		require.Len(t, result.Malformed, 2)
		assert.Equal(t, "missing message", result.Malformed[0].Reason)
		assert.Equal(t, "ccc333", result.Malformed[0].Key)
		assert.Equal(t, "missing committed at", result.Malformed[1].Reason)
	})

	t.Run("duplicate sha within one batch inserts once", func(t *testing.T) {
		result, err := syncer.SyncCommits(user.ID, repoID, []CommitSnapshot{
			commitSnapshot("fff666"), commitSnapshot("fff666"),
		})
		require.NoError(t, err)
		assert.Len(t, result.Inserted, 1)
		assert.Equal(t, 1, result.Skipped)
	})
}

func TestRecordErrorString(t *testing.T) {
	err := RecordError{Index: 3, Key: "abc", Reason: "missing sha"}
	assert.Equal(t, "record 3 (abc): missing sha", err.Error())
}
