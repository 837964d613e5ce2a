package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/entitlement"
	"github.com/commeet/backend/internal/github"
	"github.com/commeet/backend/internal/gitsync"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type RepositoryHandler struct {
	entitlements *entitlement.Service
	syncer       *gitsync.Synchronizer

	// newGithubClient builds a GitHub client for a user token;
	// overridable in tests.
	newGithubClient func(token string) *github.Client
}

func NewRepositoryHandler(ent *entitlement.Service, syncer *gitsync.Synchronizer) *RepositoryHandler {
	return &RepositoryHandler{
		entitlements:    ent,
		syncer:          syncer,
		newGithubClient: github.NewClient,
	}
}

// List returns all repositories synced for the current user
func (h *RepositoryHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var repos []models.Repository
	query := database.DB.Where("user_id = ?", user.ID).Order("created_at DESC")
	if c.Query("connected") == "true" {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Find(&repos).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load repositories",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    repos,
	})
}

// Sync fetches the user's repositories from GitHub and merges them
// into local storage. Re-running against the same repositories adds
// nothing.
func (h *RepositoryHandler) Sync(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	if !user.HasGithub() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "GitHub is not connected",
		})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 60*time.Second)
	defer cancel()

	snapshots, err := h.newGithubClient(user.GithubAccessToken).ListRepositories(ctx)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch repositories from GitHub",
		})
	}

	result, err := h.syncer.SyncRepositories(user.ID, snapshots)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store repositories",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}

// Connect activates a synced repository, gated by the user's plan
func (h *RepositoryHandler) Connect(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid repository id"})
	}

	var repo models.Repository
	if err := database.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&repo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load repository"})
	}

	if repo.IsActive {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    repo,
		})
	}

	check, err := h.entitlements.CheckCapacity(user.ID, entitlement.KindConnectedRepository)
	if err != nil {
		if errors.Is(err, entitlement.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Capacity check failed"})
	}
	if !check.Allowed {
		// Quota exhaustion is informational, meant to drive an upgrade
		// prompt rather than an error page.
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": check.Reason,
			"data":    check,
		})
	}

	if err := database.DB.Model(&repo).Update("is_active", true).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to connect repository"})
	}
	repo.IsActive = true

	return c.JSON(fiber.Map{
		"success": true,
		"data":    repo,
	})
}

// Disconnect deactivates a repository. The row and its commits are
// kept; only the active flag changes.
func (h *RepositoryHandler) Disconnect(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid repository id"})
	}

	res := database.DB.Model(&models.Repository{}).
		Where("id = ? AND user_id = ?", id, user.ID).
		Update("is_active", false)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to disconnect repository"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Repository not found"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Repository disconnected",
	})
}

// SyncCommits fetches recent commits for one repository from GitHub
// and merges them into local storage, keyed by SHA.
func (h *RepositoryHandler) SyncCommits(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	if !user.HasGithub() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "GitHub is not connected",
		})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid repository id"})
	}

	var repo models.Repository
	if err := database.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&repo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Repository not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load repository"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 120*time.Second)
	defer cancel()

	snapshots, err := h.newGithubClient(user.GithubAccessToken).ListCommits(ctx, repo.Name, repo.LastSyncedAt)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to fetch commits from GitHub",
		})
	}

	result, err := h.syncer.SyncCommits(user.ID, repo.ID, snapshots)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to store commits",
		})
	}

	now := time.Now()
	database.DB.Model(&repo).Update("last_synced_at", now)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}
