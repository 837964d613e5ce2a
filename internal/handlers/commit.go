package handlers

import (
	"strconv"
	"time"

	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type CommitHandler struct{}

func NewCommitHandler() *CommitHandler {
	return &CommitHandler{}
}

// List returns the current user's commits, newest first
func (h *CommitHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := database.DB.Where("user_id = ?", user.ID).Order("committed_at DESC").Limit(limit)

	if repoID, err := strconv.Atoi(c.Query("repository", "0")); err == nil && repoID > 0 {
		query = query.Where("repository_id = ?", repoID)
	}

	var commits []models.Commit
	if err := query.Find(&commits).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load commits",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    commits,
	})
}

// Today returns the user's commits from the current day
func (h *CommitHandler) Today(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	now := time.Now()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var commits []models.Commit
	err := database.DB.
		Where("user_id = ? AND committed_at >= ?", user.ID, startOfDay).
		Order("committed_at DESC").
		Find(&commits).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load commits",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    commits,
	})
}

// Range returns the user's commits within [start, end], passed as Unix
// timestamps.
func (h *CommitHandler) Range(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	start, err1 := strconv.ParseInt(c.Query("start"), 10, 64)
	end, err2 := strconv.ParseInt(c.Query("end"), 10, 64)
	if err1 != nil || err2 != nil || end < start {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "start and end must be valid Unix timestamps",
		})
	}

	var commits []models.Commit
	err := database.DB.
		Where("user_id = ? AND committed_at BETWEEN ? AND ?", user.ID, time.Unix(start, 0), time.Unix(end, 0)).
		Order("committed_at DESC").
		Find(&commits).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to load commits",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    commits,
	})
}
