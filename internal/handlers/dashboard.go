package handlers

import (
	"strconv"

	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type DashboardHandler struct{}

func NewDashboardHandler() *DashboardHandler {
	return &DashboardHandler{}
}

// DashboardStats holds the counters shown on the dashboard
type DashboardStats struct {
	TotalRepositories int64 `json:"total_repositories"`
	TotalCommits      int64 `json:"total_commits"`
	TweetsGenerated   int64 `json:"tweets_generated"`
	TweetsPosted      int64 `json:"tweets_posted"`
}

// Stats returns dashboard statistics for the current user. Results are
// cached briefly since the dashboard polls.
func (h *DashboardHandler) Stats(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	cacheKey := database.CacheKeyDashboard + strconv.FormatUint(uint64(user.ID), 10)

	var stats DashboardStats
	if err := database.CacheGet(cacheKey, &stats); err == nil {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    stats,
		})
	}

	database.DB.Model(&models.Repository{}).Where("user_id = ? AND is_active = ?", user.ID, true).Count(&stats.TotalRepositories)
	database.DB.Model(&models.Commit{}).Where("user_id = ?", user.ID).Count(&stats.TotalCommits)
	database.DB.Model(&models.Tweet{}).Where("user_id = ?", user.ID).Count(&stats.TweetsGenerated)
	database.DB.Model(&models.Tweet{}).Where("user_id = ? AND is_posted = ?", user.ID, true).Count(&stats.TweetsPosted)

	database.CacheSet(cacheKey, stats, database.CacheTTLDashboard)

	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}
