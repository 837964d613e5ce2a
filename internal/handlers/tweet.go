package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/commeet/backend/internal/ai"
	"github.com/commeet/backend/internal/config"
	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/entitlement"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/commeet/backend/internal/twitter"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
)

// Drafter generates tweet text from commit activity
type Drafter interface {
	DraftTweet(ctx context.Context, req ai.DraftRequest) (string, error)
}

// Poster publishes tweets to the connected account
type Poster interface {
	PostTweet(ctx context.Context, accessToken, text string) (string, error)
}

type TweetHandler struct {
	cfg          *config.Config
	entitlements *entitlement.Service
	drafter      Drafter
	poster       Poster
	twitterOAuth *oauth2.Config
}

func NewTweetHandler(cfg *config.Config, ent *entitlement.Service) *TweetHandler {
	return &TweetHandler{
		cfg:          cfg,
		entitlements: ent,
		drafter:      ai.NewGenerator(cfg.AnthropicAPIKey, cfg.AnthropicModel),
		poster:       twitter.NewClient(),
		twitterOAuth: &oauth2.Config{
			ClientID:     cfg.TwitterClientID,
			ClientSecret: cfg.TwitterClientSecret,
			Scopes:       twitter.Scopes,
			Endpoint:     twitter.Endpoint,
		},
	}
}

// GenerateRequest represents a tweet generation request
type GenerateRequest struct {
	CommitIDs       []uint `json:"commit_ids"`
	ToneInstruction string `json:"tone_instruction"`
}

// Generate drafts a tweet from selected commits. The generation quota
// is checked before calling the model and recorded after a successful
// draft.
func (h *TweetHandler) Generate(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req GenerateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}
	if len(req.CommitIDs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "At least one commit is required"})
	}

	check, err := h.entitlements.CheckCapacity(user.ID, entitlement.KindMonthlyGeneration)
	if err != nil {
		if errors.Is(err, entitlement.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "User not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Capacity check failed"})
	}
	if !check.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"message": check.Reason,
			"data":    check,
		})
	}

	var commits []models.Commit
	err = database.DB.Where("user_id = ? AND id IN ?", user.ID, req.CommitIDs).Find(&commits).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load commits"})
	}
	if len(commits) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "No valid commits found"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 90*time.Second)
	defer cancel()

	content, err := h.drafter.DraftTweet(ctx, ai.DraftRequest{
		Commits:            commits,
		Tone:               user.VoiceTone,
		ToneInstruction:    req.ToneInstruction,
		ProductDescription: user.ProductDescription,
		TargetAudience:     user.TargetAudience,
	})
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Tweet generation failed",
		})
	}

	commitIDs := make(models.CommitIDList, 0, len(commits))
	for _, commit := range commits {
		commitIDs = append(commitIDs, commit.ID)
	}

	tweet := models.Tweet{
		UserID:    user.ID,
		CommitIDs: commitIDs,
		Content:   content,
		Tone:      user.VoiceTone,
	}
	if err := database.DB.Create(&tweet).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to store tweet"})
	}

	// A successful generation consumes one unit of the monthly quota
	if err := h.entitlements.RecordUsage(user.ID, entitlement.KindMonthlyGeneration, 1); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to record usage"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"tweet":           tweet,
			"character_count": len([]rune(content)),
		},
	})
}

// List returns the user's generated tweets, newest first
func (h *TweetHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	query := database.DB.Where("user_id = ?", user.ID).Order("created_at DESC")
	switch c.Query("posted") {
	case "true":
		query = query.Where("is_posted = ?", true)
	case "false":
		query = query.Where("is_posted = ?", false)
	}

	var tweets []models.Tweet
	if err := query.Find(&tweets).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to load tweets"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    tweets,
	})
}

// Post publishes a drafted tweet to the connected Twitter account. An
// expired access token is refreshed once and the post retried.
func (h *TweetHandler) Post(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	if !user.HasTwitter() {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Twitter is not connected",
		})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid tweet id"})
	}

	var tweet models.Tweet
	if err := database.DB.Where("id = ? AND user_id = ?", id, user.ID).First(&tweet).Error; err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Tweet not found"})
	}
	if tweet.IsPosted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"success": false, "message": "Tweet has already been posted"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	twitterID, err := h.poster.PostTweet(ctx, user.TwitterAccessToken, tweet.Content)
	if errors.Is(err, twitter.ErrTokenExpired) && user.TwitterRefreshToken != "" {
		token, refreshErr := twitter.Refresh(ctx, h.twitterOAuth, user.TwitterRefreshToken)
		if refreshErr != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Twitter authentication expired. Please reconnect.",
			})
		}
		database.DB.Model(user).Updates(map[string]interface{}{
			"twitter_access_token":  token.AccessToken,
			"twitter_refresh_token": token.RefreshToken,
		})
		twitterID, err = h.poster.PostTweet(ctx, token.AccessToken, tweet.Content)
	}
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Failed to post tweet",
		})
	}

	now := time.Now()
	err = database.DB.Model(&tweet).Updates(map[string]interface{}{
		"is_posted":        true,
		"posted_at":        now,
		"twitter_tweet_id": twitterID,
	}).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update tweet"})
	}

	tweet.IsPosted = true
	tweet.PostedAt = &now
	tweet.TwitterTweetID = twitterID

	return c.JSON(fiber.Map{
		"success": true,
		"data":    tweet,
	})
}

// Delete removes a drafted tweet
func (h *TweetHandler) Delete(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid tweet id"})
	}

	res := database.DB.Where("id = ? AND user_id = ?", id, user.ID).Delete(&models.Tweet{})
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to delete tweet"})
	}
	if res.RowsAffected == 0 {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"success": false, "message": "Tweet not found"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Tweet deleted",
	})
}
