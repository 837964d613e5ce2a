package handlers

import (
	"encoding/json"

	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

type SettingsHandler struct{}

func NewSettingsHandler() *SettingsHandler {
	return &SettingsHandler{}
}

// VoiceSettingsRequest represents voice settings update body
type VoiceSettingsRequest struct {
	VoiceTone          *models.VoiceTone `json:"voice_tone"`
	ProductDescription *string           `json:"product_description"`
	TargetAudience     *string           `json:"target_audience"`
	ExampleTweets      []string          `json:"example_tweets"`
}

// GetVoice returns the current user's voice settings
func (h *SettingsHandler) GetVoice(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var examples []string
	if len(user.ExampleTweets) > 0 {
		json.Unmarshal(user.ExampleTweets, &examples)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"voice_tone":          user.VoiceTone,
			"product_description": user.ProductDescription,
			"target_audience":     user.TargetAudience,
			"example_tweets":      examples,
		},
	})
}

// UpdateVoice updates the current user's voice settings. Only fields
// present in the body are changed.
func (h *SettingsHandler) UpdateVoice(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	var req VoiceSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid request body"})
	}

	updates := map[string]interface{}{}
	if req.VoiceTone != nil {
		if !req.VoiceTone.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid voice tone"})
		}
		updates["voice_tone"] = *req.VoiceTone
	}
	if req.ProductDescription != nil {
		updates["product_description"] = *req.ProductDescription
	}
	if req.TargetAudience != nil {
		updates["target_audience"] = *req.TargetAudience
	}
	if req.ExampleTweets != nil {
		data, err := json.Marshal(req.ExampleTweets)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "Invalid example tweets"})
		}
		updates["example_tweets"] = json.RawMessage(data)
	}

	if len(updates) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "message": "No settings provided"})
	}

	if err := database.DB.Model(user).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"success": false, "message": "Failed to update settings"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Settings updated",
	})
}
