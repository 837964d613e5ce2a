package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/commeet/backend/internal/config"
	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/github"
	"github.com/commeet/backend/internal/middleware"
	"github.com/commeet/backend/internal/models"
	"github.com/commeet/backend/internal/twitter"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

type OAuthHandler struct {
	cfg           *config.Config
	githubOAuth   *oauth2.Config
	twitterOAuth  *oauth2.Config
	twitterClient *twitter.Client
}

func NewOAuthHandler(cfg *config.Config) *OAuthHandler {
	return &OAuthHandler{
		cfg: cfg,
		githubOAuth: &oauth2.Config{
			ClientID:     cfg.GithubClientID,
			ClientSecret: cfg.GithubClientSecret,
			RedirectURL:  cfg.GithubRedirectURL,
			Scopes:       []string{"repo", "read:user"},
			Endpoint:     githuboauth.Endpoint,
		},
		twitterOAuth: &oauth2.Config{
			ClientID:     cfg.TwitterClientID,
			ClientSecret: cfg.TwitterClientSecret,
			RedirectURL:  cfg.TwitterRedirectURL,
			Scopes:       twitter.Scopes,
			Endpoint:     twitter.Endpoint,
		},
		twitterClient: twitter.NewClient(),
	}
}

// ConnectGithub starts the GitHub authorization flow
func (h *OAuthHandler) ConnectGithub(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	nonce := uuid.NewString()
	if err := database.StoreOAuthState(nonce, database.OAuthState{
		UserID:   user.ID,
		Provider: "github",
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to start authorization",
		})
	}

	url := h.githubOAuth.AuthCodeURL(nonce)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"url": url},
	})
}

// GithubCallback finishes the GitHub authorization flow. The state
// nonce is single-use; replaying a callback fails.
func (h *OAuthHandler) GithubCallback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=github_auth_denied")
	}

	code := c.Query("code")
	nonce := c.Query("state")
	if code == "" || nonce == "" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=invalid_state")
	}

	state, err := database.ConsumeOAuthState(nonce)
	if err != nil || state.Provider != "github" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=invalid_state")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	token, err := h.githubOAuth.Exchange(ctx, code)
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=token_exchange_failed")
	}

	ghUser, err := github.NewClient(token.AccessToken).FetchUser(ctx)
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=github_user_fetch_failed")
	}

	err = database.DB.Model(&models.User{}).Where("id = ?", state.UserID).Updates(map[string]interface{}{
		"github_id":           strconv.FormatInt(ghUser.ID, 10),
		"github_username":     ghUser.Login,
		"github_access_token": token.AccessToken,
	}).Error
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=github_store_failed")
	}

	return c.Redirect(h.cfg.FrontendURL + "/settings?github=connected")
}

// DisconnectGithub removes the GitHub connection
func (h *OAuthHandler) DisconnectGithub(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	err := database.DB.Model(user).Updates(map[string]interface{}{
		"github_id":           "",
		"github_username":     "",
		"github_access_token": "",
	}).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disconnect GitHub",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "GitHub disconnected",
	})
}

// ConnectTwitter starts the Twitter authorization flow (PKCE). The
// verifier never leaves the server; it is held in Redis until the
// callback.
func (h *OAuthHandler) ConnectTwitter(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	nonce := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	if err := database.StoreOAuthState(nonce, database.OAuthState{
		UserID:   user.ID,
		Provider: "twitter",
		Verifier: verifier,
	}); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to start authorization",
		})
	}

	url := h.twitterOAuth.AuthCodeURL(nonce, oauth2.S256ChallengeOption(verifier))
	return c.JSON(fiber.Map{
		"success": true,
		"data":    fiber.Map{"url": url},
	})
}

// TwitterCallback finishes the Twitter authorization flow
func (h *OAuthHandler) TwitterCallback(c *fiber.Ctx) error {
	if errParam := c.Query("error"); errParam != "" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=twitter_auth_denied")
	}

	code := c.Query("code")
	nonce := c.Query("state")
	if code == "" || nonce == "" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=invalid_state")
	}

	state, err := database.ConsumeOAuthState(nonce)
	if err != nil || state.Provider != "twitter" || state.Verifier == "" {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=invalid_state")
	}

	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	token, err := h.twitterOAuth.Exchange(ctx, code, oauth2.VerifierOption(state.Verifier))
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=token_exchange_failed")
	}

	twUser, err := h.twitterClient.FetchUser(ctx, token.AccessToken)
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=twitter_user_fetch_failed")
	}

	err = database.DB.Model(&models.User{}).Where("id = ?", state.UserID).Updates(map[string]interface{}{
		"twitter_username":      twUser.Username,
		"twitter_access_token":  token.AccessToken,
		"twitter_refresh_token": token.RefreshToken,
	}).Error
	if err != nil {
		return c.Redirect(h.cfg.FrontendURL + "/settings?error=twitter_store_failed")
	}

	return c.Redirect(h.cfg.FrontendURL + "/settings?twitter=connected")
}

// DisconnectTwitter removes the Twitter connection
func (h *OAuthHandler) DisconnectTwitter(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "message": "Unauthorized"})
	}

	err := database.DB.Model(user).Updates(map[string]interface{}{
		"twitter_username":      "",
		"twitter_access_token":  "",
		"twitter_refresh_token": "",
	}).Error
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"success": false,
			"message": "Failed to disconnect Twitter",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Twitter disconnected",
	})
}
