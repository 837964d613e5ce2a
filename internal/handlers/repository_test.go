package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/commeet/backend/internal/database"
	"github.com/commeet/backend/internal/entitlement"
	"github.com/commeet/backend/internal/gitsync"
	"github.com/commeet/backend/internal/models"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() { database.DB = prev })

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, plan models.Plan) *models.User {
	t.Helper()

	user := models.User{
		Email:    fmt.Sprintf("%s-user@example.com", plan),
		Password: "hashed",
		Plan:     plan,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

// asUser injects the user the way the auth middleware would
func asUser(user *models.User) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals("user", user)
		c.Locals("userID", user.ID)
		return c.Next()
	}
}

func seedRepo(t *testing.T, db *gorm.DB, userID uint, githubID int64, active bool) *models.Repository {
	t.Helper()

	repo := models.Repository{
		UserID:        userID,
		Provider:      models.ProviderGithub,
		GithubRepoID:  githubID,
		Name:          fmt.Sprintf("acme/repo-%d", githubID),
		DefaultBranch: "main",
		IsActive:      active,
	}
	require.NoError(t, db.Create(&repo).Error)
	return &repo
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func newRepoApp(db *gorm.DB, user *models.User) *fiber.App {
	handler := NewRepositoryHandler(
		entitlement.NewService(db, entitlement.DefaultPlanLimits(), nil),
		gitsync.NewSynchronizer(db),
	)

	app := fiber.New()
	app.Use(asUser(user))
	app.Get("/repositories", handler.List)
	app.Post("/repositories/:id/connect", handler.Connect)
	app.Post("/repositories/:id/disconnect", handler.Disconnect)
	return app
}

func TestRepositoryConnect(t *testing.T) {
	t.Run("free plan connects first repository", func(t *testing.T) {
		db := setupTestDB(t)
		user := createTestUser(t, db, models.PlanFree)
		repo := seedRepo(t, db, user.ID, 101, false)
		app := newRepoApp(db, user)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/connect", repo.ID), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var got models.Repository
		require.NoError(t, db.First(&got, repo.ID).Error)
		assert.True(t, got.IsActive)
	})

	t.Run("free plan second repository is rejected with upgrade hint", func(t *testing.T) {
		db := setupTestDB(t)
		user := createTestUser(t, db, models.PlanFree)
		seedRepo(t, db, user.ID, 201, true)
		second := seedRepo(t, db, user.ID, 202, false)
		app := newRepoApp(db, user)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/connect", second.ID), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		body := decodeBody(t, resp)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "Your free plan allows 1 repository. Upgrade to connect more.", body["message"])

		var got models.Repository
		require.NoError(t, db.First(&got, second.ID).Error)
		assert.False(t, got.IsActive)
	})

	t.Run("connecting an already active repository is a no-op", func(t *testing.T) {
		db := setupTestDB(t)
		user := createTestUser(t, db, models.PlanFree)
		repo := seedRepo(t, db, user.ID, 301, true)
		app := newRepoApp(db, user)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/connect", repo.ID), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("cannot connect another user's repository", func(t *testing.T) {
		db := setupTestDB(t)
		user := createTestUser(t, db, models.PlanFree)
		other := createTestUser(t, db, models.PlanPro)
		repo := seedRepo(t, db, other.ID, 401, false)
		app := newRepoApp(db, user)

		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/connect", repo.ID), nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestRepositoryDisconnect(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.PlanFree)
	repo := seedRepo(t, db, user.ID, 501, true)
	app := newRepoApp(db, user)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/disconnect", repo.ID), nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Row and flag only; the repository is still listed
	var got models.Repository
	require.NoError(t, db.First(&got, repo.ID).Error)
	assert.False(t, got.IsActive)

	// Disconnecting frees the slot for another connect
	next := seedRepo(t, db, user.ID, 502, false)
	req = httptest.NewRequest(http.MethodPost, fmt.Sprintf("/repositories/%d/connect", next.ID), nil)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRepositoryList(t *testing.T) {
	db := setupTestDB(t)
	user := createTestUser(t, db, models.PlanPro)
	seedRepo(t, db, user.ID, 601, true)
	seedRepo(t, db, user.ID, 602, false)
	app := newRepoApp(db, user)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/repositories", nil))
	require.NoError(t, err)
	body := decodeBody(t, resp)
	assert.Len(t, body["data"], 2)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/repositories?connected=true", nil))
	require.NoError(t, err)
	body = decodeBody(t, resp)
	assert.Len(t, body["data"], 1)
}
