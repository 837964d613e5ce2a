package entitlement

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
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

	// Serialize access so concurrent test writers never hit SQLITE_BUSY
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.AutoMigrate(db))
	return db
}

var userSeq atomic.Int64

func createUser(t *testing.T, db *gorm.DB, plan models.Plan) *models.User {
	t.Helper()

	user := models.User{
		Email:    fmt.Sprintf("%s-%d@example.com", plan, userSeq.Add(1)),
		Name:     "Test User",
		Password: "hashed",
		Plan:     plan,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func newTestService(db *gorm.DB) *Service {
	return NewService(db, DefaultPlanLimits(), time.UTC)
}

func connectRepo(t *testing.T, db *gorm.DB, userID uint, githubID int64) {
	t.Helper()

	repo := models.Repository{
		UserID:        userID,
		Provider:      models.ProviderGithub,
		GithubRepoID:  githubID,
		Name:          "acme/widget",
		DefaultBranch: "main",
		IsActive:      true,
	}
	require.NoError(t, db.Create(&repo).Error)
}

func TestCheckCapacityUserNotFound(t *testing.T) {
	svc := newTestService(setupDB(t))

	_, err := svc.CheckCapacity(999, KindConnectedRepository)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCheckCapacityUnknownKind(t *testing.T) {
	db := setupDB(t)
	svc := newTestService(db)
	user := createUser(t, db, models.PlanFree)

	_, err := svc.CheckCapacity(user.ID, ResourceKind("bogus"))
	assert.ErrorIs(t, err, ErrUnknownResourceKind)
}

func TestCheckCapacityRepositories(t *testing.T) {
	db := setupDB(t)
	svc := newTestService(db)

	t.Run("free plan allows first repository", func(t *testing.T) {
		user := createUser(t, db, models.PlanFree)

		check, err := svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 0, check.Current)
		assert.Equal(t, 1, check.Limit)
		assert.Empty(t, check.Reason)
	})

	t.Run("free plan denies second repository", func(t *testing.T) {
		user := createUser(t, db, models.PlanFree)
		connectRepo(t, db, user.ID, 1001)

		check, err := svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, 1, check.Current)
		assert.Equal(t, "Your free plan allows 1 repository. Upgrade to connect more.", check.Reason)
	})

	t.Run("pro plan allows up to five", func(t *testing.T) {
		user := createUser(t, db, models.PlanPro)
		for i := int64(0); i < 4; i++ {
			connectRepo(t, db, user.ID, 2000+i)
		}

		check, err := svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 4, check.Current)

		connectRepo(t, db, user.ID, 2099)
		check, err = svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, "Your pro plan allows 5 repositories. Upgrade to connect more.", check.Reason)
	})

	t.Run("builder plan is unlimited", func(t *testing.T) {
		user := createUser(t, db, models.PlanBuilder)
		for i := int64(0); i < 20; i++ {
			connectRepo(t, db, user.ID, 3000+i)
		}

		check, err := svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, Unlimited, check.Limit)
	})

	t.Run("inactive repositories do not count", func(t *testing.T) {
		user := createUser(t, db, models.PlanFree)
		repo := models.Repository{
			UserID:        user.ID,
			GithubRepoID:  4001,
			Name:          "acme/idle",
			DefaultBranch: "main",
			IsActive:      false,
		}
		require.NoError(t, db.Create(&repo).Error)

		check, err := svc.CheckCapacity(user.ID, KindConnectedRepository)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 0, check.Current)
	})
}

func TestCheckCapacityGenerations(t *testing.T) {
	db := setupDB(t)
	svc := newTestService(db)

	t.Run("free plan denies after ten", func(t *testing.T) {
		user := createUser(t, db, models.PlanFree)

		for i := 0; i < 9; i++ {
			require.NoError(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, 1))
		}
		check, err := svc.CheckCapacity(user.ID, KindMonthlyGeneration)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 9, check.Current)

		require.NoError(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, 1))
		check, err = svc.CheckCapacity(user.ID, KindMonthlyGeneration)
		require.NoError(t, err)
		assert.False(t, check.Allowed)
		assert.Equal(t, 10, check.Current)
		assert.Equal(t, "You've used all 10 generations this month. Upgrade for more.", check.Reason)
	})

	t.Run("builder plan is unlimited", func(t *testing.T) {
		user := createUser(t, db, models.PlanBuilder)
		require.NoError(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, 500))

		check, err := svc.CheckCapacity(user.ID, KindMonthlyGeneration)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, Unlimited, check.Limit)
	})

	t.Run("counter resets at month boundary", func(t *testing.T) {
		user := createUser(t, db, models.PlanFree)

		jan := time.Date(2026, 1, 31, 23, 0, 0, 0, time.UTC)
		svc.SetNowFunc(func() time.Time { return jan })
		defer svc.SetNowFunc(time.Now)

		for i := 0; i < 10; i++ {
			require.NoError(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, 1))
		}
		check, err := svc.CheckCapacity(user.ID, KindMonthlyGeneration)
		require.NoError(t, err)
		assert.False(t, check.Allowed)

		feb := time.Date(2026, 2, 1, 0, 30, 0, 0, time.UTC)
		svc.SetNowFunc(func() time.Time { return feb })

		check, err = svc.CheckCapacity(user.ID, KindMonthlyGeneration)
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 0, check.Current)
	})
}

func TestCurrentMonth(t *testing.T) {
	db := setupDB(t)

	// 2026-02-01 01:00 UTC is still 2026-01-31 in Los Angeles
	la, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)

	at := time.Date(2026, 2, 1, 1, 0, 0, 0, time.UTC)

	utcSvc := NewService(db, DefaultPlanLimits(), time.UTC)
	utcSvc.SetNowFunc(func() time.Time { return at })
	assert.Equal(t, "2026-02", utcSvc.CurrentMonth())

	laSvc := NewService(db, DefaultPlanLimits(), la)
	laSvc.SetNowFunc(func() time.Time { return at })
	assert.Equal(t, "2026-01", laSvc.CurrentMonth())
}

func TestRecordUsageValidation(t *testing.T) {
	db := setupDB(t)
	svc := newTestService(db)
	user := createUser(t, db, models.PlanFree)

	assert.ErrorIs(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, 0), ErrInvalidAmount)
	assert.ErrorIs(t, svc.RecordUsage(user.ID, KindMonthlyGeneration, -3), ErrInvalidAmount)
	assert.ErrorIs(t, svc.RecordUsage(user.ID, KindConnectedRepository, 1), ErrNotMetered)
	assert.ErrorIs(t, svc.RecordUsage(user.ID, ResourceKind("bogus"), 1), ErrUnknownResourceKind)
}

func TestRecordUsageConcurrent(t *testing.T) {
	db := setupDB(t)
	svc := newTestService(db)
	user := createUser(t, db, models.PlanBuilder)

	const workers = 8
	const perWorker = 5

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				errs <- svc.RecordUsage(user.ID, KindMonthlyGeneration, 1)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	_, count, err := svc.CurrentUsage(user.ID)
	require.NoError(t, err)
	assert.Equal(t, workers*perWorker, count)

	var rows int64
	require.NoError(t, db.Model(&models.UsageStat{}).Where("user_id = ?", user.ID).Count(&rows).Error)
	assert.EqualValues(t, 1, rows)
}

func TestLimitsUnknownPlanFallsBackToFree(t *testing.T) {
	svc := newTestService(setupDB(t))

	limits := svc.Limits(models.Plan("enterprise"))
	assert.Equal(t, DefaultPlanLimits()[models.PlanFree], limits)
}

func TestCheckResultJSON(t *testing.T) {
	data, err := json.Marshal(CheckResult{
		Allowed: true,
		Current: 3,
		Limit:   Unlimited,
		Plan:    models.PlanBuilder,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":true,"current":3,"limit":"unlimited","plan":"builder"}`, string(data))

	data, err = json.Marshal(CheckResult{
		Allowed: false,
		Current: 1,
		Limit:   1,
		Plan:    models.PlanFree,
		Reason:  "Your free plan allows 1 repository. Upgrade to connect more.",
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"allowed":false,"current":1,"limit":1,"plan":"free","reason":"Your free plan allows 1 repository. Upgrade to connect more."}`, string(data))
}
