// Package entitlement decides whether plan-gated actions are allowed
// and records consumption of metered ones. Quota exhaustion is a normal
// result, not an error; errors are reserved for missing users and bad
// input.
package entitlement

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/commeet/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResourceKind identifies a plan-gated resource
type ResourceKind string

const (
	KindConnectedRepository ResourceKind = "connected_repository"
	KindMonthlyGeneration   ResourceKind = "monthly_generation"
)

// Unlimited is the limit sentinel for plans without a cap
const Unlimited = -1

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUnknownResourceKind = errors.New("unknown resource kind")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrNotMetered          = errors.New("resource kind is not metered")
)

// Limits holds the numeric caps for one plan
type Limits struct {
	Repositories int `json:"repositories"`
	Generations  int `json:"generations"`
}

// PlanLimits maps each plan to its caps. It is loaded once at process
// start and injected into the Service; it is never mutated afterwards.
type PlanLimits map[models.Plan]Limits

// DefaultPlanLimits returns the shipped plan table
func DefaultPlanLimits() PlanLimits {
	return PlanLimits{
		models.PlanFree:    {Repositories: 1, Generations: 10},
		models.PlanPro:     {Repositories: 5, Generations: 100},
		models.PlanBuilder: {Repositories: Unlimited, Generations: Unlimited},
	}
}

// CheckResult is the outcome of a capacity check
type CheckResult struct {
	Allowed bool
	Current int
	Limit   int
	Plan    models.Plan
	Reason  string
}

// MarshalJSON renders the Unlimited sentinel as "unlimited"
func (r CheckResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Allowed bool        `json:"allowed"`
		Current int         `json:"current"`
		Limit   interface{} `json:"limit"`
		Plan    models.Plan `json:"plan"`
		Reason  string      `json:"reason,omitempty"`
	}{
		Allowed: r.Allowed,
		Current: r.Current,
		Limit:   r.Limit,
		Plan:    r.Plan,
		Reason:  r.Reason,
	}
	if r.Limit == Unlimited {
		out.Limit = "unlimited"
	}
	return json.Marshal(out)
}

// Service evaluates capacity checks and records usage
type Service struct {
	db      *gorm.DB
	limits  PlanLimits
	loc     *time.Location
	nowFunc func() time.Time
}

// NewService creates an entitlement service. The plan table and the
// billing clock location are fixed for the lifetime of the service.
func NewService(db *gorm.DB, limits PlanLimits, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		db:      db,
		limits:  limits,
		loc:     loc,
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the clock, for tests
func (s *Service) SetNowFunc(now func() time.Time) {
	s.nowFunc = now
}

// Limits returns the caps for a plan. Unknown plans fall back to free.
func (s *Service) Limits(plan models.Plan) Limits {
	if l, ok := s.limits[plan]; ok {
		return l
	}
	return s.limits[models.PlanFree]
}

// CurrentMonth returns the "YYYY-MM" label of the current calendar
// month in the service's configured location.
func (s *Service) CurrentMonth() string {
	return s.nowFunc().In(s.loc).Format("2006-01")
}

// CheckCapacity decides whether the user may consume one more unit of
// the given resource kind. A "not allowed" outcome is a normal result;
// an error is returned only when the user record is missing or the
// kind is unknown.
func (s *Service) CheckCapacity(userID uint, kind ResourceKind) (CheckResult, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return CheckResult{}, ErrUserNotFound
		}
		return CheckResult{}, err
	}

	plan := user.Plan
	if !plan.Valid() {
		plan = models.PlanFree
	}
	limits := s.Limits(plan)

	switch kind {
	case KindConnectedRepository:
		return s.checkRepositories(&user, plan, limits)
	case KindMonthlyGeneration:
		return s.checkGenerations(&user, plan, limits)
	}
	return CheckResult{}, fmt.Errorf("%w: %s", ErrUnknownResourceKind, kind)
}

func (s *Service) checkRepositories(user *models.User, plan models.Plan, limits Limits) (CheckResult, error) {
	if limits.Repositories == Unlimited {
		return CheckResult{Allowed: true, Limit: Unlimited, Plan: plan}, nil
	}

	var current int64
	err := s.db.Model(&models.Repository{}).
		Where("user_id = ? AND is_active = ?", user.ID, true).
		Count(&current).Error
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Allowed: int(current) < limits.Repositories,
		Current: int(current),
		Limit:   limits.Repositories,
		Plan:    plan,
	}
	if !result.Allowed {
		plural := "repositories"
		if limits.Repositories == 1 {
			plural = "repository"
		}
		result.Reason = fmt.Sprintf("Your %s plan allows %d %s. Upgrade to connect more.", plan, limits.Repositories, plural)
	}
	return result, nil
}

func (s *Service) checkGenerations(user *models.User, plan models.Plan, limits Limits) (CheckResult, error) {
	if limits.Generations == Unlimited {
		return CheckResult{Allowed: true, Limit: Unlimited, Plan: plan}, nil
	}

	current, err := s.monthGenerations(user.ID, s.CurrentMonth())
	if err != nil {
		return CheckResult{}, err
	}

	result := CheckResult{
		Allowed: current < limits.Generations,
		Current: current,
		Limit:   limits.Generations,
		Plan:    plan,
	}
	if !result.Allowed {
		result.Reason = fmt.Sprintf("You've used all %d generations this month. Upgrade for more.", limits.Generations)
	}
	return result, nil
}

func (s *Service) monthGenerations(userID uint, month string) (int, error) {
	var stat models.UsageStat
	err := s.db.Where("user_id = ? AND month = ?", userID, month).First(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return stat.TweetGenerations, nil
}

// RecordUsage adds amount to the user's counter for the current month,
// creating the row if absent. The increment runs as a single upsert so
// concurrent calls for the same (user, month) never lose an increment.
func (s *Service) RecordUsage(userID uint, kind ResourceKind, amount int) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	switch kind {
	case KindMonthlyGeneration:
	case KindConnectedRepository:
		// Repository usage is derived from active repository rows,
		// there is no counter to bump.
		return ErrNotMetered
	default:
		return fmt.Errorf("%w: %s", ErrUnknownResourceKind, kind)
	}

	now := s.nowFunc().In(s.loc)
	stat := models.UsageStat{
		UserID:           userID,
		Month:            now.Format("2006-01"),
		TweetGenerations: amount,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "month"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"tweet_generations": gorm.Expr("tweet_generations + ?", amount),
			"updated_at":        now,
		}),
	}).Create(&stat).Error
}

// CurrentUsage returns the current month label and the generation
// count recorded so far within it.
func (s *Service) CurrentUsage(userID uint) (string, int, error) {
	month := s.CurrentMonth()
	count, err := s.monthGenerations(userID, month)
	return month, count, err
}
