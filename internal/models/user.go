package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Plan represents the subscription plan of a user
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanBuilder Plan = "builder"
)

// Valid reports whether the plan is one of the known plans
func (p Plan) Valid() bool {
	switch p {
	case PlanFree, PlanPro, PlanBuilder:
		return true
	}
	return false
}

// VoiceTone represents the tone used when drafting tweets
type VoiceTone string

const (
	VoiceToneCasual       VoiceTone = "casual"
	VoiceToneProfessional VoiceTone = "professional"
	VoiceToneExcited      VoiceTone = "excited"
	VoiceToneTechnical    VoiceTone = "technical"
)

// Valid reports whether the tone is one of the known tones
func (t VoiceTone) Valid() bool {
	switch t {
	case VoiceToneCasual, VoiceToneProfessional, VoiceToneExcited, VoiceToneTechnical:
		return true
	}
	return false
}

// User represents a registered Commeet user
type User struct {
	ID       uint   `gorm:"column:id;primaryKey" json:"id"`
	Email    string `gorm:"column:email;uniqueIndex;size:255;not null" json:"email"`
	Name     string `gorm:"column:name;size:255" json:"name"`
	Image    string `gorm:"column:image;size:500" json:"image"`
	Password string `gorm:"column:password;size:255;not null" json:"-"`

	// GitHub connection
	GithubID          string `gorm:"column:github_id;size:100;index" json:"github_id,omitempty"`
	GithubUsername    string `gorm:"column:github_username;size:100" json:"github_username,omitempty"`
	GithubAccessToken string `gorm:"column:github_access_token;size:255" json:"-"`

	// Twitter connection
	TwitterUsername     string `gorm:"column:twitter_username;size:100" json:"twitter_username,omitempty"`
	TwitterAccessToken  string `gorm:"column:twitter_access_token;size:500" json:"-"`
	TwitterRefreshToken string `gorm:"column:twitter_refresh_token;size:500" json:"-"`

	// Voice settings used for tweet drafting
	VoiceTone          VoiceTone       `gorm:"column:voice_tone;size:20;default:casual" json:"voice_tone"`
	ProductDescription string          `gorm:"column:product_description;size:1000" json:"product_description"`
	TargetAudience     string          `gorm:"column:target_audience;size:500" json:"target_audience"`
	ExampleTweets      json.RawMessage `gorm:"column:example_tweets;type:json" json:"example_tweets,omitempty"`

	// Stripe & billing
	StripeCustomerID     string     `gorm:"column:stripe_customer_id;size:100;index" json:"-"`
	StripeSubscriptionID string     `gorm:"column:stripe_subscription_id;size:100" json:"-"`
	Plan                 Plan       `gorm:"column:plan;size:20;not null;default:free" json:"plan"`
	PlanExpiresAt        *time.Time `gorm:"column:plan_expires_at" json:"plan_expires_at,omitempty"`

	// 2FA
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret;size:255" json:"-"`

	IsActive  bool           `gorm:"column:is_active;default:true" json:"is_active"`
	LastLogin *time.Time     `gorm:"column:last_login" json:"last_login"`
	CreatedAt time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (User) TableName() string {
	return "users"
}

// HasGithub reports whether the user has a GitHub account connected
func (u *User) HasGithub() bool {
	return u.GithubID != "" && u.GithubAccessToken != ""
}

// HasTwitter reports whether the user has a Twitter account connected
func (u *User) HasTwitter() bool {
	return u.TwitterAccessToken != ""
}
