package models

import "time"

// UsageStat tracks metered actions for one user within one calendar
// month. A row is created lazily on first increment; the composite
// unique index guarantees at most one row per (user, month).
type UsageStat struct {
	ID     uint   `gorm:"column:id;primaryKey" json:"id"`
	UserID uint   `gorm:"column:user_id;not null;uniqueIndex:idx_usage_stats_user_month,priority:1" json:"user_id"`
	Month  string `gorm:"column:month;size:7;not null;uniqueIndex:idx_usage_stats_user_month,priority:2" json:"month"`

	TweetGenerations int `gorm:"column:tweet_generations;not null;default:0" json:"tweet_generations"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (UsageStat) TableName() string {
	return "usage_stats"
}
