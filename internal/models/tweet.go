package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// CommitIDList is stored as a JSON column on tweets
type CommitIDList []uint

func (l CommitIDList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (l *CommitIDList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	}
	return errors.New("unsupported type for CommitIDList")
}

// Tweet represents an AI-drafted tweet, optionally posted to Twitter
type Tweet struct {
	ID     uint `gorm:"column:id;primaryKey" json:"id"`
	UserID uint `gorm:"column:user_id;not null;index;index:idx_tweets_user_posted,priority:1" json:"user_id"`

	CommitIDs CommitIDList `gorm:"column:commit_ids;type:json" json:"commit_ids"`

	Content string    `gorm:"column:content;size:280;not null" json:"content"`
	Tone    VoiceTone `gorm:"column:tone;size:20" json:"tone"`

	IsPosted       bool       `gorm:"column:is_posted;default:false;index:idx_tweets_user_posted,priority:2" json:"is_posted"`
	PostedAt       *time.Time `gorm:"column:posted_at" json:"posted_at,omitempty"`
	TwitterTweetID string     `gorm:"column:twitter_tweet_id;size:100" json:"twitter_tweet_id,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Tweet) TableName() string {
	return "tweets"
}
