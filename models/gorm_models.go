// models/gorm_models.go
package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	DefaultRating = 1000
	DefaultCoins  = 1000
)

// Player 玩家模型
type Player struct {
	gorm.Model
	ParticipantID string `gorm:"uniqueIndex;not null"`
	Rating        int    `gorm:"default:1000"`
	Coins         int64  `gorm:"default:1000"`
	Wins          int    `gorm:"default:0"`
	Losses        int    `gorm:"default:0"`
	Draws         int    `gorm:"default:0"`
	Tournaments   int    `gorm:"default:0"`
	Championships int    `gorm:"default:0"`
}

// DuelRecord 决斗记录
type DuelRecord struct {
	gorm.Model
	DuelID     string `gorm:"uniqueIndex;not null"`
	Challenger string `gorm:"index;not null"`
	Target     string `gorm:"index;not null"`
	Winner     string `gorm:"index"`
	Loser      string
	Category   string       `gorm:"not null"`
	Reason     string       `gorm:"not null"`
	Settings   DuelSettings `gorm:"type:jsonb;serializer:json"`
	StartedAt  time.Time
	EndedAt    time.Time
	Duration   int `gorm:"default:0"` // 决斗时长(秒)
}

// TournamentRecord 锦标赛归档
type TournamentRecord struct {
	gorm.Model
	TournamentID string          `gorm:"uniqueIndex;not null"`
	Type         string          `gorm:"index;not null"`
	State        string          `gorm:"not null"`
	Rounds       int             `gorm:"default:0"`
	PrizePool    int64           `gorm:"default:0"`
	Winner       string          `gorm:"index"`
	Participants []string        `gorm:"type:jsonb;serializer:json"`
	Matches      []MatchInfo     `gorm:"type:jsonb;serializer:json"`
	Placements   []PlacementInfo `gorm:"type:jsonb;serializer:json"`
	Failure      string
	ArchivedAt   time.Time
}
