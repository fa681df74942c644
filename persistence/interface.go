// persistence/interface.go
package persistence

import (
	"errors"

	"github.com/wfunc/duelarena/models"
	"gorm.io/gorm"
)

// Database 数据库接口
type Database interface {
	EnsurePlayer(participantID string) error
	GetPlayer(participantID string) (*models.Player, error)
	GetPlayerStats(participantID string) (*models.PlayerStats, error)
	AdjustCoins(participantID string, delta int64) error
	TransferCoins(from, to string, amount int64) error
	// UpdateRatings loads both ratings and stores what update returns, in
	// one transaction.
	UpdateRatings(winner, loser string, update func(winnerRating, loserRating int) (int, int)) error
	SaveDuelRecord(record *models.DuelRecord) error
	SaveTournamentRecord(record *models.TournamentRecord) error
	Transaction(fn func(tx *gorm.DB) error) error
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrInsufficientCoins = errors.New("insufficient coins")
)
