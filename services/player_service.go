// services/player_service.go
package services

import (
	"math"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/models"
	"github.com/wfunc/duelarena/persistence"
)

const DefaultKFactor = 32

// PlayerService settles coins and ratings for duels and tournaments. Its
// collaborator methods log failures; callers never wait on them.
type PlayerService struct {
	db      persistence.Database
	kFactor int
}

func NewPlayerService(db persistence.Database) *PlayerService {
	return &PlayerService{db: db, kFactor: DefaultKFactor}
}

// GetPlayerWithStats 获取玩家统计，不存在时先创建
func (s *PlayerService) GetPlayerWithStats(participantID arena.ParticipantID) (*models.PlayerStats, error) {
	if err := s.db.EnsurePlayer(string(participantID)); err != nil {
		return nil, err
	}
	return s.db.GetPlayerStats(string(participantID))
}

// TransferBet 从输家转给赢家
func (s *PlayerService) TransferBet(winner, loser arena.ParticipantID, amount int64) {
	if err := s.db.TransferCoins(string(loser), string(winner), amount); err != nil {
		logger.Log.Errorw("Bet transfer failed", "winner", winner, "loser", loser, "amount", amount, "error", err)
		return
	}
	logger.Log.Infof("Bet of %d transferred from %s to %s", amount, loser, winner)
}

// GrantReward 发放锦标赛奖金
func (s *PlayerService) GrantReward(p arena.ParticipantID, amount int64) {
	if err := s.db.AdjustCoins(string(p), amount); err != nil {
		logger.Log.Errorw("Reward grant failed", "participant", p, "amount", amount, "error", err)
		return
	}
	logger.Log.Infof("Granted %d coins to %s", amount, p)
}

// UpdateRating 按 ELO 更新排位分
func (s *PlayerService) UpdateRating(winner, loser arena.ParticipantID) {
	err := s.db.UpdateRatings(string(winner), string(loser), func(wr, lr int) (int, int) {
		return Elo(wr, lr, s.kFactor)
	})
	if err != nil {
		logger.Log.Errorw("Rating update failed", "winner", winner, "loser", loser, "error", err)
	}
}

// Elo returns the new ratings after the first player beat the second.
// The exchange is zero-sum.
func Elo(winnerRating, loserRating, k int) (int, int) {
	expected := 1 / (1 + math.Pow(10, float64(loserRating-winnerRating)/400))
	delta := int(math.Round(float64(k) * (1 - expected)))
	return winnerRating + delta, loserRating - delta
}
