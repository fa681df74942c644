package services

import (
	"fmt"
	"time"

	"github.com/wfunc/duelarena/bracket"
	"github.com/wfunc/duelarena/duel"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/models"
	"github.com/wfunc/duelarena/persistence"
)

// RecordService writes finished duels and archived tournaments.
type RecordService struct {
	db  persistence.Database
	now func() time.Time
}

func NewRecordService(db persistence.Database) *RecordService {
	return &RecordService{db: db, now: time.Now}
}

// RecordDuel 保存决斗结果
func (s *RecordService) RecordDuel(r duel.Result) {
	if err := s.db.SaveDuelRecord(DuelRecordFrom(r)); err != nil {
		logger.Log.Errorf("Failed to save duel %s: %v", r.DuelID, err)
	}
}

func (s *RecordService) ArchiveTournament(snapshot bracket.Snapshot) error {
	if err := s.db.SaveTournamentRecord(TournamentRecordFrom(snapshot, s.now())); err != nil {
		return fmt.Errorf("archive tournament %s: %w", snapshot.ID, err)
	}
	return nil
}

func DuelRecordFrom(r duel.Result) *models.DuelRecord {
	return &models.DuelRecord{
		DuelID:     r.DuelID,
		Challenger: string(r.Challenger),
		Target:     string(r.Target),
		Winner:     string(r.Winner),
		Loser:      string(r.Loser),
		Category:   r.Settings.Category.String(),
		Reason:     r.Reason,
		Settings: models.DuelSettings{
			TimeLimitSeconds: int(r.Settings.TimeLimit / time.Second),
			AllowPotions:     r.Settings.AllowPotions,
			AllowSkills:      r.Settings.AllowSkills,
			BetAmount:        r.Settings.BetAmount,
		},
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Duration:  int(r.EndedAt.Sub(r.StartedAt) / time.Second),
	}
}

func TournamentRecordFrom(s bracket.Snapshot, archivedAt time.Time) *models.TournamentRecord {
	rec := &models.TournamentRecord{
		TournamentID: s.ID,
		Type:         s.Type,
		State:        string(s.State),
		Rounds:       s.Round,
		PrizePool:    s.PrizePool,
		Failure:      s.Failure,
		ArchivedAt:   archivedAt,
	}
	for _, p := range s.Participants {
		rec.Participants = append(rec.Participants, string(p))
	}
	for _, m := range s.Matches {
		info := models.MatchInfo{MatchID: m.ID, Round: m.Round, WinnerSide: m.WinnerSide}
		for _, p := range m.Side1 {
			info.Side1 = append(info.Side1, string(p))
		}
		for _, p := range m.Side2 {
			info.Side2 = append(info.Side2, string(p))
		}
		rec.Matches = append(rec.Matches, info)
	}

	rewards := make(map[string]int64, len(s.Rewards))
	for _, r := range s.Rewards {
		rewards[string(r.Participant)] = r.Amount
	}
	for _, p := range s.Placements {
		if p.Rank == 1 {
			rec.Winner = string(p.Participant)
		}
		rec.Placements = append(rec.Placements, models.PlacementInfo{
			ParticipantID:   string(p.Participant),
			Rank:            p.Rank,
			EliminatedRound: p.EliminatedRound,
			Reward:          rewards[string(p.Participant)],
		})
	}
	return rec
}
