// models/models.go
package models

// PlayerStats 玩家统计信息
type PlayerStats struct {
	ParticipantID string `json:"participant_id"`
	Rating        int    `json:"rating"`
	Coins         int64  `json:"coins"`
	Duels         int    `json:"duels"`
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`
	Draws         int    `json:"draws"`
	Tournaments   int    `json:"tournaments"`
	Championships int    `json:"championships"`
}

// DuelSettings 决斗设置（写入记录时的快照）
type DuelSettings struct {
	TimeLimitSeconds int   `json:"time_limit_seconds"`
	AllowPotions     bool  `json:"allow_potions"`
	AllowSkills      bool  `json:"allow_skills"`
	BetAmount        int64 `json:"bet_amount"`
}

// PlacementInfo 锦标赛名次及奖励
type PlacementInfo struct {
	ParticipantID   string `json:"participant_id"`
	Rank            int    `json:"rank"`
	EliminatedRound int    `json:"eliminated_round"`
	Reward          int64  `json:"reward"`
}

// MatchInfo 锦标赛单场记录
type MatchInfo struct {
	MatchID    string   `json:"match_id"`
	Round      int      `json:"round"`
	Side1      []string `json:"side1"`
	Side2      []string `json:"side2"`
	WinnerSide int      `json:"winner_side"`
}
