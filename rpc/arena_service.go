package rpc

import (
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/bracket"
	"github.com/wfunc/duelarena/models"
)

// ServiceName is the name ArenaService is registered under.
const ServiceName = "Arena"

// DuelEnder is the part of the duel tracker the match executor drives.
type DuelEnder interface {
	EndDuel(duelID string, winner arena.ParticipantID) error
}

// Tournaments is the part of the orchestrator exposed over rpc.
type Tournaments interface {
	CreateTournament(typ string, maxParticipants int) (*bracket.Engine, error)
	StartTournament(id string) error
	Register(id string, p arena.ParticipantID) error
	CompleteMatch(id, matchID string, winningSide int) error
	Get(id string) (*bracket.Engine, bool)
}

// PlayerStats reads persisted player statistics.
type PlayerStats interface {
	GetPlayerWithStats(participantID arena.ParticipantID) (*models.PlayerStats, error)
}

// ArenaService exposes duel and tournament control to the external match
// executor. Method signatures follow net/rpc: exported args, pointer reply,
// error result.
type ArenaService struct {
	duels       DuelEnder
	tournaments Tournaments
	players     PlayerStats
}

func NewArenaService(duels DuelEnder, tournaments Tournaments, players PlayerStats) *ArenaService {
	return &ArenaService{duels: duels, tournaments: tournaments, players: players}
}

type EndDuelArgs struct {
	DuelID string
	// Winner is empty for a draw.
	Winner arena.ParticipantID
}

type EndDuelReply struct{}

func (s *ArenaService) EndDuel(args *EndDuelArgs, reply *EndDuelReply) error {
	return s.duels.EndDuel(args.DuelID, args.Winner)
}

type CreateTournamentArgs struct {
	Type            string
	MaxParticipants int
}

type TournamentReply struct {
	Snapshot bracket.Snapshot
}

func (s *ArenaService) CreateTournament(args *CreateTournamentArgs, reply *TournamentReply) error {
	engine, err := s.tournaments.CreateTournament(args.Type, args.MaxParticipants)
	if err != nil {
		return err
	}
	reply.Snapshot = engine.Snapshot()
	return nil
}

type RegisterArgs struct {
	TournamentID string
	Participant  arena.ParticipantID
}

func (s *ArenaService) Register(args *RegisterArgs, reply *TournamentReply) error {
	if err := s.tournaments.Register(args.TournamentID, args.Participant); err != nil {
		return err
	}
	return s.snapshot(args.TournamentID, reply)
}

type TournamentArgs struct {
	TournamentID string
}

func (s *ArenaService) StartTournament(args *TournamentArgs, reply *TournamentReply) error {
	if err := s.tournaments.StartTournament(args.TournamentID); err != nil {
		return err
	}
	return s.snapshot(args.TournamentID, reply)
}

func (s *ArenaService) GetTournament(args *TournamentArgs, reply *TournamentReply) error {
	return s.snapshot(args.TournamentID, reply)
}

type CompleteMatchArgs struct {
	TournamentID string
	MatchID      string
	WinningSide  int
}

func (s *ArenaService) CompleteMatch(args *CompleteMatchArgs, reply *TournamentReply) error {
	if err := s.tournaments.CompleteMatch(args.TournamentID, args.MatchID, args.WinningSide); err != nil {
		return err
	}
	return s.snapshot(args.TournamentID, reply)
}

type PlacementsReply struct {
	Placements []bracket.Placement
	Rewards    []bracket.Reward
}

func (s *ArenaService) Placements(args *TournamentArgs, reply *PlacementsReply) error {
	engine, ok := s.tournaments.Get(args.TournamentID)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "Placements", args.TournamentID)
	}
	placements, err := engine.Placements()
	if err != nil {
		return err
	}
	reply.Placements = placements
	reply.Rewards = engine.Snapshot().Rewards
	return nil
}

type GetPlayerArgs struct {
	Participant arena.ParticipantID
}

type GetPlayerReply struct {
	Stats models.PlayerStats
}

func (s *ArenaService) GetPlayerWithStats(args *GetPlayerArgs, reply *GetPlayerReply) error {
	if s.players == nil {
		return arena.NewError(arena.ErrNotFound, "GetPlayerWithStats", string(args.Participant))
	}
	stats, err := s.players.GetPlayerWithStats(args.Participant)
	if err != nil {
		return err
	}
	reply.Stats = *stats
	return nil
}

func (s *ArenaService) snapshot(id string, reply *TournamentReply) error {
	engine, ok := s.tournaments.Get(id)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "GetTournament", id)
	}
	reply.Snapshot = engine.Snapshot()
	return nil
}
