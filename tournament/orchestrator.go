// tournament/orchestrator.go
package tournament

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/bracket"
	"github.com/wfunc/duelarena/broadcast"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/participant"
	"github.com/wfunc/duelarena/timer"
)

const (
	DefaultRetentionWindow = 60 * time.Second
	DefaultMaxParticipants = 8
)

// TypeConfig 是某一类锦标赛的静态配置
type TypeConfig struct {
	PrizePool         int64
	PrizeDistribution []float64
	MaxParticipants   int
}

type Config struct {
	Types     map[string]TypeConfig
	Index     *participant.Index
	Publisher broadcast.Publisher
	Rewards   bracket.RewardGranter
	Clock     clockwork.Clock
	// Scheduler runs deferred archival. When nil the orchestrator owns a
	// timer.TimerManager on Clock and stops it in Close.
	Scheduler       Scheduler
	Archiver        Archiver
	RetentionWindow time.Duration
	// NewRand seeds each bracket. Brackets seed from the clock when nil.
	NewRand  func() *rand.Rand
	Dispatch func(func())
}

// Orchestrator 管理所有锦标赛，每种类型同时最多一个进行中的对阵表
type Orchestrator struct {
	types     map[string]TypeConfig
	index     *participant.Index
	publisher broadcast.Publisher
	rewards   bracket.RewardGranter
	clock     clockwork.Clock
	scheduler Scheduler
	owned     *timer.TimerManager
	archiver  Archiver
	retention time.Duration
	newRand   func() *rand.Rand
	dispatch  func(func())

	active   map[string]*bracket.Engine // type -> bracket
	brackets map[string]*bracket.Engine // id -> bracket, active or retained
	mutex    sync.RWMutex
}

func NewOrchestrator(cfg Config) *Orchestrator {
	o := &Orchestrator{
		types:     make(map[string]TypeConfig, len(cfg.Types)),
		index:     cfg.Index,
		publisher: cfg.Publisher,
		rewards:   cfg.Rewards,
		clock:     cfg.Clock,
		scheduler: cfg.Scheduler,
		archiver:  cfg.Archiver,
		retention: cfg.RetentionWindow,
		newRand:   cfg.NewRand,
		dispatch:  cfg.Dispatch,
		active:    make(map[string]*bracket.Engine),
		brackets:  make(map[string]*bracket.Engine),
	}
	for name, tc := range cfg.Types {
		tc.PrizeDistribution = append([]float64(nil), tc.PrizeDistribution...)
		o.types[name] = tc
	}
	if o.index == nil {
		o.index = participant.NewIndex()
	}
	if o.publisher == nil {
		o.publisher = broadcast.Discard
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	if o.retention <= 0 {
		o.retention = DefaultRetentionWindow
	}
	if o.scheduler == nil {
		o.owned = timer.NewTimerManager(o.clock, 0)
		o.scheduler = o.owned
	}
	return o
}

// Types lists the configured tournament types.
func (o *Orchestrator) Types() []string {
	names := make([]string, 0, len(o.types))
	for name := range o.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CreateTournament opens a new bracket of the given type for registration.
// maxParticipants <= 0 uses the type default.
func (o *Orchestrator) CreateTournament(typ string, maxParticipants int) (*bracket.Engine, error) {
	const op = "CreateTournament"

	tc, ok := o.types[typ]
	if !ok {
		return nil, arena.NewError(arena.ErrInvalidArgument, op, typ)
	}
	if maxParticipants <= 0 {
		maxParticipants = tc.MaxParticipants
	}
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}

	o.mutex.Lock()
	defer o.mutex.Unlock()

	if existing, busy := o.active[typ]; busy {
		return nil, arena.NewError(arena.ErrDuplicateTournamentType, op, typ, existing.ID())
	}

	cfg := bracket.Config{
		Type:              typ,
		Kind:              bracket.SingleElimination,
		MaxParticipants:   maxParticipants,
		PrizePool:         tc.PrizePool,
		PrizeDistribution: tc.PrizeDistribution,
		Index:             o.index,
		Publisher:         o.publisher,
		Rewards:           o.rewards,
		Clock:             o.clock,
		Dispatch:          o.dispatch,
		OnFinish:          o.finish,
	}
	if o.newRand != nil {
		cfg.Rand = o.newRand()
	}
	engine, err := bracket.NewEngine(cfg)
	if err != nil {
		return nil, err
	}

	o.active[typ] = engine
	o.brackets[engine.ID()] = engine
	logger.Log.Infof("Tournament %s of type %s created (max %d, pool %d)", engine.ID(), typ, maxParticipants, tc.PrizePool)
	return engine, nil
}

// StartTournament seeds the bracket. The bracket announces the start
// before its first-round matches.
func (o *Orchestrator) StartTournament(id string) error {
	engine, ok := o.Get(id)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "StartTournament", id)
	}
	return engine.Start()
}

func (o *Orchestrator) Register(id string, p arena.ParticipantID) error {
	engine, ok := o.Get(id)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "Register", id)
	}
	return engine.Register(p)
}

func (o *Orchestrator) Withdraw(id string, p arena.ParticipantID) error {
	engine, ok := o.Get(id)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "Withdraw", id)
	}
	return engine.Withdraw(p)
}

func (o *Orchestrator) CompleteMatch(id, matchID string, winningSide int) error {
	engine, ok := o.Get(id)
	if !ok {
		return arena.NewError(arena.ErrNotFound, "CompleteMatch", id, matchID)
	}
	return engine.CompleteMatch(matchID, winningSide)
}

// Get returns an active or recently finished bracket.
func (o *Orchestrator) Get(id string) (*bracket.Engine, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	engine, exists := o.brackets[id]
	return engine, exists
}

// ActiveFor returns the running bracket of a type.
func (o *Orchestrator) ActiveFor(typ string) (*bracket.Engine, bool) {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	engine, exists := o.active[typ]
	return engine, exists
}

// Active returns the active brackets ordered by type.
func (o *Orchestrator) Active() []*bracket.Engine {
	o.mutex.RLock()
	defer o.mutex.RUnlock()

	out := make([]*bracket.Engine, 0, len(o.active))
	for _, engine := range o.active {
		out = append(out, engine)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

func (o *Orchestrator) ActiveCount() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.active)
}

// Retained is the number of brackets still held in memory, active or not.
func (o *Orchestrator) Retained() int {
	o.mutex.RLock()
	defer o.mutex.RUnlock()
	return len(o.brackets)
}

// finish runs once per bracket when it reaches Complete or Errored.
func (o *Orchestrator) finish(engine *bracket.Engine) {
	o.mutex.Lock()
	if o.active[engine.Type()] == engine {
		delete(o.active, engine.Type())
	}
	o.mutex.Unlock()

	switch engine.State() {
	case bracket.StateComplete:
		rewards, err := engine.DistributeRewards()
		if err != nil {
			logger.Log.Errorf("Tournament %s reward distribution failed: %v", engine.ID(), err)
		} else {
			logger.Log.Infof("Tournament %s distributed %d rewards", engine.ID(), len(rewards))
		}
	case bracket.StateErrored:
		logger.Log.Errorw("Tournament errored, retained for inspection",
			"tournament", engine.ID(), "type", engine.Type(), "failure", engine.Snapshot().Failure)
	}

	id := engine.ID()
	o.scheduler.AddTimer(o.retention, 0, func() { o.archive(id) })
	logger.Log.Debugf("Tournament %s scheduled for archival in %s", id, o.retention)
}

// archive persists a retained bracket and then drops it. A failed archive
// keeps the bracket and retries after another retention window.
func (o *Orchestrator) archive(id string) {
	engine, exists := o.Get(id)
	if !exists {
		return
	}
	if o.archiver != nil {
		if err := o.archiver.ArchiveTournament(engine.Snapshot()); err != nil {
			logger.Log.Errorf("Failed to archive tournament %s, retrying in %s: %v", id, o.retention, err)
			o.scheduler.AddTimer(o.retention, 0, func() { o.archive(id) })
			return
		}
	}

	o.mutex.Lock()
	delete(o.brackets, id)
	o.mutex.Unlock()
	logger.Log.Infof("Tournament %s archived", id)
}

// Close stops the owned scheduler. Pending archival is abandoned.
func (o *Orchestrator) Close() {
	if o.owned != nil {
		o.owned.Stop()
	}
}
