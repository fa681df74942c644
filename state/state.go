package state

import (
	"errors"
	"sync"
)

// ErrTransitionNotAllowed is returned when a state transition is not allowed.
var ErrTransitionNotAllowed = errors.New("state transition not allowed")

// State identifies a lifecycle phase.
type State string

// Hook runs after the machine has moved between two states.
type Hook func(from, to State)

// StateMachine is a guarded lifecycle: only transitions registered with
// AddTransition may be taken, and only while their condition holds.
type StateMachine interface {
	ChangeState(to State) error
	GetCurrentState() State
	AddTransition(from State, to State, condition func() bool)
	OnEnter(s State, hook Hook)
}

type BaseStateMachine struct {
	currentState State
	transitions  map[State]map[State]func() bool // fromState -> toState -> condition
	enterHooks   map[State][]Hook
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initialState State) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initialState,
		transitions:  make(map[State]map[State]func() bool),
		enterHooks:   make(map[State][]Hook),
	}
}

func (sm *BaseStateMachine) ChangeState(newState State) error {
	sm.mutex.Lock()
	from := sm.currentState

	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}
	condition, exists := conditions[newState]
	if !exists || (condition != nil && !condition()) {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.currentState = newState
	hooks := append([]Hook(nil), sm.enterHooks[newState]...)
	sm.mutex.Unlock()

	for _, hook := range hooks {
		hook(from, newState)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() State {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// AddTransition allows from -> to. A nil condition always allows it.
func (sm *BaseStateMachine) AddTransition(from State, to State, condition func() bool) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[State]func() bool)
	}
	sm.transitions[from][to] = condition
}

// OnEnter registers a hook run every time the machine enters s.
func (sm *BaseStateMachine) OnEnter(s State, hook Hook) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.enterHooks[s] = append(sm.enterHooks[s], hook)
}

// Can reports whether a transition to newState is currently permitted.
func (sm *BaseStateMachine) Can(newState State) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	condition, exists := sm.transitions[sm.currentState][newState]
	return exists && (condition == nil || condition())
}
