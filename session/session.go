// session/session.go
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/logger"
	"github.com/wfunc/duelarena/network"
)

const positionKey = "position"

type Session struct {
	ID            string
	Conn          network.Connection
	ParticipantID arena.ParticipantID
	Data          map[string]interface{} // 自定义数据
	CreatedAt     time.Time
	LastActive    time.Time
	mutex         sync.RWMutex
}

func NewSession(id string, conn network.Connection) *Session {
	now := time.Now()
	return &Session{
		ID:         id,
		Conn:       conn,
		CreatedAt:  now,
		LastActive: now,
		Data:       make(map[string]interface{}),
	}
}

func (s *Session) Set(key string, value interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Data[key] = value
}

func (s *Session) Get(key string) interface{} {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.Data[key]
}

func (s *Session) Send(msgID uint16, data []byte) error {
	s.mutex.Lock()
	s.LastActive = time.Now()
	s.mutex.Unlock()
	return s.Conn.Send(msgID, data)
}

func (s *Session) GetID() string {
	return s.ID
}

// Participant returns the participant bound to this session, if any.
func (s *Session) Participant() arena.ParticipantID {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.ParticipantID
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Session管理器
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

// Bind attaches a participant identity to an existing session.
func (m *Manager) Bind(sessionID string, participantID arena.ParticipantID) bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	session, exists := m.sessions[sessionID]
	if !exists {
		return false
	}
	session.mutex.Lock()
	session.ParticipantID = participantID
	session.mutex.Unlock()
	return true
}

func (m *Manager) GetByParticipant(participantID arena.ParticipantID) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var result []*Session
	for _, session := range m.sessions {
		if session.Participant() == participantID {
			result = append(result, session)
		}
	}
	return result
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// IsValid reports whether the participant has at least one open session.
func (m *Manager) IsValid(participantID arena.ParticipantID) bool {
	if participantID == "" {
		return false
	}
	return len(m.GetByParticipant(participantID)) > 0
}

// Position returns the last position reported by the participant's session.
func (m *Manager) Position(participantID arena.ParticipantID) arena.Position {
	for _, s := range m.GetByParticipant(participantID) {
		if pos, ok := s.Get(positionKey).(arena.Position); ok {
			return pos
		}
	}
	return arena.Position{}
}

// SetPosition records the participant's current position.
func (m *Manager) SetPosition(participantID arena.ParticipantID, pos arena.Position) {
	for _, s := range m.GetByParticipant(participantID) {
		s.Set(positionKey, pos)
	}
}

// Restore moves the participant back to pos and tells its clients.
func (m *Manager) Restore(participantID arena.ParticipantID, pos arena.Position) {
	data, err := json.Marshal(pos)
	if err != nil {
		logger.Log.Errorf("Error marshalling position for %s: %v", participantID, err)
		return
	}
	for _, s := range m.GetByParticipant(participantID) {
		s.Set(positionKey, pos)
		if err := s.Send(network.MsgTypeTeleport, data); err != nil {
			logger.Log.Warnf("Failed to send teleport to session %s: %v", s.GetID(), err)
		}
	}
}
