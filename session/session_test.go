package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/wfunc/duelarena/arena"
	"github.com/wfunc/duelarena/network"
)

// MockConnection is a test double for the network.Connection interface.
type MockConnection struct {
	mu   sync.Mutex
	sent []uint16
}

func (m *MockConnection) Send(msgID uint16, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msgID)
	return nil
}
func (m *MockConnection) Close() error                         { return nil }
func (m *MockConnection) RemoteAddr() net.Addr                 { return &net.TCPAddr{} }
func (m *MockConnection) SetHeartbeat(interval time.Duration)  {}
func (m *MockConnection) ReadPacket() (*network.Packet, error) { return nil, nil }

func TestNewManager(t *testing.T) {
	manager := NewManager()
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.sessions == nil {
		t.Fatal("NewManager should initialize the sessions map")
	}
}

func TestManager_Add_Get_Remove(t *testing.T) {
	manager := NewManager()
	sessionID := "test_session_1"
	sess := NewSession(sessionID, &MockConnection{})

	manager.Add(sess)
	if manager.Count() != 1 {
		t.Fatalf("Expected session count to be 1, got %d", manager.Count())
	}

	retrievedSess, exists := manager.Get(sessionID)
	if !exists {
		t.Fatal("Get should find the added session")
	}
	if retrievedSess != sess {
		t.Fatal("Get should return the same session instance")
	}

	manager.Remove(sessionID)
	if manager.Count() != 0 {
		t.Fatalf("Expected session count to be 0 after removal, got %d", manager.Count())
	}
}

func TestManager_BindAndRegistry(t *testing.T) {
	manager := NewManager()
	manager.Add(NewSession("s1", &MockConnection{}))
	manager.Add(NewSession("s2", &MockConnection{}))
	manager.Add(NewSession("s3", &MockConnection{}))

	if !manager.Bind("s1", "alice") || !manager.Bind("s3", "alice") || !manager.Bind("s2", "bob") {
		t.Fatal("Bind should succeed for existing sessions")
	}
	if manager.Bind("missing", "carol") {
		t.Error("Bind should fail for an unknown session")
	}

	if got := len(manager.GetByParticipant("alice")); got != 2 {
		t.Errorf("Expected 2 sessions for alice, got %d", got)
	}
	if !manager.IsValid("bob") {
		t.Error("Expected bob to be valid")
	}
	if manager.IsValid("carol") || manager.IsValid("") {
		t.Error("Expected unbound participants to be invalid")
	}
}

func TestManager_PositionRestore(t *testing.T) {
	manager := NewManager()
	conn := &MockConnection{}
	manager.Add(NewSession("s1", conn))
	manager.Bind("s1", "alice")

	start := arena.Position{MapID: "town", X: 1, Y: 2}
	manager.SetPosition("alice", start)
	if got := manager.Position("alice"); got != start {
		t.Fatalf("Expected %+v, got %+v", start, got)
	}

	manager.SetPosition("alice", arena.Position{MapID: "arena"})
	manager.Restore("alice", start)

	if got := manager.Position("alice"); got != start {
		t.Errorf("Expected restored position %+v, got %+v", start, got)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.sent) != 1 || conn.sent[0] != network.MsgTypeTeleport {
		t.Errorf("Expected one teleport message, got %v", conn.sent)
	}
}

func TestSession_Set_Get(t *testing.T) {
	sess := NewSession("test_session", &MockConnection{})
	key := "test_key"
	value := "test_value"

	sess.Set(key, value)

	retrievedValue := sess.Get(key)
	if retrievedValue != value {
		t.Errorf("Expected value %v, got %v", value, retrievedValue)
	}

	nilValue := sess.Get("non_existent_key")
	if nilValue != nil {
		t.Errorf("Expected nil for non-existent key, got %v", nilValue)
	}
}
