package service

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds a single progress push. A subscriber that cannot take the
// write within this window is dropped.
const writeWait = 1 * time.Second

// ProgressUpdate is the payload pushed to WebSocket subscribers for each
// stage record the pipeline writes.
type ProgressUpdate struct {
	TaskID    string    `json:"task_id"`
	Stage     string    `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ConnectionManager manages WebSocket connections keyed by task id.
type ConnectionManager struct {
	connections map[string]*websocket.Conn
	mu          sync.RWMutex
}

// NewConnectionManager creates a new ConnectionManager.
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]*websocket.Conn),
	}
}

// Add registers a connection for a task. An existing subscriber for the same
// task is replaced and closed.
func (m *ConnectionManager) Add(taskID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.connections[taskID]; ok {
		old.Close()
	}
	m.connections[taskID] = conn
}

// Remove closes and deregisters conn if it is still the task's subscriber.
// Removal is connection-aware so a handler tearing down a replaced connection
// cannot evict the replacement.
func (m *ConnectionManager) Remove(taskID string, conn *websocket.Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.connections[taskID]; ok && current == conn {
		current.Close()
		delete(m.connections, taskID)
	}
}

// Notify pushes a progress update to the task's subscriber, if any. Delivery
// is best-effort; polling remains the authoritative progress channel. The
// write happens outside the registry lock so one stalled subscriber cannot
// block updates for other tasks, and a subscriber that misses the write
// deadline is dropped.
func (m *ConnectionManager) Notify(update ProgressUpdate) bool {
	m.mu.RLock()
	conn, ok := m.connections[update.TaskID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	message, err := json.Marshal(update)
	if err != nil {
		return false
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
		m.Remove(update.TaskID, conn)
		return false
	}
	return true
}
