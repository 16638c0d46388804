package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialTestConn establishes a real WebSocket pair through an httptest server
// and returns the server-side and client-side connections.
func dialTestConn(t *testing.T) (*websocket.Conn, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	serverConns := make(chan *websocket.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Upgrade() error = %v", err)
			return
		}
		serverConns <- conn
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })

	select {
	case server := <-serverConns:
		return server, client
	case <-time.After(2 * time.Second):
		t.Fatal("Server connection never arrived")
		return nil, nil
	}
}

func TestConnectionManager_NotifyDeliversUpdate(t *testing.T) {
	m := NewConnectionManager()
	server, client := dialTestConn(t)
	m.Add("t1", server)

	update := ProgressUpdate{
		TaskID:   "t1",
		Stage:    "transcription",
		Progress: 85,
		Message:  "Starting speech-to-text transcription",
	}
	if !m.Notify(update) {
		t.Fatal("Notify() = false for a registered subscriber")
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}

	var got ProgressUpdate
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.TaskID != update.TaskID || got.Stage != update.Stage || got.Progress != update.Progress {
		t.Errorf("Unexpected update %+v", got)
	}
}

func TestConnectionManager_NotifyWithoutSubscriber(t *testing.T) {
	m := NewConnectionManager()
	if m.Notify(ProgressUpdate{TaskID: "nobody"}) {
		t.Error("Notify() = true with no subscriber")
	}
}

func TestConnectionManager_AddReplacesExisting(t *testing.T) {
	m := NewConnectionManager()
	first, _ := dialTestConn(t)
	second, client := dialTestConn(t)

	m.Add("t1", first)
	m.Add("t1", second)

	// The replaced connection is closed; the new one still receives updates.
	if err := first.WriteMessage(websocket.TextMessage, []byte("x")); err == nil {
		t.Error("Expected write on replaced connection to fail")
	}
	if !m.Notify(ProgressUpdate{TaskID: "t1", Stage: "completed", Progress: 100}) {
		t.Fatal("Notify() = false after replacement")
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Errorf("New subscriber did not receive the update: %v", err)
	}
}

func TestConnectionManager_Remove(t *testing.T) {
	m := NewConnectionManager()
	server, _ := dialTestConn(t)
	m.Add("t1", server)
	m.Remove("t1", server)

	if m.Notify(ProgressUpdate{TaskID: "t1"}) {
		t.Error("Notify() = true after Remove")
	}
}

func TestConnectionManager_RemoveIgnoresReplacedConnection(t *testing.T) {
	m := NewConnectionManager()
	first, _ := dialTestConn(t)
	second, client := dialTestConn(t)

	m.Add("t1", first)
	m.Add("t1", second)

	// A handler tearing down the replaced connection must not evict the
	// replacement.
	m.Remove("t1", first)

	if !m.Notify(ProgressUpdate{TaskID: "t1", Stage: "transcription", Progress: 85}) {
		t.Fatal("Notify() = false after stale Remove")
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := client.ReadMessage(); err != nil {
		t.Errorf("Replacement subscriber did not receive the update: %v", err)
	}
}

func TestConnectionManager_NotifyDropsStalledSubscriber(t *testing.T) {
	m := NewConnectionManager()
	server, _ := dialTestConn(t)
	m.Add("t1", server)

	// The client never reads, so once the socket buffers fill a write blocks
	// until the deadline expires and the subscriber is dropped.
	update := ProgressUpdate{
		TaskID:  "t1",
		Stage:   "transcription",
		Message: strings.Repeat("x", 64*1024),
	}
	dropped := false
	for i := 0; i < 200; i++ {
		if !m.Notify(update) {
			dropped = true
			break
		}
	}
	if !dropped {
		t.Fatal("Stalled subscriber was never dropped")
	}
	if m.Notify(ProgressUpdate{TaskID: "t1"}) {
		t.Error("Notify() = true after the subscriber was dropped")
	}
}
