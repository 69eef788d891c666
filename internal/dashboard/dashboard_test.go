package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/strideapp/stride/internal/store"
	"github.com/strideapp/stride/internal/sync"
)

func testServer(t *testing.T) *Server {
	t.Helper()

	server := NewServer(&Config{
		Port:   0, // random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })

	time.Sleep(50 * time.Millisecond)
	return server
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Port: 0, Logger: log.New(io.Discard, "", 0)})

	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.Addr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestBroadcastReachesClient(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.Addr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForClients(t, server, 1)

	data, _ := json.Marshal(RecordUpdateData{Kind: "task", ID: "t-1", Action: "updated"})
	server.Broadcast(Message{Type: MessageTypeRecordUpdate, Data: data})

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeRecordUpdate {
		t.Errorf("message type = %s, want %s", msg.Type, MessageTypeRecordUpdate)
	}
	if msg.Timestamp.IsZero() {
		t.Error("broadcast did not stamp a timestamp")
	}

	var update RecordUpdateData
	if err := json.Unmarshal(msg.Data, &update); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if update.ID != "t-1" || update.Action != "updated" {
		t.Errorf("unexpected update payload: %+v", update)
	}
}

func TestMultipleClients(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.Addr() + "/ws"
	const numClients = 3
	conns := make([]*websocket.Conn, numClients)
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			t.Fatalf("Failed to connect client %d: %v", i, err)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		conns[i] = conn
	}

	waitForClients(t, server, numClients)

	server.Broadcast(Message{Type: MessageTypeStats})

	for i, conn := range conns {
		_, raw, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("client %d failed to read broadcast: %v", i, err)
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("client %d got invalid message: %v", i, err)
		}
		if msg.Type != MessageTypeStats {
			t.Errorf("client %d message type = %s, want %s", i, msg.Type, MessageTypeStats)
		}
	}
}

func TestClientDisconnectTracked(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws://" + server.Addr() + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}

	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

func TestBridgeBroadcastsSyncComplete(t *testing.T) {
	server := testServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := store.Open(filepath.Join(t.TempDir(), "stride.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := db.InitSchema(ctx); err != nil {
		t.Fatalf("Failed to init schema: %v", err)
	}

	bridge := NewBridge(server, db, "o1", log.New(io.Discard, "", 0))

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	waitForClients(t, server, 1)

	started := time.Now().Add(-2 * time.Second)
	bridge.OnSyncComplete(sync.Summary{
		Mode:      sync.Full,
		Pushed:    3,
		Pulled:    2,
		Conflicts: 1,
		Started:   started,
		Finished:  time.Now(),
	})

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read broadcast: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("message type = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}

	var sc SyncCompleteData
	if err := json.Unmarshal(msg.Data, &sc); err != nil {
		t.Fatalf("Failed to unmarshal data: %v", err)
	}
	if sc.Mode != "full" || sc.Pushed != 3 || sc.Pulled != 2 || sc.Conflicts != 1 {
		t.Errorf("unexpected sync payload: %+v", sc)
	}
	if sc.Duration <= 0 {
		t.Errorf("duration = %v, want positive", sc.Duration)
	}
}

func waitForClients(t *testing.T, server *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if server.ClientCount() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("client count never reached %d (got %d)", want, server.ClientCount())
}
