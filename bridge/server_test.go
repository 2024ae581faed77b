package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient"
	"github.com/opd-ai/toxclient/messaging"
)

func newTestServer(t *testing.T, ctrl *fakeController) (*httptest.Server, *Hub) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	srv := httptest.NewServer(NewServer("127.0.0.1:0", hub, ctrl).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "running", body["state"])
}

func TestSnapshotEndpoint(t *testing.T) {
	ctrl := &fakeController{snap: toxclient.Snapshot{Profile: "alice", Name: "Alice"}}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()

	var snap toxclient.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, "alice", snap.Profile)
	assert.Equal(t, "Alice", snap.Name)
}

func TestMessagesEndpoint(t *testing.T) {
	ctrl := &fakeController{msgs: []messaging.View{{ID: 1, FriendID: messaging.SelfSenderID, Text: "hey"}}}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Get(srv.URL + "/api/friends/12/messages?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var msgs []messaging.View
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(-1), msgs[0].FriendID)

	got, ok := ctrl.lastCall()
	require.True(t, ok)
	assert.Equal(t, []any{uint32(12), 5}, got.args)

	bad, err := http.Get(srv.URL + "/api/friends/12/messages?limit=many")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	notFound, err := http.Get(srv.URL + "/api/friends/abc/messages")
	require.NoError(t, err)
	notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
}

func TestWebSocketSnapshotCommandsAndNotifications(t *testing.T) {
	ctrl := &fakeController{snap: toxclient.Snapshot{Profile: "alice"}}
	srv, hub := newTestServer(t, ctrl)
	conn := dial(t, srv)

	first := readFrame(t, conn)
	assert.Equal(t, "snapshot", first["type"])

	require.NoError(t, conn.WriteJSON(Request{ID: "42", Type: "send-message", Data: json.RawMessage(`{"friendId":1,"text":"hi"}`)}))
	resp := readFrame(t, conn)
	assert.Equal(t, ResponseType, resp["type"])
	assert.Equal(t, "42", resp["id"])
	assert.Equal(t, true, resp["ok"])

	require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)
	hub.Notify(toxclient.Notification{
		Kind:    toxclient.NotifyMessage,
		Payload: toxclient.MessagePayload{FriendID: 1, Text: "incoming"},
	})
	note := readFrame(t, conn)
	assert.Equal(t, "message", note["type"])
	data := note["data"].(map[string]any)
	assert.Equal(t, "incoming", data["text"])
}

func TestWebSocketMalformedRequest(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	conn := dial(t, srv)
	readFrame(t, conn) // snapshot

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	resp := readFrame(t, conn)
	assert.Equal(t, false, resp["ok"])
	assert.Contains(t, resp["error"], "malformed request")
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"http://127.0.0.1:8080", true},
		{"http://[::1]:8080", true},
		{"https://example.com", false},
		{"http://192.168.1.10", false},
		{"::bad::", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, localOrigin(r), tt.origin)
	}
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	hub := NewHub() // not running, nothing drains the queue
	for i := 0; i < sendBufferSize+10; i++ {
		hub.Notify(toxclient.Notification{Kind: toxclient.NotifyStatusChange})
	}
	assert.Len(t, hub.broadcast, sendBufferSize)
}
