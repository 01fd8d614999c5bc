package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthwise/companion/internal/model/health"
)

func startHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(context.Background(), userID, conn)
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) health.Notification {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var n health.Notification
	require.NoError(t, conn.ReadJSON(&n))
	return n
}

func TestHubDeliversToConnectedUser(t *testing.T) {
	hub := NewHub(nil)
	conn := startHub(t, hub, "u-1")
	require.Eventually(t, func() bool { return hub.Connected("u-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	delivered := hub.Publish(health.Notification{UserID: "u-1", Title: "Daily Health Check-in: Headache"})
	assert.Equal(t, 1, delivered)
	assert.Equal(t, 0, hub.Publish(health.Notification{UserID: "u-2", Title: "other"}))

	got := readNotification(t, conn)
	assert.Equal(t, "Daily Health Check-in: Headache", got.Title)
}

func TestHubFlushesBacklogOnConnect(t *testing.T) {
	hub := NewHub(nil)
	assert.Equal(t, 0, hub.Publish(health.Notification{UserID: "u-1", Title: "queued"}))

	conn := startHub(t, hub, "u-1")
	got := readNotification(t, conn)
	assert.Equal(t, "queued", got.Title)
	assert.Empty(t, hub.Pending("u-1"))
}

func TestHubPendingIsBounded(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < maxPending+5; i++ {
		hub.Publish(health.Notification{UserID: "u-1", Title: "n"})
	}
	assert.Len(t, hub.Pending("u-1"), maxPending)
}

func TestHubInboundReply(t *testing.T) {
	hub := NewHub(nil)
	hub.SetInboundHandler(func(ctx context.Context, userID string, msg Inbound) (*health.Notification, error) {
		return &health.Notification{UserID: userID, Tag: "checkin-followup", Body: "got " + msg.Response}, nil
	})
	conn := startHub(t, hub, "u-1")

	require.NoError(t, conn.WriteJSON(Inbound{Type: "checkin", ReminderID: "r-1", Response: "better"}))
	got := readNotification(t, conn)
	assert.Equal(t, "checkin-followup", got.Tag)
	assert.Equal(t, "got better", got.Body)
}

func TestHubRemovesClosedConnections(t *testing.T) {
	hub := NewHub(nil)
	conn := startHub(t, hub, "u-1")
	require.Eventually(t, func() bool { return hub.Connected("u-1") == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connected("u-1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
