package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cove/internal/server/progress"
)

func dialProgress(t *testing.T, ts *testServer) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(ts.e)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, srv
}

func TestProgressChannel(t *testing.T) {
	t.Run("track replies with known snapshot", func(t *testing.T) {
		ts := newTestServer(t, nil)
		// Seed progress through the handler's tracker by reference.
		ts.tracker.Update("up-9", 2048)

		conn, _ := dialProgress(t, ts)
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "track", "uploadId": "up-9"}))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var rec progress.Record
		require.NoError(t, conn.ReadJSON(&rec))
		assert.Equal(t, "up-9", rec.UploadID)
		assert.Equal(t, int64(2048), rec.BytesReceived)
	})

	t.Run("live updates are pushed after tracking", func(t *testing.T) {
		ts := newTestServer(t, nil)
		conn, _ := dialProgress(t, ts)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "track", "uploadId": "up-10"}))
		// Give the subscription a moment to register.
		time.Sleep(50 * time.Millisecond)
		ts.tracker.Update("up-10", 512)

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var rec progress.Record
		require.NoError(t, conn.ReadJSON(&rec))
		assert.Equal(t, int64(512), rec.BytesReceived)
	})

	t.Run("malformed message closes with protocol error", func(t *testing.T) {
		ts := newTestServer(t, nil)
		conn, _ := dialProgress(t, ts)

		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		require.Error(t, err)
		var closeErr *websocket.CloseError
		if assert.ErrorAs(t, err, &closeErr) {
			assert.Equal(t, websocket.CloseProtocolError, closeErr.Code)
		}
	})

	t.Run("unknown message type closes the connection", func(t *testing.T) {
		ts := newTestServer(t, nil)
		conn, _ := dialProgress(t, ts)

		require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "uploadId": "x"}))

		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		assert.Error(t, err)
	})
}
