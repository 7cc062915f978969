package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"cove/internal/server/progress"
)

const (
	// maxMessageSize caps inbound messages; track requests are tiny.
	maxMessageSize = 1024
	// idleTimeout closes subscribers that go quiet.
	idleTimeout = 5 * time.Minute
	// writeTimeout bounds a single progress push.
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// trackMessage is the only inbound message type.
type trackMessage struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
}

// HandleProgress handles the upgrade-based progress channel. A client
// tracks an upload ID; the latest snapshot is pushed immediately and
// live updates follow as ingestion progresses.
func (h *Handler) HandleProgress(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the failure response.
		return nil
	}
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)

	var (
		writeMu sync.Mutex
		cancel  func()
	)
	defer func() {
		if cancel != nil {
			cancel()
		}
	}()

	push := func(rec progress.Record) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(rec)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(idleTimeout))

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			// Idle timeout or client hangup; nothing more to do.
			return nil
		}
		if msgType != websocket.TextMessage {
			closeWithProtocolError(conn, "expected text message")
			return nil
		}

		var msg trackMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "track" || msg.UploadID == "" {
			closeWithProtocolError(conn, "expected {type:\"track\", uploadId}")
			return nil
		}

		// Re-tracking replaces the previous subscription.
		if cancel != nil {
			cancel()
		}
		var ch <-chan progress.Record
		ch, cancel = h.tracker.Subscribe(msg.UploadID)

		if rec, ok := h.tracker.Snapshot(msg.UploadID); ok {
			if err := push(rec); err != nil {
				return nil
			}
		}

		go func(ch <-chan progress.Record) {
			for rec := range ch {
				if err := push(rec); err != nil {
					return
				}
			}
		}(ch)
	}
}

// closeWithProtocolError closes the connection with a protocol-error
// code instead of silently dropping the malformed message.
func closeWithProtocolError(conn *websocket.Conn, reason string) {
	slog.Warn("closing progress channel", "reason", reason)
	msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, reason)
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
