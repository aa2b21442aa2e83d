package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// socket is one connected client. The read loop is the only goroutine that
// dispatches its events, so turns on a socket are serialized by construction;
// writes can come from broadcasts too and are mutex-guarded.
type socket struct {
	conn   *websocket.Conn
	userID string

	// sessionID is the socket's current membership. Guarded by the hub's
	// mutex; read it through hub.current.
	sessionID string

	writeMu sync.Mutex
	logger  *zap.Logger
}

// send marshals and writes one event. Write failures close the connection;
// the read loop notices and tears the socket down.
func (s *socket) send(event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal event payload", zap.String("event", event), zap.Error(err))
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(Envelope{Event: event, Data: data}); err != nil {
		s.logger.Debug("write failed, closing socket", zap.Error(err))
		_ = s.conn.Close()
	}
}

// sendError reports a failed event in the error envelope.
func (s *socket) sendError(message, code string) {
	s.send(EventError, ErrorPayload{Message: message, Code: code})
}
