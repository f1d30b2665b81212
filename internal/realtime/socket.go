package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

// ServeWS upgrades the request and runs the channel until either side closes it.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	socket, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	connection := m.Open()
	m.logger.Debug("realtime connection opened", zap.Int64("connection_id", connection.id))

	go m.writePump(socket, connection)
	m.readPump(socket, connection)
}

func (m *Manager) readPump(socket *websocket.Conn, connection *Connection) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		m.Close(connection)
		_ = socket.Close()
		m.logger.Debug("realtime connection closed", zap.Int64("connection_id", connection.id))
	}()

	socket.SetReadLimit(m.maxFrameBytes)
	if m.pingInterval > 0 {
		pongWait := m.pingInterval * 2
		_ = socket.SetReadDeadline(time.Now().Add(pongWait))
		socket.SetPongHandler(func(string) error {
			return socket.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		_, payload, err := socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info("realtime connection dropped",
					zap.Int64("connection_id", connection.id),
					zap.Error(err))
			}
			return
		}
		m.HandleFrame(ctx, connection, payload)
		if connection.Closed() {
			return
		}
	}
}

func (m *Manager) writePump(socket *websocket.Conn, connection *Connection) {
	var pings <-chan time.Time
	if m.pingInterval > 0 {
		ticker := time.NewTicker(m.pingInterval)
		defer ticker.Stop()
		pings = ticker.C
	}
	defer func() {
		_ = socket.Close()
	}()

	for {
		select {
		case frame := <-connection.Outbound():
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteJSON(frame); err != nil {
				m.logger.Debug("realtime write failed",
					zap.Int64("connection_id", connection.id),
					zap.Error(err))
				m.Close(connection)
				return
			}
		case <-pings:
			if err := socket.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				m.Close(connection)
				return
			}
		case <-connection.Done():
			m.flush(socket, connection)
			_ = socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes frames queued before the connection closed.
func (m *Manager) flush(socket *websocket.Conn, connection *Connection) {
	for {
		select {
		case frame := <-connection.Outbound():
			_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := socket.WriteJSON(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
