package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/session"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsConn adapts a websocket to session.Conn. Writes are serialized; the
// gorilla connection supports one concurrent writer.
type wsConn struct {
	conn      *websocket.Conn
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSConn(c *websocket.Conn) *wsConn {
	return &wsConn{conn: c}
}

// Send writes evt as a JSON text frame, honoring the deadline of ctx.
func (c *wsConn) Send(ctx context.Context, evt session.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(wsWriteWait)
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteJSON(evt)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
}

// Close sends a close frame and closes the socket. Only the first call has
// an effect.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (s *Server) socket(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.current(r)
	if !ok {
		s.writeError(w, CodeNotLoggedIn)
		return
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := newWSConn(ws)
	logger := s.logger.With(zap.String("session", sess.ID()))

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	if err := sess.Attach(ctx, conn); err != nil {
		logger.Info("websocket attach failed", zap.Error(err))
		_ = conn.Close()
		return
	}
	logger.Info("websocket attached")

	go s.pingLoop(ctx, conn)

	ws.SetReadLimit(wsMaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(wsPongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		// Client messages carry no commands; reading keeps control frames flowing.
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket closed with error", zap.Error(err))
			}
			break
		}
	}

	sess.Detach(conn)
	_ = conn.Close()
	logger.Info("websocket detached")
}

func (s *Server) pingLoop(ctx context.Context, conn *wsConn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
