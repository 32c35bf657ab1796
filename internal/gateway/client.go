package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/devlink/pkg/protocol"
)

const writeWait = 10 * time.Second

var errClientClosed = errors.New("client closed")

// outbound is one queued write: a text frame, or a close request when
// closeCode is set.
type outbound struct {
	data      []byte
	closeCode int
	reason    string
}

// Client represents a single WebSocket connection.
type Client struct {
	id     string
	conn   *websocket.Conn
	server *Server
	send   chan outbound
	done   chan struct{}

	mu           sync.Mutex
	session      *Session // nil until the handshake succeeds
	authTimer    *time.Timer
	authDeadline time.Time
	authBusy     bool // an auth frame is being handled
	authExpired  bool
	closing      bool // a close frame has been queued

	closeOnce      sync.Once
	disconnectOnce sync.Once
}

func NewClient(conn *websocket.Conn, server *Server) *Client {
	return &Client{
		id:     uuid.NewString(),
		conn:   conn,
		server: server,
		send:   make(chan outbound, server.sendBuffer),
		done:   make(chan struct{}),
	}
}

// Run starts the auth timer and the read and write pumps. It returns when
// the connection is gone and its disconnect has been processed.
func (c *Client) Run(ctx context.Context) {
	c.mu.Lock()
	c.authDeadline = time.Now().Add(c.server.authTimeout)
	c.authTimer = time.AfterFunc(c.server.authTimeout, c.onAuthTimeout)
	c.mu.Unlock()

	go c.writePump()
	c.readPump(ctx)
}

// onAuthTimeout only fires for a connection that has not sent an auth
// frame in time. An auth frame still being verified holds the timer off.
func (c *Client) onAuthTimeout() {
	c.mu.Lock()
	if c.session != nil || c.authBusy || c.authExpired {
		c.mu.Unlock()
		return
	}
	c.authExpired = true
	c.mu.Unlock()

	slog.Info("security.auth_timeout", "client", c.id)
	c.Send(protocol.NewError(protocol.ErrAuthTimeout, protocol.MsgAuthTimeout))
	c.CloseWith(protocol.CloseAuthTimeout, protocol.MsgAuthTimeout)
}

// readPump reads frames and handles them one at a time, so messages from a
// single connection never interleave.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.terminate()
		c.server.disconnect(c)
	}()

	c.conn.SetReadLimit(c.server.maxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.server.readTimeout()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.server.readTimeout()))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read error", "client", c.id, "error", err)
			}
			return
		}

		c.conn.SetReadDeadline(time.Now().Add(c.server.readTimeout()))
		c.server.dispatch(ctx, c, data)
	}
}

// writePump drains the outbound queue. It owns all data writes on the conn.
func (c *Client) writePump() {
	defer c.terminate()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if msg.closeCode != 0 {
				c.writeClose(msg.closeCode, msg.reason)
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				slog.Debug("websocket write failed", "client", c.id, "error", err)
				return
			}
		}
	}
}

func (c *Client) writeClose(code int, reason string) {
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
}

// Send queues a frame without blocking. A full queue drops the frame so a
// slow device never stalls the sender's handler.
func (c *Client) Send(f protocol.Frame) {
	data, err := f.Encode(time.Now())
	if err != nil {
		slog.Error("marshal frame failed", "type", f.Type, "error", err)
		return
	}
	if !c.enqueue(outbound{data: data}) {
		if !c.Closed() {
			slog.Warn("client send buffer full, dropping frame", "client", c.id, "type", f.Type)
		}
	}
}

func (c *Client) enqueue(m outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// CloseWith flushes queued frames, then closes with the given code.
// If the queue is full the close is written immediately.
func (c *Client) CloseWith(code int, reason string) {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	if c.enqueue(outbound{closeCode: code, reason: reason}) {
		return
	}
	if !c.Closed() {
		c.writeClose(code, reason)
		c.terminate()
	}
}

// Probe sends a WebSocket ping. WriteControl is safe alongside writePump.
func (c *Client) Probe() error {
	if c.Closed() {
		return errClientClosed
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// terminate tears down the transport. Safe to call more than once.
func (c *Client) terminate() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// Closed reports whether the transport has been torn down.
func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Session returns the authenticated session, or nil before the handshake.
func (c *Client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
}

// beginAuth pauses the auth timer while an auth frame is handled. It
// returns false if the timeout already fired.
func (c *Client) beginAuth() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authExpired {
		return false
	}
	c.authBusy = true
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
	return true
}

// endAuth re-arms the timer with whatever is left of the original window
// when the auth frame did not produce a session.
func (c *Client) endAuth() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authBusy = false
	if c.session != nil || c.authExpired || c.closing || c.Closed() {
		return
	}
	c.authTimer = time.AfterFunc(max(time.Until(c.authDeadline), 0), c.onAuthTimeout)
}

func (c *Client) stopAuthTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authTimer != nil {
		c.authTimer.Stop()
	}
}

// ID returns the connection's unique identifier.
func (c *Client) ID() string { return c.id }
