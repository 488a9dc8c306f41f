package chat

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the capacity of the outbound frame queue.
	sendQueueSize = 256

	// WsCloseCodeSessionKicked is a custom WebSocket Close Code (4000-4999 range)
	// used to signal the client that the server ended the session on purpose.
	WsCloseCodeSessionKicked = 4001

	// TokenRefreshWindow defines how much time before the token expires we should attempt to refresh it.
	TokenRefreshWindow = 2 * time.Minute
)

// FrameHandler consumes the inbound frames of a session and its end.
type FrameHandler interface {
	HandleFrame(ctx context.Context, s *Session, frame []byte)
	Disconnect(ctx context.Context, s *Session)
}

// TokenRefresher issues a fresh access token for a live session.
type TokenRefresher func() (token string, expiry time.Time, err error)

// Client is the WebSocket transport of one session. It implements Outbox.
type Client struct {
	// underlying WebSocket connection object.
	conn *websocket.Conn

	// a buffered channel used to queue frames waiting to be sent to the client.
	send chan []byte

	// done is closed by Shutdown and stops WritePump, which then sends the
	// close frame described by closeCode and closeReason.
	done        chan struct{}
	shutdown    sync.Once
	closeCode   int
	closeReason string

	// tokenExpiry records the expiration time of the current JWT. Only WritePump touches it.
	tokenExpiry time.Time
	refresh     TokenRefresher

	logger zerolog.Logger
}

var _ Outbox = (*Client)(nil)

// NewClient wraps an upgraded connection. refresh may be nil, in which case
// the session is closed once its token expires.
func NewClient(wsConn *websocket.Conn, connID string, expiry time.Time, refresh TokenRefresher) *Client {
	return &Client{
		conn:        wsConn,
		send:        make(chan []byte, sendQueueSize),
		done:        make(chan struct{}),
		tokenExpiry: expiry,
		refresh:     refresh,
		logger:      logx.Logger().With().Str("conn_id", connID).Logger(),
	}
}

// Enqueue implements Outbox.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send channel full, dropping message")
		return false
	}
}

// Shutdown implements Outbox. It only signals the write loop and returns at
// once; WritePump writes the close frame and closes the connection, and the
// read loop then fails and runs the disconnect path.
func (c *Client) Shutdown(code int, reason string) {
	c.shutdown.Do(func() {
		c.logger.Warn().
			Int("close_code", code).
			Str("reason", reason).
			Msg("Closing WS connection.")

		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

// ReadPump reads frames from the connection and hands them to handler until
// the connection fails. It runs the disconnect path exactly once on exit.
func (c *Client) ReadPump(ctx context.Context, handler FrameHandler, s *Session) {
	defer c.cleanupOnDisconnect(ctx, handler, s)

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (Client close/going away)")
			}
			break
		}

		handler.HandleFrame(ctx, s, frame)
	}
}

// cleanupOnDisconnect handles the necessary cleanup steps when ReadPump terminates.
func (c *Client) cleanupOnDisconnect(ctx context.Context, handler FrameHandler, s *Session) {
	c.logger.Info().Msg("Client connection cleanup starting.")

	// the disconnect path must finish even if the request context is gone
	handler.Disconnect(context.WithoutCancel(ctx), s)

	c.shutdown.Do(func() { close(c.done) })

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// WritePump writes queued frames to the connection and keeps the heartbeat.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		// ensure the connection is closed on exit
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.writeFrame(frame) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

			c.checkAndRefreshToken()

		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

// writeCloseMessage sends the close frame requested by Shutdown. A connection
// torn down by the read loop has no close code and gets none.
func (c *Client) writeCloseMessage() {
	if c.closeCode == 0 {
		return
	}

	closeMessage := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
	if err := c.conn.WriteControl(websocket.CloseMessage, closeMessage, time.Now().Add(writeWait)); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to send WS close message.")
	}
}

// writeFrame writes one queued frame. It returns false if the loop should terminate.
func (c *Client) writeFrame(frame []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}

// checkAndRefreshToken pushes a new token to the client shortly before the
// current one expires. Without a refresher an expired session is closed.
func (c *Client) checkAndRefreshToken() {
	now := time.Now()
	if now.Before(c.tokenExpiry.Add(-TokenRefreshWindow)) {
		return
	}

	if c.refresh == nil {
		if now.After(c.tokenExpiry) {
			c.Shutdown(WsCloseCodeSessionKicked, "token expired")
		}
		return
	}

	c.logger.Info().
		Time("current_expiry", c.tokenExpiry).
		Dur("refresh_window", TokenRefreshWindow).
		Msg("JWT token is nearing expiry, attempting refresh.")

	token, expiry, err := c.refresh()
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to generate new token. Aborting refresh.")
		return
	}

	frame, err := encodeEvent(EvtTokenRefreshed, TokenRefreshedPayload{Token: token, ExpiresAt: expiry})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to build token-refreshed event.")
		return
	}

	if !c.Enqueue(frame) {
		c.logger.Error().Msg("Failed to queue token-refreshed event.")
		return
	}

	c.tokenExpiry = expiry
}
