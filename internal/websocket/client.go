package websocket

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"plainchat/internal/apperr"
	"plainchat/internal/metrics"
	"plainchat/internal/models"
	"plainchat/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 8 << 10
	sendBuffer     = 256
)

type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateInRoom
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateInRoom:
		return "in_room"
	case StateDisconnected:
		return "disconnected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

var (
	errNotInRoom        = errors.New("connection has not joined a room")
	errNotAuthenticated = errors.New("connection is not authenticated")
)

// softFailure is an event that could not be applied but must not surface to
// the client or the room: it is logged and nothing is broadcast.
type softFailure struct {
	reason string
	err    error
}

func (s *softFailure) Error() string { return s.reason + ": " + s.err.Error() }

func (s *softFailure) Unwrap() error { return s.err }

// Client is one websocket connection. It is in at most one room at a time;
// hub is only touched by the goroutine running ReadPump (or calling Handle).
type Client struct {
	manager  *Manager
	conn     *websocket.Conn
	send     chan []byte
	sendMu   sync.Mutex
	closed   bool
	userID   uuid.UUID
	username string
	hub      *Hub
	state    atomic.Int32
}

func (m *Manager) NewClient(conn *websocket.Conn) *Client {
	return &Client{
		manager: m,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
}

// Attach binds the authenticated user to a connecting client.
func (c *Client) Attach(user *models.User) error {
	if !c.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return fmt.Errorf("attach in state %s", c.State())
	}
	c.userID = user.ID
	c.username = user.Username
	return nil
}

func (c *Client) State() State { return State(c.state.Load()) }

func (c *Client) Username() string { return c.username }

// room returns the joined room, if any.
func (c *Client) room() (uuid.UUID, bool) {
	if c.hub == nil {
		return uuid.Nil, false
	}
	return c.hub.roomID, true
}

// Serve starts the pumps for an authenticated user's connection.
func (m *Manager) Serve(conn *websocket.Conn, user *models.User) (*Client, error) {
	c := m.NewClient(conn)
	if err := c.Attach(user); err != nil {
		return nil, err
	}
	metrics.WsConnections.Inc()
	logger.Info("User %s connected", user.Username)

	go c.WritePump()
	go c.ReadPump()
	return c, nil
}

// Handle applies one event and logs its outcome. The returned error is
// informational; the connection stays up regardless.
func (c *Client) Handle(ctx context.Context, ev Event) error {
	err := c.dispatch(ctx, ev)

	outcome := "ok"
	var soft *softFailure
	switch {
	case err == nil:
	case errors.As(err, &soft):
		outcome = "ignored"
		logger.L().Info("room event ignored",
			zap.String("event", string(ev.Name())), zap.String("user", c.username), zap.Error(err))
	case errors.Is(err, errNotInRoom), errors.Is(err, errNotAuthenticated):
		outcome = "rejected"
		logger.L().Error("room event out of state",
			zap.String("event", string(ev.Name())), zap.String("user", c.username), zap.Stringer("state", c.State()))
	default:
		outcome = "failed"
		logger.L().Error("room event failed",
			zap.String("event", string(ev.Name())), zap.String("user", c.username), zap.Error(err))
	}
	metrics.RoomEventsTotal.WithLabelValues(string(ev.Name()), outcome).Inc()
	return err
}

func (c *Client) dispatch(ctx context.Context, ev Event) error {
	switch c.State() {
	case StateAuthenticated, StateInRoom:
	default:
		return errNotAuthenticated
	}

	if e, ok := ev.(Join); ok {
		return c.join(e.RoomID)
	}
	if c.hub == nil {
		return errNotInRoom
	}

	switch e := ev.(type) {
	case SendMessage:
		return c.message(ctx, e.Text)
	case AddUser:
		return c.addUser(ctx, e.Username)
	case Leave:
		return c.leave(ctx)
	case Typing:
		return c.broadcast(e.Name(), c.username, nil)
	case Kick:
		return c.kick(ctx, e.Username)
	default:
		return fmt.Errorf("unhandled event %T", ev)
	}
}

// join leaves the current room, if any, before entering the new one.
func (c *Client) join(roomID uuid.UUID) error {
	if c.hub != nil {
		c.manager.leave(c.hub, c)
		c.hub = nil
	}
	c.hub = c.manager.join(roomID, c)
	c.state.Store(int32(StateInRoom))
	logger.Info("User %s joined room %s", c.username, roomID)

	return c.broadcast(models.EventOnline, c.username, nil)
}

func (c *Client) message(ctx context.Context, text string) error {
	id, name := c.userID, c.username
	return c.publish(ctx, models.NewMessage{
		RoomID:     c.hub.roomID,
		SenderID:   &id,
		SenderName: &name,
		Content:    text,
		Kind:       models.KindNormal,
	})
}

func (c *Client) addUser(ctx context.Context, username string) error {
	user, err := c.manager.db.GetUserByUsername(ctx, username)
	if apperr.IsNotFound(err) {
		return &softFailure{reason: "add_user " + username, err: err}
	}
	if err != nil {
		return err
	}

	if err := c.manager.db.AddMembership(ctx, user.ID, c.hub.roomID, models.RoleMember); err != nil {
		var ae *apperr.AlreadyExists
		if errors.As(err, &ae) || apperr.IsNotFound(err) {
			return &softFailure{reason: "add_user " + username, err: err}
		}
		return err
	}

	if err := c.publish(ctx, c.eventMessage(joinedText(user.Username))); err != nil {
		return err
	}

	online := c.manager.presence.IsOnline(ctx, user.Username)
	return c.broadcast(models.EventAddUser, addUserPayload(user.Username, c.username, online), nil)
}

// leave drops the caller's membership and takes it out of the room even if a
// store call fails.
func (c *Client) leave(ctx context.Context) error {
	hub := c.hub
	defer func() {
		c.manager.leave(hub, c)
		c.hub = nil
		c.state.CompareAndSwap(int32(StateInRoom), int32(StateAuthenticated))
		logger.Info("User %s left room %s", c.username, hub.roomID)
	}()

	if err := c.broadcast(models.EventLeave, c.username, nil); err != nil {
		return err
	}
	if err := c.manager.db.RemoveMembership(ctx, c.userID, hub.roomID); err != nil {
		return err
	}
	return c.publish(ctx, c.eventMessage(leftText(c.username)))
}

func (c *Client) kick(ctx context.Context, username string) error {
	err := c.manager.db.RemoveMembershipByUsername(ctx, username, c.hub.roomID)
	if apperr.IsNotFound(err) {
		return &softFailure{reason: "kick " + username, err: err}
	}
	if err != nil {
		return err
	}

	if err := c.broadcast(models.EventKick, kickPayload(username, c.username), nil); err != nil {
		return err
	}
	return c.publish(ctx, c.eventMessage(kickedText(username, c.username)))
}

// disconnect is the terminal transition. It runs once per client.
func (c *Client) disconnect(ctx context.Context) {
	prev := State(c.state.Swap(int32(StateDisconnected)))
	if prev == StateDisconnected {
		return
	}

	if prev != StateConnecting {
		if err := c.manager.presence.SetOffline(ctx, c.username); err != nil {
			logger.L().Warn("failed to clear presence", zap.String("user", c.username), zap.Error(err))
		}
	}
	if c.hub != nil {
		if err := c.broadcast(models.EventOffline, c.username, c); err != nil {
			logger.Error("Error broadcasting offline for %s: %v", c.username, err)
		}
		c.manager.leave(c.hub, c)
		c.hub = nil
	}
	c.closeSend()
	logger.Info("User %s disconnected", c.username)
}

func (c *Client) eventMessage(text string) models.NewMessage {
	return models.NewMessage{RoomID: c.hub.roomID, Content: text, Kind: models.KindEvent}
}

// publish persists nm, broadcasts the stored message to the room and then
// mirrors it into the room cache.
func (c *Client) publish(ctx context.Context, nm models.NewMessage) error {
	_, err := c.manager.messages.Append(ctx, nm, func(msg *models.Message) error {
		return c.broadcast(models.EventMessage, msg, nil)
	})
	return err
}

func (c *Client) broadcast(name models.EventName, data interface{}, exclude *Client) error {
	frame, err := encode(name, data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	c.hub.Broadcast(frame, exclude)
	return nil
}

// enqueue reports false when the client is closed or its queue is full.
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.disconnect(context.Background())
		metrics.WsConnections.Dec()
		c.conn.Close()
	}()

	// Set read deadline and pong handler for connection health
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket error: %v", err)
			}
			break
		}

		ev, err := Decode(raw)
		if err != nil {
			logger.Warn("Dropping frame from %s: %v", c.username, err)
			metrics.RoomEventsTotal.WithLabelValues("unknown", "malformed").Inc()
			continue
		}
		_ = c.Handle(context.Background(), ev)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
