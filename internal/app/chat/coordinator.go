/*
Package chat is the real-time core of the server: the live session registry,
the per-connection room state machine, message fan-out and the command
handlers that bind socket commands to persisted state.

Every command runs as a short pipeline of validation, store operations and
broadcast. Failures become an `error` event for the originating connection
only; throttled room commands are dropped without feedback.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"roomchat/internal/app/store"
	"roomchat/internal/app/user"
	"roomchat/internal/pkg/errs"
	"roomchat/internal/pkg/limiter"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/randx"
)

// DefaultEditWindow is how long after creation a message may be edited.
const DefaultEditWindow = 15 * time.Minute

// Coordinator runs the command handlers of every live connection.
type Coordinator struct {
	rooms    store.RoomStore
	messages store.MessageStore
	users    store.UserStore

	registry *Registry
	hub      *Hub
	throttle *limiter.CommandThrottle
	objects  ObjectStat

	editWindow time.Duration
	now        func() time.Time
	newID      func() string

	// presenceMu orders the online/offline writes of connect and disconnect,
	// so that the last write always matches the registry.
	presenceMu sync.Mutex

	logger zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithEditWindow overrides DefaultEditWindow.
func WithEditWindow(d time.Duration) Option {
	return func(c *Coordinator) { c.editWindow = d }
}

// WithObjectStore makes Send check every attachment against the uploaded object.
func WithObjectStore(objects ObjectStat) Option {
	return func(c *Coordinator) { c.objects = objects }
}

// NewCoordinator wires the command handlers to their collaborators.
func NewCoordinator(st store.Store, registry *Registry, hub *Hub, throttle *limiter.CommandThrottle, opts ...Option) *Coordinator {
	c := &Coordinator{
		rooms:      st,
		messages:   st,
		users:      st,
		registry:   registry,
		hub:        hub,
		throttle:   throttle,
		editWindow: DefaultEditWindow,
		now:        time.Now,
		newID:      randx.ID,
		logger:     logx.Component("Coordinator"),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the session registry.
func (c *Coordinator) Registry() *Registry {
	return c.registry
}

// Connect registers an authenticated connection. The first live session of
// an identity marks it online.
func (c *Coordinator) Connect(ctx context.Context, identity user.Identity, connID string, outbox Outbox) *Session {
	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()

	identity.Status = user.StatusOnline
	s, first := c.registry.Register(identity, connID, outbox)

	if first {
		if err := c.users.UpdatePresence(ctx, identity.ID, user.StatusOnline, c.now()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to mark user online")
		}
	}

	s.logger.Info().Bool("first_session", first).Msg("Session connected.")
	return s
}

// Disconnect performs the leave effect for every room the connection had
// joined and unregisters it. The last session of an identity marks it offline.
func (c *Coordinator) Disconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true

	rooms := s.joinedRoomsLocked()
	for _, roomID := range rooms {
		if err := c.leaveEffect(ctx, s, roomID, actionDisconnect); err != nil {
			s.logger.Error().Err(err).Str("room_id", roomID).Msg("Disconnect cleanup failed for room")
		}
	}
	s.mu.Unlock()

	c.presenceMu.Lock()
	defer c.presenceMu.Unlock()

	if _, last := c.registry.Unregister(s.ID); last {
		if err := c.users.UpdatePresence(ctx, s.UserID(), user.StatusOffline, c.now()); err != nil {
			s.logger.Error().Err(err).Msg("Failed to mark user offline")
		}
	}

	s.logger.Info().Int("rooms_left", len(rooms)).Msg("Session disconnected.")
}

// HandleFrame decodes one inbound frame and dispatches it.
func (c *Coordinator) HandleFrame(ctx context.Context, s *Session, frame []byte) {
	cmd, customErr := DecodeCommand(frame)
	if customErr != nil {
		s.logger.Warn().Int("code", customErr.Code).Msg("Client sent invalid command")
		c.sendError(s, customErr, tempIDOf(cmd))
		return
	}

	c.Dispatch(ctx, s, cmd)
}

// Dispatch runs cmd for s. Commands of one connection never overlap, and a
// panic inside a handler is contained to that command.
func (c *Coordinator) Dispatch(ctx context.Context, s *Session, cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("command", cmd.Kind()).
				Str("panic", fmt.Sprint(r)).
				Bytes("stack", debug.Stack()).
				Msg("Recovered from panic in command handler")
			c.sendError(s, errs.NewError(errs.ErrUnknown), tempIDOf(cmd))
		}
	}()

	var customErr *errs.CustomError

	switch cmd := cmd.(type) {
	case JoinRoom:
		customErr = c.join(ctx, s, cmd.RoomID)
	case LeaveRoom:
		customErr = c.leave(ctx, s, cmd.RoomID)
	case SendMessage:
		customErr = c.sendFromSession(ctx, s, cmd)
	case EditMessage:
		_, customErr = c.Edit(ctx, s.identity, cmd)
	case DeleteMessage:
		customErr = c.Delete(ctx, s.identity, cmd)
	case AddReaction:
		_, customErr = c.React(ctx, s.identity, cmd)
	case RemoveReaction:
		_, customErr = c.Unreact(ctx, s.identity, cmd)
	case TypingStart:
		c.typing(s, cmd.RoomID, true)
	case TypingStop:
		c.typing(s, cmd.RoomID, false)
	case UpdateStatus:
		customErr = c.updateStatus(ctx, s, cmd.Status)
	case MarkMessagesRead:
		_, customErr = c.MarkRead(ctx, s.identity, cmd.RoomID, cmd.MessageIDs, s.ID)
	default:
		customErr = errs.NewError(errs.ErrUnknownCommand)
	}

	if customErr != nil {
		s.logger.Debug().Str("command", cmd.Kind()).Int("code", customErr.Code).Msg("Command rejected")
		c.sendError(s, customErr, tempIDOf(cmd))
	}
}

func tempIDOf(cmd Command) string {
	if send, ok := cmd.(SendMessage); ok {
		return send.TempID
	}
	return ""
}

func (c *Coordinator) sendError(s *Session, customErr *errs.CustomError, tempID string) {
	c.hub.Send(s, EvtError, ErrorPayload{
		Code:    customErr.Code,
		Message: customErr.Message,
		TempID:  tempID,
	})
}

// storeError maps a store error onto the client-facing error. notFound is
// the code used for store.ErrNotFound.
func storeError(err error, notFound int) *errs.CustomError {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return errs.NewError(notFound)
	case errors.Is(err, store.ErrRoomFull):
		return errs.NewError(errs.ErrRoomIsFull)
	case errors.Is(err, store.ErrAlreadyMember):
		return errs.NewError(errs.ErrAlreadyRoomMember)
	default:
		return errs.NewError(errs.ErrStoreFailure, err)
	}
}

// memberRoom loads an active room and checks that userID belongs to it.
func (c *Coordinator) memberRoom(ctx context.Context, roomID, userID string) (*store.Room, *errs.CustomError) {
	room, err := c.rooms.FindRoom(ctx, roomID)
	if err != nil {
		return nil, storeError(err, errs.ErrRoomNotFound)
	}
	if !room.IsMember(userID) {
		return nil, errs.NewError(errs.ErrNotRoomMember)
	}
	return room, nil
}

// join moves (s, roomID) from not-joined to joined. Callers hold s.mu.
func (c *Coordinator) join(ctx context.Context, s *Session, roomID string) *errs.CustomError {
	if !s.permits(roomID, actionJoin) {
		return nil
	}

	if !c.throttle.Allow(s.UserID(), CmdJoinRoom) {
		s.logger.Debug().Str("room_id", roomID).Msg("join-room throttled, dropping")
		return nil
	}

	if _, customErr := c.memberRoom(ctx, roomID, s.UserID()); customErr != nil {
		return customErr
	}

	active, err := c.rooms.UpsertPresence(ctx, roomID, store.Presence{
		UserID:       s.identity.ID,
		ConnectionID: s.ID,
		JoinedAt:     c.now(),
		Name:         s.identity.Name,
		Avatar:       s.identity.Avatar,
		Status:       string(s.identity.Status),
	})
	if err != nil {
		return storeError(err, errs.ErrNotRoomMember)
	}

	c.hub.Subscribe(roomID, s)
	s.apply(roomID, actionJoin)

	c.hub.EmitToRoom(roomID, EvtUserJoinedRoom, UserJoinedRoomPayload{
		RoomID:      roomID,
		User:        summarize(s.identity),
		ActiveUsers: active,
	}, ExcludeConnection(s.ID))

	c.hub.Send(s, EvtJoinedRoom, JoinedRoomPayload{RoomID: roomID, ActiveUsers: active})

	s.logger.Info().Str("room_id", roomID).Int("active_users", len(active)).Msg("Joined room.")
	return nil
}

// leave moves (s, roomID) from joined to not-joined. Callers hold s.mu.
func (c *Coordinator) leave(ctx context.Context, s *Session, roomID string) *errs.CustomError {
	if !s.permits(roomID, actionLeave) {
		return nil
	}

	if !c.throttle.Allow(s.UserID(), CmdLeaveRoom) {
		s.logger.Debug().Str("room_id", roomID).Msg("leave-room throttled, dropping")
		return nil
	}

	err := c.leaveEffect(ctx, s, roomID, actionLeave)
	c.hub.Send(s, EvtLeftRoom, LeftRoomPayload{RoomID: roomID})

	if err != nil {
		return errs.NewError(errs.ErrStoreFailure, err)
	}

	s.logger.Info().Str("room_id", roomID).Msg("Left room.")
	return nil
}

// leaveEffect unsubscribes s from roomID, drops the presence entry owned by
// its connection and tells the remaining connections. Callers hold s.mu.
func (c *Coordinator) leaveEffect(ctx context.Context, s *Session, roomID string, a roomAction) error {
	c.hub.Unsubscribe(roomID, s.ID)
	s.apply(roomID, a)

	active, removed, err := c.rooms.RemovePresenceByConnection(ctx, roomID, s.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove presence: %w", err)
	}

	// A newer connection of the same identity owns the entry.
	if !removed {
		return nil
	}

	// Another connection of the same identity is still in the room: hand the
	// entry over. That connection may leave while the entry is being written,
	// so the handover is only kept if it is still subscribed afterwards.
	for other := c.hub.ConnectionOf(roomID, s.UserID()); other != nil; other = c.hub.ConnectionOf(roomID, s.UserID()) {
		_, err := c.rooms.UpsertPresence(ctx, roomID, store.Presence{
			UserID:       s.identity.ID,
			ConnectionID: other.ID,
			JoinedAt:     c.now(),
			Name:         s.identity.Name,
			Avatar:       s.identity.Avatar,
			Status:       string(s.identity.Status),
		})
		if err != nil {
			return fmt.Errorf("hand over presence: %w", err)
		}

		if c.hub.subscribed(roomID, other.ID) {
			return nil
		}

		var dropped bool
		active, dropped, err = c.rooms.RemovePresenceByConnection(ctx, roomID, other.ID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("drop stale handover: %w", err)
		}

		// The leaving connection removed the entry itself and announces its own leave.
		if !dropped {
			return nil
		}
	}

	c.hub.EmitToRoom(roomID, EvtUserLeftRoom, UserLeftRoomPayload{
		RoomID:      roomID,
		UserID:      s.UserID(),
		ActiveUsers: active,
	})
	return nil
}

// typing relays a typing indicator to the other connections of a joined room.
// It has no acknowledgement and no failure.
func (c *Coordinator) typing(s *Session, roomID string, started bool) {
	if s.rooms[roomID] != Joined {
		return
	}

	if started {
		c.hub.EmitToRoom(roomID, EvtUserTyping, UserTypingPayload{
			UserID:   s.identity.ID,
			UserName: s.identity.Name,
			RoomID:   roomID,
		}, ExcludeConnection(s.ID))
		return
	}

	c.hub.EmitToRoom(roomID, EvtUserStoppedTyping, UserStoppedTypingPayload{
		UserID: s.identity.ID,
		RoomID: roomID,
	}, ExcludeConnection(s.ID))
}

// updateStatus persists the identity's status and announces it in every room
// one of its connections has joined.
func (c *Coordinator) updateStatus(ctx context.Context, s *Session, status user.Status) *errs.CustomError {
	if customErr := c.announceStatus(ctx, s.identity.ID, status, ExcludeConnection(s.ID)); customErr != nil {
		return customErr
	}
	s.identity.Status = status
	return nil
}

// UpdateStatus is the REST form of update-status. The caller's own live
// connections are told as well.
func (c *Coordinator) UpdateStatus(ctx context.Context, actor user.Identity, status user.Status) *errs.CustomError {
	if customErr := (UpdateStatus{Status: status}).Validate(); customErr != nil {
		return customErr
	}
	return c.announceStatus(ctx, actor.ID, status)
}

func (c *Coordinator) announceStatus(ctx context.Context, userID string, status user.Status, opts ...EmitOption) *errs.CustomError {
	if err := c.users.UpdatePresence(ctx, userID, status, c.now()); err != nil {
		return storeError(err, errs.ErrUserNotFound)
	}

	for _, roomID := range c.hub.RoomsWithUser(userID) {
		c.hub.EmitToRoom(roomID, EvtUserStatusUpdated, UserStatusPayload{
			UserID: userID,
			Status: status,
		}, opts...)
	}
	return nil
}

// Shutdown closes every live connection and waits until their disconnect
// paths have run or ctx is done.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	sessions := c.registry.All()
	c.logger.Info().Int("sessions", len(sessions)).Msg("Shutting down live sessions...")

	for _, s := range sessions {
		s.outbox.Shutdown(websocket.CloseGoingAway, "server shutting down")
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for c.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%d sessions still open: %w", c.registry.Len(), ctx.Err())
		case <-ticker.C:
		}
	}

	c.logger.Info().Msg("Session shutdown complete.")
	return nil
}
