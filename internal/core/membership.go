package core

import (
	"context"

	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/room"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store"
)

// ReplyOK acknowledges a successful room change.
const ReplyOK = "OK"

// Redirect tells a client to go elsewhere because the room is full.
type Redirect struct {
	RedirectURL string `json:"redirectUrl"`
}

// QueuePosition tells a waiter its zero-based rank.
type QueuePosition struct {
	RoomID   string `json:"roomId,omitempty"`
	QueueID  string `json:"queueId,omitempty"`
	Position int    `json:"position"`
}

// QueueClosed tells a waiter its queue was closed before it got a slot.
type QueueClosed struct {
	RoomID  string `json:"roomId,omitempty"`
	QueueID string `json:"queueId,omitempty"`
}

// Promotion tells a waiter it now holds a slot in a room.
type Promotion struct {
	RoomID string `json:"roomId"`
}

func isGlobalQueue(queueSystem string) bool {
	return queueSystem != "" && queueSystem != room.QueuePrivate
}

// joinRoom moves s into roomID. The reply is ReplyOK, a queue position or
// a Redirect.
func (h *Hub) joinRoom(s *session.Session, roomID string) (any, error) {
	v, err := h.rooms.View(roomID)
	if err != nil {
		return nil, err
	}
	if s.ActiveRoomID() == roomID {
		return ReplyOK, nil
	}
	if s.ActiveQueueRoomID() == roomID {
		if pos, ok := h.rooms.QueuePosition(roomID, s.ID()); ok {
			return QueuePosition{RoomID: roomID, Position: pos}, nil
		}
	}

	h.leaveEverything(s)

	res, err := h.rooms.AddUser(roomID, s.User())
	if err != nil {
		return nil, err
	}
	switch res.Status {
	case room.Joined:
		h.seat(s, roomID)
		h.broadcastRoom(roomID)
		h.broadcastRoomList()
		return ReplyOK, nil
	case room.Queued:
		s.SetActiveQueueRoom(roomID)
		h.broadcastRoomList()
		return QueuePosition{RoomID: roomID, Position: res.Position}, nil
	}

	if isGlobalQueue(v.QueueSystem) && h.queues.Exists(v.QueueSystem) {
		pos, err := h.enqueue(s, v.QueueSystem)
		if err != nil {
			return nil, err
		}
		return QueuePosition{QueueID: v.QueueSystem, Position: pos}, nil
	}
	if h.cfg.RoomFullRedirectURL != "" {
		return Redirect{RedirectURL: h.cfg.RoomFullRedirectURL}, nil
	}
	return nil, coreError(ErrCodeRoomFull, "room is full")
}

// seat links a session to a room slot the room manager already granted.
func (h *Hub) seat(s *session.Session, roomID string) {
	s.SetActiveRoom(roomID)
	if s.ActiveQueueRoomID() == roomID {
		s.SetActiveQueueRoom("")
	}
	h.groups.Group(group.RoomGroup(roomID)).Add(s.ID())
	if !s.IsCounselor() {
		h.startChat(s, roomID)
	}
}

// enqueue puts s in a global queue and returns its position.
func (h *Hub) enqueue(s *session.Session, queueID string) (int, error) {
	pos, err := h.queues.Add(queueID, s.User())
	if err != nil {
		return 0, err
	}
	s.SetActiveQueue(queueID)
	h.groups.Group(group.QueueGroup(queueID)).Add(s.ID())
	h.broadcastQueues()
	return pos, nil
}

// leaveRoom frees the slot held by s, promotes the next waiter and
// pauses the room if its last counselor left.
func (h *Hub) leaveRoom(s *session.Session, roomID string) error {
	res, err := h.rooms.RemoveUser(roomID, s.ID())
	if err != nil {
		return err
	}
	if !res.Removed {
		return room.ErrNotInRoom
	}
	if s.ActiveRoomID() == roomID {
		s.SetActiveRoom("")
	}
	h.groups.Group(group.RoomGroup(roomID)).Remove(s.ID())
	h.endChat(s)

	if res.Promoted != nil {
		h.promote(roomID, res.Promoted)
		h.notifyRoomQueue(roomID)
	}
	if s.IsCounselor() && !h.rooms.HasCounselor(roomID) {
		h.autoPause(roomID)
	}
	h.broadcastRoom(roomID)

	if r, ok := h.rooms.Get(roomID); ok && isGlobalQueue(r.QueueSystem()) {
		h.drainQueue(r.QueueSystem())
	}
	h.broadcastRoomList()
	return nil
}

// promote seats a waiter the room manager admitted into a freed slot. A
// waiter without a session gives its slot to the next one.
func (h *Hub) promote(roomID string, promoted *session.User) {
	for promoted != nil {
		if target, ok := h.sessions[promoted.ClientID]; ok {
			h.seat(target, roomID)
			if err := target.Remote(RemotePromoted, Promotion{RoomID: roomID}); err != nil {
				h.log.Debug().Err(err).Str("client_id", target.ID()).Msg("notify promotion")
			}
			return
		}
		res, err := h.rooms.RemoveUser(roomID, promoted.ClientID)
		if err != nil {
			return
		}
		promoted = res.Promoted
	}
}

// drainQueue admits waiters of a global queue into the oldest rooms with
// free slots.
func (h *Hub) drainQueue(queueID string) {
	changed := false
	for {
		roomID, ok := h.rooms.FirstWithFreeSlot(queueID)
		if !ok {
			break
		}
		u, ok := h.queues.PopNext(queueID)
		if !ok {
			break
		}
		changed = true
		h.groups.Group(group.QueueGroup(queueID)).Remove(u.ClientID)

		target, ok := h.sessions[u.ClientID]
		if !ok {
			continue
		}
		target.SetActiveQueue("")
		res, err := h.rooms.AddUser(roomID, target.User())
		if err != nil || res.Status != room.Joined {
			h.log.Warn().Err(err).Str("client_id", u.ClientID).Str("room_id", roomID).Msg("promotion from queue failed")
			continue
		}
		h.seat(target, roomID)
		if err := target.Remote(RemotePromoted, Promotion{RoomID: roomID}); err != nil {
			h.log.Debug().Err(err).Str("client_id", target.ID()).Msg("notify promotion")
		}
		h.broadcastRoom(roomID)
	}
	if changed {
		h.notifyGlobalQueue(queueID)
		h.broadcastQueues()
		h.broadcastRoomList()
	}
}

func (h *Hub) notifyRoomQueue(roomID string) {
	for i, u := range h.rooms.Queue(roomID) {
		if s, ok := h.sessions[u.ClientID]; ok {
			_ = s.Remote(RemoteQueuePosition, QueuePosition{RoomID: roomID, Position: i})
		}
	}
}

func (h *Hub) notifyGlobalQueue(queueID string) {
	v, err := h.queues.View(queueID)
	if err != nil {
		return
	}
	for i, u := range v.Users {
		if s, ok := h.sessions[u.ClientID]; ok {
			_ = s.Remote(RemoteQueuePosition, QueuePosition{QueueID: queueID, Position: i})
		}
	}
}

func (h *Hub) leaveRoomQueue(s *session.Session) bool {
	roomID := s.ActiveQueueRoomID()
	if roomID == "" {
		return false
	}
	s.SetActiveQueueRoom("")
	removed, err := h.rooms.RemoveFromQueue(roomID, s.ID())
	if err != nil || !removed {
		return false
	}
	h.notifyRoomQueue(roomID)
	h.broadcastRoomList()
	return true
}

func (h *Hub) leaveGlobalQueue(s *session.Session) bool {
	queueID := s.ActiveQueueID()
	if queueID == "" {
		return false
	}
	s.SetActiveQueue("")
	h.groups.Group(group.QueueGroup(queueID)).Remove(s.ID())
	if !h.queues.Remove(queueID, s.ID()) {
		return false
	}
	h.notifyGlobalQueue(queueID)
	h.broadcastQueues()
	return true
}

// leaveEverything drops every room slot and queue entry held by s.
func (h *Hub) leaveEverything(s *session.Session) {
	if roomID := s.ActiveRoomID(); roomID != "" {
		if err := h.leaveRoom(s, roomID); err != nil {
			s.SetActiveRoom("")
		}
	}
	h.leaveRoomQueue(s)
	h.leaveGlobalQueue(s)
}

func (h *Hub) autoPause(roomID string) {
	if _, err := h.rooms.Pause(roomID); err != nil {
		return
	}
	h.log.Info().Str("room_id", roomID).Msg("room paused, no counselor left")
	h.announce(roomID, "The counselor has left the chat. The chat is paused.")
}

// startChat opens a stats row for a guest chat. Best-effort.
func (h *Hub) startChat(s *session.Session, roomID string) {
	now := h.cfg.Now()
	s.StartChat(now)
	if h.store == nil {
		return
	}

	clientID := s.ID()
	p := s.Profile()
	stats := store.ChatStats{
		ClientID:  clientID,
		RoomID:    roomID,
		Gender:    p.Gender,
		Age:       p.Age,
		City:      p.City,
		Country:   p.Country,
		StartedAt: now,
	}
	h.async(func(ctx context.Context) func() {
		id, err := h.store.RecordStats(ctx, &stats)
		if err != nil {
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("record chat stats")
			return nil
		}
		return func() {
			if cur, ok := h.sessions[clientID]; ok {
				cur.AttachStats(id, now)
			}
		}
	})
}

// endChat records the duration of the current guest chat. Best-effort.
func (h *Hub) endChat(s *session.Session) {
	id, d, ok := s.EndChat(h.cfg.Now())
	if !ok || id == 0 || h.store == nil {
		return
	}
	clientID := s.ID()
	h.async(func(ctx context.Context) func() {
		if err := h.store.RecordChatDuration(ctx, id, d); err != nil {
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("record chat duration")
		}
		return nil
	})
}
