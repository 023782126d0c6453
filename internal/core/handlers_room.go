package core

import (
	"strings"

	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/room"
	"github.com/vovakirdan/counselchat/internal/utils"
)

type roomArgs struct {
	RoomID string `json:"roomId" validate:"required"`
}

type roomClientArgs struct {
	RoomID   string `json:"roomId" validate:"required"`
	ClientID string `json:"clientId" validate:"required"`
}

type sendMessageArgs struct {
	RoomID string `json:"roomId" validate:"required"`
	Text   string `json:"text" validate:"required,max=4000"`
}

type deleteRoomArgs struct {
	RoomID       string `json:"roomId" validate:"required"`
	FinalMessage string `json:"finalMessage" validate:"max=4000"`
}

type kickArgs struct {
	ClientID string `json:"clientId" validate:"required"`
	Message  string `json:"message" validate:"max=4000"`
	RoomID   string `json:"roomId" validate:"required"`
}

type whisperArgs struct {
	ClientID string `json:"clientId" validate:"required"`
	Text     string `json:"text" validate:"required,max=4000"`
}

type deleteMessageArgs struct {
	RoomID    string `json:"roomId" validate:"required"`
	MessageID string `json:"messageId" validate:"required"`
}

// RoomNotice is the payload of roomDeleted, kicked and message deletions.
type RoomNotice struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
}

func (h *Hub) changeRoom(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[roomArgs](h, c)
	if !ok {
		return
	}
	c.Reply(h.joinRoom(s, args.RoomID))
}

func (h *Hub) sendMessageToRoom(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[sendMessageArgs](h, c)
	if !ok {
		return
	}

	v, err := h.rooms.View(args.RoomID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	if !h.rooms.Contains(args.RoomID, s.ID()) {
		c.Reply(nil, room.ErrNotInRoom)
		return
	}
	if s.Muted() {
		c.Reply(nil, coreError(ErrCodeMuted, "you are muted"))
		return
	}
	if v.Paused && !s.IsCounselor() {
		c.Reply(nil, coreError(ErrCodeRoomPaused, "the chat is paused"))
		return
	}
	text := strings.TrimSpace(args.Text)
	if text == "" {
		c.Reply(nil, coreError(ErrCodeBadRequest, "message is empty"))
		return
	}

	now := h.cfg.Now()
	msg := Message{
		ID:        utils.NewMessageID(now),
		RoomID:    args.RoomID,
		ClientID:  s.ID(),
		Name:      s.Profile().Nickname,
		Counselor: s.IsCounselor(),
		Text:      text,
		CreatedAt: now,
	}
	h.groups.Group(group.RoomGroup(args.RoomID)).Remote(RemoteReceiveMessage, msg)
	c.Reply(msg, nil)
}

func (h *Hub) removeUserFromRoom(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[roomClientArgs](h, c)
	if !ok {
		return
	}
	if args.ClientID != s.ID() {
		c.Reply(nil, coreError(ErrCodeNoPermission, "clients may only remove themselves"))
		return
	}
	if err := h.leaveRoom(s, args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}
	c.Reply(ReplyOK, nil)
}

func (h *Hub) removeUserFromQueue(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[roomClientArgs](h, c)
	if !ok {
		return
	}
	if args.ClientID != s.ID() {
		c.Reply(nil, coreError(ErrCodeNoPermission, "clients may only remove themselves"))
		return
	}
	if _, err := h.rooms.View(args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}
	if s.ActiveQueueRoomID() != args.RoomID || !h.leaveRoomQueue(s) {
		c.Reply(nil, coreError(ErrCodeNotQueued, "not queued for this room"))
		return
	}
	c.Reply(ReplyOK, nil)
}

func (h *Hub) getRoomList(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	views := h.rooms.List()
	if s.IsCounselor() {
		c.Reply(views, nil)
		return
	}
	c.Reply(PublicRooms(views), nil)
}

func (h *Hub) createRoom(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	attrs, ok := bindArgs[room.Attributes](h, c)
	if !ok {
		return
	}
	if isGlobalQueue(attrs.QueueSystem) && !h.queues.Exists(attrs.QueueSystem) {
		c.Reply(nil, coreError(ErrCodeQueueNotFound, "queue not found"))
		return
	}

	v, err := h.rooms.Create(attrs)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.log.Info().
		Str("room_id", v.ID).
		Str("name", v.Name).
		Str("client_id", s.ID()).
		Msg("room created")

	c.Reply(v, nil)
	h.broadcastRoomList()
	if isGlobalQueue(v.QueueSystem) {
		h.drainQueue(v.QueueSystem)
	}
}

func (h *Hub) deleteRoom(c *group.Call) {
	args, ok := bindArgs[deleteRoomArgs](h, c)
	if !ok {
		return
	}
	if _, err := h.rooms.View(args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}

	g := h.groups.Group(group.RoomGroup(args.RoomID))
	if msg := strings.TrimSpace(args.FinalMessage); msg != "" {
		h.announce(args.RoomID, msg)
	}
	g.Remote(RemoteRoomDeleted, RoomNotice{RoomID: args.RoomID, Message: args.FinalMessage})

	v, waiting, err := h.rooms.Delete(args.RoomID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	for _, u := range v.Users {
		if s, ok := h.sessions[u.ClientID]; ok && s.ActiveRoomID() == args.RoomID {
			s.SetActiveRoom("")
			h.endChat(s)
		}
	}
	for _, u := range waiting {
		if s, ok := h.sessions[u.ClientID]; ok && s.ActiveQueueRoomID() == args.RoomID {
			s.SetActiveQueueRoom("")
			_ = s.Remote(RemoteQueueFlushed, QueueClosed{RoomID: args.RoomID})
		}
	}
	g.Clear()

	h.log.Info().Str("room_id", args.RoomID).Str("client_id", c.ClientID).Msg("room deleted")

	if isGlobalQueue(v.QueueSystem) && len(h.rooms.ByQueueSystem(v.QueueSystem)) == 0 {
		h.flushQueue(v.QueueSystem)
	}
	h.broadcastRoomList()
	c.Reply(nil, nil)
}

func (h *Hub) pauseRoom(c *group.Call) {
	args, ok := bindArgs[roomArgs](h, c)
	if !ok {
		return
	}
	v, err := h.rooms.Pause(args.RoomID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.announce(args.RoomID, "The chat has been paused by the counselor.")
	h.broadcastRoom(args.RoomID)
	h.broadcastRoomList()
	c.Reply(v, nil)
}

func (h *Hub) unpauseRoom(c *group.Call) {
	args, ok := bindArgs[roomArgs](h, c)
	if !ok {
		return
	}
	v, err := h.rooms.Unpause(args.RoomID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.announce(args.RoomID, "The chat has been resumed.")
	h.broadcastRoom(args.RoomID)
	h.broadcastRoomList()
	c.Reply(v, nil)
}

func (h *Hub) kick(c *group.Call) {
	args, ok := bindArgs[kickArgs](h, c)
	if !ok {
		return
	}
	t, ok := h.target(c, args.ClientID)
	if !ok {
		return
	}
	if !h.rooms.Contains(args.RoomID, t.ID()) {
		c.Reply(nil, room.ErrNotInRoom)
		return
	}
	_ = t.Remote(RemoteKicked, RoomNotice{RoomID: args.RoomID, Message: args.Message})
	if err := h.leaveRoom(t, args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}
	h.log.Info().
		Str("room_id", args.RoomID).
		Str("client_id", t.ID()).
		Str("by", c.ClientID).
		Msg("client kicked")
	c.Reply(nil, nil)
}

func (h *Hub) mute(c *group.Call)   { h.setMuted(c, true) }
func (h *Hub) unmute(c *group.Call) { h.setMuted(c, false) }

func (h *Hub) setMuted(c *group.Call, muted bool) {
	args, ok := bindArgs[roomClientArgs](h, c)
	if !ok {
		return
	}
	t, ok := h.target(c, args.ClientID)
	if !ok {
		return
	}
	if err := h.rooms.SetMuted(args.RoomID, t.ID(), muted); err != nil {
		c.Reply(nil, err)
		return
	}
	t.SetMuted(muted)
	_ = t.Remote(RemoteSetMuted, muted)
	h.broadcastRoom(args.RoomID)
	c.Reply(nil, nil)
}

func (h *Hub) whisper(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[whisperArgs](h, c)
	if !ok {
		return
	}
	t, ok := h.target(c, args.ClientID)
	if !ok {
		return
	}

	now := h.cfg.Now()
	msg := Message{
		ID:        utils.NewMessageID(now),
		RoomID:    t.ActiveRoomID(),
		ClientID:  s.ID(),
		Name:      s.Profile().Nickname,
		Counselor: true,
		Whisper:   true,
		Text:      strings.TrimSpace(args.Text),
		CreatedAt: now,
	}
	if err := t.Remote(RemoteReceiveWhisper, msg); err != nil {
		c.Reply(nil, coreError(ErrCodeClientNotFound, "client is not reachable"))
		return
	}
	c.Reply(msg, nil)
}

func (h *Hub) roomDeleteMessage(c *group.Call) {
	args, ok := bindArgs[deleteMessageArgs](h, c)
	if !ok {
		return
	}
	if _, err := h.rooms.View(args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}
	h.groups.Group(group.RoomGroup(args.RoomID)).Remote(RemoteMessageDeleted, RoomNotice{RoomID: args.RoomID, MessageID: args.MessageID})
	c.Reply(nil, nil)
}

func (h *Hub) triggerDeleteAllMessages(c *group.Call) {
	args, ok := bindArgs[roomArgs](h, c)
	if !ok {
		return
	}
	if _, err := h.rooms.View(args.RoomID); err != nil {
		c.Reply(nil, err)
		return
	}
	h.groups.Group(group.RoomGroup(args.RoomID)).Remote(RemoteAllMessagesGone, RoomNotice{RoomID: args.RoomID})
	c.Reply(nil, nil)
}
