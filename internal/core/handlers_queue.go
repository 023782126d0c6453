package core

import (
	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/queue"
	"github.com/vovakirdan/counselchat/internal/session"
)

type queueArgs struct {
	QueueID string `json:"queueId" validate:"required"`
}

type queueActiveArgs struct {
	QueueID string `json:"queueId" validate:"required"`
	Active  *bool  `json:"active" validate:"required"`
}

type createQueueArgs struct {
	Name string `json:"name" validate:"required"`
}

func (h *Hub) joinQueue(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[queueArgs](h, c)
	if !ok {
		return
	}
	if s.ActiveQueueID() == args.QueueID {
		pos, _ := h.queues.Position(args.QueueID, s.ID())
		c.Reply(QueuePosition{QueueID: args.QueueID, Position: pos}, nil)
		return
	}
	qv, err := h.queues.View(args.QueueID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	// a closed queue must not cost the caller its current seat
	if !qv.Active {
		c.Reply(nil, queue.ErrInactive)
		return
	}

	h.leaveEverything(s)
	if _, err := h.enqueue(s, args.QueueID); err != nil {
		c.Reply(nil, err)
		return
	}
	h.drainQueue(args.QueueID)

	if roomID := s.ActiveRoomID(); roomID != "" {
		c.Reply(Promotion{RoomID: roomID}, nil)
		return
	}
	pos, _ := h.queues.Position(args.QueueID, s.ID())
	c.Reply(QueuePosition{QueueID: args.QueueID, Position: pos}, nil)
}

func (h *Hub) leaveQueue(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[queueArgs](h, c)
	if !ok {
		return
	}
	if s.ActiveQueueID() != args.QueueID || !h.leaveGlobalQueue(s) {
		c.Reply(nil, coreError(ErrCodeNotQueued, "not in this queue"))
		return
	}
	c.Reply(ReplyOK, nil)
}

func (h *Hub) createQueue(c *group.Call) {
	args, ok := bindArgs[createQueueArgs](h, c)
	if !ok {
		return
	}
	v, err := h.queues.Create(args.Name)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.log.Info().Str("queue_id", v.ID).Str("name", v.Name).Msg("queue created")
	h.broadcastQueues()
	c.Reply(v, nil)
}

func (h *Hub) deleteQueue(c *group.Call) {
	args, ok := bindArgs[queueArgs](h, c)
	if !ok {
		return
	}
	drained, err := h.queues.Delete(args.QueueID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.evictQueue(args.QueueID, drained)
	h.log.Info().Str("queue_id", args.QueueID).Int("evicted", len(drained)).Msg("queue deleted")
	c.Reply(nil, nil)
}

// setQueueActive opens or closes a queue to new waiters. Clients already
// waiting keep their place.
func (h *Hub) setQueueActive(c *group.Call) {
	args, ok := bindArgs[queueActiveArgs](h, c)
	if !ok {
		return
	}
	if err := h.queues.SetActive(args.QueueID, *args.Active); err != nil {
		c.Reply(nil, err)
		return
	}
	v, err := h.queues.View(args.QueueID)
	if err != nil {
		c.Reply(nil, err)
		return
	}
	h.log.Info().Str("queue_id", v.ID).Bool("active", v.Active).Msg("queue activity changed")
	h.broadcastQueues()
	c.Reply(v, nil)
}

// flushQueue drains a global queue whose rooms are all gone.
func (h *Hub) flushQueue(queueID string) {
	drained, err := h.queues.Flush(queueID)
	if err != nil {
		return
	}
	h.evictQueue(queueID, drained)
}

func (h *Hub) evictQueue(queueID string, drained []session.User) {
	for _, u := range drained {
		if s, ok := h.sessions[u.ClientID]; ok && s.ActiveQueueID() == queueID {
			s.SetActiveQueue("")
			_ = s.Remote(RemoteQueueFlushed, QueueClosed{QueueID: queueID})
		}
	}
	h.groups.Group(group.QueueGroup(queueID)).Clear()
	h.broadcastQueues()
}
