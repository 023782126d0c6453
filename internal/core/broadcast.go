package core

import (
	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/metrics"
	"github.com/vovakirdan/counselchat/internal/room"
)

// RoomSummary is the room projection shown to guests and on the public API.
type RoomSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MaxSize     int    `json:"maxSize"`
	Paused      bool   `json:"paused"`
	MemberCount int    `json:"memberCount"`
	QueueLength int    `json:"queueLength"`
	Full        bool   `json:"full"`
}

// OnlineCounts is broadcast to everyone whenever presence changes.
type OnlineCounts struct {
	Connected  int `json:"connected"`
	SignedIn   int `json:"signedIn"`
	Counselors int `json:"counselors"`
	Guests     int `json:"guests"`
}

// Summarize projects a room for non-counselors.
func Summarize(v room.View) RoomSummary {
	return RoomSummary{
		ID:          v.ID,
		Name:        v.Name,
		MaxSize:     v.MaxSize,
		Paused:      v.Paused,
		MemberCount: v.MemberCount,
		QueueLength: v.QueueLength,
		Full:        v.MaxSize > 0 && v.MemberCount >= v.MaxSize,
	}
}

// PublicRooms lists the rooms guests may pick from, oldest first.
func PublicRooms(views []room.View) []RoomSummary {
	out := make([]RoomSummary, 0, len(views))
	for _, v := range views {
		if v.Private {
			continue
		}
		out = append(out, Summarize(v))
	}
	return out
}

func (h *Hub) onlineCounts() OnlineCounts {
	return OnlineCounts{
		Connected:  h.groups.Group(group.Everyone).Count(),
		SignedIn:   h.groups.Group(group.SignedIn).Count(),
		Counselors: h.groups.Group(group.Counselors).Count(),
		Guests:     h.groups.Group(group.Guests).Count(),
	}
}

func (h *Hub) broadcastOnlineCounts() {
	h.groups.Group(group.Everyone).Remote(RemoteOnlineCounts, h.onlineCounts())
}

// broadcastRoom sends the current state of a room to its members.
func (h *Hub) broadcastRoom(roomID string) {
	v, err := h.rooms.View(roomID)
	if err != nil {
		return
	}
	h.groups.Group(group.RoomGroup(roomID)).Remote(RemoteRoomUpdated, v)
}

func (h *Hub) broadcastRoomList() {
	views := h.rooms.List()
	metrics.Rooms.Set(float64(len(views)))
	h.groups.Group(group.Counselors).Remote(RemoteRoomList, views)
	h.groups.Group(group.Guests).Remote(RemoteRoomList, PublicRooms(views))
}

func (h *Hub) broadcastQueues() {
	views := h.queues.List()
	var queued int
	for _, v := range views {
		queued += v.Length
	}
	metrics.Queued.Set(float64(queued))
	h.groups.Group(group.Counselors).Remote(RemoteQueueUpdated, views)
}

// announce posts a system message into a room.
func (h *Hub) announce(roomID, text string) {
	h.groups.Group(group.RoomGroup(roomID)).Remote(RemoteReceiveMessage, systemMessage(roomID, text, h.cfg.Now()))
}
