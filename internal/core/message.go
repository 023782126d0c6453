package core

import (
	"time"

	"github.com/vovakirdan/counselchat/internal/utils"
)

// Message is the domain model for a chat message. Messages are relayed,
// not stored.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Name      string    `json:"name,omitempty"`
	Counselor bool      `json:"isAdmin"`
	System    bool      `json:"system,omitempty"`
	Whisper   bool      `json:"whisper,omitempty"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

func systemMessage(roomID, text string, now time.Time) Message {
	return Message{
		ID:        utils.NewMessageID(now),
		RoomID:    roomID,
		System:    true,
		Text:      text,
		CreatedAt: now,
	}
}
