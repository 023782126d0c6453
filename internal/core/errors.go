package core

import (
	"errors"

	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/queue"
	"github.com/vovakirdan/counselchat/internal/room"
)

// Error codes sent to clients.
const (
	ErrCodeRoomNotFound   = "room_not_found"
	ErrCodeQueueNotFound  = "queue_not_found"
	ErrCodeQueueInactive  = "queue_inactive"
	ErrCodeClientNotFound = "client_not_found"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeNotQueued      = "not_queued"
	ErrCodeBadRequest     = "bad_request"
	ErrCodeUnauthorized   = "unauthorized"
	ErrCodeNoPermission   = "no_permission"
	ErrCodeUnknownMethod  = "unknown_method"
	ErrCodeMuted          = "muted"
	ErrCodeRoomPaused     = "room_paused"
	ErrCodeAlreadyPaused  = "already_paused"
	ErrCodeNotPaused      = "not_paused"
	ErrCodeRoomFull       = "room_full"
	ErrCodeInvalidBanCode = "invalid_ban_code"
	ErrCodeSignInFailed   = "signin_failed"
	ErrCodeInternal       = "internal"
)

var (
	// ErrClientClosed is returned when pushing to a closed client.
	ErrClientClosed = errors.New("client closed")
	// ErrSlowConsumer is returned when a client's outbound buffer is full.
	ErrSlowConsumer = errors.New("client outbound buffer full")
	// ErrHubStopped is returned by queries issued after Run has returned.
	ErrHubStopped = errors.New("hub stopped")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
	// Fatal asks the client to show a blocking dialog and reload.
	Fatal bool
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// toCoreError maps component errors onto client-facing codes.
func toCoreError(err error) *CoreError {
	if err == nil {
		return nil
	}
	var ce *CoreError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return coreError(ErrCodeRoomNotFound, "room not found")
	case errors.Is(err, room.ErrNotInRoom):
		return coreError(ErrCodeNotInRoom, "not in room")
	case errors.Is(err, room.ErrAlreadyPaused):
		return coreError(ErrCodeAlreadyPaused, "room is already paused")
	case errors.Is(err, room.ErrNotPaused):
		return coreError(ErrCodeNotPaused, "room is not paused")
	case errors.Is(err, room.ErrInvalidAttributes), errors.Is(err, queue.ErrInvalidName):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, queue.ErrQueueNotFound):
		return coreError(ErrCodeQueueNotFound, "queue not found")
	case errors.Is(err, queue.ErrInactive):
		return coreError(ErrCodeQueueInactive, "queue is not accepting clients")
	case errors.Is(err, group.ErrNoPermission):
		return coreError(ErrCodeNoPermission, "no permission")
	case errors.Is(err, group.ErrUnknownMethod):
		return coreError(ErrCodeUnknownMethod, "unknown method")
	default:
		return coreError(ErrCodeInternal, "internal error")
	}
}
