package core

import (
	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/session"
)

// registerMethods builds the static dispatch table. Each method is gated
// by membership of the group it is registered on.
func (h *Hub) registerMethods() {
	everyone := h.groups.Group(group.Everyone)
	everyone.AddServerMethod(MethodSignIn, h.signIn)

	signedIn := h.groups.Group(group.SignedIn)
	signedIn.AddServerMethod(MethodChangeRoom, h.changeRoom)
	signedIn.AddServerMethod(MethodSendMessageToRoom, h.sendMessageToRoom)
	signedIn.AddServerMethod(MethodRemoveUserFromRoom, h.removeUserFromRoom)
	signedIn.AddServerMethod(MethodRemoveUserFromQueue, h.removeUserFromQueue)
	signedIn.AddServerMethod(MethodJoinQueue, h.joinQueue)
	signedIn.AddServerMethod(MethodLeaveQueue, h.leaveQueue)
	signedIn.AddServerMethod(MethodReportUser, h.reportUser)
	signedIn.AddServerMethod(MethodGetRoomList, h.getRoomList)

	counselors := h.groups.Group(group.Counselors)
	counselors.AddServerMethod(MethodCreateRoom, h.createRoom)
	counselors.AddServerMethod(MethodDeleteRoom, h.deleteRoom)
	counselors.AddServerMethod(MethodPauseRoom, h.pauseRoom)
	counselors.AddServerMethod(MethodUnpauseRoom, h.unpauseRoom)
	counselors.AddServerMethod(MethodKick, h.kick)
	counselors.AddServerMethod(MethodMute, h.mute)
	counselors.AddServerMethod(MethodUnmute, h.unmute)
	counselors.AddServerMethod(MethodWhisper, h.whisper)
	counselors.AddServerMethod(MethodRoomDeleteMessage, h.roomDeleteMessage)
	counselors.AddServerMethod(MethodTriggerDeleteAllMessages, h.triggerDeleteAllMessages)
	counselors.AddServerMethod(MethodBanUser, h.banUser)
	counselors.AddServerMethod(MethodGenerateBanCode, h.generateBanCode)
	counselors.AddServerMethod(MethodCreateQueue, h.createQueue)
	counselors.AddServerMethod(MethodDeleteQueue, h.deleteQueue)
	counselors.AddServerMethod(MethodSetQueueActive, h.setQueueActive)
	counselors.AddServerMethod(MethodGetInvites, h.getInvites)
	counselors.AddServerMethod(MethodGetReports, h.getReports)
}

// bindArgs decodes and validates call arguments, replying bad_request on failure.
func bindArgs[T any](h *Hub, c *group.Call) (T, bool) {
	var v T
	if err := c.Bind(&v); err != nil {
		c.Reply(nil, coreError(ErrCodeBadRequest, err.Error()))
		return v, false
	}
	if err := h.validate.Struct(v); err != nil {
		c.Reply(nil, coreError(ErrCodeBadRequest, err.Error()))
		return v, false
	}
	return v, true
}

// caller returns the session that issued the call.
func (h *Hub) caller(c *group.Call) (*session.Session, bool) {
	s, ok := h.sessions[c.ClientID]
	if !ok {
		c.Reply(nil, coreError(ErrCodeUnauthorized, "session is gone"))
	}
	return s, ok
}

// target returns the session of another client.
func (h *Hub) target(c *group.Call, clientID string) (*session.Session, bool) {
	s, ok := h.sessions[clientID]
	if !ok {
		c.Reply(nil, coreError(ErrCodeClientNotFound, "client not found"))
	}
	return s, ok
}
