package core

// Client-side methods invoked by the server.
const (
	RemoteSetIsBanned       = "setIsBanned"
	RemoteSetOutsideGeo     = "setOutsideGeo"
	RemoteOnlineCounts      = "onlineCounts"
	RemoteRoomList          = "roomList"
	RemoteRoomUpdated       = "roomUpdated"
	RemoteRoomDeleted       = "roomDeleted"
	RemoteReceiveMessage    = "receiveMessage"
	RemoteReceiveWhisper    = "receiveWhisper"
	RemoteMessageDeleted    = "messageDeleted"
	RemoteAllMessagesGone   = "allMessagesDeleted"
	RemoteQueueUpdated      = "queueUpdated"
	RemoteQueuePosition     = "queuePosition"
	RemoteQueueFlushed      = "queueFlushed"
	RemotePromoted          = "promoted"
	RemoteKicked            = "kicked"
	RemoteSetMuted          = "setMuted"
	RemoteReportReceived    = "reportReceived"
	RemoteSessionSuperseded = "sessionSuperseded"
)

// Server methods callable by clients.
const (
	MethodSignIn                   = "signIn"
	MethodChangeRoom               = "changeRoom"
	MethodSendMessageToRoom        = "sendMessageToRoom"
	MethodRemoveUserFromRoom       = "removeUserFromRoom"
	MethodRemoveUserFromQueue      = "removeUserFromQueue"
	MethodJoinQueue                = "joinQueue"
	MethodLeaveQueue               = "leaveQueue"
	MethodReportUser               = "reportUser"
	MethodGetRoomList              = "getRoomList"
	MethodCreateRoom               = "createRoom"
	MethodDeleteRoom               = "deleteRoom"
	MethodPauseRoom                = "pauseRoom"
	MethodUnpauseRoom              = "unpauseRoom"
	MethodKick                     = "kick"
	MethodMute                     = "mute"
	MethodUnmute                   = "unmute"
	MethodWhisper                  = "whisper"
	MethodRoomDeleteMessage        = "roomDeleteMessage"
	MethodTriggerDeleteAllMessages = "triggerDeleteAllMessages"
	MethodBanUser                  = "banUser"
	MethodGenerateBanCode          = "generateBanCode"
	MethodCreateQueue              = "createQueue"
	MethodDeleteQueue              = "deleteQueue"
	MethodGetInvites               = "getInvites"
	MethodGetReports               = "getReports"
	MethodSetQueueActive           = "setQueueActive"
)
