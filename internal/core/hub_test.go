package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/geo"
	"github.com/vovakirdan/counselchat/internal/queue"
	"github.com/vovakirdan/counselchat/internal/room"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store"
)

func mustGeoTable(t *testing.T) *geo.Table {
	t.Helper()
	table, err := geo.NewTable([]config.GeoEntry{
		{CIDR: "203.0.113.0/24", City: "Paris", Country: "FR"},
		{CIDR: "198.51.100.0/24", City: "Berlin", Country: "DE"},
	})
	require.NoError(t, err)
	return table
}

func allowOnly(countries ...string) geo.Policy { return geo.NewPolicy(countries) }

func createRoom(t *testing.T, h *testHub, c *Client, args map[string]any) room.View {
	t.Helper()
	v, ok := h.invokeOK(t, c, MethodCreateRoom, args).(room.View)
	require.True(t, ok)
	return v
}

func TestSignInAndGate(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", true)

	anon := h.connect("192.0.2.10")
	ev := h.invoke(t, anon, MethodChangeRoom, map[string]any{"roomId": "x"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNoPermission, ev.Error.Code)

	ev = h.invoke(t, anon, "launchRockets", nil)
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeUnknownMethod, ev.Error.Code)

	guest := h.connect("192.0.2.11")
	res := h.signInGuest(t, guest, "  Kim ")
	assert.Equal(t, guest.ID, res.ClientID)
	assert.Equal(t, "Kim", res.Profile.Nickname)
	assert.NotEmpty(t, res.ResumeToken)
	assert.False(t, res.Account.IsAdmin)

	ev = h.invoke(t, guest, MethodSignIn, map[string]any{"nickname": "again"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeBadRequest, ev.Error.Code)

	ev = h.invoke(t, guest, MethodCreateRoom, map[string]any{"name": "Mine", "maxSize": 2})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNoPermission, ev.Error.Code)

	ev = h.invoke(t, guest, MethodChangeRoom, map[string]any{})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeBadRequest, ev.Error.Code)

	bad := h.connect("192.0.2.12")
	ev = h.invoke(t, bad, MethodSignIn, map[string]any{"username": "anna", "password": "wrong"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeSignInFailed, ev.Error.Code)
	assert.True(t, ev.Error.Fatal)

	counselor := h.connect("192.0.2.13")
	cres := h.signInCounselor(t, counselor, "anna", "s3cret")
	assert.True(t, cres.Account.IsAdmin)
	assert.Equal(t, "anna", cres.Profile.Nickname, "nickname falls back to the account name")

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, st.Online.Connected)
	assert.Equal(t, 2, st.Online.SignedIn)
	assert.Equal(t, 1, st.Online.Counselors)
	assert.Equal(t, 1, st.Online.Guests)
}

func TestRoomChatAndPrivateQueue(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 2, "queueSystem": room.QueuePrivate})
	require.Equal(t, ReplyOK, h.invokeOK(t, counselor, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	g1 := h.connect("192.0.2.2")
	h.signInGuest(t, g1, "first")
	require.Equal(t, ReplyOK, h.invokeOK(t, g1, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	g2 := h.connect("192.0.2.3")
	h.signInGuest(t, g2, "second")
	assert.Equal(t, QueuePosition{RoomID: r.ID, Position: 0}, h.invokeOK(t, g2, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	g3 := h.connect("192.0.2.4")
	h.signInGuest(t, g3, "third")
	assert.Equal(t, QueuePosition{RoomID: r.ID, Position: 1}, h.invokeOK(t, g3, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	// asking again returns the same rank
	assert.Equal(t, QueuePosition{RoomID: r.ID, Position: 1}, h.invokeOK(t, g3, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	h.invokeOK(t, g1, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": " hello "})
	msg := mustCallWhere(t, counselor, RemoteReceiveMessage, func(m Message) bool { return !m.System })
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, g1.ID, msg.ClientID)
	assert.Equal(t, "first", msg.Name)
	assert.NotEmpty(t, msg.ID)

	ev := h.invoke(t, g2, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "me too"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNotInRoom, ev.Error.Code)

	ev = h.invoke(t, g2, MethodRemoveUserFromRoom, map[string]any{"roomId": r.ID, "clientId": g1.ID})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNoPermission, ev.Error.Code)

	require.Equal(t, ReplyOK, h.invokeOK(t, g1, MethodRemoveUserFromRoom, map[string]any{"roomId": r.ID, "clientId": g1.ID}))

	promo := mustCallWhere(t, g2, RemotePromoted, func(Promotion) bool { return true })
	assert.Equal(t, r.ID, promo.RoomID)
	pos := mustCallWhere(t, g3, RemoteQueuePosition, func(QueuePosition) bool { return true })
	assert.Equal(t, 0, pos.Position)

	v, err := h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.True(t, hasUser(v.Users, g2.ID))
	assert.False(t, hasUser(v.Users, g1.ID))
	assert.Equal(t, 1, v.QueueLength)

	require.Equal(t, ReplyOK, h.invokeOK(t, g3, MethodRemoveUserFromQueue, map[string]any{"roomId": r.ID, "clientId": g3.ID}))
	ev = h.invoke(t, g3, MethodRemoveUserFromQueue, map[string]any{"roomId": r.ID, "clientId": g3.ID})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNotQueued, ev.Error.Code)
}

func TestRoomFullWithoutQueue(t *testing.T) {
	h := newTestHub(t, func(cfg *Config, _ *Deps) { cfg.RoomFullRedirectURL = "https://example.org/busy" })
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Tiny", "maxSize": 1})

	g1 := h.connect("192.0.2.2")
	h.signInGuest(t, g1, "first")
	require.Equal(t, ReplyOK, h.invokeOK(t, g1, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	g2 := h.connect("192.0.2.3")
	h.signInGuest(t, g2, "second")
	assert.Equal(t, Redirect{RedirectURL: "https://example.org/busy"}, h.invokeOK(t, g2, MethodChangeRoom, map[string]any{"roomId": r.ID}))
}

func TestAutoPauseWhenCounselorLeaves(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})
	h.invokeOK(t, counselor, MethodChangeRoom, map[string]any{"roomId": r.ID})

	guest := h.connect("192.0.2.2")
	h.signInGuest(t, guest, "kim")
	h.invokeOK(t, guest, MethodChangeRoom, map[string]any{"roomId": r.ID})

	h.invokeOK(t, counselor, MethodRemoveUserFromRoom, map[string]any{"roomId": r.ID, "clientId": counselor.ID})
	mustCallWhere(t, guest, RemoteRoomUpdated, func(v room.View) bool { return v.Paused })

	ev := h.invoke(t, guest, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "anyone?"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeRoomPaused, ev.Error.Code)

	ev = h.invoke(t, counselor, MethodPauseRoom, map[string]any{"roomId": r.ID})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeAlreadyPaused, ev.Error.Code)

	h.invokeOK(t, counselor, MethodChangeRoom, map[string]any{"roomId": r.ID})
	v, ok := h.invokeOK(t, counselor, MethodUnpauseRoom, map[string]any{"roomId": r.ID}).(room.View)
	require.True(t, ok)
	assert.False(t, v.Paused)

	h.invokeOK(t, guest, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "thanks"})
	msg := mustCallWhere(t, counselor, RemoteReceiveMessage, func(m Message) bool { return m.Text == "thanks" })
	assert.False(t, msg.Counselor)
}

func TestGlobalQueuePromotion(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	q, ok := h.invokeOK(t, counselor, MethodCreateQueue, map[string]any{"name": "Intake"}).(queue.View)
	require.True(t, ok)

	r := createRoom(t, h, counselor, map[string]any{"name": "Room A", "maxSize": 2, "queueSystem": q.ID})
	h.invokeOK(t, counselor, MethodChangeRoom, map[string]any{"roomId": r.ID})

	g1 := h.connect("192.0.2.2")
	h.signInGuest(t, g1, "first")
	assert.Equal(t, Promotion{RoomID: r.ID}, h.invokeOK(t, g1, MethodJoinQueue, map[string]any{"queueId": q.ID}))

	g2 := h.connect("192.0.2.3")
	h.signInGuest(t, g2, "second")
	assert.Equal(t, QueuePosition{QueueID: q.ID, Position: 0}, h.invokeOK(t, g2, MethodJoinQueue, map[string]any{"queueId": q.ID}))

	// a full room with a global queue sends joiners to that queue
	g3 := h.connect("192.0.2.4")
	h.signInGuest(t, g3, "third")
	assert.Equal(t, QueuePosition{QueueID: q.ID, Position: 1}, h.invokeOK(t, g3, MethodChangeRoom, map[string]any{"roomId": r.ID}))

	h.invokeOK(t, g1, MethodRemoveUserFromRoom, map[string]any{"roomId": r.ID, "clientId": g1.ID})

	promo := mustCallWhere(t, g2, RemotePromoted, func(Promotion) bool { return true })
	assert.Equal(t, r.ID, promo.RoomID)
	pos := mustCallWhere(t, g3, RemoteQueuePosition, func(p QueuePosition) bool { return p.QueueID == q.ID })
	assert.Equal(t, 0, pos.Position)

	require.Equal(t, ReplyOK, h.invokeOK(t, g3, MethodLeaveQueue, map[string]any{"queueId": q.ID}))
	ev := h.invoke(t, g3, MethodLeaveQueue, map[string]any{"queueId": q.ID})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNotQueued, ev.Error.Code)

	qv, err := h.Queues().View(q.ID)
	require.NoError(t, err)
	assert.Zero(t, qv.Length)
}

func TestDeleteRoomFlushesWaiters(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 1, "queueSystem": room.QueuePrivate})

	g1 := h.connect("192.0.2.2")
	h.signInGuest(t, g1, "first")
	h.invokeOK(t, g1, MethodChangeRoom, map[string]any{"roomId": r.ID})

	g2 := h.connect("192.0.2.3")
	h.signInGuest(t, g2, "second")
	h.invokeOK(t, g2, MethodChangeRoom, map[string]any{"roomId": r.ID})

	h.invokeOK(t, counselor, MethodDeleteRoom, map[string]any{"roomId": r.ID, "finalMessage": "Closing for today."})

	notice := mustCallWhere(t, g1, RemoteRoomDeleted, func(RoomNotice) bool { return true })
	assert.Equal(t, r.ID, notice.RoomID)
	closed := mustCallWhere(t, g2, RemoteQueueFlushed, func(QueueClosed) bool { return true })
	assert.Equal(t, r.ID, closed.RoomID)

	_, err := h.Rooms().View(r.ID)
	assert.ErrorIs(t, err, room.ErrRoomNotFound)

	ev := h.invoke(t, g1, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "hello?"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeRoomNotFound, ev.Error.Code)
}

func TestModeration(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})
	h.invokeOK(t, counselor, MethodChangeRoom, map[string]any{"roomId": r.ID})

	guest := h.connect("192.0.2.2")
	h.signInGuest(t, guest, "kim")
	h.invokeOK(t, guest, MethodChangeRoom, map[string]any{"roomId": r.ID})

	h.invokeOK(t, counselor, MethodMute, map[string]any{"roomId": r.ID, "clientId": guest.ID})
	mustCallWhere(t, guest, RemoteSetMuted, func(m bool) bool { return m })
	ev := h.invoke(t, guest, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "let me talk"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeMuted, ev.Error.Code)

	h.invokeOK(t, counselor, MethodUnmute, map[string]any{"roomId": r.ID, "clientId": guest.ID})
	h.invokeOK(t, guest, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "thanks"})

	h.invokeOK(t, counselor, MethodWhisper, map[string]any{"clientId": guest.ID, "text": "psst"})
	w := mustCallWhere(t, guest, RemoteReceiveWhisper, func(Message) bool { return true })
	assert.True(t, w.Whisper)
	assert.Equal(t, "psst", w.Text)

	h.invokeOK(t, counselor, MethodRoomDeleteMessage, map[string]any{"roomId": r.ID, "messageId": "m1"})
	del := mustCallWhere(t, guest, RemoteMessageDeleted, func(RoomNotice) bool { return true })
	assert.Equal(t, "m1", del.MessageID)

	h.invokeOK(t, counselor, MethodKick, map[string]any{"roomId": r.ID, "clientId": guest.ID, "message": "bye"})
	kicked := mustCallWhere(t, guest, RemoteKicked, func(RoomNotice) bool { return true })
	assert.Equal(t, "bye", kicked.Message)
	assert.False(t, h.Rooms().Contains(r.ID, guest.ID))
}

func TestBanUser(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", true)
	h.addCounselor(t, "boris", "s3cret", false)

	anna := h.connect("192.0.2.1")
	h.signInCounselor(t, anna, "anna", "s3cret")
	boris := h.connect("192.0.2.2")
	h.signInCounselor(t, boris, "boris", "s3cret")

	ev := h.invoke(t, boris, MethodGenerateBanCode, nil)
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNoPermission, ev.Error.Code)

	code, ok := h.invokeOK(t, anna, MethodGenerateBanCode, nil).(BanCode)
	require.True(t, ok)
	require.NotEmpty(t, code.Code)

	troll := h.connect("10.0.0.5")
	h.signInGuest(t, troll, "troll")
	other := h.connect("10.0.0.6")
	h.signInGuest(t, other, "other")

	require.Equal(t, ReplyOK, h.invokeOK(t, boris, MethodBanUser, map[string]any{"clientId": troll.ID, "banCode": code.Code, "reason": "abuse"}))
	mustCallWhere(t, troll, RemoteSetIsBanned, func(b bool) bool { return b })
	mustClose(t, troll)

	ev = h.invoke(t, boris, MethodBanUser, map[string]any{"clientId": other.ID, "banCode": code.Code})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeInvalidBanCode, ev.Error.Code)

	digests, err := h.store.LoadBans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{h.bans.Digest("10.0.0.5")}, digests)

	again := h.connect("10.0.0.5")
	mustCallWhere(t, again, RemoteSetIsBanned, func(b bool) bool { return b })
	mustClose(t, again)

	require.Eventually(t, func() bool {
		st, err := h.Stats(context.Background())
		return err == nil && st.Online.Guests == 1 && st.BannedDigests == 1
	}, eventTimeout, 10*time.Millisecond)
}

func TestReportsAndInvites(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})

	reporter := h.connect("192.0.2.2")
	h.signInGuest(t, reporter, "kim")
	troll := h.connect("192.0.2.3")
	h.signInGuest(t, troll, "troll")
	h.invokeOK(t, troll, MethodChangeRoom, map[string]any{"roomId": r.ID})

	require.Equal(t, ReplyOK, h.invokeOK(t, reporter, MethodReportUser, map[string]any{"clientId": troll.ID, "reason": "spam"}))
	_ = mustCall(t, counselor, RemoteReportReceived)

	data := h.invokeOK(t, counselor, MethodGetReports, nil)
	require.Len(t, data, 1)

	ev := h.invoke(t, reporter, MethodGetReports, nil)
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeNoPermission, ev.Error.Code)

	ev = h.invoke(t, reporter, MethodReportUser, map[string]any{"clientId": "nobody", "reason": "spam"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeClientNotFound, ev.Error.Code)

	require.NoError(t, h.store.CreateInvite(context.Background(), &store.Invite{
		Token:         "inv-1",
		Name:          "Sam",
		CounselorName: "anna",
		StartsAt:      h.clock.Now(),
		Status:        store.InviteStatusPending,
	}))
	invites, ok := h.invokeOK(t, counselor, MethodGetInvites, nil).([]*store.Invite)
	require.True(t, ok)
	require.Len(t, invites, 1)
	assert.Equal(t, "inv-1", invites[0].Token)

	invited := h.connect("192.0.2.4")
	data = h.invokeOK(t, invited, MethodSignIn, map[string]any{"accessCode": "inv-1"})
	res, ok := data.(SignInResult)
	require.True(t, ok)
	assert.Equal(t, "invite:inv-1", res.Account.ID)
	assert.Equal(t, "Sam", res.Profile.Nickname)
	assert.Equal(t, "inv-1", res.Profile.AccessCode)
}

func TestGeoRejection(t *testing.T) {
	table := mustGeoTable(t)
	h := newTestHub(t, func(_ *Config, deps *Deps) {
		deps.Geo = table
		deps.GeoPolicy = allowOnly("DE")
	})

	outside := h.connect("203.0.113.7")
	mustCallWhere(t, outside, RemoteSetOutsideGeo, func(b bool) bool { return b })
	mustClose(t, outside)

	unknown := h.connect("192.0.2.50")
	h.signInGuest(t, unknown, "kim")

	inside := h.connect("198.51.100.9")
	h.signInGuest(t, inside, "max")

	require.Eventually(t, func() bool {
		st, err := h.Stats(context.Background())
		return err == nil && st.Online.Connected == 2
	}, eventTimeout, 10*time.Millisecond)
}

func TestResumeTakesOverSession(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})

	first := h.connect("192.0.2.2")
	res := h.signInGuest(t, first, "kim")
	h.invokeOK(t, first, MethodChangeRoom, map[string]any{"roomId": r.ID})

	second := h.connect("192.0.2.2")
	data := h.invokeOK(t, second, MethodSignIn, map[string]any{"resumeToken": res.ResumeToken})
	resumed, ok := data.(SignInResult)
	require.True(t, ok)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, res.ClientID, resumed.ClientID)
	assert.Equal(t, "kim", resumed.Profile.Nickname)

	mustCall(t, first, RemoteSessionSuperseded)
	mustClose(t, first)
	mustCallWhere(t, second, RemoteRoomUpdated, func(v room.View) bool { return v.ID == r.ID })

	// the old transport reporting closure must not clean the shared identity up
	h.Detach(first)
	h.invokeOK(t, second, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "still here"})
	msg := mustCallWhere(t, counselor, RemoteReceiveMessage, func(m Message) bool { return m.Text == "still here" })
	assert.Equal(t, res.ClientID, msg.ClientID)

	v, err := h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.MemberCount)

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Online.Connected)
	assert.Equal(t, 1, st.Online.Guests)
}

func TestTimeoutCleansUpOnce(t *testing.T) {
	h := newTestHub(t, func(cfg *Config, _ *Deps) { cfg.SweepInterval = 5 * time.Millisecond })
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})

	guest := h.connect("192.0.2.2")
	h.signInGuest(t, guest, "kim")
	h.invokeOK(t, guest, MethodChangeRoom, map[string]any{"roomId": r.ID})

	h.Detach(guest)
	require.Eventually(t, func() bool {
		v, err := h.Rooms().View(r.ID)
		return err == nil && len(v.Users) == 1 && v.Users[0].Online == session.OnlineReconnecting
	}, eventTimeout, 5*time.Millisecond)

	h.clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool {
		v, err := h.Rooms().View(r.ID)
		return err == nil && v.MemberCount == 0
	}, eventTimeout, 5*time.Millisecond)

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, st.Online.Guests)
}

func TestStatsAfterStop(t *testing.T) {
	hub := NewHub(Config{}, Deps{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	_, err := hub.Stats(context.Background())
	require.NoError(t, err)

	cancel()
	<-done
	_, err = hub.Stats(context.Background())
	assert.ErrorIs(t, err, ErrHubStopped)
}

func TestSignInWhilePendingIsRejected(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	c := h.connect("192.0.2.20")
	first := h.call(t, c, MethodSignIn, map[string]any{"username": "anna", "password": "s3cret"})
	second := h.call(t, c, MethodSignIn, map[string]any{"nickname": "kim"})

	replies := make(map[string]*Event)
	for len(replies) < 2 {
		ev := mustEvent(t, c, func(ev *Event) bool {
			return ev.Kind == EventReply && (ev.CallID == first || ev.CallID == second)
		}, "signIn replies")
		replies[ev.CallID] = ev
	}
	require.Nil(t, replies[first].Error)
	res, ok := replies[first].Data.(SignInResult)
	require.True(t, ok)
	assert.True(t, res.Account.IsAdmin)
	require.NotNil(t, replies[second].Error)
	assert.Equal(t, ErrCodeBadRequest, replies[second].Error.Code)

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OnlineCounts{Connected: 1, SignedIn: 1, Counselors: 1}, st.Online)

	// a failed attempt does not leave the connection stuck
	other := h.connect("192.0.2.21")
	ev := h.invoke(t, other, MethodSignIn, map[string]any{"username": "anna", "password": "wrong"})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeSignInFailed, ev.Error.Code)
	h.signInGuest(t, other, "kim")
}

func TestResumeOnSignedInConnectionIsRejected(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Trio", "maxSize": 3})

	a := h.connect("192.0.2.2")
	resA := h.signInGuest(t, a, "alex")
	b := h.connect("192.0.2.3")
	resB := h.signInGuest(t, b, "bo")
	h.invokeOK(t, b, MethodChangeRoom, map[string]any{"roomId": r.ID})

	ev := h.invoke(t, b, MethodSignIn, map[string]any{"resumeToken": resA.ResumeToken})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeBadRequest, ev.Error.Code)

	v, err := h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.MemberCount)
	assert.True(t, hasUser(v.Users, resB.ClientID))

	// the identity named by the token still belongs to its own connection
	h.invokeOK(t, a, MethodChangeRoom, map[string]any{"roomId": r.ID})
	v, err = h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, v.MemberCount)
	assert.True(t, hasUser(v.Users, resA.ClientID))

	// leaving frees the seat held under b's identity
	h.invokeOK(t, b, MethodRemoveUserFromRoom, map[string]any{"roomId": r.ID, "clientId": resB.ClientID})
	v, err = h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.MemberCount)

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, st.Online.Guests)
}

func TestResumeAfterTransportDrop(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	r := createRoom(t, h, counselor, map[string]any{"name": "Evening", "maxSize": 5})

	first := h.connect("192.0.2.2")
	res := h.signInGuest(t, first, "kim")
	h.invokeOK(t, first, MethodChangeRoom, map[string]any{"roomId": r.ID})

	h.Detach(first)
	require.Eventually(t, func() bool {
		v, err := h.Rooms().View(r.ID)
		return err == nil && len(v.Users) == 1 && v.Users[0].Online == session.OnlineReconnecting
	}, eventTimeout, 5*time.Millisecond)

	second := h.connect("192.0.2.2")
	resumed, ok := h.invokeOK(t, second, MethodSignIn, map[string]any{"resumeToken": res.ResumeToken}).(SignInResult)
	require.True(t, ok)
	assert.True(t, resumed.Resumed)
	assert.Equal(t, res.ClientID, resumed.ClientID)

	updated := mustCallWhere(t, second, RemoteRoomUpdated, func(v room.View) bool {
		return v.ID == r.ID && len(v.Users) == 1 && v.Users[0].Online == session.OnlineActive
	})
	assert.Equal(t, res.ClientID, updated.Users[0].ClientID)

	h.invokeOK(t, second, MethodSendMessageToRoom, map[string]any{"roomId": r.ID, "text": "back again"})
	msg := mustCallWhere(t, counselor, RemoteReceiveMessage, func(m Message) bool { return m.Text == "back again" })
	assert.Equal(t, res.ClientID, msg.ClientID)

	v, err := h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v.MemberCount)

	st, err := h.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Online.Guests)
}

func TestQueueActivation(t *testing.T) {
	h := newTestHub(t)
	h.addCounselor(t, "anna", "s3cret", false)

	counselor := h.connect("192.0.2.1")
	h.signInCounselor(t, counselor, "anna", "s3cret")
	q, ok := h.invokeOK(t, counselor, MethodCreateQueue, map[string]any{"name": "Intake"}).(queue.View)
	require.True(t, ok)
	require.True(t, q.Active)
	r := createRoom(t, h, counselor, map[string]any{"name": "Lobby", "maxSize": 5})

	closed, ok := h.invokeOK(t, counselor, MethodSetQueueActive, map[string]any{"queueId": q.ID, "active": false}).(queue.View)
	require.True(t, ok)
	assert.False(t, closed.Active)
	qv, err := h.Queues().View(q.ID)
	require.NoError(t, err)
	assert.False(t, qv.Active)

	guest := h.connect("192.0.2.2")
	res := h.signInGuest(t, guest, "kim")
	h.invokeOK(t, guest, MethodChangeRoom, map[string]any{"roomId": r.ID})

	ev := h.invoke(t, guest, MethodJoinQueue, map[string]any{"queueId": q.ID})
	require.NotNil(t, ev.Error)
	assert.Equal(t, ErrCodeQueueInactive, ev.Error.Code)
	v, err := h.Rooms().View(r.ID)
	require.NoError(t, err)
	assert.True(t, hasUser(v.Users, res.ClientID), "rejected join keeps the current seat")

	tests := []struct {
		name string
		who  *Client
		args map[string]any
		code string
	}{
		{name: "missing flag", who: counselor, args: map[string]any{"queueId": q.ID}, code: ErrCodeBadRequest},
		{name: "unknown queue", who: counselor, args: map[string]any{"queueId": "nope", "active": true}, code: ErrCodeQueueNotFound},
		{name: "guest", who: guest, args: map[string]any{"queueId": q.ID, "active": true}, code: ErrCodeNoPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := h.invoke(t, tt.who, MethodSetQueueActive, tt.args)
			require.NotNil(t, ev.Error)
			assert.Equal(t, tt.code, ev.Error.Code)
		})
	}

	h.invokeOK(t, counselor, MethodSetQueueActive, map[string]any{"queueId": q.ID, "active": true})
	assert.Equal(t, QueuePosition{QueueID: q.ID, Position: 0}, h.invokeOK(t, guest, MethodJoinQueue, map[string]any{"queueId": q.ID}))
}

func TestStatsReportPingAverage(t *testing.T) {
	h := newTestHub(t)

	c := h.connect("192.0.2.30")
	now := h.clock.Now()
	h.Submit(c, &Command{Kind: CommandPong, SentAt: now.Add(-40 * time.Millisecond)})
	h.Submit(c, &Command{Kind: CommandPong, SentAt: now.Add(-20 * time.Millisecond)})

	require.Eventually(t, func() bool {
		st, err := h.Stats(context.Background())
		return err == nil && st.PingAverageMs == 30
	}, eventTimeout, 5*time.Millisecond)
}
