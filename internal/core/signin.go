package core

import (
	"context"
	"strings"

	"github.com/vovakirdan/counselchat/internal/auth"
	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/session"
	"github.com/vovakirdan/counselchat/internal/store"
)

type signInArgs struct {
	session.Profile
	Username    string `json:"username" validate:"max=64"`
	Password    string `json:"password" validate:"max=256"`
	ResumeToken string `json:"resumeToken"`
}

// SignInResult is the reply to signIn.
type SignInResult struct {
	ClientID    string          `json:"clientId"`
	ResumeToken string          `json:"resumeToken,omitempty"`
	Resumed     bool            `json:"resumed"`
	Account     auth.Account    `json:"account"`
	Profile     session.Profile `json:"profile"`
}

func (h *Hub) signIn(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[signInArgs](h, c)
	if !ok {
		return
	}
	// An identity already bound to this connection, or one being
	// authenticated, must not be replaced or doubled.
	if s.SignedIn() || s.SigningIn() {
		c.Reply(nil, coreError(ErrCodeBadRequest, "already signed in"))
		return
	}
	if args.ResumeToken != "" && h.resume(c, s, args.ResumeToken) {
		return
	}
	s.BeginSignIn()

	profile := args.Profile
	profile.Nickname = strings.TrimSpace(profile.Nickname)
	profile.City, profile.Country = "", ""
	creds := auth.Credentials{
		Username:   args.Username,
		Password:   args.Password,
		AccessCode: profile.AccessCode,
	}

	h.async(func(ctx context.Context) func() {
		acc, err := h.auth.Authenticate(ctx, creds)
		return func() {
			if h.sessions[s.ID()] != s {
				c.Reply(nil, coreError(ErrCodeUnauthorized, "session is gone"))
				return
			}
			if s.SignedIn() {
				c.Reply(nil, coreError(ErrCodeBadRequest, "already signed in"))
				return
			}
			if err != nil {
				s.AbortSignIn()
				h.log.Warn().Err(err).Str("client_id", s.ID()).Msg("sign-in failed")
				c.Reply(nil, &CoreError{Code: ErrCodeSignInFailed, Message: "sign-in failed", Fatal: true})
				return
			}
			h.completeSignIn(c, s, acc, profile)
		}
	})
}

func (h *Hub) completeSignIn(c *group.Call, s *session.Session, acc auth.Account, profile session.Profile) {
	role := session.RoleGuest
	if acc.IsAdmin {
		role = session.RoleCounselor
	}
	if profile.Nickname == "" {
		profile.Nickname = acc.Name
	}
	profile.AccessCode = acc.AccessCode
	s.SignIn(acc.ID, role, profile)

	id := s.ID()
	h.accounts[id] = acc
	h.groups.Group(group.SignedIn).Add(id)
	if s.IsCounselor() {
		h.groups.Group(group.Counselors).Add(id)
	} else {
		h.groups.Group(group.Guests).Add(id)
		h.recordScreening(s)
	}

	token, err := h.auth.IssueResumeToken(id, acc)
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", id).Msg("issue resume token")
	}

	h.log.Info().
		Str("client_id", id).
		Str("account_id", acc.ID).
		Bool("counselor", s.IsCounselor()).
		Msg("client signed in")

	c.Reply(SignInResult{
		ClientID:    id,
		ResumeToken: token,
		Account:     acc,
		Profile:     s.Profile(),
	}, nil)

	views := h.rooms.List()
	if s.IsCounselor() {
		_ = s.Remote(RemoteRoomList, views)
		_ = s.Remote(RemoteQueueUpdated, h.queues.List())
	} else {
		_ = s.Remote(RemoteRoomList, PublicRooms(views))
	}
	h.broadcastOnlineCounts()
}

// resume hands the identity named by a resume token to s. It reports false
// when the token does not lead to a live session, in which case sign-in
// proceeds normally.
func (h *Hub) resume(c *group.Call, s *session.Session, token string) bool {
	claims, err := h.auth.ParseResumeToken(token)
	if err != nil {
		h.log.Debug().Err(err).Str("client_id", s.ID()).Msg("resume token rejected")
		return false
	}
	old, ok := h.sessions[claims.ClientID]
	if !ok || old == s || !old.SignedIn() || s.SignedIn() {
		return false
	}
	if _, blocked := h.blocked[old.ID()]; blocked {
		return false
	}

	prevID := s.ID()
	_ = old.Remote(RemoteSessionSuperseded)
	if err := s.TakeOver(old, h.cfg.Now()); err != nil {
		h.log.Warn().Err(err).Str("client_id", claims.ClientID).Msg("session takeover failed")
		return false
	}

	delete(h.sessions, prevID)
	delete(h.blocked, prevID)
	h.groups.Unregister(prevID)

	id := s.ID()
	h.sessions[id] = s
	h.groups.Register(id, s)

	h.log.Info().
		Str("client_id", id).
		Str("connection", prevID).
		Msg("session resumed on new connection")

	h.presenceChanged(s)
	h.broadcastOnlineCounts()

	acc := h.accounts[id]
	fresh, err := h.auth.IssueResumeToken(id, acc)
	if err != nil {
		h.log.Warn().Err(err).Str("client_id", id).Msg("issue resume token")
	}
	c.Reply(SignInResult{
		ClientID:    id,
		ResumeToken: fresh,
		Resumed:     true,
		Account:     acc,
		Profile:     s.Profile(),
	}, nil)

	h.resync(s)
	return true
}

// resync replays the room and queue state of s to its new transport.
func (h *Hub) resync(s *session.Session) {
	if roomID := s.ActiveRoomID(); roomID != "" {
		if v, err := h.rooms.View(roomID); err == nil {
			_ = s.Remote(RemoteRoomUpdated, v)
		}
	}
	if roomID := s.ActiveQueueRoomID(); roomID != "" {
		if pos, ok := h.rooms.QueuePosition(roomID, s.ID()); ok {
			_ = s.Remote(RemoteQueuePosition, QueuePosition{RoomID: roomID, Position: pos})
		}
	}
	if queueID := s.ActiveQueueID(); queueID != "" {
		if pos, ok := h.queues.Position(queueID, s.ID()); ok {
			_ = s.Remote(RemoteQueuePosition, QueuePosition{QueueID: queueID, Position: pos})
		}
	}
}

// recordScreening stores the screening answers given at sign-in. Best-effort.
func (h *Hub) recordScreening(s *session.Session) {
	p := s.Profile()
	if h.store == nil || len(p.Screening) == 0 {
		return
	}
	clientID := s.ID()
	answers := make([]store.ScreeningAnswer, 0, len(p.Screening))
	for _, a := range p.Screening {
		answers = append(answers, store.ScreeningAnswer{ClientID: clientID, Question: a.Question, Answer: a.Answer})
	}
	h.async(func(ctx context.Context) func() {
		if err := h.store.RecordScreening(ctx, answers); err != nil {
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("record screening")
		}
		return nil
	})
}
