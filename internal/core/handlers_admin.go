package core

import (
	"context"
	"errors"
	"strings"

	"github.com/vovakirdan/counselchat/internal/group"
	"github.com/vovakirdan/counselchat/internal/store"
	"github.com/vovakirdan/counselchat/internal/utils"
)

const reportListLimit = 100

type reportArgs struct {
	ClientID string `json:"clientId" validate:"required"`
	Reason   string `json:"reason" validate:"required,max=1000"`
}

type banArgs struct {
	ClientID string `json:"clientId" validate:"required"`
	BanCode  string `json:"banCode" validate:"required"`
	Reason   string `json:"reason" validate:"max=1000"`
}

// BanCode is the reply to generateBanCode.
type BanCode struct {
	Code string `json:"code"`
}

func (h *Hub) reportUser(c *group.Call) {
	s, ok := h.caller(c)
	if !ok {
		return
	}
	args, ok := bindArgs[reportArgs](h, c)
	if !ok {
		return
	}
	t, ok := h.target(c, args.ClientID)
	if !ok {
		return
	}
	if h.store == nil {
		c.Reply(nil, coreError(ErrCodeInternal, "reports are not available"))
		return
	}

	report := store.Report{
		ClientName: t.Profile().Nickname,
		Reason:     strings.TrimSpace(args.Reason),
		ReportedBy: s.Profile().Nickname,
		CreatedAt:  h.cfg.Now(),
	}
	if v, err := h.rooms.View(t.ActiveRoomID()); err == nil {
		report.RoomName = v.Name
	}

	h.async(func(ctx context.Context) func() {
		err := h.store.CreateReport(ctx, &report)
		return func() {
			if err != nil {
				h.log.Error().Err(err).Str("client_id", args.ClientID).Msg("create report")
				c.Reply(nil, coreError(ErrCodeInternal, "could not save report"))
				return
			}
			h.log.Info().
				Int64("report_id", report.ID).
				Str("client_id", args.ClientID).
				Str("by", c.ClientID).
				Msg("client reported")
			h.groups.Group(group.Counselors).Remote(RemoteReportReceived, report)
			c.Reply(ReplyOK, nil)
		}
	})
}

func (h *Hub) banUser(c *group.Call) {
	args, ok := bindArgs[banArgs](h, c)
	if !ok {
		return
	}
	t, ok := h.target(c, args.ClientID)
	if !ok {
		return
	}
	if h.store == nil || h.bans == nil {
		c.Reply(nil, coreError(ErrCodeInternal, "bans are not available"))
		return
	}

	digest := h.bans.Digest(t.Meta().IP)
	ban := store.Ban{
		Digest:    digest,
		Reason:    strings.TrimSpace(args.Reason),
		CreatedAt: h.cfg.Now(),
	}
	h.async(func(ctx context.Context) func() {
		err := h.store.ConsumeBanCode(ctx, args.BanCode)
		if err == nil {
			err = h.store.AddBan(ctx, &ban)
		}
		return func() {
			switch {
			case errors.Is(err, store.ErrNotFound):
				c.Reply(nil, coreError(ErrCodeInvalidBanCode, "ban code is invalid or already used"))
				return
			case err != nil:
				h.log.Error().Err(err).Str("client_id", args.ClientID).Msg("ban client")
				c.Reply(nil, coreError(ErrCodeInternal, "could not ban client"))
				return
			}

			h.bans.Add(digest)
			h.log.Info().Str("client_id", args.ClientID).Str("by", c.ClientID).Msg("client banned")
			if cur, ok := h.sessions[args.ClientID]; ok {
				h.reject(cur, RemoteSetIsBanned)
			}
			c.Reply(ReplyOK, nil)
		}
	})
}

func (h *Hub) generateBanCode(c *group.Call) {
	acc, ok := h.accounts[c.ClientID]
	if !ok || !acc.CanGenerateBanCode {
		c.Reply(nil, coreError(ErrCodeNoPermission, "not allowed to generate ban codes"))
		return
	}
	if h.store == nil {
		c.Reply(nil, coreError(ErrCodeInternal, "bans are not available"))
		return
	}

	code := utils.NewID()
	h.async(func(ctx context.Context) func() {
		err := h.store.CreateBanCode(ctx, code, acc.Name)
		return func() {
			if err != nil {
				h.log.Error().Err(err).Msg("create ban code")
				c.Reply(nil, coreError(ErrCodeInternal, "could not create ban code"))
				return
			}
			c.Reply(BanCode{Code: code}, nil)
		}
	})
}

func (h *Hub) getInvites(c *group.Call) {
	if h.store == nil {
		c.Reply([]*store.Invite{}, nil)
		return
	}
	h.async(func(ctx context.Context) func() {
		invites, err := h.store.ListInvites(ctx)
		return func() {
			if err != nil {
				h.log.Error().Err(err).Msg("list invites")
				c.Reply(nil, coreError(ErrCodeInternal, "could not list invites"))
				return
			}
			c.Reply(invites, nil)
		}
	})
}

func (h *Hub) getReports(c *group.Call) {
	if h.store == nil {
		c.Reply([]*store.Report{}, nil)
		return
	}
	h.async(func(ctx context.Context) func() {
		reports, err := h.store.ListReports(ctx, reportListLimit)
		return func() {
			if err != nil {
				h.log.Error().Err(err).Msg("list reports")
				c.Reply(nil, coreError(ErrCodeInternal, "could not list reports"))
				return
			}
			c.Reply(reports, nil)
		}
	})
}
