package core

import (
	"context"
	"errors"
	"time"

	"github.com/vovakirdan/counselchat/internal/geo"
	"github.com/vovakirdan/counselchat/internal/metrics"
	"github.com/vovakirdan/counselchat/internal/session"
)

const geoLookupTimeout = 5 * time.Second

// admit screens a freshly connected session against the ban list and the
// geo-fence. The geo lookup runs off the loop.
func (h *Hub) admit(s *session.Session) {
	ip := s.Meta().IP
	if h.bans != nil {
		if _, banned := h.bans.Check(ip); banned {
			metrics.Rejected.WithLabelValues("banned").Inc()
			h.log.Info().Str("client_id", s.ID()).Msg("banned client refused")
			h.reject(s, RemoteSetIsBanned)
			return
		}
	}

	if h.locator == nil || ip == "" {
		return
	}
	h.async(func(ctx context.Context) func() {
		ctx, cancel := context.WithTimeout(ctx, geoLookupTimeout)
		defer cancel()
		loc, err := h.locator.Locate(ctx, ip)
		return func() {
			if h.sessions[s.ID()] != s {
				return
			}
			if err != nil {
				if !errors.Is(err, geo.ErrUnknownLocation) {
					h.log.Warn().Err(err).Str("client_id", s.ID()).Msg("geo lookup failed")
				}
				return
			}
			s.SetLocation(loc.City, loc.Country)
			if !h.policy.Allowed(loc.Country) {
				metrics.Rejected.WithLabelValues("geo").Inc()
				h.log.Info().
					Str("client_id", s.ID()).
					Str("country", loc.Country).
					Msg("client outside allowed geography")
				h.reject(s, RemoteSetOutsideGeo)
			}
		}
	})
}

// reject informs the client through notify and closes the session after the
// grace delay so the notification can flush.
func (h *Hub) reject(s *session.Session, notify string) {
	h.blocked[s.ID()] = struct{}{}
	if err := s.Remote(notify, true); err != nil {
		h.log.Debug().Err(err).Str("client_id", s.ID()).Str("method", notify).Msg("notify rejected client")
	}
	time.AfterFunc(h.cfg.BanCloseGrace, func() {
		h.post(func() {
			if h.sessions[s.ID()] == s {
				h.disconnect(s)
			}
		})
	})
}
