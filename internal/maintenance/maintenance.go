// Package maintenance schedules background jobs for the ban list.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/vovakirdan/counselchat/internal/ban"
)

const (
	defaultReloadSpec = "@every 5m"
	defaultPurgeSpec  = "@daily"
	jobTimeout        = 30 * time.Second
)

// BanStore is the storage the jobs operate on.
type BanStore interface {
	ban.Source
	PurgeExpiredBans(ctx context.Context, now time.Time) (int64, error)
}

// Scheduler reloads the in-memory ban registry and purges expired bans.
type Scheduler struct {
	store  BanStore
	bans   *ban.Registry
	cron   *cron.Cron
	now    func() time.Time
	logger *zerolog.Logger

	reloadSchedule string
	purgeSchedule  string
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithNow overrides the clock used for purge comparisons.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithReloadSchedule overrides the cron spec of the reload job.
func WithReloadSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.reloadSchedule = spec
		}
	}
}

// WithPurgeSchedule overrides the cron spec of the purge job.
func WithPurgeSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.purgeSchedule = spec
		}
	}
}

// New constructs a Scheduler.
func New(store BanStore, bans *ban.Registry, logger *zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:          store,
		bans:           bans,
		now:            time.Now,
		logger:         logger,
		reloadSchedule: defaultReloadSpec,
		purgeSchedule:  defaultPurgeSpec,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return s
}

// Start registers the jobs and launches the scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.reloadSchedule, s.job("ban reload", s.Reload)); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.purgeSchedule, s.job("ban purge", s.Purge)); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler; the returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.logger.Warn().Err(err).Str("job", name).Msg("maintenance job failed")
		}
	}
}

// Reload replaces the registry contents with the stored bans.
func (s *Scheduler) Reload(ctx context.Context) error {
	if err := s.bans.Load(ctx, s.store); err != nil {
		return err
	}
	s.logger.Debug().Int("bans", s.bans.Len()).Msg("ban list reloaded")
	return nil
}

// Purge deletes expired bans and reloads the registry when anything changed.
func (s *Scheduler) Purge(ctx context.Context) error {
	n, err := s.store.PurgeExpiredBans(ctx, s.now())
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	s.logger.Info().Int64("purged", n).Msg("expired bans purged")
	return s.Reload(ctx)
}

// RunOnce executes every job sequentially.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	var errs error
	if err := s.Purge(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	if err := s.Reload(ctx); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
