package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/counselchat/internal/ban"
	"github.com/vovakirdan/counselchat/internal/log"
	"github.com/vovakirdan/counselchat/internal/store"
	"github.com/vovakirdan/counselchat/internal/store/sqlite"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

func TestSchedulerRunOnce(t *testing.T) {
	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	clock := &fixedClock{current: time.Now()}
	bans := ban.NewRegistry("salt")

	expired := clock.Now().Add(-time.Hour)
	require.NoError(t, st.AddBan(ctx, &store.Ban{Digest: bans.Digest("10.0.0.1")}))
	require.NoError(t, st.AddBan(ctx, &store.Ban{Digest: bans.Digest("10.0.0.2"), ExpiresAt: &expired}))

	s := New(st, bans, log.Nop(),
		WithNow(clock.Now),
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
	)
	require.NoError(t, s.RunOnce(ctx))

	_, banned := bans.Check("10.0.0.1")
	require.True(t, banned)
	_, banned = bans.Check("10.0.0.2")
	require.False(t, banned)
	require.Equal(t, 1, bans.Len())

	n, err := st.PurgeExpiredBans(ctx, clock.Now())
	require.NoError(t, err)
	require.Zero(t, n, "expired ban should already be gone")
}

type failingStore struct{}

func (failingStore) LoadBans(context.Context) ([]string, error) {
	return nil, errors.New("db down")
}

func (failingStore) PurgeExpiredBans(context.Context, time.Time) (int64, error) {
	return 0, errors.New("db down")
}

func TestSchedulerRunOnceCollectsErrors(t *testing.T) {
	bans := ban.NewRegistry("salt")
	bans.Add("keep")

	s := New(failingStore{}, bans, log.Nop())
	err := s.RunOnce(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, bans.Len(), "failed reload keeps previous set")
}

func TestSchedulerStartRejectsBadSpec(t *testing.T) {
	s := New(failingStore{}, ban.NewRegistry("salt"), log.Nop(), WithReloadSchedule("not a spec"))
	require.Error(t, s.Start())
}
