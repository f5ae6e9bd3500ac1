package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/veloramarket/push-engine/internal/domain"
)

type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now, tick: make(chan time.Time)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) After(d time.Duration) <-chan time.Time {
	return f.tick
}

func (f *fakeClock) fire(t *testing.T) {
	t.Helper()
	select {
	case f.tick <- f.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("no campaign loop was waiting for a tick")
	}
}

func noopCampaign(name string) Campaign {
	return Campaign{
		Name:     name,
		Kind:     KindBehavioral,
		Interval: time.Hour,
		Run:      func(ctx context.Context) error { return nil },
	}
}

func TestNewSchedulerValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		campaigns []Campaign
	}{
		{name: "no campaigns", campaigns: nil},
		{name: "missing name", campaigns: []Campaign{{Kind: KindBehavioral, Interval: time.Hour, Run: func(ctx context.Context) error { return nil }}}},
		{name: "missing run", campaigns: []Campaign{{Name: "x", Kind: KindBehavioral, Interval: time.Hour}}},
		{name: "bad hour", campaigns: []Campaign{{Name: "x", Kind: KindTime, Hour: 24, Run: func(ctx context.Context) error { return nil }}}},
		{name: "bad interval", campaigns: []Campaign{{Name: "x", Kind: KindBehavioral, Run: func(ctx context.Context) error { return nil }}}},
		{name: "unknown kind", campaigns: []Campaign{{Name: "x", Kind: Kind("CRON"), Run: func(ctx context.Context) error { return nil }}}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewScheduler(tc.campaigns, nil, nil, nil); err == nil {
				t.Fatal("expected constructor error")
			}
		})
	}
}

func TestSchedulerStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s, err := NewScheduler([]Campaign{noopCampaign("noop")}, newFakeClock(time.Unix(1_700_000_000, 0)), nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(); !errors.Is(err, domain.ErrSchedulerState) {
		t.Fatalf("second Start() error = %v, want ErrSchedulerState", err)
	}
	if !s.Status().Running {
		t.Fatal("scheduler should still be running after a duplicate Start")
	}

	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := s.Stop(); !errors.Is(err, domain.ErrSchedulerState) {
		t.Fatalf("second Stop() error = %v, want ErrSchedulerState", err)
	}
	if s.Status().Running {
		t.Fatal("scheduler should be stopped")
	}

	// A full stop-start cycle works again.
	if err := s.Start(); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("final Stop() error = %v", err)
	}
}

func TestSchedulerRestartDuringInFlightFiringDoesNotBlockStop(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	entered := make(chan struct{})
	release := make(chan struct{})

	campaigns := []Campaign{{
		Name:     "slow",
		Kind:     KindBehavioral,
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			entered <- struct{}{}
			<-release
			return nil
		},
	}}

	s, err := NewScheduler(campaigns, clock, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	clock.fire(t)
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("campaign firing did not begin")
	}

	// Stop while the firing is still in flight; it must wait for it.
	stopDone := make(chan error, 1)
	go func() { stopDone <- s.Stop() }()

	deadline := time.Now().Add(2 * time.Second)
	for s.Status().Running {
		if time.Now().After(deadline) {
			t.Fatal("Stop did not leave the running state")
		}
		time.Sleep(time.Millisecond)
	}

	// A restart while the previous generation is still draining succeeds
	// and must not extend the pending Stop.
	if err := s.Start(); err != nil {
		t.Fatalf("restart during drain error = %v", err)
	}

	select {
	case <-stopDone:
		t.Fatal("Stop returned before the in-flight firing completed")
	default:
	}

	close(release)
	select {
	case err := <-stopDone:
		if err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the in-flight firing completed")
	}

	if !s.Status().Running {
		t.Fatal("restarted scheduler should still be running")
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("final Stop() error = %v", err)
	}
}

func TestSchedulerBehavioralCampaignFiresOnTick(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	fired := make(chan struct{}, 4)

	campaigns := []Campaign{{
		Name:     "sweep",
		Kind:     KindBehavioral,
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			fired <- struct{}{}
			return nil
		},
	}}

	s, err := NewScheduler(campaigns, clock, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop() //nolint:errcheck

	clock.fire(t)
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("campaign did not fire after tick")
	}
}

func TestSchedulerFailingCampaignKeepsFiring(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Unix(1_700_000_000, 0))
	fired := make(chan struct{}, 4)

	campaigns := []Campaign{{
		Name:     "flaky",
		Kind:     KindBehavioral,
		Interval: time.Minute,
		Run: func(ctx context.Context) error {
			fired <- struct{}{}
			return errors.New("storefront query failed")
		},
	}}

	s, err := NewScheduler(campaigns, clock, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer s.Stop() //nolint:errcheck

	for i := 0; i < 2; i++ {
		clock.fire(t)
		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatalf("firing #%d did not happen; a failure must not stop the schedule", i+1)
		}
	}
}

func TestSchedulerRunNow(t *testing.T) {
	t.Parallel()

	ran := false
	campaigns := []Campaign{{
		Name:     "manual",
		Kind:     KindBehavioral,
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	}}

	s, err := NewScheduler(campaigns, newFakeClock(time.Unix(1_700_000_000, 0)), nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	if err := s.RunNow(context.Background(), "manual"); err != nil {
		t.Fatalf("RunNow() error = %v", err)
	}
	if !ran {
		t.Fatal("campaign did not run")
	}

	status := s.Status()
	if len(status.Campaigns) != 1 || status.Campaigns[0].LastRunAt == nil {
		t.Fatalf("Status() = %+v, want recorded last run", status)
	}

	if err := s.RunNow(context.Background(), "no-such-campaign"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("RunNow(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestSchedulerRecoversFromCampaignPanic(t *testing.T) {
	t.Parallel()

	campaigns := []Campaign{{
		Name:     "panicky",
		Kind:     KindBehavioral,
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			panic("boom")
		},
	}}

	s, err := NewScheduler(campaigns, newFakeClock(time.Unix(1_700_000_000, 0)), nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	err = s.RunNow(context.Background(), "panicky")
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
}

func TestSchedulerStatusDescribesSchedules(t *testing.T) {
	t.Parallel()

	campaigns := []Campaign{
		{Name: "daily", Kind: KindTime, Hour: 18, Run: func(ctx context.Context) error { return nil }},
		{Name: "sweep", Kind: KindBehavioral, Interval: 30 * time.Minute, Run: func(ctx context.Context) error { return nil }},
	}

	s, err := NewScheduler(campaigns, newFakeClock(time.Unix(1_700_000_000, 0)), time.UTC, nil)
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}

	status := s.Status()
	if status.Running {
		t.Fatal("scheduler should start stopped")
	}
	if len(status.Campaigns) != 2 {
		t.Fatalf("len(Campaigns) = %d, want 2", len(status.Campaigns))
	}
	if status.Campaigns[0].Schedule != "daily at 18:00 UTC" {
		t.Fatalf("Schedule = %q, want %q", status.Campaigns[0].Schedule, "daily at 18:00 UTC")
	}
	if status.Campaigns[1].Schedule != "every 30m0s" {
		t.Fatalf("Schedule = %q, want %q", status.Campaigns[1].Schedule, "every 30m0s")
	}
}

func TestUntilNextHour(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	testCases := []struct {
		name string
		now  time.Time
		hour int
		want time.Duration
	}{
		{name: "later today", now: base, hour: 18, want: 2*time.Hour + 30*time.Minute},
		{name: "already passed rolls to tomorrow", now: base, hour: 9, want: 17*time.Hour + 30*time.Minute},
		{name: "exactly on the hour schedules next day", now: time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC), hour: 18, want: 24 * time.Hour},
		{name: "midnight target", now: base, hour: 0, want: 8*time.Hour + 30*time.Minute},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got := untilNextHour(tc.now, tc.hour); got != tc.want {
				t.Fatalf("untilNextHour() = %v, want %v", got, tc.want)
			}
		})
	}
}
