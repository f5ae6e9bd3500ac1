package campaign

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/veloramarket/push-engine/internal/domain"
	"github.com/veloramarket/push-engine/internal/observability"
	"go.uber.org/zap"
)

// Kind distinguishes fixed-time triggers from behavioral sweeps.
type Kind string

const (
	KindTime       Kind = "TIME"
	KindBehavioral Kind = "BEHAVIORAL"
)

// runTimeout bounds a single campaign firing. Stop does not abort in-flight
// firings; this timeout is what keeps them from hanging forever.
const runTimeout = 2 * time.Minute

// Campaign is a named recurring trigger. Time-based campaigns fire daily at
// Hour in the scheduler's timezone; behavioral campaigns fire every Interval.
type Campaign struct {
	Name     string
	Kind     Kind
	Hour     int
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// CampaignStatus is the externally visible state of one campaign.
type CampaignStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	Status    string     `json:"status"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
}

// Status is the externally visible state of the scheduler.
type Status struct {
	Running   bool             `json:"running"`
	Campaigns []CampaignStatus `json:"campaigns"`
}

// Scheduler owns the Stopped/Running state machine for all configured
// campaigns. Each running campaign gets its own goroutine, so campaigns fire
// independently; within one campaign a firing always completes before the
// next is scheduled.
type Scheduler struct {
	campaigns []Campaign
	clock     Clock
	location  *time.Location
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	lastRun map[string]time.Time
}

func NewScheduler(
	campaigns []Campaign,
	clock Clock,
	location *time.Location,
	logger *zap.Logger,
) (*Scheduler, error) {
	if len(campaigns) == 0 {
		return nil, fmt.Errorf("at least one campaign is required")
	}
	for _, c := range campaigns {
		if strings.TrimSpace(c.Name) == "" {
			return nil, fmt.Errorf("campaign name is required")
		}
		if c.Run == nil {
			return nil, fmt.Errorf("campaign %q has no run function", c.Name)
		}
		switch c.Kind {
		case KindTime:
			if c.Hour < 0 || c.Hour > 23 {
				return nil, fmt.Errorf("campaign %q hour must be within 0-23", c.Name)
			}
		case KindBehavioral:
			if c.Interval <= 0 {
				return nil, fmt.Errorf("campaign %q interval must be positive", c.Name)
			}
		default:
			return nil, fmt.Errorf("campaign %q has unknown kind %q", c.Name, c.Kind)
		}
	}
	if clock == nil {
		clock = SystemClock()
	}
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		campaigns: campaigns,
		clock:     clock,
		location:  location,
		logger:    logger,
		lastRun:   make(map[string]time.Time),
	}, nil
}

func (s *Scheduler) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Start transitions every campaign to Running. Starting an already running
// scheduler is a warning no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		s.logger.Warn("scheduler start requested but already running")
		return domain.ErrSchedulerState
	}

	ctx, cancel := context.WithCancel(context.Background())
	// Each Start gets its own WaitGroup. Stop waits on the group it captured,
	// so a Start racing a slow Stop cannot add goroutines to the older group
	// and keep that Stop blocked.
	wg := &sync.WaitGroup{}
	s.cancel = cancel
	s.wg = wg
	s.running = true

	for i := range s.campaigns {
		c := s.campaigns[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.campaignLoop(ctx, c)
		}()
	}

	s.logger.Info("campaign scheduler started", zap.Int("campaigns", len(s.campaigns)))
	return nil
}

// Stop cancels all recurring triggers. In-flight firings run to completion;
// stopping an already stopped scheduler is a warning no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler stop requested but already stopped")
		return domain.ErrSchedulerState
	}

	s.running = false
	cancel := s.cancel
	wg := s.wg
	s.cancel = nil
	s.wg = nil
	s.mu.Unlock()

	cancel()
	wg.Wait()

	s.logger.Info("campaign scheduler stopped")
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := "stopped"
	if s.running {
		state = "running"
	}

	statuses := make([]CampaignStatus, 0, len(s.campaigns))
	for _, c := range s.campaigns {
		status := CampaignStatus{
			Name:     c.Name,
			Schedule: s.describeSchedule(c),
			Status:   state,
		}
		if lastRun, ok := s.lastRun[c.Name]; ok {
			t := lastRun
			status.LastRunAt = &t
		}
		statuses = append(statuses, status)
	}

	return Status{Running: s.running, Campaigns: statuses}
}

// RunNow fires a named campaign immediately, bypassing its timer. Shares the
// failure semantics of a scheduled firing.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	for i := range s.campaigns {
		if s.campaigns[i].Name == name {
			return s.fire(ctx, s.campaigns[i])
		}
	}
	return fmt.Errorf("%w: unknown campaign %q", domain.ErrNotFound, name)
}

func (s *Scheduler) campaignLoop(ctx context.Context, c Campaign) {
	for {
		var wait time.Duration
		switch c.Kind {
		case KindTime:
			wait = untilNextHour(s.clock.Now().In(s.location), c.Hour)
		case KindBehavioral:
			wait = c.Interval
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}

		// Each firing is independent: a failure is logged and must not
		// prevent the next scheduled firing.
		if err := s.fire(ctx, c); err != nil {
			s.logger.Error("campaign firing failed",
				zap.String("campaign", c.Name),
				zap.Error(err),
			)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, c Campaign) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("campaign %q panicked: %v", c.Name, r)
		}
		if s.metrics != nil {
			s.metrics.IncCampaignRun(c.Name, err == nil)
		}
	}()

	// A firing in flight when Stop cancels the loop still completes; the
	// run context drops the loop's cancellation and keeps only the bound.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runTimeout)
	defer cancel()

	now := s.clock.Now()
	s.mu.Lock()
	s.lastRun[c.Name] = now
	s.mu.Unlock()

	s.logger.Info("campaign firing", zap.String("campaign", c.Name))
	return c.Run(runCtx)
}

func (s *Scheduler) describeSchedule(c Campaign) string {
	switch c.Kind {
	case KindTime:
		return fmt.Sprintf("daily at %02d:00 %s", c.Hour, s.location.String())
	case KindBehavioral:
		return fmt.Sprintf("every %s", c.Interval)
	}
	return "unknown"
}

// untilNextHour computes the wait until the next occurrence of hour:00 in
// now's location. A fire exactly on the boundary schedules the next day.
func untilNextHour(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}
