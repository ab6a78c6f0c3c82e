// Package schedule fires the pipeline on a cron spec. It is a trigger
// only: run state, overlap control, and failure containment all live in
// the coordinator.
package schedule

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "stocknotify/pkg/logx"
)

type Config struct {
	// Spec is a 5-field cron expression; a 6th (seconds) field and
	// descriptors like "@hourly" are accepted too.
	Spec     string
	Timezone string
}

// Runner is what the trigger fires; implemented by the coordinator.
type Runner interface {
	Run(ctx context.Context, trigger string)
}

type Service struct {
	mu     sync.Mutex
	cfg    Config
	log    logx.Logger
	runner Runner
	parser cron.Parser

	c       *cron.Cron
	entryID cron.EntryID
	runCtx  context.Context
	cancel  context.CancelFunc
}

func New(cfg Config, runner Runner, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		log:    log,
		runner: runner,
		// SecondOptional allows both 5-field and 6-field cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		return nil
	}

	spec := strings.TrimSpace(s.cfg.Spec)
	if spec == "" {
		return errors.New("scheduler.spec is required")
	}
	sched, err := s.parser.Parse(spec)
	if err != nil {
		return err
	}

	loc := s.loadLocation()
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	runCtx := s.runCtx
	s.entryID = s.c.Schedule(sched, cron.FuncJob(func() {
		if runCtx.Err() != nil {
			return
		}
		s.runner.Run(runCtx, spec)
	}))

	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("spec", spec),
		logx.String("tz", loc.String()),
		logx.Time("next", s.c.Entry(s.entryID).Next))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	if cancel != nil {
		cancel()
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; run still draining")
	}
	s.log.Info("scheduler stopped")
}

func (s *Service) loadLocation() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; using local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}
