// Package scheduler runs the pipelines on cron schedules inside one process.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunFunc is one scheduled pipeline run
type RunFunc func(ctx context.Context) error

// Scheduler manages cron-based pipeline scheduling.
// A job whose previous run is still going is skipped, so the same pipeline never overlaps itself.
type Scheduler struct {
	cron   *cron.Cron
	logger *zap.Logger

	mu      sync.Mutex
	jobs    map[string]RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// New creates a scheduler that logs through logger
func New(logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger.Sugar()}
	return &Scheduler{
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]RunFunc),
		ctx:    context.Background(),
	}
}

// Add registers a named job on a standard five-field cron spec
func (s *Scheduler) Add(name, spec string, fn RunFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}

	_, err := s.cron.AddFunc(spec, func() {
		s.logger.Info("starting scheduled run", zap.String("job", name))
		if err := fn(s.context()); err != nil {
			s.logger.Error("scheduled run failed", zap.String("job", name), zap.Error(err))
			return
		}
		s.logger.Info("scheduled run completed", zap.String("job", name))
	})
	if err != nil {
		return fmt.Errorf("adding %s schedule %q: %w", name, spec, err)
	}

	s.jobs[name] = fn
	return nil
}

// Start begins firing jobs. Runs receive a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.running = true

	s.logger.Info("scheduler started", zap.Strings("jobs", s.names()))
	return nil
}

// Stop cancels in-flight runs and waits for them to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("stopping scheduler")
	cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Trigger runs a job immediately in the caller's goroutine
func (s *Scheduler) Trigger(ctx context.Context, name string) error {
	s.mu.Lock()
	fn, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}

	s.logger.Info("manual run triggered", zap.String("job", name))
	return fn(ctx)
}

// Jobs returns the registered job names
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.names()
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
