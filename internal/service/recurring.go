package service

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron"
	"go.uber.org/zap"
)

// InvoiceScheduler runs GenerateDueInvoices on a cron schedule.
type InvoiceScheduler struct {
	store   *Store
	cron    *cron.Cron
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
}

// NewInvoiceScheduler registers the generation job. schedule accepts the cron
// descriptors (@daily, @every 1h) and six-field expressions with seconds.
func NewInvoiceScheduler(store *Store, schedule string, logger *zap.Logger) (*InvoiceScheduler, error) {
	s := &InvoiceScheduler{
		store:   store,
		cron:    cron.New(),
		timeout: 2 * time.Minute,
		logger:  logger,
	}
	if err := s.cron.AddFunc(schedule, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

// Start begins the schedule in its own goroutine.
func (s *InvoiceScheduler) Start() {
	s.cron.Start()
	s.logger.Info("recurring invoice scheduler started")
}

// Stop halts the schedule. A run in progress is not interrupted.
func (s *InvoiceScheduler) Stop() {
	s.cron.Stop()
}

// RunNow executes one generation pass synchronously.
func (s *InvoiceScheduler) RunNow(ctx context.Context) (int, error) {
	created, err := s.store.GenerateDueInvoices(ctx, s.store.now())
	return len(created), err
}

// run skips overlapping executions.
func (s *InvoiceScheduler) run() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("recurring invoice run skipped, previous run still active")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.RunNow(ctx)
	if err != nil {
		s.logger.Error("recurring invoice run failed", zap.Error(err))
		return
	}
	s.logger.Debug("recurring invoice run finished", zap.Int("created", n))
}
