// Package service provides the business logic layer (use cases).
// Store owns the in-memory copy of every collection and is the only
// writer of the persisted state.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var storeTracer = otel.Tracer("service/store")

// Store holds the application state. Mutations are serialized by mu and
// write through to the repositories before the in-memory copy changes.
type Store struct {
	mu sync.RWMutex

	repos    Repositories
	notifier port.Notifier
	clock    port.Clock
	metrics  *observability.Metrics
	logger   *zap.Logger

	coachees          []domain.Coachee
	sessions          []domain.Session
	sessionNotes      []domain.SessionNote
	invoices          []domain.Invoice
	recurringInvoices []domain.RecurringInvoice
	journalEntries    []domain.JournalEntry
	generalDocuments  []domain.Document
	coachingDocuments []domain.Document
	tools             []domain.Tool
	activePackages    []domain.ActivePackage
	packageTemplates  []domain.PackageTemplate
	serviceRates      []domain.ServiceRate
	tasks             []domain.Task
	settings          domain.Settings
}

// NewStore creates an empty store. Call Load before serving requests.
func NewStore(repos Repositories, notifier port.Notifier, clock port.Clock, metrics *observability.Metrics, logger *zap.Logger) *Store {
	return &Store{
		repos:    repos,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
		settings: DefaultSettings(),
	}
}

// Load reads every collection from the repositories in parallel and
// replaces the in-memory state.
func (s *Store) Load(ctx context.Context) error {
	ctx, span := storeTracer.Start(ctx, "Store.Load")
	defer span.End()
	start := time.Now()

	var (
		coachees          []domain.Coachee
		sessions          []domain.Session
		sessionNotes      []domain.SessionNote
		invoices          []domain.Invoice
		recurringInvoices []domain.RecurringInvoice
		journalEntries    []domain.JournalEntry
		generalDocuments  []domain.Document
		coachingDocuments []domain.Document
		tools             []domain.Tool
		activePackages    []domain.ActivePackage
		packageTemplates  []domain.PackageTemplate
		serviceRates      []domain.ServiceRate
		tasks             []domain.Task
		settings          domain.Settings
	)

	g, gCtx := errgroup.WithContext(ctx)
	loadInto(gCtx, g, s.repos.Coachees, &coachees)
	loadInto(gCtx, g, s.repos.Sessions, &sessions)
	loadInto(gCtx, g, s.repos.SessionNotes, &sessionNotes)
	loadInto(gCtx, g, s.repos.Invoices, &invoices)
	loadInto(gCtx, g, s.repos.RecurringInvoices, &recurringInvoices)
	loadInto(gCtx, g, s.repos.JournalEntries, &journalEntries)
	loadInto(gCtx, g, s.repos.GeneralDocuments, &generalDocuments)
	loadInto(gCtx, g, s.repos.CoachingDocuments, &coachingDocuments)
	loadInto(gCtx, g, s.repos.Tools, &tools)
	loadInto(gCtx, g, s.repos.ActivePackages, &activePackages)
	loadInto(gCtx, g, s.repos.PackageTemplates, &packageTemplates)
	loadInto(gCtx, g, s.repos.ServiceRates, &serviceRates)
	loadInto(gCtx, g, s.repos.Tasks, &tasks)
	loadInto(gCtx, g, s.repos.Settings, &settings)
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load collections: %w", err)
	}

	s.mu.Lock()
	s.coachees = coachees
	s.sessions = sessions
	s.sessionNotes = sessionNotes
	s.invoices = invoices
	s.recurringInvoices = recurringInvoices
	s.journalEntries = journalEntries
	s.generalDocuments = generalDocuments
	s.coachingDocuments = coachingDocuments
	s.tools = tools
	s.activePackages = activePackages
	s.packageTemplates = packageTemplates
	s.serviceRates = serviceRates
	s.tasks = tasks
	s.settings = settings
	s.mu.Unlock()

	s.metrics.RecordOperation("store_load", time.Since(start))
	s.logger.Info("store loaded",
		zap.Int("coachees", len(coachees)),
		zap.Int("sessions", len(sessions)),
		zap.Int("invoices", len(invoices)),
		zap.Int("tasks", len(tasks)),
	)
	return nil
}

func loadInto[T any](ctx context.Context, g *errgroup.Group, repo port.Repository[T], dst *T) {
	g.Go(func() error {
		v, err := repo.Load(ctx)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	})
}

// Ping checks the persistence backend by loading the smallest collection.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.repos.Settings.Load(ctx)
	return err
}

// ============================================================
// Helpers
// ============================================================

func (s *Store) now() time.Time {
	return s.clock.Now()
}

func (s *Store) notify(level domain.NotificationLevel, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(domain.Notification{
		ID:      uuid.NewString(),
		Level:   level,
		Title:   title,
		Message: message,
		At:      s.now(),
	})
}

// failed wraps err for op and emits an error notification when the
// failure came from the persistence layer.
func (s *Store) failed(op string, err error) error {
	var pe *domain.ErrPersistence
	if errors.As(err, &pe) {
		s.notify(domain.NotifyError, "Could not save changes", op)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (s *Store) observe(op string, start time.Time) {
	s.metrics.RecordOperation(op, time.Since(start))
}

func intPtr(v int) *int { return &v }

func sameInt(p *int, v int) bool {
	return p != nil && *p == v
}

// sameDay reports whether a and b fall on the same calendar day in loc.
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func indexByID[E any](items []E, id string, idOf func(*E) string) int {
	return slices.IndexFunc(items, func(e E) bool { return idOf(&e) == id })
}
