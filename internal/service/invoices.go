package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Invoices
// ============================================================

// CreateInvoice stores a new invoice. Item totals and the invoice total
// are computed here; the number is <prefix>-<year>-<sequence>.
func (s *Store) CreateInvoice(ctx context.Context, in domain.Invoice) (*domain.Invoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.CreateInvoice")
	defer span.End()
	defer s.observe("create_invoice", time.Now())

	if in.Status == "" {
		in.Status = domain.InvoiceDraft
	}
	if err := validateInvoice(&in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coacheeIndex(in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(in.CoacheeID)}
	}

	inv := s.newInvoiceLocked(in, s.invoices)
	next := append(slices.Clone(s.invoices), inv)
	if err := s.repos.Invoices.Save(ctx, next); err != nil {
		return nil, s.failed("create invoice", err)
	}
	s.invoices = next

	span.SetAttributes(attribute.String("invoice.number", inv.Number))
	s.notify(domain.NotifySuccess, "Invoice created", inv.Number)
	return &inv, nil
}

// newInvoiceLocked fills server-owned fields of a new invoice. existing is
// used for number allocation.
func (s *Store) newInvoiceLocked(in domain.Invoice, existing []domain.Invoice) domain.Invoice {
	now := s.now()
	inv := in
	inv.ID = uuid.NewString()
	inv.Items = slices.Clone(in.Items)
	if inv.Date.IsZero() {
		inv.Date = now
	}
	if inv.DueDate.IsZero() {
		inv.DueDate = inv.Date.AddDate(0, 0, s.settings.Invoice.PaymentDays)
	}
	if inv.Currency == "" {
		inv.Currency = s.settings.Invoice.Currency
	}
	if inv.Number == "" {
		inv.Number = nextInvoiceNumber(s.settings.Invoice.Prefix, inv.Date.Year(), existing)
	}
	inv.CreatedAt = now
	inv.UpdatedAt = now
	inv.Recalculate()
	return inv
}

// nextInvoiceNumber returns the next free number for prefix and year.
func nextInvoiceNumber(prefix string, year int, existing []domain.Invoice) string {
	head := fmt.Sprintf("%s-%d-", prefix, year)
	maxSeq := 0
	for _, inv := range existing {
		rest, ok := strings.CutPrefix(inv.Number, head)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n > maxSeq {
			maxSeq = n
		}
	}
	return fmt.Sprintf("%s%04d", head, maxSeq+1)
}

// UpdateInvoice replaces an invoice by id and recomputes its totals.
func (s *Store) UpdateInvoice(ctx context.Context, in domain.Invoice) (*domain.Invoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateInvoice")
	defer span.End()
	defer s.observe("update_invoice", time.Now())

	if in.Status == "" {
		in.Status = domain.InvoiceDraft
	}
	if err := validateInvoice(&in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.invoiceIndex(in.ID)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "invoice", ID: in.ID}
	}
	prev := s.invoices[idx]

	inv := in
	inv.Items = slices.Clone(in.Items)
	inv.Number = prev.Number
	inv.RecurringID = prev.RecurringID
	inv.CreatedAt = prev.CreatedAt
	inv.UpdatedAt = s.now()
	if inv.Currency == "" {
		inv.Currency = prev.Currency
	}
	inv.Recalculate()

	next := slices.Clone(s.invoices)
	next[idx] = inv
	if err := s.repos.Invoices.Save(ctx, next); err != nil {
		return nil, s.failed("update invoice", err)
	}
	s.invoices = next
	s.notify(domain.NotifySuccess, "Invoice updated", inv.Number)
	return &inv, nil
}

// SetInvoiceStatus changes only the status of an invoice.
func (s *Store) SetInvoiceStatus(ctx context.Context, id string, status domain.InvoiceStatus) (*domain.Invoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.SetInvoiceStatus")
	defer span.End()

	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.invoiceIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "invoice", ID: id}
	}
	next := slices.Clone(s.invoices)
	next[idx].Status = status
	next[idx].UpdatedAt = s.now()
	if err := s.repos.Invoices.Save(ctx, next); err != nil {
		return nil, s.failed("set invoice status", err)
	}
	s.invoices = next
	out := next[idx]
	s.notify(domain.NotifySuccess, "Invoice "+strings.ToLower(string(status)), out.Number)
	return &out, nil
}

// DeleteInvoice removes an invoice.
func (s *Store) DeleteInvoice(ctx context.Context, id string) error {
	ctx, span := storeTracer.Start(ctx, "Store.DeleteInvoice")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.invoiceIndex(id)
	if idx < 0 {
		return &domain.ErrNotFound{Resource: "invoice", ID: id}
	}
	number := s.invoices[idx].Number
	next := slices.Delete(slices.Clone(s.invoices), idx, idx+1)
	if err := s.repos.Invoices.Save(ctx, next); err != nil {
		return s.failed("delete invoice", err)
	}
	s.invoices = next
	s.notify(domain.NotifyInfo, "Invoice deleted", number)
	return nil
}

// ListInvoices returns invoices matching f, newest first.
func (s *Store) ListInvoices(ctx context.Context, f domain.InvoiceFilter) []domain.Invoice {
	_, span := storeTracer.Start(ctx, "Store.ListInvoices")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Invoice{}
	for _, inv := range s.invoices {
		if f.CoacheeID != nil && inv.CoacheeID != *f.CoacheeID {
			continue
		}
		if f.Status != "" && inv.Status != f.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// GetInvoice returns one invoice.
func (s *Store) GetInvoice(ctx context.Context, id string) (*domain.Invoice, error) {
	_, span := storeTracer.Start(ctx, "Store.GetInvoice")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.invoiceIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "invoice", ID: id}
	}
	out := s.invoices[idx]
	return &out, nil
}

func (s *Store) invoiceIndex(id string) int {
	return indexByID(s.invoices, id, func(inv *domain.Invoice) string { return inv.ID })
}

func validateInvoice(inv *domain.Invoice) error {
	if inv.CoacheeID <= 0 {
		return &domain.ErrValidation{Field: "coacheeId", Message: "required"}
	}
	if !inv.Status.Valid() {
		return &domain.ErrValidation{Field: "status", Message: "unknown status " + string(inv.Status)}
	}
	return validateItems(inv.Items)
}

func validateItems(items []domain.InvoiceItem) error {
	for i, it := range items {
		if it.Quantity < 0 || it.Rate < 0 {
			return &domain.ErrValidation{Field: fmt.Sprintf("items[%d]", i), Message: "quantity and rate must not be negative"}
		}
	}
	return nil
}

// ============================================================
// Recurring invoices
// ============================================================

// ListRecurringInvoices returns all recurring invoice templates.
func (s *Store) ListRecurringInvoices(ctx context.Context) []domain.RecurringInvoice {
	_, span := storeTracer.Start(ctx, "Store.ListRecurringInvoices")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.recurringInvoices)
}

// AddRecurringInvoice stores a template that GenerateDueInvoices
// materializes from NextDate on.
func (s *Store) AddRecurringInvoice(ctx context.Context, in domain.RecurringInvoice) (*domain.RecurringInvoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddRecurringInvoice")
	defer span.End()

	if in.CoacheeID <= 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "required"}
	}
	if len(in.Items) == 0 {
		return nil, &domain.ErrValidation{Field: "items", Message: "at least one item required"}
	}
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}
	switch in.Interval {
	case "":
		in.Interval = domain.IntervalMonthly
	case domain.IntervalMonthly, domain.IntervalQuarterly, domain.IntervalYearly:
	default:
		return nil, &domain.ErrValidation{Field: "interval", Message: "unknown interval " + string(in.Interval)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coacheeIndex(in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(in.CoacheeID)}
	}

	now := s.now()
	r := in
	r.ID = uuid.NewString()
	r.Items = slices.Clone(in.Items)
	r.Active = true
	r.LastGeneratedAt = nil
	r.CreatedAt = now
	if r.NextDate.IsZero() {
		r.NextDate = now
	}
	if periodsDue(r.Interval, r.NextDate, now) > MaxCatchUpPeriods {
		return nil, &domain.ErrValidation{Field: "nextDate", Message: "more than " + strconv.Itoa(MaxCatchUpPeriods) + " periods in the past"}
	}
	if r.Currency == "" {
		r.Currency = s.settings.Invoice.Currency
	}

	next := append(slices.Clone(s.recurringInvoices), r)
	if err := s.repos.RecurringInvoices.Save(ctx, next); err != nil {
		return nil, s.failed("add recurring invoice", err)
	}
	s.recurringInvoices = next
	s.notify(domain.NotifySuccess, "Recurring invoice added", "")
	return &r, nil
}

// SetRecurringInvoiceActive pauses or resumes a template.
func (s *Store) SetRecurringInvoiceActive(ctx context.Context, id string, active bool) (*domain.RecurringInvoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.SetRecurringInvoiceActive")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.recurringInvoices, id, func(r *domain.RecurringInvoice) string { return r.ID })
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "recurring invoice", ID: id}
	}
	next := slices.Clone(s.recurringInvoices)
	next[idx].Active = active
	if err := s.repos.RecurringInvoices.Save(ctx, next); err != nil {
		return nil, s.failed("update recurring invoice", err)
	}
	s.recurringInvoices = next
	out := next[idx]
	return &out, nil
}

// MaxCatchUpPeriods bounds how many invoices one template produces per run.
// A template further behind keeps catching up on later runs.
const MaxCatchUpPeriods = 24

// periodsDue counts the periods from next up to now, stopping one past limit.
func periodsDue(interval domain.RecurrenceInterval, next, now time.Time) int {
	n := 0
	for !next.After(now) && n <= MaxCatchUpPeriods {
		next = interval.Next(next)
		n++
	}
	return n
}

// GenerateDueInvoices creates one invoice per elapsed period of every
// active template whose NextDate is not after now, and advances NextDate
// past now, at most MaxCatchUpPeriods per template. It returns the created
// invoices.
func (s *Store) GenerateDueInvoices(ctx context.Context, now time.Time) ([]domain.Invoice, error) {
	ctx, span := storeTracer.Start(ctx, "Store.GenerateDueInvoices")
	defer span.End()
	defer s.observe("generate_due_invoices", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	invoices := slices.Clone(s.invoices)
	templates := slices.Clone(s.recurringInvoices)
	var created []domain.Invoice

	for i := range templates {
		r := &templates[i]
		if !r.Active {
			continue
		}
		generated := 0
		for !r.NextDate.After(now) && generated < MaxCatchUpPeriods {
			inv := s.newInvoiceLocked(domain.Invoice{
				CoacheeID:   r.CoacheeID,
				Items:       r.Items,
				Status:      domain.InvoiceDraft,
				Date:        r.NextDate,
				Currency:    r.Currency,
				RecurringID: r.ID,
			}, invoices)
			invoices = append(invoices, inv)
			created = append(created, inv)
			r.NextDate = r.Interval.Next(r.NextDate)
			generated++
		}
		if generated > 0 {
			at := now
			r.LastGeneratedAt = &at
		}
		if !r.NextDate.After(now) {
			s.logger.Warn("recurring invoice still behind after catch-up",
				zap.String("recurring_id", r.ID),
				zap.Time("next_date", r.NextDate),
			)
		}
	}
	if len(created) == 0 {
		return nil, nil
	}

	prevInvoices := s.invoices
	if err := s.repos.Invoices.Save(ctx, invoices); err != nil {
		return nil, s.failed("generate invoices", err)
	}
	s.invoices = invoices
	if err := s.repos.RecurringInvoices.Save(ctx, templates); err != nil {
		if rerr := s.repos.Invoices.Save(ctx, prevInvoices); rerr != nil {
			s.logger.Error("generated invoices could not be reverted", zap.Error(rerr))
		} else {
			s.invoices = prevInvoices
		}
		return nil, s.failed("advance recurring invoices", err)
	}
	s.recurringInvoices = templates

	s.metrics.IncrInvoicesGenerated(len(created))
	s.logger.Info("recurring invoices generated", zap.Int("count", len(created)))
	s.notify(domain.NotifyInfo, "Recurring invoices generated", strconv.Itoa(len(created))+" new")
	return created, nil
}
