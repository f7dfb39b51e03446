package service

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Active packages
// ============================================================

// ListPackages returns active packages, optionally for one coachee.
func (s *Store) ListPackages(ctx context.Context, coacheeID *int) []domain.ActivePackage {
	_, span := storeTracer.Start(ctx, "Store.ListPackages")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.ActivePackage{}
	for _, p := range s.activePackages {
		if coacheeID == nil || p.CoacheeID == *coacheeID {
			out = append(out, p)
		}
	}
	return out
}

// AddPackage sells a package to a coachee. Fields left empty are taken
// from the referenced template.
func (s *Store) AddPackage(ctx context.Context, in domain.NewPackage) (*domain.ActivePackage, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddPackage")
	defer span.End()
	defer s.observe("add_package", time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coacheeIndex(in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(in.CoacheeID)}
	}

	p := domain.ActivePackage{
		ID:          uuid.NewString(),
		CoacheeID:   in.CoacheeID,
		TemplateID:  in.TemplateID,
		Name:        in.Name,
		TotalUnits:  in.TotalUnits,
		Price:       in.Price,
		Currency:    in.Currency,
		PurchasedAt: s.now(),
	}
	if in.TemplateID != "" {
		i := indexByID(s.packageTemplates, in.TemplateID, func(t *domain.PackageTemplate) string { return t.ID })
		if i < 0 {
			return nil, &domain.ErrValidation{Field: "templateId", Message: "unknown template " + in.TemplateID}
		}
		t := s.packageTemplates[i]
		if p.Name == "" {
			p.Name = t.Name
		}
		if p.TotalUnits == 0 {
			p.TotalUnits = t.Units
		}
		if p.Price == 0 {
			p.Price = t.Price
		}
		if p.Currency == "" {
			p.Currency = t.Currency
		}
	}
	if p.TotalUnits <= 0 {
		return nil, &domain.ErrValidation{Field: "totalUnits", Message: "must be greater than zero"}
	}
	if p.Currency == "" {
		p.Currency = s.settings.Invoice.Currency
	}

	next := append(slices.Clone(s.activePackages), p)
	if err := s.repos.ActivePackages.Save(ctx, next); err != nil {
		return nil, s.failed("add package", err)
	}
	s.activePackages = next
	s.notify(domain.NotifySuccess, "Package added", p.Name)
	return &p, nil
}

// DeductFromPackage uses one unit of the package. It fails with
// ErrNotFound for an unknown id and ErrPackageExhausted when no unit is
// left; usedUnits never exceeds totalUnits.
func (s *Store) DeductFromPackage(ctx context.Context, id string) (*domain.ActivePackage, error) {
	ctx, span := storeTracer.Start(ctx, "Store.DeductFromPackage")
	defer span.End()
	defer s.observe("deduct_package", time.Now())
	span.SetAttributes(attribute.String("package.id", id))

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.deductLocked(ctx, id)
	if err != nil {
		return nil, s.failed("deduct from package", err)
	}
	s.notify(domain.NotifyInfo, "Package unit used", p.Name+": "+strconv.Itoa(p.Remaining())+" remaining")
	return p, nil
}

// deductLocked increments usedUnits and persists. Callers hold s.mu.
func (s *Store) deductLocked(ctx context.Context, id string) (*domain.ActivePackage, error) {
	idx := s.packageIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "package", ID: id}
	}
	cur := s.activePackages[idx]
	if cur.UsedUnits >= cur.TotalUnits {
		return nil, &domain.ErrPackageExhausted{PackageID: id, Used: cur.UsedUnits, Total: cur.TotalUnits}
	}

	next := slices.Clone(s.activePackages)
	next[idx].UsedUnits++
	if err := s.repos.ActivePackages.Save(ctx, next); err != nil {
		return nil, err
	}
	s.activePackages = next
	out := next[idx]
	return &out, nil
}

func (s *Store) packageIndex(id string) int {
	return indexByID(s.activePackages, id, func(p *domain.ActivePackage) string { return p.ID })
}

// ============================================================
// Templates & rates
// ============================================================

// ListPackageTemplates returns the sellable package templates.
func (s *Store) ListPackageTemplates(ctx context.Context) []domain.PackageTemplate {
	_, span := storeTracer.Start(ctx, "Store.ListPackageTemplates")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.packageTemplates)
}

// ReplacePackageTemplates overwrites the template list.
func (s *Store) ReplacePackageTemplates(ctx context.Context, in []domain.PackageTemplate) ([]domain.PackageTemplate, error) {
	ctx, span := storeTracer.Start(ctx, "Store.ReplacePackageTemplates")
	defer span.End()

	next := make([]domain.PackageTemplate, 0, len(in))
	for _, t := range in {
		if t.Units <= 0 {
			return nil, &domain.ErrValidation{Field: "units", Message: "must be greater than zero"}
		}
		if t.ID == "" {
			t.ID = uuid.NewString()
		}
		next = append(next, t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repos.PackageTemplates.Save(ctx, next); err != nil {
		return nil, s.failed("save package templates", err)
	}
	s.packageTemplates = next
	s.notify(domain.NotifySuccess, "Package templates saved", "")
	return slices.Clone(next), nil
}

// ListServiceRates returns the coach's billable rates.
func (s *Store) ListServiceRates(ctx context.Context) []domain.ServiceRate {
	_, span := storeTracer.Start(ctx, "Store.ListServiceRates")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.serviceRates)
}

// ReplaceServiceRates overwrites the rate list.
func (s *Store) ReplaceServiceRates(ctx context.Context, in []domain.ServiceRate) ([]domain.ServiceRate, error) {
	ctx, span := storeTracer.Start(ctx, "Store.ReplaceServiceRates")
	defer span.End()

	next := make([]domain.ServiceRate, 0, len(in))
	for _, r := range in {
		if r.Rate < 0 {
			return nil, &domain.ErrValidation{Field: "rate", Message: "must not be negative"}
		}
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		next = append(next, r)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repos.ServiceRates.Save(ctx, next); err != nil {
		return nil, s.failed("save service rates", err)
	}
	s.serviceRates = next
	s.notify(domain.NotifySuccess, "Service rates saved", "")
	return slices.Clone(next), nil
}
