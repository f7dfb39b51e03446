package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// Backup & restore
// ============================================================

// Backup snapshots every collection, the settings and all portal data.
func (s *Store) Backup(ctx context.Context) (*domain.Snapshot, error) {
	ctx, span := storeTracer.Start(ctx, "Store.Backup")
	defer span.End()
	defer s.observe("backup", time.Now())

	ids, err := s.repos.PortalDataIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portal data: %w", err)
	}
	portal := make([]domain.PortalData, 0, len(ids))
	for _, id := range ids {
		d, err := s.repos.PortalData(id).Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load portal data %d: %w", id, err)
		}
		portal = append(portal, d)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return &domain.Snapshot{
		Version:           domain.BackupVersion,
		ExportedAt:        s.now(),
		Coachees:          slices.Clone(s.coachees),
		Sessions:          slices.Clone(s.sessions),
		SessionNotes:      slices.Clone(s.sessionNotes),
		Invoices:          slices.Clone(s.invoices),
		RecurringInvoices: slices.Clone(s.recurringInvoices),
		JournalEntries:    slices.Clone(s.journalEntries),
		GeneralDocuments:  slices.Clone(s.generalDocuments),
		CoachingDocuments: slices.Clone(s.coachingDocuments),
		Tools:             slices.Clone(s.tools),
		ActivePackages:    slices.Clone(s.activePackages),
		PackageTemplates:  slices.Clone(s.packageTemplates),
		ServiceRates:      slices.Clone(s.serviceRates),
		Tasks:             slices.Clone(s.tasks),
		Settings:          cloneSettings(s.settings),
		PortalData:        portal,
	}, nil
}

// Restore writes every collection of snap and reloads the store. Snapshots
// without a version are accepted as version 1. Keys are written one by
// one; a failure stops the restore and leaves earlier keys written.
func (s *Store) Restore(ctx context.Context, snap *domain.Snapshot) error {
	ctx, span := storeTracer.Start(ctx, "Store.Restore")
	defer span.End()
	defer s.observe("restore", time.Now())

	if snap == nil {
		return &domain.ErrValidation{Field: "snapshot", Message: "required"}
	}
	if snap.Version > domain.BackupVersion {
		return &domain.ErrValidation{Field: "version",
			Message: fmt.Sprintf("backup version %d is newer than supported version %d", snap.Version, domain.BackupVersion)}
	}
	seen := map[int]bool{}
	for _, c := range snap.Coachees {
		if seen[c.ID] {
			return &domain.ErrValidation{Field: "coachees", Message: fmt.Sprintf("duplicate coachee id %d", c.ID)}
		}
		seen[c.ID] = true
	}

	if err := s.restoreLocked(ctx, snap); err != nil {
		return s.failed("restore backup", err)
	}
	if err := s.Load(ctx); err != nil {
		return err
	}

	s.logger.Info("backup restored",
		zap.Time("exported_at", snap.ExportedAt),
		zap.Int("coachees", len(snap.Coachees)),
		zap.Int("portal_data", len(snap.PortalData)),
	)
	s.notify(domain.NotifySuccess, "Backup restored", "")
	return nil
}

func (s *Store) restoreLocked(ctx context.Context, snap *domain.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := []func() error{
		func() error { return save(ctx, s.repos.Coachees, snap.Coachees) },
		func() error { return save(ctx, s.repos.Sessions, snap.Sessions) },
		func() error { return save(ctx, s.repos.SessionNotes, snap.SessionNotes) },
		func() error { return save(ctx, s.repos.Invoices, snap.Invoices) },
		func() error { return save(ctx, s.repos.RecurringInvoices, snap.RecurringInvoices) },
		func() error { return save(ctx, s.repos.JournalEntries, snap.JournalEntries) },
		func() error { return save(ctx, s.repos.GeneralDocuments, snap.GeneralDocuments) },
		func() error { return save(ctx, s.repos.CoachingDocuments, snap.CoachingDocuments) },
		func() error { return save(ctx, s.repos.Tools, snap.Tools) },
		func() error { return save(ctx, s.repos.ActivePackages, snap.ActivePackages) },
		func() error { return save(ctx, s.repos.PackageTemplates, snap.PackageTemplates) },
		func() error { return save(ctx, s.repos.ServiceRates, snap.ServiceRates) },
		func() error { return save(ctx, s.repos.Tasks, snap.Tasks) },
		func() error { return s.repos.Settings.Save(ctx, NormalizeSettings(snap.Settings)) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	keep := make(map[int]bool, len(snap.PortalData))
	for _, d := range snap.PortalData {
		if err := s.repos.PortalData(d.CoacheeID).Save(ctx, d); err != nil {
			return err
		}
		keep[d.CoacheeID] = true
	}

	// Coachee ids are reused after a restore, so portal data the snapshot
	// does not carry must not survive it.
	stored, err := s.repos.PortalDataIDs(ctx)
	if err != nil {
		return fmt.Errorf("list portal data: %w", err)
	}
	for _, id := range stored {
		if keep[id] {
			continue
		}
		if err := s.repos.DeletePortalData(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func save[E any](ctx context.Context, repo port.Repository[[]E], v []E) error {
	return repo.Save(ctx, persist.NonNil(v))
}
