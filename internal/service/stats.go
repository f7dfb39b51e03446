package service

import (
	"context"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// persistedKeys are the collection keys reported in the persistence error
// count of GET /v1/stats.
var persistedKeys = []string{
	domain.KeyCoachees,
	domain.KeySessions,
	domain.KeySessionNotes,
	domain.KeyInvoices,
	domain.KeyRecurringInvoices,
	domain.KeyJournalEntries,
	domain.KeyGeneralDocuments,
	domain.KeyCoachingDocuments,
	domain.KeyTools,
	domain.KeyActivePackages,
	domain.KeyPackageTemplates,
	domain.KeyServiceRates,
	domain.KeyTasks,
	domain.KeyAppSettings,
}

// Stats combines dashboard counters with the application metrics.
func (s *Store) Stats(ctx context.Context) domain.StatsSnapshot {
	_, span := storeTracer.Start(ctx, "Store.Stats")
	defer span.End()

	s.mu.RLock()
	now := s.now()
	var out domain.StatsSnapshot
	out.Coachees = len(s.coachees)
	for _, c := range s.coachees {
		if c.Status == domain.CoacheeActive {
			out.ActiveCoachees++
		}
	}
	for _, sess := range s.sessions {
		if !sess.Archived && sameDay(sess.Date, now, now.Location()) {
			out.SessionsToday++
		}
	}
	for _, t := range s.tasks {
		if !t.Completed && t.SyncStatus != domain.SyncPendingDelete {
			out.OpenTasks++
		}
	}
	for _, inv := range s.invoices {
		if inv.Status == domain.InvoiceSent || inv.Status == domain.InvoiceOverdue {
			out.OpenInvoiceTotal += inv.Total
		}
	}
	s.mu.RUnlock()

	m := s.metrics.GetSnapshot(persistedKeys)
	out.PersistenceErrors = m.PersistenceErrors
	out.PortalUnlocks = m.PortalUnlocks
	out.PortalFailures = m.PortalFailures
	out.PortalCacheHitRate = m.PortalCacheHitRate
	out.TaskSyncFailures = m.TaskSyncFailures
	return out
}
