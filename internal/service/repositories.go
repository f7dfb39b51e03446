package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
)

// Repositories is the storage surface the Store depends on, one repository
// per collection key.
type Repositories struct {
	Coachees          port.Repository[[]domain.Coachee]
	Sessions          port.Repository[[]domain.Session]
	SessionNotes      port.Repository[[]domain.SessionNote]
	Invoices          port.Repository[[]domain.Invoice]
	RecurringInvoices port.Repository[[]domain.RecurringInvoice]
	JournalEntries    port.Repository[[]domain.JournalEntry]
	GeneralDocuments  port.Repository[[]domain.Document]
	CoachingDocuments port.Repository[[]domain.Document]
	Tools             port.Repository[[]domain.Tool]
	ActivePackages    port.Repository[[]domain.ActivePackage]
	PackageTemplates  port.Repository[[]domain.PackageTemplate]
	ServiceRates      port.Repository[[]domain.ServiceRate]
	Tasks             port.Repository[[]domain.Task]
	Settings          port.Repository[domain.Settings]

	// PortalData returns the repository for one coachee's portal data.
	PortalData func(coacheeID int) port.Repository[domain.PortalData]
	// PortalDataIDs lists coachee ids that have stored portal data.
	PortalDataIDs func(ctx context.Context) ([]int, error)
	// DeletePortalData drops one coachee's portal data key.
	DeletePortalData func(ctx context.Context, coacheeID int) error
}

// NewRepositories binds every collection key to the adapter.
func NewRepositories(a *persist.Adapter) Repositories {
	return Repositories{
		Coachees:          persist.NewCollection(a, domain.KeyCoachees, persist.SliceOf[domain.Coachee], normalizeCoachees),
		Sessions:          list[domain.Session](a, domain.KeySessions),
		SessionNotes:      list[domain.SessionNote](a, domain.KeySessionNotes),
		Invoices:          list[domain.Invoice](a, domain.KeyInvoices),
		RecurringInvoices: list[domain.RecurringInvoice](a, domain.KeyRecurringInvoices),
		JournalEntries:    list[domain.JournalEntry](a, domain.KeyJournalEntries),
		GeneralDocuments:  list[domain.Document](a, domain.KeyGeneralDocuments),
		CoachingDocuments: list[domain.Document](a, domain.KeyCoachingDocuments),
		Tools:             list[domain.Tool](a, domain.KeyTools),
		ActivePackages:    list[domain.ActivePackage](a, domain.KeyActivePackages),
		PackageTemplates:  list[domain.PackageTemplate](a, domain.KeyPackageTemplates),
		ServiceRates:      list[domain.ServiceRate](a, domain.KeyServiceRates),
		Tasks:             persist.NewCollection(a, domain.KeyTasks, persist.SliceOf[domain.Task], normalizeTasks),
		Settings:          persist.NewCollection(a, domain.KeyAppSettings, DefaultSettings, NormalizeSettings),

		PortalData: func(coacheeID int) port.Repository[domain.PortalData] {
			return persist.NewCollection(a, domain.PortalDataKey(coacheeID),
				func() domain.PortalData { return domain.PortalData{CoacheeID: coacheeID} },
				normalizePortalData(coacheeID))
		},
		PortalDataIDs: func(ctx context.Context) ([]int, error) {
			keys, err := a.KV().Keys(ctx, domain.PortalDataKeyPrefix)
			if err != nil {
				return nil, err
			}
			ids := make([]int, 0, len(keys))
			for _, k := range keys {
				id, err := strconv.Atoi(strings.TrimPrefix(k, domain.PortalDataKeyPrefix))
				if err != nil {
					continue
				}
				ids = append(ids, id)
			}
			sort.Ints(ids)
			return ids, nil
		},
		DeletePortalData: func(ctx context.Context, coacheeID int) error {
			return persist.Delete(ctx, a, domain.PortalDataKey(coacheeID))
		},
	}
}

func list[E any](a *persist.Adapter, key string) *persist.Collection[[]E] {
	return persist.NewCollection(a, key, persist.SliceOf[E], persist.NonNil[E])
}

// normalizeCoachees fills sub-records older exports lack.
func normalizeCoachees(in []domain.Coachee) []domain.Coachee {
	in = persist.NonNil(in)
	for i := range in {
		c := &in[i]
		if c.Status == "" {
			c.Status = domain.CoacheeActive
		}
		if c.Goals == nil {
			c.Goals = []domain.Goal{}
		}
		if c.AuditLog == nil {
			c.AuditLog = []domain.AuditEntry{}
		}
		if c.Consents.Trail == nil {
			c.Consents.Trail = []domain.ConsentEvent{}
		}
	}
	return in
}

// normalizeTasks gives records saved before sync existed a status.
func normalizeTasks(in []domain.Task) []domain.Task {
	in = persist.NonNil(in)
	for i := range in {
		if in[i].SyncStatus == "" {
			if in[i].RemoteID != "" {
				in[i].SyncStatus = domain.SyncSynced
			} else {
				in[i].SyncStatus = domain.SyncLocal
			}
		}
	}
	return in
}

func normalizePortalData(coacheeID int) func(domain.PortalData) domain.PortalData {
	return func(d domain.PortalData) domain.PortalData {
		d.CoacheeID = coacheeID
		if d.Entries == nil {
			d.Entries = []domain.PortalEntry{}
		}
		if d.CompletedSubGoals == nil {
			d.CompletedSubGoals = []string{}
		}
		return d
	}
}
