package persist_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/kvstore"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
)

func newAdapter() (*persist.Adapter, *kvstore.Memory, *observability.Metrics) {
	kv := kvstore.NewMemory()
	m := observability.NewMetrics()
	return persist.New(kv, zap.NewNop(), m), kv, m
}

func intPtr(i int) *int { return &i }

func strPtr(s string) *string { return &s }

// roundTrip writes v and reads it back with a different default.
func roundTrip[T any](t *testing.T, a *persist.Adapter, key string, v T, other T) {
	t.Helper()
	ctx := context.Background()
	if err := persist.Write(ctx, a, key, v); err != nil {
		t.Fatalf("write %s: %v", key, err)
	}
	got, err := persist.Read(ctx, a, key, other, nil)
	if err != nil {
		t.Fatalf("read %s: %v", key, err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("%s round trip mismatch (-want +got):\n%s", key, diff)
	}
}

func TestRoundTrip_EveryCollection(t *testing.T) {
	a, _, _ := newAdapter()
	now := time.Date(2025, 4, 2, 10, 30, 0, 0, time.UTC)
	due := now.AddDate(0, 0, 14)

	roundTrip(t, a, domain.KeyCoachees, []domain.Coachee{{
		ID: 1, UID: "6f1c", FirstName: "Anna", LastName: "Schmidt", Email: "a@x.com",
		Status:       domain.CoacheePotential,
		PortalAccess: domain.PortalAccess{InitialToken: strPtr("abc")},
		Consents:     domain.Consents{DataProcessing: true, Trail: []domain.ConsentEvent{{Consent: "dataProcessing", Granted: true, At: now}}},
		Goals:        []domain.Goal{{ID: "g1", Title: "Lead", SubGoals: []domain.SubGoal{{ID: "s1", Title: "Delegate", Completed: true}}}},
		CustomData:   map[string]any{"industry": "IT"},
		AuditLog:     []domain.AuditEntry{{At: now, Action: "created"}},
		CreatedAt:    now, UpdatedAt: now,
	}}, nil)
	roundTrip(t, a, domain.KeySessions, []domain.Session{{
		ID: "3", CoacheeID: 1, Date: now, Duration: 60, Mode: domain.ModeRemote,
		Status: domain.SessionPlanned, PackageID: "7", CreatedAt: now, UpdatedAt: now,
	}}, []domain.Session{})
	roundTrip(t, a, domain.KeyInvoices, []domain.Invoice{{
		ID: "i1", Number: "RE-2025-001", CoacheeID: 1, Status: domain.InvoiceSent,
		Items: []domain.InvoiceItem{{Description: "Coaching", Quantity: 2, Rate: 50, Total: 100}},
		Date:  now, DueDate: due, Currency: "EUR", Total: 100, CreatedAt: now, UpdatedAt: now,
	}}, nil)
	roundTrip(t, a, domain.KeyJournalEntries, []domain.JournalEntry{{ID: "j1", CoacheeID: intPtr(1), Title: "t", Content: "c", Tags: []string{"x"}, CreatedAt: now, UpdatedAt: now}}, nil)
	roundTrip(t, a, domain.KeyGeneralDocuments, []domain.Document{{ID: "d1", Name: "Guide", FileName: "guide.pdf", FileType: "pdf", Size: 1024, UploadedAt: now}}, nil)
	roundTrip(t, a, domain.KeyCoachingDocuments, []domain.Document{{ID: "d2", CoacheeID: intPtr(1), Name: "Notes", FileName: "n.docx", FileType: "document", Shared: true, UploadedAt: now}}, nil)
	roundTrip(t, a, domain.KeyTools, []domain.Tool{{ID: "t1", Name: "GROW", Category: "Model", UsageCount: 3, LastUsedAt: &now, CoacheeIDs: []int{1}}}, nil)
	roundTrip(t, a, domain.KeyActivePackages, []domain.ActivePackage{{ID: "7", CoacheeID: 1, Name: "5er", TotalUnits: 5, UsedUnits: 2, PurchasedAt: now}}, nil)
	roundTrip(t, a, domain.KeyServiceRates, []domain.ServiceRate{{ID: "r1", Name: "Hour", Rate: 120, Currency: "EUR"}}, nil)
	roundTrip(t, a, domain.KeyTasks, []domain.Task{{ID: "k1", Title: "Call", DueDate: &due, SyncStatus: domain.SyncLocal, CreatedAt: now, UpdatedAt: now}}, nil)
	roundTrip(t, a, domain.KeySessionNotes, []domain.SessionNote{{ID: "n1", SessionID: "3", CoacheeID: 1, Content: "x", CreatedAt: now, UpdatedAt: now}}, nil)
	roundTrip(t, a, domain.KeyRecurringInvoices, []domain.RecurringInvoice{{ID: "ri1", CoacheeID: 1, Interval: domain.IntervalMonthly, NextDate: now, Active: true, CreatedAt: now}}, nil)
	roundTrip(t, a, domain.KeyPackageTemplates, []domain.PackageTemplate{{ID: "p1", Name: "10er", Units: 10, Price: 1000, Currency: "EUR"}}, nil)
	roundTrip(t, a, domain.KeyAppSettings, domain.Settings{
		Company:            domain.CompanyProfile{Name: "Coaching GmbH"},
		DocumentCategories: []string{"Contracts"},
		AIPrompts:          []domain.AIPrompt{{ID: "a", Category: "Prep", Title: "Warmup", Prompt: "..."}},
		Invoice:            domain.InvoiceSettings{Prefix: "RE", PaymentDays: 14, Currency: "EUR"},
	}, domain.Settings{})
	roundTrip(t, a, domain.PortalDataKey(1), domain.PortalData{CoacheeID: 1, Entries: []domain.PortalEntry{{ID: "e", Type: "reflection", Content: "ok", CreatedAt: now}}, UpdatedAt: now}, domain.PortalData{})
}

func TestRead_MissingKeyReturnsInitial(t *testing.T) {
	a, _, _ := newAdapter()

	got, err := persist.Read(context.Background(), a, domain.KeyTools, []domain.Tool{{ID: "default"}}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].ID != "default" {
		t.Errorf("expected initial value, got %+v", got)
	}
}

func TestRead_CorruptValueFallsBack(t *testing.T) {
	a, kv, _ := newAdapter()
	kv.SetRaw(domain.KeySessions, []byte("{not json"))

	got, err := persist.Read(context.Background(), a, domain.KeySessions, []domain.Session{}, nil)
	if err != nil {
		t.Fatalf("expected fallback without error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty fallback, got %d sessions", len(got))
	}
}

func TestRead_NormalizeAppliedToDefaultAndParsed(t *testing.T) {
	a, kv, _ := newAdapter()
	calls := 0
	normalize := func(s domain.Settings) domain.Settings {
		calls++
		if s.Invoice.Prefix == "" {
			s.Invoice.Prefix = "RE"
		}
		return s
	}
	ctx := context.Background()

	got, _ := persist.Read(ctx, a, domain.KeyAppSettings, domain.Settings{}, normalize)
	if got.Invoice.Prefix != "RE" {
		t.Errorf("expected normalized default, got %q", got.Invoice.Prefix)
	}

	kv.SetRaw(domain.KeyAppSettings, []byte(`{"company":{"name":"X"}}`))
	got, _ = persist.Read(ctx, a, domain.KeyAppSettings, domain.Settings{}, normalize)
	if got.Company.Name != "X" || got.Invoice.Prefix != "RE" {
		t.Errorf("expected saved name plus backfilled prefix, got %+v", got)
	}
	if calls != 2 {
		t.Errorf("expected normalize called twice, got %d", calls)
	}
}

func TestWrite_FailureSurfacesPersistenceError(t *testing.T) {
	a, kv, m := newAdapter()
	kv.FailWrites(domain.KeyTasks, errors.New("quota exceeded"))

	err := persist.Write(context.Background(), a, domain.KeyTasks, []domain.Task{{ID: "1"}})

	var perr *domain.ErrPersistence
	if !errors.As(err, &perr) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if perr.Key != domain.KeyTasks {
		t.Errorf("expected key tasks, got %s", perr.Key)
	}
	if snap := m.GetSnapshot([]string{domain.KeyTasks}); snap.PersistenceErrors != 1 {
		t.Errorf("expected 1 persistence error counted, got %v", snap.PersistenceErrors)
	}
}

func TestCollection_SubscribeAfterSuccessfulSave(t *testing.T) {
	a, kv, _ := newAdapter()
	coll := persist.NewCollection(a, domain.KeyTools, persist.SliceOf[domain.Tool], persist.NonNil[domain.Tool])
	ctx := context.Background()

	var seen [][]domain.Tool
	unsubscribe := coll.Subscribe(func(v []domain.Tool) { seen = append(seen, v) })

	if err := coll.Save(ctx, []domain.Tool{{ID: "a"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	kv.FailWrites(domain.KeyTools, errors.New("down"))
	if err := coll.Save(ctx, []domain.Tool{{ID: "b"}}); err == nil {
		t.Fatal("expected save failure")
	}
	kv.FailWrites(domain.KeyTools, nil)

	unsubscribe()
	if err := coll.Save(ctx, []domain.Tool{{ID: "c"}}); err != nil {
		t.Fatalf("save: %v", err)
	}

	if len(seen) != 1 || seen[0][0].ID != "a" {
		t.Errorf("expected exactly one notification for 'a', got %+v", seen)
	}

	got, err := coll.Load(ctx)
	if err != nil || len(got) != 1 || got[0].ID != "c" {
		t.Errorf("expected stored 'c', got %+v err=%v", got, err)
	}
}

func TestCollection_NullBecomesEmpty(t *testing.T) {
	a, kv, _ := newAdapter()
	kv.SetRaw(domain.KeyTasks, []byte("null"))
	coll := persist.NewCollection(a, domain.KeyTasks, persist.SliceOf[domain.Task], persist.NonNil[domain.Task])

	got, err := coll.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected non-nil empty slice")
	}
}
