package service_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/clock"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/kvstore"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/notify"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

// --- Fixture ---

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store   *service.Store
	kv      *kvstore.Memory
	clock   *clock.Mock
	feed    *notify.Feed
	metrics *observability.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, kvstore.NewMemory())
}

func newFixtureWith(t *testing.T, kv *kvstore.Memory) *fixture {
	t.Helper()
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	f := &fixture{
		kv:      kv,
		clock:   clock.NewMock(testNow),
		feed:    notify.New(100, logger),
		metrics: metrics,
	}
	repos := service.NewRepositories(persist.New(kv, logger, metrics))
	f.store = service.NewStore(repos, f.feed, f.clock, metrics, logger)
	if err := f.store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	return f
}

func (f *fixture) addCoachee(t *testing.T, first, last string) *domain.Coachee {
	t.Helper()
	c, err := f.store.AddCoachee(context.Background(), domain.NewCoachee{FirstName: first, LastName: last})
	if err != nil {
		t.Fatalf("add coachee: %v", err)
	}
	return c
}

func intPtr(v int) *int { return &v }

// --- Tests ---

func TestAddCoachee_FirstCoachee(t *testing.T) {
	f := newFixture(t)

	c, err := f.store.AddCoachee(context.Background(), domain.NewCoachee{
		FirstName: "Anna",
		LastName:  "Schmidt",
		Email:     "a@x.com",
		Status:    domain.CoacheePotential,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.ID != 1 {
		t.Errorf("expected id 1, got %d", c.ID)
	}
	if c.Status != domain.CoacheePotential {
		t.Errorf("expected status POTENTIAL, got %s", c.Status)
	}
	if c.PortalAccess.InitialToken == nil || *c.PortalAccess.InitialToken == "" {
		t.Error("expected a non-empty initial token")
	}
	if c.PortalAccess.PermanentToken != nil {
		t.Error("expected no permanent token")
	}
	if c.UID == "" {
		t.Error("expected a uid")
	}
	if len(c.AuditLog) != 1 || c.AuditLog[0].Action != "created" {
		t.Errorf("expected a created audit entry, got %+v", c.AuditLog)
	}

	notes := f.feed.Recent(1)
	if len(notes) != 1 || notes[0].Level != domain.NotifySuccess {
		t.Errorf("expected a success notification, got %+v", notes)
	}
}

func TestAddCoachee_DefaultsAndValidation(t *testing.T) {
	f := newFixture(t)

	c := f.addCoachee(t, "Ben", "Kurz")
	if c.Status != domain.CoacheePotential {
		t.Errorf("expected default status POTENTIAL, got %s", c.Status)
	}

	_, err := f.store.AddCoachee(context.Background(), domain.NewCoachee{FirstName: "X", Status: "ARCHIVED"})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAddCoachee_ConcurrentIDsAreUnique(t *testing.T) {
	f := newFixture(t)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.store.AddCoachee(context.Background(), domain.NewCoachee{FirstName: "C"}); err != nil {
				t.Errorf("add coachee: %v", err)
			}
		}()
	}
	wg.Wait()

	seen := map[int]bool{}
	for _, c := range f.store.ListCoachees(context.Background()) {
		if seen[c.ID] {
			t.Fatalf("duplicate coachee id %d", c.ID)
		}
		seen[c.ID] = true
	}
	if len(seen) != n {
		t.Errorf("expected %d coachees, got %d", n, len(seen))
	}
}

func TestAddCoachee_IDFollowsMaximum(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.SetRaw(domain.KeyCoachees, []byte(`[{"id":4,"firstName":"A"},{"id":9,"firstName":"B"}]`))
	f := newFixtureWith(t, kv)

	c := f.addCoachee(t, "C", "D")
	if c.ID != 10 {
		t.Errorf("expected id 10, got %d", c.ID)
	}
}

func TestAddCoachee_PersistenceFailureKeepsState(t *testing.T) {
	f := newFixture(t)
	f.addCoachee(t, "Anna", "Schmidt")

	f.kv.FailWrites(domain.KeyCoachees, errors.New("quota exceeded"))
	_, err := f.store.AddCoachee(context.Background(), domain.NewCoachee{FirstName: "Ben"})

	var pe *domain.ErrPersistence
	if !errors.As(err, &pe) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if got := len(f.store.ListCoachees(context.Background())); got != 1 {
		t.Errorf("expected 1 coachee in memory, got %d", got)
	}
	if notes := f.feed.Recent(1); len(notes) != 1 || notes[0].Level != domain.NotifyError {
		t.Errorf("expected an error notification, got %+v", notes)
	}

	f.kv.FailWrites(domain.KeyCoachees, nil)
	c := f.addCoachee(t, "Ben", "Kurz")
	if c.ID != 2 {
		t.Errorf("expected id 2 after recovery, got %d", c.ID)
	}
}

func TestUpdateCoachee_KeepsServerOwnedFields(t *testing.T) {
	f := newFixture(t)
	orig := f.addCoachee(t, "Anna", "Schmidt")

	in := *orig
	in.UID = "forged"
	in.PortalAccess = domain.PortalAccess{}
	in.Status = domain.CoacheeActive
	in.Email = "anna@example.com"
	f.clock.Advance(time.Hour)

	got, err := f.store.UpdateCoachee(context.Background(), in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.UID != orig.UID {
		t.Errorf("uid changed: %s", got.UID)
	}
	if got.PortalAccess.InitialToken == nil || *got.PortalAccess.InitialToken != *orig.PortalAccess.InitialToken {
		t.Error("portal access must not change through UpdateCoachee")
	}
	if got.Email != "anna@example.com" || got.Status != domain.CoacheeActive {
		t.Errorf("expected updated fields, got %+v", got)
	}
	if !got.UpdatedAt.Equal(testNow.Add(time.Hour)) {
		t.Errorf("expected updatedAt to advance, got %v", got.UpdatedAt)
	}

	var statusChanged bool
	for _, e := range got.AuditLog {
		if e.Action == "status_changed" {
			statusChanged = true
		}
	}
	if !statusChanged {
		t.Errorf("expected status_changed audit entry, got %+v", got.AuditLog)
	}
}

func TestGetCoachee_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.GetCoachee(context.Background(), 42)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLoad_NormalizesLegacyRecords(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.SetRaw(domain.KeyCoachees, []byte(`[{"id":1,"firstName":"Anna"}]`))
	kv.SetRaw(domain.KeyTasks, []byte(`[{"id":"t1","title":"a"},{"id":"t2","title":"b","remoteId":"r2"}]`))
	kv.SetRaw(domain.KeySessions, []byte(`not json`))
	f := newFixtureWith(t, kv)

	c, err := f.store.GetCoachee(context.Background(), 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Status != domain.CoacheeActive {
		t.Errorf("expected legacy coachee to default to ACTIVE, got %s", c.Status)
	}

	tasks := service.NewTaskService(f.store, nil, 1, "coach", f.metrics, zap.NewNop()).
		ListTasks(context.Background(), domain.TaskFilter{})
	statuses := map[string]domain.SyncStatus{}
	for _, tk := range tasks {
		statuses[tk.ID] = tk.SyncStatus
	}
	if statuses["t1"] != domain.SyncLocal || statuses["t2"] != domain.SyncSynced {
		t.Errorf("unexpected sync statuses: %+v", statuses)
	}

	if got := f.store.ListSessions(context.Background(), domain.SessionFilter{}); len(got) != 0 {
		t.Errorf("expected corrupt sessions to load empty, got %d", len(got))
	}
}

func TestStats_CountsAndMetrics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.addCoachee(t, "Anna", "Schmidt")
	in := *a
	in.Status = domain.CoacheeActive
	if _, err := f.store.UpdateCoachee(ctx, in); err != nil {
		t.Fatal(err)
	}
	f.addCoachee(t, "Ben", "Kurz")

	if _, err := f.store.AddSession(ctx, domain.Session{CoacheeID: a.ID, Date: testNow.Add(2 * time.Hour), Duration: 60}); err != nil {
		t.Fatal(err)
	}
	inv, err := f.store.CreateInvoice(ctx, domain.Invoice{
		CoacheeID: a.ID,
		Items:     []domain.InvoiceItem{{Description: "Session", Quantity: 1, Rate: 120}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.store.SetInvoiceStatus(ctx, inv.ID, domain.InvoiceSent); err != nil {
		t.Fatal(err)
	}

	f.kv.FailWrites(domain.KeyTools, errors.New("disk full"))
	_, _ = f.store.AddTool(ctx, domain.Tool{Name: "Timeline"})

	got := f.store.Stats(ctx)
	if got.Coachees != 2 || got.ActiveCoachees != 1 {
		t.Errorf("unexpected coachee counts: %+v", got)
	}
	if got.SessionsToday != 1 {
		t.Errorf("expected 1 session today, got %d", got.SessionsToday)
	}
	if got.OpenInvoiceTotal != 120 {
		t.Errorf("expected open invoice total 120, got %v", got.OpenInvoiceTotal)
	}
	if got.PersistenceErrors != 1 {
		t.Errorf("expected 1 persistence error, got %v", got.PersistenceErrors)
	}
}

func TestGetCoacheeByToken_SlotOrder(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.SetRaw(domain.KeyCoachees, []byte(`[
		{"id":1,"firstName":"Anna","portalAccess":{"initialToken":"shared-a","permanentToken":"perm-1"}},
		{"id":2,"firstName":"Ben","portalAccess":{"initialToken":null,"permanentToken":"shared-a","oneTimeToken":"shared-b"}},
		{"id":3,"firstName":"Carla","portalAccess":{"initialToken":null,"permanentToken":"shared-b","oneTimeToken":"legacy-3"}}
	]`))
	f := newFixtureWith(t, kv)

	tests := []struct {
		name   string
		token  string
		wantID int
	}{
		{"initial beats permanent", "shared-a", 1},
		{"permanent beats one-time", "shared-b", 3},
		{"permanent token", "perm-1", 1},
		{"legacy one-time token", "legacy-3", 3},
		{"unknown token", "does-not-exist", 0},
		{"empty token", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := f.store.GetCoacheeByToken(context.Background(), tt.token)
			if tt.wantID == 0 {
				var nf *domain.ErrNotFound
				if !errors.As(err, &nf) {
					t.Fatalf("expected ErrNotFound, got %v (%+v)", err, c)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetCoacheeByToken: %v", err)
			}
			if c.ID != tt.wantID {
				t.Errorf("coachee id = %d, want %d", c.ID, tt.wantID)
			}
		})
	}
}

func TestGetCoacheeByID_JoinsOwnRecords(t *testing.T) {
	kv := kvstore.NewMemory()
	kv.SetRaw(domain.KeyCoachees, []byte(`[
		{"id":1,"firstName":"Anna","documents":[{"id":"d-legacy","coacheeId":1,"name":"intake.pdf"}]},
		{"id":2,"firstName":"Ben"}
	]`))
	kv.SetRaw(domain.KeySessions, []byte(`[
		{"id":"s-1","coacheeId":1,"status":"PLANNED"},
		{"id":"s-2","coacheeId":2,"status":"PLANNED"},
		{"id":"s-3","coacheeId":1,"status":"COMPLETED"}
	]`))
	kv.SetRaw(domain.KeyInvoices, []byte(`[{"id":"i-1","coacheeId":2},{"id":"i-2","coacheeId":1}]`))
	kv.SetRaw(domain.KeyJournalEntries, []byte(`[
		{"id":"j-1","coacheeId":1,"title":"Anna"},
		{"id":"j-2","title":"Supervision"},
		{"id":"j-3","coacheeId":2,"title":"Ben"}
	]`))
	kv.SetRaw(domain.KeyActivePackages, []byte(`[{"id":"p-1","coacheeId":1,"totalUnits":5},{"id":"p-2","coacheeId":2,"totalUnits":5}]`))
	kv.SetRaw(domain.KeyTasks, []byte(`[
		{"id":"t-1","coacheeId":1,"title":"Send worksheet","syncStatus":"LOCAL"},
		{"id":"t-2","coacheeId":1,"title":"Deleted","syncStatus":"PENDING_DELETE"},
		{"id":"t-3","title":"Personal","syncStatus":"LOCAL"},
		{"id":"t-4","coacheeId":2,"title":"Ben's task","syncStatus":"SYNCED"}
	]`))
	kv.SetRaw(domain.KeyCoachingDocuments, []byte(`[
		{"id":"d-1","coacheeId":1,"name":"goals.pdf"},
		{"id":"d-2","coacheeId":2,"name":"other.pdf"}
	]`))
	f := newFixtureWith(t, kv)

	d, err := f.store.GetCoacheeByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetCoacheeByID: %v", err)
	}

	checks := []struct {
		name string
		got  []string
		want []string
	}{
		{"sessions", idsOf(d.Sessions, func(s domain.Session) string { return s.ID }), []string{"s-1", "s-3"}},
		{"invoices", idsOf(d.Invoices, func(i domain.Invoice) string { return i.ID }), []string{"i-2"}},
		{"journal", idsOf(d.JournalEntries, func(j domain.JournalEntry) string { return j.ID }), []string{"j-1"}},
		{"packages", idsOf(d.Packages, func(p domain.ActivePackage) string { return p.ID }), []string{"p-1"}},
		{"tasks", idsOf(d.Tasks, func(t domain.Task) string { return t.ID }), []string{"t-1"}},
		{"documents", idsOf(d.Documents, func(doc domain.Document) string { return doc.ID }), []string{"d-1", "d-legacy"}},
	}
	for _, c := range checks {
		if diff := cmp.Diff(c.want, c.got); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", c.name, diff)
		}
	}

	if _, err := f.store.GetCoacheeByID(context.Background(), 99); err == nil {
		t.Error("expected ErrNotFound for an unknown coachee")
	}
}

func idsOf[T any](items []T, id func(T) string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, id(it))
	}
	sort.Strings(out)
	return out
}
