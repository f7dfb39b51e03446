package handler_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/handler"
)

func (s *testServer) addCoachee(t *testing.T, first string) domain.Coachee {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/v1/coachees", map[string]any{"firstName": first, "lastName": "Schmidt"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add coachee: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.Coachee](t, rec)
}

func TestCoachees_CreateGetUpdate(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/coachees", map[string]any{
		"firstName": "Anna", "lastName": "Schmidt", "email": "a@x.com", "status": "POTENTIAL",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	c := decode[domain.Coachee](t, rec)
	if c.ID != 1 || c.Status != domain.CoacheePotential || c.PortalAccess.InitialToken == nil || c.PortalAccess.PermanentToken != nil {
		t.Errorf("unexpected coachee: %+v", c)
	}

	detail := decode[domain.CoacheeDetail](t, s.do(t, http.MethodGet, "/v1/coachees/1", nil))
	if detail.Coachee.Email != "a@x.com" {
		t.Errorf("unexpected detail: %+v", detail.Coachee)
	}

	c.Company = "ACME"
	c.Status = domain.CoacheeActive
	rec = s.do(t, http.MethodPut, "/v1/coachees/1", c)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[domain.Coachee](t, rec); got.Company != "ACME" || got.Status != domain.CoacheeActive {
		t.Errorf("update not applied: %+v", got)
	}

	if rec := s.do(t, http.MethodGet, "/v1/coachees/42", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/v1/coachees/abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for non-numeric id, got %d", rec.Code)
	}
}

func TestCoachees_Validation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing first name", map[string]any{"lastName": "Schmidt"}, "firstName"},
		{"bad email", map[string]any{"firstName": "Anna", "lastName": "Schmidt", "email": "nope"}, "email"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/v1/coachees", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			body := decode[map[string]string](t, rec)
			if body["field"] != tc.field {
				t.Errorf("expected field %q, got %q", tc.field, body["field"])
			}
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/coachees", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestCoachees_PersistenceFailure(t *testing.T) {
	s := newTestServer(t, nil)
	s.kv.FailWrites(domain.KeyCoachees, errors.New("quota exceeded"))

	rec := s.do(t, http.MethodPost, "/v1/coachees", map[string]any{"firstName": "Anna", "lastName": "Schmidt"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if got := decode[[]domain.Coachee](t, s.do(t, http.MethodGet, "/v1/coachees", nil)); len(got) != 0 {
		t.Errorf("expected no coachees after failed write, got %d", len(got))
	}
}

func TestSessions_TodayFilterAndName(t *testing.T) {
	s := newTestServer(t, nil)
	anna := s.addCoachee(t, "Anna")
	ben := s.addCoachee(t, "Ben")

	for i, offset := range []time.Duration{-26 * time.Hour, time.Hour, 3 * time.Hour, 40 * time.Hour} {
		cid := anna.ID
		if i%2 == 1 {
			cid = ben.ID
		}
		rec := s.do(t, http.MethodPost, "/v1/sessions", domain.Session{CoacheeID: cid, Date: testNow.Add(offset), Duration: 60})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add session: expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
	}

	today := decode[[]domain.Session](t, s.do(t, http.MethodGet, "/v1/sessions?filter=today", nil))
	if len(today) != 2 {
		t.Errorf("expected 2 sessions today, got %d", len(today))
	}
	byName := decode[[]domain.Session](t, s.do(t, http.MethodGet, "/v1/sessions?name=Ben%20Schmidt", nil))
	if len(byName) != 2 {
		t.Errorf("expected 2 sessions for Ben, got %d", len(byName))
	}
	byID := decode[[]domain.Session](t, s.do(t, http.MethodGet, "/v1/sessions?coachee="+strconv.Itoa(anna.ID)+"&filter=today", nil))
	if len(byID) != 1 {
		t.Errorf("expected 1 session for Anna today, got %d", len(byID))
	}
	if rec := s.do(t, http.MethodGet, "/v1/sessions?coachee=x", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad coachee filter, got %d", rec.Code)
	}
}

func TestSessions_CompleteDeductsPackage(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.addCoachee(t, "Anna")

	rec := s.do(t, http.MethodPost, "/v1/packages", map[string]any{"coacheeId": c.ID, "name": "Starter", "totalUnits": 1})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add package: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	pkg := decode[domain.ActivePackage](t, rec)

	var ids []string
	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/v1/sessions", domain.Session{CoacheeID: c.ID, Date: testNow.Add(time.Duration(i) * time.Hour), Duration: 60, PackageID: pkg.ID})
		ids = append(ids, decode[domain.Session](t, rec).ID)
	}

	rec = s.do(t, http.MethodPost, "/v1/sessions/"+ids[0]+"/status", map[string]string{"status": "COMPLETED"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/v1/sessions/"+ids[1]+"/status", map[string]string{"status": "COMPLETED"})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for exhausted package, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/sessions/"+ids[1]+"/status", map[string]string{"status": "DONE"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", rec.Code)
	}

	pkgs := decode[[]domain.ActivePackage](t, s.do(t, http.MethodGet, "/v1/packages?coachee="+strconv.Itoa(c.ID), nil))
	if len(pkgs) != 1 || pkgs[0].UsedUnits != 1 {
		t.Errorf("expected 1 used unit, got %+v", pkgs)
	}
}

func TestInvoices_CreateAndFilter(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.addCoachee(t, "Anna")

	rec := s.do(t, http.MethodPost, "/v1/invoices", domain.Invoice{
		CoacheeID: c.ID,
		Items: []domain.InvoiceItem{
			{Description: "Coaching", Quantity: 2, Rate: 50},
			{Description: "Material", Quantity: 1, Rate: 30},
		},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	inv := decode[domain.Invoice](t, rec)
	if inv.Total != 130 {
		t.Errorf("expected total 130, got %v", inv.Total)
	}

	if rec := s.do(t, http.MethodPost, "/v1/invoices/"+inv.ID+"/status", map[string]string{"status": "SENT"}); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	sent := decode[[]domain.Invoice](t, s.do(t, http.MethodGet, "/v1/invoices?status=SENT", nil))
	if len(sent) != 1 {
		t.Errorf("expected 1 sent invoice, got %d", len(sent))
	}

	run := decode[map[string]int](t, s.do(t, http.MethodPost, "/v1/recurring-invoices/run", nil))
	if run["created"] != 0 {
		t.Errorf("expected no recurring invoices, got %d", run["created"])
	}
}

func TestPortal_HTTPFlow(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.addCoachee(t, "Anna")
	initial := *c.PortalAccess.InitialToken

	view := decode[domain.PortalView](t, s.do(t, http.MethodGet, "/v1/portal/"+initial, nil))
	if view.State != domain.PortalPasswordSetup {
		t.Fatalf("expected PASSWORD_SETUP, got %s", view.State)
	}

	if rec := s.do(t, http.MethodPost, "/v1/portal/"+initial+"/setup", map[string]string{"password": "short"}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for short password, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/portal/"+initial+"/setup", map[string]string{"password": "correct horse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionID := rec.Header().Get(handler.PortalSessionHeader)
	setup := decode[domain.PortalView](t, rec)
	if setup.State != domain.PortalActivated || setup.RedirectTo == "" || sessionID == "" {
		t.Fatalf("unexpected setup view: %+v", setup)
	}
	permanent := setup.RedirectTo[len("/portal/"):]

	// The initial link is dead once used.
	if rec := s.do(t, http.MethodGet, "/v1/portal/"+initial, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for consumed initial token, got %d", rec.Code)
	}

	if rec := s.do(t, http.MethodGet, "/v1/portal/"+permanent+"/data", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without session, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPut, "/v1/portal/"+permanent+"/data",
		domain.PortalData{Entries: []domain.PortalEntry{{Content: "Week 1"}}},
		handler.PortalSessionHeader, sessionID)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decode[domain.PortalData](t, s.do(t, http.MethodGet, "/v1/portal/"+permanent+"/data", nil, handler.PortalSessionHeader, sessionID))
	if len(data.Entries) != 1 || data.CoacheeID != c.ID {
		t.Errorf("unexpected portal data: %+v", data)
	}

	if rec := s.do(t, http.MethodPost, "/v1/portal/"+permanent+"/unlock", map[string]string{"password": "wrong horse"}); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong password, got %d", rec.Code)
	}

	unknown := decode[domain.PortalView](t, s.do(t, http.MethodGet, "/v1/portal/does-not-exist", nil))
	if unknown.State != domain.PortalInvalid {
		t.Errorf("expected INVALID, got %s", unknown.State)
	}
}

func TestPortal_AdminReset(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.addCoachee(t, "Anna")

	rec := s.do(t, http.MethodPost, "/v1/coachees/"+strconv.Itoa(c.ID)+"/portal/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decode[struct {
		Coachee    domain.Coachee `json:"coachee"`
		PortalLink string         `json:"portalLink"`
	}](t, rec)
	if body.Coachee.PortalAccess.InitialToken == nil || *body.Coachee.PortalAccess.InitialToken == *c.PortalAccess.InitialToken {
		t.Error("expected a new initial token")
	}
	if body.PortalLink != "/portal/"+*body.Coachee.PortalAccess.InitialToken {
		t.Errorf("unexpected portal link %q", body.PortalLink)
	}
}

func TestBackupRestore_HTTP(t *testing.T) {
	s := newTestServer(t, nil)
	s.addCoachee(t, "Anna")

	rec := s.do(t, http.MethodGet, "/v1/backup", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="coachspace-backup-2026-03-10.json"` {
		t.Errorf("unexpected Content-Disposition %q", cd)
	}
	snap := decode[domain.Snapshot](t, rec)

	other := newTestServer(t, nil)
	if rec := other.do(t, http.MethodPost, "/v1/restore", snap); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[[]domain.Coachee](t, other.do(t, http.MethodGet, "/v1/coachees", nil)); len(got) != 1 || got[0].FirstName != "Anna" {
		t.Errorf("unexpected restored coachees: %+v", got)
	}

	if rec := other.do(t, http.MethodPost, "/v1/restore", domain.Snapshot{Version: domain.BackupVersion + 1}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for newer backup version, got %d", rec.Code)
	}
}

func TestDocuments_MultipartUpload(t *testing.T) {
	s := newTestServer(t, nil)
	c := s.addCoachee(t, "Anna")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("coacheeId", strconv.Itoa(c.ID))
	mw.WriteField("category", "Contracts")
	mw.WriteField("shared", "true")
	fw, err := mw.CreateFormFile("file", "agreement.pdf")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("%PDF-1.4"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	d := decode[domain.Document](t, rec)
	if d.FileName != "agreement.pdf" || d.FileType != "pdf" || !d.Shared || d.Size != 8 {
		t.Errorf("unexpected document: %+v", d)
	}

	shared := decode[[]domain.Document](t, s.do(t, http.MethodGet, "/v1/documents?shared=true&coachee="+strconv.Itoa(c.ID), nil))
	if len(shared) != 1 {
		t.Errorf("expected 1 shared document, got %d", len(shared))
	}
	// No blob storage is configured, so there is nothing to download.
	if rec := s.do(t, http.MethodGet, "/v1/documents/"+d.ID+"/download", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestTasks_LocalOnly(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/v1/tasks", map[string]any{"title": "Prepare workshop", "dueDate": "2026-04-01T09:00:00Z"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	task := decode[domain.Task](t, rec)
	if task.SyncStatus != domain.SyncLocal || task.UserID != "coach" || task.DueDate == nil {
		t.Errorf("unexpected task: %+v", task)
	}

	rec = s.do(t, http.MethodPatch, "/v1/tasks/"+task.ID, map[string]any{"clearDueDate": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decode[domain.Task](t, rec); got.DueDate != nil {
		t.Errorf("expected due date to be cleared, got %v", got.DueDate)
	}

	rec = s.do(t, http.MethodPatch, "/v1/tasks/"+task.ID, map[string]any{"completed": true})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if open := decode[[]domain.Task](t, s.do(t, http.MethodGet, "/v1/tasks?open=true", nil)); len(open) != 0 {
		t.Errorf("expected no open tasks, got %d", len(open))
	}
	if rec := s.do(t, http.MethodPost, "/v1/tasks/sync", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 without a remote store, got %d", rec.Code)
	}
}

func TestFeedback_Accepted(t *testing.T) {
	s := newTestServer(t, nil)

	if rec := s.do(t, http.MethodPost, "/v1/feedback", map[string]string{"message": "Great"}); rec.Code != http.StatusAccepted {
		t.Errorf("expected 202, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodPost, "/v1/feedback", map[string]string{"message": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

// --- Auth ---

type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, token string) (string, error) {
	switch token {
	case "good":
		return "user-1", nil
	case "anon":
		return "", &domain.ErrForbidden{Action: "anon key"}
	default:
		return "", &domain.ErrUnauthorized{Message: "invalid token"}
	}
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t, fakeVerifier{})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"rejected", "Bearer bad", http.StatusUnauthorized},
		{"anon key", "Bearer anon", http.StatusForbidden},
		{"valid", "Bearer good", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var headers []string
			if tc.header != "" {
				headers = []string{"Authorization", tc.header}
			}
			if rec := s.do(t, http.MethodGet, "/v1/coachees", nil, headers...); rec.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}

	// Portal routes stay public.
	if rec := s.do(t, http.MethodGet, "/v1/portal/unknown", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for portal without auth, got %d", rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/v1/tasks", map[string]any{"title": "Call Anna"}, "Authorization", "Bearer good")
	if got := decode[domain.Task](t, rec); got.UserID != "user-1" {
		t.Errorf("expected task owned by user-1, got %q", got.UserID)
	}
}
