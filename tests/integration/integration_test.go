package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/handler"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/cache"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/clock"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/kvstore"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/notify"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/persist"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/resilience"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/supabase"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const accessToken = "coach-access-token"

// fakeSupabase serves the auth user endpoint and the PostgREST tables the
// service uses.
type fakeSupabase struct {
	mu       sync.Mutex
	nextID   int
	tasks    map[string]map[string]any
	feedback []map[string]any
}

func newFakeSupabase() *fakeSupabase {
	return &fakeSupabase{tasks: map[string]map[string]any{}}
}

func (f *fakeSupabase) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path == "/auth/v1/user" {
		if r.Header.Get("Authorization") != "Bearer "+accessToken {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"msg":"invalid JWT"}`)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"user-1","email":"coach@example.com","role":"authenticated"}`)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/rest/v1/beta_feedback" && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		f.feedback = append(f.feedback, row)
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, "[]")

	case r.URL.Path == "/rest/v1/tasks" && r.Method == http.MethodGet:
		user := strings.TrimPrefix(r.URL.Query().Get("user_id"), "eq.")
		rows := []map[string]any{}
		for _, row := range f.tasks {
			if row["user_id"] == user {
				rows = append(rows, row)
			}
		}
		json.NewEncoder(w).Encode(rows)

	case r.URL.Path == "/rest/v1/tasks" && r.Method == http.MethodPost:
		var row map[string]any
		json.NewDecoder(r.Body).Decode(&row)
		row["id"] = f.insertLocked(row)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode([]map[string]any{row})

	case r.URL.Path == "/rest/v1/tasks" && r.Method == http.MethodPatch:
		id := strings.TrimPrefix(r.URL.Query().Get("id"), "eq.")
		row, ok := f.tasks[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var patch map[string]any
		json.NewDecoder(r.Body).Decode(&patch)
		for k, v := range patch {
			row[k] = v
		}
		w.WriteHeader(http.StatusNoContent)

	case r.URL.Path == "/rest/v1/tasks" && r.Method == http.MethodDelete:
		delete(f.tasks, strings.TrimPrefix(r.URL.Query().Get("id"), "eq."))
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeSupabase) insertLocked(row map[string]any) string {
	f.nextID++
	id := fmt.Sprintf("r%d", f.nextID)
	row["id"] = id
	f.tasks[id] = row
	return id
}

func (f *fakeSupabase) seedTask(userID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertLocked(map[string]any{"user_id": userID, "title": title, "completed": false})
}

type client struct {
	t       *testing.T
	baseURL string
}

func (c client) do(method, path string, body any, headers ...string) (*http.Response, []byte) {
	c.t.Helper()
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		c.t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp, out
}

func (c client) admin(method, path string, body any) (*http.Response, []byte) {
	c.t.Helper()
	return c.do(method, path, body, "Authorization", "Bearer "+accessToken)
}

// TestIntegration_FullFlow wires the service the way serve does, against an
// in-memory store and a fake hosted backend, and drives it over HTTP.
func TestIntegration_FullFlow(t *testing.T) {
	backend := newFakeSupabase()
	supabaseServer := httptest.NewServer(backend)
	defer supabaseServer.Close()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	feed := notify.New(50, logger)
	clk := clock.NewMock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))

	kv := kvstore.NewMemory()
	store := service.NewStore(service.NewRepositories(persist.New(kv, logger, metrics)), feed, clk, metrics, logger)
	if err := store.Load(context.Background()); err != nil {
		t.Fatal(err)
	}

	sb := supabase.NewClient(
		supabaseServer.Client(), supabaseServer.URL, "anon-key", "service-key",
		resilience.NewCircuitBreaker("supabase-integration"),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		metrics,
		logger,
	)
	sessions := cache.New[service.PortalSession](30 * time.Minute).WithClock(clk.Now)
	defer sessions.Close()

	router := handler.NewRouter(handler.Services{
		Store:     store,
		Portal:    service.NewPortalService(store, sessions, service.PortalConfig{PasswordCost: bcrypt.MinCost}, metrics, logger),
		Tasks:     service.NewTaskService(store, sb, 2, "owner", metrics, logger),
		Documents: service.NewDocumentService(store, nil, logger),
		Feedback:  service.NewFeedbackService(sb, feed, logger),
		Feed:      feed,
		Verifier:  service.NewSessionVerifier("", sb),
		Checks:    []handler.HealthCheck{{Name: "store", Ping: store.Ping}, {Name: "supabase", Ping: sb.Ping}},
	}, metrics, logger)
	server := httptest.NewServer(router)
	defer server.Close()

	c := client{t: t, baseURL: server.URL}

	// --- Step 1: health ---
	resp, body := c.do(http.MethodGet, "/healthz", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	var health domain.HealthStatus
	json.Unmarshal(body, &health)
	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %+v", health)
	}

	// --- Step 2: admin auth goes through the hosted backend ---
	if resp, _ := c.do(http.MethodGet, "/v1/coachees", nil, "Authorization", "Bearer stolen"); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for a rejected token, got %d", resp.StatusCode)
	}

	// --- Step 3: coachee ---
	resp, body = c.admin(http.MethodPost, "/v1/coachees", map[string]any{
		"firstName": "Anna", "lastName": "Schmidt", "email": "a@x.com", "status": "POTENTIAL",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add coachee: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var anna domain.Coachee
	json.Unmarshal(body, &anna)
	if anna.ID != 1 || anna.PortalAccess.InitialToken == nil {
		t.Fatalf("unexpected coachee %+v", anna)
	}

	// --- Step 4: a new task is pushed right away ---
	resp, body = c.admin(http.MethodPost, "/v1/tasks", map[string]any{"title": "Send worksheet", "coacheeId": anna.ID})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add task: expected 201, got %d: %s", resp.StatusCode, body)
	}
	var task domain.Task
	json.Unmarshal(body, &task)
	if task.SyncStatus != domain.SyncSynced || task.RemoteID == "" || task.UserID != "user-1" {
		t.Errorf("expected a synced task owned by user-1, got %+v", task)
	}

	// --- Step 5: a row created elsewhere arrives on sync ---
	backend.seedTask("user-1", "Book supervision")
	backend.seedTask("user-2", "Not mine")
	resp, body = c.admin(http.MethodPost, "/v1/tasks/sync", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var report domain.SyncReport
	json.Unmarshal(body, &report)
	if report.Failed != 0 {
		t.Errorf("unexpected sync failures: %+v", report)
	}
	_, body = c.admin(http.MethodGet, "/v1/tasks", nil)
	var tasks []domain.Task
	json.Unmarshal(body, &tasks)
	if len(tasks) != 2 {
		t.Errorf("expected 2 tasks after sync, got %d", len(tasks))
	}

	// --- Step 6: feedback lands in the hosted table ---
	if resp, body := c.admin(http.MethodPost, "/v1/feedback", map[string]string{"message": "Portal works", "page": "/portal"}); resp.StatusCode != http.StatusAccepted {
		t.Errorf("feedback: expected 202, got %d: %s", resp.StatusCode, body)
	}
	backend.mu.Lock()
	if len(backend.feedback) != 1 || backend.feedback[0]["user_id"] != "user-1" {
		t.Errorf("unexpected feedback rows %+v", backend.feedback)
	}
	backend.mu.Unlock()

	// --- Step 7: portal activation and data ---
	initial := *anna.PortalAccess.InitialToken
	resp, body = c.do(http.MethodPost, "/v1/portal/"+initial+"/setup", map[string]string{"password": "correct horse"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portal setup: expected 200, got %d: %s", resp.StatusCode, body)
	}
	var view domain.PortalView
	json.Unmarshal(body, &view)
	permanent := strings.TrimPrefix(view.RedirectTo, "/portal/")
	sessionID := resp.Header.Get(handler.PortalSessionHeader)

	resp, body = c.do(http.MethodGet, "/v1/portal/"+permanent, nil, handler.PortalSessionHeader, sessionID)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("portal open: expected 200, got %d", resp.StatusCode)
	}
	json.Unmarshal(body, &view)
	if view.State != domain.PortalUnlocked || view.Coachee == nil || view.Coachee.PortalAccess.PasswordHash != "" {
		t.Errorf("unexpected unlocked view %+v", view)
	}

	// --- Step 8: everything survived in the key-value store ---
	raw, ok, err := kv.Get(context.Background(), domain.KeyCoachees)
	if err != nil || !ok {
		t.Fatalf("expected persisted coachees, ok=%v err=%v", ok, err)
	}
	var persisted []domain.Coachee
	json.Unmarshal(raw, &persisted)
	if len(persisted) != 1 || persisted[0].PortalAccess.PermanentToken == nil || *persisted[0].PortalAccess.PermanentToken != permanent {
		t.Errorf("unexpected persisted coachees %+v", persisted)
	}

	// --- Step 9: stats reflect the run ---
	_, body = c.admin(http.MethodGet, "/v1/stats", nil)
	var stats domain.StatsSnapshot
	json.Unmarshal(body, &stats)
	if stats.Coachees != 1 || stats.OpenTasks != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
}
