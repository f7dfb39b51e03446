package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
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
	"github.com/allensfl/coachingspace-app-sub001/internal/port"
	"github.com/allensfl/coachingspace-app-sub001/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

type testServer struct {
	router http.Handler
	store  *service.Store
	kv     *kvstore.Memory
	clock  *clock.Mock
}

func newTestServer(t *testing.T, verifier port.SessionVerifier) *testServer {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	kv := kvstore.NewMemory()
	clk := clock.NewMock(testNow)
	feed := notify.New(50, logger)

	store := service.NewStore(service.NewRepositories(persist.New(kv, logger, metrics)), feed, clk, metrics, logger)
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	sessions := cache.New[service.PortalSession](30 * time.Minute).WithClock(clk.Now)
	t.Cleanup(sessions.Close)

	svc := handler.Services{
		Store:     store,
		Portal:    service.NewPortalService(store, sessions, service.PortalConfig{AttemptsPerMinute: 5, PasswordCost: bcrypt.MinCost}, metrics, logger),
		Tasks:     service.NewTaskService(store, nil, 2, "coach", metrics, logger),
		Documents: service.NewDocumentService(store, nil, logger),
		Feedback:  service.NewFeedbackService(nil, feed, logger),
		Feed:      feed,
		Verifier:  verifier,
		OwnerID:   "coach",
	}
	return &testServer{
		router: handler.NewRouter(svc, metrics, logger),
		store:  store,
		kv:     kv,
		clock:  clk,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthz_DegradedDependency(t *testing.T) {
	router := handler.NewRouter(handler.Services{
		Checks: []handler.HealthCheck{{Name: "supabase", Ping: func(context.Context) error { return io.ErrUnexpectedEOF }}},
	}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var got domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Status != "degraded" || len(got.Services) != 2 {
		t.Errorf("expected degraded with 2 services, got %+v", got)
	}
}

func TestReadyz(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAdminRoutes_WithoutStore(t *testing.T) {
	router := handler.NewRouter(handler.Services{}, observability.NewMetrics(), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/coachees", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestStatsAndNotifications(t *testing.T) {
	s := newTestServer(t, nil)
	if rec := s.do(t, http.MethodPost, "/v1/coachees", map[string]any{"firstName": "Anna", "lastName": "Schmidt", "status": "ACTIVE"}); rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	stats := decode[domain.StatsSnapshot](t, s.do(t, http.MethodGet, "/v1/stats", nil))
	if stats.Coachees != 1 || stats.ActiveCoachees != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	notes := decode[[]domain.Notification](t, s.do(t, http.MethodGet, "/v1/notifications?limit=5", nil))
	if len(notes) == 0 {
		t.Error("expected a notification for the new coachee")
	}
}
