package service

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

var portalTracer = otel.Tracer("service/portal")

const (
	bcryptCost        = 12
	minPasswordLength = 8
	limiterIdle       = 10 * time.Minute
)

// PortalSession is what an unlocked portal session id maps to. A session
// is only valid while Token is still the coachee's permanent token.
type PortalSession struct {
	CoacheeID int
	Token     string
}

// PortalConfig tunes the portal flow.
type PortalConfig struct {
	// AttemptsPerMinute bounds password attempts per portal token.
	AttemptsPerMinute int
	// PasswordCost is the bcrypt cost; zero means the default of 12.
	PasswordCost int
}

// PortalService implements the coachee self-service portal: password
// setup on the initial link, password unlock on the permanent link, and
// the coachee's own portal data.
type PortalService struct {
	store    *Store
	sessions port.Cache[PortalSession]
	cost     int
	perMin   int
	hash     func(password []byte, cost int) ([]byte, error)
	metrics  *observability.Metrics
	logger   *zap.Logger

	limMu     sync.Mutex
	limiters  map[string]*attemptLimiter
	lastPrune time.Time
}

type attemptLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPortalService creates the portal service. sessions holds unlocked
// session ids; its TTL is the idle timeout of a portal session.
func NewPortalService(store *Store, sessions port.Cache[PortalSession], cfg PortalConfig, metrics *observability.Metrics, logger *zap.Logger) *PortalService {
	cost := cfg.PasswordCost
	if cost == 0 {
		cost = bcryptCost
	}
	perMin := cfg.AttemptsPerMinute
	if perMin <= 0 {
		perMin = 5
	}
	return &PortalService{
		store:    store,
		sessions: sessions,
		cost:     cost,
		perMin:   perMin,
		hash:     bcrypt.GenerateFromPassword,
		metrics:  metrics,
		logger:   logger,
		limiters: make(map[string]*attemptLimiter),
	}
}

// Open resolves token for a visitor. Coachee data is only included when the
// visitor's session is unlocked; an unknown token yields INVALID and
// touches nothing.
func (s *PortalService) Open(ctx context.Context, token, sessionID string) (*domain.PortalView, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.Open")
	defer span.End()

	c, err := s.store.GetCoacheeByToken(ctx, token)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			span.SetAttributes(attribute.String("portal.state", string(domain.PortalInvalid)))
			return &domain.PortalView{State: domain.PortalInvalid}, nil
		}
		return nil, err
	}

	unlocked := s.sessionValid(c.ID, token, sessionID)
	state := ResolvePortalState(c, token, unlocked)
	span.SetAttributes(attribute.String("portal.state", string(state)))

	switch state {
	case domain.PortalUnlocked:
		return s.unlockedView(ctx, c, sessionID), nil
	case domain.PortalLocked, domain.PortalPasswordSetup:
		return &domain.PortalView{State: state, DisplayName: c.FirstName}, nil
	default:
		return &domain.PortalView{State: domain.PortalInvalid}, nil
	}
}

// SetupPassword consumes an initial (or legacy one-time) token: it stores
// the password hash, mints a new permanent token and clears the initial
// slots. The returned view redirects to the permanent link and carries an
// unlocked session id.
func (s *PortalService) SetupPassword(ctx context.Context, token, password string) (*domain.PortalView, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.SetupPassword")
	defer span.End()

	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, &domain.ErrValidation{Field: "password", Message: "must have at least " + strconv.Itoa(minPasswordLength) + " characters"}
	}

	// Hashing is the expensive step; unknown or consumed tokens never reach it.
	st := s.store
	st.mu.RLock()
	idx := st.coacheeIndexByToken(token)
	settable := idx >= 0 && ResolvePortalState(&st.coachees[idx], token, false) == domain.PortalPasswordSetup
	st.mu.RUnlock()
	if !settable {
		s.metrics.IncrPortalAttempt("invalid_token")
		return nil, &domain.ErrInvalidPortalToken{}
	}

	if !s.allow(token) {
		s.metrics.IncrPortalAttempt("rate_limited")
		return nil, &domain.ErrTooManyAttempts{}
	}

	hash, err := s.hash([]byte(password), s.cost)
	if err != nil {
		return nil, err
	}
	permanent, err := newPortalToken()
	if err != nil {
		return nil, err
	}

	// The token may have been consumed while hashing.
	st.mu.Lock()
	idx = st.coacheeIndexByToken(token)
	if idx < 0 || ResolvePortalState(&st.coachees[idx], token, false) != domain.PortalPasswordSetup {
		st.mu.Unlock()
		s.metrics.IncrPortalAttempt("invalid_token")
		return nil, &domain.ErrInvalidPortalToken{}
	}
	for permanent == token {
		if permanent, err = newPortalToken(); err != nil {
			st.mu.Unlock()
			return nil, err
		}
	}
	c, err := st.mutateCoachee(ctx, idx, func(c *domain.Coachee) error {
		now := st.now()
		c.PortalAccess.PermanentToken = &permanent
		c.PortalAccess.InitialToken = nil
		c.PortalAccess.OneTimeToken = nil
		c.PortalAccess.IsUsed = true
		c.PortalAccess.PasswordHash = string(hash)
		c.PortalAccess.ActivatedAt = &now
		c.PortalAccess.LastAccessAt = &now
		c.AuditLog = append(c.AuditLog, domain.AuditEntry{At: now, Action: "portal_activated"})
		return nil
	})
	st.mu.Unlock()
	if err != nil {
		return nil, st.failed("set up portal password", err)
	}

	sessionID := s.startSession(c.ID, permanent)
	s.metrics.IncrPortalAttempt("activated")
	s.logger.Info("portal activated", zap.Int("coachee_id", c.ID))
	st.notify(domain.NotifyInfo, "Portal activated", c.FullName())

	return &domain.PortalView{
		State:       domain.PortalActivated,
		DisplayName: c.FirstName,
		RedirectTo:  PortalPath(permanent),
		SessionID:   sessionID,
	}, nil
}

// Unlock checks password against the permanent token's coachee and starts
// an unlocked session. Attempts are rate limited per token.
func (s *PortalService) Unlock(ctx context.Context, token, password string) (*domain.PortalView, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.Unlock")
	defer span.End()

	if !s.allow(token) {
		s.metrics.IncrPortalAttempt("rate_limited")
		return nil, &domain.ErrTooManyAttempts{}
	}

	c, err := s.store.GetCoacheeByToken(ctx, token)
	if err != nil {
		var nf *domain.ErrNotFound
		if errors.As(err, &nf) {
			s.metrics.IncrPortalAttempt("invalid_token")
			return nil, &domain.ErrInvalidPortalToken{}
		}
		return nil, err
	}

	switch ResolvePortalState(c, token, false) {
	case domain.PortalLocked:
	case domain.PortalPasswordSetup:
		return nil, &domain.ErrConflict{Message: "portal password has not been set up yet"}
	default:
		s.metrics.IncrPortalAttempt("invalid_token")
		return nil, &domain.ErrInvalidPortalToken{}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(c.PortalAccess.PasswordHash), []byte(password)); err != nil {
		s.metrics.IncrPortalAttempt("wrong_password")
		s.logger.Info("portal unlock failed", zap.Int("coachee_id", c.ID))
		return nil, &domain.ErrUnauthorized{Message: "wrong password"}
	}

	sessionID := s.startSession(c.ID, token)
	s.metrics.IncrPortalAttempt("unlocked")
	s.touchLastAccess(ctx, c.ID, token)

	return s.unlockedView(ctx, c, sessionID), nil
}

// PortalData returns the coachee's own portal data for an unlocked session.
func (s *PortalService) PortalData(ctx context.Context, token, sessionID string) (*domain.PortalData, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.PortalData")
	defer span.End()

	coacheeID, err := s.requireUnlocked(ctx, token, sessionID)
	if err != nil {
		return nil, err
	}
	d, err := s.store.repos.PortalData(coacheeID).Load(ctx)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SavePortalData stores the coachee's entries and completed sub-goals.
// Entries get ids and timestamps; sub-goal ids must belong to the coachee.
func (s *PortalService) SavePortalData(ctx context.Context, token, sessionID string, in domain.PortalData) (*domain.PortalData, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.SavePortalData")
	defer span.End()

	coacheeID, err := s.requireUnlocked(ctx, token, sessionID)
	if err != nil {
		return nil, err
	}
	c, err := s.store.GetCoachee(ctx, coacheeID)
	if err != nil {
		return nil, err
	}

	known := map[string]bool{}
	for _, g := range c.Goals {
		for _, sg := range g.SubGoals {
			known[sg.ID] = true
		}
	}
	now := s.store.now()
	d := domain.PortalData{
		CoacheeID:         coacheeID,
		Entries:           make([]domain.PortalEntry, 0, len(in.Entries)),
		CompletedSubGoals: []string{},
		UpdatedAt:         now,
	}
	for _, e := range in.Entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		if e.Type == "" {
			e.Type = "reflection"
		}
		d.Entries = append(d.Entries, e)
	}
	for _, id := range in.CompletedSubGoals {
		if !known[id] {
			return nil, &domain.ErrValidation{Field: "completedSubGoals", Message: "unknown sub-goal " + id}
		}
		if !slices.Contains(d.CompletedSubGoals, id) {
			d.CompletedSubGoals = append(d.CompletedSubGoals, id)
		}
	}

	if err := s.store.repos.PortalData(coacheeID).Save(ctx, d); err != nil {
		return nil, s.store.failed("save portal data", err)
	}
	s.store.notify(domain.NotifyInfo, "Portal update", c.FullName())
	return &d, nil
}

// ResetPortalAccess issues a fresh initial link for a coachee. The
// permanent token and password are cleared, so existing sessions end.
func (s *PortalService) ResetPortalAccess(ctx context.Context, coacheeID int) (*domain.Coachee, error) {
	ctx, span := portalTracer.Start(ctx, "PortalService.ResetPortalAccess")
	defer span.End()
	span.SetAttributes(attribute.Int("coachee.id", coacheeID))

	token, err := newPortalToken()
	if err != nil {
		return nil, err
	}

	st := s.store
	st.mu.Lock()
	idx := st.coacheeIndex(coacheeID)
	if idx < 0 {
		st.mu.Unlock()
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: strconv.Itoa(coacheeID)}
	}
	c, err := st.mutateCoachee(ctx, idx, func(c *domain.Coachee) error {
		c.PortalAccess = domain.PortalAccess{InitialToken: &token}
		c.AuditLog = append(c.AuditLog, domain.AuditEntry{At: st.now(), Action: "portal_reset"})
		return nil
	})
	st.mu.Unlock()
	if err != nil {
		return nil, st.failed("reset portal access", err)
	}

	st.notify(domain.NotifySuccess, "New portal link created", c.FullName())
	return c, nil
}

// ============================================================
// Helpers
// ============================================================

func (s *PortalService) startSession(coacheeID int, token string) string {
	id, err := newPortalToken()
	if err != nil {
		id = uuid.NewString()
	}
	s.sessions.Set(id, PortalSession{CoacheeID: coacheeID, Token: token})
	return id
}

func (s *PortalService) sessionValid(coacheeID int, token, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	ps, ok := s.sessions.Touch(sessionID)
	if !ok {
		s.metrics.IncrCacheMiss("portal_session")
		return false
	}
	s.metrics.IncrCacheHit("portal_session")
	return ps.CoacheeID == coacheeID && ps.Token == token
}

func (s *PortalService) requireUnlocked(ctx context.Context, token, sessionID string) (int, error) {
	c, err := s.store.GetCoacheeByToken(ctx, token)
	if err != nil {
		return 0, &domain.ErrInvalidPortalToken{}
	}
	if ResolvePortalState(c, token, s.sessionValid(c.ID, token, sessionID)) != domain.PortalUnlocked {
		return 0, &domain.ErrUnauthorized{Message: "portal session expired"}
	}
	return c.ID, nil
}

// unlockedView is everything an unlocked coachee may see about themselves.
func (s *PortalService) unlockedView(ctx context.Context, c *domain.Coachee, sessionID string) *domain.PortalView {
	self := *c
	self.PortalAccess = domain.PortalAccess{}
	self.AuditLog = nil
	self.Notes = ""
	self.CustomData = nil
	self.Documents = nil

	v := &domain.PortalView{
		State:       domain.PortalUnlocked,
		DisplayName: c.FirstName,
		Coachee:     &self,
		Sessions:    s.store.ListSessions(ctx, domain.SessionFilter{CoacheeID: intPtr(c.ID)}),
		SessionID:   sessionID,
	}
	s.store.mu.RLock()
	v.Documents = s.store.documentsLocked(domain.DocumentFilter{CoacheeID: intPtr(c.ID), SharedOnly: true})
	s.store.mu.RUnlock()
	return v
}

func (s *PortalService) touchLastAccess(ctx context.Context, coacheeID int, token string) {
	st := s.store
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.coacheeIndex(coacheeID)
	if idx < 0 || !matches(st.coachees[idx].PortalAccess.PermanentToken, token) {
		return
	}
	if _, err := st.mutateCoachee(ctx, idx, func(c *domain.Coachee) error {
		now := st.now()
		c.PortalAccess.LastAccessAt = &now
		return nil
	}); err != nil {
		s.logger.Warn("portal last access not saved", zap.Int("coachee_id", coacheeID), zap.Error(err))
	}
}

// allow applies the per-token attempt limit. Idle limiters are pruned at
// most once per minute.
func (s *PortalService) allow(token string) bool {
	now := s.store.now()

	s.limMu.Lock()
	defer s.limMu.Unlock()

	if now.Sub(s.lastPrune) > time.Minute {
		for k, l := range s.limiters {
			if now.Sub(l.lastSeen) > limiterIdle {
				delete(s.limiters, k)
			}
		}
		s.lastPrune = now
	}

	l, ok := s.limiters[token]
	if !ok {
		l = &attemptLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(s.perMin)), s.perMin)}
		s.limiters[token] = l
	}
	l.lastSeen = now
	return l.limiter.AllowN(now, 1)
}
