package service

import (
	"context"
	"slices"
	"strconv"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Coachees
// ============================================================

// AddCoachee appends a new coachee. The numeric id is one more than the
// current maximum, allocated under the store lock.
func (s *Store) AddCoachee(ctx context.Context, in domain.NewCoachee) (*domain.Coachee, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddCoachee")
	defer span.End()
	defer s.observe("add_coachee", time.Now())

	status := in.Status
	if status == "" {
		status = domain.CoacheePotential
	}
	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(status)}
	}

	token, err := newPortalToken()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	c := domain.Coachee{
		ID:        nextCoacheeID(s.coachees),
		UID:       uuid.NewString(),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Phone:     in.Phone,
		Company:   in.Company,
		Status:    status,
		PortalAccess: domain.PortalAccess{
			InitialToken: &token,
		},
		Consents:   domain.Consents{Trail: []domain.ConsentEvent{}},
		Goals:      withGoalIDs(in.Goals),
		CustomData: in.CustomData,
		AuditLog:   []domain.AuditEntry{{At: now, Action: "created"}},
		Notes:      in.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.Consents != nil {
		c.Consents = consentsWithTrail(domain.Consents{Trail: []domain.ConsentEvent{}}, *in.Consents, now)
	}

	next := append(slices.Clone(s.coachees), c)
	if err := s.repos.Coachees.Save(ctx, next); err != nil {
		return nil, s.failed("add coachee", err)
	}
	s.coachees = next

	span.SetAttributes(attribute.Int("coachee.id", c.ID))
	s.logger.Info("coachee added", zap.Int("coachee_id", c.ID))
	s.notify(domain.NotifySuccess, "Coachee added", c.FullName())
	return &c, nil
}

func nextCoacheeID(existing []domain.Coachee) int {
	maxID := 0
	for _, c := range existing {
		if c.ID > maxID {
			maxID = c.ID
		}
	}
	return maxID + 1
}

func withGoalIDs(goals []domain.Goal) []domain.Goal {
	out := make([]domain.Goal, 0, len(goals))
	for _, g := range goals {
		if g.ID == "" {
			g.ID = uuid.NewString()
		}
		subs := make([]domain.SubGoal, 0, len(g.SubGoals))
		for _, sg := range g.SubGoals {
			if sg.ID == "" {
				sg.ID = uuid.NewString()
			}
			subs = append(subs, sg)
		}
		g.SubGoals = subs
		out = append(out, g)
	}
	return out
}

// consentsWithTrail returns next with the trail of prev extended by one
// event per changed flag.
func consentsWithTrail(prev, next domain.Consents, at time.Time) domain.Consents {
	trail := slices.Clone(prev.Trail)
	if trail == nil {
		trail = []domain.ConsentEvent{}
	}
	record := func(name string, before, after bool) {
		if before != after {
			trail = append(trail, domain.ConsentEvent{Consent: name, Granted: after, At: at})
		}
	}
	record("dataProcessing", prev.DataProcessing, next.DataProcessing)
	record("recording", prev.Recording, next.Recording)
	record("marketing", prev.Marketing, next.Marketing)
	next.Trail = trail
	return next
}

// UpdateCoachee replaces the coachee with the same id. Identity fields,
// portal access and the audit log stay server-owned; consent changes are
// appended to the consent trail.
func (s *Store) UpdateCoachee(ctx context.Context, in domain.Coachee) (*domain.Coachee, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateCoachee")
	defer span.End()
	defer s.observe("update_coachee", time.Now())
	span.SetAttributes(attribute.Int("coachee.id", in.ID))

	if in.Status != "" && !in.Status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(in.Status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.coacheeIndex(in.ID)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: strconv.Itoa(in.ID)}
	}
	prev := s.coachees[idx]
	now := s.now()

	c := in
	c.UID = prev.UID
	c.CreatedAt = prev.CreatedAt
	c.UpdatedAt = now
	c.PortalAccess = prev.PortalAccess
	if c.Status == "" {
		c.Status = prev.Status
	}
	c.Goals = withGoalIDs(in.Goals)
	c.Consents = consentsWithTrail(prev.Consents, in.Consents, now)
	c.AuditLog = append(slices.Clone(prev.AuditLog), domain.AuditEntry{At: now, Action: "updated"})
	if prev.Status != c.Status {
		c.AuditLog = append(c.AuditLog, domain.AuditEntry{
			At: now, Action: "status_changed", Detail: string(prev.Status) + " -> " + string(c.Status),
		})
	}
	if in.Documents == nil {
		c.Documents = prev.Documents
	}

	next := slices.Clone(s.coachees)
	next[idx] = c
	if err := s.repos.Coachees.Save(ctx, next); err != nil {
		return nil, s.failed("update coachee", err)
	}
	s.coachees = next

	s.notify(domain.NotifySuccess, "Coachee updated", c.FullName())
	return &c, nil
}

// ListCoachees returns all coachees in insertion order.
func (s *Store) ListCoachees(ctx context.Context) []domain.Coachee {
	_, span := storeTracer.Start(ctx, "Store.ListCoachees")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.coachees)
}

// GetCoachee returns a single coachee record.
func (s *Store) GetCoachee(ctx context.Context, id int) (*domain.Coachee, error) {
	_, span := storeTracer.Start(ctx, "Store.GetCoachee")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.coacheeIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: strconv.Itoa(id)}
	}
	c := s.coachees[idx]
	return &c, nil
}

// GetCoacheeByID assembles the coachee with everything that references it.
func (s *Store) GetCoacheeByID(ctx context.Context, id int) (*domain.CoacheeDetail, error) {
	_, span := storeTracer.Start(ctx, "Store.GetCoacheeByID")
	defer span.End()
	span.SetAttributes(attribute.Int("coachee.id", id))

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.coacheeIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: strconv.Itoa(id)}
	}

	d := &domain.CoacheeDetail{
		Coachee:        s.coachees[idx],
		Sessions:       []domain.Session{},
		Invoices:       []domain.Invoice{},
		JournalEntries: []domain.JournalEntry{},
		Packages:       []domain.ActivePackage{},
		Tasks:          []domain.Task{},
	}
	for _, ss := range s.sessions {
		if ss.CoacheeID == id {
			d.Sessions = append(d.Sessions, ss)
		}
	}
	for _, inv := range s.invoices {
		if inv.CoacheeID == id {
			d.Invoices = append(d.Invoices, inv)
		}
	}
	for _, j := range s.journalEntries {
		if sameInt(j.CoacheeID, id) {
			d.JournalEntries = append(d.JournalEntries, j)
		}
	}
	for _, p := range s.activePackages {
		if p.CoacheeID == id {
			d.Packages = append(d.Packages, p)
		}
	}
	for _, t := range s.tasks {
		if sameInt(t.CoacheeID, id) && t.SyncStatus != domain.SyncPendingDelete {
			d.Tasks = append(d.Tasks, t)
		}
	}
	d.Documents = s.documentsLocked(domain.DocumentFilter{CoacheeID: intPtr(id)})
	return d, nil
}

// GetCoacheeByToken returns the coachee whose initial, permanent or legacy
// one-time token equals token, checked in that order.
func (s *Store) GetCoacheeByToken(ctx context.Context, token string) (*domain.Coachee, error) {
	_, span := storeTracer.Start(ctx, "Store.GetCoacheeByToken")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.coacheeIndexByToken(token)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: "token"}
	}
	c := s.coachees[idx]
	return &c, nil
}

func (s *Store) coacheeIndex(id int) int {
	return slices.IndexFunc(s.coachees, func(c domain.Coachee) bool { return c.ID == id })
}

func (s *Store) coacheeIndexByToken(token string) int {
	if token == "" {
		return -1
	}
	slots := []func(*domain.PortalAccess) *string{
		func(p *domain.PortalAccess) *string { return p.InitialToken },
		func(p *domain.PortalAccess) *string { return p.PermanentToken },
		func(p *domain.PortalAccess) *string { return p.OneTimeToken },
	}
	for _, slot := range slots {
		for i := range s.coachees {
			if v := slot(&s.coachees[i].PortalAccess); v != nil && *v == token {
				return i
			}
		}
	}
	return -1
}

// mutateCoachee applies fn to a copy of the coachee at idx and persists the
// result. Callers hold s.mu for writing.
func (s *Store) mutateCoachee(ctx context.Context, idx int, fn func(c *domain.Coachee) error) (*domain.Coachee, error) {
	c := s.coachees[idx]
	c.PortalAccess = clonePortalAccess(c.PortalAccess)
	c.AuditLog = slices.Clone(c.AuditLog)
	c.Documents = slices.Clone(c.Documents)
	if err := fn(&c); err != nil {
		return nil, err
	}
	c.UpdatedAt = s.now()

	next := slices.Clone(s.coachees)
	next[idx] = c
	if err := s.repos.Coachees.Save(ctx, next); err != nil {
		return nil, err
	}
	s.coachees = next
	return &c, nil
}

func clonePortalAccess(p domain.PortalAccess) domain.PortalAccess {
	cp := func(v *string) *string {
		if v == nil {
			return nil
		}
		s := *v
		return &s
	}
	p.InitialToken = cp(p.InitialToken)
	p.PermanentToken = cp(p.PermanentToken)
	p.OneTimeToken = cp(p.OneTimeToken)
	return p
}
