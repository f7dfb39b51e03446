package service

import (
	"context"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Sessions
// ============================================================

// AddSession schedules a session. A session created as COMPLETED with a
// package deducts from it immediately.
func (s *Store) AddSession(ctx context.Context, in domain.Session) (*domain.Session, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddSession")
	defer span.End()
	defer s.observe("add_session", time.Now())

	if in.Status == "" {
		in.Status = domain.SessionPlanned
	}
	if in.Mode == "" {
		in.Mode = domain.ModeInPerson
	}
	if err := validateSession(&in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.coacheeIndex(in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(in.CoacheeID)}
	}

	now := s.now()
	ss := in
	ss.ID = uuid.NewString()
	ss.PackageDeducted = false
	ss.CreatedAt = now
	ss.UpdatedAt = now

	next := append(slices.Clone(s.sessions), ss)
	if err := s.commitSessions(ctx, next, len(next)-1, nil); err != nil {
		return nil, s.failed("add session", err)
	}

	out := s.sessions[len(s.sessions)-1]
	s.notify(domain.NotifySuccess, "Session scheduled", out.Date.Format("02.01.2006 15:04"))
	return &out, nil
}

// UpdateSession replaces a session by id. Creation time and the package
// deduction marker are kept.
func (s *Store) UpdateSession(ctx context.Context, in domain.Session) (*domain.Session, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateSession")
	defer span.End()
	defer s.observe("update_session", time.Now())
	span.SetAttributes(attribute.String("session.id", in.ID))

	if err := validateSession(&in); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.sessionIndex(in.ID)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: in.ID}
	}
	prev := s.sessions[idx]

	ss := in
	ss.CreatedAt = prev.CreatedAt
	ss.PackageDeducted = prev.PackageDeducted
	ss.UpdatedAt = s.now()

	next := slices.Clone(s.sessions)
	next[idx] = ss
	if err := s.commitSessions(ctx, next, idx, &prev); err != nil {
		return nil, s.failed("update session", err)
	}

	out := s.sessions[idx]
	s.notify(domain.NotifySuccess, "Session updated", "")
	return &out, nil
}

// SetSessionStatus moves a session to status. Completing a session that
// references a package deducts one unit, at most once per session.
func (s *Store) SetSessionStatus(ctx context.Context, id string, status domain.SessionStatus) (*domain.Session, error) {
	ctx, span := storeTracer.Start(ctx, "Store.SetSessionStatus")
	defer span.End()
	defer s.observe("set_session_status", time.Now())
	span.SetAttributes(attribute.String("session.id", id), attribute.String("session.status", string(status)))

	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "unknown status " + string(status)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.sessionIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	prev := s.sessions[idx]
	if prev.Status == status {
		return &prev, nil
	}

	ss := prev
	ss.Status = status
	ss.UpdatedAt = s.now()

	next := slices.Clone(s.sessions)
	next[idx] = ss
	if err := s.commitSessions(ctx, next, idx, &prev); err != nil {
		return nil, s.failed("set session status", err)
	}

	out := s.sessions[idx]
	s.notify(domain.NotifySuccess, "Session "+statusLabel(status), "")
	return &out, nil
}

// ArchiveSession sets or clears the soft-delete flag.
func (s *Store) ArchiveSession(ctx context.Context, id string, archived bool) (*domain.Session, error) {
	ctx, span := storeTracer.Start(ctx, "Store.ArchiveSession")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.sessionIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	next := slices.Clone(s.sessions)
	next[idx].Archived = archived
	next[idx].UpdatedAt = s.now()
	if err := s.repos.Sessions.Save(ctx, next); err != nil {
		return nil, s.failed("archive session", err)
	}
	s.sessions = next

	out := next[idx]
	if archived {
		s.notify(domain.NotifyInfo, "Session archived", "")
	} else {
		s.notify(domain.NotifyInfo, "Session restored", "")
	}
	return &out, nil
}

// DeleteSession removes a session and its notes.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	ctx, span := storeTracer.Start(ctx, "Store.DeleteSession")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.sessionIndex(id)
	if idx < 0 {
		return &domain.ErrNotFound{Resource: "session", ID: id}
	}
	next := slices.Delete(slices.Clone(s.sessions), idx, idx+1)
	if err := s.repos.Sessions.Save(ctx, next); err != nil {
		return s.failed("delete session", err)
	}
	s.sessions = next

	notes := slices.DeleteFunc(slices.Clone(s.sessionNotes), func(n domain.SessionNote) bool { return n.SessionID == id })
	if len(notes) != len(s.sessionNotes) {
		if err := s.repos.SessionNotes.Save(ctx, notes); err != nil {
			s.logger.Warn("orphaned session notes left behind", zap.String("session_id", id), zap.Error(err))
		} else {
			s.sessionNotes = notes
		}
	}

	s.notify(domain.NotifyInfo, "Session deleted", "")
	return nil
}

// ListSessions returns the sessions matching f ordered by date.
func (s *Store) ListSessions(ctx context.Context, f domain.SessionFilter) []domain.Session {
	_, span := storeTracer.Start(ctx, "Store.ListSessions")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionsLocked(f)
}

func (s *Store) sessionsLocked(f domain.SessionFilter) []domain.Session {
	now := s.now()
	out := []domain.Session{}
	for _, ss := range s.sessions {
		if ss.Archived && !f.IncludeArchived {
			continue
		}
		if f.CoacheeID != nil && ss.CoacheeID != *f.CoacheeID {
			continue
		}
		if f.Status != "" && ss.Status != f.Status {
			continue
		}
		if f.Today && !sameDay(ss.Date, now, now.Location()) {
			continue
		}
		out = append(out, ss)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// GetSession returns a single session.
func (s *Store) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	_, span := storeTracer.Start(ctx, "Store.GetSession")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.sessionIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	out := s.sessions[idx]
	return &out, nil
}

// PrepareSession assembles what the coach needs before a session.
func (s *Store) PrepareSession(ctx context.Context, id string) (*domain.SessionPreparation, error) {
	_, span := storeTracer.Start(ctx, "Store.PrepareSession")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.sessionIndex(id)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: id}
	}
	ss := s.sessions[idx]
	cIdx := s.coacheeIndex(ss.CoacheeID)
	if cIdx < 0 {
		return nil, &domain.ErrNotFound{Resource: "coachee", ID: strconv.Itoa(ss.CoacheeID)}
	}

	p := &domain.SessionPreparation{
		Session:          ss,
		Coachee:          s.coachees[cIdx],
		PreviousSessions: []domain.Session{},
		Notes:            []domain.SessionNote{},
		OpenTasks:        []domain.Task{},
	}
	for _, other := range s.sessions {
		if other.CoacheeID == ss.CoacheeID && other.ID != ss.ID && other.Date.Before(ss.Date) && !other.Archived {
			p.PreviousSessions = append(p.PreviousSessions, other)
		}
	}
	sort.SliceStable(p.PreviousSessions, func(i, j int) bool {
		return p.PreviousSessions[i].Date.After(p.PreviousSessions[j].Date)
	})
	for _, n := range s.sessionNotes {
		if n.CoacheeID == ss.CoacheeID {
			p.Notes = append(p.Notes, n)
		}
	}
	sort.SliceStable(p.Notes, func(i, j int) bool { return p.Notes[i].CreatedAt.After(p.Notes[j].CreatedAt) })
	for _, t := range s.tasks {
		if sameInt(t.CoacheeID, ss.CoacheeID) && !t.Completed && t.SyncStatus != domain.SyncPendingDelete {
			p.OpenTasks = append(p.OpenTasks, t)
		}
	}
	if ss.PackageID != "" {
		if i := s.packageIndex(ss.PackageID); i >= 0 {
			pkg := s.activePackages[i]
			p.ActivePackage = &pkg
		}
	}
	if p.ActivePackage == nil {
		for _, pkg := range s.activePackages {
			if pkg.CoacheeID == ss.CoacheeID && pkg.Remaining() > 0 {
				p.ActivePackage = &pkg
				break
			}
		}
	}
	return p, nil
}

// commitSessions persists next, deducting a package unit first when the
// session at idx has just become COMPLETED. When the session write fails
// after a deduction the package change is reverted. Callers hold s.mu.
func (s *Store) commitSessions(ctx context.Context, next []domain.Session, idx int, prev *domain.Session) error {
	ss := &next[idx]
	completing := ss.Status == domain.SessionCompleted && (prev == nil || prev.Status != domain.SessionCompleted)

	var (
		prevPackages []domain.ActivePackage
		deducted     *domain.ActivePackage
	)
	if completing && ss.PackageID != "" && !ss.PackageDeducted {
		prevPackages = s.activePackages
		pkg, err := s.deductLocked(ctx, ss.PackageID)
		if err != nil {
			return err
		}
		ss.PackageDeducted = true
		deducted = pkg
	}

	if err := s.repos.Sessions.Save(ctx, next); err != nil {
		if deducted != nil {
			if rerr := s.repos.ActivePackages.Save(ctx, prevPackages); rerr != nil {
				s.logger.Error("package deduction could not be reverted",
					zap.String("package_id", deducted.ID), zap.Error(rerr))
			} else {
				s.activePackages = prevPackages
			}
		}
		return err
	}
	s.sessions = next

	if deducted != nil {
		s.notify(domain.NotifyInfo, "Package unit used",
			deducted.Name+": "+strconv.Itoa(deducted.Remaining())+" remaining")
	}
	return nil
}

func (s *Store) sessionIndex(id string) int {
	return indexByID(s.sessions, id, func(ss *domain.Session) string { return ss.ID })
}

func validateSession(ss *domain.Session) error {
	if ss.CoacheeID <= 0 {
		return &domain.ErrValidation{Field: "coacheeId", Message: "required"}
	}
	if ss.Date.IsZero() {
		return &domain.ErrValidation{Field: "date", Message: "required"}
	}
	if ss.Duration < 0 {
		return &domain.ErrValidation{Field: "duration", Message: "must not be negative"}
	}
	if !ss.Status.Valid() {
		return &domain.ErrValidation{Field: "status", Message: "unknown status " + string(ss.Status)}
	}
	switch ss.Mode {
	case domain.ModeInPerson, domain.ModeRemote, domain.ModePhone, domain.ModeHybrid:
	default:
		return &domain.ErrValidation{Field: "mode", Message: "unknown mode " + string(ss.Mode)}
	}
	return nil
}

func statusLabel(st domain.SessionStatus) string {
	switch st {
	case domain.SessionCompleted:
		return "completed"
	case domain.SessionCanceled:
		return "canceled"
	default:
		return "planned"
	}
}

// ============================================================
// Session notes
// ============================================================

// ListSessionNotes returns the notes of one session, oldest first.
func (s *Store) ListSessionNotes(ctx context.Context, sessionID string) []domain.SessionNote {
	_, span := storeTracer.Start(ctx, "Store.ListSessionNotes")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.SessionNote{}
	for _, n := range s.sessionNotes {
		if n.SessionID == sessionID {
			out = append(out, n)
		}
	}
	return out
}

// AddSessionNote attaches a note to a session.
func (s *Store) AddSessionNote(ctx context.Context, sessionID, content string) (*domain.SessionNote, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddSessionNote")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.sessionIndex(sessionID)
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session", ID: sessionID}
	}
	now := s.now()
	n := domain.SessionNote{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		CoacheeID: s.sessions[idx].CoacheeID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	next := append(slices.Clone(s.sessionNotes), n)
	if err := s.repos.SessionNotes.Save(ctx, next); err != nil {
		return nil, s.failed("add session note", err)
	}
	s.sessionNotes = next
	s.notify(domain.NotifySuccess, "Note saved", "")
	return &n, nil
}

// UpdateSessionNote replaces the content of a note.
func (s *Store) UpdateSessionNote(ctx context.Context, id, content string) (*domain.SessionNote, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateSessionNote")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.sessionNotes, id, func(n *domain.SessionNote) string { return n.ID })
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "session note", ID: id}
	}
	next := slices.Clone(s.sessionNotes)
	next[idx].Content = content
	next[idx].UpdatedAt = s.now()
	if err := s.repos.SessionNotes.Save(ctx, next); err != nil {
		return nil, s.failed("update session note", err)
	}
	s.sessionNotes = next
	s.notify(domain.NotifySuccess, "Note saved", "")
	out := next[idx]
	return &out, nil
}
