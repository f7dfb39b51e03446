package service

import (
	"context"
	"slices"
	"sort"
	"strconv"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Journal
// ============================================================

// ListJournalEntries returns entries newest first, optionally for one
// coachee.
func (s *Store) ListJournalEntries(ctx context.Context, coacheeID *int) []domain.JournalEntry {
	_, span := storeTracer.Start(ctx, "Store.ListJournalEntries")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.JournalEntry{}
	for _, j := range s.journalEntries {
		if coacheeID == nil || sameInt(j.CoacheeID, *coacheeID) {
			out = append(out, j)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// AddJournalEntry appends an entry.
func (s *Store) AddJournalEntry(ctx context.Context, in domain.JournalEntry) (*domain.JournalEntry, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddJournalEntry")
	defer span.End()

	if in.Title == "" && in.Content == "" {
		return nil, &domain.ErrValidation{Field: "content", Message: "title or content required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if in.CoacheeID != nil && s.coacheeIndex(*in.CoacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(*in.CoacheeID)}
	}

	now := s.now()
	j := in
	j.ID = uuid.NewString()
	j.CreatedAt = now
	j.UpdatedAt = now

	next := append(slices.Clone(s.journalEntries), j)
	if err := s.repos.JournalEntries.Save(ctx, next); err != nil {
		return nil, s.failed("add journal entry", err)
	}
	s.journalEntries = next
	s.notify(domain.NotifySuccess, "Journal entry saved", j.Title)
	return &j, nil
}

// UpdateJournalEntry replaces an entry by id.
func (s *Store) UpdateJournalEntry(ctx context.Context, in domain.JournalEntry) (*domain.JournalEntry, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateJournalEntry")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.journalEntries, in.ID, func(j *domain.JournalEntry) string { return j.ID })
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "journal entry", ID: in.ID}
	}
	j := in
	j.CreatedAt = s.journalEntries[idx].CreatedAt
	j.UpdatedAt = s.now()

	next := slices.Clone(s.journalEntries)
	next[idx] = j
	if err := s.repos.JournalEntries.Save(ctx, next); err != nil {
		return nil, s.failed("update journal entry", err)
	}
	s.journalEntries = next
	s.notify(domain.NotifySuccess, "Journal entry saved", j.Title)
	return &j, nil
}

// DeleteJournalEntry removes an entry.
func (s *Store) DeleteJournalEntry(ctx context.Context, id string) error {
	ctx, span := storeTracer.Start(ctx, "Store.DeleteJournalEntry")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.journalEntries, id, func(j *domain.JournalEntry) string { return j.ID })
	if idx < 0 {
		return &domain.ErrNotFound{Resource: "journal entry", ID: id}
	}
	next := slices.Delete(slices.Clone(s.journalEntries), idx, idx+1)
	if err := s.repos.JournalEntries.Save(ctx, next); err != nil {
		return s.failed("delete journal entry", err)
	}
	s.journalEntries = next
	s.notify(domain.NotifyInfo, "Journal entry deleted", "")
	return nil
}
