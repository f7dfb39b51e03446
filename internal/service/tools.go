package service

import (
	"context"
	"slices"
	"strconv"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
)

// ============================================================
// Toolbox
// ============================================================

// ListTools returns the toolbox, optionally narrowed to a category.
func (s *Store) ListTools(ctx context.Context, category string) []domain.Tool {
	_, span := storeTracer.Start(ctx, "Store.ListTools")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.Tool{}
	for _, t := range s.tools {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	return out
}

// AddTool adds a method to the toolbox.
func (s *Store) AddTool(ctx context.Context, in domain.Tool) (*domain.Tool, error) {
	ctx, span := storeTracer.Start(ctx, "Store.AddTool")
	defer span.End()

	if in.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t := in
	t.ID = uuid.NewString()
	t.UsageCount = 0
	t.LastUsedAt = nil
	t.CoacheeIDs = []int{}

	next := append(slices.Clone(s.tools), t)
	if err := s.repos.Tools.Save(ctx, next); err != nil {
		return nil, s.failed("add tool", err)
	}
	s.tools = next
	s.notify(domain.NotifySuccess, "Tool added", t.Name)
	return &t, nil
}

// RecordToolUsage counts one use of a tool, optionally with a coachee.
func (s *Store) RecordToolUsage(ctx context.Context, toolID string, coacheeID *int) (*domain.Tool, error) {
	ctx, span := storeTracer.Start(ctx, "Store.RecordToolUsage")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := indexByID(s.tools, toolID, func(t *domain.Tool) string { return t.ID })
	if idx < 0 {
		return nil, &domain.ErrNotFound{Resource: "tool", ID: toolID}
	}
	if coacheeID != nil && s.coacheeIndex(*coacheeID) < 0 {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "unknown coachee " + strconv.Itoa(*coacheeID)}
	}

	next := slices.Clone(s.tools)
	t := &next[idx]
	now := s.now()
	t.UsageCount++
	t.LastUsedAt = &now
	if coacheeID != nil && !slices.Contains(t.CoacheeIDs, *coacheeID) {
		t.CoacheeIDs = append(slices.Clone(t.CoacheeIDs), *coacheeID)
	}
	if err := s.repos.Tools.Save(ctx, next); err != nil {
		return nil, s.failed("record tool usage", err)
	}
	s.tools = next
	out := *t
	return &out, nil
}
