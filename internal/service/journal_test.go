package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

func TestJournal_CRUD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCoachee(t, "Anna", "Schmidt")

	first, err := f.store.AddJournalEntry(ctx, domain.JournalEntry{Title: "Supervision", Content: "Peer group"})
	if err != nil {
		t.Fatal(err)
	}
	f.clock.Advance(time.Hour)
	second, err := f.store.AddJournalEntry(ctx, domain.JournalEntry{CoacheeID: intPtr(c.ID), Title: "After session", Content: "Breakthrough"})
	if err != nil {
		t.Fatal(err)
	}

	all := f.store.ListJournalEntries(ctx, nil)
	if len(all) != 2 || all[0].ID != second.ID {
		t.Errorf("expected newest first, got %+v", all)
	}
	if got := f.store.ListJournalEntries(ctx, intPtr(c.ID)); len(got) != 1 || got[0].ID != second.ID {
		t.Errorf("expected coachee entry only, got %+v", got)
	}

	in := *first
	in.Content = "Peer group, case 2"
	updated, err := f.store.UpdateJournalEntry(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	if !updated.CreatedAt.Equal(first.CreatedAt) || updated.Content != "Peer group, case 2" {
		t.Errorf("unexpected update: %+v", updated)
	}

	if err := f.store.DeleteJournalEntry(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	err = f.store.DeleteJournalEntry(ctx, first.ID)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	_, err = f.store.AddJournalEntry(ctx, domain.JournalEntry{})
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Errorf("expected ErrValidation for empty entry, got %v", err)
	}
}

func TestRecordToolUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.addCoachee(t, "Anna", "Schmidt")

	tool, err := f.store.AddTool(ctx, domain.Tool{Name: "Inner Team", Category: "Systemic"})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.store.RecordToolUsage(ctx, tool.ID, intPtr(c.ID)); err != nil {
			t.Fatal(err)
		}
	}

	got := f.store.ListTools(ctx, "Systemic")
	if len(got) != 1 || got[0].UsageCount != 2 || len(got[0].CoacheeIDs) != 1 || got[0].LastUsedAt == nil {
		t.Errorf("unexpected tool: %+v", got)
	}
	if other := f.store.ListTools(ctx, "Reflection"); len(other) != 0 {
		t.Errorf("expected no tools in another category, got %d", len(other))
	}

	_, err = f.store.RecordToolUsage(ctx, tool.ID, intPtr(99))
	var ve *domain.ErrValidation
	if !errors.As(err, &ve) {
		t.Errorf("expected ErrValidation for unknown coachee, got %v", err)
	}
}
