package service

import (
	"context"
	"slices"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"

	"github.com/google/uuid"
)

// DefaultSettings returns the compiled-in settings. Saved settings are
// reconciled against it on every load.
func DefaultSettings() domain.Settings {
	return domain.Settings{
		Company: domain.CompanyProfile{},
		Theme: domain.Theme{
			Primary:   "#2563eb",
			Secondary: "#64748b",
			Accent:    "#f59e0b",
			Mode:      "light",
		},
		DocumentCategories: []string{"Contract", "Worksheet", "Assessment", "Notes", "Other"},
		ToolCategories:     []string{"Reflection", "Goal setting", "Visualization", "Communication", "Systemic"},
		GoalCategories:     []string{"Career", "Leadership", "Personal", "Health", "Relationships"},
		AIPrompts: []domain.AIPrompt{
			{ID: "default-session-prep", Category: "session", Title: "Session preparation",
				Prompt: "Summarize the previous sessions and suggest three focus questions for the next one."},
			{ID: "default-session-summary", Category: "session", Title: "Session summary",
				Prompt: "Write a short summary of this session with agreed next steps."},
			{ID: "default-goal-smart", Category: "goals", Title: "SMART goal check",
				Prompt: "Check whether this goal is specific, measurable, achievable, relevant and time-bound."},
			{ID: "default-reflection", Category: "reflection", Title: "Reflection questions",
				Prompt: "Suggest reflection questions the coachee can work on until the next session."},
		},
		CustomFields: []domain.CustomField{},
		Invoice: domain.InvoiceSettings{
			Prefix:      "RE",
			PaymentDays: 14,
			Currency:    "EUR",
		},
	}
}

// NormalizeSettings backfills fields missing from saved settings and
// deduplicates AI prompts by category and title. Default prompts keep
// their order (a saved prompt with the same key replaces the default
// text); saved custom prompts follow. Applying it twice yields the same
// result as applying it once.
func NormalizeSettings(saved domain.Settings) domain.Settings {
	def := DefaultSettings()
	out := saved

	if out.Theme.Primary == "" {
		out.Theme.Primary = def.Theme.Primary
	}
	if out.Theme.Secondary == "" {
		out.Theme.Secondary = def.Theme.Secondary
	}
	if out.Theme.Accent == "" {
		out.Theme.Accent = def.Theme.Accent
	}
	if out.Theme.Mode == "" {
		out.Theme.Mode = def.Theme.Mode
	}
	if len(out.DocumentCategories) == 0 {
		out.DocumentCategories = def.DocumentCategories
	}
	if len(out.ToolCategories) == 0 {
		out.ToolCategories = def.ToolCategories
	}
	if len(out.GoalCategories) == 0 {
		out.GoalCategories = def.GoalCategories
	}
	if out.CustomFields == nil {
		out.CustomFields = []domain.CustomField{}
	}
	if out.Invoice.Prefix == "" {
		out.Invoice.Prefix = def.Invoice.Prefix
	}
	if out.Invoice.PaymentDays <= 0 {
		out.Invoice.PaymentDays = def.Invoice.PaymentDays
	}
	if out.Invoice.Currency == "" {
		out.Invoice.Currency = def.Invoice.Currency
	}

	out.AIPrompts = mergePrompts(def.AIPrompts, saved.AIPrompts)
	return out
}

func mergePrompts(defaults, saved []domain.AIPrompt) []domain.AIPrompt {
	byKey := make(map[string]domain.AIPrompt, len(saved))
	for _, p := range saved {
		if _, ok := byKey[p.Key()]; !ok {
			byKey[p.Key()] = p
		}
	}

	seen := make(map[string]bool, len(defaults)+len(saved))
	out := make([]domain.AIPrompt, 0, len(defaults)+len(saved))
	for _, d := range defaults {
		p := d
		if s, ok := byKey[d.Key()]; ok {
			p = s
			p.ID = d.ID
			p.Custom = false
		}
		seen[d.Key()] = true
		out = append(out, p)
	}
	for _, p := range saved {
		if seen[p.Key()] {
			continue
		}
		seen[p.Key()] = true
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.Custom = true
		out = append(out, p)
	}
	return out
}

// ============================================================
// Store operations
// ============================================================

// Settings returns the current settings.
func (s *Store) Settings(ctx context.Context) domain.Settings {
	_, span := storeTracer.Start(ctx, "Store.Settings")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings)
}

// UpdateSettings normalizes and persists a full settings record.
func (s *Store) UpdateSettings(ctx context.Context, in domain.Settings) (domain.Settings, error) {
	ctx, span := storeTracer.Start(ctx, "Store.UpdateSettings")
	defer span.End()
	defer s.observe("update_settings", time.Now())

	next := NormalizeSettings(in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repos.Settings.Save(ctx, next); err != nil {
		return domain.Settings{}, s.failed("update settings", err)
	}
	s.settings = next
	s.notify(domain.NotifySuccess, "Settings saved", "")
	return cloneSettings(next), nil
}

func cloneSettings(in domain.Settings) domain.Settings {
	out := in
	out.DocumentCategories = slices.Clone(in.DocumentCategories)
	out.ToolCategories = slices.Clone(in.ToolCategories)
	out.GoalCategories = slices.Clone(in.GoalCategories)
	out.AIPrompts = slices.Clone(in.AIPrompts)
	out.CustomFields = slices.Clone(in.CustomFields)
	return out
}
