package supabase

import (
	"context"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// InsertFeedback adds a row to beta_feedback.
func (c *Client) InsertFeedback(ctx context.Context, fb *domain.Feedback) error {
	ctx, span := tracer.Start(ctx, "Supabase.InsertFeedback")
	defer span.End()

	row := map[string]any{
		"message":  fb.Message,
		"category": fb.Category,
		"page":     fb.Page,
	}
	if fb.UserID != "" {
		row["user_id"] = fb.UserID
	}

	return c.call(ctx, "supabase/feedback", func() error {
		_, err := c.doPost(ctx, "beta_feedback", row)
		return err
	})
}
