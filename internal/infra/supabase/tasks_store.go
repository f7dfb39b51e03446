package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/resilience"
)

// ============================================================
// RemoteTaskStore implementation: tasks table via PostgREST
// ============================================================

// taskRow maps the tasks table columns.
type taskRow struct {
	ID          string     `json:"id,omitempty"`
	UserID      string     `json:"user_id"`
	CoacheeID   *int       `json:"coachee_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"due_date"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func rowFromTask(t *domain.Task) taskRow {
	updated := t.UpdatedAt
	return taskRow{
		UserID:      t.UserID,
		CoacheeID:   t.CoacheeID,
		Title:       t.Title,
		Description: t.Description,
		Completed:   t.Completed,
		DueDate:     t.DueDate,
		UpdatedAt:   &updated,
	}
}

func (r taskRow) toDomain() domain.Task {
	t := domain.Task{
		ID:          r.ID,
		RemoteID:    r.ID,
		UserID:      r.UserID,
		CoacheeID:   r.CoacheeID,
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
		DueDate:     r.DueDate,
		SyncStatus:  domain.SyncSynced,
	}
	if r.CreatedAt != nil {
		t.CreatedAt = *r.CreatedAt
	}
	if r.UpdatedAt != nil {
		t.UpdatedAt = *r.UpdatedAt
	}
	return t
}

// ListTasks returns every task row owned by userID.
func (c *Client) ListTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListTasks")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	var tasks []domain.Task
	err := c.call(ctx, "supabase/tasks", func() error {
		path := fmt.Sprintf("tasks?user_id=eq.%s&order=created_at.asc", url.QueryEscape(userID))
		body, err := c.doGet(ctx, path)
		if err != nil {
			return err
		}
		if body == nil || string(body) == "[]" {
			tasks = []domain.Task{}
			return nil
		}

		var rows []taskRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("decode tasks: %w", err))
		}
		tasks = make([]domain.Task, 0, len(rows))
		for _, r := range rows {
			tasks = append(tasks, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// CreateTask inserts task and returns the stored row.
func (c *Client) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateTask")
	defer span.End()

	var created domain.Task
	err := c.call(ctx, "supabase/tasks", func() error {
		body, err := c.doPost(ctx, "tasks", rowFromTask(task))
		if err != nil {
			return err
		}
		var rows []taskRow
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("decode created task: %w", err))
		}
		if len(rows) == 0 {
			return resilience.Permanent(fmt.Errorf("insert returned no rows"))
		}
		created = rows[0].toDomain()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateTask patches the row identified by task.RemoteID.
func (c *Client) UpdateTask(ctx context.Context, task *domain.Task) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpdateTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.remote_id", task.RemoteID))

	return c.call(ctx, "supabase/tasks", func() error {
		path := fmt.Sprintf("tasks?id=eq.%s&user_id=eq.%s", url.QueryEscape(task.RemoteID), url.QueryEscape(task.UserID))
		return c.doPatch(ctx, path, rowFromTask(task))
	})
}

// DeleteTask removes the row. Deleting a missing row is not an error.
func (c *Client) DeleteTask(ctx context.Context, userID, remoteID string) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.remote_id", remoteID))

	return c.call(ctx, "supabase/tasks", func() error {
		path := fmt.Sprintf("tasks?id=eq.%s&user_id=eq.%s", url.QueryEscape(remoteID), url.QueryEscape(userID))
		return c.doDelete(ctx, path)
	})
}
