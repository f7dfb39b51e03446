package domain

import "time"

// ============================================================
// Tasks
// ============================================================

// SyncStatus tracks a task's relationship with the hosted backend.
type SyncStatus string

const (
	SyncLocal         SyncStatus = "LOCAL"          // no remote configured
	SyncPending       SyncStatus = "PENDING"        // created or changed, not pushed yet
	SyncSynced        SyncStatus = "SYNCED"         // matches the remote row
	SyncFailed        SyncStatus = "FAILED"         // last push failed, retried on next sync
	SyncPendingDelete SyncStatus = "PENDING_DELETE" // deleted locally, remote delete outstanding
)

// Task is either a personal task (no coachee) or a coachee deadline.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	CoacheeID   *int       `json:"coacheeId,omitempty"`
	Completed   bool       `json:"completed"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	UserID      string     `json:"userId,omitempty"`
	RemoteID    string     `json:"remoteId,omitempty"`
	SyncStatus  SyncStatus `json:"syncStatus"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Personal reports whether the task has no coachee association.
func (t *Task) Personal() bool {
	return t.CoacheeID == nil
}

// NewTask is the input accepted by AddTask.
type NewTask struct {
	Title       string     `json:"title" validate:"required"`
	Description string     `json:"description"`
	CoacheeID   *int       `json:"coacheeId"`
	DueDate     *time.Time `json:"dueDate"`
}

// TaskPatch is a partial update; nil fields are left unchanged. The Clear
// flags remove a due date or turn the task back into a personal one.
type TaskPatch struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Completed    *bool      `json:"completed"`
	DueDate      *time.Time `json:"dueDate"`
	CoacheeID    *int       `json:"coacheeId"`
	ClearDueDate bool       `json:"clearDueDate,omitempty"`
	ClearCoachee bool       `json:"clearCoacheeId,omitempty"`
}

// TaskFilter narrows a task listing.
type TaskFilter struct {
	CoacheeID    *int
	PersonalOnly bool
	OpenOnly     bool
}

// SyncReport summarizes one task sync run.
type SyncReport struct {
	Pushed  int `json:"pushed"`
	Deleted int `json:"deleted"`
	Pulled  int `json:"pulled"`
	Failed  int `json:"failed"`
}

// Feedback is a beta feedback submission.
type Feedback struct {
	UserID   string `json:"userId"`
	Message  string `json:"message" validate:"required"`
	Category string `json:"category"`
	Page     string `json:"page"`
}
