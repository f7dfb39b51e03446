package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/observability"
	"github.com/allensfl/coachingspace-app-sub001/internal/infra/resilience"
	"github.com/allensfl/coachingspace-app-sub001/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var taskTracer = otel.Tracer("service/tasks")

// TaskService owns the single task collection. Local records are the
// working copy; when a remote store is configured each record carries a
// sync status and is pushed to the hosted tasks table.
type TaskService struct {
	store    *Store
	remote   port.RemoteTaskStore
	bulkhead *resilience.Bulkhead
	ownerID  string
	metrics  *observability.Metrics
	logger   *zap.Logger

	syncMu sync.Mutex
}

// NewTaskService creates a task service. remote may be nil, in which case
// tasks stay LOCAL. ownerID is used when a request carries no user.
func NewTaskService(store *Store, remote port.RemoteTaskStore, maxConcurrency int, ownerID string, metrics *observability.Metrics, logger *zap.Logger) *TaskService {
	return &TaskService{
		store:    store,
		remote:   remote,
		bulkhead: resilience.NewBulkhead(maxConcurrency),
		ownerID:  ownerID,
		metrics:  metrics,
		logger:   logger,
	}
}

// RemoteEnabled reports whether tasks are synced with a hosted backend.
func (s *TaskService) RemoteEnabled() bool {
	return s.remote != nil
}

func (s *TaskService) user(userID string) string {
	if userID != "" {
		return userID
	}
	return s.ownerID
}

// ListTasks returns the tasks matching f. Tasks awaiting remote deletion
// are hidden.
func (s *TaskService) ListTasks(ctx context.Context, f domain.TaskFilter) []domain.Task {
	_, span := taskTracer.Start(ctx, "TaskService.ListTasks")
	defer span.End()

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return s.store.tasksLocked(f)
}

// AddTask appends a task and, with a remote configured, pushes it.
func (s *TaskService) AddTask(ctx context.Context, userID string, in domain.NewTask) (*domain.Task, error) {
	ctx, span := taskTracer.Start(ctx, "TaskService.AddTask")
	defer span.End()
	defer s.store.observe("add_task", time.Now())

	now := s.store.now()
	t := domain.Task{
		ID:          uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		CoacheeID:   in.CoacheeID,
		DueDate:     in.DueDate,
		UserID:      s.user(userID),
		SyncStatus:  s.initialStatus(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "required"}
	}

	if err := s.store.insertTask(ctx, t); err != nil {
		return nil, s.store.failed("add task", err)
	}
	s.store.notify(domain.NotifySuccess, "Task added", t.Title)

	return s.pushOne(ctx, t), nil
}

// UpdateTask applies a partial update.
func (s *TaskService) UpdateTask(ctx context.Context, id string, p domain.TaskPatch) (*domain.Task, error) {
	ctx, span := taskTracer.Start(ctx, "TaskService.UpdateTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", id))

	if p.Title != nil && *p.Title == "" {
		return nil, &domain.ErrValidation{Field: "title", Message: "must not be empty"}
	}
	if p.ClearDueDate && p.DueDate != nil {
		return nil, &domain.ErrValidation{Field: "dueDate", Message: "cannot set and clear at once"}
	}
	if p.ClearCoachee && p.CoacheeID != nil {
		return nil, &domain.ErrValidation{Field: "coacheeId", Message: "cannot set and clear at once"}
	}

	t, err := s.store.patchTask(ctx, id, func(t *domain.Task) {
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Completed != nil {
			t.Completed = *p.Completed
		}
		if p.DueDate != nil {
			due := *p.DueDate
			t.DueDate = &due
		}
		if p.ClearDueDate {
			t.DueDate = nil
		}
		if p.CoacheeID != nil {
			cid := *p.CoacheeID
			t.CoacheeID = &cid
		}
		if p.ClearCoachee {
			t.CoacheeID = nil
		}
		if s.remote != nil {
			t.SyncStatus = domain.SyncPending
		}
	})
	if err != nil {
		return nil, s.store.failed("update task", err)
	}

	msg := "Task updated"
	if p.Completed != nil && *p.Completed {
		msg = "Task completed"
	}
	s.store.notify(domain.NotifySuccess, msg, t.Title)
	return s.pushOne(ctx, *t), nil
}

// DeleteTask removes a task. A task that exists remotely is kept as
// PENDING_DELETE until the remote delete succeeds.
func (s *TaskService) DeleteTask(ctx context.Context, id string) error {
	ctx, span := taskTracer.Start(ctx, "TaskService.DeleteTask")
	defer span.End()
	span.SetAttributes(attribute.String("task.id", id))

	t, err := s.store.deleteTask(ctx, id, s.remote != nil)
	if err != nil {
		return s.store.failed("delete task", err)
	}
	s.store.notify(domain.NotifyInfo, "Task deleted", t.Title)

	if t.SyncStatus == domain.SyncPendingDelete {
		s.pushOne(ctx, *t)
	}
	return nil
}

// SyncTasks pushes every PENDING, FAILED and PENDING_DELETE record of
// userID, then pulls the remote rows and merges them: remote rows replace
// SYNCED local copies, unsynced local edits win, and SYNCED records that
// vanished remotely are dropped.
func (s *TaskService) SyncTasks(ctx context.Context, userID string) (*domain.SyncReport, error) {
	ctx, span := taskTracer.Start(ctx, "TaskService.SyncTasks")
	defer span.End()
	defer s.store.observe("sync_tasks", time.Now())

	report := &domain.SyncReport{}
	if s.remote == nil {
		return report, nil
	}
	userID = s.user(userID)
	span.SetAttributes(attribute.String("user.id", userID))

	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	s.store.mu.RLock()
	var outstanding []domain.Task
	for _, t := range s.store.tasks {
		if t.UserID != "" && t.UserID != userID {
			continue
		}
		switch t.SyncStatus {
		case domain.SyncPending, domain.SyncFailed, domain.SyncPendingDelete:
			outstanding = append(outstanding, t)
		}
	}
	s.store.mu.RUnlock()

	results := s.push(ctx, userID, outstanding)
	for _, r := range results {
		switch {
		case r.err != nil:
			report.Failed++
		case r.deleted:
			report.Deleted++
		default:
			report.Pushed++
		}
	}

	remote, pullErr := s.remote.ListTasks(ctx, userID)
	if pullErr != nil {
		s.logger.Warn("task pull failed", zap.String("user_id", userID), zap.Error(pullErr))
		s.metrics.IncrTaskSync("pull_failed", 1)
		remote = nil
	}

	pulled, err := s.store.applyTaskSync(ctx, userID, results, remote, pullErr == nil)
	if err != nil {
		return nil, s.store.failed("sync tasks", err)
	}
	report.Pulled = pulled

	s.metrics.IncrTaskSync("pushed", report.Pushed)
	s.metrics.IncrTaskSync("deleted", report.Deleted)
	s.metrics.IncrTaskSync("failed", report.Failed)
	s.metrics.IncrTaskSync("pulled", report.Pulled)

	if pullErr != nil {
		s.store.notify(domain.NotifyError, "Task sync incomplete", "remote tasks could not be loaded")
		return report, pullErr
	}
	if report.Failed > 0 {
		s.store.notify(domain.NotifyError, "Task sync incomplete", "some tasks could not be sent")
	} else {
		s.store.notify(domain.NotifySuccess, "Tasks synced", "")
	}
	return report, nil
}

func (s *TaskService) initialStatus() domain.SyncStatus {
	if s.remote != nil {
		return domain.SyncPending
	}
	return domain.SyncLocal
}

// pushOne pushes a single record right after a local change and returns
// the record as stored afterwards. Failures leave it FAILED for the next
// sync run.
func (s *TaskService) pushOne(ctx context.Context, t domain.Task) *domain.Task {
	if s.remote == nil {
		return &t
	}
	results := s.push(ctx, t.UserID, []domain.Task{t})
	if _, err := s.store.applyTaskSync(ctx, t.UserID, results, nil, false); err != nil {
		s.logger.Warn("task sync state not saved", zap.String("task_id", t.ID), zap.Error(err))
	}
	if results[0].err != nil {
		s.metrics.IncrTaskSync("failed", 1)
		s.store.notify(domain.NotifyError, "Task saved locally", "sync with the server failed")
	} else {
		s.metrics.IncrTaskSync("pushed", 1)
	}

	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	if i := s.store.taskIndex(t.ID); i >= 0 {
		out := s.store.tasks[i]
		return &out
	}
	return &t
}

type pushResult struct {
	taskID   string
	version  time.Time
	remoteID string
	deleted  bool
	err      error
}

// push sends the records to the remote store concurrently, bounded by the
// bulkhead.
func (s *TaskService) push(ctx context.Context, userID string, tasks []domain.Task) []pushResult {
	results := make([]pushResult, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		results[i] = pushResult{taskID: t.ID, version: t.UpdatedAt, remoteID: t.RemoteID}
		if err := s.bulkhead.Acquire(ctx); err != nil {
			results[i].err = err
			continue
		}
		wg.Add(1)
		go func(i int, t domain.Task) {
			defer wg.Done()
			defer s.bulkhead.Release()
			results[i] = s.pushTask(ctx, userID, t, results[i])
		}(i, t)
	}
	wg.Wait()
	return results
}

func (s *TaskService) pushTask(ctx context.Context, userID string, t domain.Task, r pushResult) pushResult {
	if t.UserID == "" {
		t.UserID = userID
	}
	switch {
	case t.SyncStatus == domain.SyncPendingDelete:
		if t.RemoteID != "" {
			if err := s.remote.DeleteTask(ctx, t.UserID, t.RemoteID); err != nil && !isNotFound(err) {
				r.err = err
				break
			}
		}
		r.deleted = true
	case t.RemoteID == "":
		created, err := s.remote.CreateTask(ctx, &t)
		if err != nil {
			r.err = err
			break
		}
		r.remoteID = created.RemoteID
	default:
		if err := s.remote.UpdateTask(ctx, &t); err != nil {
			r.err = err
		}
	}
	if r.err != nil {
		s.logger.Warn("task push failed", zap.String("task_id", t.ID), zap.Error(r.err))
	}
	return r
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

// ============================================================
// Store primitives
// ============================================================

func (s *Store) tasksLocked(f domain.TaskFilter) []domain.Task {
	out := []domain.Task{}
	for _, t := range s.tasks {
		if t.SyncStatus == domain.SyncPendingDelete {
			continue
		}
		if f.CoacheeID != nil && !sameInt(t.CoacheeID, *f.CoacheeID) {
			continue
		}
		if f.PersonalOnly && !t.Personal() {
			continue
		}
		if f.OpenOnly && t.Completed {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Store) taskIndex(id string) int {
	return indexByID(s.tasks, id, func(t *domain.Task) string { return t.ID })
}

func (s *Store) insertTask(ctx context.Context, t domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := append(slices.Clone(s.tasks), t)
	if err := s.repos.Tasks.Save(ctx, next); err != nil {
		return err
	}
	s.tasks = next
	return nil
}

func (s *Store) patchTask(ctx context.Context, id string, fn func(*domain.Task)) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.taskIndex(id)
	if idx < 0 || s.tasks[idx].SyncStatus == domain.SyncPendingDelete {
		return nil, &domain.ErrNotFound{Resource: "task", ID: id}
	}
	next := slices.Clone(s.tasks)
	fn(&next[idx])
	next[idx].UpdatedAt = s.now()
	if err := s.repos.Tasks.Save(ctx, next); err != nil {
		return nil, err
	}
	s.tasks = next
	out := next[idx]
	return &out, nil
}

// deleteTask removes the task, or marks it PENDING_DELETE when the remote
// copy must be deleted first.
func (s *Store) deleteTask(ctx context.Context, id string, remote bool) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.taskIndex(id)
	if idx < 0 || s.tasks[idx].SyncStatus == domain.SyncPendingDelete {
		return nil, &domain.ErrNotFound{Resource: "task", ID: id}
	}
	next := slices.Clone(s.tasks)
	out := next[idx]
	if remote && out.RemoteID != "" {
		next[idx].SyncStatus = domain.SyncPendingDelete
		next[idx].UpdatedAt = s.now()
		out = next[idx]
	} else {
		next = slices.Delete(next, idx, idx+1)
	}
	if err := s.repos.Tasks.Save(ctx, next); err != nil {
		return nil, err
	}
	s.tasks = next
	return &out, nil
}

// applyTaskSync folds push results and, when merge is set, the pulled
// remote rows of userID into the collection. A push result only changes a
// record that was not edited while the push was in flight. It returns the
// number of remote rows that were new or changed locally.
func (s *Store) applyTaskSync(ctx context.Context, userID string, results []pushResult, remote []domain.Task, merge bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := slices.Clone(s.tasks)
	drop := map[string]bool{}
	for _, r := range results {
		idx := indexByID(next, r.taskID, func(t *domain.Task) string { return t.ID })
		if idx < 0 {
			continue
		}
		t := &next[idx]
		if r.remoteID != "" {
			t.RemoteID = r.remoteID
		}
		if !t.UpdatedAt.Equal(r.version) {
			continue
		}
		switch {
		case r.err != nil && t.SyncStatus != domain.SyncPendingDelete:
			t.SyncStatus = domain.SyncFailed
		case r.err != nil:
		case r.deleted:
			drop[t.ID] = true
		default:
			t.SyncStatus = domain.SyncSynced
		}
	}
	next = slices.DeleteFunc(next, func(t domain.Task) bool { return drop[t.ID] })

	pulled := 0
	if merge {
		byRemote := make(map[string]domain.Task, len(remote))
		for _, rt := range remote {
			byRemote[rt.RemoteID] = rt
		}
		seen := map[string]bool{}
		kept := make([]domain.Task, 0, len(next))
		for _, t := range next {
			if t.RemoteID == "" || (t.UserID != "" && t.UserID != userID) {
				kept = append(kept, t)
				continue
			}
			seen[t.RemoteID] = true
			rt, ok := byRemote[t.RemoteID]
			switch {
			case t.SyncStatus != domain.SyncSynced:
				kept = append(kept, t)
			case !ok:
				// deleted remotely
			default:
				if !sameTask(t, rt) {
					pulled++
				}
				rt.ID = t.ID
				if rt.CreatedAt.IsZero() {
					rt.CreatedAt = t.CreatedAt
				}
				kept = append(kept, rt)
			}
		}
		for _, rt := range remote {
			if seen[rt.RemoteID] {
				continue
			}
			if rt.ID == "" {
				rt.ID = uuid.NewString()
			}
			kept = append(kept, rt)
			pulled++
		}
		next = kept
	}

	if err := s.repos.Tasks.Save(ctx, next); err != nil {
		return 0, err
	}
	s.tasks = next
	return pulled, nil
}

func sameTask(a, b domain.Task) bool {
	return a.Title == b.Title &&
		a.Description == b.Description &&
		a.Completed == b.Completed &&
		equalIntPtr(a.CoacheeID, b.CoacheeID) &&
		equalTimePtr(a.DueDate, b.DueDate)
}

func equalIntPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
