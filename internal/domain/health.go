package domain

import "time"

// ============================================================
// Health & Stats API Responses
// ============================================================

// HealthStatus is returned by GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
}

// StatsSnapshot is returned by GET /v1/stats.
type StatsSnapshot struct {
	Coachees           int     `json:"coachees"`
	ActiveCoachees     int     `json:"activeCoachees"`
	SessionsToday      int     `json:"sessionsToday"`
	OpenTasks          int     `json:"openTasks"`
	OpenInvoiceTotal   float64 `json:"openInvoiceTotal"`
	PersistenceErrors  float64 `json:"persistenceErrors"`
	PortalUnlocks      float64 `json:"portalUnlocks"`
	PortalFailures     float64 `json:"portalFailures"`
	PortalCacheHitRate float64 `json:"portalCacheHitRate"`
	TaskSyncFailures   float64 `json:"taskSyncFailures"`
}

// ============================================================
// Notifications
// ============================================================

// NotificationLevel mirrors the toast variants shown to the coach.
type NotificationLevel string

const (
	NotifySuccess NotificationLevel = "success"
	NotifyInfo    NotificationLevel = "info"
	NotifyError   NotificationLevel = "error"
)

// Notification is a user-facing message emitted by a mutating operation.
type Notification struct {
	ID      string            `json:"id"`
	Level   NotificationLevel `json:"level"`
	Title   string            `json:"title"`
	Message string            `json:"message,omitempty"`
	At      time.Time         `json:"at"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
