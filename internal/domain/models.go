// Package domain defines the core entities of the coaching practice.
// These models are independent of storage and transport and mirror the
// JSON shapes persisted under each collection key.
package domain

import (
	"strings"
	"time"
)

// ============================================================
// Coachee
// ============================================================

// CoacheeStatus is the lifecycle state of a coachee.
type CoacheeStatus string

const (
	CoacheePotential CoacheeStatus = "POTENTIAL"
	CoacheeActive    CoacheeStatus = "ACTIVE"
	CoacheePaused    CoacheeStatus = "PAUSED"
	CoacheeCompleted CoacheeStatus = "COMPLETED"
)

// Valid reports whether s is a known status.
func (s CoacheeStatus) Valid() bool {
	switch s {
	case CoacheePotential, CoacheeActive, CoacheePaused, CoacheeCompleted:
		return true
	}
	return false
}

// Coachee is a coach's client, the primary managed entity.
type Coachee struct {
	ID           int            `json:"id"`
	UID          string         `json:"uid"`
	FirstName    string         `json:"firstName"`
	LastName     string         `json:"lastName"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Company      string         `json:"company,omitempty"`
	Status       CoacheeStatus  `json:"status"`
	PortalAccess PortalAccess   `json:"portalAccess"`
	Consents     Consents       `json:"consents"`
	Goals        []Goal         `json:"goals"`
	CustomData   map[string]any `json:"customData,omitempty"`
	Documents    []Document     `json:"documents,omitempty"` // legacy embedded list
	AuditLog     []AuditEntry   `json:"auditLog"`
	Notes        string         `json:"notes,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// FullName joins first and last name.
func (c *Coachee) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// NewCoachee is the input accepted by AddCoachee.
type NewCoachee struct {
	FirstName  string         `json:"firstName" validate:"required"`
	LastName   string         `json:"lastName" validate:"required"`
	Email      string         `json:"email" validate:"omitempty,email"`
	Phone      string         `json:"phone"`
	Company    string         `json:"company"`
	Status     CoacheeStatus  `json:"status"`
	Goals      []Goal         `json:"goals"`
	CustomData map[string]any `json:"customData"`
	Consents   *Consents      `json:"consents"`
	Notes      string         `json:"notes"`
}

// Consents holds the coachee's consent flags plus the trail of changes.
type Consents struct {
	DataProcessing bool           `json:"dataProcessing"`
	Recording      bool           `json:"recording"`
	Marketing      bool           `json:"marketing"`
	Trail          []ConsentEvent `json:"trail"`
}

// ConsentEvent records one consent change.
type ConsentEvent struct {
	Consent string    `json:"consent"`
	Granted bool      `json:"granted"`
	At      time.Time `json:"at"`
}

// Goal is a coaching goal with optional sub-goals.
type Goal struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Completed   bool      `json:"completed"`
	SubGoals    []SubGoal `json:"subGoals"`
}

// SubGoal is a checklist item under a Goal.
type SubGoal struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// AuditEntry is one line of a coachee's audit log.
type AuditEntry struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"`
	Detail string    `json:"detail,omitempty"`
}

// CoacheeDetail is the assembled read-only view returned by GetCoacheeByID.
type CoacheeDetail struct {
	Coachee        Coachee         `json:"coachee"`
	Sessions       []Session       `json:"sessions"`
	Invoices       []Invoice       `json:"invoices"`
	JournalEntries []JournalEntry  `json:"journalEntries"`
	Packages       []ActivePackage `json:"packages"`
	Documents      []Document      `json:"documents"`
	Tasks          []Task          `json:"tasks"`
}

// ============================================================
// Journal & Tools
// ============================================================

// JournalEntry is a free-form journal note, optionally tied to a coachee.
type JournalEntry struct {
	ID        string    `json:"id"`
	CoacheeID *int      `json:"coacheeId,omitempty"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Tool is a coaching method or exercise from the coach's toolbox.
type Tool struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category"`
	Description string     `json:"description,omitempty"`
	UsageCount  int        `json:"usageCount"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
	CoacheeIDs  []int      `json:"coacheeIds,omitempty"`
}
