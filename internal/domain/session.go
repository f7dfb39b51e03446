package domain

import "time"

// ============================================================
// Sessions
// ============================================================

// SessionMode describes how a session takes place.
type SessionMode string

const (
	ModeInPerson SessionMode = "IN_PERSON"
	ModeRemote   SessionMode = "REMOTE"
	ModePhone    SessionMode = "PHONE"
	ModeHybrid   SessionMode = "HYBRID"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionPlanned   SessionStatus = "PLANNED"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCanceled  SessionStatus = "CANCELED"
)

// Valid reports whether s is a known status.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionPlanned, SessionCompleted, SessionCanceled:
		return true
	}
	return false
}

// Session is a coaching appointment with exactly one coachee.
type Session struct {
	ID              string        `json:"id"`
	CoacheeID       int           `json:"coacheeId"`
	Date            time.Time     `json:"date"`
	Duration        int           `json:"duration"` // minutes
	Mode            SessionMode   `json:"mode"`
	Status          SessionStatus `json:"status"`
	PackageID       string        `json:"packageId,omitempty"`
	PackageDeducted bool          `json:"packageDeducted,omitempty"`
	Archived        bool          `json:"archived"`
	Topic           string        `json:"topic,omitempty"`
	Location        string        `json:"location,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// SessionNote is a coach note attached to a session.
type SessionNote struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	CoacheeID int       `json:"coacheeId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionFilter narrows a session listing. The zero value lists all
// non-archived sessions.
type SessionFilter struct {
	CoacheeID       *int
	Today           bool
	Status          SessionStatus
	IncludeArchived bool
}

// SessionPreparation is the read-only view behind /sessions/:id/prepare.
type SessionPreparation struct {
	Session          Session        `json:"session"`
	Coachee          Coachee        `json:"coachee"`
	PreviousSessions []Session      `json:"previousSessions"`
	Notes            []SessionNote  `json:"notes"`
	OpenTasks        []Task         `json:"openTasks"`
	ActivePackage    *ActivePackage `json:"activePackage,omitempty"`
}

// ============================================================
// Packages & Rates
// ============================================================

// ServiceRate is a billable rate the coach offers.
type ServiceRate struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rate     float64 `json:"rate"`
	Currency string  `json:"currency"`
	Unit     string  `json:"unit,omitempty"`
}

// PackageTemplate describes a sellable bundle of session units.
type PackageTemplate struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Units    int     `json:"units"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency"`
}

// ActivePackage is a purchased bundle of session units.
type ActivePackage struct {
	ID          string    `json:"id"`
	CoacheeID   int       `json:"coacheeId"`
	TemplateID  string    `json:"templateId,omitempty"`
	Name        string    `json:"name"`
	TotalUnits  int       `json:"totalUnits"`
	UsedUnits   int       `json:"usedUnits"`
	Price       float64   `json:"price,omitempty"`
	Currency    string    `json:"currency,omitempty"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// Remaining returns the number of unused units.
func (p *ActivePackage) Remaining() int {
	return p.TotalUnits - p.UsedUnits
}

// NewPackage is the input accepted by AddPackage.
type NewPackage struct {
	CoacheeID  int     `json:"coacheeId" validate:"required,gt=0"`
	TemplateID string  `json:"templateId"`
	Name       string  `json:"name"`
	TotalUnits int     `json:"totalUnits" validate:"gte=0"`
	Price      float64 `json:"price" validate:"gte=0"`
	Currency   string  `json:"currency"`
}
