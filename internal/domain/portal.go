package domain

import "time"

// ============================================================
// Portal
// ============================================================

// PortalAccess is the token sub-record of a Coachee. After password setup
// only PermanentToken is live.
type PortalAccess struct {
	InitialToken   *string    `json:"initialToken"`
	PermanentToken *string    `json:"permanentToken"`
	OneTimeToken   *string    `json:"oneTimeToken,omitempty"` // legacy single-use slot
	IsUsed         bool       `json:"isUsed"`
	PasswordHash   string     `json:"passwordHash,omitempty"`
	ActivatedAt    *time.Time `json:"activatedAt,omitempty"`
	LastAccessAt   *time.Time `json:"lastAccessAt,omitempty"`
}

// PortalState is the outcome of resolving a portal token.
type PortalState string

const (
	PortalNoAccessYet   PortalState = "NO_ACCESS_YET"
	PortalPasswordSetup PortalState = "PASSWORD_SETUP"
	PortalActivated     PortalState = "ACTIVATED"
	PortalLocked        PortalState = "LOCKED"
	PortalUnlocked      PortalState = "UNLOCKED"
	PortalInvalid       PortalState = "INVALID"
)

// PortalView is what a portal visitor gets back. Coachee is only set when
// the state is UNLOCKED.
type PortalView struct {
	State       PortalState `json:"state"`
	DisplayName string      `json:"displayName,omitempty"`
	Coachee     *Coachee    `json:"coachee,omitempty"`
	Sessions    []Session   `json:"sessions,omitempty"`
	Documents   []Document  `json:"documents,omitempty"`
	RedirectTo  string      `json:"redirectTo,omitempty"`
	SessionID   string      `json:"sessionId,omitempty"`
}

// PortalEntry is a reflection or note written by the coachee in the portal.
type PortalEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PortalData is stored per coachee under coacheePortalData_<id>.
type PortalData struct {
	CoacheeID         int           `json:"coacheeId"`
	Entries           []PortalEntry `json:"entries"`
	CompletedSubGoals []string      `json:"completedSubGoals"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}
