package service

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/allensfl/coachingspace-app-sub001/internal/domain"
)

// ResolvePortalState decides what a visitor presenting token may see of
// coachee c. unlocked is true when the visitor's session already passed the
// password check for this token. It never mutates c.
//
//	initial or one-time token, unused, no password  -> PASSWORD_SETUP
//	initial or one-time token, used or password set -> INVALID
//	permanent token with password                   -> LOCKED / UNLOCKED
//	permanent token without password                -> INVALID
//	no match                                        -> INVALID
func ResolvePortalState(c *domain.Coachee, token string, unlocked bool) domain.PortalState {
	if c == nil || token == "" {
		return domain.PortalInvalid
	}
	pa := &c.PortalAccess

	if matches(pa.InitialToken, token) || matches(pa.OneTimeToken, token) {
		if !pa.IsUsed && pa.PasswordHash == "" {
			return domain.PortalPasswordSetup
		}
		return domain.PortalInvalid
	}
	if matches(pa.PermanentToken, token) {
		if pa.PasswordHash == "" {
			return domain.PortalInvalid
		}
		if unlocked {
			return domain.PortalUnlocked
		}
		return domain.PortalLocked
	}
	return domain.PortalInvalid
}

// PortalAccessState summarizes a coachee's portal for the coach:
// NO_ACCESS_YET until the password is set, ACTIVATED afterwards.
func PortalAccessState(pa domain.PortalAccess) domain.PortalState {
	if pa.PermanentToken != nil && pa.PasswordHash != "" {
		return domain.PortalActivated
	}
	if pa.InitialToken != nil || pa.OneTimeToken != nil {
		return domain.PortalNoAccessYet
	}
	return domain.PortalInvalid
}

func matches(slot *string, token string) bool {
	return slot != nil && *slot != "" && *slot == token
}

// newPortalToken returns 32 random bytes, hex encoded.
func newPortalToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate portal token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// PortalPath is the portal route for a token.
func PortalPath(token string) string {
	return "/portal/" + token
}
