package domain

import "strconv"

// Storage keys. Names are shared with existing browser exports and must not
// change.
const (
	KeyCoachees          = "coachees"
	KeySessions          = "sessions"
	KeyInvoices          = "invoices"
	KeyJournalEntries    = "journalEntries"
	KeyGeneralDocuments  = "generalDocuments"
	KeyCoachingDocuments = "coaching_documents"
	KeyTools             = "tools"
	KeyActivePackages    = "activePackages"
	KeyServiceRates      = "serviceRates"
	KeyTasks             = "tasks"
	KeySessionNotes      = "sessionNotes"
	KeyRecurringInvoices = "recurringInvoices"
	KeyPackageTemplates  = "packageTemplates"
	KeyAppSettings       = "appSettings"

	PortalDataKeyPrefix = "coacheePortalData_"
)

// PortalDataKey returns the per-coachee portal data key.
func PortalDataKey(coacheeID int) string {
	return PortalDataKeyPrefix + strconv.Itoa(coacheeID)
}
