package domain

import "time"

// ============================================================
// Settings
// ============================================================

// Settings is the single process-wide settings record.
type Settings struct {
	Company            CompanyProfile  `json:"company"`
	Theme              Theme           `json:"theme"`
	DocumentCategories []string        `json:"documentCategories"`
	ToolCategories     []string        `json:"toolCategories"`
	GoalCategories     []string        `json:"goalCategories"`
	AIPrompts          []AIPrompt      `json:"aiPrompts"`
	CustomFields       []CustomField   `json:"customFields"`
	Invoice            InvoiceSettings `json:"invoice"`
}

// CompanyProfile is the coach's business identity printed on invoices.
type CompanyProfile struct {
	Name    string `json:"name"`
	Owner   string `json:"owner"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	TaxID   string `json:"taxId"`
	IBAN    string `json:"iban"`
	Website string `json:"website"`
}

// Theme holds the UI colors.
type Theme struct {
	Primary   string `json:"primary"`
	Secondary string `json:"secondary"`
	Accent    string `json:"accent"`
	Mode      string `json:"mode"`
}

// AIPrompt is a reusable prompt template. Category plus Title identify it.
type AIPrompt struct {
	ID       string `json:"id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Prompt   string `json:"prompt"`
	Custom   bool   `json:"custom,omitempty"`
}

// Key returns the composite identity used for deduplication.
func (p AIPrompt) Key() string {
	return p.Category + "\x00" + p.Title
}

// CustomField is an admin-defined coachee attribute stored in customData.
type CustomField struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Type    string   `json:"type"` // text, number, date, select
	Options []string `json:"options,omitempty"`
}

// InvoiceSettings holds invoice numbering and payment defaults.
type InvoiceSettings struct {
	Prefix        string  `json:"prefix"`
	PaymentDays   int     `json:"paymentDays"`
	Currency      string  `json:"currency"`
	TaxRate       float64 `json:"taxRate"`
	SmallBusiness bool    `json:"smallBusiness"`
	FooterNote    string  `json:"footerNote,omitempty"`
}

// ============================================================
// Backup
// ============================================================

// BackupVersion is written into every snapshot.
const BackupVersion = 1

// Snapshot is the full backup document.
type Snapshot struct {
	Version           int                `json:"version"`
	ExportedAt        time.Time          `json:"exportedAt"`
	Coachees          []Coachee          `json:"coachees"`
	Sessions          []Session          `json:"sessions"`
	SessionNotes      []SessionNote      `json:"sessionNotes"`
	Invoices          []Invoice          `json:"invoices"`
	RecurringInvoices []RecurringInvoice `json:"recurringInvoices"`
	JournalEntries    []JournalEntry     `json:"journalEntries"`
	GeneralDocuments  []Document         `json:"generalDocuments"`
	CoachingDocuments []Document         `json:"coaching_documents"`
	Tools             []Tool             `json:"tools"`
	ActivePackages    []ActivePackage    `json:"activePackages"`
	PackageTemplates  []PackageTemplate  `json:"packageTemplates"`
	ServiceRates      []ServiceRate      `json:"serviceRates"`
	Tasks             []Task             `json:"tasks"`
	Settings          Settings           `json:"appSettings"`
	PortalData        []PortalData       `json:"portalData"`
}
