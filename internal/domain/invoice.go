package domain

import (
	"math"
	"time"
)

// ============================================================
// Invoices
// ============================================================

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceDraft   InvoiceStatus = "DRAFT"
	InvoiceSent    InvoiceStatus = "SENT"
	InvoicePaid    InvoiceStatus = "PAID"
	InvoiceOverdue InvoiceStatus = "OVERDUE"
)

// Valid reports whether s is a known status.
func (s InvoiceStatus) Valid() bool {
	switch s {
	case InvoiceDraft, InvoiceSent, InvoicePaid, InvoiceOverdue:
		return true
	}
	return false
}

// InvoiceItem is one line on an invoice. Total is derived.
type InvoiceItem struct {
	Description string  `json:"description" validate:"required"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	Rate        float64 `json:"rate" validate:"gte=0"`
	Total       float64 `json:"total"`
}

// Invoice bills one coachee.
type Invoice struct {
	ID          string        `json:"id"`
	Number      string        `json:"number"`
	CoacheeID   int           `json:"coacheeId"`
	Items       []InvoiceItem `json:"items"`
	Status      InvoiceStatus `json:"status"`
	Date        time.Time     `json:"date"`
	DueDate     time.Time     `json:"dueDate"`
	Currency    string        `json:"currency"`
	Total       float64       `json:"total"`
	Notes       string        `json:"notes,omitempty"`
	RecurringID string        `json:"recurringId,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Recalculate recomputes every item total and the invoice total.
func (inv *Invoice) Recalculate() {
	inv.Total = RecalculateItems(inv.Items)
}

// RecalculateItems sets each item's total to quantity × rate and returns
// the sum, rounded to cents.
func RecalculateItems(items []InvoiceItem) float64 {
	var sum float64
	for i := range items {
		items[i].Total = roundCents(items[i].Quantity * items[i].Rate)
		sum += items[i].Total
	}
	return roundCents(sum)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

// InvoiceFilter narrows an invoice listing.
type InvoiceFilter struct {
	CoacheeID *int
	Status    InvoiceStatus
}

// RecurrenceInterval is how often a recurring invoice is issued.
type RecurrenceInterval string

const (
	IntervalMonthly   RecurrenceInterval = "MONTHLY"
	IntervalQuarterly RecurrenceInterval = "QUARTERLY"
	IntervalYearly    RecurrenceInterval = "YEARLY"
)

// Next returns t advanced by one interval.
func (i RecurrenceInterval) Next(t time.Time) time.Time {
	switch i {
	case IntervalQuarterly:
		return t.AddDate(0, 3, 0)
	case IntervalYearly:
		return t.AddDate(1, 0, 0)
	default:
		return t.AddDate(0, 1, 0)
	}
}

// RecurringInvoice is a template materialized into invoices on a schedule.
type RecurringInvoice struct {
	ID              string             `json:"id"`
	CoacheeID       int                `json:"coacheeId"`
	Items           []InvoiceItem      `json:"items"`
	Currency        string             `json:"currency"`
	Interval        RecurrenceInterval `json:"interval"`
	NextDate        time.Time          `json:"nextDate"`
	Active          bool               `json:"active"`
	LastGeneratedAt *time.Time         `json:"lastGeneratedAt,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
}
