package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PriceVersionStatus is the lifecycle state of one reconciliation run.
type PriceVersionStatus string

const (
	VersionPending        PriceVersionStatus = "pending"
	VersionProcessing     PriceVersionStatus = "processing"
	VersionCompleted      PriceVersionStatus = "completed"
	VersionFailed         PriceVersionStatus = "failed"
	VersionRequiresReview PriceVersionStatus = "requires_review"
	VersionApproved       PriceVersionStatus = "approved"
	VersionRejected       PriceVersionStatus = "rejected"
)

// Terminal reports whether the status permits no further processing.
// requires_review still accepts a human approve/reject transition.
func (s PriceVersionStatus) Terminal() bool {
	switch s {
	case VersionCompleted, VersionFailed, VersionApproved, VersionRejected:
		return true
	}
	return false
}

// RowError identifies one row the reconciler could not apply.
type RowError struct {
	Row        int    `json:"row,omitempty"`
	UnitNumber string `json:"unit_number,omitempty"`
	Reason     string `json:"reason"`
}

// PriceVersion records one ingestion run for a project. Version numbers
// are monotonically increasing per project. Once status reaches a terminal
// value other than requires_review the record is immutable.
type PriceVersion struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	VersionNumber int       `json:"version_number"`

	SourceName string     `json:"source_name"`
	SourceType SourceType `json:"source_type"`

	Status PriceVersionStatus `json:"status"`

	UnitsCreated   int `json:"units_created"`
	UnitsUpdated   int `json:"units_updated"`
	UnitsUnchanged int `json:"units_unchanged"`
	UnitsErrors    int `json:"units_errors"`

	Errors   []RowError `json:"errors,omitempty"`
	Warnings []Warning  `json:"warnings,omitempty"`

	Currency        string   `json:"currency"`
	ExchangeRateUSD *float64 `json:"exchange_rate_usd,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
}

// ChangeType classifies one price-history entry.
type ChangeType string

const (
	ChangeNewUnit       ChangeType = "new_unit"
	ChangePriceIncrease ChangeType = "price_increase"
	ChangePriceDecrease ChangeType = "price_decrease"
	ChangeNoChange      ChangeType = "no_change"
	ChangeStatusChange  ChangeType = "status_change"
)

// PriceHistory is an append-only record of one unit's change within one
// price version. Entries are never updated or deleted; the full history of
// a unit is the sequence of its entries ordered by version.
type PriceHistory struct {
	ID             uuid.UUID `json:"id"`
	UnitID         uuid.UUID `json:"unit_id"`
	PriceVersionID uuid.UUID `json:"price_version_id"`

	OldPrice    *float64 `json:"old_price,omitempty"`
	NewPrice    *float64 `json:"new_price,omitempty"`
	OldPriceUSD *float64 `json:"old_price_usd,omitempty"`
	NewPriceUSD *float64 `json:"new_price_usd,omitempty"`

	PriceChange        *float64 `json:"price_change,omitempty"`
	PriceChangePercent *float64 `json:"price_change_percent,omitempty"`

	OldStatus *UnitStatus `json:"old_status,omitempty"`
	NewStatus *UnitStatus `json:"new_status,omitempty"`

	ChangeType   ChangeType `json:"change_type"`
	Currency     string     `json:"currency"`
	ExchangeRate *float64   `json:"exchange_rate,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
