package models

import (
	"fmt"
	"strings"
)

// UnitStatus is the normalized availability state of a unit.
type UnitStatus string

const (
	StatusAvailable UnitStatus = "available"
	StatusReserved  UnitStatus = "reserved"
	StatusSold      UnitStatus = "sold"
	StatusUnknown   UnitStatus = "unknown"
)

// ParsedUnit is the normalizer's output for one grid row. Nullable
// attributes are pointers; a nil field means the cell was absent or failed
// coercion (the row carries a warning in the latter case, never an error).
type ParsedUnit struct {
	RowIndex   int    `json:"row_index"`
	UnitNumber string `json:"unit_number"`

	Bedrooms  *int     `json:"bedrooms,omitempty"`
	Bathrooms *int     `json:"bathrooms,omitempty"`
	AreaSqm   *float64 `json:"area_sqm,omitempty"`
	Floor     *int     `json:"floor,omitempty"`
	Building  *string  `json:"building,omitempty"`

	Price       *float64 `json:"price,omitempty"`
	PricePerSqm *float64 `json:"price_per_sqm,omitempty"`
	Currency    string   `json:"currency"`

	// PriceConverted is the price in the reference currency, filled in
	// only when the caller supplies a rate table.
	PriceConverted *float64 `json:"price_converted,omitempty"`
	ExchangeRate   *float64 `json:"exchange_rate,omitempty"`

	LayoutType *string    `json:"layout_type,omitempty"`
	ViewType   *string    `json:"view_type,omitempty"`
	Status     UnitStatus `json:"status"`

	IsValid          bool     `json:"is_valid"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// Validate derives IsValid and ValidationErrors. A unit is invalid when
// the unit number is empty, or price/area are present but non-positive.
// A missing price is not invalidating.
func (u *ParsedUnit) Validate() {
	u.ValidationErrors = u.ValidationErrors[:0]

	if strings.TrimSpace(u.UnitNumber) == "" {
		u.ValidationErrors = append(u.ValidationErrors, "missing unit number")
	}
	if u.Price != nil && *u.Price <= 0 {
		u.ValidationErrors = append(u.ValidationErrors, fmt.Sprintf("invalid price: %v", *u.Price))
	}
	if u.AreaSqm != nil && *u.AreaSqm <= 0 {
		u.ValidationErrors = append(u.ValidationErrors, fmt.Sprintf("invalid area: %v", *u.AreaSqm))
	}

	u.IsValid = len(u.ValidationErrors) == 0
}

// Warning is a non-fatal, row-scoped normalization issue.
type Warning struct {
	Row     int    `json:"row"`
	Column  int    `json:"column,omitempty"`
	Field   Field  `json:"field,omitempty"`
	Message string `json:"message"`
}
