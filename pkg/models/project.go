package models

import (
	"time"

	"github.com/google/uuid"
)

// Project represents one development project whose unit inventory the
// ingestion pipeline maintains.
type Project struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	DefaultCurrency string    `json:"default_currency"`

	// RequiresReview is set when an ingestion run changed prices, so the
	// listings UI can surface the project for a human pass.
	RequiresReview bool `json:"requires_review"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Unit is one sellable unit in a project's inventory.
type Unit struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`

	UnitNumber string  `json:"unit_number"`
	Building   *string `json:"building,omitempty"`
	Floor      *int    `json:"floor,omitempty"`
	Bedrooms   *int    `json:"bedrooms,omitempty"`
	Bathrooms  *int    `json:"bathrooms,omitempty"`
	AreaSqm    *float64 `json:"area_sqm,omitempty"`

	Price       *float64 `json:"price,omitempty"`
	Currency    string   `json:"currency"`
	PriceUSD    *float64 `json:"price_usd,omitempty"`
	PricePerSqm *float64 `json:"price_per_sqm,omitempty"`

	LayoutType *string    `json:"layout_type,omitempty"`
	ViewType   *string    `json:"view_type,omitempty"`
	Status     UnitStatus `json:"status"`

	// PriceVersionID references the ingestion run that last touched this
	// unit.
	PriceVersionID *uuid.UUID `json:"price_version_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchKey returns the reconciliation matching key for a unit: the
// trimmed, upper-cased unit number, qualified by building when one is
// recorded. Unit numbers repeat across buildings, so the building is the
// disambiguator; units without one key on the bare number.
func MatchKey(unitNumber string, building *string) string {
	key := normalizeKey(unitNumber)
	if building != nil {
		if b := normalizeKey(*building); b != "" {
			key += "|" + b
		}
	}
	return key
}
