// Package normalize applies a confirmed column mapping to every grid row,
// coercing raw cell text into typed unit attributes. Rows that fail
// validation are returned flagged, never dropped: the review layer needs
// the full row count including failures.
package normalize

import (
	"fmt"
	"math"
	"strings"

	"github.com/propbase/propbase-engine/pkg/models"
)

// Normalize converts every data row of the grid into a ParsedUnit using
// the confirmed field→column mapping. Cell-level coercion failures null
// the field and add a row-scoped warning; they never abort the row. The
// result is a pure function of its inputs.
func Normalize(grid *models.Grid, mapping map[models.Field]int, defaultCurrency string) ([]models.ParsedUnit, []models.Warning) {
	units := make([]models.ParsedUnit, 0, grid.RowCount())
	var warnings []models.Warning

	for rowIdx := range grid.Rows {
		unit, rowWarnings := normalizeRow(grid, mapping, rowIdx, defaultCurrency)
		warnings = append(warnings, rowWarnings...)
		units = append(units, unit)
	}

	return units, warnings
}

func normalizeRow(grid *models.Grid, mapping map[models.Field]int, rowIdx int, defaultCurrency string) (models.ParsedUnit, []models.Warning) {
	var warnings []models.Warning

	cell := func(f models.Field) (string, int, bool) {
		col, ok := mapping[f]
		if !ok {
			return "", -1, false
		}
		return strings.TrimSpace(grid.Cell(rowIdx, col)), col, true
	}

	warn := func(f models.Field, col int, raw string) {
		warnings = append(warnings, models.Warning{
			Row:     rowIdx,
			Column:  col,
			Field:   f,
			Message: fmt.Sprintf("cannot parse %s value %q", f, raw),
		})
	}

	unit := models.ParsedUnit{
		RowIndex: rowIdx,
		Currency: defaultCurrency,
		Status:   models.StatusUnknown,
	}

	if raw, _, ok := cell(models.FieldUnitNumber); ok {
		unit.UnitNumber = raw
	}

	number := func(f models.Field, parse func(string) *float64) *float64 {
		raw, col, ok := cell(f)
		if !ok || raw == "" {
			return nil
		}
		v := parse(raw)
		if v == nil {
			warn(f, col, raw)
		}
		return v
	}
	integer := func(f models.Field, parse func(string) *int) *int {
		raw, col, ok := cell(f)
		if !ok || raw == "" {
			return nil
		}
		v := parse(raw)
		if v == nil {
			warn(f, col, raw)
		}
		return v
	}

	unit.Price = number(models.FieldPrice, parseNumber)
	unit.PricePerSqm = number(models.FieldPricePerSqm, parseNumber)
	unit.AreaSqm = number(models.FieldAreaSqm, parseArea)
	unit.Floor = integer(models.FieldFloor, parseInt)
	unit.Bedrooms = integer(models.FieldBedrooms, parseBedrooms)
	unit.Bathrooms = integer(models.FieldBathrooms, parseInt)

	if raw, _, ok := cell(models.FieldBuilding); ok && raw != "" {
		unit.Building = &raw
	}
	if raw, _, ok := cell(models.FieldLayoutType); ok && raw != "" {
		unit.LayoutType = &raw
	}
	if raw, _, ok := cell(models.FieldViewType); ok && raw != "" {
		unit.ViewType = &raw
	}
	if raw, _, ok := cell(models.FieldStatus); ok {
		unit.Status = parseStatus(raw)
	}

	if raw, col, ok := cell(models.FieldCurrency); ok && raw != "" {
		if c := parseCurrency(raw); c != "" {
			unit.Currency = c
		} else {
			warn(models.FieldCurrency, col, raw)
		}
	}

	// Bedrooms recoverable from layout codes like "2BR-A" when the column
	// is absent or blank.
	if unit.Bedrooms == nil && unit.LayoutType != nil {
		unit.Bedrooms = bedroomsFromLayout(*unit.LayoutType)
	}

	// Derive price per sqm only when its own column was not mapped.
	if _, mapped := mapping[models.FieldPricePerSqm]; !mapped {
		if unit.Price != nil && unit.AreaSqm != nil && *unit.AreaSqm > 0 {
			pps := math.Round(*unit.Price / *unit.AreaSqm * 100) / 100
			unit.PricePerSqm = &pps
		}
	}

	unit.Validate()
	return unit, warnings
}

// RateTable maps a currency code to its multiplier into the reference
// currency. The engine never fetches rates; callers supply the table.
type RateTable map[string]float64

// ConvertPrices fills PriceConverted and ExchangeRate on every unit whose
// currency appears in the table. Units priced in an unlisted currency are
// left unconverted and reported back.
func ConvertPrices(units []models.ParsedUnit, rates RateTable) (missing []string) {
	seen := make(map[string]bool)

	for i := range units {
		u := &units[i]
		if u.Price == nil {
			continue
		}
		rate, ok := rates[u.Currency]
		if !ok {
			if !seen[u.Currency] {
				seen[u.Currency] = true
				missing = append(missing, u.Currency)
			}
			continue
		}
		converted := math.Round(*u.Price*rate*100) / 100
		u.PriceConverted = &converted
		r := rate
		u.ExchangeRate = &r
	}

	return missing
}
