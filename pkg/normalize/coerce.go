package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/propbase/propbase-engine/pkg/models"
)

var (
	currencyJunk   = regexp.MustCompile(`[฿$€₽\s,]`)
	areaSuffix     = regexp.MustCompile(`(?i)\s*(sqm|sq\.?\s*m\.?|м2|m2)\s*$`)
	floorPrefix    = regexp.MustCompile(`(?i)^(floor|fl\.?|этаж)\s*`)
	leadingInt     = regexp.MustCompile(`-?\d+`)
	layoutBedrooms = regexp.MustCompile(`(?i)(\d+)\s*(?:br|bed|bedroom|комнат|спальн)`)
)

// parseNumber coerces price-like cells: currency symbols, spaces and
// thousands separators are stripped, and M/K suffixes scale by a million
// or a thousand. Returns nil when the cell holds no usable number.
func parseNumber(raw string) *float64 {
	s := currencyJunk.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return nil
	}

	multiplier := 1.0
	switch {
	case strings.HasSuffix(strings.ToLower(s), "m"):
		s, multiplier = s[:len(s)-1], 1_000_000
	case strings.HasSuffix(strings.ToLower(s), "k"):
		s, multiplier = s[:len(s)-1], 1_000
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	v *= multiplier
	return &v
}

// parseArea coerces area cells, tolerating unit suffixes like "45.5 sqm"
// or "45,5 м2" (decimal comma only when no decimal point is present).
func parseArea(raw string) *float64 {
	s := areaSuffix.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return nil
	}
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	return parseNumber(s)
}

// parseInt coerces integer cells (floor, bedrooms, bathrooms). Floors may
// be negative for basement levels; a "Floor 12" style prefix is removed.
func parseInt(raw string) *int {
	s := floorPrefix.ReplaceAllString(strings.TrimSpace(raw), "")
	if s == "" {
		return nil
	}

	if v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64); err == nil {
		n := int(v)
		return &n
	}
	if m := leadingInt.FindString(s); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return &n
		}
	}
	return nil
}

// parseBedrooms handles the bedroom-count conventions of real price
// lists: "Studio" counts as 0, otherwise the first number wins.
func parseBedrooms(raw string) *int {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return nil
	}
	if strings.Contains(s, "studio") || strings.Contains(s, "студия") {
		zero := 0
		return &zero
	}
	return parseInt(s)
}

// bedroomsFromLayout recovers a bedroom count from a layout code like
// "1BR-A" or "2 Bedroom" when the bedrooms column is absent.
func bedroomsFromLayout(layout string) *int {
	lower := strings.ToLower(layout)
	if strings.Contains(lower, "studio") || strings.Contains(lower, "студия") {
		zero := 0
		return &zero
	}
	if m := layoutBedrooms.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return &n
		}
	}
	return nil
}

// statusSynonyms maps lower-cased status text to the normalized status,
// across the locales the seed lexicon supports.
var statusSynonyms = map[string]models.UnitStatus{
	"available":     models.StatusAvailable,
	"avail":         models.StatusAvailable,
	"open":          models.StatusAvailable,
	"for sale":      models.StatusAvailable,
	"free":          models.StatusAvailable,
	"свободен":      models.StatusAvailable,
	"в продаже":     models.StatusAvailable,
	"доступен":      models.StatusAvailable,
	"reserved":      models.StatusReserved,
	"res":           models.StatusReserved,
	"booked":        models.StatusReserved,
	"booking":       models.StatusReserved,
	"hold":          models.StatusReserved,
	"бронь":         models.StatusReserved,
	"забронирован":  models.StatusReserved,
	"резерв":        models.StatusReserved,
	"sold":          models.StatusSold,
	"sold out":      models.StatusSold,
	"closed":        models.StatusSold,
	"продан":        models.StatusSold,
	"продано":       models.StatusSold,
}

// statusContains is checked in order for partial matches like
// "SOLD - 12/05" after the exact lookup misses. Sold before reserved so
// "sold (was reserved)" resolves the same way every run.
var statusContains = []struct {
	needle string
	status models.UnitStatus
}{
	{"sold", models.StatusSold},
	{"продан", models.StatusSold},
	{"reserv", models.StatusReserved},
	{"брон", models.StatusReserved},
	{"hold", models.StatusReserved},
	{"avail", models.StatusAvailable},
	{"свободен", models.StatusAvailable},
	{"продаже", models.StatusAvailable},
}

// parseStatus matches status text case-insensitively against the synonym
// table. Unrecognized text maps to unknown and never fails a row.
func parseStatus(raw string) models.UnitStatus {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return models.StatusUnknown
	}
	if status, ok := statusSynonyms[s]; ok {
		return status
	}
	for _, c := range statusContains {
		if strings.Contains(s, c.needle) {
			return c.status
		}
	}
	return models.StatusUnknown
}

// parseCurrency normalizes a currency cell to an upper-case ISO-like
// code; empty or unusable cells return "".
func parseCurrency(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch {
	case s == "":
		return ""
	case strings.Contains(s, "฿") || strings.Contains(s, "THB") || strings.Contains(s, "BAHT"):
		return "THB"
	case strings.Contains(s, "$") || strings.Contains(s, "USD"):
		return "USD"
	case strings.Contains(s, "€") || strings.Contains(s, "EUR"):
		return "EUR"
	case strings.Contains(s, "₽") || strings.Contains(s, "RUB") || strings.Contains(s, "РУБ"):
		return "RUB"
	case strings.Contains(s, "IDR") || strings.Contains(s, "RP"):
		return "IDR"
	case len(s) == 3:
		return s
	}
	return ""
}
