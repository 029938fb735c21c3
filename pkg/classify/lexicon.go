package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/propbase/propbase-engine/pkg/models"
)

// Seed match strengths. Exact synonym matches score highest; containment
// in either direction scores lower. Learned evidence is combined with
// these by max, never by override.
const (
	seedExactScore     = 0.9
	seedContainsScore  = 0.7
	seedContainedScore = 0.6

	// scoreThreshold is the floor below which a column is proposed as
	// unknown with zero confidence.
	scoreThreshold = 0.3
)

// seedLexicon maps each canonical field to its known header synonyms, in
// normalized form, across the locales PropBase sees in real price lists
// (English and Russian). Order within a field is irrelevant; ties across
// fields are broken deterministically by the classifier.
var seedLexicon = map[models.Field][]string{
	models.FieldUnitNumber: {
		"unit", "unit number", "unit no", "unit id", "no", "№", "number",
		"apartment", "apt", "room", "room no", "condo",
		"номер", "юнит", "квартира",
	},
	models.FieldBedrooms: {
		"bedrooms", "bedroom", "br", "bed", "beds", "room type",
		"спальни", "спален", "комнат",
	},
	models.FieldBathrooms: {
		"bathrooms", "bathroom", "bath", "baths",
		"ванные", "санузел",
	},
	models.FieldAreaSqm: {
		"area", "size", "sqm", "sq m", "m2", "м2", "square",
		"living area", "total area", "net area", "gross area", "area sqm",
		"площадь", "общая",
	},
	models.FieldFloor: {
		"floor", "flr", "fl", "level", "storey",
		"этаж", "этаже",
	},
	models.FieldBuilding: {
		"building", "tower", "block", "bldg", "section",
		"здание", "корпус", "секция",
	},
	models.FieldPrice: {
		"price", "total price", "amount", "cost", "sale price",
		"selling price", "unit price", "apartment price", "price thb",
		"price usd", "leasehold", "freehold",
		"цена", "стоимость",
	},
	models.FieldPricePerSqm: {
		"price per sqm", "price sqm", "per sqm", "sqm price",
		"price per m2", "price m2", "thb sqm", "usd sqm",
		"цена за м2", "стоимость м2",
	},
	models.FieldCurrency: {
		"currency", "curr", "валюта",
	},
	models.FieldLayoutType: {
		"layout", "layout type", "type", "unit type", "plan",
		"планировка", "тип",
	},
	models.FieldViewType: {
		"view", "view type", "facing", "orientation",
		"вид",
	},
	models.FieldStatus: {
		"status", "availability", "available", "avail", "state",
		"booking status",
		"статус", "состояние", "продано",
	},
}

// seedScore scores a normalized header against one field's synonyms.
// Containment checks are only applied to strings of three or more runes,
// so short codes like "no" or "br" match exactly but never by substring.
func seedScore(normalized string, field models.Field) float64 {
	best := 0.0
	for _, syn := range seedLexicon[field] {
		switch {
		case syn == normalized:
			return seedExactScore
		case utf8.RuneCountInString(syn) >= 3 && strings.Contains(normalized, syn):
			if seedContainsScore > best {
				best = seedContainsScore
			}
		case utf8.RuneCountInString(normalized) >= 3 && strings.Contains(syn, normalized):
			if seedContainedScore > best {
				best = seedContainedScore
			}
		}
	}
	return best
}
