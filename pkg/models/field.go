// Package models contains domain types for propbase-engine.
package models

// Field is one entry in the canonical vocabulary a price-list column can
// be mapped to.
type Field string

const (
	FieldUnitNumber  Field = "unit_number"
	FieldBedrooms    Field = "bedrooms"
	FieldBathrooms   Field = "bathrooms"
	FieldAreaSqm     Field = "area_sqm"
	FieldFloor       Field = "floor"
	FieldBuilding    Field = "building"
	FieldPrice       Field = "price"
	FieldPricePerSqm Field = "price_per_sqm"
	FieldCurrency    Field = "currency"
	FieldLayoutType  Field = "layout_type"
	FieldViewType    Field = "view_type"
	FieldStatus      Field = "status"

	// FieldUnknown marks a column that maps to nothing. It never blocks
	// confirmation and never receives cell data.
	FieldUnknown Field = "unknown"
)

// FieldSpec describes one canonical field: localized labels for the review
// UI and whether a confirmed mapping must cover it.
type FieldSpec struct {
	Field    Field             `json:"field"`
	Labels   map[string]string `json:"labels"`
	Required bool              `json:"required"`
}

// CanonicalFields lists every mappable field in a stable order. unit_number
// and price are the only required fields; a confirmed mapping lacking
// either is rejected.
var CanonicalFields = []FieldSpec{
	{Field: FieldUnitNumber, Labels: map[string]string{"en": "Unit number", "ru": "Номер юнита"}, Required: true},
	{Field: FieldBedrooms, Labels: map[string]string{"en": "Bedrooms", "ru": "Спальни"}},
	{Field: FieldBathrooms, Labels: map[string]string{"en": "Bathrooms", "ru": "Санузлы"}},
	{Field: FieldAreaSqm, Labels: map[string]string{"en": "Area (sqm)", "ru": "Площадь (м2)"}},
	{Field: FieldFloor, Labels: map[string]string{"en": "Floor", "ru": "Этаж"}},
	{Field: FieldBuilding, Labels: map[string]string{"en": "Building", "ru": "Корпус"}},
	{Field: FieldPrice, Labels: map[string]string{"en": "Price", "ru": "Цена"}, Required: true},
	{Field: FieldPricePerSqm, Labels: map[string]string{"en": "Price per sqm", "ru": "Цена за м2"}},
	{Field: FieldCurrency, Labels: map[string]string{"en": "Currency", "ru": "Валюта"}},
	{Field: FieldLayoutType, Labels: map[string]string{"en": "Layout", "ru": "Планировка"}},
	{Field: FieldViewType, Labels: map[string]string{"en": "View", "ru": "Вид"}},
	{Field: FieldStatus, Labels: map[string]string{"en": "Status", "ru": "Статус"}},
}

// RequiredFields returns the fields a confirmed mapping must cover.
func RequiredFields() []Field {
	var required []Field
	for _, spec := range CanonicalFields {
		if spec.Required {
			required = append(required, spec.Field)
		}
	}
	return required
}

// IsCanonical reports whether f is a member of the canonical vocabulary
// (FieldUnknown is not).
func (f Field) IsCanonical() bool {
	for _, spec := range CanonicalFields {
		if spec.Field == f {
			return true
		}
	}
	return false
}

// IsRequired reports whether f must be covered by a confirmed mapping.
func (f Field) IsRequired() bool {
	for _, spec := range CanonicalFields {
		if spec.Field == f {
			return spec.Required
		}
	}
	return false
}
