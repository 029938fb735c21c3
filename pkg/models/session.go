package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle state of a mapping session.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionConfirmed SessionState = "confirmed"
	SessionConsumed  SessionState = "consumed"
	SessionExpired   SessionState = "expired"
	SessionAbandoned SessionState = "abandoned"
)

// SourceType declares where an ingestion artifact came from.
type SourceType string

const (
	SourceSpreadsheet SourceType = "spreadsheet"
	SourcePDF         SourceType = "pdf"
	SourceRemoteSheet SourceType = "remote_sheet"
)

// ColumnDetection is the classifier's proposal for one physical column.
type ColumnDetection struct {
	Index            int     `json:"index"`
	Header           string  `json:"header"`
	HeaderNormalized string  `json:"header_normalized"`
	ProposedField    Field   `json:"proposed_field"`
	Confidence       float64 `json:"confidence"`

	// Review outcome, set by ApplyCorrections. Accepted is nil until the
	// reviewer has addressed this column.
	Accepted       *bool  `json:"accepted,omitempty"`
	CorrectedField *Field `json:"corrected_field,omitempty"`
}

// FinalField returns the field this column maps to after review: the
// correction when the proposal was rejected, otherwise the proposal.
func (d *ColumnDetection) FinalField() Field {
	if d.Accepted != nil && !*d.Accepted {
		if d.CorrectedField != nil {
			return *d.CorrectedField
		}
		return FieldUnknown
	}
	return d.ProposedField
}

// Correction is one reviewer decision for a column.
type Correction struct {
	ColumnIndex    int    `json:"column_index"`
	Accepted       bool   `json:"accepted"`
	CorrectedField *Field `json:"corrected_field,omitempty"`
}

// MappingSession holds one in-progress ingestion attempt awaiting human
// confirmation, addressed by an opaque token. The session owns its Grid.
type MappingSession struct {
	Token      string     `json:"token"`
	ProjectID  uuid.UUID  `json:"project_id"`
	FileName   string     `json:"file_name"`
	SourceType SourceType `json:"source_type"`

	Grid       *Grid             `json:"grid"`
	Detections []ColumnDetection `json:"detections"`

	// Currency supplied by the caller at upload time, used when no
	// currency column is mapped.
	DefaultCurrency string `json:"default_currency"`

	State     SessionState `json:"state"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Mapping returns field → column index for every reviewed or proposed
// column whose final field is canonical. When two columns resolve to the
// same field the lower column index wins.
func (s *MappingSession) Mapping() map[Field]int {
	mapping := make(map[Field]int)
	for _, d := range s.Detections {
		f := d.FinalField()
		if !f.IsCanonical() {
			continue
		}
		if _, taken := mapping[f]; !taken {
			mapping[f] = d.Index
		}
	}
	return mapping
}

// MissingRequired returns the required fields not covered by Mapping().
func (s *MappingSession) MissingRequired() []Field {
	mapping := s.Mapping()
	var missing []Field
	for _, f := range RequiredFields() {
		if _, ok := mapping[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}

// DuplicateRequired returns the required fields that more than one
// column resolves to. Mapping() would silently pick the leftmost
// column; confirmation rejects the session instead so the reviewer
// resolves the clash explicitly.
func (s *MappingSession) DuplicateRequired() []Field {
	counts := make(map[Field]int)
	for _, d := range s.Detections {
		if f := d.FinalField(); f.IsCanonical() {
			counts[f]++
		}
	}
	var dupes []Field
	for _, f := range RequiredFields() {
		if counts[f] > 1 {
			dupes = append(dupes, f)
		}
	}
	return dupes
}
