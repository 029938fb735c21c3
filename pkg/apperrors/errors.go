package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrCorruptInput      = errors.New("input could not be parsed")
	ErrEmptyInput        = errors.New("input contains no data rows")
	ErrSourceUnreachable = errors.New("remote source unreachable")
	ErrSessionNotFound   = errors.New("mapping session not found or expired")
	ErrSessionState      = errors.New("invalid mapping session state")
	ErrDuplicateMapping  = errors.New("multiple columns mapped to the same required field")
	ErrProjectNotFound   = errors.New("project not found")
)

// IncompleteMappingError is returned when a session is confirmed without
// every required canonical field mapped to a column. It names the missing
// fields so the review UI can highlight them.
type IncompleteMappingError struct {
	Missing []string
}

func (e *IncompleteMappingError) Error() string {
	return fmt.Sprintf("mapping incomplete: missing required field(s) %s", strings.Join(e.Missing, ", "))
}

// AsIncompleteMapping reports whether err is an IncompleteMappingError.
func AsIncompleteMapping(err error) (*IncompleteMappingError, bool) {
	var ime *IncompleteMappingError
	if errors.As(err, &ime) {
		return ime, true
	}
	return nil, false
}
