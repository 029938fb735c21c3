// Package extract converts raw ingestion artifacts (workbooks, delimited
// text, PDFs with embedded tables, remote spreadsheet URLs) into a
// row/column Grid. Extraction is transient: nothing here persists.
package extract

import (
	"context"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/classify"
	"github.com/propbase/propbase-engine/pkg/models"
)

// headerScanRows bounds how deep header-row detection looks into an
// artifact. Real price lists put title banners above the table, rarely
// more than a handful of rows.
const headerScanRows = 10

// Artifact is one raw input to the extractor.
type Artifact struct {
	FileName   string
	SourceType models.SourceType
	Content    []byte

	// SheetName selects a workbook sheet; empty means auto-select.
	SheetName string

	// URL is set for remote_sheet artifacts instead of Content.
	URL string
}

// Service dispatches artifacts to the format-specific extractors.
type Service struct {
	remote *remoteSheetFetcher
	logger *zap.Logger
}

// NewService creates an extraction service.
func NewService(logger *zap.Logger) *Service {
	return &Service{
		remote: newRemoteSheetFetcher(),
		logger: logger.Named("extract"),
	}
}

// Extract converts an artifact into a Grid plus best-effort warnings.
// Failure modes follow the ingestion error taxonomy: ErrUnsupportedFormat
// for types we cannot handle, ErrCorruptInput when the container cannot
// be opened, ErrEmptyInput when it parses but holds no data rows, and
// ErrSourceUnreachable for inaccessible remote sheets.
func (s *Service) Extract(ctx context.Context, artifact Artifact) (*models.Grid, []string, error) {
	var (
		rows     [][]string
		warnings []string
		err      error
	)

	switch artifact.SourceType {
	case models.SourceSpreadsheet:
		rows, warnings, err = s.extractSpreadsheet(artifact)
	case models.SourcePDF:
		rows, warnings, err = extractPDF(artifact.Content)
	case models.SourceRemoteSheet:
		rows, warnings, err = s.remote.fetch(ctx, artifact.URL, artifact.SheetName)
	default:
		return nil, nil, fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, artifact.SourceType)
	}
	if err != nil {
		return nil, warnings, err
	}

	grid, gridWarnings, err := buildGrid(rows)
	warnings = append(warnings, gridWarnings...)
	if err != nil {
		return nil, warnings, err
	}

	s.logger.Info("Extracted artifact",
		zap.String("file", artifact.FileName),
		zap.String("source_type", string(artifact.SourceType)),
		zap.Int("rows", grid.RowCount()),
		zap.Int("columns", grid.ColumnCount()))

	return grid, warnings, nil
}

// extractSpreadsheet routes workbook formats by extension; bare delimited
// text goes through the CSV path. Legacy binary .xls is not a format
// excelize can open, so it is rejected up front.
func (s *Service) extractSpreadsheet(artifact Artifact) ([][]string, []string, error) {
	switch strings.ToLower(path.Ext(artifact.FileName)) {
	case ".xlsx", ".xlsm":
		return extractWorkbook(artifact.Content, artifact.SheetName)
	case ".csv", ".tsv", ".txt", "":
		return extractDelimited(artifact.Content)
	default:
		return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, path.Ext(artifact.FileName))
	}
}

// buildGrid turns raw rows into a Grid: leading blank rows are skipped
// with a warning, the header row is the seed-scored best candidate among
// the first rows, and fully blank data rows are dropped.
func buildGrid(rows [][]string) (*models.Grid, []string, error) {
	var warnings []string

	first := 0
	for first < len(rows) && blankRow(rows[first]) {
		first++
	}
	if first > 0 {
		warnings = append(warnings, fmt.Sprintf("skipped %d blank leading row(s)", first))
	}
	rows = rows[first:]
	if len(rows) == 0 {
		return nil, warnings, apperrors.ErrEmptyInput
	}

	headerRow := findHeaderRow(rows)
	if headerRow > 0 {
		warnings = append(warnings, fmt.Sprintf("using row %d as header row", first+headerRow+1))
	}

	headers := make([]string, len(rows[headerRow]))
	for i, cell := range rows[headerRow] {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			cell = fmt.Sprintf("Column_%d", i)
		}
		headers[i] = cell
	}

	var data [][]string
	for _, row := range rows[headerRow+1:] {
		if blankRow(row) {
			continue
		}
		trimmed := make([]string, len(row))
		for i, cell := range row {
			trimmed[i] = strings.TrimSpace(cell)
		}
		data = append(data, trimmed)
	}
	if len(data) == 0 {
		return nil, warnings, apperrors.ErrEmptyInput
	}

	return &models.Grid{Headers: headers, Rows: data, HeaderRow: first + headerRow}, warnings, nil
}

// findHeaderRow picks the row whose cells look most like known column
// headers, scored by the classifier's seed lexicon. Falls back to the
// first row when nothing scores.
func findHeaderRow(rows [][]string) int {
	best, bestScore := 0, 0.0

	limit := headerScanRows
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		score := 0.0
		for _, cell := range rows[i] {
			if strings.TrimSpace(cell) == "" {
				continue
			}
			if _, s := classify.SeedScore(cell); s > 0 {
				score += s
			}
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
