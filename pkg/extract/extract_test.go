package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

func TestBuildGrid_FirstRowIsHeader(t *testing.T) {
	rows := [][]string{
		{"Unit", "Price", "Area"},
		{"A101", "5250000", "45.5"},
		{"A102", "6100000", "52.0"},
	}

	grid, warnings, err := buildGrid(rows)
	require.NoError(t, err)

	assert.Empty(t, warnings)
	assert.Equal(t, []string{"Unit", "Price", "Area"}, grid.Headers)
	assert.Equal(t, 2, grid.RowCount())
	assert.Equal(t, "A102", grid.Cell(1, 0))
}

func TestBuildGrid_SkipsBlankLeadingRowsWithWarning(t *testing.T) {
	rows := [][]string{
		{"", "", ""},
		{"", ""},
		{"Unit", "Price"},
		{"A101", "100"},
	}

	grid, warnings, err := buildGrid(rows)
	require.NoError(t, err)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "blank leading")
	assert.Equal(t, []string{"Unit", "Price"}, grid.Headers)
	assert.Equal(t, 1, grid.RowCount())
}

func TestBuildGrid_HeaderBelowTitleBanner(t *testing.T) {
	// A title row above the real header must not be mistaken for it.
	rows := [][]string{
		{"Ocean Breeze Residences — Phase 2", "", ""},
		{"Unit", "Price", "Status"},
		{"B201", "3000000", "available"},
	}

	grid, _, err := buildGrid(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"Unit", "Price", "Status"}, grid.Headers)
	assert.Equal(t, 1, grid.RowCount())
}

func TestBuildGrid_EmptyInput(t *testing.T) {
	_, _, err := buildGrid(nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)

	_, _, err = buildGrid([][]string{{"", ""}, {"  "}})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
}

func TestBuildGrid_HeaderOnlyIsEmpty(t *testing.T) {
	_, _, err := buildGrid([][]string{{"Unit", "Price"}})
	assert.ErrorIs(t, err, apperrors.ErrEmptyInput)
}

func TestBuildGrid_BlankHeaderCellsGetPlaceholders(t *testing.T) {
	rows := [][]string{
		{"Unit", "", "Price"},
		{"A101", "x", "100"},
	}

	grid, _, err := buildGrid(rows)
	require.NoError(t, err)

	assert.Equal(t, []string{"Unit", "Column_1", "Price"}, grid.Headers)
}

func TestExtractDelimited_CommaSeparated(t *testing.T) {
	content := []byte("Unit,Price,Area\nA101,5250000,45.5\n")

	rows, warnings, err := extractDelimited(content)
	require.NoError(t, err)

	assert.Empty(t, warnings)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A101", "5250000", "45.5"}, rows[1])
}

func TestExtractDelimited_SniffsSemicolon(t *testing.T) {
	content := []byte("Unit;Price;Area\nA101;5,250,000;45.5\n")

	rows, _, err := extractDelimited(content)
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, []string{"A101", "5,250,000", "45.5"}, rows[1])
}

func TestExtractDelimited_CP1251Fallback(t *testing.T) {
	// "Цена" encoded as windows-1251 is not valid UTF-8.
	cp1251 := []byte{0xD6, 0xE5, 0xED, 0xE0}
	content := append(append([]byte("Unit,"), cp1251...), []byte("\nA101,100\n")...)

	rows, warnings, err := extractDelimited(content)
	require.NoError(t, err)

	require.NotEmpty(t, warnings)
	assert.Contains(t, warnings[0], "windows-1251")
	assert.Equal(t, "Цена", rows[0][1])
}

func TestExtractSpreadsheet_LegacyXLSRejected(t *testing.T) {
	s := NewService(zap.NewNop())

	// BIFF magic bytes from an old Excel export. excelize cannot open
	// the legacy container, so the extension is rejected outright.
	_, _, err := s.extractSpreadsheet(Artifact{
		FileName: "prices.xls",
		Content:  []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1},
	})
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestExtractDelimited_StripsBOM(t *testing.T) {
	content := []byte("\xEF\xBB\xBFUnit,Price\nA101,100\n")

	rows, _, err := extractDelimited(content)
	require.NoError(t, err)
	assert.Equal(t, "Unit", rows[0][0])
}

func TestAlignLines_GroupsWhitespaceColumns(t *testing.T) {
	lines := []string{
		"Ocean Breeze Residences",
		"Unit      Price        Area",
		"A101      5,250,000    45.5",
		"A102\t6,100,000\t52.0",
		"",
		"Contact sales for details",
	}

	rows := alignLines(lines)

	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Unit", "Price", "Area"}, rows[0])
	assert.Equal(t, []string{"A101", "5,250,000", "45.5"}, rows[1])
	assert.Equal(t, []string{"A102", "6,100,000", "52.0"}, rows[2])
}

func TestAlignLines_KeepsSingleSpacesInsideCells(t *testing.T) {
	rows := alignLines([]string{"B201   Sea View   3,000,000"})

	require.Len(t, rows, 1)
	assert.Equal(t, []string{"B201", "Sea View", "3,000,000"}, rows[0])
}

func TestExportURLFor_GoogleSheetRewrite(t *testing.T) {
	got, err := exportURLFor("https://docs.google.com/spreadsheets/d/abc123XYZ/edit?gid=42#gid=42", "")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc123XYZ/export?format=csv&gid=42", got)
}

func TestExportURLFor_NamedSheetOverridesGid(t *testing.T) {
	got, err := exportURLFor("https://docs.google.com/spreadsheets/d/abc/edit?gid=7", "Prices")
	require.NoError(t, err)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv&sheet=Prices", got)
}

func TestExportURLFor_PassthroughForPlainURL(t *testing.T) {
	got, err := exportURLFor("https://example.com/prices.csv", "")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/prices.csv", got)
}

func TestExportURLFor_InvalidURL(t *testing.T) {
	_, err := exportURLFor("not a url", "")
	assert.True(t, errors.Is(err, apperrors.ErrSourceUnreachable))
}
