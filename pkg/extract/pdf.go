package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

// cellSplit separates a text line into cells on tabs or runs of two or
// more spaces. Single spaces stay inside a cell so values like
// "Sea View" survive.
var cellSplit = regexp.MustCompile(`\t+| {2,}`)

// minTableCells is the cell count below which a line is treated as prose
// rather than a table row.
const minTableCells = 2

// extractPDF pulls embedded-text tables out of a PDF. Table recovery is
// whitespace-alignment based and inherently best-effort: pages without
// column-like structure contribute a warning, not an error. Scanned PDFs
// with no text layer fail with ErrCorruptInput.
func extractPDF(content []byte) ([][]string, []string, error) {
	doc, err := fitz.NewFromMemory(content)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open pdf: %v", apperrors.ErrCorruptInput, err)
	}
	defer func() { _ = doc.Close() }()

	var (
		rows     [][]string
		warnings []string
		anyText  bool
	)

	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: text extraction failed: %v", page+1, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			anyText = true
		}

		pageRows := alignLines(strings.Split(text, "\n"))
		if len(pageRows) == 0 {
			warnings = append(warnings, fmt.Sprintf("page %d: no tabular structure found", page+1))
			continue
		}
		rows = append(rows, pageRows...)
	}

	if !anyText {
		return nil, warnings, fmt.Errorf("%w: pdf has no extractable text", apperrors.ErrCorruptInput)
	}
	if len(rows) == 0 {
		return nil, warnings, apperrors.ErrEmptyInput
	}

	return rows, warnings, nil
}

// alignLines groups text lines into table rows: a line that splits into
// two or more whitespace-separated cells is a row, everything else is
// discarded as prose. Rows keep their cell order; ragged widths are
// tolerated because the grid reader pads short rows.
func alignLines(lines []string) [][]string {
	var rows [][]string
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		cells := cellSplit.Split(strings.TrimLeft(line, " \t"), -1)
		filtered := cells[:0]
		for _, c := range cells {
			if c = strings.TrimSpace(c); c != "" {
				filtered = append(filtered, c)
			}
		}

		if len(filtered) >= minTableCells {
			rows = append(rows, filtered)
		}
	}
	return rows
}
