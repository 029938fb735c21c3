package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

// priceSheetKeywords identify the sheet most likely to hold the price
// table when no sheet name is given. Covers the locales PropBase sees in
// developer workbooks.
var priceSheetKeywords = []string{"price", "unit", "прайс", "цен", "продаж"}

// extractWorkbook opens an xlsx/xlsm workbook from memory and returns the
// raw rows of the selected sheet.
func extractWorkbook(content []byte, sheetName string) ([][]string, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open workbook: %v", apperrors.ErrCorruptInput, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, fmt.Errorf("%w: workbook has no sheets", apperrors.ErrCorruptInput)
	}

	var warnings []string
	selected, found := selectSheet(sheets, sheetName)
	if sheetName != "" && !found {
		warnings = append(warnings, fmt.Sprintf("sheet %q not found, using %q", sheetName, selected))
	}

	rows, err := f.GetRows(selected, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, warnings, fmt.Errorf("%w: read sheet %q: %v", apperrors.ErrCorruptInput, selected, err)
	}

	return rows, warnings, nil
}

// selectSheet resolves the sheet to read: the requested name when it
// exists, else the first sheet whose name matches a price keyword, else
// the first sheet. Returns whether the requested name was found.
func selectSheet(sheets []string, requested string) (string, bool) {
	if requested != "" {
		for _, name := range sheets {
			if strings.EqualFold(name, requested) {
				return name, true
			}
		}
	}

	for _, name := range sheets {
		lower := strings.ToLower(name)
		for _, kw := range priceSheetKeywords {
			if strings.Contains(lower, kw) {
				return name, requested == ""
			}
		}
	}

	return sheets[0], requested == ""
}
