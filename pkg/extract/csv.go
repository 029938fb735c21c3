package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

// fallbackEncodings are tried in order when the payload is not valid
// UTF-8. cp1251 first because Russian-language price lists exported from
// older tooling are the common offender.
var fallbackEncodings = []struct {
	name string
	enc  encoding.Encoding
}{
	{"windows-1251", charmap.Windows1251},
	{"latin-1", charmap.ISO8859_1},
}

// extractDelimited parses CSV/TSV content into raw rows, sniffing the
// delimiter from the first line and falling back through legacy encodings
// when the bytes are not UTF-8.
func extractDelimited(content []byte) ([][]string, []string, error) {
	var warnings []string

	text := string(bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF}))
	if !utf8.ValidString(text) {
		decoded, name, err := decodeLegacy(content)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: undecodable text encoding", apperrors.ErrCorruptInput)
		}
		text = decoded
		warnings = append(warnings, fmt.Sprintf("decoded input as %s", name))
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, warnings, fmt.Errorf("%w: malformed delimited text: %v", apperrors.ErrCorruptInput, err)
		}
		rows = append(rows, record)
	}

	return rows, warnings, nil
}

func decodeLegacy(content []byte) (string, string, error) {
	for _, fb := range fallbackEncodings {
		decoded, _, err := transform.Bytes(fb.enc.NewDecoder(), content)
		if err == nil && utf8.Valid(decoded) {
			return string(decoded), fb.name, nil
		}
	}
	return "", "", fmt.Errorf("no encoding matched")
}

// sniffDelimiter picks the delimiter with the most occurrences in the
// first line; comma wins ties.
func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}

	best, bestCount := ',', strings.Count(line, ",")
	for _, cand := range []rune{';', '\t'} {
		if n := strings.Count(line, string(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	return best
}
