package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/propbase/propbase-engine/pkg/apperrors"
)

// maxRemoteSheetBytes caps how much of a remote export is read.
const maxRemoteSheetBytes = 20 << 20

var sheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9_-]+)`)

// remoteSheetFetcher downloads a read-accessible CSV export of a remote
// spreadsheet. Only the fetch is remote; parsing reuses the delimited
// extractor.
type remoteSheetFetcher struct {
	client *http.Client
}

func newRemoteSheetFetcher() *remoteSheetFetcher {
	return &remoteSheetFetcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Private Google sheets redirect to a login page instead
				// of returning 403; treat that as unreachable.
				if strings.Contains(req.URL.Host, "accounts.google.com") {
					return fmt.Errorf("%w: sheet requires sign-in", apperrors.ErrSourceUnreachable)
				}
				return nil
			},
		},
	}
}

func (f *remoteSheetFetcher) fetch(ctx context.Context, rawURL, sheetName string) ([][]string, []string, error) {
	exportURL, err := exportURLFor(rawURL, sheetName)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, exportURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnreachable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("%w: export returned status %d", apperrors.ErrSourceUnreachable, resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSheetBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrSourceUnreachable, err)
	}

	return extractDelimited(content)
}

// exportURLFor derives the CSV export endpoint for a shared spreadsheet
// URL. Google-Sheets-style links are rewritten to the export form; any
// other URL is fetched as-is and expected to serve delimited text.
func exportURLFor(rawURL, sheetName string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: invalid url %q", apperrors.ErrSourceUnreachable, rawURL)
	}

	m := sheetIDPattern.FindStringSubmatch(parsed.Path)
	if m == nil {
		return rawURL, nil
	}

	export := url.URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   fmt.Sprintf("/spreadsheets/d/%s/export", m[1]),
	}
	q := url.Values{"format": {"csv"}}
	if sheetName != "" {
		q.Set("sheet", sheetName)
	} else if gid := parsed.Query().Get("gid"); gid != "" {
		q.Set("gid", gid)
	}
	export.RawQuery = q.Encode()

	return export.String(), nil
}
