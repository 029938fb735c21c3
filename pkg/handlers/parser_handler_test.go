package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/extract"
	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/services"
)

// mockParserService implements services.ParserService for handler tests.
type mockParserService struct {
	uploadResult  *services.UploadResult
	uploadErr     error
	session       *models.MappingSession
	sessionErr    error
	parseResult   *services.ParseResult
	parseErr      error
	abandonErr    error
	lastArtifact  extract.Artifact
	lastCurrency  string
	lastTrusted   bool
	lastToken     string
	lastProjectID uuid.UUID
}

func (m *mockParserService) Upload(ctx context.Context, projectID uuid.UUID, artifact extract.Artifact, currency string, trusted bool) (*services.UploadResult, error) {
	m.lastProjectID = projectID
	m.lastArtifact = artifact
	m.lastCurrency = currency
	m.lastTrusted = trusted
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return m.uploadResult, nil
}

func (m *mockParserService) GetSession(ctx context.Context, token string) (*models.MappingSession, error) {
	m.lastToken = token
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockParserService) ApplyCorrections(ctx context.Context, token string, corrections []models.Correction) (*models.MappingSession, error) {
	m.lastToken = token
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockParserService) Confirm(ctx context.Context, token string) (*models.MappingSession, error) {
	m.lastToken = token
	if m.sessionErr != nil {
		return nil, m.sessionErr
	}
	return m.session, nil
}

func (m *mockParserService) Parse(ctx context.Context, token string) (*services.ParseResult, error) {
	m.lastToken = token
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return m.parseResult, nil
}

func (m *mockParserService) Abandon(ctx context.Context, token string) error {
	m.lastToken = token
	return m.abandonErr
}

func (m *mockParserService) IngestPrepared(ctx context.Context, projectID uuid.UUID, sourceName string, units []models.ParsedUnit) (*models.PriceVersion, error) {
	return nil, nil
}

// mockLearnerService implements services.LearnerService for handler tests.
type mockLearnerService struct {
	stats    *models.LearningStats
	statsErr error
	removed  int64
}

func (m *mockLearnerService) RecordFeedback(ctx context.Context, detection *models.ColumnDetection) error {
	return nil
}

func (m *mockLearnerService) Stats(ctx context.Context) (*models.LearningStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

func (m *mockLearnerService) Reset(ctx context.Context) (int64, error) {
	return m.removed, nil
}

const testMaxUploadBytes = 1 << 20

func newParserHandler(parser *mockParserService, learner *mockLearnerService) *ParserHandler {
	if learner == nil {
		learner = &mockLearnerService{}
	}
	return NewParserHandler(parser, learner, testMaxUploadBytes, zap.NewNop())
}

func testSession(projectID uuid.UUID) *models.MappingSession {
	return &models.MappingSession{
		Token:     "abcdef0123456789abcdef0123456789",
		ProjectID: projectID,
		FileName:  "prices.csv",
		State:     models.SessionCreated,
		Grid: &models.Grid{
			Headers: []string{"Unit", "Price"},
			Rows:    [][]string{{"A101", "5250000"}, {"A102", "5600000"}},
		},
		Detections: []models.ColumnDetection{
			{Index: 0, Header: "Unit", HeaderNormalized: "unit", ProposedField: models.FieldUnitNumber, Confidence: 0.9},
			{Index: 1, Header: "Price", HeaderNormalized: "price", ProposedField: models.FieldPrice, Confidence: 0.9},
		},
	}
}

func multipartUpload(t *testing.T, fileName string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func decodeData[T any](t *testing.T, body *bytes.Buffer) T {
	t.Helper()
	var response ApiResponse
	require.NoError(t, json.NewDecoder(body).Decode(&response))
	assert.True(t, response.Success)

	dataBytes, err := json.Marshal(response.Data)
	require.NoError(t, err)

	var data T
	require.NoError(t, json.Unmarshal(dataBytes, &data))
	return data
}

func TestParserHandler_Upload(t *testing.T) {
	projectID := uuid.New()
	session := testSession(projectID)
	mock := &mockParserService{
		uploadResult: &services.UploadResult{Session: session, Warnings: []string{"skipped 1 blank leading row(s)"}},
	}
	handler := newParserHandler(mock, nil)

	body, contentType := multipartUpload(t, "prices.csv", []byte("Unit,Price\nA101,5250000\n"), map[string]string{
		"currency": "USD",
		"trusted":  "true",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, projectID, mock.lastProjectID)
	assert.Equal(t, "prices.csv", mock.lastArtifact.FileName)
	assert.Equal(t, models.SourceSpreadsheet, mock.lastArtifact.SourceType)
	assert.Equal(t, "USD", mock.lastCurrency)
	assert.True(t, mock.lastTrusted)

	upload := decodeData[UploadResponse](t, rec.Body)
	require.NotNil(t, upload.Session)
	assert.Equal(t, session.Token, upload.Session.Token)
	assert.Equal(t, []string{"Unit", "Price"}, upload.Session.Headers)
	assert.Equal(t, 2, upload.Session.RowCount)
	assert.Len(t, upload.Session.Detections, 2)
	assert.Equal(t, []string{"skipped 1 blank leading row(s)"}, upload.Warnings)
}

func TestParserHandler_Upload_PDFRoutedByExtension(t *testing.T) {
	projectID := uuid.New()
	mock := &mockParserService{uploadResult: &services.UploadResult{Session: testSession(projectID)}}
	handler := newParserHandler(mock, nil)

	body, contentType := multipartUpload(t, "pricelist.PDF", []byte("%PDF-1.4"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.SourcePDF, mock.lastArtifact.SourceType)
}

func TestParserHandler_Upload_MissingFile(t *testing.T) {
	projectID := uuid.New()
	handler := newParserHandler(&mockParserService{}, nil)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("currency", "THB"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "missing_file", errResp["error"])
}

func TestParserHandler_Upload_InvalidProjectID(t *testing.T) {
	handler := newParserHandler(&mockParserService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/not-a-uuid/parser/upload", nil)
	req.SetPathValue("pid", "not-a-uuid")
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "invalid_project_id", errResp["error"])
}

func TestParserHandler_Upload_UnknownProject(t *testing.T) {
	projectID := uuid.New()
	handler := newParserHandler(&mockParserService{uploadErr: apperrors.ErrProjectNotFound}, nil)

	body, contentType := multipartUpload(t, "prices.csv", []byte("Unit,Price\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "project_not_found", errResp["error"])
}

func TestParserHandler_Upload_TrustedReturnsVersion(t *testing.T) {
	projectID := uuid.New()
	session := testSession(projectID)
	session.State = models.SessionConsumed
	version := &models.PriceVersion{ID: uuid.New(), ProjectID: projectID, VersionNumber: 3}
	mock := &mockParserService{uploadResult: &services.UploadResult{Session: session, Version: version}}
	handler := newParserHandler(mock, nil)

	body, contentType := multipartUpload(t, "prices.xlsx", []byte{0x50, 0x4b}, map[string]string{"trusted": "true"})
	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.Upload(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	upload := decodeData[UploadResponse](t, rec.Body)
	require.NotNil(t, upload.Version)
	assert.Equal(t, 3, upload.Version.VersionNumber)
	assert.Equal(t, models.SessionConsumed, upload.Session.State)
}

func TestParserHandler_UploadURL(t *testing.T) {
	projectID := uuid.New()
	mock := &mockParserService{uploadResult: &services.UploadResult{Session: testSession(projectID)}}
	handler := newParserHandler(mock, nil)

	payload, err := json.Marshal(UploadURLRequest{
		URL:      "https://docs.google.com/spreadsheets/d/abc/export?format=csv",
		Currency: "THB",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/url", bytes.NewReader(payload))
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.UploadURL(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, models.SourceRemoteSheet, mock.lastArtifact.SourceType)
	assert.Equal(t, "https://docs.google.com/spreadsheets/d/abc/export?format=csv", mock.lastArtifact.URL)
}

func TestParserHandler_UploadURL_MissingURL(t *testing.T) {
	projectID := uuid.New()
	handler := newParserHandler(&mockParserService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/projects/"+projectID.String()+"/parser/url", bytes.NewReader([]byte(`{}`)))
	req.SetPathValue("pid", projectID.String())
	rec := httptest.NewRecorder()

	handler.UploadURL(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "missing_url", errResp["error"])
}

func TestParserHandler_GetSession_NotFound(t *testing.T) {
	handler := newParserHandler(&mockParserService{sessionErr: apperrors.ErrSessionNotFound}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/parser/sessions/deadbeef", nil)
	req.SetPathValue("token", "deadbeef")
	rec := httptest.NewRecorder()

	handler.GetSession(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var errResp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "session_not_found", errResp["error"])
}

func TestParserHandler_ApplyCorrections(t *testing.T) {
	projectID := uuid.New()
	mock := &mockParserService{session: testSession(projectID)}
	handler := newParserHandler(mock, nil)

	floor := models.FieldFloor
	payload, err := json.Marshal(CorrectionsRequest{Corrections: []models.Correction{
		{ColumnIndex: 1, Accepted: false, CorrectedField: &floor},
	}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/corrections", bytes.NewReader(payload))
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.ApplyCorrections(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", mock.lastToken)
}

func TestParserHandler_ApplyCorrections_Empty(t *testing.T) {
	handler := newParserHandler(&mockParserService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/corrections", bytes.NewReader([]byte(`{"corrections":[]}`)))
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.ApplyCorrections(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParserHandler_Confirm_IncompleteMapping(t *testing.T) {
	handler := newParserHandler(&mockParserService{
		sessionErr: &apperrors.IncompleteMappingError{Missing: []string{"unit_number", "price"}},
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/confirm", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var errResp struct {
		Error         string   `json:"error"`
		MissingFields []string `json:"missing_fields"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "incomplete_mapping", errResp.Error)
	assert.Equal(t, []string{"unit_number", "price"}, errResp.MissingFields)
}

func TestParserHandler_Confirm_DuplicateMapping(t *testing.T) {
	handler := newParserHandler(&mockParserService{
		sessionErr: fmt.Errorf("%w: unit_number", apperrors.ErrDuplicateMapping),
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/confirm", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Confirm(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var errResp struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errResp))
	assert.Equal(t, "duplicate_mapping", errResp.Error)
}

func TestParserHandler_Parse_Inline(t *testing.T) {
	projectID := uuid.New()
	version := &models.PriceVersion{ID: uuid.New(), ProjectID: projectID, Status: models.VersionCompleted}
	handler := newParserHandler(&mockParserService{parseResult: &services.ParseResult{Version: version}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/parse", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Parse(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	parse := decodeData[ParseResponse](t, rec.Body)
	assert.False(t, parse.Queued)
	assert.Equal(t, models.VersionCompleted, parse.Version.Status)
}

func TestParserHandler_Parse_Queued(t *testing.T) {
	version := &models.PriceVersion{ID: uuid.New(), Status: models.VersionPending}
	handler := newParserHandler(&mockParserService{parseResult: &services.ParseResult{Version: version, Queued: true}}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/parse", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Parse(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	parse := decodeData[ParseResponse](t, rec.Body)
	assert.True(t, parse.Queued)
}

func TestParserHandler_Parse_WrongState(t *testing.T) {
	handler := newParserHandler(&mockParserService{parseErr: apperrors.ErrSessionState}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/parser/sessions/tok/parse", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Parse(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestParserHandler_Abandon(t *testing.T) {
	mock := &mockParserService{}
	handler := newParserHandler(mock, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/parser/sessions/tok", nil)
	req.SetPathValue("token", "tok")
	rec := httptest.NewRecorder()

	handler.Abandon(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok", mock.lastToken)
}

func TestParserHandler_Stats(t *testing.T) {
	learner := &mockLearnerService{stats: &models.LearningStats{
		TotalFeedbacks:  10,
		AcceptedCount:   8,
		CorrectedCount:  2,
		PatternsLearned: 4,
		AccuracyRate:    0.8,
	}}
	handler := newParserHandler(&mockParserService{}, learner)

	req := httptest.NewRequest(http.MethodGet, "/api/parser/stats", nil)
	rec := httptest.NewRecorder()

	handler.Stats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeData[models.LearningStats](t, rec.Body)
	assert.Equal(t, 10, stats.TotalFeedbacks)
	assert.InDelta(t, 0.8, stats.AccuracyRate, 1e-9)
}

func TestParserHandler_Reset(t *testing.T) {
	handler := newParserHandler(&mockParserService{}, &mockLearnerService{removed: 7})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/parser/reset", nil)
	rec := httptest.NewRecorder()

	handler.Reset(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	reset := decodeData[ResetResponse](t, rec.Body)
	assert.Equal(t, int64(7), reset.Removed)
}
