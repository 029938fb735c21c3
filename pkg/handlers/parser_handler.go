package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/extract"
	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/services"
)

// Request/Response types

// UploadURLRequest points the parser at a published remote sheet.
type UploadURLRequest struct {
	URL      string `json:"url"`
	Sheet    string `json:"sheet,omitempty"`
	Currency string `json:"currency,omitempty"`
	Trusted  bool   `json:"trusted,omitempty"`
}

// CorrectionsRequest carries reviewer decisions for session columns.
type CorrectionsRequest struct {
	Corrections []models.Correction `json:"corrections"`
}

// SessionResponse is the review view of a mapping session: the column
// proposals plus a short data preview, without the full grid.
type SessionResponse struct {
	Token           string                   `json:"token"`
	ProjectID       string                   `json:"project_id"`
	State           models.SessionState      `json:"state"`
	FileName        string                   `json:"file_name"`
	SourceType      models.SourceType        `json:"source_type"`
	DefaultCurrency string                   `json:"default_currency"`
	Headers         []string                 `json:"headers"`
	RowCount        int                      `json:"row_count"`
	Preview         [][]string               `json:"preview"`
	Detections      []models.ColumnDetection `json:"detections"`
	MissingRequired []models.Field           `json:"missing_required"`
}

// UploadResponse pairs the opened session with extraction warnings. For
// trusted uploads that skipped review, Version carries the started run.
type UploadResponse struct {
	Session  *SessionResponse     `json:"session,omitempty"`
	Warnings []string             `json:"warnings,omitempty"`
	Version  *models.PriceVersion `json:"version,omitempty"`
}

// ParseResponse reports the ingestion run opened by a parse call.
type ParseResponse struct {
	Version *models.PriceVersion `json:"version"`
	Queued  bool                 `json:"queued"`
}

// ResetResponse reports how many learned associations were removed.
type ResetResponse struct {
	Removed int64 `json:"removed"`
}

const sessionPreviewRows = 10

func newSessionResponse(s *models.MappingSession) *SessionResponse {
	resp := &SessionResponse{
		Token:           s.Token,
		ProjectID:       s.ProjectID.String(),
		State:           s.State,
		FileName:        s.FileName,
		SourceType:      s.SourceType,
		DefaultCurrency: s.DefaultCurrency,
		Detections:      s.Detections,
		MissingRequired: s.MissingRequired(),
	}
	if s.Grid != nil {
		resp.Headers = s.Grid.Headers
		resp.RowCount = s.Grid.RowCount()
		resp.Preview = s.Grid.Preview(sessionPreviewRows)
	}
	return resp
}

// ParserHandler handles price-list upload and mapping review endpoints.
type ParserHandler struct {
	parser         services.ParserService
	learner        services.LearnerService
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewParserHandler creates a new parser handler.
func NewParserHandler(parser services.ParserService, learner services.LearnerService, maxUploadBytes int64, logger *zap.Logger) *ParserHandler {
	return &ParserHandler{
		parser:         parser,
		learner:        learner,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// RegisterRoutes registers parser endpoints on the mux.
func (h *ParserHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects/{pid}/parser/upload", h.Upload)
	mux.HandleFunc("POST /api/projects/{pid}/parser/url", h.UploadURL)

	mux.HandleFunc("GET /api/parser/sessions/{token}", h.GetSession)
	mux.HandleFunc("POST /api/parser/sessions/{token}/corrections", h.ApplyCorrections)
	mux.HandleFunc("POST /api/parser/sessions/{token}/confirm", h.Confirm)
	mux.HandleFunc("POST /api/parser/sessions/{token}/parse", h.Parse)
	mux.HandleFunc("DELETE /api/parser/sessions/{token}", h.Abandon)

	mux.HandleFunc("GET /api/parser/stats", h.Stats)
	mux.HandleFunc("POST /api/admin/parser/reset", h.Reset)
}

// Upload accepts a multipart price-list file and opens a mapping session.
// POST /api/projects/{pid}/parser/upload
func (h *ParserHandler) Upload(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "Uploaded file exceeds the size limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid_upload", "Expected a multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_file", "Form field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Failed to read uploaded file", zap.Error(err))
		h.writeError(w, http.StatusBadRequest, "invalid_upload", "Failed to read uploaded file")
		return
	}

	artifact := extract.Artifact{
		FileName:   header.Filename,
		SourceType: sourceTypeForFile(header.Filename),
		Content:    content,
		SheetName:  r.FormValue("sheet"),
	}
	trusted := r.FormValue("trusted") == "true"

	result, err := h.parser.Upload(r.Context(), projectID, artifact, r.FormValue("currency"), trusted)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeUploadResult(w, result)
}

// UploadURL ingests a published remote sheet by URL.
// POST /api/projects/{pid}/parser/url
func (h *ParserHandler) UploadURL(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_url", "Field 'url' is required")
		return
	}

	artifact := extract.Artifact{
		FileName:   req.URL,
		SourceType: models.SourceRemoteSheet,
		URL:        req.URL,
		SheetName:  req.Sheet,
	}

	result, err := h.parser.Upload(r.Context(), projectID, artifact, req.Currency, req.Trusted)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeUploadResult(w, result)
}

// GetSession returns a live mapping session for review.
// GET /api/parser/sessions/{token}
func (h *ParserHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}

	session, err := h.parser.GetSession(r.Context(), token)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, newSessionResponse(session))
}

// ApplyCorrections records reviewer decisions on session columns.
// POST /api/parser/sessions/{token}/corrections
func (h *ParserHandler) ApplyCorrections(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}

	var req CorrectionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if len(req.Corrections) == 0 {
		h.writeError(w, http.StatusBadRequest, "missing_corrections", "Field 'corrections' must not be empty")
		return
	}

	session, err := h.parser.ApplyCorrections(r.Context(), token, req.Corrections)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, newSessionResponse(session))
}

// Confirm locks the session's mapping and feeds review outcomes to the
// learner.
// POST /api/parser/sessions/{token}/confirm
func (h *ParserHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}

	session, err := h.parser.Confirm(r.Context(), token)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, newSessionResponse(session))
}

// Parse runs normalization and reconciliation for a confirmed session.
// POST /api/parser/sessions/{token}/parse
func (h *ParserHandler) Parse(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}

	result, err := h.parser.Parse(r.Context(), token)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Queued {
		status = http.StatusAccepted
	}
	h.writeData(w, status, ParseResponse{Version: result.Version, Queued: result.Queued})
}

// Abandon discards an unconsumed session.
// DELETE /api/parser/sessions/{token}
func (h *ParserHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	token, ok := h.sessionToken(w, r)
	if !ok {
		return
	}

	if err := h.parser.Abandon(r.Context(), token); err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Session abandoned",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Stats returns aggregate learner statistics.
// GET /api/parser/stats
func (h *ParserHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.learner.Stats(r.Context())
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, stats)
}

// Reset wipes every learned association, falling back to the seed
// lexicon alone.
// POST /api/admin/parser/reset
func (h *ParserHandler) Reset(w http.ResponseWriter, r *http.Request) {
	removed, err := h.learner.Reset(r.Context())
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, ResetResponse{Removed: removed})
}

func (h *ParserHandler) writeUploadResult(w http.ResponseWriter, result *services.UploadResult) {
	resp := UploadResponse{Warnings: result.Warnings, Version: result.Version}
	if result.Session != nil {
		resp.Session = newSessionResponse(result.Session)
	}

	status := http.StatusCreated
	if result.Version != nil {
		// Trusted upload that skipped review and already started a run.
		status = http.StatusOK
	}
	h.writeData(w, status, resp)
}

func (h *ParserHandler) sessionToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	token := r.PathValue("token")
	if token == "" {
		h.writeError(w, http.StatusBadRequest, "missing_token", "Session token is required")
		return "", false
	}
	return token, true
}

func (h *ParserHandler) writeData(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ParserHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

// sourceTypeForFile routes an uploaded file to the PDF or spreadsheet
// extractor by extension.
func sourceTypeForFile(name string) models.SourceType {
	if strings.EqualFold(path.Ext(name), ".pdf") {
		return models.SourcePDF
	}
	return models.SourceSpreadsheet
}
