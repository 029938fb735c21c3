package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/services"
)

// VersionListResponse wraps a project's ingestion runs, newest first.
type VersionListResponse struct {
	Versions []*models.PriceVersion `json:"versions"`
	Count    int                    `json:"count"`
}

// HistoryListResponse wraps a unit's price history, newest first.
type HistoryListResponse struct {
	History []*models.PriceHistory `json:"history"`
	Count   int                    `json:"count"`
}

// PricesHandler handles price version and history endpoints.
type PricesHandler struct {
	prices services.PriceService
	logger *zap.Logger
}

// NewPricesHandler creates a new prices handler.
func NewPricesHandler(prices services.PriceService, logger *zap.Logger) *PricesHandler {
	return &PricesHandler{
		prices: prices,
		logger: logger,
	}
}

// RegisterRoutes registers price endpoints on the mux.
func (h *PricesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/projects/{pid}/prices/versions", h.ListVersions)
	mux.HandleFunc("GET /api/prices/versions/{vid}", h.GetVersion)
	mux.HandleFunc("POST /api/prices/versions/{vid}/approve", h.Approve)
	mux.HandleFunc("POST /api/prices/versions/{vid}/reject", h.Reject)
	mux.HandleFunc("GET /api/units/{uid}/price-history", h.UnitHistory)
}

// ListVersions handles GET /api/projects/{pid}/prices/versions
func (h *PricesHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	versions, err := h.prices.ListVersions(r.Context(), projectID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, VersionListResponse{Versions: versions, Count: len(versions)})
}

// GetVersion handles GET /api/prices/versions/{vid}
func (h *PricesHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	versionID, ok := ParseVersionID(w, r, h.logger)
	if !ok {
		return
	}

	version, err := h.prices.GetVersion(r.Context(), versionID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, version)
}

// Approve handles POST /api/prices/versions/{vid}/approve
func (h *PricesHandler) Approve(w http.ResponseWriter, r *http.Request) {
	versionID, ok := ParseVersionID(w, r, h.logger)
	if !ok {
		return
	}

	version, err := h.prices.Approve(r.Context(), versionID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, version)
}

// Reject handles POST /api/prices/versions/{vid}/reject
func (h *PricesHandler) Reject(w http.ResponseWriter, r *http.Request) {
	versionID, ok := ParseVersionID(w, r, h.logger)
	if !ok {
		return
	}

	version, err := h.prices.Reject(r.Context(), versionID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, version)
}

// UnitHistory handles GET /api/units/{uid}/price-history
func (h *PricesHandler) UnitHistory(w http.ResponseWriter, r *http.Request) {
	unitID, ok := ParseUnitID(w, r, h.logger)
	if !ok {
		return
	}

	history, err := h.prices.UnitHistory(r.Context(), unitID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, HistoryListResponse{History: history, Count: len(history)})
}

func (h *PricesHandler) writeData(w http.ResponseWriter, data any) {
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
