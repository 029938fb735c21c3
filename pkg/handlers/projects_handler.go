package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/services"
)

// Request/Response types

// CreateProjectRequest creates a new project.
type CreateProjectRequest struct {
	Name            string `json:"name"`
	DefaultCurrency string `json:"default_currency,omitempty"`
}

// UpdateProjectRequest updates the mutable project fields. Nil fields are
// left unchanged.
type UpdateProjectRequest struct {
	Name            *string `json:"name,omitempty"`
	DefaultCurrency *string `json:"default_currency,omitempty"`
	RequiresReview  *bool   `json:"requires_review,omitempty"`
}

// ProjectListResponse wraps the project list.
type ProjectListResponse struct {
	Projects []*models.Project `json:"projects"`
	Count    int               `json:"count"`
}

// UnitListResponse wraps a project's inventory listing.
type UnitListResponse struct {
	Units []*models.Unit `json:"units"`
	Count int            `json:"count"`
}

// ProjectsHandler handles project CRUD and inventory listing.
type ProjectsHandler struct {
	projects services.ProjectService
	logger   *zap.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(projects services.ProjectService, logger *zap.Logger) *ProjectsHandler {
	return &ProjectsHandler{
		projects: projects,
		logger:   logger,
	}
}

// RegisterRoutes registers project endpoints on the mux.
func (h *ProjectsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/projects", h.Create)
	mux.HandleFunc("GET /api/projects", h.List)
	mux.HandleFunc("GET /api/projects/{pid}", h.Get)
	mux.HandleFunc("PUT /api/projects/{pid}", h.Update)
	mux.HandleFunc("DELETE /api/projects/{pid}", h.Delete)
	mux.HandleFunc("GET /api/projects/{pid}/units", h.ListUnits)
}

// Create handles POST /api/projects
func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		h.writeError(w, http.StatusBadRequest, "missing_name", "Field 'name' is required")
		return
	}

	project, err := h.projects.Create(r.Context(), req.Name, req.DefaultCurrency)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusCreated, project)
}

// List handles GET /api/projects
func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.List(r.Context())
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, ProjectListResponse{Projects: projects, Count: len(projects)})
}

// Get handles GET /api/projects/{pid}
func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	project, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, project)
}

// Update handles PUT /api/projects/{pid}
func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	project, err := h.projects.Get(r.Context(), projectID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if req.Name != nil {
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.DefaultCurrency != nil {
		project.DefaultCurrency = strings.ToUpper(strings.TrimSpace(*req.DefaultCurrency))
	}
	if req.RequiresReview != nil {
		project.RequiresReview = *req.RequiresReview
	}

	if err := h.projects.Update(r.Context(), project); err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, project)
}

// Delete handles DELETE /api/projects/{pid}
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	if err := h.projects.Delete(r.Context(), projectID); err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{
		Success: true,
		Message: "Project deleted",
	}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// ListUnits handles GET /api/projects/{pid}/units
func (h *ProjectsHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	projectID, ok := ParseProjectID(w, r, h.logger)
	if !ok {
		return
	}

	units, err := h.projects.ListUnits(r.Context(), projectID)
	if err != nil {
		ServiceError(w, h.logger, err)
		return
	}

	h.writeData(w, http.StatusOK, UnitListResponse{Units: units, Count: len(units)})
}

func (h *ProjectsHandler) writeData(w http.ResponseWriter, status int, data any) {
	if err := WriteJSON(w, status, ApiResponse{Success: true, Data: data}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *ProjectsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
