package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/repositories"
)

// ProjectService defines the interface for project operations.
type ProjectService interface {
	Create(ctx context.Context, name, defaultCurrency string) (*models.Project, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListUnits returns the project's current inventory.
	ListUnits(ctx context.Context, projectID uuid.UUID) ([]*models.Unit, error)
}

type projectService struct {
	projects repositories.ProjectRepository
	units    repositories.UnitRepository
	logger   *zap.Logger
}

// NewProjectService creates a new project service.
func NewProjectService(projects repositories.ProjectRepository, units repositories.UnitRepository, logger *zap.Logger) ProjectService {
	return &projectService{
		projects: projects,
		units:    units,
		logger:   logger.Named("projects"),
	}
}

func (s *projectService) Create(ctx context.Context, name, defaultCurrency string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("project name must not be empty")
	}

	project := &models.Project{
		ID:              uuid.New(),
		Name:            name,
		DefaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.logger.Info("Created project",
		zap.String("project_id", project.ID.String()),
		zap.String("name", project.Name))
	return project, nil
}

func (s *projectService) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return s.projects.Get(ctx, id)
}

func (s *projectService) List(ctx context.Context) ([]*models.Project, error) {
	return s.projects.List(ctx)
}

func (s *projectService) Update(ctx context.Context, project *models.Project) error {
	return s.projects.Update(ctx, project)
}

func (s *projectService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.projects.Delete(ctx, id)
}

func (s *projectService) ListUnits(ctx context.Context, projectID uuid.UUID) ([]*models.Unit, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.units.ListByProject(ctx, projectID)
}

var _ ProjectService = (*projectService)(nil)
