package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/models"
)

// ProjectRepository defines the interface for project data access.
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id uuid.UUID) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	Update(ctx context.Context, project *models.Project) error
	SetRequiresReview(ctx context.Context, id uuid.UUID, requiresReview bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// projectRepository implements ProjectRepository using PostgreSQL.
type projectRepository struct {
	db database.Querier
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db database.Querier) ProjectRepository {
	return &projectRepository{db: db}
}

const projectColumns = `id, name, default_currency, requires_review, created_at, updated_at`

// Create inserts a new project or updates if it already exists (idempotent).
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	if project.DefaultCurrency == "" {
		project.DefaultCurrency = "THB"
	}

	now := time.Now()
	project.CreatedAt = now
	project.UpdatedAt = now

	query := `
		INSERT INTO projects (id, name, default_currency, requires_review, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name,
		    default_currency = EXCLUDED.default_currency,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		project.ID,
		project.Name,
		project.DefaultCurrency,
		project.RequiresReview,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID.
func (r *projectRepository) Get(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	var project models.Project
	err := r.db.QueryRow(ctx, query, id).Scan(
		&project.ID,
		&project.Name,
		&project.DefaultCurrency,
		&project.RequiresReview,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

// List returns all projects ordered by name.
func (r *projectRepository) List(ctx context.Context) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*models.Project
	for rows.Next() {
		var project models.Project
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.DefaultCurrency,
			&project.RequiresReview,
			&project.CreatedAt,
			&project.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &project)
	}

	return projects, rows.Err()
}

// Update updates an existing project's mutable fields.
func (r *projectRepository) Update(ctx context.Context, project *models.Project) error {
	project.UpdatedAt = time.Now()

	query := `
		UPDATE projects
		SET name = $2, default_currency = $3, requires_review = $4, updated_at = $5
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		project.ID, project.Name, project.DefaultCurrency, project.RequiresReview, project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// SetRequiresReview flips the review flag after an ingestion run.
func (r *projectRepository) SetRequiresReview(ctx context.Context, id uuid.UUID, requiresReview bool) error {
	query := `UPDATE projects SET requires_review = $2, updated_at = $3 WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id, requiresReview, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set requires_review: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a project by ID.
// Units, price versions and history rows are removed via CASCADE.
func (r *projectRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM projects WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure projectRepository implements ProjectRepository at compile time.
var _ ProjectRepository = (*projectRepository)(nil)
