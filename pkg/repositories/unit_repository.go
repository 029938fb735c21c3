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

// UnitRepository defines the interface for unit inventory data access.
type UnitRepository interface {
	Create(ctx context.Context, unit *models.Unit) error
	Get(ctx context.Context, id uuid.UUID) (*models.Unit, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Unit, error)
	Update(ctx context.Context, unit *models.Unit) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// unitRepository implements UnitRepository using PostgreSQL. It accepts
// any Querier, so the reconciler can run it against a transaction.
type unitRepository struct {
	db database.Querier
}

// NewUnitRepository creates a new unit repository.
func NewUnitRepository(db database.Querier) UnitRepository {
	return &unitRepository{db: db}
}

const unitColumns = `id, project_id, unit_number, building, floor, bedrooms, bathrooms,
	area_sqm, price, currency, price_usd, price_per_sqm, layout_type, view_type,
	status, price_version_id, created_at, updated_at`

func scanUnit(row pgx.Row) (*models.Unit, error) {
	var unit models.Unit
	err := row.Scan(
		&unit.ID,
		&unit.ProjectID,
		&unit.UnitNumber,
		&unit.Building,
		&unit.Floor,
		&unit.Bedrooms,
		&unit.Bathrooms,
		&unit.AreaSqm,
		&unit.Price,
		&unit.Currency,
		&unit.PriceUSD,
		&unit.PricePerSqm,
		&unit.LayoutType,
		&unit.ViewType,
		&unit.Status,
		&unit.PriceVersionID,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &unit, nil
}

// Create inserts a new unit.
func (r *unitRepository) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
	}
	if unit.Status == "" {
		unit.Status = models.StatusUnknown
	}

	now := time.Now()
	unit.CreatedAt = now
	unit.UpdatedAt = now

	query := `
		INSERT INTO units (` + unitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err := r.db.Exec(ctx, query,
		unit.ID, unit.ProjectID, unit.UnitNumber, unit.Building, unit.Floor,
		unit.Bedrooms, unit.Bathrooms, unit.AreaSqm, unit.Price, unit.Currency,
		unit.PriceUSD, unit.PricePerSqm, unit.LayoutType, unit.ViewType,
		unit.Status, unit.PriceVersionID, unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}

	return nil
}

// Get retrieves a unit by ID.
func (r *unitRepository) Get(ctx context.Context, id uuid.UUID) (*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE id = $1`

	unit, err := scanUnit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get unit: %w", err)
	}

	return unit, nil
}

// ListByProject returns all units of a project ordered by unit number.
func (r *unitRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE project_id = $1 ORDER BY unit_number`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []*models.Unit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}

	return units, rows.Err()
}

// Update rewrites a unit's mutable attributes.
func (r *unitRepository) Update(ctx context.Context, unit *models.Unit) error {
	unit.UpdatedAt = time.Now()

	query := `
		UPDATE units
		SET building = $2, floor = $3, bedrooms = $4, bathrooms = $5, area_sqm = $6,
		    price = $7, currency = $8, price_usd = $9, price_per_sqm = $10,
		    layout_type = $11, view_type = $12, status = $13, price_version_id = $14,
		    updated_at = $15
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		unit.ID, unit.Building, unit.Floor, unit.Bedrooms, unit.Bathrooms,
		unit.AreaSqm, unit.Price, unit.Currency, unit.PriceUSD, unit.PricePerSqm,
		unit.LayoutType, unit.ViewType, unit.Status, unit.PriceVersionID, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update unit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Delete removes a unit by ID.
func (r *unitRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM units WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete unit: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure unitRepository implements UnitRepository at compile time.
var _ UnitRepository = (*unitRepository)(nil)
