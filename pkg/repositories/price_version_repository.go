package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/models"
)

// PriceVersionRepository defines the interface for ingestion-run records.
type PriceVersionRepository interface {
	Create(ctx context.Context, version *models.PriceVersion) error
	Get(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.PriceVersion, error)
	Update(ctx context.Context, version *models.PriceVersion) error
}

// priceVersionRepository implements PriceVersionRepository using PostgreSQL.
type priceVersionRepository struct {
	db database.Querier
}

// NewPriceVersionRepository creates a new price version repository.
func NewPriceVersionRepository(db database.Querier) PriceVersionRepository {
	return &priceVersionRepository{db: db}
}

const priceVersionColumns = `id, project_id, version_number, source_name, source_type,
	status, units_created, units_updated, units_unchanged, units_errors,
	errors, warnings, currency, exchange_rate_usd,
	created_at, started_at, completed_at, reviewed_at`

// Create inserts a new version record, assigning the next per-project
// version number. Callers serialize runs per project, so the subselect
// does not race within one process.
func (r *priceVersionRepository) Create(ctx context.Context, version *models.PriceVersion) error {
	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	if version.Status == "" {
		version.Status = models.VersionPending
	}
	version.CreatedAt = time.Now()

	errs, err := json.Marshal(version.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	warns, err := json.Marshal(version.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO price_versions (` + priceVersionColumns + `)
		VALUES ($1, $2,
		        (SELECT COALESCE(MAX(version_number), 0) + 1 FROM price_versions WHERE project_id = $2),
		        $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING version_number`

	err = r.db.QueryRow(ctx, query,
		version.ID, version.ProjectID, version.SourceName, version.SourceType,
		version.Status, version.UnitsCreated, version.UnitsUpdated,
		version.UnitsUnchanged, version.UnitsErrors, errs, warns,
		version.Currency, version.ExchangeRateUSD,
		version.CreatedAt, version.StartedAt, version.CompletedAt, version.ReviewedAt,
	).Scan(&version.VersionNumber)
	if err != nil {
		return fmt.Errorf("failed to create price version: %w", err)
	}

	return nil
}

func scanPriceVersion(row pgx.Row) (*models.PriceVersion, error) {
	var version models.PriceVersion
	var errs, warns []byte

	err := row.Scan(
		&version.ID,
		&version.ProjectID,
		&version.VersionNumber,
		&version.SourceName,
		&version.SourceType,
		&version.Status,
		&version.UnitsCreated,
		&version.UnitsUpdated,
		&version.UnitsUnchanged,
		&version.UnitsErrors,
		&errs,
		&warns,
		&version.Currency,
		&version.ExchangeRateUSD,
		&version.CreatedAt,
		&version.StartedAt,
		&version.CompletedAt,
		&version.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(errs, &version.Errors); err != nil {
		return nil, fmt.Errorf("failed to unmarshal errors: %w", err)
	}
	if err := json.Unmarshal(warns, &version.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}

	return &version, nil
}

// Get retrieves a price version by ID.
func (r *priceVersionRepository) Get(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error) {
	query := `SELECT ` + priceVersionColumns + ` FROM price_versions WHERE id = $1`

	version, err := scanPriceVersion(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get price version: %w", err)
	}

	return version, nil
}

// ListByProject returns a project's versions, newest first.
func (r *priceVersionRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.PriceVersion, error) {
	query := `SELECT ` + priceVersionColumns + ` FROM price_versions
		WHERE project_id = $1 ORDER BY version_number DESC`

	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list price versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.PriceVersion
	for rows.Next() {
		version, err := scanPriceVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price version: %w", err)
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// Update rewrites a version's status, counters and timestamps.
func (r *priceVersionRepository) Update(ctx context.Context, version *models.PriceVersion) error {
	errs, err := json.Marshal(version.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal errors: %w", err)
	}
	warns, err := json.Marshal(version.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		UPDATE price_versions
		SET status = $2, units_created = $3, units_updated = $4, units_unchanged = $5,
		    units_errors = $6, errors = $7, warnings = $8, exchange_rate_usd = $9,
		    started_at = $10, completed_at = $11, reviewed_at = $12
		WHERE id = $1`

	result, err := r.db.Exec(ctx, query,
		version.ID, version.Status, version.UnitsCreated, version.UnitsUpdated,
		version.UnitsUnchanged, version.UnitsErrors, errs, warns,
		version.ExchangeRateUSD, version.StartedAt, version.CompletedAt, version.ReviewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update price version: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	return nil
}

// Ensure priceVersionRepository implements PriceVersionRepository at compile time.
var _ PriceVersionRepository = (*priceVersionRepository)(nil)
