package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/models"
)

// AssociationRepository defines the interface for learned header-field
// associations. Counters accumulate across all projects; increments are
// atomic at the statement level.
type AssociationRepository interface {
	ForHeader(ctx context.Context, header string) ([]*models.LearnedAssociation, error)
	RecordAccept(ctx context.Context, header string, field models.Field) error
	RecordReject(ctx context.Context, header string, field models.Field) error
	List(ctx context.Context) ([]*models.LearnedAssociation, error)
	Aggregate(ctx context.Context) (accepts, rejects, learned int, err error)
	Reset(ctx context.Context) (int64, error)
}

// associationRepository implements AssociationRepository using PostgreSQL.
type associationRepository struct {
	db database.Querier
}

// NewAssociationRepository creates a new association repository.
func NewAssociationRepository(db database.Querier) AssociationRepository {
	return &associationRepository{db: db}
}

const associationColumns = `header, field, accept_count, reject_count, updated_at`

// ForHeader returns all associations recorded for one normalized header.
func (r *associationRepository) ForHeader(ctx context.Context, header string) ([]*models.LearnedAssociation, error) {
	query := `SELECT ` + associationColumns + ` FROM learned_associations
		WHERE header = $1 ORDER BY field`

	return r.query(ctx, query, header)
}

// RecordAccept increments the accept counter for (header, field),
// creating the row on first sight.
func (r *associationRepository) RecordAccept(ctx context.Context, header string, field models.Field) error {
	return r.record(ctx, header, field, 1, 0)
}

// RecordReject increments the reject counter for (header, field),
// creating the row on first sight.
func (r *associationRepository) RecordReject(ctx context.Context, header string, field models.Field) error {
	return r.record(ctx, header, field, 0, 1)
}

func (r *associationRepository) record(ctx context.Context, header string, field models.Field, accept, reject int) error {
	query := `
		INSERT INTO learned_associations (header, field, accept_count, reject_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (header, field) DO UPDATE
		SET accept_count = learned_associations.accept_count + EXCLUDED.accept_count,
		    reject_count = learned_associations.reject_count + EXCLUDED.reject_count,
		    updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query, header, field, accept, reject, time.Now())
	if err != nil {
		return fmt.Errorf("failed to record association: %w", err)
	}

	return nil
}

// List returns every association, ordered for stable output.
func (r *associationRepository) List(ctx context.Context) ([]*models.LearnedAssociation, error) {
	query := `SELECT ` + associationColumns + ` FROM learned_associations ORDER BY header, field`

	return r.query(ctx, query)
}

// Aggregate returns the counter sums and the number of associations that
// have reached the minimum sample floor.
func (r *associationRepository) Aggregate(ctx context.Context) (accepts, rejects, learned int, err error) {
	query := `
		SELECT COALESCE(SUM(accept_count), 0),
		       COALESCE(SUM(reject_count), 0),
		       COUNT(*) FILTER (WHERE accept_count + reject_count >= $1)
		FROM learned_associations`

	err = r.db.QueryRow(ctx, query, models.MinAssociationSamples).Scan(&accepts, &rejects, &learned)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("failed to aggregate associations: %w", err)
	}

	return accepts, rejects, learned, nil
}

// Reset deletes all learned associations and reports how many were removed.
func (r *associationRepository) Reset(ctx context.Context) (int64, error) {
	result, err := r.db.Exec(ctx, `DELETE FROM learned_associations`)
	if err != nil {
		return 0, fmt.Errorf("failed to reset associations: %w", err)
	}

	return result.RowsAffected(), nil
}

func (r *associationRepository) query(ctx context.Context, query string, args ...any) ([]*models.LearnedAssociation, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query associations: %w", err)
	}
	defer rows.Close()

	var associations []*models.LearnedAssociation
	for rows.Next() {
		assoc, err := scanAssociation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan association: %w", err)
		}
		associations = append(associations, assoc)
	}

	return associations, rows.Err()
}

func scanAssociation(row pgx.Row) (*models.LearnedAssociation, error) {
	var assoc models.LearnedAssociation
	err := row.Scan(
		&assoc.Header,
		&assoc.Field,
		&assoc.AcceptCount,
		&assoc.RejectCount,
		&assoc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &assoc, nil
}

// Ensure associationRepository implements AssociationRepository at compile time.
var _ AssociationRepository = (*associationRepository)(nil)
