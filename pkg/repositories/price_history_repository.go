package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/models"
)

// PriceHistoryRepository defines the interface for the append-only price
// change log. Entries are never updated or deleted.
type PriceHistoryRepository interface {
	Create(ctx context.Context, entry *models.PriceHistory) error
	ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*models.PriceHistory, error)
	ListByVersion(ctx context.Context, versionID uuid.UUID) ([]*models.PriceHistory, error)
}

// priceHistoryRepository implements PriceHistoryRepository using PostgreSQL.
type priceHistoryRepository struct {
	db database.Querier
}

// NewPriceHistoryRepository creates a new price history repository.
func NewPriceHistoryRepository(db database.Querier) PriceHistoryRepository {
	return &priceHistoryRepository{db: db}
}

const priceHistoryColumns = `id, unit_id, price_version_id, old_price, new_price,
	old_price_usd, new_price_usd, price_change, price_change_percent,
	old_status, new_status, change_type, currency, exchange_rate, created_at`

// Create appends one history entry.
func (r *priceHistoryRepository) Create(ctx context.Context, entry *models.PriceHistory) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = time.Now()

	query := `
		INSERT INTO price_history (` + priceHistoryColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.UnitID, entry.PriceVersionID,
		entry.OldPrice, entry.NewPrice, entry.OldPriceUSD, entry.NewPriceUSD,
		entry.PriceChange, entry.PriceChangePercent,
		entry.OldStatus, entry.NewStatus, entry.ChangeType,
		entry.Currency, entry.ExchangeRate, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create price history entry: %w", err)
	}

	return nil
}

func scanPriceHistory(row pgx.Row) (*models.PriceHistory, error) {
	var entry models.PriceHistory
	err := row.Scan(
		&entry.ID,
		&entry.UnitID,
		&entry.PriceVersionID,
		&entry.OldPrice,
		&entry.NewPrice,
		&entry.OldPriceUSD,
		&entry.NewPriceUSD,
		&entry.PriceChange,
		&entry.PriceChangePercent,
		&entry.OldStatus,
		&entry.NewStatus,
		&entry.ChangeType,
		&entry.Currency,
		&entry.ExchangeRate,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// ListByUnit returns a unit's history, newest first.
func (r *priceHistoryRepository) ListByUnit(ctx context.Context, unitID uuid.UUID) ([]*models.PriceHistory, error) {
	query := `SELECT ` + priceHistoryColumns + ` FROM price_history
		WHERE unit_id = $1 ORDER BY created_at DESC`

	return r.list(ctx, query, unitID)
}

// ListByVersion returns all entries recorded by one ingestion run.
func (r *priceHistoryRepository) ListByVersion(ctx context.Context, versionID uuid.UUID) ([]*models.PriceHistory, error) {
	query := `SELECT ` + priceHistoryColumns + ` FROM price_history
		WHERE price_version_id = $1 ORDER BY created_at`

	return r.list(ctx, query, versionID)
}

func (r *priceHistoryRepository) list(ctx context.Context, query string, arg any) ([]*models.PriceHistory, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list price history: %w", err)
	}
	defer rows.Close()

	var entries []*models.PriceHistory
	for rows.Next() {
		entry, err := scanPriceHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan price history entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// Ensure priceHistoryRepository implements PriceHistoryRepository at compile time.
var _ PriceHistoryRepository = (*priceHistoryRepository)(nil)
