package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/database"
	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/repositories"
)

// priceEpsilon is the relative price difference below which two prices
// are considered equal, absorbing float noise from re-parsed files.
const priceEpsilon = 1e-4

// ReconcilerService folds one batch of parsed units into a project's
// inventory. All row changes of a run commit atomically; runs for the
// same project are serialized.
type ReconcilerService interface {
	Reconcile(ctx context.Context, version *models.PriceVersion, units []models.ParsedUnit) error
}

type reconcilerService struct {
	db       *database.DB
	versions repositories.PriceVersionRepository
	projects repositories.ProjectRepository
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewReconcilerService creates a new inventory reconciler.
func NewReconcilerService(db *database.DB, versions repositories.PriceVersionRepository, projects repositories.ProjectRepository, logger *zap.Logger) ReconcilerService {
	return &reconcilerService{
		db:       db,
		versions: versions,
		projects: projects,
		logger:   logger.Named("reconciler"),
	}
}

// projectLock returns the mutex serializing runs for one project.
func (s *reconcilerService) projectLock(projectID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locks == nil {
		s.locks = make(map[uuid.UUID]*sync.Mutex)
	}
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

// Reconcile applies the batch under the version record, which must
// already exist in pending state. On return the version is in a terminal
// or requires_review state with its counters and row errors filled in.
func (s *reconcilerService) Reconcile(ctx context.Context, version *models.PriceVersion, units []models.ParsedUnit) error {
	lock := s.projectLock(version.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	version.Status = models.VersionProcessing
	version.StartedAt = &now
	if err := s.versions.Update(ctx, version); err != nil {
		return fmt.Errorf("failed to mark version processing: %w", err)
	}

	priceChanged, err := s.apply(ctx, version, units)
	if err != nil {
		s.logger.Error("reconciliation failed",
			zap.String("project_id", version.ProjectID.String()),
			zap.Int("version", version.VersionNumber),
			zap.Error(err))

		version.Status = models.VersionFailed
		version.Errors = append(version.Errors, models.RowError{Reason: err.Error()})
		done := time.Now()
		version.CompletedAt = &done
		if updateErr := s.versions.Update(ctx, version); updateErr != nil {
			s.logger.Error("failed to mark version failed", zap.Error(updateErr))
		}
		return err
	}

	version.Status = models.VersionCompleted
	if version.UnitsErrors > 0 {
		version.Status = models.VersionRequiresReview
	}
	done := time.Now()
	version.CompletedAt = &done
	if err := s.versions.Update(ctx, version); err != nil {
		return fmt.Errorf("failed to finalize version: %w", err)
	}

	if priceChanged {
		if err := s.projects.SetRequiresReview(ctx, version.ProjectID, true); err != nil {
			s.logger.Warn("failed to flag project for review", zap.Error(err))
		}
	}

	s.logger.Info("reconciliation completed",
		zap.String("project_id", version.ProjectID.String()),
		zap.Int("version", version.VersionNumber),
		zap.Int("created", version.UnitsCreated),
		zap.Int("updated", version.UnitsUpdated),
		zap.Int("unchanged", version.UnitsUnchanged),
		zap.Int("errors", version.UnitsErrors))

	return nil
}

// apply runs the whole batch inside one transaction and fills the
// version's counters. It reports whether any unit's price changed.
func (s *reconcilerService) apply(ctx context.Context, version *models.PriceVersion, units []models.ParsedUnit) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	unitRepo := repositories.NewUnitRepository(tx)
	historyRepo := repositories.NewPriceHistoryRepository(tx)

	existing, err := unitRepo.ListByProject(ctx, version.ProjectID)
	if err != nil {
		return false, err
	}
	byKey := make(map[string]*models.Unit, len(existing))
	byNumber := make(map[string][]*models.Unit, len(existing))
	for _, u := range existing {
		byKey[models.MatchKey(u.UnitNumber, u.Building)] = u
		bare := models.MatchKey(u.UnitNumber, nil)
		byNumber[bare] = append(byNumber[bare], u)
	}

	seen := make(map[string]bool, len(units))
	priceChanged := false

	for i := range units {
		parsed := &units[i]

		if !parsed.IsValid {
			version.UnitsErrors++
			version.Errors = append(version.Errors, models.RowError{
				Row:        parsed.RowIndex,
				UnitNumber: parsed.UnitNumber,
				Reason:     firstReason(parsed.ValidationErrors),
			})
			continue
		}

		key := models.MatchKey(parsed.UnitNumber, parsed.Building)
		if seen[key] {
			version.UnitsErrors++
			version.Errors = append(version.Errors, models.RowError{
				Row:        parsed.RowIndex,
				UnitNumber: parsed.UnitNumber,
				Reason:     "duplicate unit number in batch",
			})
			continue
		}
		seen[key] = true

		current, ambiguous := matchUnit(byKey, byNumber, parsed)
		if ambiguous {
			version.UnitsErrors++
			version.Errors = append(version.Errors, models.RowError{
				Row:        parsed.RowIndex,
				UnitNumber: parsed.UnitNumber,
				Reason:     "unit number exists in multiple buildings, row has no building",
			})
			continue
		}
		if current == nil {
			if err := s.createUnit(ctx, unitRepo, historyRepo, version, parsed); err != nil {
				return false, err
			}
			version.UnitsCreated++
			continue
		}

		changed, priceMoved, err := s.updateUnit(ctx, unitRepo, historyRepo, version, current, parsed)
		if err != nil {
			return false, err
		}
		if priceMoved {
			priceChanged = true
		}
		if changed {
			version.UnitsUpdated++
		} else {
			version.UnitsUnchanged++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return priceChanged, nil
}

// matchUnit resolves which stored unit a parsed row refers to. Exact
// unit+building key first; a row that introduces a building still matches
// a stored unit recorded without one (the list started carrying
// buildings), and the bare entry is retired so a sibling row in another
// building creates a new unit instead of re-matching it. A row without a
// building matches the bare number only while exactly one stored unit
// carries it.
func matchUnit(byKey map[string]*models.Unit, byNumber map[string][]*models.Unit, parsed *models.ParsedUnit) (current *models.Unit, ambiguous bool) {
	key := models.MatchKey(parsed.UnitNumber, parsed.Building)
	if u, ok := byKey[key]; ok {
		return u, false
	}

	bare := models.MatchKey(parsed.UnitNumber, nil)
	if key != bare {
		if u, ok := byKey[bare]; ok {
			delete(byKey, bare)
			return u, false
		}
		return nil, false
	}

	switch candidates := byNumber[bare]; len(candidates) {
	case 0:
		return nil, false
	case 1:
		return candidates[0], false
	default:
		return nil, true
	}
}

func (s *reconcilerService) createUnit(ctx context.Context, unitRepo repositories.UnitRepository, historyRepo repositories.PriceHistoryRepository, version *models.PriceVersion, parsed *models.ParsedUnit) error {
	unit := &models.Unit{
		ProjectID:      version.ProjectID,
		UnitNumber:     parsed.UnitNumber,
		Building:       parsed.Building,
		Floor:          parsed.Floor,
		Bedrooms:       parsed.Bedrooms,
		Bathrooms:      parsed.Bathrooms,
		AreaSqm:        parsed.AreaSqm,
		Price:          parsed.Price,
		Currency:       parsed.Currency,
		PriceUSD:       parsed.PriceConverted,
		PricePerSqm:    parsed.PricePerSqm,
		LayoutType:     parsed.LayoutType,
		ViewType:       parsed.ViewType,
		Status:         parsed.Status,
		PriceVersionID: &version.ID,
	}
	if err := unitRepo.Create(ctx, unit); err != nil {
		return err
	}

	// A unit created without a price has no price event to record; its
	// history starts when a price first appears.
	if parsed.Price == nil {
		return nil
	}

	entry := &models.PriceHistory{
		UnitID:         unit.ID,
		PriceVersionID: version.ID,
		NewPrice:       parsed.Price,
		NewPriceUSD:    parsed.PriceConverted,
		NewStatus:      &unit.Status,
		ChangeType:     models.ChangeNewUnit,
		Currency:       parsed.Currency,
		ExchangeRate:   parsed.ExchangeRate,
	}
	return historyRepo.Create(ctx, entry)
}

// updateUnit compares the parsed row against the stored unit and applies
// price and status movement. Attribute-only drift (area, layout, view)
// is folded into the stored row without counting as a change.
func (s *reconcilerService) updateUnit(ctx context.Context, unitRepo repositories.UnitRepository, historyRepo repositories.PriceHistoryRepository, version *models.PriceVersion, current *models.Unit, parsed *models.ParsedUnit) (changed, priceMoved bool, err error) {
	priceMoved = priceDiffers(current.Price, parsed.Price)
	statusMoved := parsed.Status != models.StatusUnknown && parsed.Status != current.Status

	if !priceMoved && !statusMoved {
		return false, false, nil
	}

	entry := &models.PriceHistory{
		UnitID:         current.ID,
		PriceVersionID: version.ID,
		OldPrice:       current.Price,
		NewPrice:       parsed.Price,
		OldPriceUSD:    current.PriceUSD,
		NewPriceUSD:    parsed.PriceConverted,
		Currency:       parsed.Currency,
		ExchangeRate:   parsed.ExchangeRate,
	}

	oldStatus := current.Status
	entry.OldStatus = &oldStatus
	if statusMoved {
		entry.NewStatus = &parsed.Status
	} else {
		entry.NewStatus = &oldStatus
	}

	switch {
	case priceMoved && current.Price != nil:
		diff := *parsed.Price - *current.Price
		entry.PriceChange = &diff
		if *current.Price != 0 {
			pct := math.Round(diff / *current.Price * 100 * 100) / 100
			entry.PriceChangePercent = &pct
		}
		if diff > 0 {
			entry.ChangeType = models.ChangePriceIncrease
		} else {
			entry.ChangeType = models.ChangePriceDecrease
		}
	case priceMoved:
		// First recorded price for this unit.
		entry.ChangeType = models.ChangePriceIncrease
	default:
		entry.ChangeType = models.ChangeStatusChange
	}

	if priceMoved {
		current.Price = parsed.Price
		current.PriceUSD = parsed.PriceConverted
		current.PricePerSqm = parsed.PricePerSqm
		current.Currency = parsed.Currency
	}
	if statusMoved {
		current.Status = parsed.Status
	}
	if parsed.AreaSqm != nil {
		current.AreaSqm = parsed.AreaSqm
	}
	if parsed.Building != nil {
		current.Building = parsed.Building
	}
	if parsed.Floor != nil {
		current.Floor = parsed.Floor
	}
	if parsed.Bedrooms != nil {
		current.Bedrooms = parsed.Bedrooms
	}
	if parsed.Bathrooms != nil {
		current.Bathrooms = parsed.Bathrooms
	}
	if parsed.LayoutType != nil {
		current.LayoutType = parsed.LayoutType
	}
	if parsed.ViewType != nil {
		current.ViewType = parsed.ViewType
	}
	current.PriceVersionID = &version.ID

	if err := unitRepo.Update(ctx, current); err != nil {
		return false, false, err
	}
	if err := historyRepo.Create(ctx, entry); err != nil {
		return false, false, err
	}

	return true, priceMoved, nil
}

// priceDiffers reports whether two prices differ by more than the
// relative epsilon. A price appearing or disappearing counts as a move;
// a row with no price column at all never overwrites a stored price, so
// nil parsed prices only differ when the stored price is also absent.
func priceDiffers(current, parsed *float64) bool {
	if parsed == nil {
		return false
	}
	if current == nil {
		return true
	}
	if *current == 0 {
		return *parsed != 0
	}
	return math.Abs(*parsed-*current)/math.Abs(*current) > priceEpsilon
}

func firstReason(reasons []string) string {
	if len(reasons) == 0 {
		return "row failed validation"
	}
	return reasons[0]
}

var _ ReconcilerService = (*reconcilerService)(nil)
