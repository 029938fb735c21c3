package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/repositories"
)

// PriceService exposes ingestion-run records and the review transitions
// on them, plus the per-unit price history.
type PriceService interface {
	GetVersion(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error)
	ListVersions(ctx context.Context, projectID uuid.UUID) ([]*models.PriceVersion, error)

	// Approve moves a requires_review version to approved and clears the
	// project's review flag when no other version awaits review.
	Approve(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error)

	// Reject moves a requires_review version to rejected. Applied unit
	// changes are not rolled back; rejection is a bookkeeping verdict.
	Reject(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error)

	UnitHistory(ctx context.Context, unitID uuid.UUID) ([]*models.PriceHistory, error)
}

type priceService struct {
	versions repositories.PriceVersionRepository
	projects repositories.ProjectRepository
	history  repositories.PriceHistoryRepository
	logger   *zap.Logger
}

// NewPriceService creates a new price version service.
func NewPriceService(versions repositories.PriceVersionRepository, projects repositories.ProjectRepository, history repositories.PriceHistoryRepository, logger *zap.Logger) PriceService {
	return &priceService{
		versions: versions,
		projects: projects,
		history:  history,
		logger:   logger.Named("prices"),
	}
}

func (s *priceService) GetVersion(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error) {
	return s.versions.Get(ctx, id)
}

func (s *priceService) ListVersions(ctx context.Context, projectID uuid.UUID) ([]*models.PriceVersion, error) {
	return s.versions.ListByProject(ctx, projectID)
}

func (s *priceService) Approve(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error) {
	return s.review(ctx, id, models.VersionApproved)
}

func (s *priceService) Reject(ctx context.Context, id uuid.UUID) (*models.PriceVersion, error) {
	return s.review(ctx, id, models.VersionRejected)
}

func (s *priceService) review(ctx context.Context, id uuid.UUID, verdict models.PriceVersionStatus) (*models.PriceVersion, error) {
	version, err := s.versions.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if version.Status != models.VersionRequiresReview {
		return nil, fmt.Errorf("%w: version %s is %q, not awaiting review",
			apperrors.ErrConflict, id, version.Status)
	}

	now := time.Now()
	version.Status = verdict
	version.ReviewedAt = &now
	if err := s.versions.Update(ctx, version); err != nil {
		return nil, err
	}

	s.logger.Info("price version reviewed",
		zap.String("version_id", id.String()),
		zap.String("verdict", string(verdict)))

	if err := s.clearReviewFlag(ctx, version.ProjectID); err != nil {
		s.logger.Warn("failed to refresh project review flag", zap.Error(err))
	}

	return version, nil
}

// clearReviewFlag drops the project's review flag once no version of the
// project awaits review.
func (s *priceService) clearReviewFlag(ctx context.Context, projectID uuid.UUID) error {
	versions, err := s.versions.ListByProject(ctx, projectID)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if v.Status == models.VersionRequiresReview {
			return nil
		}
	}
	return s.projects.SetRequiresReview(ctx, projectID, false)
}

func (s *priceService) UnitHistory(ctx context.Context, unitID uuid.UUID) ([]*models.PriceHistory, error) {
	return s.history.ListByUnit(ctx, unitID)
}

var _ PriceService = (*priceService)(nil)
