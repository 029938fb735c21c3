package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/repositories"
)

// LearnerService accumulates reviewer feedback into header-field
// associations and reports aggregate learning statistics.
type LearnerService interface {
	// RecordFeedback folds one reviewed detection into the counters.
	// An accepted proposal increments its accept count. A rejection
	// increments the proposal's reject count, and when the reviewer
	// supplied a replacement field, that pairing's accept count too.
	RecordFeedback(ctx context.Context, detection *models.ColumnDetection) error

	// Stats returns the aggregate view over all learned associations.
	Stats(ctx context.Context) (*models.LearningStats, error)

	// Reset deletes all learned associations and returns how many were
	// removed. Seed lexicon behavior is unaffected.
	Reset(ctx context.Context) (int64, error)
}

type learnerService struct {
	associations repositories.AssociationRepository
	logger       *zap.Logger
}

// NewLearnerService creates a new correction learner.
func NewLearnerService(associations repositories.AssociationRepository, logger *zap.Logger) LearnerService {
	return &learnerService{
		associations: associations,
		logger:       logger.Named("learner"),
	}
}

func (s *learnerService) RecordFeedback(ctx context.Context, detection *models.ColumnDetection) error {
	if detection.Accepted == nil {
		return nil // column was never reviewed
	}

	header := detection.HeaderNormalized
	if header == "" {
		return nil
	}

	if *detection.Accepted {
		if !detection.ProposedField.IsCanonical() {
			return nil
		}
		if err := s.associations.RecordAccept(ctx, header, detection.ProposedField); err != nil {
			return fmt.Errorf("failed to record accept: %w", err)
		}
		return nil
	}

	if detection.ProposedField.IsCanonical() {
		if err := s.associations.RecordReject(ctx, header, detection.ProposedField); err != nil {
			return fmt.Errorf("failed to record reject: %w", err)
		}
	}

	if detection.CorrectedField != nil && detection.CorrectedField.IsCanonical() {
		if err := s.associations.RecordAccept(ctx, header, *detection.CorrectedField); err != nil {
			return fmt.Errorf("failed to record correction: %w", err)
		}
	}

	return nil
}

func (s *learnerService) Stats(ctx context.Context) (*models.LearningStats, error) {
	accepts, rejects, learned, err := s.associations.Aggregate(ctx)
	if err != nil {
		return nil, err
	}

	stats := &models.LearningStats{
		TotalFeedbacks:  accepts + rejects,
		AcceptedCount:   accepts,
		CorrectedCount:  rejects,
		PatternsLearned: learned,
	}
	if stats.TotalFeedbacks > 0 {
		stats.AccuracyRate = float64(accepts) / float64(stats.TotalFeedbacks)
	}

	return stats, nil
}

func (s *learnerService) Reset(ctx context.Context) (int64, error) {
	removed, err := s.associations.Reset(ctx)
	if err != nil {
		return 0, err
	}

	s.logger.Info("learned associations reset", zap.Int64("removed", removed))
	return removed, nil
}

var _ LearnerService = (*learnerService)(nil)
