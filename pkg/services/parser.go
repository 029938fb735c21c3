package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/propbase/propbase-engine/pkg/apperrors"
	"github.com/propbase/propbase-engine/pkg/classify"
	"github.com/propbase/propbase-engine/pkg/extract"
	"github.com/propbase/propbase-engine/pkg/models"
	"github.com/propbase/propbase-engine/pkg/normalize"
	"github.com/propbase/propbase-engine/pkg/repositories"
	"github.com/propbase/propbase-engine/pkg/services/workqueue"
)

// UploadResult is what the upload step hands back to the caller: the
// stored session plus extraction warnings. For trusted sources the
// version of the already-started run is attached.
type UploadResult struct {
	Session  *models.MappingSession
	Warnings []string
	Version  *models.PriceVersion
}

// ParseResult pairs the version record with whether the run completed
// inline or was queued.
type ParseResult struct {
	Version *models.PriceVersion
	Queued  bool
}

// ParserService orchestrates the ingestion pipeline from raw artifact to
// reconciled inventory.
type ParserService interface {
	// Upload extracts the artifact, classifies its columns and opens a
	// mapping session. When trusted is set and all required fields were
	// detected, the mapping is auto-confirmed and parsing starts without
	// human review.
	Upload(ctx context.Context, projectID uuid.UUID, artifact extract.Artifact, currency string, trusted bool) (*UploadResult, error)

	// GetSession returns a live session by token.
	GetSession(ctx context.Context, token string) (*models.MappingSession, error)

	// ApplyCorrections records reviewer decisions onto the session's
	// detections. Valid only in the created state.
	ApplyCorrections(ctx context.Context, token string, corrections []models.Correction) (*models.MappingSession, error)

	// Confirm locks the mapping and feeds the review outcomes to the
	// learner. Fails with IncompleteMappingError when a required field
	// is not mapped.
	Confirm(ctx context.Context, token string) (*models.MappingSession, error)

	// Parse normalizes the session's grid and reconciles it into the
	// project inventory, inline for small grids and queued for large
	// ones. The session is consumed either way.
	Parse(ctx context.Context, token string) (*ParseResult, error)

	// Abandon discards a session before confirmation.
	Abandon(ctx context.Context, token string) error

	// IngestPrepared reconciles rows that were mapped outside the
	// classifier, for producers with a fixed field table.
	IngestPrepared(ctx context.Context, projectID uuid.UUID, sourceName string, units []models.ParsedUnit) (*models.PriceVersion, error)
}

type parserService struct {
	extractor  *extract.Service
	classifier *classify.Classifier
	sessions   SessionStore
	learner    LearnerService
	reconciler ReconcilerService
	projects   repositories.ProjectRepository
	versions   repositories.PriceVersionRepository
	queue      *workqueue.Queue
	rates      normalize.RateTable

	syncRowLimit int
	logger       *zap.Logger
}

// NewParserService wires the pipeline stages together.
func NewParserService(
	extractor *extract.Service,
	classifier *classify.Classifier,
	sessions SessionStore,
	learner LearnerService,
	reconciler ReconcilerService,
	projects repositories.ProjectRepository,
	versions repositories.PriceVersionRepository,
	queue *workqueue.Queue,
	rates normalize.RateTable,
	syncRowLimit int,
	logger *zap.Logger,
) ParserService {
	return &parserService{
		extractor:    extractor,
		classifier:   classifier,
		sessions:     sessions,
		learner:      learner,
		reconciler:   reconciler,
		projects:     projects,
		versions:     versions,
		queue:        queue,
		rates:        rates,
		syncRowLimit: syncRowLimit,
		logger:       logger.Named("parser"),
	}
}

func (s *parserService) Upload(ctx context.Context, projectID uuid.UUID, artifact extract.Artifact, currency string, trusted bool) (*UploadResult, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrProjectNotFound
		}
		return nil, err
	}

	grid, warnings, err := s.extractor.Extract(ctx, artifact)
	if err != nil {
		return nil, err
	}

	detections, err := s.classifier.Classify(ctx, grid)
	if err != nil {
		return nil, err
	}

	if currency == "" {
		currency = project.DefaultCurrency
	}

	now := time.Now()
	session := &models.MappingSession{
		Token:           NewSessionToken(),
		ProjectID:       project.ID,
		FileName:        artifact.FileName,
		SourceType:      artifact.SourceType,
		Grid:            grid,
		Detections:      detections,
		DefaultCurrency: currency,
		State:           models.SessionCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.sessions.Put(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("mapping session opened",
		zap.String("token", session.Token),
		zap.String("project_id", project.ID.String()),
		zap.String("file", artifact.FileName),
		zap.Int("rows", grid.RowCount()),
		zap.Int("columns", grid.ColumnCount()))

	result := &UploadResult{Session: session, Warnings: warnings}

	if trusted {
		if !autoConfirmable(session) {
			// Trusted bypass needs every required field detected with
			// high confidence; fall back to the normal review flow.
			s.logger.Warn("trusted upload not auto-confirmable, review needed",
				zap.String("token", session.Token))
			return result, nil
		}

		session.State = models.SessionConfirmed
		session.UpdatedAt = time.Now()
		if err := s.sessions.Update(ctx, session); err != nil {
			return nil, err
		}

		parse, err := s.Parse(ctx, session.Token)
		if err != nil {
			return nil, err
		}
		result.Version = parse.Version
	}

	return result, nil
}

func (s *parserService) GetSession(ctx context.Context, token string) (*models.MappingSession, error) {
	return s.sessions.Get(ctx, token)
}

func (s *parserService) ApplyCorrections(ctx context.Context, token string, corrections []models.Correction) (*models.MappingSession, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionCreated {
		return nil, fmt.Errorf("%w: corrections not allowed in state %q", apperrors.ErrSessionState, session.State)
	}

	for _, c := range corrections {
		if c.ColumnIndex < 0 || c.ColumnIndex >= len(session.Detections) {
			return nil, fmt.Errorf("%w: column index %d out of range", apperrors.ErrSessionState, c.ColumnIndex)
		}
		d := &session.Detections[c.ColumnIndex]
		accepted := c.Accepted
		d.Accepted = &accepted
		d.CorrectedField = c.CorrectedField
	}

	session.UpdatedAt = time.Now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *parserService) Confirm(ctx context.Context, token string) (*models.MappingSession, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionCreated {
		return nil, fmt.Errorf("%w: cannot confirm session in state %q", apperrors.ErrSessionState, session.State)
	}

	if missing := session.MissingRequired(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, f := range missing {
			names[i] = string(f)
		}
		return nil, &apperrors.IncompleteMappingError{Missing: names}
	}

	if dupes := session.DuplicateRequired(); len(dupes) > 0 {
		names := make([]string, len(dupes))
		for i, f := range dupes {
			names[i] = string(f)
		}
		return nil, fmt.Errorf("%w: %s", apperrors.ErrDuplicateMapping, strings.Join(names, ", "))
	}

	// Columns the reviewer left untouched count as implicit accepts.
	for i := range session.Detections {
		d := &session.Detections[i]
		if d.Accepted == nil && d.ProposedField.IsCanonical() {
			accepted := true
			d.Accepted = &accepted
		}
	}

	for i := range session.Detections {
		if err := s.learner.RecordFeedback(ctx, &session.Detections[i]); err != nil {
			// Learning failures must not block ingestion.
			s.logger.Warn("failed to record mapping feedback",
				zap.String("token", token),
				zap.Error(err))
		}
	}

	session.State = models.SessionConfirmed
	session.UpdatedAt = time.Now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *parserService) Parse(ctx context.Context, token string) (*ParseResult, error) {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if session.State != models.SessionConfirmed {
		return nil, fmt.Errorf("%w: cannot parse session in state %q", apperrors.ErrSessionState, session.State)
	}

	units, warnings := normalize.Normalize(session.Grid, session.Mapping(), session.DefaultCurrency)
	for _, currency := range normalize.ConvertPrices(units, s.rates) {
		warnings = append(warnings, models.Warning{
			Message: fmt.Sprintf("no USD exchange rate for %s, prices stored unconverted", currency),
		})
	}

	version := &models.PriceVersion{
		ProjectID:  session.ProjectID,
		SourceName: session.FileName,
		SourceType: session.SourceType,
		Status:     models.VersionPending,
		Warnings:   warnings,
		Currency:   session.DefaultCurrency,
	}
	if rate, ok := s.rates[version.Currency]; ok {
		version.ExchangeRateUSD = &rate
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	session.State = models.SessionConsumed
	session.UpdatedAt = time.Now()
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}

	if session.Grid.RowCount() > s.syncRowLimit && s.queue != nil {
		s.queue.Enqueue(&ingestTask{
			reconciler: s.reconciler,
			version:    version,
			units:      units,
		})
		return &ParseResult{Version: version, Queued: true}, nil
	}

	if err := s.reconciler.Reconcile(ctx, version, units); err != nil {
		return nil, err
	}
	return &ParseResult{Version: version}, nil
}

func (s *parserService) Abandon(ctx context.Context, token string) error {
	session, err := s.sessions.Get(ctx, token)
	if err != nil {
		return err
	}
	if session.State != models.SessionCreated && session.State != models.SessionConfirmed {
		return fmt.Errorf("%w: cannot abandon session in state %q", apperrors.ErrSessionState, session.State)
	}

	session.State = models.SessionAbandoned
	return s.sessions.Delete(ctx, token)
}

// autoAcceptConfidence is the detection confidence below which a trusted
// upload still goes through human review.
const autoAcceptConfidence = 0.7

// autoConfirmable reports whether every required field was detected with
// auto-accept confidence.
func autoConfirmable(session *models.MappingSession) bool {
	confidence := make(map[models.Field]float64)
	for _, d := range session.Detections {
		if _, ok := confidence[d.ProposedField]; !ok {
			confidence[d.ProposedField] = d.Confidence
		}
	}

	for _, f := range models.RequiredFields() {
		if confidence[f] < autoAcceptConfidence {
			return false
		}
	}
	return true
}

// IngestPrepared accepts rows that arrive already mapped, such as the
// workspace-sync producer, and pushes them through the same
// reconciliation path as reviewed uploads. No session or classifier is
// involved.
func (s *parserService) IngestPrepared(ctx context.Context, projectID uuid.UUID, sourceName string, units []models.ParsedUnit) (*models.PriceVersion, error) {
	project, err := s.projects.Get(ctx, projectID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrProjectNotFound
		}
		return nil, err
	}

	for i := range units {
		if units[i].Currency == "" {
			units[i].Currency = project.DefaultCurrency
		}
		units[i].Validate()
	}

	var warnings []models.Warning
	for _, currency := range normalize.ConvertPrices(units, s.rates) {
		warnings = append(warnings, models.Warning{
			Message: fmt.Sprintf("no USD exchange rate for %s, prices stored unconverted", currency),
		})
	}

	version := &models.PriceVersion{
		ProjectID:  project.ID,
		SourceName: sourceName,
		SourceType: models.SourceRemoteSheet,
		Status:     models.VersionPending,
		Warnings:   warnings,
		Currency:   project.DefaultCurrency,
	}
	if rate, ok := s.rates[version.Currency]; ok {
		version.ExchangeRateUSD = &rate
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, err
	}

	if err := s.reconciler.Reconcile(ctx, version, units); err != nil {
		return nil, err
	}
	return version, nil
}

var _ ParserService = (*parserService)(nil)

// ingestTask runs one queued reconciliation. Its key is the project ID,
// so the queue serializes runs per project even before the reconciler's
// own lock would.
type ingestTask struct {
	reconciler ReconcilerService
	version    *models.PriceVersion
	units      []models.ParsedUnit
}

func (t *ingestTask) ID() string   { return t.version.ID.String() }
func (t *ingestTask) Name() string { return fmt.Sprintf("ingest %s v%d", t.version.SourceName, t.version.VersionNumber) }
func (t *ingestTask) Key() string  { return t.version.ProjectID.String() }

func (t *ingestTask) Execute(ctx context.Context) error {
	return t.reconciler.Reconcile(ctx, t.version, t.units)
}

var _ workqueue.Task = (*ingestTask)(nil)
