package classify

import (
	"context"
	"sort"

	"github.com/propbase/propbase-engine/pkg/models"
)

// AssociationSource provides the learned-evidence side of classification.
// Implementations snapshot the association table for a normalized header;
// the Postgres-backed store and the in-memory test double both satisfy it.
type AssociationSource interface {
	ForHeader(ctx context.Context, normalizedHeader string) ([]*models.LearnedAssociation, error)
}

// Classifier proposes a canonical field per column. It is a pure function
// of the grid headers and the current association table: identical inputs
// always produce identical detections.
type Classifier struct {
	associations AssociationSource
}

// New creates a classifier backed by the given association source.
func New(associations AssociationSource) *Classifier {
	return &Classifier{associations: associations}
}

type candidate struct {
	field models.Field
	score float64
	seed  float64
}

// Classify scores every column header against the canonical vocabulary.
// Columns whose best score falls below the threshold are proposed as
// unknown with zero confidence.
func (c *Classifier) Classify(ctx context.Context, grid *models.Grid) ([]models.ColumnDetection, error) {
	detections := make([]models.ColumnDetection, 0, len(grid.Headers))
	used := make(map[models.Field]bool)

	for idx, header := range grid.Headers {
		normalized := Normalize(header)

		candidates, err := c.score(ctx, normalized)
		if err != nil {
			return nil, err
		}

		field, confidence := pickCandidate(candidates, used)
		if field != models.FieldUnknown {
			used[field] = true
		}

		detections = append(detections, models.ColumnDetection{
			Index:            idx,
			Header:           header,
			HeaderNormalized: normalized,
			ProposedField:    field,
			Confidence:       confidence,
		})
	}

	return detections, nil
}

// score produces one candidate per canonical field, combining the seed
// and learned scores by max: learned evidence raises confidence but never
// pushes a strong seed match down.
func (c *Classifier) score(ctx context.Context, normalized string) ([]candidate, error) {
	if normalized == "" {
		return nil, nil
	}

	learned := make(map[models.Field]float64)
	if c.associations != nil {
		assocs, err := c.associations.ForHeader(ctx, normalized)
		if err != nil {
			return nil, err
		}
		for _, a := range assocs {
			if conf := a.Confidence(); conf > learned[a.Field] {
				learned[a.Field] = conf
			}
		}
	}

	var candidates []candidate
	for _, spec := range models.CanonicalFields {
		seed := seedScore(normalized, spec.Field)
		score := seed
		if l := learned[spec.Field]; l > score {
			score = l
		}
		if score >= scoreThreshold {
			candidates = append(candidates, candidate{field: spec.Field, score: score, seed: seed})
		}
	}

	sortCandidates(candidates)
	return candidates, nil
}

// sortCandidates orders by combined score, breaking ties by required
// fields first, then seed score, then canonical field order. The ordering
// is total, so classification is stable for identical input.
func sortCandidates(candidates []candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		aReq, bReq := a.field.IsRequired(), b.field.IsRequired()
		if aReq != bReq {
			return aReq
		}
		if a.seed != b.seed {
			return a.seed > b.seed
		}
		return fieldOrder(a.field) < fieldOrder(b.field)
	})
}

// pickCandidate selects the best candidate not already assigned to an
// earlier column. When every candidate's field is taken, the best one is
// kept anyway at half confidence so the reviewer sees the collision
// instead of a silent unknown.
func pickCandidate(candidates []candidate, used map[models.Field]bool) (models.Field, float64) {
	if len(candidates) == 0 {
		return models.FieldUnknown, 0
	}
	for _, cand := range candidates {
		if !used[cand.field] {
			return cand.field, cand.score
		}
	}
	best := candidates[0]
	return best.field, best.score / 2
}

func fieldOrder(f models.Field) int {
	for i, spec := range models.CanonicalFields {
		if spec.Field == f {
			return i
		}
	}
	return len(models.CanonicalFields)
}

// SeedScore exposes the seed heuristic for header-row detection in the
// extractor, which scores candidate header rows by how many cells look
// like known headers.
func SeedScore(header string) (models.Field, float64) {
	normalized := Normalize(header)
	if normalized == "" {
		return models.FieldUnknown, 0
	}

	var candidates []candidate
	for _, spec := range models.CanonicalFields {
		if s := seedScore(normalized, spec.Field); s >= scoreThreshold {
			candidates = append(candidates, candidate{field: spec.Field, score: s, seed: s})
		}
	}
	if len(candidates) == 0 {
		return models.FieldUnknown, 0
	}
	sortCandidates(candidates)
	return candidates[0].field, candidates[0].score
}
