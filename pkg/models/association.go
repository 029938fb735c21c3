package models

import "time"

// MinAssociationSamples is the minimum accept+reject count before a
// learned association's own ratio is trusted over the seed heuristic.
const MinAssociationSamples = 3

// LearnedAssociation is the accumulated evidence linking one normalized
// header string to one canonical field. Rows are keyed by (header, field)
// and mutated only by the correction learner; counts are never deleted,
// only reset in bulk by an administrative operation.
type LearnedAssociation struct {
	Header string `json:"header"`
	Field  Field  `json:"field"`

	AcceptCount int `json:"accept_count"`
	RejectCount int `json:"reject_count"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Samples returns the total evidence behind this association.
func (a *LearnedAssociation) Samples() int {
	return a.AcceptCount + a.RejectCount
}

// Confidence derives the association's strength: accepts over total
// samples. Below the minimum-sample floor it returns 0 so the seed
// heuristic dominates.
func (a *LearnedAssociation) Confidence() float64 {
	total := a.Samples()
	if total < MinAssociationSamples {
		return 0
	}
	return float64(a.AcceptCount) / float64(total)
}

// LearningStats is the aggregate view over all associations.
type LearningStats struct {
	TotalFeedbacks  int     `json:"total_feedbacks"`
	AcceptedCount   int     `json:"accepted_count"`
	CorrectedCount  int     `json:"corrected_count"`
	PatternsLearned int     `json:"patterns_learned"`
	AccuracyRate    float64 `json:"accuracy_rate"`
}
