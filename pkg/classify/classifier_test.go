package classify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propbase/propbase-engine/pkg/models"
)

// stubAssociations returns canned associations per normalized header.
type stubAssociations struct {
	byHeader map[string][]*models.LearnedAssociation
}

func (s *stubAssociations) ForHeader(_ context.Context, header string) ([]*models.LearnedAssociation, error) {
	return s.byHeader[header], nil
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Unit No.", "unit no"},
		{"  PRICE (THB)  ", "price thb"},
		{"Площадь", "площадь"},
		{"unit_number", "unit number"},
		{"price-per-sqm", "price per sqm"},
		{"№", "№"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "Normalize(%q)", tt.in)
	}
}

func TestClassify_SeedOnly_UnitNumberSubstring(t *testing.T) {
	// "Unit No." with no learned history must classify to unit_number on
	// the seed lexicon alone with confidence >= 0.6.
	c := New(&stubAssociations{})
	grid := &models.Grid{Headers: []string{"Unit No."}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	assert.Equal(t, models.FieldUnitNumber, detections[0].ProposedField)
	assert.GreaterOrEqual(t, detections[0].Confidence, 0.6)
}

func TestClassify_RussianHeaders(t *testing.T) {
	c := New(&stubAssociations{})
	grid := &models.Grid{Headers: []string{"№", "Цена", "Площадь"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, detections, 3)

	assert.Equal(t, models.FieldUnitNumber, detections[0].ProposedField)
	assert.Equal(t, models.FieldPrice, detections[1].ProposedField)
	assert.Equal(t, models.FieldAreaSqm, detections[2].ProposedField)
}

func TestClassify_UnknownBelowThreshold(t *testing.T) {
	c := New(&stubAssociations{})
	grid := &models.Grid{Headers: []string{"zzz qqq"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	assert.Equal(t, models.FieldUnknown, detections[0].ProposedField)
	assert.Zero(t, detections[0].Confidence)
}

func TestClassify_LearnedRaisesConfidence(t *testing.T) {
	// A header unknown to the seed lexicon becomes classifiable once the
	// association table carries enough accepted samples.
	src := &stubAssociations{byHeader: map[string][]*models.LearnedAssociation{
		"obj": {{Header: "obj", Field: models.FieldUnitNumber, AcceptCount: 9, RejectCount: 1}},
	}}
	c := New(src)
	grid := &models.Grid{Headers: []string{"obj"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)

	assert.Equal(t, models.FieldUnitNumber, detections[0].ProposedField)
	assert.InDelta(t, 0.9, detections[0].Confidence, 1e-9)
}

func TestClassify_LearnedNeverLowersSeedScore(t *testing.T) {
	// Weak learned evidence for the same pair must not pull a strong seed
	// match down: the combinator is max, not override.
	src := &stubAssociations{byHeader: map[string][]*models.LearnedAssociation{
		"price": {{Header: "price", Field: models.FieldPrice, AcceptCount: 2, RejectCount: 8}},
	}}
	c := New(src)
	grid := &models.Grid{Headers: []string{"Price"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)

	assert.Equal(t, models.FieldPrice, detections[0].ProposedField)
	assert.InDelta(t, seedExactScore, detections[0].Confidence, 1e-9)
}

func TestClassify_BelowSampleFloorIgnoresLearned(t *testing.T) {
	src := &stubAssociations{byHeader: map[string][]*models.LearnedAssociation{
		"obj": {{Header: "obj", Field: models.FieldFloor, AcceptCount: 2, RejectCount: 0}},
	}}
	c := New(src)
	grid := &models.Grid{Headers: []string{"obj"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)

	assert.Equal(t, models.FieldUnknown, detections[0].ProposedField)
}

func TestClassify_DuplicateFieldGoesToFirstColumn(t *testing.T) {
	c := New(&stubAssociations{})
	grid := &models.Grid{Headers: []string{"Price", "Total Price"}}

	detections, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)

	assert.Equal(t, models.FieldPrice, detections[0].ProposedField)
	// The second column cannot claim price again; it either finds an
	// alternative or keeps the collision at reduced confidence.
	if detections[1].ProposedField == models.FieldPrice {
		assert.Less(t, detections[1].Confidence, detections[0].Confidence)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := New(&stubAssociations{})
	grid := &models.Grid{Headers: []string{"Unit", "BR", "Area", "Floor", "Price", "Status", "whatever"}}

	first, err := c.Classify(context.Background(), grid)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := c.Classify(context.Background(), grid)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSeedScore_HeaderRowSignal(t *testing.T) {
	field, score := SeedScore("Price")
	assert.Equal(t, models.FieldPrice, field)
	assert.Greater(t, score, 0.0)

	field, score = SeedScore("A101")
	assert.Equal(t, models.FieldUnknown, field)
	assert.Zero(t, score)
}
