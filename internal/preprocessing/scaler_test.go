package preprocessing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

var testRows = []models.Row{
	{1, 10},
	{2, 10},
	{3, 10},
	{4, 10},
	{5, 10},
}

func TestScalerMinMax(t *testing.T) {
	s, err := NewScaler(constants.NormalizationMinMax)
	require.NoError(t, err)
	require.NoError(t, s.Fit(testRows))

	out, err := s.TransformRow(models.Row{3, 10})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, out[0], 1e-12)
	assert.InDelta(t, 0, out[1], 1e-12, "constant feature keeps a unit scale")
}

func TestScalerZScore(t *testing.T) {
	s, err := NewScaler(constants.NormalizationZScore)
	require.NoError(t, err)
	require.NoError(t, s.Fit(testRows))

	assert.InDelta(t, 3, s.Mean[0], 1e-12)
	assert.InDelta(t, 1.4142135623730951, s.Std[0], 1e-12)

	out, err := s.TransformRow(models.Row{5, 10})
	require.NoError(t, err)
	assert.InDelta(t, 2/1.4142135623730951, out[0], 1e-12)
	assert.InDelta(t, 0, out[1], 1e-12)
}

func TestScalerRobust(t *testing.T) {
	s, err := NewScaler(constants.NormalizationRobust)
	require.NoError(t, err)
	require.NoError(t, s.Fit(testRows))

	assert.Equal(t, []float64{3, 10}, s.Median)
	assert.Equal(t, []float64{2, 10}, s.Q25)
	assert.Equal(t, []float64{4, 10}, s.Q75)

	want := []float64{-1, -0.5, 0, 0.5, 1}
	for i, row := range testRows {
		scaled, err := s.TransformRow(row)
		require.NoError(t, err)
		assert.InDelta(t, want[i], scaled[0], 1e-12)
		assert.InDelta(t, 0, scaled[1], 1e-12)
	}
}

func TestScalerNoneIsIdentity(t *testing.T) {
	s, err := NewScaler("")
	require.NoError(t, err)
	require.NoError(t, s.Fit(testRows))
	assert.False(t, s.Enabled())

	w := models.Window{testRows[0], testRows[1]}
	out, err := s.TransformWindow(w)
	require.NoError(t, err)
	assert.Equal(t, w, out)
}

func TestScalerErrors(t *testing.T) {
	_, err := NewScaler("log")
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig))

	s, err := NewScaler(constants.NormalizationZScore)
	require.NoError(t, err)
	require.NoError(t, s.Fit(testRows))
	_, err = s.TransformRow(models.Row{1, 2, 3})
	assert.True(t, errors.IsType(err, errors.ErrorTypeDimensionMismatch))
}
