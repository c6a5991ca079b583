// Package testutil holds assertions and fixtures shared by package tests.
package testutil

import (
	"fmt"
	"math"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// AssertFloatEquals asserts that two floats are equal within tolerance.
// Two NaNs are equal, as are two infinities of the same sign.
func AssertFloatEquals(t *testing.T, expected, actual, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	if math.IsNaN(expected) && math.IsNaN(actual) {
		return
	}

	if math.IsInf(expected, 0) && math.IsInf(actual, 0) {
		assert.Equal(t, math.Signbit(expected), math.Signbit(actual), msgAndArgs...)
		return
	}

	diff := math.Abs(expected - actual)
	assert.True(t, diff <= tolerance,
		"expected %f to be within %f of %f (diff: %f). %s",
		actual, tolerance, expected, diff, fmt.Sprint(msgAndArgs...))
}

// AssertFloatSliceEquals asserts that two float slices are equal within tolerance
func AssertFloatSliceEquals(t *testing.T, expected, actual []float64, tolerance float64, msgAndArgs ...interface{}) {
	t.Helper()

	require.Equal(t, len(expected), len(actual), "slice length mismatch. %s", fmt.Sprint(msgAndArgs...))

	for i := range expected {
		AssertFloatEquals(t, expected[i], actual[i], tolerance,
			fmt.Sprintf("element %d: %s", i, fmt.Sprint(msgAndArgs...)))
	}
}

// AssertNonDecreasing asserts that the scores never go down.
func AssertNonDecreasing(t *testing.T, windows []models.ScoredWindow) {
	t.Helper()
	for i := 1; i < len(windows); i++ {
		assert.LessOrEqual(t, windows[i-1].Score, windows[i].Score, "score %d decreases", i)
	}
}

// AssertNonIncreasing asserts that the scores never go up.
func AssertNonIncreasing(t *testing.T, windows []models.ScoredWindow) {
	t.Helper()
	for i := 1; i < len(windows); i++ {
		assert.GreaterOrEqual(t, windows[i-1].Score, windows[i].Score, "score %d increases", i)
	}
}

// AssertErrorType asserts that err carries an AppError of the given type.
func AssertErrorType(t *testing.T, err error, errType errors.ErrorType) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, errType, errors.TypeOf(err), "unexpected error: %v", err)
}

// AssertFileExists asserts that file exists and optionally checks content
func AssertFileExists(t *testing.T, path string, expectedContent ...string) {
	t.Helper()

	assert.FileExists(t, path, "file should exist")

	if len(expectedContent) > 0 {
		content, err := os.ReadFile(path)
		require.NoError(t, err, "should be able to read file")

		for _, expected := range expectedContent {
			assert.Contains(t, string(content), expected, "file should contain expected content")
		}
	}
}

// NullLogger returns a logger that discards its output.
func NullLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

// SineSeries renders rows of a multi-feature sine wave in delimited form.
// Feature j is phase-shifted by j radians.
func SineSeries(rows, features int, separator string) string {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		fields := make([]string, features)
		for j := range fields {
			fields[j] = fmt.Sprintf("%.6f", math.Sin(float64(i)*0.3+float64(j)))
		}
		b.WriteString(strings.Join(fields, separator))
		b.WriteByte('\n')
	}
	return b.String()
}
