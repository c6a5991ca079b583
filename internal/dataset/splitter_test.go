package dataset

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// indexedWindows builds n single-row windows whose value is their index.
func indexedWindows(n int) []models.Window {
	windows := make([]models.Window, n)
	for i := range windows {
		windows[i] = models.Window{models.Row{float64(i)}}
	}
	return windows
}

func windowIDs(windows []models.Window) []int {
	ids := make([]int, len(windows))
	for i, w := range windows {
		ids[i] = int(w[0][0])
	}
	return ids
}

func TestSplitSizes(t *testing.T) {
	split, err := SplitSeeded(indexedWindows(60), 0.9, 42)
	require.NoError(t, err)

	assert.Len(t, split.Train, 54)
	assert.Len(t, split.Test, 6)
	assert.Equal(t, 60, split.Total())
}

func TestSplitDisjointAndComplete(t *testing.T) {
	for _, ratio := range []float64{0.01, 0.25, 0.5, 0.77, 0.9, 0.99} {
		windows := indexedWindows(37)
		split, err := SplitSeeded(windows, ratio, 7)
		require.NoError(t, err)
		require.Equal(t, 37, split.Total())

		seen := make(map[int]int)
		for _, id := range windowIDs(split.Train) {
			seen[id]++
		}
		for _, id := range windowIDs(split.Test) {
			seen[id]++
		}
		require.Len(t, seen, 37, "ratio %v", ratio)
		for id, count := range seen {
			assert.Equal(t, 1, count, "window %d appears %d times at ratio %v", id, count, ratio)
		}
	}
}

func TestSplitDeterministicUnderSeed(t *testing.T) {
	a, err := SplitSeeded(indexedWindows(100), 0.8, 123456)
	require.NoError(t, err)
	b, err := SplitSeeded(indexedWindows(100), 0.8, 123456)
	require.NoError(t, err)

	assert.Equal(t, windowIDs(a.Train), windowIDs(b.Train))
	assert.Equal(t, windowIDs(a.Test), windowIDs(b.Test))
}

func TestSplitLeavesInputOrder(t *testing.T) {
	windows := indexedWindows(20)
	_, err := Split(windows, 0.5, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	for i, id := range windowIDs(windows) {
		assert.Equal(t, i, id)
	}
}

func TestSplitKeepsRowOrder(t *testing.T) {
	windows := []models.Window{
		{models.Row{1}, models.Row{2}, models.Row{3}},
		{models.Row{4}, models.Row{5}, models.Row{6}},
		{models.Row{7}, models.Row{8}, models.Row{9}},
	}
	split, err := SplitSeeded(windows, 0.5, 3)
	require.NoError(t, err)

	for _, w := range append(split.Train, split.Test...) {
		assert.Equal(t, w[0][0]+1, w[1][0])
		assert.Equal(t, w[1][0]+1, w[2][0])
	}
}

func TestSplitInvalidRatio(t *testing.T) {
	for _, ratio := range []float64{0, 1, -0.5, 1.5} {
		_, err := SplitSeeded(indexedWindows(10), ratio, 1)
		assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidConfig), "ratio %v", ratio)
	}
}
