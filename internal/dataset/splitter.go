// Package dataset shuffles windows and partitions them into train and test
// subsets.
package dataset

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Split shuffles a copy of windows with rng and partitions it at ratio.
// The first floor(ratio*N) shuffled windows form the training set and the
// rest the test set. The caller's slice keeps its order; the windows
// themselves are shared.
func Split(windows []models.Window, ratio float64, rng *rand.Rand) (*models.Split, error) {
	if math.IsNaN(ratio) || ratio <= 0 || ratio >= 1 {
		return nil, errors.NewInvalidConfigError("ratio",
			fmt.Sprintf("must lie in (0,1), got %v", ratio))
	}
	if rng == nil {
		return nil, errors.NewInvalidConfigError("seed", "random source is required")
	}

	shuffled := make([]models.Window, len(windows))
	copy(shuffled, windows)
	models.NewDataset(shuffled).Shuffle(rng)

	trainCount := int(math.Floor(ratio * float64(len(shuffled))))
	return &models.Split{
		Train: shuffled[:trainCount:trainCount],
		Test:  shuffled[trainCount:],
	}, nil
}

// SplitSeeded is Split with a fresh random source seeded with seed.
func SplitSeeded(windows []models.Window, ratio float64, seed int64) (*models.Split, error) {
	return Split(windows, ratio, rand.New(rand.NewSource(seed)))
}
