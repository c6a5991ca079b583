// Package ranking scores windows and selects the most normal and the most
// anomalous ones.
package ranking

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/interfaces"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Ranker scores a test set with a Scorer and ranks it by reconstruction
// error.
type Ranker struct {
	Workers int

	logger *logrus.Logger
}

// NewRanker creates a ranker. Workers <= 0 uses GOMAXPROCS.
func NewRanker(workers int, logger *logrus.Logger) *Ranker {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Ranker{Workers: workers, logger: logger}
}

// Rank scores every window of testSet and returns the k lowest-scoring
// windows as Normal and the k highest-scoring as Anomalous. When the test
// set has fewer than 2k windows the two sets overlap; a test set with fewer
// than k windows yields all of them in both.
func (r *Ranker) Rank(ctx context.Context, scorer interfaces.Scorer, testSet []models.Window, k int) (*models.Ranking, error) {
	if k <= 0 {
		return nil, errors.NewInvalidConfigError("top_k", fmt.Sprintf("must be positive, got %d", k))
	}

	scored, err := r.score(ctx, scorer, testSet)
	if err != nil {
		return nil, err
	}
	Sort(scored)

	n := k
	if n > len(scored) {
		n = len(scored)
	}
	ranking := &models.Ranking{
		All:       scored,
		Normal:    make([]models.ScoredWindow, n),
		Anomalous: make([]models.ScoredWindow, n),
	}
	copy(ranking.Normal, scored[:n])
	for i := 0; i < n; i++ {
		ranking.Anomalous[i] = scored[len(scored)-1-i]
	}

	if r.logger != nil {
		fields := logrus.Fields{"windows": len(scored), "top_k": k}
		if n > 0 {
			fields["min_score"] = scored[0].Score
			fields["max_score"] = scored[len(scored)-1].Score
		}
		if len(scored) < 2*k {
			r.logger.WithFields(fields).Warn("Test set smaller than twice top_k, normal and anomalous sets overlap")
		} else {
			r.logger.WithFields(fields).Info("Ranked test windows")
		}
	}

	return ranking, nil
}

// score computes the score of every window, writing results by index.
func (r *Ranker) score(ctx context.Context, scorer interfaces.Scorer, testSet []models.Window) ([]models.ScoredWindow, error) {
	scored := make([]models.ScoredWindow, len(testSet))
	if len(testSet) == 0 {
		return scored, nil
	}

	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > len(testSet) {
		workers = len(testSet)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan int)
	errs := make(chan error, workers)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				s, err := scorer.Score(testSet[i])
				if err != nil {
					errs <- fmt.Errorf("window %d: %w", i, err)
					cancel()
					return
				}
				scored[i] = models.ScoredWindow{Score: s, Index: i, Window: testSet[i]}
			}
		}()
	}

dispatch:
	for i := range testSet {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()
	close(errs)

	if err := <-errs; err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return scored, nil
}

// Sort orders windows by ascending score. The sort is stable, so ties keep
// their relative order, and NaN scores sort after every other score.
func Sort(windows []models.ScoredWindow) {
	sort.SliceStable(windows, func(i, j int) bool {
		return less(windows[i].Score, windows[j].Score)
	})
}

func less(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}
