// Package preprocessing provides per-feature scaling of time-series rows.
package preprocessing

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/constants"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/errors"
	"github.com/jayeshkapadnis/ts-anamoly-detector/pkg/models"
)

// Scaler handles per-feature normalization. Its fields are exported so it
// can be persisted alongside a model.
type Scaler struct {
	Method string

	Min    []float64
	Max    []float64
	Mean   []float64
	Std    []float64
	Median []float64
	Q25    []float64 // 25th percentile for robust scaling
	Q75    []float64 // 75th percentile for robust scaling

	Fitted bool
}

// NewScaler creates a scaler for one of the constants.Normalization* methods.
// An empty method means no scaling.
func NewScaler(method string) (*Scaler, error) {
	if method == "" {
		method = constants.NormalizationNone
	}
	switch method {
	case constants.NormalizationNone, constants.NormalizationMinMax,
		constants.NormalizationZScore, constants.NormalizationRobust:
		return &Scaler{Method: method}, nil
	default:
		return nil, errors.NewInvalidConfigError("normalization",
			fmt.Sprintf("unknown method %q", method))
	}
}

// Enabled reports whether the scaler changes its input.
func (s *Scaler) Enabled() bool {
	return s != nil && s.Method != constants.NormalizationNone
}

// Features returns the number of features the scaler was fitted on.
func (s *Scaler) Features() int {
	switch s.Method {
	case constants.NormalizationMinMax:
		return len(s.Min)
	case constants.NormalizationZScore:
		return len(s.Mean)
	case constants.NormalizationRobust:
		return len(s.Median)
	default:
		return 0
	}
}

// Fit computes the per-feature statistics of rows.
func (s *Scaler) Fit(rows []models.Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("cannot fit scaler on empty data")
	}
	if !s.Enabled() {
		s.Fitted = true
		return nil
	}

	width := len(rows[0])
	columns := make([][]float64, width)
	for j := range columns {
		columns[j] = make([]float64, len(rows))
	}
	for i, row := range rows {
		if len(row) != width {
			return errors.NewDimensionMismatchError(width, len(row))
		}
		for j, v := range row {
			columns[j][i] = v
		}
	}

	switch s.Method {
	case constants.NormalizationMinMax:
		s.Min = make([]float64, width)
		s.Max = make([]float64, width)
		for j, col := range columns {
			s.Min[j] = floats.Min(col)
			s.Max[j] = floats.Max(col)
		}

	case constants.NormalizationZScore:
		s.Mean = make([]float64, width)
		s.Std = make([]float64, width)
		for j, col := range columns {
			s.Mean[j] = stat.Mean(col, nil)
			s.Std[j] = stat.PopStdDev(col, nil)
		}

	case constants.NormalizationRobust:
		s.Median = make([]float64, width)
		s.Q25 = make([]float64, width)
		s.Q75 = make([]float64, width)
		for j, col := range columns {
			sort.Float64s(col)
			s.Median[j] = stat.Quantile(0.5, stat.Empirical, col, nil)
			s.Q25[j] = stat.Quantile(0.25, stat.Empirical, col, nil)
			s.Q75[j] = stat.Quantile(0.75, stat.Empirical, col, nil)
		}
	}

	s.Fitted = true
	return nil
}

// TransformRow returns a scaled copy of row. Rows are returned unchanged
// when the scaler is disabled or not fitted.
func (s *Scaler) TransformRow(row models.Row) (models.Row, error) {
	if !s.Enabled() || !s.Fitted {
		return row, nil
	}
	if len(row) != s.Features() {
		return nil, errors.NewDimensionMismatchError(s.Features(), len(row))
	}

	out := make(models.Row, len(row))
	for j, v := range row {
		switch s.Method {
		case constants.NormalizationMinMax:
			out[j] = (v - s.Min[j]) / nonZero(s.Max[j]-s.Min[j])
		case constants.NormalizationZScore:
			if s.Std[j] == 0 {
				out[j] = v - s.Mean[j]
			} else {
				out[j] = (v - s.Mean[j]) / s.Std[j]
			}
		case constants.NormalizationRobust:
			out[j] = (v - s.Median[j]) / nonZero(s.Q75[j]-s.Q25[j])
		}
	}
	return out, nil
}

// TransformWindow scales every row of w into a new window.
func (s *Scaler) TransformWindow(w models.Window) (models.Window, error) {
	if !s.Enabled() || !s.Fitted {
		return w, nil
	}
	out := make(models.Window, len(w))
	for i, row := range w {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}

func nonZero(scale float64) float64 {
	if scale == 0 {
		return 1
	}
	return scale
}
