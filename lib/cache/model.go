package cache

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/ValentinKolb/sKV/lib/util"
)

// ridgeLambda is a small regularization term that keeps the normal
// equations solvable when features are collinear or constant.
const ridgeLambda = 1e-6

// scoreModel is a linear regressor over standardized access-pattern
// features. The output is a ranking signal for hot/cold decisions, not a
// calibrated probability.
type scoreModel struct {
	Means     [featureCount]float64
	Scales    [featureCount]float64
	Weights   [featureCount]float64
	Intercept float64
}

// fit standardizes the training rows and solves the regularized normal
// equations. It fails only when the linear system cannot be solved.
func (m *scoreModel) fit(rows [][featureCount]float64, labels []float64) error {
	if len(rows) == 0 || len(rows) != len(labels) {
		return store.NewError(store.RetCInternalError, "invalid training set")
	}

	// Fit the scaler: per-feature mean and population standard
	// deviation, with zero-variance features scaled by 1
	for j := 0; j < featureCount; j++ {
		column := make([]float64, len(rows))
		for i := range rows {
			column[i] = rows[i][j]
		}
		stats := util.NewStats(column)
		m.Means[j] = stats.Mean
		if stats.StdDeviation > 0 {
			m.Scales[j] = stats.StdDeviation
		} else {
			m.Scales[j] = 1
		}
	}

	// Accumulate the normal equations over [1, scaled features]
	const dim = featureCount + 1
	var ata [dim][dim]float64
	var aty [dim]float64

	for i := range rows {
		var a [dim]float64
		a[0] = 1
		for j := 0; j < featureCount; j++ {
			a[j+1] = (rows[i][j] - m.Means[j]) / m.Scales[j]
		}
		for r := 0; r < dim; r++ {
			for c := 0; c < dim; c++ {
				ata[r][c] += a[r] * a[c]
			}
			aty[r] += a[r] * labels[i]
		}
	}

	// Regularize everything but the intercept
	for j := 1; j < dim; j++ {
		ata[j][j] += ridgeLambda
	}

	beta, err := solveLinearSystem(ata, aty)
	if err != nil {
		return err
	}

	m.Intercept = beta[0]
	for j := 0; j < featureCount; j++ {
		m.Weights[j] = beta[j+1]
	}
	return nil
}

// predict scores one feature vector. The caller clamps the result.
func (m *scoreModel) predict(f [featureCount]float64) float64 {
	score := m.Intercept
	for j := 0; j < featureCount; j++ {
		score += m.Weights[j] * (f[j] - m.Means[j]) / m.Scales[j]
	}
	return score
}

// solveLinearSystem solves a*x = b by Gaussian elimination with partial
// pivoting.
func solveLinearSystem(a [featureCount + 1][featureCount + 1]float64, b [featureCount + 1]float64) ([featureCount + 1]float64, error) {
	const dim = featureCount + 1
	var x [featureCount + 1]float64

	for col := 0; col < dim; col++ {
		// Pivot on the largest remaining entry in this column
		pivot := col
		for row := col + 1; row < dim; row++ {
			if math.Abs(a[row][col]) > math.Abs(a[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return x, store.NewError(store.RetCInternalError, "training matrix is singular")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]

		for row := col + 1; row < dim; row++ {
			factor := a[row][col] / a[col][col]
			for c := col; c < dim; c++ {
				a[row][c] -= factor * a[col][c]
			}
			b[row] -= factor * b[col]
		}
	}

	for row := dim - 1; row >= 0; row-- {
		sum := b[row]
		for c := row + 1; c < dim; c++ {
			sum -= a[row][c] * x[c]
		}
		x[row] = sum / a[row][row]
	}
	return x, nil
}

// --------------------------------------------------------------------------
// Model persistence
// --------------------------------------------------------------------------

// modelFile is the on-disk representation of a fitted model.
type modelFile struct {
	Trained   bool      `json:"trained"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// saveModel writes the fitted model to path atomically.
func saveModel(path string, m *scoreModel) error {
	return util.WriteFileAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(modelFile{
			Trained:   true,
			Means:     m.Means[:],
			Scales:    m.Scales[:],
			Weights:   m.Weights[:],
			Intercept: m.Intercept,
		})
	})
}

// loadModel reads a previously saved model. A missing file is reported
// via found=false, an unreadable or malformed file as an error.
func loadModel(path string) (*scoreModel, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, store.Errorf(store.RetCResource, "reading model file: %v", err)
	}

	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, false, store.Errorf(store.RetCCorrupted, "decoding model file: %v", err)
	}
	if !mf.Trained || len(mf.Means) != featureCount || len(mf.Scales) != featureCount || len(mf.Weights) != featureCount {
		return nil, false, store.NewError(store.RetCCorrupted, "model file has unexpected shape")
	}

	m := &scoreModel{Intercept: mf.Intercept}
	copy(m.Means[:], mf.Means)
	copy(m.Scales[:], mf.Scales)
	copy(m.Weights[:], mf.Weights)

	for j := 0; j < featureCount; j++ {
		if m.Scales[j] == 0 {
			return nil, false, store.NewError(store.RetCCorrupted, "model file has zero feature scale")
		}
	}
	return m, true, nil
}
