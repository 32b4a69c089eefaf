package cache

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trainingSet builds a linearly separable synthetic set: rows that look
// like frequently accessed keys (many short intervals) are labeled 1.0,
// rows that look like rarely accessed keys 0.5.
func trainingSet() (rows [][featureCount]float64, labels []float64) {
	for i := 0; i < 30; i++ {
		v := float64(i)
		rows = append(rows, [featureCount]float64{
			60 + math.Mod(v*7, 13),
			0.5 + math.Mod(v*3, 5)/10,
			math.Mod(v*11, 7) / 20,
			0.5 + math.Mod(v*5, 9)/10,
		})
		labels = append(labels, 1.0)
	}
	for i := 0; i < 30; i++ {
		v := float64(i)
		rows = append(rows, [featureCount]float64{
			5 + math.Mod(v*7, 13),
			30 + math.Mod(v*3, 5),
			math.Mod(v*11, 7) / 2,
			30 + math.Mod(v*5, 9),
		})
		labels = append(labels, 0.5)
	}
	return rows, labels
}

func TestModelSeparatesHotFromCold(t *testing.T) {
	rows, labels := trainingSet()

	model := &scoreModel{}
	require.NoError(t, model.fit(rows, labels))

	hot := model.predict([featureCount]float64{65, 0.7, 0.1, 0.7})
	cold := model.predict([featureCount]float64{8, 32, 1.5, 32})
	assert.Greater(t, hot, cold)

	// in-sample predictions should sit near their labels
	for i, row := range rows {
		p := model.predict(row)
		if labels[i] == 1.0 {
			assert.Greater(t, p, 0.75, "row %d", i)
		} else {
			assert.Less(t, p, 0.75, "row %d", i)
		}
	}
}

func TestModelDegenerateVarianceFallsBackToMeanLabel(t *testing.T) {
	rows := make([][featureCount]float64, 12)
	labels := make([]float64, 12)
	for i := range rows {
		rows[i] = [featureCount]float64{10, 2, 0.5, 2}
		labels[i] = 0.5
	}

	model := &scoreModel{}
	require.NoError(t, model.fit(rows, labels))

	assert.InDelta(t, 0.5, model.predict([featureCount]float64{10, 2, 0.5, 2}), 1e-6)
	for j := 0; j < featureCount; j++ {
		assert.Equal(t, 1.0, model.Scales[j], "feature %d", j)
	}
}

func TestModelFitRejectsInvalidSets(t *testing.T) {
	model := &scoreModel{}

	err := model.fit(nil, nil)
	require.Error(t, err)
	assert.Equal(t, store.RetCInternalError, store.CodeOf(err))

	err = model.fit([][featureCount]float64{{1, 2, 3, 4}}, []float64{1, 1})
	require.Error(t, err)
}

func TestModelPersistenceRoundTrip(t *testing.T) {
	rows, labels := trainingSet()
	model := &scoreModel{}
	require.NoError(t, model.fit(rows, labels))

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, saveModel(path, model))

	loaded, found, err := loadModel(path)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, model, loaded)
}

func TestModelLoadMissingFile(t *testing.T) {
	model, found, err := loadModel(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, model)
}

func TestModelLoadRejectsCorruptFiles(t *testing.T) {
	dir := t.TempDir()

	for name, content := range map[string]string{
		"garbage":    "not json at all",
		"wrongShape": `{"trained":true,"means":[1,2],"scales":[1,1],"weights":[0,0],"intercept":0}`,
		"untrained":  `{"trained":false,"means":[0,0,0,0],"scales":[1,1,1,1],"weights":[0,0,0,0],"intercept":0}`,
		"zeroScale":  `{"trained":true,"means":[0,0,0,0],"scales":[1,0,1,1],"weights":[0,0,0,0],"intercept":0}`,
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".json")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

			_, _, err := loadModel(path)
			require.Error(t, err)
			assert.Equal(t, store.RetCCorrupted, store.CodeOf(err))
		})
	}
}
