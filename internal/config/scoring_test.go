package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultScoringWeightsSumToOne(t *testing.T) {
	weights := DefaultScoringWeights()

	require.NoError(t, weights.Validate())
	assert.InDelta(t, 1.0, weights.Sum(), weightSumTolerance)
}

func TestScoringWeightsValidateRejectsBadSum(t *testing.T) {
	weights := ScoringWeights{Certificate: 0.5, WorkOrder: 0.3}

	require.ErrorIs(t, weights.Validate(), ErrWeightSum)
}

func TestLoadScoringFileMissingPathUsesDefaults(t *testing.T) {
	file, err := LoadScoringFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultScoringWeights(), file.Weights)

	file, err = LoadScoringFile("/nonexistent/scoring.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultScoringWeights(), file.Weights)
}

func TestLoadScoringFileParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")

	content := `
weights:
  certificate: 0.30
  workorder: 0.20
  branding: 0.10
  mileage: 0.15
  cleaning: 0.15
  stabling: 0.10
bus_policies:
  optimization.progress: drop_oldest
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	file, err := LoadScoringFile(path)
	require.NoError(t, err)

	assert.Equal(t, 0.30, file.Weights.Certificate)
	assert.Equal(t, 0.10, file.Weights.Branding)
	assert.Equal(t, "drop_oldest", file.Policies["optimization.progress"])
}

func TestLoadScoringFileRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")

	content := `
weights:
  certificate: 0.9
  workorder: 0.9
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := LoadScoringFile(path)
	require.ErrorIs(t, err, ErrWeightSum)
}

func TestLoadScoringFileRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")

	require.NoError(t, os.WriteFile(path, []byte("weights: ["), 0o600))

	_, err := LoadScoringFile(path)
	require.Error(t, err)
}
