package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raulfermoselle/ai-shopping-copilot-sub000/internal/errs"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PRUNE_MIN_CONFIDENCE", "")
	t.Setenv("ENHANCE_SENSITIVE_CATEGORIES", "")
	t.Setenv("ENHANCE_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.PruneMinConfidence)
	assert.True(t, cfg.PruneConservative)
	assert.Equal(t, []string{"baby", "pharmacy"}, cfg.EnhanceSensitiveCategories)
	assert.Equal(t, "json", cfg.HistoryBackend)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PRUNE_MIN_CONFIDENCE", "0.8")
	t.Setenv("PRUNE_CONSERVATIVE", "off")
	t.Setenv("ENHANCE_SENSITIVE_CATEGORIES", " Baby, pet ,")
	t.Setenv("ENHANCE_WORKERS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.PruneMinConfidence)
	assert.False(t, cfg.PruneConservative)
	assert.Equal(t, []string{"baby", "pet"}, cfg.EnhanceSensitiveCategories)
	assert.Equal(t, 3, cfg.EnhanceWorkers)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	cfg := Config{HistoryBackend: "json", PruneMinConfidence: 1.2, EnhanceWorkers: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))

	cfg = Config{HistoryBackend: "json", PruneMinConfidence: 0.7, EnhanceWorkers: 1, EnhanceEnabled: true}
	err = cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "missing_config", errs.CodeOf(err))

	cfg = Config{HistoryBackend: "csv", PruneMinConfidence: 0.7, EnhanceWorkers: 1}
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsNaN(t *testing.T) {
	t.Setenv("ENHANCE_UNCERTAINTY_THRESHOLD", "NaN")

	cfg, err := Load()
	require.NoError(t, err)
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
	assert.Contains(t, err.Error(), "ENHANCE_UNCERTAINTY_THRESHOLD")
}
