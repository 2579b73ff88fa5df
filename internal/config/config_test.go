package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permstat/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Empty(t, cfg.Database.URL)
	assert.Equal(t, 1000, cfg.Inference.NPermutations)
	assert.Equal(t, int64(42), cfg.Inference.Seed)
	assert.True(t, cfg.Inference.TwoTailed)
	assert.True(t, cfg.Inference.AccelTail)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DATABASE_URL", "postgres://localhost/permstat")
	t.Setenv("PERMSTAT_N_PERMUTATIONS", "250")
	t.Setenv("PERMSTAT_SEED", "7")
	t.Setenv("PERMSTAT_TWO_TAILED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres://localhost/permstat", cfg.Database.URL)
	assert.Equal(t, 250, cfg.Inference.NPermutations)
	assert.Equal(t, int64(7), cfg.Inference.Seed)
	assert.False(t, cfg.Inference.TwoTailed)
}

func TestLoadRejectsNonPositivePermutations(t *testing.T) {
	t.Setenv("PERMSTAT_N_PERMUTATIONS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeConfigInvalid))
}

func TestLoadIgnoresUnparseableValues(t *testing.T) {
	t.Setenv("PERMSTAT_N_PERMUTATIONS", "many")
	t.Setenv("PERMSTAT_TWO_TAILED", "kinda")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Inference.NPermutations)
	assert.True(t, cfg.Inference.TwoTailed)
}
