package run

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permstat/internal/errors"
)

func TestManifestLifecycle(t *testing.T) {
	m := NewManifest(500, 42, "t")
	assert.NotEqual(t, uuid.Nil, m.ID)
	assert.Equal(t, StatePending, m.State)

	m.Start()
	assert.Equal(t, StateRunning, m.State)
	assert.Nil(t, m.CompletedAt)

	m.Complete()
	assert.Equal(t, StateComplete, m.State)
	require.NotNil(t, m.CompletedAt)
	assert.GreaterOrEqual(t, m.ElapsedMS, int64(0))
}

func TestManifestFail(t *testing.T) {
	m := NewManifest(10, 1, "t")
	m.Start()
	m.Fail(assert.AnError)
	assert.Equal(t, StateError, m.State)
	assert.Equal(t, assert.AnError.Error(), m.Error)
	require.NotNil(t, m.CompletedAt)
}

func TestManifestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, NewManifest(10, 1, "t").Validate())
	})

	t.Run("missing ID", func(t *testing.T) {
		m := NewManifest(10, 1, "t")
		m.ID = uuid.Nil
		err := m.Validate()
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})

	t.Run("non-positive permutations", func(t *testing.T) {
		err := NewManifest(0, 1, "t").Validate()
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})

	t.Run("missing statistic name", func(t *testing.T) {
		err := NewManifest(10, 1, "").Validate()
		assert.True(t, errors.IsCode(err, errors.CodeInvalidParameter))
	})
}
