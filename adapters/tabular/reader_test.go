package tabular

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permstat/domain/glm"
	"permstat/internal/errors"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadMatrix(t *testing.T) {
	t.Run("plain numeric rows", func(t *testing.T) {
		path := writeTempCSV(t, "1,2.5\n3,-4\n")
		m, err := NewMatrixReader(path).ReadMatrix()
		require.NoError(t, err)
		r, c := m.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 2, c)
		assert.Equal(t, 2.5, m.At(0, 1))
		assert.Equal(t, -4.0, m.At(1, 1))
	})

	t.Run("header row skipped", func(t *testing.T) {
		path := writeTempCSV(t, "voxel_a,voxel_b\n1,2\n3,4\n")
		m, err := NewMatrixReader(path).ReadMatrix()
		require.NoError(t, err)
		r, _ := m.Dims()
		assert.Equal(t, 2, r)
		assert.Equal(t, 1.0, m.At(0, 0))
	})

	t.Run("ragged rows rejected", func(t *testing.T) {
		// csv.Reader itself flags inconsistent field counts.
		path := writeTempCSV(t, "1,2\n3\n")
		_, err := NewMatrixReader(path).ReadMatrix()
		require.Error(t, err)
	})

	t.Run("non-numeric body cell rejected", func(t *testing.T) {
		path := writeTempCSV(t, "1,2\n3,oops\n")
		_, err := NewMatrixReader(path).ReadMatrix()
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := NewMatrixReader(filepath.Join(t.TempDir(), "absent.csv")).ReadMatrix()
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})

	t.Run("header only is insufficient", func(t *testing.T) {
		path := writeTempCSV(t, "a,b\n")
		_, err := NewMatrixReader(path).ReadMatrix()
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeInsufficientInput))
	})
}

func TestReadIntMatrix(t *testing.T) {
	path := writeTempCSV(t, "1,-2\n1,-2\n2,3\n")
	rows, err := NewMatrixReader(path).ReadIntMatrix()
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, -2}, {1, -2}, {2, 3}}, rows)
}

func TestReadIntVector(t *testing.T) {
	t.Run("single column", func(t *testing.T) {
		path := writeTempCSV(t, "1\n1\n2\n2\n")
		v, err := NewMatrixReader(path).ReadIntVector()
		require.NoError(t, err)
		assert.Equal(t, []int{1, 1, 2, 2}, v)
	})

	t.Run("multi-column rejected", func(t *testing.T) {
		path := writeTempCSV(t, "1,2\n3,4\n")
		_, err := NewMatrixReader(path).ReadIntVector()
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeShapeMismatch))
	})
}

func TestWriteBundleCSVRoundTrip(t *testing.T) {
	bundle := glm.ResultBundle{
		"stat_c1":       {1.5, -2.25},
		"stat_uncp_c1":  {0.25, 0.5},
		"max_stat_dist": {3, 2, 1, 4},
	}
	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteBundleCSV(path, bundle))

	m, err := NewMatrixReader(path).ReadMatrix()
	require.Error(t, err, "padded cells are empty, not numeric")
	assert.Nil(t, m)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(raw)
	// Header carries sorted keys; long columns set the row count.
	assert.Contains(t, content, "max_stat_dist,stat_c1,stat_uncp_c1")
	assert.Contains(t, content, "3,1.5,0.25")
	assert.Contains(t, content, "4,,")
}

func TestBundleSummaryRows(t *testing.T) {
	bundle := glm.ResultBundle{
		"stat_c1":          {1, 2, 3},
		"stat_uncp_c1":     {0.1, 0.2, 0.3},
		"max_stat_dist_c1": {9, 9, 9, 9, 9},
		glm.GlobalMaxKey:   {8, 8, 8, 8, 8},
	}

	header, rows := BundleSummaryRows(bundle, 2)
	assert.Equal(t, []string{"feature", "stat_c1", "stat_uncp_c1"}, header)
	require.Len(t, rows, 2, "distribution keys must not set the row count")
	assert.Equal(t, []string{"1", "1", "0.1"}, rows[0])
	assert.Equal(t, []string{"2", "2", "0.2"}, rows[1])

	_, all := BundleSummaryRows(bundle, 0)
	assert.Len(t, all, 3)
}
