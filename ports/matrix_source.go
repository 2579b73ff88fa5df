package ports

import "gonum.org/v1/gonum/mat"

// MatrixSource yields the numeric inputs of an analysis from some backing
// store (tabular files today).
type MatrixSource interface {
	// ReadMatrix reads a float matrix (data, design, or contrast).
	ReadMatrix() (*mat.Dense, error)

	// ReadIntMatrix reads signed integer rows (an exchangeability spec).
	ReadIntMatrix() ([][]int, error)

	// ReadIntVector reads a single integer column (blocks or variance groups).
	ReadIntVector() ([]int, error)
}
