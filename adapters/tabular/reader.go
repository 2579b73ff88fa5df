// Package tabular loads the engine's numeric inputs from delimited files:
// data, design, and contrast matrices plus exchangeability-block and
// variance-group vectors. Both CSV and XLSX (first sheet) are supported.
package tabular

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/mat"

	"permstat/internal/errors"
)

// MatrixReader reads one file into a matrix or vector.
type MatrixReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
}

// NewMatrixReader picks the file type from the extension; anything that is
// not .xlsx is read as CSV.
func NewMatrixReader(filePath string) *MatrixReader {
	fileType := "csv"
	if strings.ToLower(filepath.Ext(filePath)) == ".xlsx" {
		fileType = "xlsx"
	}
	return &MatrixReader{filePath: filePath, fileType: fileType}
}

// ReadMatrix reads the file as an n x m float matrix. A first row with any
// non-numeric cell is treated as a header and skipped.
func (r *MatrixReader) ReadMatrix() (*mat.Dense, error) {
	rows, err := r.readCells()
	if err != nil {
		return nil, err
	}
	rows = skipHeader(rows)
	if len(rows) == 0 {
		return nil, errors.InsufficientInput("%s contains no data rows", r.filePath)
	}

	m := len(rows[0])
	out := mat.NewDense(len(rows), m, nil)
	for i, row := range rows {
		if len(row) != m {
			return nil, errors.ShapeMismatch(
				"%s: row %d has %d cells, expected %d", r.filePath, i+1, len(row), m)
		}
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: row %d, column %d", r.filePath, i+1, j+1)
			}
			out.Set(i, j, v)
		}
	}
	return out, nil
}

// ReadIntMatrix reads the file as signed integer rows, the shape of a
// multi-level exchangeability-block specification.
func (r *MatrixReader) ReadIntMatrix() ([][]int, error) {
	rows, err := r.readCells()
	if err != nil {
		return nil, err
	}
	rows = skipHeader(rows)
	if len(rows) == 0 {
		return nil, errors.InsufficientInput("%s contains no data rows", r.filePath)
	}

	out := make([][]int, len(rows))
	for i, row := range rows {
		out[i] = make([]int, len(row))
		for j, cell := range row {
			v, err := strconv.Atoi(strings.TrimSpace(cell))
			if err != nil {
				return nil, errors.Wrapf(err, "%s: row %d, column %d", r.filePath, i+1, j+1)
			}
			out[i][j] = v
		}
	}
	return out, nil
}

// ReadIntVector reads a single-column file of integers, e.g. a flat block
// vector or a variance-group vector.
func (r *MatrixReader) ReadIntVector() ([]int, error) {
	rows, err := r.ReadIntMatrix()
	if err != nil {
		return nil, err
	}
	out := make([]int, len(rows))
	for i, row := range rows {
		if len(row) != 1 {
			return nil, errors.ShapeMismatch(
				"%s: row %d has %d columns, expected a single-column vector", r.filePath, i+1, len(row))
		}
		out[i] = row[0]
	}
	return out, nil
}

func (r *MatrixReader) readCells() ([][]string, error) {
	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.Newf(errors.CodeNotFound, "file not found: %s", r.filePath)
	}
	if r.fileType == "xlsx" {
		return r.readXLSX()
	}
	return r.readCSV()
}

func (r *MatrixReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", r.filePath)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", r.filePath)
	}
	return rows, nil
}

func (r *MatrixReader) readXLSX() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", r.filePath)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.InsufficientInput("%s has no sheets", r.filePath)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, errors.Wrapf(err, "read sheet %q of %s", sheets[0], r.filePath)
	}
	return rows, nil
}

// skipHeader drops the first row when any of its cells fails to parse as a
// number.
func skipHeader(rows [][]string) [][]string {
	if len(rows) == 0 {
		return rows
	}
	for _, cell := range rows[0] {
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err != nil {
			return rows[1:]
		}
	}
	return rows
}
