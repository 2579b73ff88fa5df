package tabular

import (
	"encoding/csv"
	"os"
	"sort"
	"strconv"
	"strings"

	"permstat/domain/glm"
	"permstat/internal/errors"
)

// WriteBundleCSV writes a result bundle as CSV, one column per result key in
// sorted order, one row per feature. Null-distribution samples are longer
// than the feature maps; shorter columns are padded with empty cells.
func WriteBundleCSV(path string, bundle glm.ResultBundle) error {
	keys := make([]string, 0, len(bundle))
	for k := range bundle {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	nRows := 0
	for _, k := range keys {
		if len(bundle[k]) > nRows {
			nRows = len(bundle[k])
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(keys); err != nil {
		return errors.Wrapf(err, "write header to %s", path)
	}
	record := make([]string, len(keys))
	for i := 0; i < nRows; i++ {
		for j, k := range keys {
			col := bundle[k]
			if i < len(col) {
				record[j] = strconv.FormatFloat(col[i], 'g', -1, 64)
			} else {
				record[j] = ""
			}
		}
		if err := w.Write(record); err != nil {
			return errors.Wrapf(err, "write row %d to %s", i+1, path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "flush %s", path)
	}
	return nil
}

// BundleSummaryRows renders the per-feature result keys of a bundle into
// display rows (feature index followed by one cell per key), suitable for a
// table writer. Distribution keys are skipped.
func BundleSummaryRows(bundle glm.ResultBundle, maxFeatures int) (header []string, rows [][]string) {
	keys := make([]string, 0, len(bundle))
	for k := range bundle {
		if strings.HasPrefix(k, "max_stat_dist") || k == glm.GlobalMaxKey {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	n := 0
	for _, k := range keys {
		if len(bundle[k]) > n {
			n = len(bundle[k])
		}
	}
	if maxFeatures > 0 && n > maxFeatures {
		n = maxFeatures
	}

	header = append([]string{"feature"}, keys...)
	for i := 0; i < n; i++ {
		row := make([]string, 0, len(keys)+1)
		row = append(row, strconv.Itoa(i+1))
		for _, k := range keys {
			col := bundle[k]
			if i < len(col) {
				row = append(row, strconv.FormatFloat(col[i], 'g', 4, 64))
			} else {
				row = append(row, "")
			}
		}
		rows = append(rows, row)
	}
	return header, rows
}
