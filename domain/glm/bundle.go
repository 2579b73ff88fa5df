package glm

import "fmt"

// ResultBundle maps named quantities to per-feature (or per-permutation, for
// max-stat samples) arrays. One set of keys exists per tested contrast plus
// one for any F-test. The bundle is owned by the caller.
type ResultBundle map[string][]float64

// Recognized key builders. Contrast numbering is 1-based in keys.

// StatKey names the observed statistic for contrast c (1-based).
func StatKey(c int) string { return fmt.Sprintf("stat_c%d", c) }

// UncPKey names the uncorrected p-values for contrast c.
func UncPKey(c int) string { return fmt.Sprintf("stat_uncp_c%d", c) }

// FDRPKey names the FDR-corrected p-values for contrast c.
func FDRPKey(c int) string { return fmt.Sprintf("stat_fdrp_c%d", c) }

// FWEPKey names the FWE-corrected p-values for contrast c.
func FWEPKey(c int) string { return fmt.Sprintf("stat_fwep_c%d", c) }

// CFWEPKey names the cross-contrast FWE-corrected p-values for contrast c.
func CFWEPKey(c int) string { return fmt.Sprintf("stat_cfwep_c%d", c) }

// MaxStatKey names the max-statistic null sample for contrast c.
func MaxStatKey(c int) string { return fmt.Sprintf("max_stat_dist_c%d", c) }

// F-test analogues and the pooled cross-contrast null sample.
const (
	FStatKey     = "stat_f"
	FUncPKey     = "stat_uncp_f"
	FFDRPKey     = "stat_fdrp_f"
	FFWEPKey     = "stat_fwep_f"
	FMaxStatKey  = "max_stat_dist_f"
	GlobalMaxKey = "global_max_stat_dist"
)

// Merge copies all entries of other into b.
func (b ResultBundle) Merge(other ResultBundle) {
	for k, v := range other {
		b[k] = v
	}
}
