package main

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"permstat/adapters/stats"
	"permstat/adapters/tabular"
	"permstat/app"
	"permstat/domain/glm"
	"permstat/internal/errors"
	"permstat/internal/inference"
	"permstat/internal/report"
	"permstat/ports"
)

var runFlags struct {
	dataFile     string
	designFile   string
	contrastFile string
	blocksFile   string
	vg           string

	nPerms int
	seed   int64

	within    bool
	whole     bool
	flipSigns bool
	oneTailed bool
	accelTail bool
	corrCon   bool

	fCon  string
	fOnly bool

	outFile string
	alpha   float64
}

// runCmd represents the run command.
var runCmd = newRunCmd()

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a permutation analysis on one dataset",
		Long: `Run permutation inference on a data/design/contrast triple. Exchangeability
blocks restrict the permutation space; variance groups switch the statistic
to its heteroscedastic form (Aspin-Welch v, or G for F-like tests).`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runAnalysis()
		},
	}

	cmd.Flags().StringVarP(&runFlags.dataFile, "input", "i", "", "data matrix file, observations x features (required)")
	cmd.Flags().StringVarP(&runFlags.designFile, "design", "d", "", "design matrix file, observations x regressors (required)")
	cmd.Flags().StringVarP(&runFlags.contrastFile, "contrast", "t", "", "contrast matrix file, hypotheses x regressors (required)")
	cmd.Flags().StringVar(&runFlags.blocksFile, "eb", "", "exchangeability block file (flat vector or one column per level)")
	cmd.Flags().StringVar(&runFlags.vg, "vg", "", "variance groups: 'auto' to derive from blocks, or a vector file")
	cmd.Flags().IntVarP(&runFlags.nPerms, "nperm", "n", 1000, "number of permutations")
	cmd.Flags().Int64Var(&runFlags.seed, "seed", 42, "random seed")
	cmd.Flags().BoolVar(&runFlags.within, "within", true, "permute within blocks (flat specs)")
	cmd.Flags().BoolVar(&runFlags.whole, "whole", false, "permute whole blocks as units (flat specs)")
	cmd.Flags().BoolVar(&runFlags.flipSigns, "ise", false, "assume independent symmetric errors: random sign flipping")
	cmd.Flags().BoolVar(&runFlags.oneTailed, "onetail", false, "one-tailed test (default is two-tailed)")
	cmd.Flags().BoolVar(&runFlags.accelTail, "accel", true, "accelerated tail approximation for FWE p-values")
	cmd.Flags().BoolVar(&runFlags.corrCon, "corrcon", false, "FWE correction across contrasts")
	cmd.Flags().StringVar(&runFlags.fCon, "fcon", "", "comma-separated 1-based contrast rows pooled into an F-test")
	cmd.Flags().BoolVar(&runFlags.fOnly, "fonly", false, "run only the F-test")
	cmd.Flags().StringVarP(&runFlags.outFile, "out", "o", "", "write the full result bundle to this CSV file")
	cmd.Flags().Float64Var(&runFlags.alpha, "alpha", report.DefaultAlpha, "significance level for the printed summary")

	cmd.MarkFlagRequired("input")
	cmd.MarkFlagRequired("design")
	cmd.MarkFlagRequired("contrast")
	return cmd
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAnalysis() error {
	data, err := readMatrix(runFlags.dataFile)
	if err != nil {
		return err
	}
	design, err := readMatrix(runFlags.designFile)
	if err != nil {
		return err
	}
	contrast, err := readContrast(runFlags.contrastFile)
	if err != nil {
		return err
	}
	blocks, err := readBlocks(runFlags.blocksFile)
	if err != nil {
		return err
	}

	vgAuto := false
	var vgVector []int
	switch {
	case runFlags.vg == "":
	case strings.EqualFold(runFlags.vg, "auto"):
		vgAuto = true
	default:
		vgVector, err = tabular.NewMatrixReader(runFlags.vg).ReadIntVector()
		if err != nil {
			return err
		}
	}
	useVG := vgAuto || vgVector != nil

	fMask, err := parseFContrastMask(runFlags.fCon, contrast.NRows())
	if err != nil {
		return err
	}

	statName := "t"
	if useVG {
		statName = "aspin-welch-v"
	}
	service := app.NewAnalysisService(nil, logger)
	manifest, bundle, err := service.Execute(context.Background(), app.AnalysisRequest{
		Data:     data,
		Design:   design,
		Contrast: contrast,
		StatName: statName,
		Config: inference.Config{
			NPermutations:          runFlags.nPerms,
			Seed:                   runFlags.seed,
			TwoTailed:              !runFlags.oneTailed,
			Blocks:                 blocks,
			Within:                 runFlags.within,
			Whole:                  runFlags.whole,
			FlipSigns:              runFlags.flipSigns,
			VGAuto:                 vgAuto,
			VGVector:               vgVector,
			AccelTail:              runFlags.accelTail,
			CorrectAcrossContrasts: runFlags.corrCon,
			FContrastMask:          fMask,
			FOnly:                  runFlags.fOnly,
			Stat:                   stats.Auto(useVG),
			FStat:                  stats.AutoF(useVG),
			Logger:                 logger,
		},
	})
	if err != nil {
		return err
	}

	printBundleTable(bundle)
	os.Stdout.WriteString("\n" + report.Markdown(manifest, bundle, runFlags.alpha))

	if runFlags.outFile != "" {
		if err := tabular.WriteBundleCSV(runFlags.outFile, bundle); err != nil {
			return err
		}
		logger.Info("results written to %s", runFlags.outFile)
	}
	return nil
}

func readMatrix(path string) (*mat.Dense, error) {
	var src ports.MatrixSource = tabular.NewMatrixReader(path)
	return src.ReadMatrix()
}

func readContrast(path string) (glm.Contrast, error) {
	m, err := readMatrix(path)
	if err != nil {
		return glm.Contrast{}, err
	}
	k, p := m.Dims()
	rows := make([][]float64, k)
	for i := 0; i < k; i++ {
		rows[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			rows[i][j] = m.At(i, j)
		}
	}
	return glm.NewContrast(rows)
}

func readBlocks(path string) (glm.BlockSpec, error) {
	if path == "" {
		return glm.BlockSpec{}, nil
	}
	var src ports.MatrixSource = tabular.NewMatrixReader(path)
	rows, err := src.ReadIntMatrix()
	if err != nil {
		return glm.BlockSpec{}, err
	}
	return glm.NewBlockMatrix(rows)
}

// parseFContrastMask converts "1,3" into a boolean row mask.
func parseFContrastMask(s string, nContrasts int) ([]bool, error) {
	if s == "" {
		return nil, nil
	}
	mask := make([]bool, nContrasts)
	for _, part := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.InvalidParameter("invalid F-contrast index %q", part)
		}
		if idx < 1 || idx > nContrasts {
			return nil, errors.InvalidParameter(
				"F-contrast index %d out of range [1, %d]", idx, nContrasts)
		}
		mask[idx-1] = true
	}
	return mask, nil
}

func printBundleTable(bundle glm.ResultBundle) {
	header, rows := tabular.BundleSummaryRows(bundle, 25)
	if len(rows) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
	if len(rows) == 25 {
		logger.Info("summary truncated to the first 25 features; use --out for the full bundle")
	}
}
