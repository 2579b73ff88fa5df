package main

import (
	"os"

	"github.com/spf13/cobra"

	"permstat/internal"
)

var logger = internal.NewDefaultLogger()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "permstat",
		Short: "Permutation inference for general linear models",
		Long: `Permstat runs permutation-based significance testing on numeric data
matrices: exchangeability-block constrained permutation, sign flipping,
uncorrected and FDR/FWE-corrected p-values, and accelerated tail
approximation for small permutation counts.

Inputs are CSV or XLSX matrices: a data matrix (observations x features),
a design matrix (observations x regressors) and a contrast matrix
(hypotheses x regressors).`,
	}
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
