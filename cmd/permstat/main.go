// Command permstat runs permutation inference for general linear models from
// tabular inputs, compares statistic maps across datasets, and serves the
// HTTP API.
package main

func main() {
	Execute()
}
