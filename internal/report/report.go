// Package report renders a run summary as markdown and HTML.
package report

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"permstat/domain/glm"
	"permstat/domain/run"
)

// DefaultAlpha is the significance level used by report summaries.
const DefaultAlpha = 0.05

// Markdown renders a run manifest and its result bundle as a markdown
// summary: the run parameters and, per contrast, the number of features
// significant at alpha under each correction.
func Markdown(m *run.Manifest, bundle glm.ResultBundle, alpha float64) string {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	var b strings.Builder

	fmt.Fprintf(&b, "# Permutation run %s\n\n", m.ID)
	fmt.Fprintf(&b, "- State: %s\n", m.State)
	fmt.Fprintf(&b, "- Statistic: %s\n", m.StatName)
	fmt.Fprintf(&b, "- Permutations: %d (seed %d)\n", m.NPermutations, m.Seed)
	fmt.Fprintf(&b, "- Samples: %d, features: %d, contrasts: %d\n", m.NSamples, m.NFeatures, m.NContrasts)
	fmt.Fprintf(&b, "- Two-tailed: %t, sign flipping: %t, accelerated tail: %t\n",
		m.TwoTailed, m.FlipSigns, m.AccelTail)
	if m.ElapsedMS > 0 {
		fmt.Fprintf(&b, "- Elapsed: %dms\n", m.ElapsedMS)
	}
	if m.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", m.Error)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "## Significant features (alpha = %g)\n\n", alpha)
	b.WriteString("| Contrast | Uncorrected | FDR | FWE | Cross-contrast FWE |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for i := 1; i <= m.NContrasts; i++ {
		if _, ok := bundle[glm.UncPKey(i)]; !ok {
			continue
		}
		fmt.Fprintf(&b, "| c%d | %d | %d | %d | %s |\n", i,
			countBelow(bundle[glm.UncPKey(i)], alpha),
			countBelow(bundle[glm.FDRPKey(i)], alpha),
			countBelow(bundle[glm.FWEPKey(i)], alpha),
			optionalCount(bundle, glm.CFWEPKey(i), alpha))
	}
	if _, ok := bundle[glm.FUncPKey]; ok {
		fmt.Fprintf(&b, "| F | %d | %d | %d | n/a |\n",
			countBelow(bundle[glm.FUncPKey], alpha),
			countBelow(bundle[glm.FFDRPKey], alpha),
			countBelow(bundle[glm.FFWEPKey], alpha))
	}
	b.WriteString("\n")

	if _, ok := bundle[glm.GlobalMaxKey]; ok {
		b.WriteString("Cross-contrast FWE used a pooled max-statistic null sample.\n")
	}
	return b.String()
}

// HTML renders markdown to a standalone HTML fragment.
func HTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func countBelow(p []float64, alpha float64) int {
	n := 0
	for _, v := range p {
		if v < alpha {
			n++
		}
	}
	return n
}

func optionalCount(bundle glm.ResultBundle, key string, alpha float64) string {
	p, ok := bundle[key]
	if !ok {
		return "n/a"
	}
	return fmt.Sprintf("%d", countBelow(p, alpha))
}
