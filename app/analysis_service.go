// Package app wires the inference engine to its collaborators: it runs
// analyses, records run manifests, and persists results when a repository is
// configured.
package app

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
	"permstat/domain/run"
	"permstat/internal"
	"permstat/internal/errors"
	"permstat/internal/inference"
	"permstat/ports"
)

// AnalysisService orchestrates permutation analyses. A nil repository
// disables persistence; everything still runs in memory.
type AnalysisService struct {
	repo ports.RunRepository
	log  *internal.Logger
}

// NewAnalysisService creates the service.
func NewAnalysisService(repo ports.RunRepository, log *internal.Logger) *AnalysisService {
	if log == nil {
		log = internal.NewDefaultLogger()
	}
	return &AnalysisService{repo: repo, log: log}
}

// AnalysisRequest bundles one analysis: the input matrices plus the engine
// configuration. StatName labels the run manifest.
type AnalysisRequest struct {
	Data     *mat.Dense
	Design   *mat.Dense
	Contrast glm.Contrast

	Config   inference.Config
	StatName string
}

// Execute runs the analysis and returns the run manifest together with the
// result bundle. Contrast rows are independent given their offset seeds, so
// they run concurrently through an errgroup; the output is identical to a
// sequential run. When a progress callback is set, execution is serialized
// so the callback observes permutations in order.
func (s *AnalysisService) Execute(ctx context.Context, req AnalysisRequest) (*run.Manifest, glm.ResultBundle, error) {
	manifest := run.NewManifest(req.Config.NPermutations, req.Config.Seed, req.StatName)
	nSamples, nFeatures := req.Data.Dims()
	manifest.NSamples = nSamples
	manifest.NFeatures = nFeatures
	manifest.NContrasts = req.Contrast.NRows()
	manifest.TwoTailed = req.Config.TwoTailed
	manifest.FlipSigns = req.Config.FlipSigns
	manifest.AccelTail = req.Config.AccelTail
	manifest.CorrectAcrossContrasts = req.Config.CorrectAcrossContrasts
	manifest.Start()

	if s.repo != nil {
		if err := s.repo.SaveManifest(ctx, manifest); err != nil {
			return nil, nil, err
		}
	}

	bundle, err := s.execute(ctx, req)
	if err != nil {
		manifest.Fail(err)
		s.persistManifest(ctx, manifest)
		return manifest, nil, err
	}

	manifest.Complete()
	s.persistManifest(ctx, manifest)
	if s.repo != nil {
		if err := s.repo.SaveResults(ctx, manifest.ID, bundle); err != nil {
			return manifest, bundle, err
		}
	}
	s.log.Info("run %s complete: %d contrasts, %d permutations, %dms",
		manifest.ID, manifest.NContrasts, manifest.NPermutations, manifest.ElapsedMS)
	return manifest, bundle, nil
}

func (s *AnalysisService) execute(ctx context.Context, req AnalysisRequest) (glm.ResultBundle, error) {
	results := glm.ResultBundle{}
	nContrasts := req.Contrast.NRows()

	if !req.Config.FOnly {
		bundles := make([]glm.ResultBundle, nContrasts)

		g, gctx := errgroup.WithContext(ctx)
		if req.Config.Callback != nil {
			g.SetLimit(1)
		}
		for i := 0; i < nContrasts; i++ {
			i := i
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				cfg := req.Config
				// Per-contrast seed offset matches the engine's own
				// sequencing, so results are draw-for-draw identical.
				cfg.Seed = req.Config.Seed + int64(i)
				cfg.CorrectAcrossContrasts = false
				cfg.FContrastMask = nil
				cfg.FOnly = false
				b, err := inference.Run(cfg, req.Data, req.Design, req.Contrast.RowContrast(i))
				if err != nil {
					return errors.Wrapf(err, "contrast %d", i+1)
				}
				bundles[i] = rekeyContrast(b, i+1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, b := range bundles {
			results.Merge(b)
		}

		if req.Config.CorrectAcrossContrasts {
			if nContrasts < 2 {
				s.log.Warn("cross-contrast correction requested with a single contrast; skipping")
			} else {
				var pooled []float64
				for i := 1; i <= nContrasts; i++ {
					pooled = inference.PoolMaxStat(pooled, results[glm.MaxStatKey(i)], req.Config.TwoTailed)
				}
				results[glm.GlobalMaxKey] = pooled
				for i := 1; i <= nContrasts; i++ {
					results[glm.CFWEPKey(i)] = inference.MaxStatPValues(
						results[glm.StatKey(i)], pooled, req.Config.TwoTailed, req.Config.AccelTail)
				}
			}
		}
	}

	if req.Config.FContrastMask != nil || req.Config.FOnly {
		cfg := req.Config
		cfg.CorrectAcrossContrasts = false
		cfg.FOnly = true
		fBundle, err := inference.Run(cfg, req.Data, req.Design, req.Contrast)
		if err != nil {
			return nil, errors.Wrap(err, "F-test")
		}
		results.Merge(fBundle)
	}
	return results, nil
}

func (s *AnalysisService) persistManifest(ctx context.Context, m *run.Manifest) {
	if s.repo == nil {
		return
	}
	if err := s.repo.UpdateManifest(ctx, m); err != nil {
		s.log.Error("failed to update run manifest %s: %v", m.ID, err)
	}
}

// rekeyContrast renames a single-contrast bundle's _c1 keys to _c{n}.
func rekeyContrast(bundle glm.ResultBundle, n int) glm.ResultBundle {
	if n == 1 {
		return bundle
	}
	out := make(glm.ResultBundle, len(bundle))
	for key, values := range bundle {
		out[strings.Replace(key, "_c1", fmt.Sprintf("_c%d", n), 1)] = values
	}
	return out
}
