package inference

import (
	"gonum.org/v1/gonum/mat"

	"permstat/domain/glm"
	"permstat/internal/errors"
	"permstat/internal/permute"
)

// StreamConfig bundles the resampling parameters shared by one statistic
// stream: the exchangeability structure, the flat-mode flags, sign flipping,
// the seed, and any variance grouping.
type StreamConfig struct {
	Blocks    glm.BlockSpec
	Within    bool
	Whole     bool
	FlipSigns bool
	Seed      int64
	VG        []int
	NGroups   int
}

// StatStream lazily yields one permuted statistic map per Next call: it
// advances the design permutation stream (and, when enabled, the sign-flip
// stream), then applies the pluggable statistic function. Draws are strictly
// sequenced; there is no concurrent access to any shared state.
type StatStream struct {
	data     *mat.Dense
	contrast glm.Contrast
	stat     glm.StatFunc
	vg       []int
	nGroups  int
	designs  *permute.DesignStream
	flips    *permute.SignFlipStream
}

// NewStatStream validates shapes and binds the seeded permutation streams.
func NewStatStream(data, design *mat.Dense, contrast glm.Contrast, stat glm.StatFunc, cfg StreamConfig) (*StatStream, error) {
	nData, _ := data.Dims()
	nDesign, _ := design.Dims()
	if nData != nDesign {
		return nil, errors.ShapeMismatch(
			"data has %d samples, design has %d", nData, nDesign)
	}
	designs, err := permute.NewDesignStream(design, contrast, cfg.Blocks, cfg.Within, cfg.Whole, cfg.Seed)
	if err != nil {
		return nil, err
	}
	s := &StatStream{
		data:     data,
		contrast: contrast,
		stat:     stat,
		vg:       cfg.VG,
		nGroups:  cfg.NGroups,
		designs:  designs,
	}
	if cfg.FlipSigns {
		s.flips = permute.NewSignFlipStream(nData, cfg.Seed)
	}
	return s, nil
}

// Next computes the statistic for the next permutation.
func (s *StatStream) Next() ([]float64, error) {
	design, err := s.designs.Next()
	if err != nil {
		return nil, err
	}
	data := s.data
	if s.flips != nil {
		data = permute.FlipData(s.data, s.flips.Next())
	}
	return s.stat(data, design, s.contrast, s.vg, s.nGroups), nil
}
