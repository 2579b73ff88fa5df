package api

import (
	"gonum.org/v1/gonum/mat"

	"permstat/adapters/stats"
	"permstat/app"
	"permstat/domain/glm"
	"permstat/internal/errors"
	"permstat/internal/inference"
)

// RunPayload is the JSON body of POST /api/runs. Matrices are row-major
// nested arrays; Blocks accepts one column per nesting level.
type RunPayload struct {
	Data     [][]float64 `json:"data"`
	Design   [][]float64 `json:"design"`
	Contrast [][]float64 `json:"contrast"`
	Blocks   [][]int     `json:"blocks,omitempty"`

	NPermutations int   `json:"n_permutations"`
	Seed          int64 `json:"seed"`
	TwoTailed     *bool `json:"two_tailed,omitempty"`

	Within    bool `json:"within"`
	Whole     bool `json:"whole"`
	FlipSigns bool `json:"flip_signs"`

	VGAuto   bool  `json:"vg_auto"`
	VGVector []int `json:"vg_vector,omitempty"`

	AccelTail              bool `json:"accel_tail"`
	CorrectAcrossContrasts bool `json:"correct_across_contrasts"`

	FContrastMask []bool `json:"f_contrast_mask,omitempty"`
	FOnly         bool   `json:"f_only"`
}

// ToRequest validates the payload and assembles the service request. The
// statistic is selected automatically: t/F without variance groups,
// Aspin-Welch v and G with them.
func (p *RunPayload) ToRequest() (app.AnalysisRequest, error) {
	data, err := toDense(p.Data, "data")
	if err != nil {
		return app.AnalysisRequest{}, err
	}
	design, err := toDense(p.Design, "design")
	if err != nil {
		return app.AnalysisRequest{}, err
	}
	contrast, err := glm.NewContrast(p.Contrast)
	if err != nil {
		return app.AnalysisRequest{}, err
	}

	var blocks glm.BlockSpec
	if len(p.Blocks) > 0 {
		blocks, err = glm.NewBlockMatrix(p.Blocks)
		if err != nil {
			return app.AnalysisRequest{}, err
		}
	}

	twoTailed := true
	if p.TwoTailed != nil {
		twoTailed = *p.TwoTailed
	}
	useVG := p.VGAuto || p.VGVector != nil
	statName := "t"
	if useVG {
		statName = "aspin-welch-v"
	}

	return app.AnalysisRequest{
		Data:     data,
		Design:   design,
		Contrast: contrast,
		StatName: statName,
		Config: inference.Config{
			NPermutations:          p.NPermutations,
			Seed:                   p.Seed,
			TwoTailed:              twoTailed,
			Blocks:                 blocks,
			Within:                 p.Within,
			Whole:                  p.Whole,
			FlipSigns:              p.FlipSigns,
			VGAuto:                 p.VGAuto,
			VGVector:               p.VGVector,
			AccelTail:              p.AccelTail,
			CorrectAcrossContrasts: p.CorrectAcrossContrasts,
			FContrastMask:          p.FContrastMask,
			FOnly:                  p.FOnly,
			Stat:                   stats.Auto(useVG),
			FStat:                  stats.AutoF(useVG),
		},
	}, nil
}

func toDense(rows [][]float64, name string) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, errors.InsufficientInput("%s matrix is empty", name)
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, errors.InsufficientInput("%s matrix has no columns", name)
	}
	out := mat.NewDense(len(rows), cols, nil)
	for i, row := range rows {
		if len(row) != cols {
			return nil, errors.ShapeMismatch(
				"%s matrix row %d has %d columns, expected %d", name, i+1, len(row), cols)
		}
		out.SetRow(i, row)
	}
	return out, nil
}
