// Package run holds the manifest describing one permutation analysis run:
// the parameters that make it reproducible and the lifecycle state used by
// persistence and the API surface.
package run

import (
	"time"

	"github.com/google/uuid"

	"permstat/internal/errors"
)

// State is the lifecycle state of a run.
type State string

const (
	StatePending  State = "pending"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Manifest is the truth source for replaying a run: everything that
// determines the output given the same input matrices.
type Manifest struct {
	ID    uuid.UUID `db:"id" json:"id"`
	State State     `db:"state" json:"state"`

	NPermutations int    `db:"n_permutations" json:"n_permutations"`
	Seed          int64  `db:"seed" json:"seed"`
	StatName      string `db:"stat_name" json:"stat_name"`

	NSamples   int `db:"n_samples" json:"n_samples"`
	NFeatures  int `db:"n_features" json:"n_features"`
	NContrasts int `db:"n_contrasts" json:"n_contrasts"`

	TwoTailed              bool `db:"two_tailed" json:"two_tailed"`
	FlipSigns              bool `db:"flip_signs" json:"flip_signs"`
	AccelTail              bool `db:"accel_tail" json:"accel_tail"`
	CorrectAcrossContrasts bool `db:"correct_across_contrasts" json:"correct_across_contrasts"`

	StartedAt   time.Time  `db:"started_at" json:"started_at"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ElapsedMS   int64      `db:"elapsed_ms" json:"elapsed_ms"`
	Error       string     `db:"error_message" json:"error,omitempty"`
}

// NewManifest creates a pending manifest with a fresh run ID.
func NewManifest(nPerms int, seed int64, statName string) *Manifest {
	return &Manifest{
		ID:            uuid.New(),
		State:         StatePending,
		NPermutations: nPerms,
		Seed:          seed,
		StatName:      statName,
		StartedAt:     time.Now().UTC(),
	}
}

// Start marks the run as executing.
func (m *Manifest) Start() {
	m.State = StateRunning
	m.StartedAt = time.Now().UTC()
}

// Complete marks the run as finished and records the elapsed time.
func (m *Manifest) Complete() {
	now := time.Now().UTC()
	m.State = StateComplete
	m.CompletedAt = &now
	m.ElapsedMS = now.Sub(m.StartedAt).Milliseconds()
}

// Fail marks the run as errored.
func (m *Manifest) Fail(err error) {
	now := time.Now().UTC()
	m.State = StateError
	m.CompletedAt = &now
	m.ElapsedMS = now.Sub(m.StartedAt).Milliseconds()
	if err != nil {
		m.Error = err.Error()
	}
}

// Validate checks the manifest describes a runnable analysis.
func (m *Manifest) Validate() error {
	if m.ID == uuid.Nil {
		return errors.InvalidParameter("run manifest has no ID")
	}
	if m.NPermutations <= 0 {
		return errors.InvalidParameter(
			"run manifest has non-positive permutation count %d", m.NPermutations)
	}
	if m.StatName == "" {
		return errors.InvalidParameter("run manifest has no statistic name")
	}
	return nil
}
