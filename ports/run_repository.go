package ports

import (
	"context"

	"github.com/google/uuid"

	"permstat/domain/glm"
	"permstat/domain/run"
)

// RunRepository persists run manifests and their result bundles.
type RunRepository interface {
	// SaveManifest inserts a new manifest.
	SaveManifest(ctx context.Context, m *run.Manifest) error

	// UpdateManifest writes the manifest's mutable lifecycle fields.
	UpdateManifest(ctx context.Context, m *run.Manifest) error

	// GetManifest retrieves a manifest by run ID.
	GetManifest(ctx context.Context, id uuid.UUID) (*run.Manifest, error)

	// ListManifests returns recent manifests, newest first, optionally limited.
	ListManifests(ctx context.Context, limit int) ([]*run.Manifest, error)

	// SaveResults stores every named array of a result bundle under the run ID.
	SaveResults(ctx context.Context, runID uuid.UUID, bundle glm.ResultBundle) error

	// GetResults reassembles the stored bundle for a run.
	GetResults(ctx context.Context, runID uuid.UUID) (glm.ResultBundle, error)
}
