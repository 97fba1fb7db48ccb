package render

import (
	"context"

	"podium/internal/artifact"
)

// JobHandle identifies one in-flight render job on the engine.
type JobHandle string

// AudioRequest asks the engine to synthesize audio for one arrangement version.
type AudioRequest struct {
	VersionID int64  `json:"version_id"`
	SourceKey string `json:"source_key"`
	OutputKey string `json:"output_key"`
}

// BookRequest asks the engine to render part books for an ensemble.
type BookRequest struct {
	EnsembleID      int64   `json:"ensemble_id"`
	PartIdentityIDs []int64 `json:"part_identity_ids"`
	Revision        int     `json:"revision"`
}

// BookJob pairs a triggered part-book render with its part identity.
type BookJob struct {
	PartIdentityID int64     `json:"part_identity_id"`
	Handle         JobHandle `json:"job_id"`
}

// Links is the set of download URLs the engine exposes for one artifact key,
// plus the memoizable processing and error flags.
type Links struct {
	RawURL       string `json:"raw_url"`
	ProcessedURL string `json:"processed_url"`
	ScorePDFURL  string `json:"score_pdf_url"`
	AudioURL     string `json:"audio_url,omitempty"`
	IsProcessing bool   `json:"is_processing"`
	Error        bool   `json:"error"`
}

// Settled reports whether the link set can be memoized: the engine is done
// and did not fail, so the URLs will not change.
func (l Links) Settled() bool {
	return !l.IsProcessing && !l.Error
}

// Engine is the rendering engine consumed by the lifecycle subsystem. All
// implementations must be safe for concurrent use.
type Engine interface {
	RenderAudio(ctx context.Context, req AudioRequest) (JobHandle, error)
	RenderPartBooks(ctx context.Context, req BookRequest) ([]BookJob, error)
	JobState(ctx context.Context, handle JobHandle) (artifact.Observation, error)
	ArtifactLinks(ctx context.Context, key string) (Links, error)
}
