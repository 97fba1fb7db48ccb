package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"podium/internal/artifact"
	"podium/internal/catalog"
	"podium/internal/logging"
	"podium/internal/render"
	"podium/internal/services"
)

// GenerateAudio runs the full audio cycle for one arrangement version:
// claim the slot, submit the render, poll until terminal, and settle the slot.
// Rejections from the state machine (already processing, already complete)
// surface unchanged; render and poll failures settle the slot as errored and
// leave a durable failure record before returning.
func (m *Manager) GenerateAudio(ctx context.Context, versionID int64) (*catalog.Version, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithJobKind(ctx, string(artifact.KindAudio))
	start := time.Now()

	version, err := m.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version == nil {
		return nil, services.Wrap(services.ErrNotFound, "workflow", "generate audio", fmt.Sprintf("version %d", versionID), nil)
	}

	logger := logging.WithContext(ctx, m.logger).With(
		logging.Int64("version_id", versionID),
		logging.String("label", version.FullLabel()))

	// Claim the slot before touching the engine so concurrent triggers are
	// rejected without spawning duplicate jobs.
	if err := m.store.TriggerAudio(ctx, versionID, ""); err != nil {
		return nil, err
	}
	logger.Info("audio generation started")

	handle, err := m.engine.RenderAudio(ctx, render.AudioRequest{
		VersionID: versionID,
		SourceKey: version.ProcessedKey(),
		OutputKey: version.AudioKey(),
	})
	if err != nil {
		return nil, m.failAudio(ctx, versionID, fmt.Sprintf("submit render: %v", err), err)
	}
	if err := m.store.SetAudioJob(ctx, versionID, string(handle)); err != nil {
		return nil, m.failAudio(ctx, versionID, fmt.Sprintf("record job handle: %v", err), err)
	}

	obs, err := m.poller.Await(ctx, func(ctx context.Context) (artifact.Observation, error) {
		return m.engine.JobState(ctx, handle)
	})
	if err != nil {
		return nil, m.failAudio(ctx, versionID, fmt.Sprintf("await render: %v", err), err)
	}

	if obs.State == artifact.StateError {
		message := obs.ErrorMessage
		if message == "" {
			message = "engine reported failure"
		}
		renderErr := services.Wrap(services.ErrRender, "workflow", "generate audio", message, nil)
		return nil, m.failAudio(ctx, versionID, message, renderErr)
	}

	if err := m.store.CompleteAudio(ctx, versionID); err != nil {
		return nil, err
	}
	logger.Info("audio generation complete",
		logging.String("audio_key", version.AudioKey()),
		logging.Duration("elapsed", time.Since(start)))
	return m.store.GetVersion(ctx, versionID)
}

// failAudio settles the slot and records the failure, then returns cause so
// the caller sees the original error.
func (m *Manager) failAudio(ctx context.Context, versionID int64, message string, cause error) error {
	if err := m.store.FailAudio(ctx, versionID, message); err != nil {
		m.logger.Error("settle failed audio slot", logging.Int64("version_id", versionID), logging.Error(err))
	}
	if err := m.store.RecordRenderFailure(ctx, artifact.KindAudio, versionID, message); err != nil {
		m.logger.Error("record audio failure", logging.Int64("version_id", versionID), logging.Error(err))
	}
	m.logger.Warn("audio generation failed",
		logging.Int64("version_id", versionID),
		logging.String("reason", message))
	return cause
}
