package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"podium/internal/artifact"
	"podium/internal/catalog"
	"podium/internal/logging"
	"podium/internal/render"
	"podium/internal/services"
)

// GeneratePartBooks allocates the next book revision for an ensemble, submits
// one render per part, and polls every job to a terminal write. A single
// failed book settles as errored without aborting its siblings; the batch
// closes once every row is terminal. The returned books reflect the settled
// batch.
func (m *Manager) GeneratePartBooks(ctx context.Context, ensembleID int64) ([]*catalog.PartBook, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	ctx = services.WithJobKind(ctx, string(artifact.KindPartBook))
	ctx = services.WithEnsembleID(ctx, ensembleID)
	start := time.Now()

	batch, err := m.store.BeginBookBatch(ctx, ensembleID)
	if err != nil {
		return nil, err
	}
	logger := logging.WithContext(ctx, m.logger).With(logging.Int("revision", batch.Revision))
	logger.Info("part book batch started", logging.Int("books", len(batch.Books)))

	identityIDs := make([]int64, 0, len(batch.Books))
	for _, book := range batch.Books {
		identityIDs = append(identityIDs, book.PartIdentityID)
	}

	jobs, err := m.engine.RenderPartBooks(ctx, render.BookRequest{
		EnsembleID:      ensembleID,
		PartIdentityIDs: identityIDs,
		Revision:        batch.Revision,
	})
	if err != nil {
		for _, book := range batch.Books {
			m.failBook(ctx, book, fmt.Sprintf("submit batch: %v", err))
		}
		return nil, services.Wrap(services.ErrRender, "workflow", "generate part books",
			fmt.Sprintf("submit revision %d", batch.Revision), err)
	}

	jobsByIdentity := make(map[int64]render.JobHandle, len(jobs))
	for _, job := range jobs {
		jobsByIdentity[job.PartIdentityID] = job.Handle
	}

	// Record every submission before starting a single poller. Books the
	// engine skipped, or whose handle cannot be persisted, settle as failed
	// here; the fan-out below then has no path that returns with goroutines
	// still running against the store.
	type submission struct {
		book   *catalog.PartBook
		handle render.JobHandle
	}
	submissions := make([]submission, 0, len(batch.Books))
	for _, book := range batch.Books {
		handle, ok := jobsByIdentity[book.PartIdentityID]
		if !ok {
			m.failBook(ctx, book, "engine returned no job for part")
			continue
		}
		if err := m.store.SetBookJob(ctx, book.ID, string(handle)); err != nil {
			m.failBook(ctx, book, fmt.Sprintf("record job handle: %v", err))
			continue
		}
		submissions = append(submissions, submission{book: book, handle: handle})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, sub := range submissions {
		group.Go(func() error {
			obs, err := m.poller.Await(groupCtx, func(ctx context.Context) (artifact.Observation, error) {
				return m.engine.JobState(ctx, sub.handle)
			})
			if err != nil {
				m.failBook(groupCtx, sub.book, fmt.Sprintf("await render: %v", err))
				return nil
			}
			if obs.State == artifact.StateError {
				message := obs.ErrorMessage
				if message == "" {
					message = "engine reported failure"
				}
				m.failBook(groupCtx, sub.book, message)
				return nil
			}
			return m.store.MarkBookRendered(groupCtx, sub.book.ID, obs.ResultKey)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	settled, err := m.store.BatchBooks(ctx, ensembleID, batch.Revision)
	if err != nil {
		return nil, err
	}
	rendered := 0
	for _, book := range settled {
		if book.IsRendered {
			rendered++
		}
	}
	logger.Info("part book batch settled",
		logging.Int("rendered", rendered),
		logging.Int("failed", len(settled)-rendered),
		logging.Duration("elapsed", time.Since(start)))
	return settled, nil
}

func (m *Manager) failBook(ctx context.Context, book *catalog.PartBook, message string) {
	if err := m.store.MarkBookFailed(ctx, book.ID, message); err != nil {
		m.logger.Error("settle failed book", logging.Int64("book_id", book.ID), logging.Error(err))
	}
	if err := m.store.RecordRenderFailure(ctx, artifact.KindPartBook, book.ID, message); err != nil {
		m.logger.Error("record book failure", logging.Int64("book_id", book.ID), logging.Error(err))
	}
	m.logger.Warn("part book failed",
		logging.Int64("book_id", book.ID),
		logging.Int64("part_identity_id", book.PartIdentityID),
		logging.String("reason", message))
}
