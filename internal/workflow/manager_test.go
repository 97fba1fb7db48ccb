package workflow_test

import (
	"context"
	"errors"
	"testing"

	"podium/internal/artifact"
	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/logging"
	"podium/internal/services"
	"podium/internal/testsupport"
	"podium/internal/workflow"
)

type fixture struct {
	cfg     *config.Config
	store   *catalog.Store
	engine  *testsupport.FakeEngine
	manager *workflow.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithPolling(0, 20, 2))
	store := testsupport.MustOpenStore(t, cfg)
	engine := testsupport.NewFakeEngine()
	return &fixture{
		cfg:     cfg,
		store:   store,
		engine:  engine,
		manager: workflow.NewManager(cfg, store, engine, logging.NewNop()),
	}
}

func TestGenerateAudioCompletes(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	version := testsupport.NewVersion(t, fx.store, arrangement.ID, "tune.mscz", catalog.BumpPatch)
	ctx := context.Background()

	fx.engine.ScriptJob("job-1",
		artifact.Observation{State: artifact.StateProcessing},
		artifact.Observation{State: artifact.StateProcessing},
		artifact.Observation{State: artifact.StateComplete, ResultKey: version.AudioKey()},
	)

	updated, err := fx.manager.GenerateAudio(ctx, version.ID)
	if err != nil {
		t.Fatalf("GenerateAudio: %v", err)
	}
	if updated.AudioState != artifact.StateComplete {
		t.Fatalf("audio state = %s, want complete", updated.AudioState)
	}
	if updated.AudioJob != "job-1" {
		t.Fatalf("audio job = %q, want job-1", updated.AudioJob)
	}
	if len(fx.engine.AudioRequests) != 1 {
		t.Fatalf("engine received %d audio requests, want 1", len(fx.engine.AudioRequests))
	}
	req := fx.engine.AudioRequests[0]
	if req.SourceKey != version.ProcessedKey() || req.OutputKey != version.AudioKey() {
		t.Fatalf("audio request = %+v", req)
	}
}

func TestGenerateAudioRejectsWhileProcessing(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	version := testsupport.NewVersion(t, fx.store, arrangement.ID, "tune.mscz", catalog.BumpPatch)
	ctx := context.Background()

	if err := fx.store.TriggerAudio(ctx, version.ID, "external-job"); err != nil {
		t.Fatalf("TriggerAudio: %v", err)
	}

	_, err := fx.manager.GenerateAudio(ctx, version.ID)
	if !errors.Is(err, services.ErrAlreadyInProgress) {
		t.Fatalf("GenerateAudio error = %v, want ErrAlreadyInProgress", err)
	}
	if len(fx.engine.AudioRequests) != 0 {
		t.Fatal("engine was invoked despite rejected trigger")
	}
}

func TestGenerateAudioSettlesEngineFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	version := testsupport.NewVersion(t, fx.store, arrangement.ID, "tune.mscz", catalog.BumpPatch)
	ctx := context.Background()

	fx.engine.ScriptJob("job-1",
		artifact.Observation{State: artifact.StateError, ErrorMessage: "corrupt source"},
	)

	_, err := fx.manager.GenerateAudio(ctx, version.ID)
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("GenerateAudio error = %v, want ErrRender", err)
	}

	obs, err := fx.store.AudioObservation(ctx, version.ID)
	if err != nil {
		t.Fatalf("AudioObservation: %v", err)
	}
	if obs.State != artifact.StateError || obs.ErrorMessage != "corrupt source" {
		t.Fatalf("observation = %+v", obs)
	}

	failures, err := fx.store.ListRenderFailures(ctx, 5)
	if err != nil {
		t.Fatalf("ListRenderFailures: %v", err)
	}
	if len(failures) != 1 || failures[0].Kind != artifact.KindAudio {
		t.Fatalf("failures = %+v, want one audio failure", failures)
	}

	// The error slot is retryable.
	fx.engine.ScriptJob("job-2",
		artifact.Observation{State: artifact.StateComplete, ResultKey: version.AudioKey()},
	)
	if _, err := fx.manager.GenerateAudio(ctx, version.ID); err != nil {
		t.Fatalf("retry GenerateAudio: %v", err)
	}
}

func TestGenerateAudioTimesOut(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	version := testsupport.NewVersion(t, fx.store, arrangement.ID, "tune.mscz", catalog.BumpPatch)
	ctx := context.Background()

	fx.engine.ScriptJob("job-1", artifact.Observation{State: artifact.StateProcessing})

	_, err := fx.manager.GenerateAudio(ctx, version.ID)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("GenerateAudio error = %v, want ErrTimeout", err)
	}

	obs, err := fx.store.AudioObservation(ctx, version.ID)
	if err != nil {
		t.Fatalf("AudioObservation: %v", err)
	}
	if obs.State != artifact.StateError {
		t.Fatalf("state after timeout = %s, want error", obs.State)
	}
}

func TestGeneratePartBooksSettlesBatch(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	ctx := context.Background()

	for _, name := range []string{"Alto", "Tenor"} {
		if _, err := fx.store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, name); err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
	}

	// Handles are assigned in batch order: Alto first, Tenor second.
	fx.engine.ScriptJob("job-1",
		artifact.Observation{State: artifact.StateProcessing},
		artifact.Observation{State: artifact.StateComplete, ResultKey: "https://cdn.example/alto.pdf"},
	)
	fx.engine.ScriptJob("job-2",
		artifact.Observation{State: artifact.StateError, ErrorMessage: "layout overflow"},
	)

	books, err := fx.manager.GeneratePartBooks(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GeneratePartBooks: %v", err)
	}
	if len(books) != 2 {
		t.Fatalf("settled batch holds %d books, want 2", len(books))
	}

	var rendered, failed int
	for _, book := range books {
		switch {
		case book.IsRendered:
			rendered++
			if book.DownloadURL != "https://cdn.example/alto.pdf" {
				t.Fatalf("rendered book URL = %q", book.DownloadURL)
			}
		case book.RenderError != "":
			failed++
			if book.RenderError != "layout overflow" {
				t.Fatalf("failed book error = %q", book.RenderError)
			}
		default:
			t.Fatalf("book %d not settled: %+v", book.ID, book)
		}
	}
	if rendered != 1 || failed != 1 {
		t.Fatalf("rendered=%d failed=%d, want 1/1", rendered, failed)
	}

	// Batch closed: a new revision can start immediately.
	refreshed, err := fx.store.GetEnsemble(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GetEnsemble: %v", err)
	}
	if refreshed.PartBooksGenerating {
		t.Fatal("generating flag still set after settled batch")
	}
}

func TestGeneratePartBooksRejectsOverlap(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	ctx := context.Background()

	if _, err := fx.store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Flute"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := fx.store.BeginBookBatch(ctx, ensemble.ID); err != nil {
		t.Fatalf("BeginBookBatch: %v", err)
	}

	_, err := fx.manager.GeneratePartBooks(ctx, ensemble.ID)
	if !errors.Is(err, services.ErrBatchInProgress) {
		t.Fatalf("GeneratePartBooks error = %v, want ErrBatchInProgress", err)
	}
	if len(fx.engine.BookRequests) != 0 {
		t.Fatal("engine was invoked despite open batch")
	}
}

func TestGeneratePartBooksDroppedJobSettles(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	ctx := context.Background()

	alto, err := fx.store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Alto")
	if err != nil {
		t.Fatalf("resolve alto: %v", err)
	}
	tenor, err := fx.store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Tenor")
	if err != nil {
		t.Fatalf("resolve tenor: %v", err)
	}

	// The engine accepts the batch but drops the tenor part; its book must
	// settle as failed before any polling starts, so the batch still closes.
	fx.engine.OmitJob(tenor.ID)
	fx.engine.ScriptJob("job-1",
		artifact.Observation{State: artifact.StateComplete, ResultKey: "https://cdn.example/alto.pdf"},
	)

	books, err := fx.manager.GeneratePartBooks(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GeneratePartBooks: %v", err)
	}
	for _, book := range books {
		switch book.PartIdentityID {
		case alto.ID:
			if !book.IsRendered {
				t.Fatalf("alto book = %+v, want rendered", book)
			}
		case tenor.ID:
			if book.IsRendered || book.RenderError == "" {
				t.Fatalf("tenor book = %+v, want failed", book)
			}
		}
	}

	// No book left pending: the next batch opens without repair.
	refreshed, err := fx.store.GetEnsemble(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GetEnsemble: %v", err)
	}
	if refreshed.PartBooksGenerating {
		t.Fatal("generating flag still set after dropped job")
	}
	if _, err := fx.store.BeginBookBatch(ctx, ensemble.ID); err != nil {
		t.Fatalf("BeginBookBatch after dropped job: %v", err)
	}
}

func TestGeneratePartBooksSubmitFailure(t *testing.T) {
	t.Parallel()

	fx := newFixture(t)
	ensemble := testsupport.NewEnsemble(t, fx.store, "Band")
	arrangement := testsupport.NewArrangement(t, fx.store, ensemble.ID, "Tune")
	ctx := context.Background()

	if _, err := fx.store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Flute"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	fx.engine.BooksErr = errors.New("engine offline")

	_, err := fx.manager.GeneratePartBooks(ctx, ensemble.ID)
	if !errors.Is(err, services.ErrRender) {
		t.Fatalf("GeneratePartBooks error = %v, want ErrRender", err)
	}

	// Every book settled as failed, so the batch closed and retry is open.
	refreshed, err := fx.store.GetEnsemble(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GetEnsemble: %v", err)
	}
	if refreshed.PartBooksGenerating {
		t.Fatal("generating flag still set after failed submit")
	}
}
