package catalog_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"podium/internal/artifact"
	"podium/internal/services"
	"podium/internal/testsupport"
)

func TestBookBatchLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Brass Choir")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Chorale")
	ctx := context.Background()

	for _, name := range []string{"Trumpet", "Trombone"} {
		if _, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, name); err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
	}

	batch, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch: %v", err)
	}
	if batch.Revision != 1 {
		t.Fatalf("first batch revision = %d, want 1", batch.Revision)
	}
	if len(batch.Books) != 2 {
		t.Fatalf("batch holds %d books, want 2", len(batch.Books))
	}

	if _, err := store.BeginBookBatch(ctx, ensemble.ID); !errors.Is(err, services.ErrBatchInProgress) {
		t.Fatalf("overlapping batch error = %v, want ErrBatchInProgress", err)
	}

	if err := store.MarkBookRendered(ctx, batch.Books[0].ID, "https://cdn.example/book-1.pdf"); err != nil {
		t.Fatalf("MarkBookRendered: %v", err)
	}

	// One book still pending keeps the batch open.
	if _, err := store.BeginBookBatch(ctx, ensemble.ID); !errors.Is(err, services.ErrBatchInProgress) {
		t.Fatalf("batch with pending book error = %v, want ErrBatchInProgress", err)
	}

	if err := store.MarkBookFailed(ctx, batch.Books[1].ID, "layout engine crash"); err != nil {
		t.Fatalf("MarkBookFailed: %v", err)
	}

	refreshed, err := store.GetEnsemble(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GetEnsemble: %v", err)
	}
	if refreshed.PartBooksGenerating {
		t.Fatal("generating flag still set after all books settled")
	}

	next, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch after settle: %v", err)
	}
	if next.Revision != 2 {
		t.Fatalf("second batch revision = %d, want 2", next.Revision)
	}
}

func TestBookRowsAreTerminal(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Solo")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Cadenza")
	ctx := context.Background()

	if _, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Violin"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	batch, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch: %v", err)
	}
	book := batch.Books[0]

	if err := store.SetBookJob(ctx, book.ID, "job-77"); err != nil {
		t.Fatalf("SetBookJob: %v", err)
	}
	if err := store.MarkBookRendered(ctx, book.ID, "https://cdn.example/violin.pdf"); err != nil {
		t.Fatalf("MarkBookRendered: %v", err)
	}

	if err := store.MarkBookRendered(ctx, book.ID, "https://cdn.example/other.pdf"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("re-render settled book error = %v, want ErrValidation", err)
	}
	if err := store.MarkBookFailed(ctx, book.ID, "late failure"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("fail settled book error = %v, want ErrValidation", err)
	}

	stored, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if !stored.IsRendered || stored.DownloadURL != "https://cdn.example/violin.pdf" || stored.JobHandle != "job-77" {
		t.Fatalf("stored book = %+v", stored)
	}
}

func TestLatestRenderedBookFollowsMergeRedirect(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Jazz Band")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Standard")
	ctx := context.Background()

	trumpet, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Trumpet")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	tpt, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Tpt")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := store.MergeIdentities(ctx, tpt.ID, trumpet.ID, ""); err != nil {
		t.Fatalf("MergeIdentities: %v", err)
	}

	batch, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch: %v", err)
	}
	if err := store.MarkBookRendered(ctx, batch.Books[0].ID, "https://cdn.example/trumpet-r1.pdf"); err != nil {
		t.Fatalf("MarkBookRendered: %v", err)
	}

	// Requests under the absorbed name land on the surviving part's book.
	book, err := store.LatestRenderedBook(ctx, tpt.ID)
	if err != nil {
		t.Fatalf("LatestRenderedBook: %v", err)
	}
	if book == nil || book.DownloadURL != "https://cdn.example/trumpet-r1.pdf" {
		t.Fatalf("book = %+v, want rendered trumpet book", book)
	}
	if book.PartIdentityID != trumpet.ID {
		t.Fatalf("book identity = %d, want %d", book.PartIdentityID, trumpet.ID)
	}
}

func TestRepairBookBatchRecoversInterruptedRun(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "String Quartet")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Serenade")
	ctx := context.Background()

	for _, name := range []string{"Violin", "Cello"} {
		if _, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, name); err != nil {
			t.Fatalf("resolve %s: %v", name, err)
		}
	}

	// A run that dies after allocating the batch settles nothing.
	batch, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch: %v", err)
	}
	if _, err := store.BeginBookBatch(ctx, ensemble.ID); !errors.Is(err, services.ErrBatchInProgress) {
		t.Fatalf("batch after interrupted run error = %v, want ErrBatchInProgress", err)
	}

	repaired, err := store.RepairBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("RepairBookBatch: %v", err)
	}
	if repaired != 2 {
		t.Fatalf("repaired %d books, want 2", repaired)
	}

	refreshed, err := store.GetEnsemble(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("GetEnsemble: %v", err)
	}
	if refreshed.PartBooksGenerating {
		t.Fatal("generating flag still set after repair")
	}
	for _, allocated := range batch.Books {
		book, err := store.GetBook(ctx, allocated.ID)
		if err != nil {
			t.Fatalf("GetBook: %v", err)
		}
		if book.IsRendered || book.RenderError != "generation interrupted" {
			t.Fatalf("repaired book = %+v", book)
		}
	}

	failures, err := store.ListRenderFailures(ctx, 10)
	if err != nil {
		t.Fatalf("ListRenderFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("ListRenderFailures returned %d rows, want 2", len(failures))
	}

	next, err := store.BeginBookBatch(ctx, ensemble.ID)
	if err != nil {
		t.Fatalf("BeginBookBatch after repair: %v", err)
	}
	if next.Revision != batch.Revision+1 {
		t.Fatalf("revision after repair = %d, want %d", next.Revision, batch.Revision+1)
	}
}

func TestRepairBookBatchWithoutOpenBatch(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Idle")

	repaired, err := store.RepairBookBatch(context.Background(), ensemble.ID)
	if err != nil {
		t.Fatalf("RepairBookBatch: %v", err)
	}
	if repaired != 0 {
		t.Fatalf("repaired %d books on an idle ensemble, want 0", repaired)
	}
}

func TestBookHistoryExcludesCurrentRevision(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Trio")
	arrangement := testsupport.NewArrangement(t, store, ensemble.ID, "Nocturne")
	ctx := context.Background()

	identity, err := store.ResolveIdentity(ctx, ensemble.ID, arrangement.ID, "Piano")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for revision := 1; revision <= 3; revision++ {
		batch, err := store.BeginBookBatch(ctx, ensemble.ID)
		if err != nil {
			t.Fatalf("BeginBookBatch %d: %v", revision, err)
		}
		url := fmt.Sprintf("https://cdn.example/piano-r%d.pdf", revision)
		if err := store.MarkBookRendered(ctx, batch.Books[0].ID, url); err != nil {
			t.Fatalf("MarkBookRendered %d: %v", revision, err)
		}
	}

	history, err := store.BookHistory(ctx, identity.ID)
	if err != nil {
		t.Fatalf("BookHistory: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history holds %d revisions, want 2 (current excluded)", len(history))
	}
	if history[0].Revision != 2 || history[1].Revision != 1 {
		t.Fatalf("history revisions = %d, %d, want 2, 1", history[0].Revision, history[1].Revision)
	}
	for _, book := range history {
		if book.Revision == 3 {
			t.Fatal("current revision listed as history")
		}
	}
}

func TestBeginBookBatchWithoutParts(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ensemble := testsupport.NewEnsemble(t, store, "Empty")

	if _, err := store.BeginBookBatch(context.Background(), ensemble.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("batch without parts error = %v, want ErrValidation", err)
	}
}

func TestRenderFailureLog(t *testing.T) {
	t.Parallel()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	if err := store.RecordRenderFailure(ctx, artifact.KindAudio, 7, "timeout waiting for engine"); err != nil {
		t.Fatalf("RecordRenderFailure: %v", err)
	}
	if err := store.RecordRenderFailure(ctx, artifact.KindPartBook, 3, ""); err != nil {
		t.Fatalf("RecordRenderFailure empty message: %v", err)
	}

	failures, err := store.ListRenderFailures(ctx, 10)
	if err != nil {
		t.Fatalf("ListRenderFailures: %v", err)
	}
	if len(failures) != 2 {
		t.Fatalf("ListRenderFailures returned %d rows, want 2", len(failures))
	}
	if failures[0].Kind != artifact.KindPartBook || failures[0].Message != "render failed" {
		t.Fatalf("newest failure = %+v", failures[0])
	}
	if failures[1].Kind != artifact.KindAudio || failures[1].OwnerID != 7 {
		t.Fatalf("oldest failure = %+v", failures[1])
	}
}
