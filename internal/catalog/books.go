package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"podium/internal/artifact"
	"podium/internal/services"
)

// BeginBookBatch allocates the next part-book revision for an ensemble: one
// unrendered row per surviving identity, all sharing the new revision number.
// Only one batch may be open per ensemble; a second request is rejected while
// any book of the current revision is unsettled. A generating flag left set by
// a crashed run is cleared here once every book of its revision has settled.
func (s *Store) BeginBookBatch(ctx context.Context, ensembleID int64) (*BookBatch, error) {
	identities, err := s.ListIdentities(ctx, ensembleID)
	if err != nil {
		return nil, err
	}
	if len(identities) == 0 {
		return nil, services.Wrap(services.ErrValidation, "catalog", "begin book batch",
			fmt.Sprintf("ensemble %d has no parts", ensembleID), nil)
	}

	batch := &BookBatch{EnsembleID: ensembleID}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			generating     int
			latestRevision int
		)
		row := tx.QueryRowContext(
			ctx,
			`SELECT part_books_generating, latest_book_revision FROM ensembles WHERE id = ?`,
			ensembleID,
		)
		if err := row.Scan(&generating, &latestRevision); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "catalog", "begin book batch", fmt.Sprintf("ensemble %d", ensembleID), nil)
			}
			return fmt.Errorf("query ensemble: %w", err)
		}

		if generating != 0 {
			var unsettled int
			row := tx.QueryRowContext(
				ctx,
				`SELECT COUNT(*) FROM part_books
                 WHERE ensemble_id = ? AND revision = ? AND is_rendered = 0 AND render_error IS NULL`,
				ensembleID, latestRevision,
			)
			if err := row.Scan(&unsettled); err != nil {
				return fmt.Errorf("count unsettled books: %w", err)
			}
			if unsettled > 0 {
				return services.Wrap(services.ErrBatchInProgress, "catalog", "begin book batch",
					fmt.Sprintf("revision %d still has %d unsettled books", latestRevision, unsettled), nil)
			}
		}

		batch.Revision = latestRevision + 1
		now := nowString()
		for _, identity := range identities {
			res, err := tx.ExecContext(
				ctx,
				`INSERT INTO part_books (ensemble_id, part_identity_id, revision, created_at)
                 VALUES (?, ?, ?, ?)`,
				ensembleID, identity.ID, batch.Revision, now,
			)
			if err != nil {
				return fmt.Errorf("insert book: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			batch.Books = append(batch.Books, &PartBook{
				ID:             id,
				EnsembleID:     ensembleID,
				PartIdentityID: identity.ID,
				Revision:       batch.Revision,
			})
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE ensembles SET part_books_generating = 1, latest_book_revision = ? WHERE id = ?`,
			batch.Revision, ensembleID,
		); err != nil {
			return fmt.Errorf("mark batch open: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// RepairBookBatch settles every pending book of an ensemble's flagged
// revision as failed and clears the generating flag, returning the number of
// books settled. This is the recovery path for a generation run that died
// before settling its batch; a live run holds the generation lock, so the
// flagged books can only be orphans. A failure record is written per settled
// book. No-op when no batch is flagged.
func (s *Store) RepairBookBatch(ctx context.Context, ensembleID int64) (int, error) {
	repaired := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			generating     int
			latestRevision int
		)
		row := tx.QueryRowContext(
			ctx,
			`SELECT part_books_generating, latest_book_revision FROM ensembles WHERE id = ?`,
			ensembleID,
		)
		if err := row.Scan(&generating, &latestRevision); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "catalog", "repair book batch", fmt.Sprintf("ensemble %d", ensembleID), nil)
			}
			return fmt.Errorf("query ensemble: %w", err)
		}
		if generating == 0 {
			return nil
		}

		rows, err := tx.QueryContext(
			ctx,
			`SELECT id FROM part_books
             WHERE ensemble_id = ? AND revision = ? AND is_rendered = 0 AND render_error IS NULL`,
			ensembleID, latestRevision,
		)
		if err != nil {
			return fmt.Errorf("query pending books: %w", err)
		}
		var pendingIDs []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			pendingIDs = append(pendingIDs, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		now := nowString()
		for _, bookID := range pendingIDs {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE part_books SET render_error = ? WHERE id = ?`,
				bookRepairMessage, bookID,
			); err != nil {
				return fmt.Errorf("settle orphaned book: %w", err)
			}
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO render_failures (kind, owner_id, message, created_at) VALUES (?, ?, ?, ?)`,
				string(artifact.KindPartBook), bookID, bookRepairMessage, now,
			); err != nil {
				return fmt.Errorf("record repair failure: %w", err)
			}
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE ensembles SET part_books_generating = 0 WHERE id = ?`,
			ensembleID,
		); err != nil {
			return fmt.Errorf("clear batch flag: %w", err)
		}
		repaired = len(pendingIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return repaired, nil
}

const bookRepairMessage = "generation interrupted"

// SetBookJob records the engine job handle for a pending book.
func (s *Store) SetBookJob(ctx context.Context, bookID int64, handle string) error {
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE part_books SET job_handle = ? WHERE id = ?`,
		nullableString(handle), bookID,
	); err != nil {
		return fmt.Errorf("set book job: %w", err)
	}
	return nil
}

// MarkBookRendered settles a book as successfully rendered. Book rows are
// write-once terminal; settling an already settled book is rejected.
func (s *Store) MarkBookRendered(ctx context.Context, bookID int64, downloadURL string) error {
	return s.settleBook(ctx, bookID,
		`UPDATE part_books SET is_rendered = 1, download_url = ?
         WHERE id = ? AND is_rendered = 0 AND render_error IS NULL`,
		nullableString(downloadURL), bookID)
}

// MarkBookFailed settles a book with a render error.
func (s *Store) MarkBookFailed(ctx context.Context, bookID int64, message string) error {
	if message == "" {
		message = "render failed"
	}
	return s.settleBook(ctx, bookID,
		`UPDATE part_books SET render_error = ?
         WHERE id = ? AND is_rendered = 0 AND render_error IS NULL`,
		message, bookID)
}

func (s *Store) settleBook(ctx context.Context, bookID int64, query string, args ...any) error {
	book, err := s.GetBook(ctx, bookID)
	if err != nil {
		return err
	}
	if book == nil {
		return services.Wrap(services.ErrNotFound, "catalog", "settle book", fmt.Sprintf("book %d", bookID), nil)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("settle book: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return services.Wrap(services.ErrValidation, "catalog", "settle book",
				fmt.Sprintf("book %d already settled", bookID), nil)
		}
		return clearBatchIfSettled(ctx, tx, book.EnsembleID, book.Revision)
	})
	return err
}

// clearBatchIfSettled drops the ensemble's generating flag once no book of the
// current revision remains pending.
func clearBatchIfSettled(ctx context.Context, tx *sql.Tx, ensembleID int64, revision int) error {
	var latestRevision int
	row := tx.QueryRowContext(ctx, `SELECT latest_book_revision FROM ensembles WHERE id = ?`, ensembleID)
	if err := row.Scan(&latestRevision); err != nil {
		return fmt.Errorf("query latest revision: %w", err)
	}
	if revision != latestRevision {
		return nil
	}

	var unsettled int
	row = tx.QueryRowContext(
		ctx,
		`SELECT COUNT(*) FROM part_books
         WHERE ensemble_id = ? AND revision = ? AND is_rendered = 0 AND render_error IS NULL`,
		ensembleID, revision,
	)
	if err := row.Scan(&unsettled); err != nil {
		return fmt.Errorf("count unsettled books: %w", err)
	}
	if unsettled > 0 {
		return nil
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE ensembles SET part_books_generating = 0 WHERE id = ?`,
		ensembleID,
	); err != nil {
		return fmt.Errorf("clear batch flag: %w", err)
	}
	return nil
}

// GetBook fetches a book by identifier.
func (s *Store) GetBook(ctx context.Context, id int64) (*PartBook, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM part_books WHERE id = ?`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return book, nil
}

// LatestRenderedBook returns the most recent successfully rendered book for a
// part, following the identity's merge redirect so books requested under an
// absorbed part name resolve to the surviving one. Returns nil when no
// revision of the part has ever rendered.
func (s *Store) LatestRenderedBook(ctx context.Context, identityID int64) (*PartBook, error) {
	identity, err := s.resolveRedirect(ctx, identityID)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+bookColumns+` FROM part_books
         WHERE part_identity_id = ? AND is_rendered = 1
         ORDER BY revision DESC LIMIT 1`,
		identity.ID,
	)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest rendered book: %w", err)
	}
	return book, nil
}

// BookHistory returns a part's superseded book revisions, newest first. The
// current (highest) revision is not history; read it via LatestRenderedBook
// or BatchBooks.
func (s *Store) BookHistory(ctx context.Context, identityID int64) ([]*PartBook, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+bookColumns+` FROM part_books
         WHERE part_identity_id = ?
           AND revision < (SELECT COALESCE(MAX(revision), 0) FROM part_books WHERE part_identity_id = ?)
         ORDER BY revision DESC`,
		identityID, identityID,
	)
	if err != nil {
		return nil, fmt.Errorf("book history: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

// BatchBooks returns every book of one ensemble revision.
func (s *Store) BatchBooks(ctx context.Context, ensembleID int64, revision int) ([]*PartBook, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+bookColumns+` FROM part_books
         WHERE ensemble_id = ? AND revision = ? ORDER BY id`,
		ensembleID, revision,
	)
	if err != nil {
		return nil, fmt.Errorf("batch books: %w", err)
	}
	defer rows.Close()
	return collectBooks(rows)
}

func collectBooks(rows *sql.Rows) ([]*PartBook, error) {
	var books []*PartBook
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

const bookColumns = "id, ensemble_id, part_identity_id, revision, is_rendered, download_url, render_error, job_handle, created_at"

func scanBook(scanner interface{ Scan(dest ...any) error }) (*PartBook, error) {
	var (
		book        PartBook
		isRendered  int
		downloadURL sql.NullString
		renderError sql.NullString
		jobHandle   sql.NullString
		createdRaw  string
	)
	if err := scanner.Scan(
		&book.ID,
		&book.EnsembleID,
		&book.PartIdentityID,
		&book.Revision,
		&isRendered,
		&downloadURL,
		&renderError,
		&jobHandle,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	book.IsRendered = isRendered != 0
	book.DownloadURL = downloadURL.String
	book.RenderError = renderError.String
	book.JobHandle = jobHandle.String
	if created, err := parseTimeString(createdRaw); err == nil {
		book.CreatedAt = created
	}
	return &book, nil
}
