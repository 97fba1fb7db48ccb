package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"podium/internal/services"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify derives a URL-safe slug from a display name.
func Slugify(name string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(slug, "-")
}

// CreateEnsemble inserts a new ensemble with a slug derived from its name.
func (s *Store) CreateEnsemble(ctx context.Context, name string) (*Ensemble, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create ensemble", "name required", nil)
	}
	slug := Slugify(name)
	if slug == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create ensemble", fmt.Sprintf("name %q yields empty slug", name), nil)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO ensembles (slug, name, created_at) VALUES (?, ?, ?)`,
		slug, name, nowString(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert ensemble: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetEnsemble(ctx, id)
}

// GetEnsemble fetches an ensemble by identifier.
func (s *Store) GetEnsemble(ctx context.Context, id int64) (*Ensemble, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ensembleColumns+` FROM ensembles WHERE id = ?`, id)
	return scanEnsembleRow(row)
}

// GetEnsembleBySlug fetches an ensemble by slug.
func (s *Store) GetEnsembleBySlug(ctx context.Context, slug string) (*Ensemble, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ensembleColumns+` FROM ensembles WHERE slug = ?`, slug)
	return scanEnsembleRow(row)
}

// ListEnsembles returns all ensembles ordered by creation time.
func (s *Store) ListEnsembles(ctx context.Context) ([]*Ensemble, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ensembleColumns+` FROM ensembles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list ensembles: %w", err)
	}
	defer rows.Close()

	var ensembles []*Ensemble
	for rows.Next() {
		ensemble, err := scanEnsemble(rows)
		if err != nil {
			return nil, err
		}
		ensembles = append(ensembles, ensemble)
	}
	return ensembles, rows.Err()
}

// CreateArrangement inserts a new arrangement under an ensemble.
func (s *Store) CreateArrangement(ctx context.Context, ensembleID int64, title string) (*Arrangement, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create arrangement", "title required", nil)
	}
	slug := Slugify(title)
	if slug == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "create arrangement", fmt.Sprintf("title %q yields empty slug", title), nil)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO arrangements (ensemble_id, slug, title, created_at) VALUES (?, ?, ?, ?)`,
		ensembleID, slug, title, nowString(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert arrangement: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetArrangement(ctx, id)
}

// GetArrangement fetches an arrangement by identifier.
func (s *Store) GetArrangement(ctx context.Context, id int64) (*Arrangement, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+arrangementColumns+` FROM arrangements WHERE id = ?`, id)
	arrangement, err := scanArrangement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get arrangement: %w", err)
	}
	return arrangement, nil
}

// GetArrangementBySlug fetches an arrangement by its slug within an ensemble.
func (s *Store) GetArrangementBySlug(ctx context.Context, ensembleID int64, slug string) (*Arrangement, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+arrangementColumns+` FROM arrangements WHERE ensemble_id = ? AND slug = ?`,
		ensembleID, slug,
	)
	arrangement, err := scanArrangement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get arrangement by slug: %w", err)
	}
	return arrangement, nil
}

// ListArrangements returns an ensemble's arrangements ordered by creation time.
func (s *Store) ListArrangements(ctx context.Context, ensembleID int64) ([]*Arrangement, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+arrangementColumns+` FROM arrangements WHERE ensemble_id = ? ORDER BY created_at`,
		ensembleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list arrangements: %w", err)
	}
	defer rows.Close()

	var arrangements []*Arrangement
	for rows.Next() {
		arrangement, err := scanArrangement(rows)
		if err != nil {
			return nil, err
		}
		arrangements = append(arrangements, arrangement)
	}
	return arrangements, rows.Err()
}

const ensembleColumns = "id, slug, name, part_books_generating, latest_book_revision, created_at"

const arrangementColumns = "id, ensemble_id, slug, title, created_at"

func scanEnsembleRow(row *sql.Row) (*Ensemble, error) {
	ensemble, err := scanEnsemble(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ensemble: %w", err)
	}
	return ensemble, nil
}

func scanEnsemble(scanner interface{ Scan(dest ...any) error }) (*Ensemble, error) {
	var (
		ensemble   Ensemble
		generating int
		createdRaw string
	)
	if err := scanner.Scan(&ensemble.ID, &ensemble.Slug, &ensemble.Name, &generating, &ensemble.LatestBookRevision, &createdRaw); err != nil {
		return nil, err
	}
	ensemble.PartBooksGenerating = generating != 0
	if created, err := parseTimeString(createdRaw); err == nil {
		ensemble.CreatedAt = created
	}
	return &ensemble, nil
}

func scanArrangement(scanner interface{ Scan(dest ...any) error }) (*Arrangement, error) {
	var (
		arrangement Arrangement
		createdRaw  string
	)
	if err := scanner.Scan(&arrangement.ID, &arrangement.EnsembleID, &arrangement.Slug, &arrangement.Title, &createdRaw); err != nil {
		return nil, err
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		arrangement.CreatedAt = created
	}
	return &arrangement, nil
}
