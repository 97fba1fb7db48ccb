package catalog

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS ensembles (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        slug TEXT NOT NULL UNIQUE,
        name TEXT NOT NULL,
        part_books_generating INTEGER NOT NULL DEFAULT 0,
        latest_book_revision INTEGER NOT NULL DEFAULT 0,
        created_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS arrangements (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ensemble_id INTEGER NOT NULL REFERENCES ensembles(id) ON DELETE CASCADE,
        slug TEXT NOT NULL,
        title TEXT NOT NULL,
        created_at TEXT NOT NULL,
        UNIQUE (ensemble_id, slug)
    )`,
	`CREATE TABLE IF NOT EXISTS arrangement_versions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        arrangement_id INTEGER NOT NULL REFERENCES arrangements(id) ON DELETE CASCADE,
        file_name TEXT NOT NULL,
        major INTEGER NOT NULL,
        minor INTEGER NOT NULL,
        patch INTEGER NOT NULL,
        is_latest INTEGER NOT NULL DEFAULT 0,
        audio_state TEXT NOT NULL DEFAULT 'none',
        audio_job TEXT,
        audio_error TEXT,
        created_at TEXT NOT NULL,
        UNIQUE (arrangement_id, major, minor, patch)
    )`,
	`CREATE TABLE IF NOT EXISTS part_identities (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ensemble_id INTEGER NOT NULL REFERENCES ensembles(id) ON DELETE CASCADE,
        display_name TEXT NOT NULL,
        name_normalized TEXT NOT NULL,
        sort_order INTEGER,
        merged_into INTEGER REFERENCES part_identities(id),
        created_at TEXT NOT NULL
    )`,
	`CREATE TABLE IF NOT EXISTS part_aliases (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ensemble_id INTEGER NOT NULL REFERENCES ensembles(id) ON DELETE CASCADE,
        arrangement_id INTEGER NOT NULL REFERENCES arrangements(id) ON DELETE CASCADE,
        part_identity_id INTEGER NOT NULL REFERENCES part_identities(id),
        alias TEXT NOT NULL,
        alias_normalized TEXT NOT NULL,
        UNIQUE (ensemble_id, arrangement_id, alias_normalized)
    )`,
	`CREATE TABLE IF NOT EXISTS part_assets (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        version_id INTEGER NOT NULL REFERENCES arrangement_versions(id) ON DELETE CASCADE,
        part_identity_id INTEGER REFERENCES part_identities(id),
        name TEXT NOT NULL,
        file_key TEXT NOT NULL,
        is_score INTEGER NOT NULL DEFAULT 0
    )`,
	`CREATE TABLE IF NOT EXISTS part_books (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        ensemble_id INTEGER NOT NULL REFERENCES ensembles(id) ON DELETE CASCADE,
        part_identity_id INTEGER NOT NULL REFERENCES part_identities(id),
        revision INTEGER NOT NULL,
        is_rendered INTEGER NOT NULL DEFAULT 0,
        download_url TEXT,
        render_error TEXT,
        job_handle TEXT,
        created_at TEXT NOT NULL,
        UNIQUE (ensemble_id, part_identity_id, revision)
    )`,
	`CREATE TABLE IF NOT EXISTS render_failures (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        owner_id INTEGER NOT NULL,
        message TEXT NOT NULL,
        created_at TEXT NOT NULL
    )`,
	`CREATE INDEX IF NOT EXISTS idx_versions_arrangement ON arrangement_versions(arrangement_id)`,
	`CREATE INDEX IF NOT EXISTS idx_identities_ensemble ON part_identities(ensemble_id)`,
	`CREATE INDEX IF NOT EXISTS idx_books_ensemble_part ON part_books(ensemble_id, part_identity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assets_version ON part_assets(version_id)`,
}

func (s *Store) applySchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
