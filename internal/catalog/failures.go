package catalog

import (
	"context"
	"fmt"

	"podium/internal/artifact"
)

// RecordRenderFailure appends a durable failure record so terminal render
// errors outlive the rows they settled on.
func (s *Store) RecordRenderFailure(ctx context.Context, kind artifact.Kind, ownerID int64, message string) error {
	if message == "" {
		message = "render failed"
	}
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO render_failures (kind, owner_id, message, created_at) VALUES (?, ?, ?, ?)`,
		string(kind), ownerID, message, nowString(),
	); err != nil {
		return fmt.Errorf("record render failure: %w", err)
	}
	return nil
}

// ListRenderFailures returns recorded failures, newest first, capped at limit
// when positive.
func (s *Store) ListRenderFailures(ctx context.Context, limit int) ([]*RenderFailure, error) {
	query := `SELECT id, kind, owner_id, message, created_at FROM render_failures ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list render failures: %w", err)
	}
	defer rows.Close()

	var failures []*RenderFailure
	for rows.Next() {
		var (
			failure    RenderFailure
			kindRaw    string
			createdRaw string
		)
		if err := rows.Scan(&failure.ID, &kindRaw, &failure.OwnerID, &failure.Message, &createdRaw); err != nil {
			return nil, err
		}
		failure.Kind = artifact.Kind(kindRaw)
		if created, err := parseTimeString(createdRaw); err == nil {
			failure.CreatedAt = created
		}
		failures = append(failures, &failure)
	}
	return failures, rows.Err()
}
