package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"podium/internal/artifact"
	"podium/internal/services"
)

// AppendVersion appends a new version to an arrangement, bumping the latest
// label by the requested component. The previous latest loses its flag and
// the new row gains it inside the same transaction, so at no point do two
// versions of one arrangement both report latest.
func (s *Store) AppendVersion(ctx context.Context, arrangementID int64, fileName string, bump Bump) (*Version, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "append version", "file name required", nil)
	}
	if _, ok := ParseBump(string(bump)); !ok {
		return nil, services.Wrap(services.ErrValidation, "catalog", "append version", fmt.Sprintf("unknown bump %q", bump), nil)
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var major, minor, patch int
		row := tx.QueryRowContext(
			ctx,
			`SELECT major, minor, patch FROM arrangement_versions WHERE arrangement_id = ? AND is_latest = 1`,
			arrangementID,
		)
		if err := row.Scan(&major, &minor, &patch); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("query latest version: %w", err)
		}

		switch bump {
		case BumpMajor:
			major, minor, patch = major+1, 0, 0
		case BumpMinor:
			minor, patch = minor+1, 0
		case BumpPatch:
			patch++
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE arrangement_versions SET is_latest = 0 WHERE arrangement_id = ?`,
			arrangementID,
		); err != nil {
			return fmt.Errorf("clear latest flag: %w", err)
		}

		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO arrangement_versions (
                arrangement_id, file_name, major, minor, patch, is_latest, audio_state, created_at
            ) VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			arrangementID, fileName, major, minor, patch, artifact.StateNone, nowString(),
		)
		if err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetVersion(ctx, id)
}

// GetVersion fetches a version by identifier.
func (s *Store) GetVersion(ctx context.Context, id int64) (*Version, error) {
	row := s.db.QueryRowContext(ctx, versionQuery+` WHERE v.id = ?`, id)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get version: %w", err)
	}
	return version, nil
}

// LatestVersion fetches the arrangement's current latest version, or nil when
// no version has been appended yet.
func (s *Store) LatestVersion(ctx context.Context, arrangementID int64) (*Version, error) {
	row := s.db.QueryRowContext(ctx, versionQuery+` WHERE v.arrangement_id = ? AND v.is_latest = 1`, arrangementID)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return version, nil
}

// ListVersions returns an arrangement's versions, newest first.
func (s *Store) ListVersions(ctx context.Context, arrangementID int64) ([]*Version, error) {
	rows, err := s.db.QueryContext(
		ctx,
		versionQuery+` WHERE v.arrangement_id = ? ORDER BY v.major DESC, v.minor DESC, v.patch DESC`,
		arrangementID,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

// TriggerAudio transitions a version's audio slot to processing and records
// the engine job handle. Enforced inside the transaction: triggering is valid
// only from none or, as a retry, from error.
func (s *Store) TriggerAudio(ctx context.Context, versionID int64, handle string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var stateRaw string
		row := tx.QueryRowContext(ctx, `SELECT audio_state FROM arrangement_versions WHERE id = ?`, versionID)
		if err := row.Scan(&stateRaw); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return services.Wrap(services.ErrNotFound, "catalog", "trigger audio", fmt.Sprintf("version %d", versionID), nil)
			}
			return fmt.Errorf("query audio state: %w", err)
		}
		state, ok := artifact.ParseState(stateRaw)
		if !ok {
			return fmt.Errorf("corrupt audio state %q for version %d", stateRaw, versionID)
		}
		if err := state.CanTrigger(); err != nil {
			return services.Wrap(err, "catalog", "trigger audio", fmt.Sprintf("version %d is %s", versionID, state), nil)
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE arrangement_versions SET audio_state = ?, audio_job = ?, audio_error = NULL WHERE id = ?`,
			artifact.StateProcessing, nullableString(handle), versionID,
		); err != nil {
			return fmt.Errorf("set audio processing: %w", err)
		}
		return nil
	})
}

// SetAudioJob records the engine job handle on a processing audio slot.
func (s *Store) SetAudioJob(ctx context.Context, versionID int64, handle string) error {
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE arrangement_versions SET audio_job = ? WHERE id = ? AND audio_state = ?`,
		nullableString(handle), versionID, artifact.StateProcessing,
	); err != nil {
		return fmt.Errorf("set audio job: %w", err)
	}
	return nil
}

// CompleteAudio moves a processing audio slot to complete.
func (s *Store) CompleteAudio(ctx context.Context, versionID int64) error {
	return s.finishAudio(ctx, versionID, artifact.StateComplete, "")
}

// FailAudio moves a processing audio slot to error, recording the engine's
// message on the row so later observers see it without re-polling.
func (s *Store) FailAudio(ctx context.Context, versionID int64, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "render failed"
	}
	return s.finishAudio(ctx, versionID, artifact.StateError, message)
}

func (s *Store) finishAudio(ctx context.Context, versionID int64, state artifact.State, message string) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE arrangement_versions SET audio_state = ?, audio_error = ? WHERE id = ? AND audio_state = ?`,
		state, nullableString(message), versionID, artifact.StateProcessing,
	)
	if err != nil {
		return fmt.Errorf("finish audio: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrValidation, "catalog", "finish audio",
			fmt.Sprintf("version %d has no processing audio job", versionID), nil)
	}
	return nil
}

// AudioObservation reports the current audio slot state for a version, with
// the audio artifact key once complete and the recorded message on error.
func (s *Store) AudioObservation(ctx context.Context, versionID int64) (artifact.Observation, error) {
	version, err := s.GetVersion(ctx, versionID)
	if err != nil {
		return artifact.Observation{}, err
	}
	if version == nil {
		return artifact.Observation{}, services.Wrap(services.ErrNotFound, "catalog", "observe audio", fmt.Sprintf("version %d", versionID), nil)
	}
	obs := artifact.Observation{State: version.AudioState}
	switch version.AudioState {
	case artifact.StateComplete:
		obs.ResultKey = version.AudioKey()
	case artifact.StateError:
		obs.ErrorMessage = version.AudioError
	}
	return obs, nil
}

const versionQuery = `SELECT v.id, v.arrangement_id, v.file_name, v.major, v.minor, v.patch,
    v.is_latest, v.audio_state, v.audio_job, v.audio_error, v.created_at, a.slug, e.slug
    FROM arrangement_versions v
    JOIN arrangements a ON a.id = v.arrangement_id
    JOIN ensembles e ON e.id = a.ensemble_id`

func scanVersion(scanner interface{ Scan(dest ...any) error }) (*Version, error) {
	var (
		version    Version
		isLatest   int
		stateRaw   string
		audioJob   sql.NullString
		audioError sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&version.ID,
		&version.ArrangementID,
		&version.FileName,
		&version.Major,
		&version.Minor,
		&version.Patch,
		&isLatest,
		&stateRaw,
		&audioJob,
		&audioError,
		&createdRaw,
		&version.ArrangementSlug,
		&version.EnsembleSlug,
	); err != nil {
		return nil, err
	}
	version.IsLatest = isLatest != 0
	if state, ok := artifact.ParseState(stateRaw); ok {
		version.AudioState = state
	} else {
		version.AudioState = artifact.StateNone
	}
	version.AudioJob = audioJob.String
	version.AudioError = audioError.String
	if created, err := parseTimeString(createdRaw); err == nil {
		version.CreatedAt = created
	}
	return &version, nil
}
