package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"podium/internal/services"
)

// ResolveIdentity maps a raw part label from an uploaded score to an
// ensemble-wide part identity. Resolution order: an arrangement-scoped alias,
// then an identity whose normalized name matches, then a freshly created
// identity. Aliases and matches that land on an absorbed identity follow the
// redirect to the surviving one.
func (s *Store) ResolveIdentity(ctx context.Context, ensembleID, arrangementID int64, rawName string) (*PartIdentity, error) {
	display := strings.Join(strings.Fields(rawName), " ")
	if display == "" {
		return nil, services.Wrap(services.ErrValidation, "catalog", "resolve identity", "part name required", nil)
	}
	normalized := NormalizeName(display)

	var identityID int64
	row := s.db.QueryRowContext(
		ctx,
		`SELECT part_identity_id FROM part_aliases
         WHERE ensemble_id = ? AND arrangement_id = ? AND alias_normalized = ?`,
		ensembleID, arrangementID, normalized,
	)
	err := row.Scan(&identityID)
	switch {
	case err == nil:
		return s.resolveRedirect(ctx, identityID)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("query alias: %w", err)
	}

	row = s.db.QueryRowContext(
		ctx,
		`SELECT id FROM part_identities WHERE ensemble_id = ? AND name_normalized = ?`,
		ensembleID, normalized,
	)
	err = row.Scan(&identityID)
	switch {
	case err == nil:
		return s.resolveRedirect(ctx, identityID)
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, fmt.Errorf("query identity by name: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO part_identities (ensemble_id, display_name, name_normalized, created_at)
         VALUES (?, ?, ?, ?)`,
		ensembleID, display, normalized, nowString(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetIdentity(ctx, id)
}

// resolveRedirect follows merged_into chains until it reaches a surviving
// identity.
func (s *Store) resolveRedirect(ctx context.Context, id int64) (*PartIdentity, error) {
	for {
		identity, err := s.GetIdentity(ctx, id)
		if err != nil {
			return nil, err
		}
		if identity == nil {
			return nil, services.Wrap(services.ErrNotFound, "catalog", "resolve identity", fmt.Sprintf("identity %d", id), nil)
		}
		if !identity.Merged() {
			return identity, nil
		}
		id = *identity.MergedInto
	}
}

// GetIdentity fetches a part identity by identifier.
func (s *Store) GetIdentity(ctx context.Context, id int64) (*PartIdentity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM part_identities WHERE id = ?`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

// ListIdentities returns an ensemble's surviving identities in presentation
// order: explicitly ordered parts first by their sort position, then unordered
// parts by case-insensitive name.
func (s *Store) ListIdentities(ctx context.Context, ensembleID int64) ([]*PartIdentity, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+identityColumns+` FROM part_identities WHERE ensemble_id = ? AND merged_into IS NULL`,
		ensembleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list identities: %w", err)
	}
	defer rows.Close()

	var identities []*PartIdentity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	coll := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(identities, func(i, j int) bool {
		a, b := identities[i], identities[j]
		switch {
		case a.SortOrder != nil && b.SortOrder != nil:
			return *a.SortOrder < *b.SortOrder
		case a.SortOrder != nil:
			return true
		case b.SortOrder != nil:
			return false
		default:
			return coll.CompareString(a.DisplayName, b.DisplayName) < 0
		}
	})
	return identities, nil
}

// MergeIdentities absorbs the source identity into the target. The source's
// assets move to the target, both prior names become aliases in every
// arrangement that referenced either identity, and the source row survives
// only as a redirect. A non-empty newName renames the target. The merge is
// rejected when any single version holds assets for both identities: those
// parts coexisted in one score, so they cannot be the same part.
func (s *Store) MergeIdentities(ctx context.Context, sourceID, targetID int64, newName string) (*PartIdentity, error) {
	if sourceID == targetID {
		return nil, services.Wrap(services.ErrInvalidMerge, "catalog", "merge identities", "source and target are the same identity", nil)
	}
	source, err := s.GetIdentity(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	target, err := s.GetIdentity(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if source == nil || target == nil {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "merge identities", "identity not found", nil)
	}
	if source.EnsembleID != target.EnsembleID {
		return nil, services.Wrap(services.ErrInvalidMerge, "catalog", "merge identities", "identities belong to different ensembles", nil)
	}
	if source.Merged() || target.Merged() {
		return nil, services.Wrap(services.ErrInvalidMerge, "catalog", "merge identities", "identity already absorbed by an earlier merge", nil)
	}

	newName = strings.Join(strings.Fields(newName), " ")

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var conflicts int
		row := tx.QueryRowContext(
			ctx,
			`SELECT COUNT(*) FROM part_assets a
             JOIN part_assets b ON a.version_id = b.version_id
             WHERE a.part_identity_id = ? AND b.part_identity_id = ?`,
			sourceID, targetID,
		)
		if err := row.Scan(&conflicts); err != nil {
			return fmt.Errorf("check merge conflicts: %w", err)
		}
		if conflicts > 0 {
			return services.Wrap(services.ErrInvalidMerge, "catalog", "merge identities",
				fmt.Sprintf("%q and %q both appear in the same version", source.DisplayName, target.DisplayName), nil)
		}

		arrangementIDs, err := referencingArrangements(ctx, tx, sourceID, targetID)
		if err != nil {
			return err
		}
		for _, arrangementID := range arrangementIDs {
			for _, name := range []string{source.DisplayName, target.DisplayName} {
				if _, err := tx.ExecContext(
					ctx,
					`INSERT OR IGNORE INTO part_aliases
                     (ensemble_id, arrangement_id, part_identity_id, alias, alias_normalized)
                     VALUES (?, ?, ?, ?, ?)`,
					source.EnsembleID, arrangementID, targetID, name, NormalizeName(name),
				); err != nil {
					return fmt.Errorf("insert alias: %w", err)
				}
			}
		}

		if _, err := tx.ExecContext(
			ctx,
			`UPDATE part_assets SET part_identity_id = ? WHERE part_identity_id = ?`,
			targetID, sourceID,
		); err != nil {
			return fmt.Errorf("reassign assets: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE part_aliases SET part_identity_id = ? WHERE part_identity_id = ?`,
			targetID, sourceID,
		); err != nil {
			return fmt.Errorf("redirect aliases: %w", err)
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE part_identities SET merged_into = ?, sort_order = NULL WHERE id = ?`,
			targetID, sourceID,
		); err != nil {
			return fmt.Errorf("mark source merged: %w", err)
		}

		if newName != "" && newName != target.DisplayName {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE part_identities SET display_name = ?, name_normalized = ? WHERE id = ?`,
				newName, NormalizeName(newName), targetID,
			); err != nil {
				return fmt.Errorf("rename target: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetIdentity(ctx, targetID)
}

// ReorderIdentities assigns an explicit presentation order to an ensemble's
// parts. The ordering must cover every surviving identity exactly once.
func (s *Store) ReorderIdentities(ctx context.Context, ensembleID int64, orderedIDs []int64) error {
	identities, err := s.ListIdentities(ctx, ensembleID)
	if err != nil {
		return err
	}
	expected := make(map[int64]bool, len(identities))
	for _, identity := range identities {
		expected[identity.ID] = false
	}
	if len(orderedIDs) != len(expected) {
		return services.Wrap(services.ErrIncompleteOrdering, "catalog", "reorder identities",
			fmt.Sprintf("ordering lists %d identities, ensemble has %d", len(orderedIDs), len(expected)), nil)
	}
	for _, id := range orderedIDs {
		seen, ok := expected[id]
		if !ok {
			return services.Wrap(services.ErrIncompleteOrdering, "catalog", "reorder identities",
				fmt.Sprintf("identity %d is not an active part of this ensemble", id), nil)
		}
		if seen {
			return services.Wrap(services.ErrIncompleteOrdering, "catalog", "reorder identities",
				fmt.Sprintf("identity %d listed twice", id), nil)
		}
		expected[id] = true
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for position, id := range orderedIDs {
			if _, err := tx.ExecContext(
				ctx,
				`UPDATE part_identities SET sort_order = ? WHERE id = ?`,
				position, id,
			); err != nil {
				return fmt.Errorf("set sort order: %w", err)
			}
		}
		return nil
	})
}

// RegisterVersionParts records the assets extracted from a newly appended
// version: one score asset plus one asset per named part, each resolved to an
// ensemble identity.
func (s *Store) RegisterVersionParts(ctx context.Context, version *Version, ensembleID int64, partNames []string) ([]*PartAsset, error) {
	if version == nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", "register parts", "version required", nil)
	}

	assets := []*PartAsset{{
		VersionID: version.ID,
		Name:      "Score",
		FileKey:   version.ScorePDFKey(),
		IsScore:   true,
	}}
	for _, rawName := range partNames {
		identity, err := s.ResolveIdentity(ctx, ensembleID, version.ArrangementID, rawName)
		if err != nil {
			return nil, err
		}
		identityID := identity.ID
		assets = append(assets, &PartAsset{
			VersionID:      version.ID,
			PartIdentityID: &identityID,
			Name:           identity.DisplayName,
			FileKey:        version.PartPDFKey(strings.Join(strings.Fields(rawName), " ")),
		})
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, asset := range assets {
			res, err := tx.ExecContext(
				ctx,
				`INSERT INTO part_assets (version_id, part_identity_id, name, file_key, is_score)
                 VALUES (?, ?, ?, ?, ?)`,
				asset.VersionID, nullableInt64(asset.PartIdentityID), asset.Name, asset.FileKey, boolToInt(asset.IsScore),
			)
			if err != nil {
				return fmt.Errorf("insert asset: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("last insert id: %w", err)
			}
			asset.ID = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return assets, nil
}

// ListVersionAssets returns a version's assets, score first.
func (s *Store) ListVersionAssets(ctx context.Context, versionID int64) ([]*PartAsset, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, version_id, part_identity_id, name, file_key, is_score
         FROM part_assets WHERE version_id = ? ORDER BY is_score DESC, id`,
		versionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list version assets: %w", err)
	}
	defer rows.Close()

	var assets []*PartAsset
	for rows.Next() {
		var (
			asset      PartAsset
			identityID sql.NullInt64
			isScore    int
		)
		if err := rows.Scan(&asset.ID, &asset.VersionID, &identityID, &asset.Name, &asset.FileKey, &isScore); err != nil {
			return nil, err
		}
		if identityID.Valid {
			id := identityID.Int64
			asset.PartIdentityID = &id
		}
		asset.IsScore = isScore != 0
		assets = append(assets, &asset)
	}
	return assets, rows.Err()
}

// referencingArrangements lists the arrangements holding assets for any of the
// given identities.
func referencingArrangements(ctx context.Context, tx *sql.Tx, identityIDs ...int64) ([]int64, error) {
	args := make([]any, len(identityIDs))
	for i, id := range identityIDs {
		args[i] = id
	}
	rows, err := tx.QueryContext(
		ctx,
		`SELECT DISTINCT v.arrangement_id FROM part_assets a
         JOIN arrangement_versions v ON v.id = a.version_id
         WHERE a.part_identity_id IN (`+makePlaceholders(len(identityIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query referencing arrangements: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const identityColumns = "id, ensemble_id, display_name, sort_order, merged_into, created_at"

func scanIdentity(scanner interface{ Scan(dest ...any) error }) (*PartIdentity, error) {
	var (
		identity   PartIdentity
		sortOrder  sql.NullInt64
		mergedInto sql.NullInt64
		createdRaw string
	)
	if err := scanner.Scan(&identity.ID, &identity.EnsembleID, &identity.DisplayName, &sortOrder, &mergedInto, &createdRaw); err != nil {
		return nil, err
	}
	if sortOrder.Valid {
		order := int(sortOrder.Int64)
		identity.SortOrder = &order
	}
	if mergedInto.Valid {
		target := mergedInto.Int64
		identity.MergedInto = &target
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		identity.CreatedAt = created
	}
	return &identity, nil
}
