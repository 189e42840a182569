// Copyright 2023 the Pi Gazing authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"context"
	"fmt"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	pgx "github.com/jackc/pgx/v4"
)

// RegisterFile catalogs a staged blob under its repository filename. The
// catalog row and the blob stand or fall together: the rename to the final
// name is the last step inside the transaction, and any failure discards the
// blob, committed or not. If a file with the same repository filename
// already exists the call is idempotent when the record is identical
// (created is false, the staged blob is discarded) and returns
// ErrKeyConflict when it differs.
func (a *ArchiveDB) RegisterFile(ctx context.Context, fr *model.FileRecord, staged *contentstore.StagedBlob) (created bool, err error) {
	err = a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		existing, err := getFileRecord(ctx, tx, fr.RepositoryFname)
		if err != nil && !database.IsNotFound(err) {
			return err
		}
		if existing != nil {
			if !sameFileRecord(existing, fr) {
				return fmt.Errorf("file %q already exists with different content: %w",
					fr.RepositoryFname, database.ErrKeyConflict)
			}
			staged.Abort()
			fr.UID = existing.UID
			fr.CreatedAt = existing.CreatedAt
			return nil
		}

		obs, err := getObservation(ctx, tx, fr.ObservationID)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO archive_files
				(repository_fname, observation_uid, mime_type, semantic_type,
				 file_time, file_size, md5_hex)
			VALUES
				($1, $2, $3, $4, $5, $6, $7)
			RETURNING uid, created_at
		`, fr.RepositoryFname, obs.UID, fr.MimeType, fr.SemanticType,
			fr.FileTime, fr.FileSize, fr.MD5Hex)
		if err := row.Scan(&fr.UID, &fr.CreatedAt); err != nil {
			return fmt.Errorf("inserting file record: %w", err)
		}

		for _, item := range fr.Meta {
			sv, fv, jv := valueColumns(item.Value)
			if _, err := tx.Exec(ctx, `
				INSERT INTO archive_file_metadata
					(file_uid, key, string_value, float_value, json_value)
				VALUES
					($1, $2, $3, $4, $5)
			`, fr.UID, item.Key, sv, fv, jv); err != nil {
				return fmt.Errorf("inserting file metadata %q: %w", item.Key, err)
			}
		}

		// The rename is last so a rolled-back insert never leaves a
		// committed blob.
		if err := staged.Commit(fr.RepositoryFname); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		// Covers a transaction commit failure after the rename as well as
		// failures before it; discarding a still-staged blob is equally
		// safe.
		if derr := staged.Discard(); derr != nil {
			logging.FromContext(ctx).Errorw("discarding blob after failed registration",
				"file", fr.RepositoryFname, "error", derr)
		}
		return false, err
	}
	return created, nil
}

// GetFile looks up a file record by repository filename, including its
// metadata items.
func (a *ArchiveDB) GetFile(ctx context.Context, repositoryFname string) (*model.FileRecord, error) {
	var fr *model.FileRecord
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		fr, err = getFileRecord(ctx, tx, repositoryFname)
		return err
	})
	if err != nil {
		return nil, err
	}
	return fr, nil
}

// SearchFiles returns file records matching the predicate, ordered by (file
// time, repository filename) for stable keyset pagination.
func (a *ArchiveDB) SearchFiles(ctx context.Context, q *search.FileRecordSearch) ([]*model.FileRecord, error) {
	where, args := q.WhereSQL(1)
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT f.uid, f.repository_fname, o.public_id, f.mime_type,
		       f.semantic_type, f.file_time, f.file_size, f.md5_hex, f.created_at
		FROM archive_files f
		JOIN archive_observations o ON o.uid = f.observation_uid
		JOIN archive_observatories l ON l.uid = o.observatory_uid
		WHERE %s
		ORDER BY f.file_time %s, f.repository_fname %s
	`, where, order, order)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var result []*model.FileRecord
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("searching files: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var fr model.FileRecord
			if err := rows.Scan(&fr.UID, &fr.RepositoryFname, &fr.ObservationID,
				&fr.MimeType, &fr.SemanticType, &fr.FileTime, &fr.FileSize,
				&fr.MD5Hex, &fr.CreatedAt); err != nil {
				return fmt.Errorf("scanning file record: %w", err)
			}
			result = append(result, &fr)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, fr := range result {
			meta, err := fileMeta(ctx, tx, fr.UID)
			if err != nil {
				return err
			}
			fr.Meta = meta
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AllRepositoryFnames returns every cataloged repository filename. Used by
// the integrity scan to cross-check the content store.
func (a *ArchiveDB) AllRepositoryFnames(ctx context.Context) ([]string, error) {
	var names []string
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT repository_fname FROM archive_files ORDER BY repository_fname`)
		if err != nil {
			return fmt.Errorf("listing repository filenames: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return fmt.Errorf("scanning repository filename: %w", err)
			}
			names = append(names, name)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

func getFileRecord(ctx context.Context, tx pgx.Tx, repositoryFname string) (*model.FileRecord, error) {
	row := tx.QueryRow(ctx, `
		SELECT f.uid, f.repository_fname, o.public_id, f.mime_type,
		       f.semantic_type, f.file_time, f.file_size, f.md5_hex, f.created_at
		FROM archive_files f
		JOIN archive_observations o ON o.uid = f.observation_uid
		WHERE f.repository_fname = $1
	`, repositoryFname)

	var fr model.FileRecord
	if err := row.Scan(&fr.UID, &fr.RepositoryFname, &fr.ObservationID,
		&fr.MimeType, &fr.SemanticType, &fr.FileTime, &fr.FileSize,
		&fr.MD5Hex, &fr.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("looking up file record: %w", err)
	}

	meta, err := fileMeta(ctx, tx, fr.UID)
	if err != nil {
		return nil, err
	}
	fr.Meta = meta
	return &fr, nil
}

func fileMeta(ctx context.Context, tx pgx.Tx, fileUID int64) ([]model.MetaItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT key, string_value, float_value, json_value
		FROM archive_file_metadata
		WHERE file_uid = $1
		ORDER BY key
	`, fileUID)
	if err != nil {
		return nil, fmt.Errorf("loading file metadata: %w", err)
	}
	defer rows.Close()

	var meta []model.MetaItem
	for rows.Next() {
		var item model.MetaItem
		var sv *string
		var fv *float64
		var jv []byte
		if err := rows.Scan(&item.Key, &sv, &fv, &jv); err != nil {
			return nil, fmt.Errorf("scanning file metadata: %w", err)
		}
		item.Value = valueFromColumns(sv, fv, jv)
		meta = append(meta, item)
	}
	return meta, rows.Err()
}

// sameFileRecord reports whether two records describe the same file, hash
// and catalog fields included.
func sameFileRecord(a, b *model.FileRecord) bool {
	if a.ObservationID != b.ObservationID ||
		a.MimeType != b.MimeType ||
		a.SemanticType != b.SemanticType ||
		!a.FileTime.Equal(b.FileTime) ||
		a.FileSize != b.FileSize ||
		a.MD5Hex != b.MD5Hex ||
		len(a.Meta) != len(b.Meta) {
		return false
	}
	byKey := make(map[string]model.Value, len(a.Meta))
	for _, item := range a.Meta {
		byKey[item.Key] = item.Value
	}
	for _, item := range b.Meta {
		v, ok := byKey[item.Key]
		if !ok || !v.Equal(item.Value) {
			return false
		}
	}
	return true
}
