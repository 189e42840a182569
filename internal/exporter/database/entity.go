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
	"encoding/json"
	"fmt"

	archivemodel "github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// The queue tables reference entities by surrogate uid. These lookups
// resolve a leased row back to the full entity the payload builder needs.

// GetMetadataByUID resolves a metadata queue row's entity.
func (e *ExporterDB) GetMetadataByUID(ctx context.Context, uid int64) (*archivemodel.ObservatoryMetadata, error) {
	var m archivemodel.ObservatoryMetadata
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT m.uid, l.public_id, m.key,
			       m.string_value, m.float_value, m.json_value,
			       m.metadata_time, m.created_at, m.created_by
			FROM archive_metadata m
			JOIN archive_observatories l ON l.uid = m.observatory_uid
			WHERE m.uid = $1
		`, uid)

		var sv *string
		var fv *float64
		var jv []byte
		if err := row.Scan(&m.UID, &m.ObservatoryID, &m.Key, &sv, &fv, &jv,
			&m.MetadataTime, &m.CreatedAt, &m.CreatedBy); err != nil {
			if err == pgx.ErrNoRows {
				return database.ErrNotFound
			}
			return fmt.Errorf("resolving metadata %d: %w", uid, err)
		}
		m.Value = metadataValue(sv, fv, jv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetObservationByUID resolves an observation queue row's entity, metadata
// items included.
func (e *ExporterDB) GetObservationByUID(ctx context.Context, uid int64) (*archivemodel.Observation, error) {
	var obs archivemodel.Observation
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT o.uid, o.public_id, l.public_id, o.obs_time, o.obs_type,
			       o.created_by, o.created_at
			FROM archive_observations o
			JOIN archive_observatories l ON l.uid = o.observatory_uid
			WHERE o.uid = $1
		`, uid)
		if err := row.Scan(&obs.UID, &obs.PublicID, &obs.ObservatoryID,
			&obs.ObsTime, &obs.ObsType, &obs.CreatedBy, &obs.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return database.ErrNotFound
			}
			return fmt.Errorf("resolving observation %d: %w", uid, err)
		}

		meta, err := entityMeta(ctx, tx, "archive_obs_metadata", "observation_uid", uid)
		if err != nil {
			return err
		}
		obs.Meta = meta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &obs, nil
}

// GetFileByUID resolves a file queue row's entity, metadata items included.
func (e *ExporterDB) GetFileByUID(ctx context.Context, uid int64) (*archivemodel.FileRecord, error) {
	var fr archivemodel.FileRecord
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT f.uid, f.repository_fname, o.public_id, f.mime_type,
			       f.semantic_type, f.file_time, f.file_size, f.md5_hex, f.created_at
			FROM archive_files f
			JOIN archive_observations o ON o.uid = f.observation_uid
			WHERE f.uid = $1
		`, uid)
		if err := row.Scan(&fr.UID, &fr.RepositoryFname, &fr.ObservationID,
			&fr.MimeType, &fr.SemanticType, &fr.FileTime, &fr.FileSize,
			&fr.MD5Hex, &fr.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return database.ErrNotFound
			}
			return fmt.Errorf("resolving file %d: %w", uid, err)
		}

		meta, err := entityMeta(ctx, tx, "archive_file_metadata", "file_uid", uid)
		if err != nil {
			return err
		}
		fr.Meta = meta
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

func entityMeta(ctx context.Context, tx pgx.Tx, table, fkColumn string, uid int64) ([]archivemodel.MetaItem, error) {
	rows, err := tx.Query(ctx, fmt.Sprintf(`
		SELECT key, string_value, float_value, json_value
		FROM %s
		WHERE %s = $1
		ORDER BY key
	`, table, fkColumn), uid)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", table, err)
	}
	defer rows.Close()

	var meta []archivemodel.MetaItem
	for rows.Next() {
		var item archivemodel.MetaItem
		var sv *string
		var fv *float64
		var jv []byte
		if err := rows.Scan(&item.Key, &sv, &fv, &jv); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", table, err)
		}
		item.Value = metadataValue(sv, fv, jv)
		meta = append(meta, item)
	}
	return meta, rows.Err()
}

func metadataValue(sv *string, fv *float64, jv []byte) archivemodel.Value {
	switch {
	case sv != nil:
		return archivemodel.Value{Text: sv}
	case fv != nil:
		return archivemodel.Value{Number: fv}
	default:
		return archivemodel.Value{JSON: append(json.RawMessage(nil), jv...)}
	}
}
