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
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// RegisterMetadata appends one record to an observatory's metadata history.
// The history is append-only; a new record with the same key supersedes
// earlier ones for lookups at later times but never replaces them. Replaying
// a byte-identical record is an idempotent no-op (created is false), so the
// ingest endpoint can safely receive the same export twice.
func (a *ArchiveDB) RegisterMetadata(ctx context.Context, m *model.ObservatoryMetadata) (created bool, err error) {
	err = a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		obs, err := getObservatory(ctx, tx, m.ObservatoryID)
		if err != nil {
			return err
		}

		sv, fv, jv := valueColumns(m.Value)

		var existingUID int64
		var esv *string
		var efv *float64
		var ejv []byte
		err = tx.QueryRow(ctx, `
			SELECT uid, string_value, float_value, json_value
			FROM archive_metadata
			WHERE observatory_uid = $1 AND key = $2
			  AND metadata_time = $3 AND created_at = $4 AND created_by = $5
			LIMIT 1
		`, obs.UID, m.Key, m.MetadataTime, m.CreatedAt, m.CreatedBy).
			Scan(&existingUID, &esv, &efv, &ejv)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("checking for replayed metadata: %w", err)
		}
		if err == nil && valueFromColumns(esv, efv, ejv).Equal(m.Value) {
			m.UID = existingUID
			return nil
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO archive_metadata
				(observatory_uid, key, string_value, float_value, json_value,
				 metadata_time, created_at, created_by)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING uid
		`, obs.UID, m.Key, sv, fv, jv, m.MetadataTime, m.CreatedAt, m.CreatedBy)
		if err := row.Scan(&m.UID); err != nil {
			return fmt.Errorf("inserting metadata: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// LookupMetadata resolves an observatory metadata key at time t: the most
// recent record whose metadata time is at or before t. Returns ErrNotFound
// when no record predates t.
func (a *ArchiveDB) LookupMetadata(ctx context.Context, observatoryID, key string, t time.Time) (*model.ObservatoryMetadata, error) {
	var result *model.ObservatoryMetadata
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT m.uid, l.public_id, m.key,
			       m.string_value, m.float_value, m.json_value,
			       m.metadata_time, m.created_at, m.created_by
			FROM archive_metadata m
			JOIN archive_observatories l ON l.uid = m.observatory_uid
			WHERE l.public_id = $1 AND m.key = $2 AND m.metadata_time <= $3
			ORDER BY m.metadata_time DESC
			LIMIT 1
		`, observatoryID, key, t)

		m, err := scanMetadata(row)
		if err != nil {
			return err
		}
		result = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// SearchMetadata returns metadata records matching the predicate, ordered by
// metadata time then record uid.
func (a *ArchiveDB) SearchMetadata(ctx context.Context, q *search.ObservatoryMetadataSearch) ([]*model.ObservatoryMetadata, error) {
	where, args := q.WhereSQL(1)
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT m.uid, l.public_id, m.key,
		       m.string_value, m.float_value, m.json_value,
		       m.metadata_time, m.created_at, m.created_by
		FROM archive_metadata m
		JOIN archive_observatories l ON l.uid = m.observatory_uid
		WHERE %s
		ORDER BY m.metadata_time %s, m.uid %s
	`, where, order, order)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var result []*model.ObservatoryMetadata
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("searching metadata: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			m, err := scanMetadata(rows)
			if err != nil {
				return err
			}
			result = append(result, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func scanMetadata(row pgx.Row) (*model.ObservatoryMetadata, error) {
	var m model.ObservatoryMetadata
	var sv *string
	var fv *float64
	var jv []byte
	if err := row.Scan(&m.UID, &m.ObservatoryID, &m.Key, &sv, &fv, &jv,
		&m.MetadataTime, &m.CreatedAt, &m.CreatedBy); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning metadata: %w", err)
	}
	m.Value = valueFromColumns(sv, fv, jv)
	return &m, nil
}
