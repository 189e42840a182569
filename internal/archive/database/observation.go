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
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// RegisterObservation creates an observation with its metadata items in one
// transaction. If an observation with the same public id already exists the
// call is idempotent when the submitted record is identical (created is
// false) and returns ErrKeyConflict when it differs.
func (a *ArchiveDB) RegisterObservation(ctx context.Context, obs *model.Observation) (created bool, err error) {
	err = a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		existing, err := getObservation(ctx, tx, obs.PublicID)
		if err != nil && !database.IsNotFound(err) {
			return err
		}
		if existing != nil {
			if !sameObservation(existing, obs) {
				return fmt.Errorf("observation %q already exists with different content: %w",
					obs.PublicID, database.ErrKeyConflict)
			}
			obs.UID = existing.UID
			obs.CreatedAt = existing.CreatedAt
			return nil
		}

		observatory, err := getObservatory(ctx, tx, obs.ObservatoryID)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO archive_observations
				(public_id, observatory_uid, obs_time, obs_type, created_by)
			VALUES
				($1, $2, $3, $4, $5)
			RETURNING uid, created_at
		`, obs.PublicID, observatory.UID, obs.ObsTime, obs.ObsType, obs.CreatedBy)
		if err := row.Scan(&obs.UID, &obs.CreatedAt); err != nil {
			return fmt.Errorf("inserting observation: %w", err)
		}

		for _, item := range obs.Meta {
			sv, fv, jv := valueColumns(item.Value)
			if _, err := tx.Exec(ctx, `
				INSERT INTO archive_obs_metadata
					(observation_uid, key, string_value, float_value, json_value)
				VALUES
					($1, $2, $3, $4, $5)
			`, obs.UID, item.Key, sv, fv, jv); err != nil {
				return fmt.Errorf("inserting observation metadata %q: %w", item.Key, err)
			}
		}

		created = true
		return nil
	})
	return created, err
}

// GetObservation looks up an observation by public id, including its metadata
// items.
func (a *ArchiveDB) GetObservation(ctx context.Context, publicID string) (*model.Observation, error) {
	var obs *model.Observation
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		obs, err = getObservation(ctx, tx, publicID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// SearchObservations returns observations matching the predicate, ordered by
// (obs time, public id) for stable keyset pagination.
func (a *ArchiveDB) SearchObservations(ctx context.Context, q *search.ObservationSearch) ([]*model.Observation, error) {
	where, args := q.WhereSQL(1)
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT o.uid, o.public_id, l.public_id, o.obs_time, o.obs_type,
		       o.created_by, o.created_at
		FROM archive_observations o
		JOIN archive_observatories l ON l.uid = o.observatory_uid
		WHERE %s
		ORDER BY o.obs_time %s, o.public_id %s
	`, where, order, order)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var result []*model.Observation
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("searching observations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var obs model.Observation
			if err := rows.Scan(&obs.UID, &obs.PublicID, &obs.ObservatoryID,
				&obs.ObsTime, &obs.ObsType, &obs.CreatedBy, &obs.CreatedAt); err != nil {
				return fmt.Errorf("scanning observation: %w", err)
			}
			result = append(result, &obs)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, obs := range result {
			meta, err := observationMeta(ctx, tx, obs.UID)
			if err != nil {
				return err
			}
			obs.Meta = meta
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getObservation(ctx context.Context, tx pgx.Tx, publicID string) (*model.Observation, error) {
	row := tx.QueryRow(ctx, `
		SELECT o.uid, o.public_id, l.public_id, o.obs_time, o.obs_type,
		       o.created_by, o.created_at
		FROM archive_observations o
		JOIN archive_observatories l ON l.uid = o.observatory_uid
		WHERE o.public_id = $1
	`, publicID)

	var obs model.Observation
	if err := row.Scan(&obs.UID, &obs.PublicID, &obs.ObservatoryID,
		&obs.ObsTime, &obs.ObsType, &obs.CreatedBy, &obs.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("looking up observation: %w", err)
	}

	meta, err := observationMeta(ctx, tx, obs.UID)
	if err != nil {
		return nil, err
	}
	obs.Meta = meta
	return &obs, nil
}

func observationMeta(ctx context.Context, tx pgx.Tx, observationUID int64) ([]model.MetaItem, error) {
	rows, err := tx.Query(ctx, `
		SELECT key, string_value, float_value, json_value
		FROM archive_obs_metadata
		WHERE observation_uid = $1
		ORDER BY key
	`, observationUID)
	if err != nil {
		return nil, fmt.Errorf("loading observation metadata: %w", err)
	}
	defer rows.Close()

	var meta []model.MetaItem
	for rows.Next() {
		var item model.MetaItem
		var sv *string
		var fv *float64
		var jv []byte
		if err := rows.Scan(&item.Key, &sv, &fv, &jv); err != nil {
			return nil, fmt.Errorf("scanning observation metadata: %w", err)
		}
		item.Value = valueFromColumns(sv, fv, jv)
		meta = append(meta, item)
	}
	return meta, rows.Err()
}

// sameObservation reports whether two records describe the same observation,
// field for field including metadata.
func sameObservation(a, b *model.Observation) bool {
	if a.ObservatoryID != b.ObservatoryID ||
		!a.ObsTime.Equal(b.ObsTime) ||
		a.ObsType != b.ObsType ||
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
