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
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// RegisterObservatory creates an observatory record. Re-registration with
// the same public id and identical coordinates is an idempotent no-op
// (created is false); differing coordinates return ErrKeyConflict.
func (a *ArchiveDB) RegisterObservatory(ctx context.Context, obs *model.Observatory) (created bool, err error) {
	err = a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		existing, err := getObservatory(ctx, tx, obs.PublicID)
		if err != nil && !database.IsNotFound(err) {
			return err
		}
		if existing != nil {
			if !existing.SameLocation(obs) {
				return fmt.Errorf("observatory %q registered at a different location: %w",
					obs.PublicID, database.ErrKeyConflict)
			}
			obs.UID = existing.UID
			obs.CreatedAt = existing.CreatedAt
			return nil
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO archive_observatories
				(public_id, name, latitude, longitude, altitude)
			VALUES
				($1, $2, $3, $4, $5)
			RETURNING uid, created_at
		`, obs.PublicID, obs.Name, obs.Latitude, obs.Longitude, obs.Altitude)
		if err := row.Scan(&obs.UID, &obs.CreatedAt); err != nil {
			return fmt.Errorf("inserting observatory: %w", err)
		}
		created = true
		return nil
	})
	return created, err
}

// GetObservatory looks up an observatory by public id.
func (a *ArchiveDB) GetObservatory(ctx context.Context, publicID string) (*model.Observatory, error) {
	var obs *model.Observatory
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		obs, err = getObservatory(ctx, tx, publicID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// ListObservatories returns all registered observatories ordered by public
// id.
func (a *ArchiveDB) ListObservatories(ctx context.Context) ([]*model.Observatory, error) {
	var result []*model.Observatory
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT uid, public_id, name, latitude, longitude, altitude, created_at
			FROM archive_observatories
			ORDER BY public_id
		`)
		if err != nil {
			return fmt.Errorf("listing observatories: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var obs model.Observatory
			if err := rows.Scan(&obs.UID, &obs.PublicID, &obs.Name,
				&obs.Latitude, &obs.Longitude, &obs.Altitude, &obs.CreatedAt); err != nil {
				return fmt.Errorf("scanning observatory: %w", err)
			}
			result = append(result, &obs)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getObservatory(ctx context.Context, tx pgx.Tx, publicID string) (*model.Observatory, error) {
	row := tx.QueryRow(ctx, `
		SELECT uid, public_id, name, latitude, longitude, altitude, created_at
		FROM archive_observatories
		WHERE public_id = $1
	`, publicID)

	var obs model.Observatory
	if err := row.Scan(&obs.UID, &obs.PublicID, &obs.Name,
		&obs.Latitude, &obs.Longitude, &obs.Altitude, &obs.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("looking up observatory: %w", err)
	}
	return &obs, nil
}
