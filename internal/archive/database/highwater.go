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
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// GetHighWaterMark reads the bookmark for one (observatory, mark type) pair.
func (a *ArchiveDB) GetHighWaterMark(ctx context.Context, observatoryID, markType string) (*model.HighWaterMark, error) {
	var mark *model.HighWaterMark
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT l.public_id, h.mark_type, h.mark_time
			FROM archive_highwatermarks h
			JOIN archive_observatories l ON l.uid = h.observatory_uid
			WHERE l.public_id = $1 AND h.mark_type = $2
		`, observatoryID, markType)

		var m model.HighWaterMark
		if err := row.Scan(&m.ObservatoryID, &m.MarkType, &m.Time); err != nil {
			if err == pgx.ErrNoRows {
				return database.ErrNotFound
			}
			return fmt.Errorf("looking up high water mark: %w", err)
		}
		mark = &m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return mark, nil
}

// SetHighWaterMark writes the bookmark for one (observatory, mark type)
// pair, creating or overwriting it.
func (a *ArchiveDB) SetHighWaterMark(ctx context.Context, observatoryID, markType string, t time.Time) error {
	return a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		obs, err := getObservatory(ctx, tx, observatoryID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO archive_highwatermarks (observatory_uid, mark_type, mark_time)
			VALUES ($1, $2, $3)
			ON CONFLICT (observatory_uid, mark_type) DO UPDATE
				SET mark_time = excluded.mark_time
		`, obs.UID, markType, t); err != nil {
			return fmt.Errorf("setting high water mark: %w", err)
		}
		return nil
	})
}
