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

	"github.com/dcf21/pi-gazing-sub002/internal/exporter/model"
	"github.com/dcf21/pi-gazing-sub002/internal/search"

	pgx "github.com/jackc/pgx/v4"
)

// MarkForExport enrols every entity matching the configuration's predicate
// that is not yet enqueued, as a set-difference insert in one transaction.
// New rows start in state pending with attempt count 0. Returns the number
// of newly marked rows; re-running with no new producer activity marks
// nothing.
func (e *ExporterDB) MarkForExport(ctx context.Context, cfg *model.ExportConfig) (int64, error) {
	sql, args, err := markSQL(cfg)
	if err != nil {
		return 0, err
	}

	var marked int64
	err = e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("marking for export config %q: %w", cfg.ConfigID, err)
		}
		marked = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// markSQL builds the set-difference insert for one configuration. Argument
// $1 is the config id; the predicate's arguments follow.
func markSQL(cfg *model.ExportConfig) (string, []interface{}, error) {
	switch s := cfg.Search.(type) {
	case *search.ObservatoryMetadataSearch:
		where, args := s.WhereSQL(2)
		sql := fmt.Sprintf(`
			INSERT INTO archive_metadataexport (config_id, metadata_uid)
			SELECT $1, m.uid
			FROM archive_metadata m
			JOIN archive_observatories l ON l.uid = m.observatory_uid
			WHERE %s
			ON CONFLICT (config_id, metadata_uid) DO NOTHING
		`, where)
		return sql, append([]interface{}{cfg.ConfigID}, args...), nil

	case *search.ObservationSearch:
		where, args := s.WhereSQL(2)
		sql := fmt.Sprintf(`
			INSERT INTO archive_observationexport (config_id, observation_uid)
			SELECT $1, o.uid
			FROM archive_observations o
			JOIN archive_observatories l ON l.uid = o.observatory_uid
			WHERE %s
			ON CONFLICT (config_id, observation_uid) DO NOTHING
		`, where)
		return sql, append([]interface{}{cfg.ConfigID}, args...), nil

	case *search.FileRecordSearch:
		where, args := s.WhereSQL(2)
		sql := fmt.Sprintf(`
			INSERT INTO archive_fileexport (config_id, file_uid)
			SELECT $1, f.uid
			FROM archive_files f
			JOIN archive_observations o ON o.uid = f.observation_uid
			JOIN archive_observatories l ON l.uid = o.observatory_uid
			WHERE %s
			ON CONFLICT (config_id, file_uid) DO NOTHING
		`, where)
		return sql, append([]interface{}{cfg.ConfigID}, args...), nil

	default:
		return "", nil, fmt.Errorf("config %q: predicate kind %s cannot be marked",
			cfg.ConfigID, cfg.Search.Kind())
	}
}
