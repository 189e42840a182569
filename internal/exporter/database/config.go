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
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// AddExportConfig creates or updates a configuration by config id. The
// export type of an existing configuration cannot change, since its queue
// rows live in a per-type table.
func (e *ExporterDB) AddExportConfig(ctx context.Context, cfg *model.ExportConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid export config: %w", err)
	}
	searchJSON, err := search.Marshal(cfg.Search)
	if err != nil {
		return fmt.Errorf("encoding search predicate: %w", err)
	}

	return e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		var existingType string
		err := tx.QueryRow(ctx, `
			SELECT export_type FROM archive_exportconfig WHERE config_id = $1
		`, cfg.ConfigID).Scan(&existingType)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("looking up export config: %w", err)
		}
		if err == nil && existingType != cfg.ExportType {
			return fmt.Errorf("export config %q has type %q, cannot change to %q: %w",
				cfg.ConfigID, existingType, cfg.ExportType, database.ErrKeyConflict)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO archive_exportconfig
				(config_id, target_url, username, password, export_type,
				 search_json, name, description, enabled)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (config_id) DO UPDATE
				SET target_url = excluded.target_url,
				    username = excluded.username,
				    password = excluded.password,
				    search_json = excluded.search_json,
				    name = excluded.name,
				    description = excluded.description,
				    enabled = excluded.enabled
		`, cfg.ConfigID, cfg.TargetURL, cfg.Username, cfg.Password, cfg.ExportType,
			searchJSON, cfg.Name, cfg.Description, cfg.Enabled); err != nil {
			return fmt.Errorf("upserting export config: %w", err)
		}
		return nil
	})
}

// GetExportConfig looks up a configuration by config id.
func (e *ExporterDB) GetExportConfig(ctx context.Context, configID string) (*model.ExportConfig, error) {
	var cfg *model.ExportConfig
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT config_id, target_url, username, password, export_type,
			       search_json, name, description, enabled, created_at
			FROM archive_exportconfig
			WHERE config_id = $1
		`, configID)

		c, err := scanExportConfig(row)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// ListExportConfigs returns all configurations ordered by config id. With
// enabledOnly set, disabled configurations are omitted.
func (e *ExporterDB) ListExportConfigs(ctx context.Context, enabledOnly bool) ([]*model.ExportConfig, error) {
	sql := `
		SELECT config_id, target_url, username, password, export_type,
		       search_json, name, description, enabled, created_at
		FROM archive_exportconfig
	`
	if enabledOnly {
		sql += " WHERE enabled"
	}
	sql += " ORDER BY config_id"

	var configs []*model.ExportConfig
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql)
		if err != nil {
			return fmt.Errorf("listing export configs: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			c, err := scanExportConfig(rows)
			if err != nil {
				return err
			}
			configs = append(configs, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return configs, nil
}

// DeleteExportConfig removes a configuration. Its queue rows are dropped by
// foreign key cascade.
func (e *ExporterDB) DeleteExportConfig(ctx context.Context, configID string) error {
	return e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM archive_exportconfig WHERE config_id = $1
		`, configID)
		if err != nil {
			return fmt.Errorf("deleting export config: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		return nil
	})
}

func scanExportConfig(row pgx.Row) (*model.ExportConfig, error) {
	var c model.ExportConfig
	var searchJSON []byte
	if err := row.Scan(&c.ConfigID, &c.TargetURL, &c.Username, &c.Password,
		&c.ExportType, &searchJSON, &c.Name, &c.Description, &c.Enabled,
		&c.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("scanning export config: %w", err)
	}

	s, err := search.Unmarshal(searchJSON)
	if err != nil {
		return nil, fmt.Errorf("decoding search predicate for %q: %w", c.ConfigID, err)
	}
	c.Search = s
	return &c, nil
}
