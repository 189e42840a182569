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
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// leaseOrder is the type priority for leasing: prerequisite classes come
// first, so observatory metadata and observations drain ahead of the files
// that depend on them.
var leaseOrder = []string{
	model.ExportTypeMetadata,
	model.ExportTypeObservation,
	model.ExportTypeFile,
}

// LeaseNext claims the next item to transmit and transitions it to
// in-progress with an incremented attempt count, all in one transaction.
// Within a queue, items are served FIFO with lower attempt counts first so
// repeat-offenders do not starve fresh items. Rows belonging to disabled
// configurations, or to config ids in excludeConfigIDs, are skipped.
//
// Returns (nil, nil) when every queue is drained.
func (e *ExporterDB) LeaseNext(ctx context.Context, excludeConfigIDs []string) (*model.QueueItem, error) {
	if excludeConfigIDs == nil {
		excludeConfigIDs = []string{}
	}

	var item *model.QueueItem
	err := e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		for _, exportType := range leaseOrder {
			table, uidColumn, err := queueTable(exportType)
			if err != nil {
				return err
			}

			row := tx.QueryRow(ctx, fmt.Sprintf(`
				SELECT q.queue_id, q.config_id, q.%s, q.attempt_count
				FROM %s q
				JOIN archive_exportconfig c ON c.config_id = q.config_id
				WHERE q.export_state IN ($2, $3)
				  AND c.enabled
				  AND NOT (q.config_id = ANY($1))
				ORDER BY q.attempt_count ASC, q.queue_id ASC
				LIMIT 1
				FOR UPDATE OF q SKIP LOCKED
			`, uidColumn, table), excludeConfigIDs,
				model.StatePending, model.StateFailedTransient)

			var leased model.QueueItem
			if err := row.Scan(&leased.QueueID, &leased.ConfigID,
				&leased.EntityUID, &leased.AttemptCount); err != nil {
				if err == pgx.ErrNoRows {
					continue
				}
				return fmt.Errorf("leasing from %s: %w", table, err)
			}

			leased.ExportType = exportType
			leased.State = model.StateInProgress
			if err := tx.QueryRow(ctx, fmt.Sprintf(`
				UPDATE %s
				SET export_state = $2, attempt_count = attempt_count + 1, last_attempt = now()
				WHERE queue_id = $1
				RETURNING attempt_count, last_attempt
			`, table), leased.QueueID, model.StateInProgress).
				Scan(&leased.AttemptCount, &leased.LastAttempt); err != nil {
				return fmt.Errorf("claiming queue row %d: %w", leased.QueueID, err)
			}

			item = &leased
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CompleteItem records the outcome of a transmission attempt by moving the
// leased row to the given state.
func (e *ExporterDB) CompleteItem(ctx context.Context, item *model.QueueItem, state string) error {
	table, _, err := queueTable(item.ExportType)
	if err != nil {
		return err
	}
	return e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s SET export_state = $2 WHERE queue_id = $1
		`, table), item.QueueID, state)
		if err != nil {
			return fmt.Errorf("completing queue row %d: %w", item.QueueID, err)
		}
		if tag.RowsAffected() == 0 {
			return database.ErrNotFound
		}
		item.State = state
		return nil
	})
}

// DemoteInProgress moves every in-progress row back to pending. Called on
// worker startup, so rows stranded by a crash are retried rather than stuck.
func (e *ExporterDB) DemoteInProgress(ctx context.Context) (int64, error) {
	var demoted int64
	err := e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		for _, exportType := range leaseOrder {
			table, _, err := queueTable(exportType)
			if err != nil {
				return err
			}
			tag, err := tx.Exec(ctx, fmt.Sprintf(`
				UPDATE %s SET export_state = $2 WHERE export_state = $1
			`, table), model.StateInProgress, model.StatePending)
			if err != nil {
				return fmt.Errorf("demoting in-progress rows in %s: %w", table, err)
			}
			demoted += tag.RowsAffected()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return demoted, nil
}

// ResetFailed returns a configuration's quarantined rows to pending with a
// zeroed attempt count. This is the operator-facing recovery from
// failed-permanent.
func (e *ExporterDB) ResetFailed(ctx context.Context, configID string) (int64, error) {
	cfg, err := e.GetExportConfig(ctx, configID)
	if err != nil {
		return 0, err
	}
	table, _, err := queueTable(cfg.ExportType)
	if err != nil {
		return 0, err
	}

	var reset int64
	err = e.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			UPDATE %s
			SET export_state = $2, attempt_count = 0
			WHERE config_id = $1 AND export_state = $3
		`, table), configID, model.StatePending, model.StateFailedPermanent)
		if err != nil {
			return fmt.Errorf("resetting failed rows for %q: %w", configID, err)
		}
		reset = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// QueueCounts reports the number of rows per (export type, state), for
// telemetry and the drain status reply.
func (e *ExporterDB) QueueCounts(ctx context.Context) (map[string]map[string]int64, error) {
	counts := make(map[string]map[string]int64, len(leaseOrder))
	err := e.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		for _, exportType := range leaseOrder {
			table, _, err := queueTable(exportType)
			if err != nil {
				return err
			}
			rows, err := tx.Query(ctx, fmt.Sprintf(`
				SELECT export_state, COUNT(*) FROM %s GROUP BY export_state
			`, table))
			if err != nil {
				return fmt.Errorf("counting %s: %w", table, err)
			}

			byState := make(map[string]int64)
			for rows.Next() {
				var state string
				var n int64
				if err := rows.Scan(&state, &n); err != nil {
					rows.Close()
					return fmt.Errorf("scanning queue count: %w", err)
				}
				byState[state] = n
			}
			rows.Close()
			if err := rows.Err(); err != nil {
				return err
			}
			counts[exportType] = byState
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
