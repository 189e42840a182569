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

	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"github.com/hashicorp/go-multierror"
	pgx "github.com/jackc/pgx/v4"
)

// ClearResult summarises one clear-database run.
type ClearResult struct {
	ObservationsDeleted int64 `json:"observationsDeleted"`
	FilesDeleted        int64 `json:"filesDeleted"`
	MetadataDeleted     int64 `json:"metadataDeleted"`
	BlobsRemoved        int   `json:"blobsRemoved"`
}

// ClearData deletes all observations of the named observatories with
// observation time in [tMin, tMax), together with their files, metadata
// items, group memberships, and export queue rows (all via foreign key
// cascade), plus observatory metadata records in the same window. After the
// transaction commits the blobs of the deleted files are removed from the
// content store.
//
// With an empty observatory list the window applies to every observatory.
func (a *ArchiveDB) ClearData(ctx context.Context, tMin, tMax time.Time, observatoryIDs []string, store *contentstore.Store) (*ClearResult, error) {
	logger := logging.FromContext(ctx)

	var result ClearResult
	var doomedBlobs []string
	err := a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		obsFilter := "TRUE"
		args := []interface{}{tMin, tMax}
		if len(observatoryIDs) > 0 {
			obsFilter = "l.public_id = ANY($3)"
			args = append(args, observatoryIDs)
		}

		rows, err := tx.Query(ctx, fmt.Sprintf(`
			SELECT f.repository_fname
			FROM archive_files f
			JOIN archive_observations o ON o.uid = f.observation_uid
			JOIN archive_observatories l ON l.uid = o.observatory_uid
			WHERE o.obs_time >= $1 AND o.obs_time < $2 AND %s
		`, obsFilter), args...)
		if err != nil {
			return fmt.Errorf("listing doomed blobs: %w", err)
		}
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("scanning doomed blob: %w", err)
			}
			doomedBlobs = append(doomedBlobs, name)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		result.FilesDeleted = int64(len(doomedBlobs))

		tag, err := tx.Exec(ctx, fmt.Sprintf(`
			DELETE FROM archive_observations o
			USING archive_observatories l
			WHERE l.uid = o.observatory_uid
			  AND o.obs_time >= $1 AND o.obs_time < $2 AND %s
		`, obsFilter), args...)
		if err != nil {
			return fmt.Errorf("deleting observations: %w", err)
		}
		result.ObservationsDeleted = tag.RowsAffected()

		tag, err = tx.Exec(ctx, fmt.Sprintf(`
			DELETE FROM archive_metadata m
			USING archive_observatories l
			WHERE l.uid = m.observatory_uid
			  AND m.metadata_time >= $1 AND m.metadata_time < $2 AND %s
		`, obsFilter), args...)
		if err != nil {
			return fmt.Errorf("deleting observatory metadata: %w", err)
		}
		result.MetadataDeleted = tag.RowsAffected()

		return nil
	})
	if err != nil {
		return nil, err
	}

	// Catalog rows are gone; now sweep the blobs. A failure here leaves an
	// orphan the integrity scan will report, so collect errors rather than
	// stopping.
	var merr *multierror.Error
	for _, name := range doomedBlobs {
		if err := store.Remove(ctx, name); err != nil {
			merr = multierror.Append(merr, err)
			continue
		}
		result.BlobsRemoved++
	}
	if err := merr.ErrorOrNil(); err != nil {
		logger.Errorw("clear-database blob sweep incomplete", "error", err)
		return &result, err
	}

	logger.Infow("cleared archive data",
		"observations", result.ObservationsDeleted,
		"files", result.FilesDeleted,
		"metadata", result.MetadataDeleted,
		"blobs", result.BlobsRemoved)
	return &result, nil
}
