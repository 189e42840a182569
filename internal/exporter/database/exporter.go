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

// Package database provides persistence for export configurations and the
// per-type export queues.
package database

import (
	"fmt"

	"github.com/dcf21/pi-gazing-sub002/internal/exporter/model"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
)

// ExporterDB wraps the shared database handle with export queue queries.
type ExporterDB struct {
	db *database.DB
}

// New creates an ExporterDB on the given database handle.
func New(db *database.DB) *ExporterDB {
	return &ExporterDB{db: db}
}

// queueTable maps an export type to its queue table and entity uid column.
func queueTable(exportType string) (table, uidColumn string, err error) {
	switch exportType {
	case model.ExportTypeMetadata:
		return "archive_metadataexport", "metadata_uid", nil
	case model.ExportTypeObservation:
		return "archive_observationexport", "observation_uid", nil
	case model.ExportTypeFile:
		return "archive_fileexport", "file_uid", nil
	default:
		return "", "", fmt.Errorf("unknown export type %q", exportType)
	}
}
