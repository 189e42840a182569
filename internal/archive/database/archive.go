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

// Package database provides persistence for the observation archive.
package database

import (
	"encoding/json"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
)

// ArchiveDB wraps the shared database handle with archive-specific queries.
type ArchiveDB struct {
	db *database.DB
}

// New creates an ArchiveDB on the given database handle.
func New(db *database.DB) *ArchiveDB {
	return &ArchiveDB{db: db}
}

// valueColumns splits a typed metadata value into the three nullable columns
// (string_value, float_value, json_value). Exactly one is non-nil, matching
// the table CHECK constraint.
func valueColumns(v model.Value) (*string, *float64, []byte) {
	switch {
	case v.Text != nil:
		return v.Text, nil, nil
	case v.Number != nil:
		return nil, v.Number, nil
	default:
		return nil, nil, []byte(v.JSON)
	}
}

// valueFromColumns rebuilds a typed value from the three nullable columns.
func valueFromColumns(sv *string, fv *float64, jv []byte) model.Value {
	switch {
	case sv != nil:
		return model.Value{Text: sv}
	case fv != nil:
		return model.Value{Number: fv}
	default:
		return model.Value{JSON: append(json.RawMessage(nil), jv...)}
	}
}
