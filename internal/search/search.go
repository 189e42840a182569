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

// Package search defines the closed set of catalog search predicates.
//
// A predicate describes which entities an ad-hoc query or an export
// configuration selects. The set of predicate shapes is closed: one variant
// per searchable entity, each with typed fields. Predicates serialise to a
// version-tagged JSON envelope so stored export configurations survive
// schema evolution.
package search

import (
	"encoding/json"
	"fmt"
	"time"
)

// Version is the current predicate serialisation version.
const Version = 1

// Predicate kind tags used in the serialisation envelope.
const (
	KindObservation         = "observation"
	KindFileRecord          = "file"
	KindObservatoryMetadata = "observatoryMetadata"
	KindObservationGroup    = "observationGroup"
)

// Search is the closed interface over predicate variants. Only the types in
// this package implement it.
type Search interface {
	// Kind returns the envelope tag for this predicate variant.
	Kind() string

	isSearch()
}

// Cursor is a keyset-pagination position. Scans restart after the row with
// this (time, public id) pair, so long-running scans tolerate concurrent
// writes.
type Cursor struct {
	Time     time.Time `json:"time"`
	PublicID string    `json:"publicId"`
}

// ObservationSearch selects observations.
type ObservationSearch struct {
	ObservatoryIDs []string   `json:"observatoryIds,omitempty"`
	ObsType        string     `json:"obsType,omitempty"`
	TimeMin        *time.Time `json:"timeMin,omitempty"`
	TimeMax        *time.Time `json:"timeMax,omitempty"`
	After          *Cursor    `json:"after,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Descending     bool       `json:"descending,omitempty"`
}

func (s *ObservationSearch) Kind() string { return KindObservation }
func (s *ObservationSearch) isSearch()    {}

// FileRecordSearch selects file records.
type FileRecordSearch struct {
	ObservatoryIDs []string   `json:"observatoryIds,omitempty"`
	SemanticType   string     `json:"semanticType,omitempty"`
	MimeType       string     `json:"mimeType,omitempty"`
	TimeMin        *time.Time `json:"timeMin,omitempty"`
	TimeMax        *time.Time `json:"timeMax,omitempty"`
	After          *Cursor    `json:"after,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Descending     bool       `json:"descending,omitempty"`
}

func (s *FileRecordSearch) Kind() string { return KindFileRecord }
func (s *FileRecordSearch) isSearch()    {}

// ObservatoryMetadataSearch selects observatory metadata records.
type ObservatoryMetadataSearch struct {
	ObservatoryIDs []string   `json:"observatoryIds,omitempty"`
	Key            string     `json:"key,omitempty"`
	TimeMin        *time.Time `json:"timeMin,omitempty"`
	TimeMax        *time.Time `json:"timeMax,omitempty"`
	Limit          int        `json:"limit,omitempty"`
	Descending     bool       `json:"descending,omitempty"`
}

func (s *ObservatoryMetadataSearch) Kind() string { return KindObservatoryMetadata }
func (s *ObservatoryMetadataSearch) isSearch()    {}

// ObservationGroupSearch selects observation groups.
type ObservationGroupSearch struct {
	SemanticType string     `json:"semanticType,omitempty"`
	TimeMin      *time.Time `json:"timeMin,omitempty"`
	TimeMax      *time.Time `json:"timeMax,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Descending   bool       `json:"descending,omitempty"`
}

func (s *ObservationGroupSearch) Kind() string { return KindObservationGroup }
func (s *ObservationGroupSearch) isSearch()    {}

// envelope is the stored form of a predicate.
type envelope struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Query   json.RawMessage `json:"query"`
}

// Marshal serialises a predicate into its version-tagged envelope.
func Marshal(s Search) ([]byte, error) {
	query, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s query: %w", s.Kind(), err)
	}
	return json.Marshal(&envelope{
		Version: Version,
		Kind:    s.Kind(),
		Query:   query,
	})
}

// Unmarshal parses a version-tagged envelope back into the concrete
// predicate variant. Unknown versions and kinds are rejected.
func Unmarshal(b []byte) (Search, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, fmt.Errorf("parsing search envelope: %w", err)
	}
	if env.Version != Version {
		return nil, fmt.Errorf("unsupported search version %d", env.Version)
	}

	var s Search
	switch env.Kind {
	case KindObservation:
		s = &ObservationSearch{}
	case KindFileRecord:
		s = &FileRecordSearch{}
	case KindObservatoryMetadata:
		s = &ObservatoryMetadataSearch{}
	case KindObservationGroup:
		s = &ObservationGroupSearch{}
	default:
		return nil, fmt.Errorf("unknown search kind %q", env.Kind)
	}

	if err := json.Unmarshal(env.Query, s); err != nil {
		return nil, fmt.Errorf("parsing %s query: %w", env.Kind, err)
	}
	return s, nil
}
