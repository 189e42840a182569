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

// Package model contains the entities held in the observation archive.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Observatory is a single physical camera node with a stable identifier and
// location. Observatories are immutable after creation except by explicit
// re-registration with identical coordinates.
type Observatory struct {
	UID       int64
	PublicID  string
	Name      string
	Latitude  float64
	Longitude float64
	Altitude  float64
	CreatedAt time.Time
}

// SameLocation reports whether two registrations describe the same physical
// site. Registration is idempotent only when this holds.
func (o *Observatory) SameLocation(other *Observatory) bool {
	return o.Latitude == other.Latitude &&
		o.Longitude == other.Longitude &&
		o.Altitude == other.Altitude
}

// Value is a typed metadata value: exactly one of Text, Number, or JSON is
// set.
type Value struct {
	Text   *string
	Number *float64
	JSON   json.RawMessage
}

// TextValue builds a string-typed value.
func TextValue(s string) Value {
	return Value{Text: &s}
}

// NumberValue builds a float-typed value.
func NumberValue(f float64) Value {
	return Value{Number: &f}
}

// JSONValue builds a JSON-typed value.
func JSONValue(raw json.RawMessage) Value {
	return Value{JSON: raw}
}

// MarshalJSON encodes the value as its natural JSON representation.
func (v Value) MarshalJSON() ([]byte, error) {
	switch {
	case v.Text != nil:
		return json.Marshal(*v.Text)
	case v.Number != nil:
		return json.Marshal(*v.Number)
	case len(v.JSON) > 0:
		return v.JSON, nil
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON string into a text value, a JSON number into
// a number value, and anything else into a raw JSON value.
func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v.Text = &s
		return nil
	}

	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		v.Number = &f
		return nil
	}

	if !json.Valid(b) {
		return fmt.Errorf("invalid metadata value %q", b)
	}
	v.JSON = append(json.RawMessage(nil), b...)
	return nil
}

// Equal reports whether two values hold the same typed content.
func (v Value) Equal(other Value) bool {
	a, err1 := v.MarshalJSON()
	b, err2 := other.MarshalJSON()
	if err1 != nil || err2 != nil {
		return false
	}
	return string(a) == string(b)
}

// ObservatoryMetadata is one append-only record in an observatory's metadata
// history. Lookups at time t resolve to the most recent record with
// MetadataTime <= t.
type ObservatoryMetadata struct {
	UID           int64
	ObservatoryID string
	Key           string
	Value         Value
	MetadataTime  time.Time
	CreatedAt     time.Time
	CreatedBy     string
}

// MetaItem is a user-supplied key/value pair attached to an observation or
// file.
type MetaItem struct {
	Key   string `json:"key"`
	Value Value  `json:"value"`
}

// Observation is one recorded event produced by an observatory.
type Observation struct {
	UID           int64
	PublicID      string
	ObservatoryID string
	ObsTime       time.Time
	ObsType       string
	CreatedBy     string
	CreatedAt     time.Time
	Meta          []MetaItem
}

// GroupMembership describes a group an observation belongs to, including the
// full member list so a receiver can decide when the group is complete.
type GroupMembership struct {
	PublicID     string
	SemanticType string
	Title        string
	ObsTime      time.Time
	SetTime      time.Time
	MemberIDs    []string
}

// ObservationGroup binds together observations from multiple observatories
// that describe the same real-world event. Membership is immutable after
// creation.
type ObservationGroup struct {
	UID          int64
	PublicID     string
	SemanticType string
	Title        string
	CreatedBy    string
	ObsTime      time.Time
	SetTime      time.Time
	CreatedAt    time.Time
	MemberIDs    []string
}

// FileRecord is a catalog row referring to a stored binary blob belonging to
// an observation. RepositoryFname is the opaque, globally unique storage
// key.
type FileRecord struct {
	UID             int64
	RepositoryFname string
	ObservationID   string
	MimeType        string
	SemanticType    string
	FileTime        time.Time
	FileSize        int64
	MD5Hex          string
	CreatedAt       time.Time
	Meta            []MetaItem
}

// User is an account in the archive. Roles gate operations; the ingest
// endpoint requires the "import" role.
type User struct {
	UserID       string
	PasswordHash string
	Name         string
	Roles        []string
	CreatedAt    time.Time
}

// RoleImport is required to POST to the ingest endpoint.
const RoleImport = "import"

// HighWaterMark is a per-(observatory, purpose) scalar bookmark used by
// daytime pipelines to record progress. It is independent of the export
// queues.
type HighWaterMark struct {
	ObservatoryID string
	MarkType      string
	Time          time.Time
}
