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

// Package wire defines the JSON payloads exchanged between the export
// worker and the ingest endpoint. Both sides of the protocol import this
// package, so the field names here are the protocol.
package wire

import (
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
)

// Ingest endpoint paths, relative to a configuration's target URL.
const (
	ObservatoryEndpoint = "/import/observatory"
	MetadataEndpoint    = "/import/metadata"
	ObservationEndpoint = "/import/observation"
	FileEndpoint        = "/import/file"
)

// Multipart field names for file payloads.
const (
	FileMetaField = "meta"
	FileBodyField = "file"
)

// ObservatoryPayload registers an observatory on the receiving archive.
// Idempotent; a coordinate mismatch is rejected with 409.
type ObservatoryPayload struct {
	PublicID  string  `json:"publicId"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

// MetadataPayload carries one observatory metadata record.
type MetadataPayload struct {
	Observatory  string      `json:"observatory"`
	Key          string      `json:"key"`
	Value        model.Value `json:"value"`
	MetadataTime time.Time   `json:"metadata_time"`
	TimeCreated  time.Time   `json:"time_created"`
	UserCreated  string      `json:"user_created"`
}

// GroupDescriptor describes a group an observation belongs to, with the
// full member list. The receiver creates the group once every member has
// arrived.
type GroupDescriptor struct {
	PublicID     string    `json:"publicId"`
	SemanticType string    `json:"semanticType"`
	Title        string    `json:"title"`
	ObsTime      time.Time `json:"obsTime"`
	SetTime      time.Time `json:"setTime"`
	MemberIDs    []string  `json:"memberIds"`
}

// ObservationPayload carries one observation with its metadata items and
// group memberships.
type ObservationPayload struct {
	PublicID    string            `json:"publicId"`
	Observatory string            `json:"observatory"`
	ObsTime     time.Time         `json:"obsTime"`
	ObsType     string            `json:"obsType"`
	UserID      string            `json:"userId"`
	Meta        []model.MetaItem  `json:"meta,omitempty"`
	Groups      []GroupDescriptor `json:"groups,omitempty"`
}

// FilePayload is the header JSON of a multipart file request; the binary
// body travels in a separate part.
type FilePayload struct {
	RepositoryFname string           `json:"repositoryFname"`
	ObservationID   string           `json:"observationId"`
	MimeType        string           `json:"mimeType"`
	SemanticType    string           `json:"semanticType"`
	FileTime        time.Time        `json:"fileTime"`
	FileSize        int64            `json:"fileSize"`
	MD5Hex          string           `json:"md5Hex"`
	Meta            []model.MetaItem `json:"meta,omitempty"`
}

// Response is the 2xx reply body for every ingest route. State is one of
// "ok", "already-present", or "needs-prerequisite"; EntityID names the
// missing prerequisite in the latter case.
type Response struct {
	State    string `json:"state"`
	EntityID string `json:"entity_id,omitempty"`
}
