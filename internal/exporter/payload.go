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

package exporter

import (
	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
)

func observatoryPayload(obs *model.Observatory) *wire.ObservatoryPayload {
	return &wire.ObservatoryPayload{
		PublicID:  obs.PublicID,
		Name:      obs.Name,
		Latitude:  obs.Latitude,
		Longitude: obs.Longitude,
		Altitude:  obs.Altitude,
	}
}

func metadataPayload(m *model.ObservatoryMetadata) *wire.MetadataPayload {
	return &wire.MetadataPayload{
		Observatory:  m.ObservatoryID,
		Key:          m.Key,
		Value:        m.Value,
		MetadataTime: m.MetadataTime,
		TimeCreated:  m.CreatedAt,
		UserCreated:  m.CreatedBy,
	}
}

func observationPayload(obs *model.Observation, groups []model.GroupMembership) *wire.ObservationPayload {
	p := &wire.ObservationPayload{
		PublicID:    obs.PublicID,
		Observatory: obs.ObservatoryID,
		ObsTime:     obs.ObsTime,
		ObsType:     obs.ObsType,
		UserID:      obs.CreatedBy,
		Meta:        obs.Meta,
	}
	for _, g := range groups {
		p.Groups = append(p.Groups, wire.GroupDescriptor{
			PublicID:     g.PublicID,
			SemanticType: g.SemanticType,
			Title:        g.Title,
			ObsTime:      g.ObsTime,
			SetTime:      g.SetTime,
			MemberIDs:    g.MemberIDs,
		})
	}
	return p
}

func filePayload(fr *model.FileRecord) *wire.FilePayload {
	return &wire.FilePayload{
		RepositoryFname: fr.RepositoryFname,
		ObservationID:   fr.ObservationID,
		MimeType:        fr.MimeType,
		SemanticType:    fr.SemanticType,
		FileTime:        fr.FileTime,
		FileSize:        fr.FileSize,
		MD5Hex:          fr.MD5Hex,
		Meta:            fr.Meta,
	}
}
