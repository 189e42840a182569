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

package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

// handleMetadata commits one observatory metadata record.
func (s *Server) handleMetadata() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleMetadata")

		var payload wire.MetadataPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.reject(ctx, w, http.StatusBadRequest, err)
			return
		}
		if payload.Observatory == "" || payload.Key == "" {
			s.reject(ctx, w, http.StatusBadRequest, fmt.Errorf("observatory and key are required"))
			return
		}
		if payload.MetadataTime.IsZero() {
			s.reject(ctx, w, http.StatusBadRequest, fmt.Errorf("metadata_time is required"))
			return
		}

		if _, err := s.archiveDB.GetObservatory(ctx, payload.Observatory); err != nil {
			if database.IsNotFound(err) {
				s.respond(ctx, w, wireStateNeedsPrerequisite, payload.Observatory)
				return
			}
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		m := &model.ObservatoryMetadata{
			ObservatoryID: payload.Observatory,
			Key:           payload.Key,
			Value:         payload.Value,
			MetadataTime:  payload.MetadataTime,
			CreatedAt:     payload.TimeCreated,
			CreatedBy:     payload.UserCreated,
		}
		created, err := s.archiveDB.RegisterMetadata(ctx, m)
		if err != nil {
			logger.Errorw("registering metadata failed",
				"observatory", payload.Observatory, "key", payload.Key, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		state := wireStateAlreadyPresent
		if created {
			state = wireStateOK
		}
		s.respond(ctx, w, state, "")
	})
}
