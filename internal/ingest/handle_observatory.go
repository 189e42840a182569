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
	"errors"
	"fmt"
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

// handleObservatory registers an observatory ahead of the payloads that
// reference it. Idempotent; a coordinate mismatch is a 409.
func (s *Server) handleObservatory() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleObservatory")

		var payload wire.ObservatoryPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.reject(ctx, w, http.StatusBadRequest, err)
			return
		}
		if payload.PublicID == "" {
			s.reject(ctx, w, http.StatusBadRequest, fmt.Errorf("publicId is required"))
			return
		}

		obs := &model.Observatory{
			PublicID:  payload.PublicID,
			Name:      payload.Name,
			Latitude:  payload.Latitude,
			Longitude: payload.Longitude,
			Altitude:  payload.Altitude,
		}
		created, err := s.archiveDB.RegisterObservatory(ctx, obs)
		if err != nil {
			if errors.Is(err, database.ErrKeyConflict) {
				s.reject(ctx, w, http.StatusConflict, err)
				return
			}
			logger.Errorw("registering observatory failed", "observatory", payload.PublicID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		state := wireStateAlreadyPresent
		if created {
			state = wireStateOK
			logger.Infow("registered observatory", "observatory", payload.PublicID)
		}
		s.respond(ctx, w, state, "")
	})
}
