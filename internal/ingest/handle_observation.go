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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/middleware"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

// handleObservation commits one observation with its metadata items, then
// materialises any group whose final member this observation is.
func (s *Server) handleObservation() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleObservation")

		var payload wire.ObservationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			s.reject(ctx, w, http.StatusBadRequest, err)
			return
		}
		if payload.PublicID == "" || payload.Observatory == "" {
			s.reject(ctx, w, http.StatusBadRequest, fmt.Errorf("publicId and observatory are required"))
			return
		}
		if payload.ObsTime.IsZero() {
			s.reject(ctx, w, http.StatusBadRequest, fmt.Errorf("obsTime is required"))
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

		obs := &model.Observation{
			PublicID:      payload.PublicID,
			ObservatoryID: payload.Observatory,
			ObsTime:       payload.ObsTime,
			ObsType:       payload.ObsType,
			CreatedBy:     payload.UserID,
			Meta:          payload.Meta,
		}
		created, err := s.archiveDB.RegisterObservation(ctx, obs)
		if err != nil {
			if errors.Is(err, database.ErrKeyConflict) {
				s.reject(ctx, w, http.StatusConflict, err)
				return
			}
			logger.Errorw("registering observation failed", "observation", payload.PublicID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		s.materializeGroups(ctx, payload.Groups, middleware.UserFromContext(ctx))

		state := wireStateAlreadyPresent
		if created {
			state = wireStateOK
			logger.Infow("registered observation", "observation", payload.PublicID)
		}
		s.respond(ctx, w, state, "")
	})
}

// materializeGroups creates each described group once all of its member
// observations have arrived. Groups whose members are still missing are
// skipped; the descriptor travels with every member, so the last arrival
// completes the group. Group failures never fail the observation that
// carried the descriptor.
func (s *Server) materializeGroups(ctx context.Context, groups []wire.GroupDescriptor, createdBy string) {
	logger := logging.FromContext(ctx).Named("materializeGroups")

	for _, g := range groups {
		if g.PublicID == "" || len(g.MemberIDs) == 0 {
			continue
		}

		if _, err := s.archiveDB.GetGroup(ctx, g.PublicID); err == nil {
			continue
		} else if !database.IsNotFound(err) {
			logger.Errorw("group lookup failed", "group", g.PublicID, "error", err)
			continue
		}

		complete := true
		for _, memberID := range g.MemberIDs {
			if _, err := s.archiveDB.GetObservation(ctx, memberID); err != nil {
				if database.IsNotFound(err) {
					complete = false
					break
				}
				logger.Errorw("group member lookup failed", "group", g.PublicID, "error", err)
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		group := &model.ObservationGroup{
			PublicID:     g.PublicID,
			SemanticType: g.SemanticType,
			Title:        g.Title,
			CreatedBy:    createdBy,
			ObsTime:      g.ObsTime,
			SetTime:      g.SetTime,
			MemberIDs:    g.MemberIDs,
		}
		if _, err := s.archiveDB.RegisterObservationGroup(ctx, group); err != nil {
			logger.Warnw("group creation failed", "group", g.PublicID, "error", err)
			continue
		}
		logger.Infow("created observation group", "group", g.PublicID, "members", len(g.MemberIDs))
	}
}
