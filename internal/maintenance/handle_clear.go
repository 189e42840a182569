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

package maintenance

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

type clearRequest struct {
	TimeMin        time.Time `json:"timeMin"`
	TimeMax        time.Time `json:"timeMax"`
	ObservatoryIDs []string  `json:"observatoryIds,omitempty"`
}

// handleClear performs the cascading time-range delete. It takes the
// exporter's drain lock so queue rows cannot be leased while their entities
// are being deleted.
func (s *Server) handleClear() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleClear")

		var req clearRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, err)
			return
		}
		if req.TimeMin.IsZero() || req.TimeMax.IsZero() || !req.TimeMin.Before(req.TimeMax) {
			s.h.RenderJSON(w, http.StatusBadRequest,
				fmt.Errorf("timeMin and timeMax must form a non-empty range"))
			return
		}

		unlock, err := s.env.Database().Lock(ctx, "export-drain", s.config.LockTTL)
		if err != nil {
			logger.Warnw("drain in progress, refusing to clear", "error", err)
			s.h.RenderJSON(w, http.StatusConflict, err)
			return
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Errorw("failed to release drain lock", "error", err)
			}
		}()

		result, err := s.archiveDB.ClearData(ctx, req.TimeMin, req.TimeMax,
			req.ObservatoryIDs, s.env.ContentStore())
		if err != nil {
			logger.Errorw("clear failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, result)
	})
}
