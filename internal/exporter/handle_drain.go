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
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

// handleDrain runs one drain pass over the export queues. Only one drain
// runs at a time; the database advisory lock arbitrates with other job
// servers sharing the archive.
func (s *Server) handleDrain() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleDrain")

		unlock, err := s.env.Database().Lock(ctx, "export-drain", s.config.MaxRuntime)
		if err != nil {
			logger.Warnw("drain already running", "error", err)
			s.h.RenderJSON(w, http.StatusConflict, err)
			return
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Errorw("failed to release drain lock", "error", err)
			}
		}()

		result, err := s.worker.Run(ctx)
		if err != nil {
			logger.Errorw("drain failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, result)
	})
}

type resetResponse struct {
	Reset int64 `json:"reset"`
}

// handleReset returns a configuration's quarantined rows to pending. This
// is the operator action that ends a failed-permanent quarantine.
func (s *Server) handleReset() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleReset")

		configID := r.URL.Query().Get("config")
		if configID == "" {
			s.h.RenderJSON(w, http.StatusBadRequest, errMissingConfigID)
			return
		}

		reset, err := s.exportDB.ResetFailed(ctx, configID)
		if err != nil {
			logger.Errorw("reset failed", "config", configID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}
		logger.Infow("reset quarantined rows", "config", configID, "count", reset)
		s.h.RenderJSON(w, http.StatusOK, &resetResponse{Reset: reset})
	})
}
