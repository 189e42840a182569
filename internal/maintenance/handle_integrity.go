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
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

// handleIntegrityScan cross-checks the content store against the catalog
// and reports orphan blobs and missing blobs.
func (s *Server) handleIntegrityScan() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleIntegrityScan")

		unlock, err := s.env.Database().Lock(ctx, "integrity-scan", s.config.LockTTL)
		if err != nil {
			logger.Warnw("integrity scan already running", "error", err)
			s.h.RenderJSON(w, http.StatusConflict, err)
			return
		}
		defer func() {
			if err := unlock(); err != nil {
				logger.Errorw("failed to release integrity-scan lock", "error", err)
			}
		}()

		names, err := s.archiveDB.AllRepositoryFnames(ctx)
		if err != nil {
			logger.Errorw("listing catalog filenames failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		report, err := s.env.ContentStore().IntegrityScan(ctx, names)
		if err != nil {
			logger.Errorw("integrity scan failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		logger.Infow("integrity scan complete",
			"catalog", len(names), "orphans", len(report.Orphans), "missing", len(report.Missing))
		s.h.RenderJSON(w, http.StatusOK, report)
	})
}
