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

type markResponse struct {
	Marked map[string]int64 `json:"marked"`
}

// handleMark runs the marking pass for every enabled configuration.
func (s *Server) handleMark() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleMark")

		marked, err := s.marker.MarkAll(ctx)
		if err != nil {
			logger.Errorw("marking pass failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}
		s.h.RenderJSON(w, http.StatusOK, &markResponse{Marked: marked})
	})
}
