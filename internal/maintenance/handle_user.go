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

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
)

type userRequest struct {
	UserID   string   `json:"userId"`
	Password string   `json:"password"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// handlePutUser creates or replaces an account, e.g. the import account an
// exporting node authenticates with.
func (s *Server) handlePutUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handlePutUser")

		var req userRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, err)
			return
		}
		if req.UserID == "" || req.Password == "" {
			s.h.RenderJSON(w, http.StatusBadRequest, fmt.Errorf("userId and password are required"))
			return
		}

		if err := s.archiveDB.CreateUser(ctx, req.UserID, req.Password, req.Name, req.Roles); err != nil {
			logger.Errorw("storing user failed", "user", req.UserID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		logger.Infow("stored user", "user", req.UserID, "roles", req.Roles)
		s.h.RenderJSON(w, http.StatusOK, nil)
	})
}
