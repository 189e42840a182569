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
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/exporter/model"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"github.com/gorilla/mux"
)

var errMissingConfigID = errors.New("config id is required")

// configJSON is the registry's wire form of an export configuration. The
// search field is the version-tagged predicate envelope. Passwords are
// write-only: list replies never include them.
type configJSON struct {
	ConfigID    string          `json:"configId"`
	TargetURL   string          `json:"targetUrl"`
	Username    string          `json:"username"`
	Password    string          `json:"password,omitempty"`
	ExportType  string          `json:"exportType"`
	Search      json.RawMessage `json:"search"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
}

// handlePutConfig creates or updates a configuration by config id.
func (s *Server) handlePutConfig() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handlePutConfig")

		var body configJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, err)
			return
		}

		pred, err := search.Unmarshal(body.Search)
		if err != nil {
			s.h.RenderJSON(w, http.StatusBadRequest, err)
			return
		}

		cfg := &model.ExportConfig{
			ConfigID:    body.ConfigID,
			TargetURL:   body.TargetURL,
			Username:    body.Username,
			Password:    body.Password,
			ExportType:  body.ExportType,
			Search:      pred,
			Name:        body.Name,
			Description: body.Description,
			Enabled:     body.Enabled,
		}
		if err := s.exportDB.AddExportConfig(ctx, cfg); err != nil {
			if errors.Is(err, database.ErrKeyConflict) {
				s.h.RenderJSON(w, http.StatusConflict, err)
				return
			}
			logger.Errorw("storing export config failed", "config", cfg.ConfigID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		logger.Infow("stored export config", "config", cfg.ConfigID, "type", cfg.ExportType)
		s.h.RenderJSON(w, http.StatusOK, nil)
	})
}

// handleListConfigs returns every configuration, passwords elided.
func (s *Server) handleListConfigs() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleListConfigs")

		configs, err := s.exportDB.ListExportConfigs(ctx, false)
		if err != nil {
			logger.Errorw("listing export configs failed", "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		out := make([]*configJSON, 0, len(configs))
		for _, cfg := range configs {
			env, err := search.Marshal(cfg.Search)
			if err != nil {
				s.h.RenderJSON(w, http.StatusInternalServerError, err)
				return
			}
			out = append(out, &configJSON{
				ConfigID:    cfg.ConfigID,
				TargetURL:   cfg.TargetURL,
				Username:    cfg.Username,
				ExportType:  cfg.ExportType,
				Search:      env,
				Name:        cfg.Name,
				Description: cfg.Description,
				Enabled:     cfg.Enabled,
				CreatedAt:   cfg.CreatedAt,
			})
		}
		s.h.RenderJSON(w, http.StatusOK, out)
	})
}

// handleDeleteConfig removes a configuration and, by cascade, its queue
// rows.
func (s *Server) handleDeleteConfig() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleDeleteConfig")

		configID := mux.Vars(r)["id"]
		if configID == "" {
			s.h.RenderJSON(w, http.StatusBadRequest, errMissingConfigID)
			return
		}

		if err := s.exportDB.DeleteExportConfig(ctx, configID); err != nil {
			if database.IsNotFound(err) {
				s.h.RenderJSON(w, http.StatusNotFound, err)
				return
			}
			logger.Errorw("deleting export config failed", "config", configID, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		logger.Infow("deleted export config", "config", configID)
		s.h.RenderJSON(w, http.StatusOK, nil)
	})
}
