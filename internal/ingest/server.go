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

// Package ingest implements the receiving side of archive mirroring: the
// authenticated /import endpoints a remote exporter posts to.
package ingest

import (
	"context"
	"fmt"
	"net/http"

	archivedb "github.com/dcf21/pi-gazing-sub002/internal/archive/database"
	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/middleware"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
	"github.com/dcf21/pi-gazing-sub002/pkg/render"
	"github.com/dcf21/pi-gazing-sub002/pkg/server"

	"github.com/gorilla/mux"
	"go.opencensus.io/stats"
)

// Server is the ingest endpoint server.
type Server struct {
	config    *Config
	env       *serverenv.ServerEnv
	archiveDB *archivedb.ArchiveDB
	h         *render.Renderer
}

// NewServer makes a Server.
func NewServer(cfg *Config, env *serverenv.ServerEnv) (*Server, error) {
	if env.Database() == nil {
		return nil, fmt.Errorf("missing database in server environment")
	}
	if env.ContentStore() == nil {
		return nil, fmt.Errorf("missing content store in server environment")
	}

	return &Server{
		config:    cfg,
		env:       env,
		archiveDB: archivedb.New(env.Database()),
		h:         render.New(false),
	}, nil
}

// Routes defines and returns the routes for this server.
func (s *Server) Routes(ctx context.Context) *mux.Router {
	logger := logging.FromContext(ctx).Named("ingest")

	r := mux.NewRouter()
	r.Use(middleware.PopulateRequestID())
	r.Use(middleware.PopulateLogger(logger))
	r.Use(middleware.Recovery())

	r.Handle("/health", server.HandleHealthz(s.env.Database()))

	sub := r.PathPrefix("/import").Subrouter()
	sub.Use(middleware.RequireBasicAuth(s.archiveDB, model.RoleImport))
	sub.Handle("/observatory", s.handleObservatory()).Methods(http.MethodPost)
	sub.Handle("/metadata", s.handleMetadata()).Methods(http.MethodPost)
	sub.Handle("/observation", s.handleObservation()).Methods(http.MethodPost)
	sub.Handle("/file", s.handleFile()).Methods(http.MethodPost)

	return r
}

// respond writes one protocol reply and records its metric.
func (s *Server) respond(ctx context.Context, w http.ResponseWriter, state, entityID string) {
	switch state {
	case wireStateOK:
		stats.Record(ctx, mAccepted.M(1))
	case wireStateAlreadyPresent:
		stats.Record(ctx, mReplayed.M(1))
	}
	s.h.RenderJSON(w, http.StatusOK, &wire.Response{State: state, EntityID: entityID})
}

// reject writes a 4xx reply and records the rejection.
func (s *Server) reject(ctx context.Context, w http.ResponseWriter, code int, err error) {
	stats.Record(ctx, mRejected.M(1))
	s.h.RenderJSON(w, code, err)
}

// Reply states, mirroring the disposition constants the exporter matches
// on.
const (
	wireStateOK                = "ok"
	wireStateAlreadyPresent    = "already-present"
	wireStateNeedsPrerequisite = "needs-prerequisite"
)
