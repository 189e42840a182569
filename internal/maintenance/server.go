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

// Package maintenance hosts the operator-facing archive jobs: the content
// store integrity scan, cascading data deletion, and account management.
package maintenance

import (
	"context"
	"fmt"
	"net/http"

	archivedb "github.com/dcf21/pi-gazing-sub002/internal/archive/database"
	"github.com/dcf21/pi-gazing-sub002/internal/middleware"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
	"github.com/dcf21/pi-gazing-sub002/pkg/render"
	"github.com/dcf21/pi-gazing-sub002/pkg/server"

	"github.com/gorilla/mux"
)

// Server is the maintenance job server.
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
	logger := logging.FromContext(ctx).Named("maintenance")

	r := mux.NewRouter()
	r.Use(middleware.PopulateRequestID())
	r.Use(middleware.PopulateLogger(logger))
	r.Use(middleware.Recovery())

	r.Handle("/health", server.HandleHealthz(s.env.Database()))
	r.Handle("/integrity-scan", s.handleIntegrityScan()).Methods(http.MethodPost)
	r.Handle("/clear", s.handleClear()).Methods(http.MethodPost)
	r.Handle("/user", s.handlePutUser()).Methods(http.MethodPut)

	return r
}
