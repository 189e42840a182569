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

// Package serverenv defines common parameters for the server environment.
package serverenv

import (
	"context"

	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"

	"github.com/benbjohnson/clock"
)

// ServerEnv represents the environment a server binary runs in: the shared
// handles every component receives from the top level rather than owning
// globally.
type ServerEnv struct {
	database     *database.DB
	contentStore *contentstore.Store
	clock        clock.Clock
	exporter     observability.Exporter
}

// Option defines function types to modify the ServerEnv on creation.
type Option func(*ServerEnv) *ServerEnv

// New creates a new ServerEnv with the requested options.
func New(ctx context.Context, opts ...Option) *ServerEnv {
	env := &ServerEnv{
		clock: clock.New(),
	}
	for _, f := range opts {
		env = f(env)
	}
	return env
}

// WithDatabase attaches a database to the environment.
func WithDatabase(db *database.DB) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.database = db
		return s
	}
}

// WithContentStore attaches a blob store to the environment.
func WithContentStore(store *contentstore.Store) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.contentStore = store
		return s
	}
}

// WithClock replaces the wall clock, so tests can inject a mock.
func WithClock(c clock.Clock) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.clock = c
		return s
	}
}

// WithObservabilityExporter attaches a metrics exporter to the environment.
func WithObservabilityExporter(e observability.Exporter) Option {
	return func(s *ServerEnv) *ServerEnv {
		s.exporter = e
		return s
	}
}

// Database returns the database in the environment, if one was attached.
func (s *ServerEnv) Database() *database.DB {
	return s.database
}

// ContentStore returns the blob store in the environment, if one was
// attached.
func (s *ServerEnv) ContentStore() *contentstore.Store {
	return s.contentStore
}

// Clock returns the environment's clock. Defaults to the wall clock.
func (s *ServerEnv) Clock() clock.Clock {
	return s.clock
}

// ObservabilityExporter returns the metrics exporter, if one was attached.
func (s *ServerEnv) ObservabilityExporter() observability.Exporter {
	return s.exporter
}

// Close shuts down the server environment.
func (s *ServerEnv) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}

	if s.database != nil {
		s.database.Close(ctx)
	}
	if s.exporter != nil {
		if err := s.exporter.Close(); err != nil {
			return err
		}
	}
	return nil
}
