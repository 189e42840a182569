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

// Package setup provides common logic for configuring the various services.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"

	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
)

// DatabaseConfigProvider ensures that the environment config can provide a
// database config.
type DatabaseConfigProvider interface {
	DatabaseConfig() *database.Config
}

// ContentStoreConfigProvider provides the blob store config.
type ContentStoreConfigProvider interface {
	ContentStoreConfig() *contentstore.Config
}

// ObservabilityExporterConfigProvider provides the metrics exporter config.
type ObservabilityExporterConfigProvider interface {
	ObservabilityExporterConfig() *observability.Config
}

// Setup processes the given configuration from the environment and builds a
// ServerEnv with the components the configuration asks for.
func Setup(ctx context.Context, config interface{}) (*serverenv.ServerEnv, error) {
	logger := logging.FromContext(ctx)

	if err := envconfig.Process(ctx, config); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}

	var opts []serverenv.Option

	if provider, ok := config.(ObservabilityExporterConfigProvider); ok {
		logger.Info("configuring observability exporter")
		oeConfig := provider.ObservabilityExporterConfig()
		exporter, err := observability.NewFromEnv(oeConfig)
		if err != nil {
			return nil, fmt.Errorf("unable to create observability provider: %w", err)
		}
		if err := exporter.StartExporter(); err != nil {
			return nil, fmt.Errorf("error starting observability: %w", err)
		}
		opts = append(opts, serverenv.WithObservabilityExporter(exporter))
	}

	if provider, ok := config.(ContentStoreConfigProvider); ok {
		logger.Info("configuring content store")
		store, err := contentstore.New(provider.ContentStoreConfig())
		if err != nil {
			return nil, fmt.Errorf("unable to open content store: %w", err)
		}
		opts = append(opts, serverenv.WithContentStore(store))
	}

	if provider, ok := config.(DatabaseConfigProvider); ok {
		logger.Info("configuring database")
		dbConfig := provider.DatabaseConfig()

		// The database may still be coming up; retry briefly before
		// giving up.
		var db *database.DB
		b := retry.WithMaxRetries(5, retry.NewFibonacci(500*time.Millisecond))
		if err := retry.Do(ctx, b, func(ctx context.Context) error {
			var err error
			db, err = database.NewFromEnv(ctx, dbConfig)
			if err != nil {
				return retry.RetryableError(err)
			}
			return nil
		}); err != nil {
			return nil, fmt.Errorf("unable to connect to database: %w", err)
		}
		opts = append(opts, serverenv.WithDatabase(db))
	}

	return serverenv.New(ctx, opts...), nil
}
