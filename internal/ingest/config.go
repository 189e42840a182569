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

package ingest

import (
	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"
)

// Config is the ingest server configuration.
type Config struct {
	Database              database.Config
	ContentStore          contentstore.Config
	ObservabilityExporter observability.Config

	Port string `env:"PORT, default=8080"`

	// MaxFileBytes bounds the request body of a file upload.
	MaxFileBytes int64 `env:"INGEST_MAX_FILE_BYTES, default=1073741824"`
}

// DatabaseConfig implements setup.DatabaseConfigProvider.
func (c *Config) DatabaseConfig() *database.Config {
	return &c.Database
}

// ContentStoreConfig implements setup.ContentStoreConfigProvider.
func (c *Config) ContentStoreConfig() *contentstore.Config {
	return &c.ContentStore
}

// ObservabilityExporterConfig implements setup.ObservabilityExporterConfigProvider.
func (c *Config) ObservabilityExporterConfig() *observability.Config {
	return &c.ObservabilityExporter
}
