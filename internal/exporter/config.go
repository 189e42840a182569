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
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"
)

// Config is the exporter server configuration.
type Config struct {
	Database              database.Config
	ContentStore          contentstore.Config
	ObservabilityExporter observability.Config

	Port string `env:"PORT, default=8080"`

	// MaxAttempts quarantines a queue row as failed-permanent once its
	// attempt count reaches this value without success.
	MaxAttempts int `env:"EXPORT_MAX_ATTEMPTS, default=4"`

	// MaxRuntime is the stop-by deadline for one drain run. The in-flight
	// item completes; the loop exits between items.
	MaxRuntime time.Duration `env:"EXPORT_MAX_RUNTIME, default=10m"`

	// ControlTimeout bounds JSON control requests; FileTimeout bounds
	// multipart file bodies.
	ControlTimeout time.Duration `env:"EXPORT_CONTROL_TIMEOUT, default=30s"`
	FileTimeout    time.Duration `env:"EXPORT_FILE_TIMEOUT, default=5m"`

	// FailureThreshold is the number of consecutive failed items after
	// which the whole run pauses for GlobalPause before continuing, to
	// avoid hammering a wedged remote.
	FailureThreshold int           `env:"EXPORT_FAILURE_THRESHOLD, default=5"`
	GlobalPause      time.Duration `env:"EXPORT_GLOBAL_PAUSE, default=5m"`
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
