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

package observability

import "time"

// ExporterType represents a type of observability exporter.
type ExporterType string

const (
	ExporterPrometheus ExporterType = "PROMETHEUS"
	ExporterNoop       ExporterType = "NOOP"
)

// Config holds all of the configuration options for the observability
// exporter.
type Config struct {
	ExporterType ExporterType `env:"OBSERVABILITY_EXPORTER, default=NOOP"`

	// MetricsPort is where the Prometheus exporter serves the scrape
	// endpoint.
	MetricsPort string `env:"METRICS_PORT, default=9090"`

	// ReportingInterval controls how often recorded view data is exported.
	ReportingInterval time.Duration `env:"OBSERVABILITY_REPORTING_INTERVAL, default=1m"`
}

// ObservabilityExporterConfig satisfies the setup provider interface.
func (c *Config) ObservabilityExporterConfig() *Config {
	return c
}
