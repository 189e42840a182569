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

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"
	"go.opencensus.io/stats/view"
)

// Compile-time check to verify implements interface.
var _ Exporter = (*prometheusExporter)(nil)

// prometheusExporter exports stats on a scrape endpoint.
type prometheusExporter struct {
	exporter *prometheus.Exporter
	config   *Config
	server   *http.Server
}

// NewPrometheus creates a new metrics exporter that serves a Prometheus
// scrape endpoint on the configured metrics port.
func NewPrometheus(config *Config) (Exporter, error) {
	exporter, err := prometheus.NewExporter(prometheus.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &prometheusExporter{
		exporter: exporter,
		config:   config,
	}, nil
}

// StartExporter registers the collected views and starts the scrape server.
func (e *prometheusExporter) StartExporter() error {
	if err := view.Register(AllViews()...); err != nil {
		return fmt.Errorf("failed to register views: %w", err)
	}
	view.SetReportingPeriod(e.config.ReportingInterval)

	mux := http.NewServeMux()
	mux.Handle("/metrics", e.exporter)

	e.server = &http.Server{
		Addr:              ":" + e.config.MetricsPort,
		ReadHeaderTimeout: 10 * time.Second,
		Handler:           mux,
	}

	go func() {
		// Errors here are either a startup misconfiguration, surfaced on
		// scrape, or http.ErrServerClosed on shutdown.
		_ = e.server.ListenAndServe()
	}()

	return nil
}

func (e *prometheusExporter) Close() error {
	view.Unregister(AllViews()...)

	if e.server != nil {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return e.server.Shutdown(ctx)
	}
	return nil
}
