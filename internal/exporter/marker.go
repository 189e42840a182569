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
	"context"
	"fmt"

	exportdb "github.com/dcf21/pi-gazing-sub002/internal/exporter/database"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"github.com/hashicorp/go-multierror"
	"go.opencensus.io/stats"
)

// Marker enrols entities matching each enabled configuration's predicate in
// that configuration's export queue.
type Marker struct {
	exportDB *exportdb.ExporterDB
}

// NewMarker creates a Marker using the environment's database.
func NewMarker(env *serverenv.ServerEnv) *Marker {
	return &Marker{exportDB: exportdb.New(env.Database())}
}

// MarkAll runs the marking pass for every enabled configuration and returns
// the newly marked row count per config id. A failure on one configuration
// does not stop the others.
func (m *Marker) MarkAll(ctx context.Context) (map[string]int64, error) {
	logger := logging.FromContext(ctx).Named("marker")

	configs, err := m.exportDB.ListExportConfigs(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("listing export configs: %w", err)
	}

	marked := make(map[string]int64, len(configs))
	var merr *multierror.Error
	for _, cfg := range configs {
		n, err := m.exportDB.MarkForExport(ctx, cfg)
		if err != nil {
			logger.Errorw("marking failed", "config", cfg.ConfigID, "error", err)
			merr = multierror.Append(merr, err)
			continue
		}
		marked[cfg.ConfigID] = n
		if n > 0 {
			stats.Record(ctx, mMarked.M(n))
			logger.Infow("marked entities for export", "config", cfg.ConfigID, "count", n)
		}
	}
	return marked, merr.ErrorOrNil()
}
