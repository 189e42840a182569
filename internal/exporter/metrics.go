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
	"github.com/dcf21/pi-gazing-sub002/internal/metrics"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

const metricPrefix = metrics.MetricRoot + "exporter"

var (
	mMarked = stats.Int64(metricPrefix+"/marked", "queue rows newly marked for export", stats.UnitDimensionless)

	mSucceeded = stats.Int64(metricPrefix+"/succeeded", "queue rows transmitted successfully", stats.UnitDimensionless)

	mFailed = stats.Int64(metricPrefix+"/failed", "transmission attempts that failed", stats.UnitDimensionless)

	mQuarantined = stats.Int64(metricPrefix+"/quarantined", "queue rows moved to failed-permanent", stats.UnitDimensionless)
)

func init() {
	observability.CollectViews(
		&view.View{
			Name:        metricPrefix + "/marked_count",
			Description: "Total count of queue rows newly marked for export",
			Measure:     mMarked,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/succeeded_count",
			Description: "Total count of queue rows transmitted successfully",
			Measure:     mSucceeded,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/failed_count",
			Description: "Total count of failed transmission attempts",
			Measure:     mFailed,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/quarantined_count",
			Description: "Total count of queue rows quarantined as failed-permanent",
			Measure:     mQuarantined,
			Aggregation: view.Sum(),
		},
	)
}
