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
	"github.com/dcf21/pi-gazing-sub002/internal/metrics"
	"github.com/dcf21/pi-gazing-sub002/pkg/observability"

	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
)

const metricPrefix = metrics.MetricRoot + "ingest"

var (
	mAccepted = stats.Int64(metricPrefix+"/accepted", "entities committed by the ingest endpoint", stats.UnitDimensionless)

	mReplayed = stats.Int64(metricPrefix+"/replayed", "already-present replies", stats.UnitDimensionless)

	mRejected = stats.Int64(metricPrefix+"/rejected", "requests rejected with 4xx", stats.UnitDimensionless)

	mFileBytes = stats.Int64(metricPrefix+"/file_bytes", "bytes of file content committed", stats.UnitBytes)
)

func init() {
	observability.CollectViews(
		&view.View{
			Name:        metricPrefix + "/accepted_count",
			Description: "Total count of entities committed by the ingest endpoint",
			Measure:     mAccepted,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/replayed_count",
			Description: "Total count of already-present replies",
			Measure:     mReplayed,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/rejected_count",
			Description: "Total count of requests rejected with 4xx",
			Measure:     mRejected,
			Aggregation: view.Sum(),
		},
		&view.View{
			Name:        metricPrefix + "/file_bytes_sum",
			Description: "Total bytes of file content committed",
			Measure:     mFileBytes,
			Aggregation: view.Sum(),
		},
	)
}
