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

	"github.com/sethvargo/go-retry"
)

// maxBackoff caps the pause between failed items.
const maxBackoff = 20 * time.Minute

// BackoffDelay returns the pause after n consecutive failed items: a
// fibonacci progression starting at one second (1, 2, 3, 5, 8, ...) capped
// at 20 minutes. Zero failures means no pause.
func BackoffDelay(n int) time.Duration {
	if n <= 0 {
		return 0
	}

	b := retry.WithCappedDuration(maxBackoff, retry.NewFibonacci(time.Second))
	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}
