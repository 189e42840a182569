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
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	cases := []struct {
		n    int
		want time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 3 * time.Second},
		{4, 5 * time.Second},
		{5, 8 * time.Second},
		{6, 13 * time.Second},
		{10, 89 * time.Second},
	}
	for _, tc := range cases {
		if got := BackoffDelay(tc.n); got != tc.want {
			t.Errorf("BackoffDelay(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	t.Parallel()

	for _, n := range []int{16, 35, 100, 1000} {
		if got := BackoffDelay(n); got != maxBackoff {
			t.Errorf("BackoffDelay(%d) = %v, want cap %v", n, got, maxBackoff)
		}
	}
}
