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

package contentstore

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
)

// IntegrityReport is the outcome of comparing the blobs on disk against the
// catalog's file records.
type IntegrityReport struct {
	// Orphans are blobs on disk with no catalog row.
	Orphans []string `json:"orphans"`

	// Missing are catalog rows whose blob is absent on disk.
	Missing []string `json:"missing"`
}

// IntegrityScan walks the store and reports the differences between the
// blobs on disk and the provided set of catalog repository filenames. Staged
// (uncommitted) blobs are ignored. Errors reading individual entries are
// aggregated rather than aborting the walk.
func (s *Store) IntegrityScan(ctx context.Context, catalogNames []string) (*IntegrityReport, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading content store root: %w", err)
	}

	onDisk := make(map[string]struct{}, len(entries))
	var merr *multierror.Error
	for _, e := range entries {
		if e.IsDir() {
			merr = multierror.Append(merr, fmt.Errorf("unexpected directory %q in content store", e.Name()))
			continue
		}
		if strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		onDisk[e.Name()] = struct{}{}
	}

	report := &IntegrityReport{}
	inCatalog := make(map[string]struct{}, len(catalogNames))
	for _, name := range catalogNames {
		inCatalog[name] = struct{}{}
		if _, ok := onDisk[name]; !ok {
			report.Missing = append(report.Missing, name)
		}
	}
	for name := range onDisk {
		if _, ok := inCatalog[name]; !ok {
			report.Orphans = append(report.Orphans, name)
		}
	}

	sort.Strings(report.Orphans)
	sort.Strings(report.Missing)
	return report, merr.ErrorOrNil()
}
