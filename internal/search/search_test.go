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

package search

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestMarshalRoundTrip(t *testing.T) {
	t.Parallel()

	tMin := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	tMax := time.Date(2023, 6, 2, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   Search
	}{
		{
			name: "observation",
			in: &ObservationSearch{
				ObservatoryIDs: []string{"eddington0", "eddington1"},
				ObsType:        "pigazing:movingObject/",
				TimeMin:        timePtr(tMin),
				TimeMax:        timePtr(tMax),
				After:          &Cursor{Time: tMin, PublicID: "20230601000000_eddington0_0001"},
				Limit:          100,
			},
		},
		{
			name: "file",
			in: &FileRecordSearch{
				SemanticType: "pigazing:timelapse/frame",
				MimeType:     "image/png",
				Limit:        50,
				Descending:   true,
			},
		},
		{
			name: "observatoryMetadata",
			in: &ObservatoryMetadataSearch{
				ObservatoryIDs: []string{"eddington0"},
				Key:            "latitude",
			},
		},
		{
			name: "observationGroup",
			in: &ObservationGroupSearch{
				SemanticType: "pigazing:simultaneous",
				TimeMin:      timePtr(tMin),
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !strings.Contains(string(b), `"version":1`) {
				t.Errorf("envelope missing version tag: %s", b)
			}

			got, err := Unmarshal(b)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if diff := cmp.Diff(tc.in, got); diff != "" {
				t.Errorf("round trip mismatch (-want, +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
	}{
		{"unknown version", `{"version":99,"kind":"observation","query":{}}`},
		{"unknown kind", `{"version":1,"kind":"comet","query":{}}`},
		{"malformed", `{`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Unmarshal([]byte(tc.in)); err == nil {
				t.Errorf("expected error for %q", tc.in)
			}
		})
	}
}

func TestObservationWhereSQL(t *testing.T) {
	t.Parallel()

	tMin := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	s := &ObservationSearch{
		ObservatoryIDs: []string{"eddington0"},
		ObsType:        "pigazing:timelapse/",
		TimeMin:        timePtr(tMin),
	}

	where, args := s.WhereSQL(3)
	want := "l.public_id = ANY($3) AND o.obs_type = $4 AND o.obs_time >= $5"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 3 {
		t.Errorf("got %d args, want 3", len(args))
	}
}

func TestEmptyWhereSQL(t *testing.T) {
	t.Parallel()

	s := &FileRecordSearch{}
	where, args := s.WhereSQL(1)
	if where != "TRUE" {
		t.Errorf("where = %q, want TRUE", where)
	}
	if len(args) != 0 {
		t.Errorf("got %d args, want 0", len(args))
	}
}

func TestCursorWhereSQL(t *testing.T) {
	t.Parallel()

	after := time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)
	s := &ObservationSearch{
		After: &Cursor{Time: after, PublicID: "obs-42"},
	}

	where, args := s.WhereSQL(1)
	want := "(o.obs_time, o.public_id) > ($1, $2)"
	if where != want {
		t.Errorf("where = %q, want %q", where, want)
	}
	if len(args) != 2 {
		t.Fatalf("got %d args, want 2", len(args))
	}
	if args[1] != "obs-42" {
		t.Errorf("args[1] = %v, want obs-42", args[1])
	}

	// A descending scan resumes before the cursor, not after it.
	s.Descending = true
	where, _ = s.WhereSQL(1)
	want = "(o.obs_time, o.public_id) < ($1, $2)"
	if where != want {
		t.Errorf("descending where = %q, want %q", where, want)
	}

	f := &FileRecordSearch{
		After:      &Cursor{Time: after, PublicID: "frame.png"},
		Descending: true,
	}
	where, _ = f.WhereSQL(1)
	want = "(f.file_time, f.repository_fname) < ($1, $2)"
	if where != want {
		t.Errorf("descending file where = %q, want %q", where, want)
	}
}
