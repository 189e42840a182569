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

package database

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	"github.com/google/go-cmp/cmp"
)

func testArchiveDB(tb testing.TB) *ArchiveDB {
	tb.Helper()
	return New(database.NewTestDatabase(tb))
}

func testStore(tb testing.TB) *contentstore.Store {
	tb.Helper()
	store, err := contentstore.New(&contentstore.Config{Root: tb.TempDir()})
	if err != nil {
		tb.Fatalf("contentstore.New: %v", err)
	}
	return store
}

// dbTime matches the microsecond resolution of a stored timestamp.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func registerTestObservatory(tb testing.TB, ctx context.Context, a *ArchiveDB, publicID string) *model.Observatory {
	tb.Helper()
	obs := &model.Observatory{
		PublicID:  publicID,
		Name:      "test site " + publicID,
		Latitude:  52.2,
		Longitude: 0.12,
		Altitude:  15,
	}
	if _, err := a.RegisterObservatory(ctx, obs); err != nil {
		tb.Fatalf("RegisterObservatory(%q): %v", publicID, err)
	}
	return obs
}

func TestRegisterObservatoryIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)

	obs := &model.Observatory{PublicID: "eddington0", Name: "roof east", Latitude: 52.2, Longitude: 0.12, Altitude: 15}
	created, err := a.RegisterObservatory(ctx, obs)
	if err != nil {
		t.Fatalf("RegisterObservatory: %v", err)
	}
	if !created {
		t.Error("first registration should create")
	}

	replay := &model.Observatory{PublicID: "eddington0", Name: "roof east", Latitude: 52.2, Longitude: 0.12, Altitude: 15}
	created, err = a.RegisterObservatory(ctx, replay)
	if err != nil {
		t.Fatalf("replay RegisterObservatory: %v", err)
	}
	if created {
		t.Error("identical re-registration should be a no-op")
	}
	if replay.UID != obs.UID {
		t.Errorf("replay UID = %d, want %d", replay.UID, obs.UID)
	}

	moved := &model.Observatory{PublicID: "eddington0", Name: "roof east", Latitude: 52.3, Longitude: 0.12, Altitude: 15}
	if _, err := a.RegisterObservatory(ctx, moved); !errors.Is(err, database.ErrKeyConflict) {
		t.Errorf("moved registration = %v, want ErrKeyConflict", err)
	}
}

func TestMetadataMonotoneLookup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	base := dbTime(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC))
	record := func(val string, at time.Time) {
		t.Helper()
		if _, err := a.RegisterMetadata(ctx, &model.ObservatoryMetadata{
			ObservatoryID: "eddington0",
			Key:           "lens",
			Value:         model.TextValue(val),
			MetadataTime:  at,
			CreatedAt:     dbTime(time.Now()),
			CreatedBy:     "system",
		}); err != nil {
			t.Fatalf("RegisterMetadata: %v", err)
		}
	}

	record("lens-a", base)
	record("lens-b", base.Add(48*time.Hour))

	probe := base.Add(24 * time.Hour)
	got, err := a.LookupMetadata(ctx, "eddington0", "lens", probe)
	if err != nil {
		t.Fatalf("LookupMetadata: %v", err)
	}
	if got.Value.Text == nil || *got.Value.Text != "lens-a" {
		t.Errorf("lookup at t = %+v, want lens-a", got.Value)
	}

	// A record later than the probe time must not change the answer.
	record("lens-c", base.Add(72*time.Hour))
	got, err = a.LookupMetadata(ctx, "eddington0", "lens", probe)
	if err != nil {
		t.Fatalf("LookupMetadata after later insert: %v", err)
	}
	if got.Value.Text == nil || *got.Value.Text != "lens-a" {
		t.Errorf("lookup at t changed after later insert: %+v", got.Value)
	}

	// Nothing predates the epoch.
	if _, err := a.LookupMetadata(ctx, "eddington0", "lens", base.Add(-time.Hour)); !database.IsNotFound(err) {
		t.Errorf("lookup before first record = %v, want not found", err)
	}
}

func TestRegisterMetadataReplay(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	m := &model.ObservatoryMetadata{
		ObservatoryID: "eddington0",
		Key:           "software",
		Value:         model.TextValue("v3.1"),
		MetadataTime:  dbTime(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)),
		CreatedAt:     dbTime(time.Date(2023, 6, 1, 1, 0, 0, 0, time.UTC)),
		CreatedBy:     "system",
	}
	created, err := a.RegisterMetadata(ctx, m)
	if err != nil {
		t.Fatalf("RegisterMetadata: %v", err)
	}
	if !created {
		t.Error("first record should create")
	}

	replay := *m
	replay.UID = 0
	created, err = a.RegisterMetadata(ctx, &replay)
	if err != nil {
		t.Fatalf("replay RegisterMetadata: %v", err)
	}
	if created {
		t.Error("byte-identical replay should not append")
	}
	if replay.UID != m.UID {
		t.Errorf("replay UID = %d, want %d", replay.UID, m.UID)
	}
}

func TestRegisterObservationConflict(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	obsTime := dbTime(time.Date(2023, 6, 1, 22, 30, 0, 0, time.UTC))
	obs := &model.Observation{
		PublicID:      "20230601223000_eddington0_0001",
		ObservatoryID: "eddington0",
		ObsTime:       obsTime,
		ObsType:       "pigazing:timelapse/",
		CreatedBy:     "system",
		Meta: []model.MetaItem{
			{Key: "skyClarity", Value: model.NumberValue(0.82)},
		},
	}
	created, err := a.RegisterObservation(ctx, obs)
	if err != nil {
		t.Fatalf("RegisterObservation: %v", err)
	}
	if !created {
		t.Error("first registration should create")
	}

	replay := *obs
	replay.UID = 0
	created, err = a.RegisterObservation(ctx, &replay)
	if err != nil {
		t.Fatalf("replay RegisterObservation: %v", err)
	}
	if created {
		t.Error("identical replay should be a no-op")
	}

	// Same public id, different time: rejected, archive unchanged.
	differing := *obs
	differing.UID = 0
	differing.ObsTime = obsTime.Add(time.Minute)
	if _, err := a.RegisterObservation(ctx, &differing); !errors.Is(err, database.ErrKeyConflict) {
		t.Errorf("differing replay = %v, want ErrKeyConflict", err)
	}

	got, err := a.GetObservation(ctx, obs.PublicID)
	if err != nil {
		t.Fatalf("GetObservation: %v", err)
	}
	if !got.ObsTime.Equal(obsTime) {
		t.Errorf("observation time mutated: %v", got.ObsTime)
	}
}

func TestSearchObservationsKeyset(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	base := dbTime(time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC))
	ids := []string{"obs-a", "obs-b", "obs-c", "obs-d"}
	for i, id := range ids {
		if _, err := a.RegisterObservation(ctx, &model.Observation{
			PublicID:      id,
			ObservatoryID: "eddington0",
			ObsTime:       base.Add(time.Duration(i) * time.Minute),
			ObsType:       "pigazing:timelapse/",
			CreatedBy:     "system",
		}); err != nil {
			t.Fatalf("RegisterObservation(%q): %v", id, err)
		}
	}

	first, err := a.SearchObservations(ctx, &search.ObservationSearch{Limit: 2})
	if err != nil {
		t.Fatalf("SearchObservations: %v", err)
	}
	if len(first) != 2 || first[0].PublicID != "obs-a" || first[1].PublicID != "obs-b" {
		t.Fatalf("first page wrong: %+v", first)
	}

	rest, err := a.SearchObservations(ctx, &search.ObservationSearch{
		After: &search.Cursor{Time: first[1].ObsTime, PublicID: first[1].PublicID},
	})
	if err != nil {
		t.Fatalf("SearchObservations after cursor: %v", err)
	}
	var got []string
	for _, o := range rest {
		got = append(got, o.PublicID)
	}
	if diff := cmp.Diff([]string{"obs-c", "obs-d"}, got); diff != "" {
		t.Errorf("second page mismatch (-want, +got):\n%s", diff)
	}
}

func TestRegisterFileWithBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	store := testStore(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	obsTime := dbTime(time.Date(2023, 6, 1, 22, 30, 0, 0, time.UTC))
	if _, err := a.RegisterObservation(ctx, &model.Observation{
		PublicID:      "obs-1",
		ObservatoryID: "eddington0",
		ObsTime:       obsTime,
		ObsType:       "pigazing:timelapse/",
		CreatedBy:     "system",
	}); err != nil {
		t.Fatalf("RegisterObservation: %v", err)
	}

	staged, err := store.Stage(ctx, strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	fr := &model.FileRecord{
		RepositoryFname: "frame0001.png",
		ObservationID:   "obs-1",
		MimeType:        "image/png",
		SemanticType:    "pigazing:timelapse/frame",
		FileTime:        obsTime,
		FileSize:        staged.Size,
		MD5Hex:          staged.MD5Hex,
		Meta: []model.MetaItem{
			{Key: "width", Value: model.NumberValue(720)},
		},
	}
	created, err := a.RegisterFile(ctx, fr, staged)
	if err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}
	if !created {
		t.Error("first registration should create")
	}

	ok, err := store.Exists("frame0001.png")
	if err != nil || !ok {
		t.Fatalf("blob missing after RegisterFile: ok=%v err=%v", ok, err)
	}

	got, err := a.GetFile(ctx, "frame0001.png")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	if got.MD5Hex != fr.MD5Hex || got.ObservationID != "obs-1" || len(got.Meta) != 1 {
		t.Errorf("file record mismatch: %+v", got)
	}

	// Replaying the identical record discards the new staged blob.
	staged2, err := store.Stage(ctx, strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Stage replay: %v", err)
	}
	replay := *fr
	replay.UID = 0
	created, err = a.RegisterFile(ctx, &replay, staged2)
	if err != nil {
		t.Fatalf("replay RegisterFile: %v", err)
	}
	if created {
		t.Error("identical replay should be a no-op")
	}

	// Same name, different content hash: conflict.
	staged3, err := store.Stage(ctx, strings.NewReader("different bytes"))
	if err != nil {
		t.Fatalf("Stage conflict: %v", err)
	}
	conflict := *fr
	conflict.UID = 0
	conflict.FileSize = staged3.Size
	conflict.MD5Hex = staged3.MD5Hex
	if _, err := a.RegisterFile(ctx, &conflict, staged3); !errors.Is(err, database.ErrKeyConflict) {
		t.Errorf("conflicting replay = %v, want ErrKeyConflict", err)
	}
	staged3.Abort()
}

func TestRegisterFileFailureDiscardsBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	store := testStore(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	obsTime := dbTime(time.Date(2023, 6, 1, 22, 30, 0, 0, time.UTC))
	if _, err := a.RegisterObservation(ctx, &model.Observation{
		PublicID:      "obs-1",
		ObservatoryID: "eddington0",
		ObsTime:       obsTime,
		ObsType:       "pigazing:timelapse/",
		CreatedBy:     "system",
	}); err != nil {
		t.Fatalf("RegisterObservation: %v", err)
	}

	// A duplicate metadata key violates a table constraint after the file
	// row is inserted, rolling back the whole registration.
	staged, err := store.Stage(ctx, strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	fr := &model.FileRecord{
		RepositoryFname: "frame0001.png",
		ObservationID:   "obs-1",
		MimeType:        "image/png",
		SemanticType:    "pigazing:timelapse/frame",
		FileTime:        obsTime,
		FileSize:        staged.Size,
		MD5Hex:          staged.MD5Hex,
		Meta: []model.MetaItem{
			{Key: "width", Value: model.NumberValue(720)},
			{Key: "width", Value: model.NumberValue(1080)},
		},
	}
	if _, err := a.RegisterFile(ctx, fr, staged); err == nil {
		t.Fatal("expected duplicate metadata key to fail registration")
	}

	if ok, err := store.Exists("frame0001.png"); err != nil || ok {
		t.Errorf("blob left behind by failed registration: ok=%v err=%v", ok, err)
	}
	if _, err := a.GetFile(ctx, "frame0001.png"); !database.IsNotFound(err) {
		t.Errorf("GetFile after failed registration = %v, want not found", err)
	}

	// A registration rejected before the rename leaves no temp file either.
	staged2, err := store.Stage(ctx, strings.NewReader("more bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	orphanless := &model.FileRecord{
		RepositoryFname: "frame0002.png",
		ObservationID:   "no-such-observation",
		MimeType:        "image/png",
		SemanticType:    "pigazing:timelapse/frame",
		FileTime:        obsTime,
		FileSize:        staged2.Size,
		MD5Hex:          staged2.MD5Hex,
	}
	if _, err := a.RegisterFile(ctx, orphanless, staged2); !database.IsNotFound(err) {
		t.Fatalf("RegisterFile with missing observation = %v, want not found", err)
	}
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("store not empty after failed registrations: %v", entries)
	}
}

func TestSearchObservationsKeysetDescending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	base := dbTime(time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC))
	ids := []string{"obs-a", "obs-b", "obs-c", "obs-d"}
	for i, id := range ids {
		if _, err := a.RegisterObservation(ctx, &model.Observation{
			PublicID:      id,
			ObservatoryID: "eddington0",
			ObsTime:       base.Add(time.Duration(i) * time.Minute),
			ObsType:       "pigazing:timelapse/",
			CreatedBy:     "system",
		}); err != nil {
			t.Fatalf("RegisterObservation(%q): %v", id, err)
		}
	}

	first, err := a.SearchObservations(ctx, &search.ObservationSearch{Limit: 2, Descending: true})
	if err != nil {
		t.Fatalf("SearchObservations: %v", err)
	}
	if len(first) != 2 || first[0].PublicID != "obs-d" || first[1].PublicID != "obs-c" {
		t.Fatalf("first page wrong: %+v", first)
	}

	rest, err := a.SearchObservations(ctx, &search.ObservationSearch{
		After:      &search.Cursor{Time: first[1].ObsTime, PublicID: first[1].PublicID},
		Descending: true,
	})
	if err != nil {
		t.Fatalf("SearchObservations after cursor: %v", err)
	}
	var got []string
	for _, o := range rest {
		got = append(got, o.PublicID)
	}
	if diff := cmp.Diff([]string{"obs-b", "obs-a"}, got); diff != "" {
		t.Errorf("second page mismatch (-want, +got):\n%s", diff)
	}
}

func TestGroupLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")
	registerTestObservatory(t, ctx, a, "eddington1")

	obsTime := dbTime(time.Date(2023, 6, 1, 23, 0, 0, 0, time.UTC))
	for _, id := range []string{"member-0", "member-1"} {
		if _, err := a.RegisterObservation(ctx, &model.Observation{
			PublicID:      id,
			ObservatoryID: "eddington0",
			ObsTime:       obsTime,
			ObsType:       "pigazing:movingObject/",
			CreatedBy:     "system",
		}); err != nil {
			t.Fatalf("RegisterObservation(%q): %v", id, err)
		}
	}

	g := &model.ObservationGroup{
		PublicID:     "group-1",
		SemanticType: "pigazing:simultaneous",
		Title:        "simultaneous detection",
		CreatedBy:    "system",
		ObsTime:      obsTime,
		SetTime:      obsTime.Add(time.Hour),
		MemberIDs:    []string{"member-0", "member-1"},
	}
	created, err := a.RegisterObservationGroup(ctx, g)
	if err != nil {
		t.Fatalf("RegisterObservationGroup: %v", err)
	}
	if !created {
		t.Error("first registration should create")
	}

	memberships, err := a.GroupMembershipsFor(ctx, "member-0")
	if err != nil {
		t.Fatalf("GroupMembershipsFor: %v", err)
	}
	if len(memberships) != 1 || memberships[0].PublicID != "group-1" {
		t.Fatalf("memberships = %+v", memberships)
	}
	if diff := cmp.Diff([]string{"member-0", "member-1"}, memberships[0].MemberIDs); diff != "" {
		t.Errorf("member list mismatch (-want, +got):\n%s", diff)
	}

	// Membership is immutable: a different member set conflicts.
	changed := *g
	changed.UID = 0
	changed.MemberIDs = []string{"member-0"}
	if _, err := a.RegisterObservationGroup(ctx, &changed); !errors.Is(err, database.ErrKeyConflict) {
		t.Errorf("changed membership = %v, want ErrKeyConflict", err)
	}

	// A group may not reference observations that do not exist.
	missing := &model.ObservationGroup{
		PublicID:     "group-2",
		SemanticType: "pigazing:simultaneous",
		Title:        "incomplete",
		CreatedBy:    "system",
		ObsTime:      obsTime,
		SetTime:      obsTime,
		MemberIDs:    []string{"member-0", "member-ghost"},
	}
	if _, err := a.RegisterObservationGroup(ctx, missing); !database.IsNotFound(err) {
		t.Errorf("missing member = %v, want not found", err)
	}
}

func TestClearDataCascades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	store := testStore(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	base := dbTime(time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC))
	addObsWithFile := func(id, fname string, at time.Time) {
		t.Helper()
		if _, err := a.RegisterObservation(ctx, &model.Observation{
			PublicID:      id,
			ObservatoryID: "eddington0",
			ObsTime:       at,
			ObsType:       "pigazing:timelapse/",
			CreatedBy:     "system",
		}); err != nil {
			t.Fatalf("RegisterObservation(%q): %v", id, err)
		}
		staged, err := store.Stage(ctx, strings.NewReader("content of "+fname))
		if err != nil {
			t.Fatalf("Stage(%q): %v", fname, err)
		}
		if _, err := a.RegisterFile(ctx, &model.FileRecord{
			RepositoryFname: fname,
			ObservationID:   id,
			MimeType:        "image/png",
			SemanticType:    "pigazing:timelapse/frame",
			FileTime:        at,
			FileSize:        staged.Size,
			MD5Hex:          staged.MD5Hex,
		}, staged); err != nil {
			t.Fatalf("RegisterFile(%q): %v", fname, err)
		}
	}

	addObsWithFile("obs-keep", "keep.png", base)
	addObsWithFile("obs-doomed", "doomed.png", base.Add(time.Hour))

	result, err := a.ClearData(ctx, base.Add(30*time.Minute), base.Add(2*time.Hour), []string{"eddington0"}, store)
	if err != nil {
		t.Fatalf("ClearData: %v", err)
	}
	if result.ObservationsDeleted != 1 || result.FilesDeleted != 1 || result.BlobsRemoved != 1 {
		t.Errorf("result = %+v, want 1/1/1", result)
	}

	if _, err := a.GetObservation(ctx, "obs-doomed"); !database.IsNotFound(err) {
		t.Errorf("doomed observation still present: %v", err)
	}
	if _, err := a.GetFile(ctx, "doomed.png"); !database.IsNotFound(err) {
		t.Errorf("doomed file row still present: %v", err)
	}
	if ok, _ := store.Exists("doomed.png"); ok {
		t.Error("doomed blob still on disk")
	}

	if _, err := a.GetObservation(ctx, "obs-keep"); err != nil {
		t.Errorf("kept observation lost: %v", err)
	}
	if ok, _ := store.Exists("keep.png"); !ok {
		t.Error("kept blob removed")
	}
}

func TestHighWaterMark(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)
	registerTestObservatory(t, ctx, a, "eddington0")

	if _, err := a.GetHighWaterMark(ctx, "eddington0", "timelapse"); !database.IsNotFound(err) {
		t.Errorf("unset mark = %v, want not found", err)
	}

	mark := dbTime(time.Date(2023, 6, 1, 4, 0, 0, 0, time.UTC))
	if err := a.SetHighWaterMark(ctx, "eddington0", "timelapse", mark); err != nil {
		t.Fatalf("SetHighWaterMark: %v", err)
	}

	got, err := a.GetHighWaterMark(ctx, "eddington0", "timelapse")
	if err != nil {
		t.Fatalf("GetHighWaterMark: %v", err)
	}
	if !got.Time.Equal(mark) {
		t.Errorf("mark = %v, want %v", got.Time, mark)
	}

	// Overwrite moves the bookmark.
	later := mark.Add(24 * time.Hour)
	if err := a.SetHighWaterMark(ctx, "eddington0", "timelapse", later); err != nil {
		t.Fatalf("SetHighWaterMark overwrite: %v", err)
	}
	got, err = a.GetHighWaterMark(ctx, "eddington0", "timelapse")
	if err != nil {
		t.Fatalf("GetHighWaterMark after overwrite: %v", err)
	}
	if !got.Time.Equal(later) {
		t.Errorf("mark = %v, want %v", got.Time, later)
	}
}

func TestUserAuthentication(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a := testArchiveDB(t)

	if err := a.CreateUser(ctx, "mirror", "hunter2", "mirror account", []string{model.RoleImport}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	roles, err := a.AuthenticateUser(ctx, "mirror", "hunter2")
	if err != nil {
		t.Fatalf("AuthenticateUser: %v", err)
	}
	if diff := cmp.Diff([]string{model.RoleImport}, roles); diff != "" {
		t.Errorf("roles mismatch (-want, +got):\n%s", diff)
	}

	if _, err := a.AuthenticateUser(ctx, "mirror", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("wrong password = %v, want ErrUnauthorized", err)
	}
	if _, err := a.AuthenticateUser(ctx, "nobody", "hunter2"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("unknown user = %v, want ErrUnauthorized", err)
	}
}
