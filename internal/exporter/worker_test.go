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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	archivedb "github.com/dcf21/pi-gazing-sub002/internal/archive/database"
	archivemodel "github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	exportdb "github.com/dcf21/pi-gazing-sub002/internal/exporter/database"
	"github.com/dcf21/pi-gazing-sub002/internal/exporter/model"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
)

func TestClassifyResult(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  *sendResult
		err  error
		want outcome
	}{
		{"transport error", nil, errors.New("connection refused"), outcomeTransient},
		{"unauthorized", &sendResult{status: 401}, nil, outcomeAuth},
		{"forbidden", &sendResult{status: 403}, nil, outcomeAuth},
		{"bad request", &sendResult{status: 400}, nil, outcomePermanent},
		{"not found", &sendResult{status: 404}, nil, outcomePermanent},
		{"server error", &sendResult{status: 500}, nil, outcomeTransient},
		{"gateway timeout", &sendResult{status: 504}, nil, outcomeTransient},
		{"accepted", &sendResult{status: 200, resp: &wire.Response{State: model.DispositionOK}}, nil, outcomeSuccess},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got, _ := classifyResult(tc.res, tc.err); got != tc.want {
				t.Errorf("classifyResult = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestFinalState(t *testing.T) {
	t.Parallel()

	w := &Worker{config: &Config{MaxAttempts: 4}}

	cases := []struct {
		name    string
		oc      outcome
		attempt int
		want    string
	}{
		{"success", outcomeSuccess, 1, model.StateSucceeded},
		{"permanent", outcomePermanent, 1, model.StateFailedPermanent},
		{"auth keeps row retryable", outcomeAuth, 4, model.StatePending},
		{"transient under budget", outcomeTransient, 3, model.StatePending},
		{"transient at budget", outcomeTransient, 4, model.StateFailedPermanent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			item := &model.QueueItem{AttemptCount: tc.attempt}
			if got := w.finalState(item, tc.oc); got != tc.want {
				t.Errorf("finalState = %q, want %q", got, tc.want)
			}
		})
	}
}

// fakeArchive is a scripted receiving archive. Handlers run serially under
// one mutex, matching the single-item worker.
type fakeArchive struct {
	mu         sync.Mutex
	rejectAuth bool

	observatoryHits int
	metadataHits    int
	observationHits int
	fileHits        int

	// observationFn scripts the reply per hit number; nil accepts all.
	observationFn func(hit int, p *wire.ObservationPayload) (int, wire.Response)
	// fileFn scripts file replies; nil accepts all.
	fileFn func(hit int, header *wire.FilePayload, body []byte) (int, wire.Response)
}

func (f *fakeArchive) handler(t *testing.T) http.Handler {
	writeJSON := func(w http.ResponseWriter, status int, resp wire.Response) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	}
	reply := func(w http.ResponseWriter, status int, resp wire.Response) {
		if status >= 200 && status < 300 {
			writeJSON(w, status, resp)
			return
		}
		w.WriteHeader(status)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		if f.rejectAuth {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "mirror" || pass != "hunter2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch r.URL.Path {
		case wire.ObservatoryEndpoint:
			f.observatoryHits++
			writeJSON(w, http.StatusOK, wire.Response{State: model.DispositionOK})

		case wire.MetadataEndpoint:
			f.metadataHits++
			writeJSON(w, http.StatusOK, wire.Response{State: model.DispositionOK})

		case wire.ObservationEndpoint:
			f.observationHits++
			var p wire.ObservationPayload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				t.Errorf("malformed observation payload: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.observationFn == nil {
				writeJSON(w, http.StatusOK, wire.Response{State: model.DispositionOK})
				return
			}
			status, resp := f.observationFn(f.observationHits, &p)
			reply(w, status, resp)

		case wire.FileEndpoint:
			f.fileHits++
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				t.Errorf("parsing multipart file request: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			var header wire.FilePayload
			if err := json.Unmarshal([]byte(r.FormValue(wire.FileMetaField)), &header); err != nil {
				t.Errorf("malformed file header: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			part, _, err := r.FormFile(wire.FileBodyField)
			if err != nil {
				t.Errorf("missing file part: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			body, err := io.ReadAll(part)
			part.Close()
			if err != nil {
				t.Errorf("reading file part: %v", err)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			if f.fileFn == nil {
				writeJSON(w, http.StatusOK, wire.Response{State: model.DispositionOK})
				return
			}
			status, resp := f.fileFn(f.fileHits, &header, body)
			reply(w, status, resp)

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type workerHarness struct {
	worker  *Worker
	archive *archivedb.ArchiveDB
	export  *exportdb.ExporterDB
	store   *contentstore.Store
	server  *httptest.Server
	config  *Config
}

func newWorkerHarness(t *testing.T, fake *fakeArchive) *workerHarness {
	t.Helper()

	db := database.NewTestDatabase(t)
	store, err := contentstore.New(&contentstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("contentstore.New: %v", err)
	}

	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := &Config{
		MaxAttempts:      4,
		MaxRuntime:       time.Minute,
		ControlTimeout:   5 * time.Second,
		FileTimeout:      30 * time.Second,
		FailureThreshold: 10,
		GlobalPause:      time.Minute,
	}
	env := serverenv.New(context.Background(),
		serverenv.WithDatabase(db),
		serverenv.WithContentStore(store))

	return &workerHarness{
		worker:  NewWorker(cfg, env),
		archive: archivedb.New(db),
		export:  exportdb.New(db),
		store:   store,
		server:  srv,
		config:  cfg,
	}
}

func (h *workerHarness) seedObservatory(t *testing.T, ctx context.Context) {
	t.Helper()
	if _, err := h.archive.RegisterObservatory(ctx, &archivemodel.Observatory{
		PublicID:  "eddington0",
		Name:      "roof east",
		Latitude:  52.2,
		Longitude: 0.12,
		Altitude:  15,
	}); err != nil {
		t.Fatalf("RegisterObservatory: %v", err)
	}
}

func (h *workerHarness) seedObservation(t *testing.T, ctx context.Context, publicID, obsType string) {
	t.Helper()
	if _, err := h.archive.RegisterObservation(ctx, &archivemodel.Observation{
		PublicID:      publicID,
		ObservatoryID: "eddington0",
		ObsTime:       time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC),
		ObsType:       obsType,
		CreatedBy:     "system",
	}); err != nil {
		t.Fatalf("RegisterObservation(%q): %v", publicID, err)
	}
}

func (h *workerHarness) addAndMark(t *testing.T, ctx context.Context, cfg *model.ExportConfig) {
	t.Helper()
	if err := h.export.AddExportConfig(ctx, cfg); err != nil {
		t.Fatalf("AddExportConfig: %v", err)
	}
	if _, err := h.export.MarkForExport(ctx, cfg); err != nil {
		t.Fatalf("MarkForExport: %v", err)
	}
}

func (h *workerHarness) movingObjectConfig() *model.ExportConfig {
	return &model.ExportConfig{
		ConfigID:   "cfg-1",
		TargetURL:  h.server.URL,
		Username:   "mirror",
		Password:   "hunter2",
		ExportType: model.ExportTypeObservation,
		Search:     &search.ObservationSearch{ObsType: "pigazing:movingObject/"},
		Name:       "moving objects",
		Enabled:    true,
	}
}

func TestWorkerDrainsQueues(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	h.seedObservation(t, ctx, "obs-2", "pigazing:movingObject/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 2 || result.Succeeded != 2 || result.Requeued != 0 {
		t.Errorf("result = %+v, want 2 processed, 2 succeeded", result)
	}

	// One observatory registration serves both observations.
	if fake.observatoryHits != 1 {
		t.Errorf("observatory registrations = %d, want 1", fake.observatoryHits)
	}
	if fake.observationHits != 2 {
		t.Errorf("observation posts = %d, want 2", fake.observationHits)
	}

	counts, err := h.export.QueueCounts(ctx)
	if err != nil {
		t.Fatalf("QueueCounts: %v", err)
	}
	if n := counts[model.ExportTypeObservation][model.StateSucceeded]; n != 2 {
		t.Errorf("succeeded rows = %d, want 2", n)
	}
}

func TestWorkerRetriesTransient(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{
		observationFn: func(hit int, p *wire.ObservationPayload) (int, wire.Response) {
			if hit == 1 {
				return http.StatusInternalServerError, wire.Response{}
			}
			return http.StatusOK, wire.Response{State: model.DispositionOK}
		},
	}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The 500 requeues the row; the same run leases it again and succeeds.
	if result.Processed != 2 || result.Succeeded != 1 || result.Requeued != 1 {
		t.Errorf("result = %+v, want 2 processed, 1 succeeded, 1 requeued", result)
	}
}

func TestWorkerQuarantinesPoisonItem(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{
		observationFn: func(hit int, p *wire.ObservationPayload) (int, wire.Response) {
			return http.StatusBadRequest, wire.Response{}
		},
	}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A 400 means this item can never succeed: one attempt, straight to
	// quarantine, no retries.
	if result.Processed != 1 || result.Quarantined != 1 {
		t.Errorf("result = %+v, want 1 processed, 1 quarantined", result)
	}
	if fake.observationHits != 1 {
		t.Errorf("observation posts = %d, want 1", fake.observationHits)
	}

	counts, err := h.export.QueueCounts(ctx)
	if err != nil {
		t.Fatalf("QueueCounts: %v", err)
	}
	if n := counts[model.ExportTypeObservation][model.StateFailedPermanent]; n != 1 {
		t.Errorf("failed-permanent rows = %d, want 1", n)
	}
}

func TestWorkerSkipsConfigOnAuthFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{rejectAuth: true}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	// The config is skipped after the first 401; the row is not burned.
	if result.Processed != 1 {
		t.Errorf("processed = %d, want 1", result.Processed)
	}
	if len(result.SkippedConfigs) != 1 || result.SkippedConfigs[0] != "cfg-1" {
		t.Errorf("skipped configs = %v, want [cfg-1]", result.SkippedConfigs)
	}

	counts, err := h.export.QueueCounts(ctx)
	if err != nil {
		t.Fatalf("QueueCounts: %v", err)
	}
	if n := counts[model.ExportTypeObservation][model.StatePending]; n != 1 {
		t.Errorf("pending rows = %d, want 1 (auth failure must not consume the row)", n)
	}
}

func TestWorkerResolvesPrerequisiteInline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := &fakeArchive{}
	fake.observationFn = func(hit int, p *wire.ObservationPayload) (int, wire.Response) {
		switch hit {
		case 1:
			// The remote claims it has never seen the companion
			// observation.
			return http.StatusOK, wire.Response{
				State:    model.DispositionNeedsPrerequisite,
				EntityID: "obs-companion",
			}
		case 2:
			if p.PublicID != "obs-companion" {
				return http.StatusBadRequest, wire.Response{}
			}
			return http.StatusOK, wire.Response{State: model.DispositionOK}
		default:
			return http.StatusOK, wire.Response{State: model.DispositionOK}
		}
	}

	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	// The companion is in the local archive but outside the config's
	// predicate, so only the prerequisite path can deliver it.
	h.seedObservation(t, ctx, "obs-companion", "pigazing:timelapse/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Succeeded != 1 {
		t.Errorf("result = %+v, want 1 processed, 1 succeeded", result)
	}
	// Original send, prerequisite send, retried original.
	if fake.observationHits != 3 {
		t.Errorf("observation posts = %d, want 3", fake.observationHits)
	}
}

func TestWorkerExportsFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	fake := &fakeArchive{}
	fake.fileFn = func(hit int, header *wire.FilePayload, body []byte) (int, wire.Response) {
		if header.RepositoryFname != "frame0001.png" || header.ObservationID != "obs-1" {
			return http.StatusBadRequest, wire.Response{}
		}
		if string(body) != "png bytes" {
			return http.StatusBadRequest, wire.Response{}
		}
		return http.StatusOK, wire.Response{State: model.DispositionOK}
	}

	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:timelapse/")

	staged, err := h.store.Stage(ctx, strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := h.archive.RegisterFile(ctx, &archivemodel.FileRecord{
		RepositoryFname: "frame0001.png",
		ObservationID:   "obs-1",
		MimeType:        "image/png",
		SemanticType:    "pigazing:timelapse/frame",
		FileTime:        time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC),
		FileSize:        staged.Size,
		MD5Hex:          staged.MD5Hex,
	}, staged); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}

	cfg := &model.ExportConfig{
		ConfigID:   "cfg-files",
		TargetURL:  h.server.URL,
		Username:   "mirror",
		Password:   "hunter2",
		ExportType: model.ExportTypeFile,
		Search:     &search.FileRecordSearch{},
		Name:       "all files",
		Enabled:    true,
	}
	h.addAndMark(t, ctx, cfg)

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 1 || result.Succeeded != 1 {
		t.Errorf("result = %+v, want 1 processed, 1 succeeded", result)
	}
	if fake.fileHits != 1 {
		t.Errorf("file posts = %d, want 1", fake.fileHits)
	}
}

func TestWorkerQuarantinesMissingBlob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:timelapse/")

	staged, err := h.store.Stage(ctx, strings.NewReader("png bytes"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if _, err := h.archive.RegisterFile(ctx, &archivemodel.FileRecord{
		RepositoryFname: "frame0001.png",
		ObservationID:   "obs-1",
		MimeType:        "image/png",
		SemanticType:    "pigazing:timelapse/frame",
		FileTime:        time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC),
		FileSize:        staged.Size,
		MD5Hex:          staged.MD5Hex,
	}, staged); err != nil {
		t.Fatalf("RegisterFile: %v", err)
	}

	// Simulate catalog/blob drift: the blob disappears after cataloging.
	if err := h.store.Remove(ctx, "frame0001.png"); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	cfg := &model.ExportConfig{
		ConfigID:   "cfg-files",
		TargetURL:  h.server.URL,
		Username:   "mirror",
		Password:   "hunter2",
		ExportType: model.ExportTypeFile,
		Search:     &search.FileRecordSearch{},
		Name:       "all files",
		Enabled:    true,
	}
	h.addAndMark(t, ctx, cfg)

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Quarantined != 1 {
		t.Errorf("result = %+v, want 1 quarantined", result)
	}
	// Nothing should reach the remote for a file we cannot read.
	if fake.fileHits != 0 {
		t.Errorf("file posts = %d, want 0", fake.fileHits)
	}
}

func TestWorkerStopsAtDeadline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeArchive{}
	h := newWorkerHarness(t, fake)
	h.seedObservatory(t, ctx)
	h.seedObservation(t, ctx, "obs-1", "pigazing:movingObject/")
	h.addAndMark(t, ctx, h.movingObjectConfig())

	h.config.MaxRuntime = 0

	result, err := h.worker.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Processed != 0 {
		t.Errorf("processed = %d, want 0 with an expired deadline", result.Processed)
	}

	counts, err := h.export.QueueCounts(ctx)
	if err != nil {
		t.Fatalf("QueueCounts: %v", err)
	}
	if n := counts[model.ExportTypeObservation][model.StatePending]; n != 1 {
		t.Errorf("pending rows = %d, want 1", n)
	}
}
