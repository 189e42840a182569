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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	archivedb "github.com/dcf21/pi-gazing-sub002/internal/archive/database"
	archivemodel "github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/contentstore"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
)

type serverHarness struct {
	api     *httptest.Server
	remote  *httptest.Server
	archive *archivedb.ArchiveDB
}

func newServerHarness(t *testing.T, fake *fakeArchive) *serverHarness {
	t.Helper()
	ctx := context.Background()

	db := database.NewTestDatabase(t)
	store, err := contentstore.New(&contentstore.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("contentstore.New: %v", err)
	}

	remote := httptest.NewServer(fake.handler(t))
	t.Cleanup(remote.Close)

	cfg := &Config{
		MaxAttempts:      4,
		MaxRuntime:       time.Minute,
		ControlTimeout:   5 * time.Second,
		FileTimeout:      30 * time.Second,
		FailureThreshold: 10,
		GlobalPause:      time.Minute,
	}
	env := serverenv.New(ctx,
		serverenv.WithDatabase(db),
		serverenv.WithContentStore(store))
	srv, err := NewServer(cfg, env)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	api := httptest.NewServer(srv.Routes(ctx))
	t.Cleanup(api.Close)

	return &serverHarness{api: api, remote: remote, archive: archivedb.New(db)}
}

func (h *serverHarness) do(t *testing.T, method, path string, payload interface{}) *http.Response {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encoding payload: %v", err)
		}
	}
	req, err := http.NewRequest(method, h.api.URL+path, &body)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.api.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func (h *serverHarness) putConfig(t *testing.T, configID string, pred search.Search, wantStatus int) {
	t.Helper()

	env, err := search.Marshal(pred)
	if err != nil {
		t.Fatalf("search.Marshal: %v", err)
	}
	exportType := ""
	switch pred.(type) {
	case *search.ObservationSearch:
		exportType = "observation"
	case *search.FileRecordSearch:
		exportType = "file"
	case *search.ObservatoryMetadataSearch:
		exportType = "metadata"
	}

	resp := h.do(t, http.MethodPut, "/config", &configJSON{
		ConfigID:   configID,
		TargetURL:  h.remote.URL,
		Username:   "mirror",
		Password:   "hunter2",
		ExportType: exportType,
		Search:     env,
		Name:       "test config",
		Enabled:    true,
	})
	resp.Body.Close()
	if resp.StatusCode != wantStatus {
		t.Fatalf("PUT /config status = %d, want %d", resp.StatusCode, wantStatus)
	}
}

func TestConfigRegistryHTTP(t *testing.T) {
	t.Parallel()
	h := newServerHarness(t, &fakeArchive{})

	h.putConfig(t, "cfg-1", &search.ObservationSearch{ObsType: "pigazing:movingObject/"}, http.StatusOK)

	// The stored type is fixed; switching predicates is a conflict.
	h.putConfig(t, "cfg-1", &search.FileRecordSearch{}, http.StatusConflict)

	resp := h.do(t, http.MethodGet, "/config", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /config status = %d", resp.StatusCode)
	}
	var configs []configJSON
	if err := json.NewDecoder(resp.Body).Decode(&configs); err != nil {
		t.Fatalf("decoding config list: %v", err)
	}
	if len(configs) != 1 || configs[0].ConfigID != "cfg-1" {
		t.Fatalf("config list = %+v", configs)
	}
	// Passwords are write-only.
	if configs[0].Password != "" {
		t.Error("password leaked in config list")
	}
	if _, err := search.Unmarshal(configs[0].Search); err != nil {
		t.Errorf("listed predicate does not round trip: %v", err)
	}

	del := h.do(t, http.MethodDelete, "/config/cfg-1", nil)
	del.Body.Close()
	if del.StatusCode != http.StatusOK {
		t.Fatalf("DELETE /config status = %d", del.StatusCode)
	}
	del = h.do(t, http.MethodDelete, "/config/cfg-1", nil)
	del.Body.Close()
	if del.StatusCode != http.StatusNotFound {
		t.Errorf("second DELETE status = %d, want 404", del.StatusCode)
	}
}

func TestMarkAndDrainHTTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newServerHarness(t, &fakeArchive{})

	if _, err := h.archive.RegisterObservatory(ctx, &archivemodel.Observatory{
		PublicID: "eddington0", Name: "roof east", Latitude: 52.2, Longitude: 0.12, Altitude: 15,
	}); err != nil {
		t.Fatalf("RegisterObservatory: %v", err)
	}
	if _, err := h.archive.RegisterObservation(ctx, &archivemodel.Observation{
		PublicID:      "obs-1",
		ObservatoryID: "eddington0",
		ObsTime:       time.Date(2023, 6, 1, 22, 0, 0, 0, time.UTC),
		ObsType:       "pigazing:movingObject/",
		CreatedBy:     "system",
	}); err != nil {
		t.Fatalf("RegisterObservation: %v", err)
	}

	h.putConfig(t, "cfg-1", &search.ObservationSearch{ObsType: "pigazing:movingObject/"}, http.StatusOK)

	resp := h.do(t, http.MethodPost, "/mark", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /mark status = %d", resp.StatusCode)
	}
	var mr markResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil {
		t.Fatalf("decoding mark response: %v", err)
	}
	resp.Body.Close()
	if mr.Marked["cfg-1"] != 1 {
		t.Errorf("marked = %v, want cfg-1:1", mr.Marked)
	}

	resp = h.do(t, http.MethodPost, "/drain", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /drain status = %d", resp.StatusCode)
	}
	var rr RunResult
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decoding drain result: %v", err)
	}
	resp.Body.Close()
	if rr.Succeeded != 1 {
		t.Errorf("drain result = %+v, want 1 succeeded", rr)
	}

	// Reset requires a config id.
	resp = h.do(t, http.MethodPost, "/reset", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("POST /reset status = %d, want 400", resp.StatusCode)
	}
}
