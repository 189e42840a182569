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
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(tb testing.TB) *Store {
	tb.Helper()
	store, err := New(&Config{Root: tb.TempDir()})
	if err != nil {
		tb.Fatalf("New: %v", err)
	}
	return store
}

func TestStageCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	content := []byte("a frame of the night sky")
	staged, err := store.Stage(ctx, strings.NewReader(string(content)))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	if staged.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", staged.Size, len(content))
	}
	sum := md5.Sum(content)
	if want := hex.EncodeToString(sum[:]); staged.MD5Hex != want {
		t.Errorf("MD5Hex = %q, want %q", staged.MD5Hex, want)
	}

	if err := staged.Commit("frame0001.png"); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	f, size, err := store.Open("frame0001.png")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if size != int64(len(content)) {
		t.Errorf("size = %d, want %d", size, len(content))
	}
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: %q", got)
	}
}

func TestStageAbort(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	staged, err := store.Stage(ctx, strings.NewReader("doomed"))
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	staged.Abort()

	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("store not empty after abort: %v", entries)
	}
}

func TestPathForRejectsEscapes(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)

	for _, name := range []string{"", "../evil", "a/b", ".staged-123", "/etc/passwd"} {
		if _, err := store.PathFor(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("PathFor(%q) = %v, want ErrInvalidName", name, err)
		}
	}

	path, err := store.PathFor("frame.png")
	if err != nil {
		t.Fatalf("PathFor: %v", err)
	}
	if filepath.Dir(path) != store.Root() {
		t.Errorf("path %q not under root %q", path, store.Root())
	}
}

func TestRemoveTolerantOfAbsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.Remove(ctx, "never-existed.png"); err != nil {
		t.Errorf("Remove of absent blob: %v", err)
	}
}

func TestPlaceThenExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	if _, err := store.Place(ctx, "frame.png", strings.NewReader("bytes")); err != nil {
		t.Fatalf("Place: %v", err)
	}

	ok, err := store.Exists("frame.png")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if !ok {
		t.Error("blob missing after Place")
	}
}

func TestIntegrityScan(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	// Two cataloged blobs on disk, one orphan, one catalog row with no
	// blob, plus a staged temp file the scan must ignore.
	for _, name := range []string{"cataloged1.png", "cataloged2.png", "orphan.png"} {
		if _, err := store.Place(ctx, name, strings.NewReader(name)); err != nil {
			t.Fatalf("Place(%q): %v", name, err)
		}
	}
	if _, err := store.Stage(ctx, strings.NewReader("staged")); err != nil {
		t.Fatalf("Stage: %v", err)
	}

	report, err := store.IntegrityScan(ctx, []string{"cataloged1.png", "cataloged2.png", "missing.png"})
	if err != nil {
		t.Fatalf("IntegrityScan: %v", err)
	}

	if diff := cmp.Diff([]string{"orphan.png"}, report.Orphans); diff != "" {
		t.Errorf("orphans mismatch (-want, +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"missing.png"}, report.Missing); diff != "" {
		t.Errorf("missing mismatch (-want, +got):\n%s", diff)
	}
}
