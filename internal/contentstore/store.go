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

// Package contentstore persists opaque byte blobs on the local filesystem,
// keyed by repository filename.
//
// Writes are crash-safe: content is staged to a temporary name in the store
// directory, fsynced, and renamed into place. The catalog transaction that
// registers a file performs the rename as its last step and discards the
// blob if the transaction fails, so a registered file always has its blob on
// disk and a failed registration leaves nothing behind.
package contentstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for repository filenames that would escape the
// store directory.
var ErrInvalidName = errors.New("invalid repository filename")

// Store is a content-addressed blob store rooted at a single directory.
type Store struct {
	root string
}

// New creates the store, creating the root directory if needed.
func New(cfg *Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("content store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, fmt.Errorf("creating content store root: %w", err)
	}
	return &Store{root: cfg.Root}, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// PathFor returns the filesystem path holding the named blob. It is a pure
// function of the repository filename.
func (s *Store) PathFor(repoFname string) (string, error) {
	if repoFname == "" || repoFname != filepath.Base(repoFname) || strings.HasPrefix(repoFname, tmpPrefix) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, repoFname)
	}
	return filepath.Join(s.root, repoFname), nil
}

// tmpPrefix marks staged blobs that have not been committed. Names with this
// prefix are never valid repository filenames, and the integrity scan
// ignores them.
const tmpPrefix = ".staged-"

// StagedBlob is content written to the store but not yet committed under its
// final name.
type StagedBlob struct {
	store     *Store
	path      string
	committed bool

	// Size is the number of bytes staged.
	Size int64

	// MD5Hex is the lowercase hex MD5 of the staged content.
	MD5Hex string
}

// Stage copies source into the store under a temporary name, fsyncs it, and
// returns the staged blob with its size and content hash. The caller must
// either Commit or Abort the result.
func (s *Store) Stage(ctx context.Context, source io.Reader) (*StagedBlob, error) {
	name := tmpPrefix + uuid.New().String()
	path := filepath.Join(s.root, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	hash := md5.New()
	size, err := io.Copy(io.MultiWriter(f, hash), source)
	if err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("staging blob: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("syncing staged blob: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("closing staged blob: %w", err)
	}

	return &StagedBlob{
		store:  s,
		path:   path,
		Size:   size,
		MD5Hex: hex.EncodeToString(hash.Sum(nil)),
	}, nil
}

// Commit renames the staged blob to its final repository filename. After a
// successful commit the blob is durable under PathFor(repoFname).
func (b *StagedBlob) Commit(repoFname string) error {
	final, err := b.store.PathFor(repoFname)
	if err != nil {
		return err
	}
	if err := os.Rename(b.path, final); err != nil {
		return fmt.Errorf("committing blob %q: %w", repoFname, err)
	}
	b.path = final
	b.committed = true
	return syncDir(b.store.root)
}

// Abort removes the staged blob. Safe to call after Commit, where it is a
// no-op; use Discard to undo a commit.
func (b *StagedBlob) Abort() {
	if b.committed {
		return
	}
	_ = os.Remove(b.path)
}

// Discard removes the blob wherever it currently lives, staged or committed.
// The catalog uses it to undo the rename when a registration fails after
// Commit. A blob that is already absent is not an error.
func (b *StagedBlob) Discard() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discarding blob: %w", err)
	}
	return nil
}

// Place stages and immediately commits source under repoFname.
func (s *Store) Place(ctx context.Context, repoFname string, source io.Reader) (*StagedBlob, error) {
	staged, err := s.Stage(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := staged.Commit(repoFname); err != nil {
		_ = staged.Discard()
		return nil, err
	}
	return staged, nil
}

// Open returns a reader over the named blob.
func (s *Store) Open(repoFname string) (*os.File, int64, error) {
	path, err := s.PathFor(repoFname)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Exists reports whether the named blob is on disk.
func (s *Store) Exists(repoFname string) (bool, error) {
	path, err := s.PathFor(repoFname)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove deletes the named blob. A blob that is already absent is logged and
// not treated as an error.
func (s *Store) Remove(ctx context.Context, repoFname string) error {
	path, err := s.PathFor(repoFname)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.FromContext(ctx).Debugw("blob already absent", "file", repoFname)
			return nil
		}
		return fmt.Errorf("removing blob %q: %w", repoFname, err)
	}
	return nil
}

// syncDir fsyncs a directory so a rename within it is durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening dir for sync: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing dir: %w", err)
	}
	return nil
}
