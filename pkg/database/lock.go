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
	"fmt"
	"strings"
	"time"

	pgx "github.com/jackc/pgx/v4"
)

// ErrAlreadyLocked is returned if the lock is already in use.
var ErrAlreadyLocked = errors.New("lock already in use")

// lockHeldMarker is raised by the acquire_lock SQL function when an
// unexpired lock with the same id exists.
const lockHeldMarker = "LOCK_ALREADY_HELD"

// UnlockFn can be deferred to release a lock.
type UnlockFn func() error

// Lock acquires the named lock with the given ttl. It returns an UnlockFn
// that releases the lock. ErrAlreadyLocked is returned if an unexpired lock
// with the same name is held elsewhere. Expired locks are taken over, which
// covers workers that crashed without releasing.
func (db *DB) Lock(ctx context.Context, lockID string, ttl time.Duration) (UnlockFn, error) {
	var expires time.Time
	err := db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT acquire_lock($1, $2)`, lockID, int(ttl.Seconds()))
		return row.Scan(&expires)
	})
	if err != nil {
		if strings.Contains(err.Error(), lockHeldMarker) {
			return nil, ErrAlreadyLocked
		}
		return nil, err
	}
	return makeUnlockFn(ctx, db, lockID), nil
}

func makeUnlockFn(ctx context.Context, db *DB, lockID string) UnlockFn {
	return func() error {
		return db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
			var released bool
			row := tx.QueryRow(ctx, `SELECT release_lock($1)`, lockID)
			if err := row.Scan(&released); err != nil {
				return fmt.Errorf("releasing lock: %w", err)
			}
			if !released {
				return fmt.Errorf("lock %q was not held", lockID)
			}
			return nil
		})
	}
}
