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

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
	"golang.org/x/crypto/bcrypt"
)

// ErrUnauthorized is returned when credentials do not match a user record.
var ErrUnauthorized = errors.New("unauthorized")

// CreateUser creates or replaces an account. The password is stored as a
// bcrypt hash.
func (a *ArchiveDB) CreateUser(ctx context.Context, userID, password, name string, roles []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}

	return a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO archive_users (user_id, password_hash, name, roles)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id) DO UPDATE
				SET password_hash = excluded.password_hash,
				    name = excluded.name,
				    roles = excluded.roles
		`, userID, string(hash), name, roles); err != nil {
			return fmt.Errorf("upserting user: %w", err)
		}
		return nil
	})
}

// GetUser looks up an account by user id.
func (a *ArchiveDB) GetUser(ctx context.Context, userID string) (*model.User, error) {
	var user *model.User
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT user_id, password_hash, name, roles, created_at
			FROM archive_users
			WHERE user_id = $1
		`, userID)

		var u model.User
		if err := row.Scan(&u.UserID, &u.PasswordHash, &u.Name, &u.Roles, &u.CreatedAt); err != nil {
			if err == pgx.ErrNoRows {
				return database.ErrNotFound
			}
			return fmt.Errorf("looking up user: %w", err)
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// AuthenticateUser verifies a user id and password and returns the account's
// roles. Unknown users and wrong passwords both return ErrUnauthorized.
// Implements middleware.UserAuthenticator.
func (a *ArchiveDB) AuthenticateUser(ctx context.Context, userID, password string) ([]string, error) {
	user, err := a.GetUser(ctx, userID)
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrUnauthorized
	}
	return user.Roles, nil
}
