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
	"fmt"
	"sort"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/search"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"

	pgx "github.com/jackc/pgx/v4"
)

// RegisterObservationGroup creates a group with its full membership in one
// transaction. Every member observation must already exist. Membership is
// immutable after creation: re-registration with identical content is an
// idempotent no-op, and re-registration with different content returns
// ErrKeyConflict.
func (a *ArchiveDB) RegisterObservationGroup(ctx context.Context, g *model.ObservationGroup) (created bool, err error) {
	err = a.db.InTx(ctx, pgx.Serializable, func(tx pgx.Tx) error {
		existing, err := getGroup(ctx, tx, g.PublicID)
		if err != nil && !database.IsNotFound(err) {
			return err
		}
		if existing != nil {
			if !sameGroup(existing, g) {
				return fmt.Errorf("group %q already exists with different content: %w",
					g.PublicID, database.ErrKeyConflict)
			}
			g.UID = existing.UID
			g.CreatedAt = existing.CreatedAt
			return nil
		}

		memberUIDs := make([]int64, 0, len(g.MemberIDs))
		for _, memberID := range g.MemberIDs {
			obs, err := getObservation(ctx, tx, memberID)
			if err != nil {
				if database.IsNotFound(err) {
					return fmt.Errorf("group member %q: %w", memberID, database.ErrNotFound)
				}
				return err
			}
			memberUIDs = append(memberUIDs, obs.UID)
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO archive_obs_groups
				(public_id, semantic_type, title, created_by, obs_time, set_time)
			VALUES
				($1, $2, $3, $4, $5, $6)
			RETURNING uid, created_at
		`, g.PublicID, g.SemanticType, g.Title, g.CreatedBy, g.ObsTime, g.SetTime)
		if err := row.Scan(&g.UID, &g.CreatedAt); err != nil {
			return fmt.Errorf("inserting group: %w", err)
		}

		for _, uid := range memberUIDs {
			if _, err := tx.Exec(ctx, `
				INSERT INTO archive_obs_group_members (group_uid, observation_uid)
				VALUES ($1, $2)
			`, g.UID, uid); err != nil {
				return fmt.Errorf("inserting group member: %w", err)
			}
		}

		created = true
		return nil
	})
	return created, err
}

// GetGroup looks up a group by public id, including its member list.
func (a *ArchiveDB) GetGroup(ctx context.Context, publicID string) (*model.ObservationGroup, error) {
	var g *model.ObservationGroup
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		var err error
		g, err = getGroup(ctx, tx, publicID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SearchGroups returns groups matching the predicate, ordered by (obs time,
// public id).
func (a *ArchiveDB) SearchGroups(ctx context.Context, q *search.ObservationGroupSearch) ([]*model.ObservationGroup, error) {
	where, args := q.WhereSQL(1)
	order := "ASC"
	if q.Descending {
		order = "DESC"
	}
	sql := fmt.Sprintf(`
		SELECT g.uid, g.public_id, g.semantic_type, g.title, g.created_by,
		       g.obs_time, g.set_time, g.created_at
		FROM archive_obs_groups g
		WHERE %s
		ORDER BY g.obs_time %s, g.public_id %s
	`, where, order, order)
	if q.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	var result []*model.ObservationGroup
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("searching groups: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var g model.ObservationGroup
			if err := rows.Scan(&g.UID, &g.PublicID, &g.SemanticType, &g.Title,
				&g.CreatedBy, &g.ObsTime, &g.SetTime, &g.CreatedAt); err != nil {
				return fmt.Errorf("scanning group: %w", err)
			}
			result = append(result, &g)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, g := range result {
			members, err := groupMembers(ctx, tx, g.UID)
			if err != nil {
				return err
			}
			g.MemberIDs = members
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GroupMembershipsFor returns, for one observation, every group it belongs
// to with the full member list of each.
func (a *ArchiveDB) GroupMembershipsFor(ctx context.Context, observationID string) ([]model.GroupMembership, error) {
	var result []model.GroupMembership
	err := a.db.InTx(ctx, pgx.ReadCommitted, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT g.uid, g.public_id, g.semantic_type, g.title, g.obs_time, g.set_time
			FROM archive_obs_groups g
			JOIN archive_obs_group_members gm ON gm.group_uid = g.uid
			JOIN archive_observations o ON o.uid = gm.observation_uid
			WHERE o.public_id = $1
			ORDER BY g.public_id
		`, observationID)
		if err != nil {
			return fmt.Errorf("loading group memberships: %w", err)
		}
		defer rows.Close()

		var uids []int64
		for rows.Next() {
			var m model.GroupMembership
			var uid int64
			if err := rows.Scan(&uid, &m.PublicID, &m.SemanticType, &m.Title,
				&m.ObsTime, &m.SetTime); err != nil {
				return fmt.Errorf("scanning group membership: %w", err)
			}
			result = append(result, m)
			uids = append(uids, uid)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for i, uid := range uids {
			members, err := groupMembers(ctx, tx, uid)
			if err != nil {
				return err
			}
			result[i].MemberIDs = members
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func getGroup(ctx context.Context, tx pgx.Tx, publicID string) (*model.ObservationGroup, error) {
	row := tx.QueryRow(ctx, `
		SELECT uid, public_id, semantic_type, title, created_by,
		       obs_time, set_time, created_at
		FROM archive_obs_groups
		WHERE public_id = $1
	`, publicID)

	var g model.ObservationGroup
	if err := row.Scan(&g.UID, &g.PublicID, &g.SemanticType, &g.Title,
		&g.CreatedBy, &g.ObsTime, &g.SetTime, &g.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, database.ErrNotFound
		}
		return nil, fmt.Errorf("looking up group: %w", err)
	}

	members, err := groupMembers(ctx, tx, g.UID)
	if err != nil {
		return nil, err
	}
	g.MemberIDs = members
	return &g, nil
}

func groupMembers(ctx context.Context, tx pgx.Tx, groupUID int64) ([]string, error) {
	rows, err := tx.Query(ctx, `
		SELECT o.public_id
		FROM archive_obs_group_members gm
		JOIN archive_observations o ON o.uid = gm.observation_uid
		WHERE gm.group_uid = $1
		ORDER BY o.public_id
	`, groupUID)
	if err != nil {
		return nil, fmt.Errorf("loading group members: %w", err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning group member: %w", err)
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// sameGroup compares two groups field for field, member lists included.
func sameGroup(a, b *model.ObservationGroup) bool {
	if a.SemanticType != b.SemanticType ||
		a.Title != b.Title ||
		!a.ObsTime.Equal(b.ObsTime) ||
		!a.SetTime.Equal(b.SetTime) ||
		len(a.MemberIDs) != len(b.MemberIDs) {
		return false
	}
	am := append([]string(nil), a.MemberIDs...)
	bm := append([]string(nil), b.MemberIDs...)
	sort.Strings(am)
	sort.Strings(bm)
	for i := range am {
		if am[i] != bm[i] {
			return false
		}
	}
	return true
}
