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
	"fmt"
	"strings"
)

// The WHERE builders target the canonical table aliases used by the archive
// queries:
//
//	o  archive_observations
//	l  archive_observatories
//	f  archive_files
//	m  archive_metadata
//	g  archive_obs_groups
//
// Each builder returns a WHERE fragment (without the WHERE keyword) and its
// positional arguments, numbering placeholders from argOffset.

// whereBuilder accumulates AND-joined conditions with positional args.
type whereBuilder struct {
	conds []string
	args  []interface{}
	next  int
}

func newWhereBuilder(argOffset int) *whereBuilder {
	return &whereBuilder{next: argOffset}
}

// add appends one condition. The format string must contain exactly one %d
// verb per argument, which is replaced with the positional parameter number.
func (b *whereBuilder) add(format string, args ...interface{}) {
	nums := make([]interface{}, len(args))
	for i := range args {
		nums[i] = b.next
		b.next++
	}
	b.conds = append(b.conds, fmt.Sprintf(format, nums...))
	b.args = append(b.args, args...)
}

func (b *whereBuilder) where() (string, []interface{}) {
	if len(b.conds) == 0 {
		return "TRUE", nil
	}
	return strings.Join(b.conds, " AND "), b.args
}

// cursorOp returns the keyset comparison matching the scan direction: rows
// after the cursor in an ascending scan, before it in a descending one.
func cursorOp(descending bool) string {
	if descending {
		return "<"
	}
	return ">"
}

// WhereSQL builds the filter for observation queries.
func (s *ObservationSearch) WhereSQL(argOffset int) (string, []interface{}) {
	b := newWhereBuilder(argOffset)
	if len(s.ObservatoryIDs) > 0 {
		b.add("l.public_id = ANY($%d)", s.ObservatoryIDs)
	}
	if s.ObsType != "" {
		b.add("o.obs_type = $%d", s.ObsType)
	}
	if s.TimeMin != nil {
		b.add("o.obs_time >= $%d", *s.TimeMin)
	}
	if s.TimeMax != nil {
		b.add("o.obs_time < $%d", *s.TimeMax)
	}
	if s.After != nil {
		b.add("(o.obs_time, o.public_id) "+cursorOp(s.Descending)+" ($%d, $%d)", s.After.Time, s.After.PublicID)
	}
	return b.where()
}

// WhereSQL builds the filter for file record queries.
func (s *FileRecordSearch) WhereSQL(argOffset int) (string, []interface{}) {
	b := newWhereBuilder(argOffset)
	if len(s.ObservatoryIDs) > 0 {
		b.add("l.public_id = ANY($%d)", s.ObservatoryIDs)
	}
	if s.SemanticType != "" {
		b.add("f.semantic_type = $%d", s.SemanticType)
	}
	if s.MimeType != "" {
		b.add("f.mime_type = $%d", s.MimeType)
	}
	if s.TimeMin != nil {
		b.add("f.file_time >= $%d", *s.TimeMin)
	}
	if s.TimeMax != nil {
		b.add("f.file_time < $%d", *s.TimeMax)
	}
	if s.After != nil {
		b.add("(f.file_time, f.repository_fname) "+cursorOp(s.Descending)+" ($%d, $%d)", s.After.Time, s.After.PublicID)
	}
	return b.where()
}

// WhereSQL builds the filter for observatory metadata queries.
func (s *ObservatoryMetadataSearch) WhereSQL(argOffset int) (string, []interface{}) {
	b := newWhereBuilder(argOffset)
	if len(s.ObservatoryIDs) > 0 {
		b.add("l.public_id = ANY($%d)", s.ObservatoryIDs)
	}
	if s.Key != "" {
		b.add("m.key = $%d", s.Key)
	}
	if s.TimeMin != nil {
		b.add("m.metadata_time >= $%d", *s.TimeMin)
	}
	if s.TimeMax != nil {
		b.add("m.metadata_time < $%d", *s.TimeMax)
	}
	return b.where()
}

// WhereSQL builds the filter for observation group queries.
func (s *ObservationGroupSearch) WhereSQL(argOffset int) (string, []interface{}) {
	b := newWhereBuilder(argOffset)
	if s.SemanticType != "" {
		b.add("g.semantic_type = $%d", s.SemanticType)
	}
	if s.TimeMin != nil {
		b.add("g.obs_time >= $%d", *s.TimeMin)
	}
	if s.TimeMax != nil {
		b.add("g.obs_time < $%d", *s.TimeMax)
	}
	return b.where()
}
