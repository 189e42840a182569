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

// Package model contains the export configuration and queue entities.
package model

import (
	"fmt"
	"net/url"
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/search"
)

// Export types select which entity class a configuration mirrors and which
// queue table its rows live in.
const (
	ExportTypeMetadata    = "metadata"
	ExportTypeObservation = "observation"
	ExportTypeFile        = "file"
)

// Queue row states.
const (
	StatePending         = "pending"
	StateInProgress      = "in-progress"
	StateSucceeded       = "succeeded"
	StateFailedTransient = "failed-transient"
	StateFailedPermanent = "failed-permanent"
)

// Dispositions the receiving archive reports for an accepted request.
// Anything else is treated as an opaque permanent failure.
const (
	DispositionOK                = "ok"
	DispositionAlreadyPresent    = "already-present"
	DispositionNeedsPrerequisite = "needs-prerequisite"
)

// ExportConfig is a rule describing which entities are mirrored to which
// remote archive. Enabling a configuration means: mirror every entity its
// predicate would return, now and forever.
type ExportConfig struct {
	ConfigID    string
	TargetURL   string
	Username    string
	Password    string
	ExportType  string
	Search      search.Search
	Name        string
	Description string
	Enabled     bool
	CreatedAt   time.Time
}

// Validate checks the configuration for internal consistency before it is
// stored.
func (c *ExportConfig) Validate() error {
	if c.ConfigID == "" {
		return fmt.Errorf("config id is required")
	}
	u, err := url.Parse(c.TargetURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("target url %q is not an absolute URL", c.TargetURL)
	}
	if c.Search == nil {
		return fmt.Errorf("search predicate is required")
	}

	switch c.ExportType {
	case ExportTypeMetadata:
		if _, ok := c.Search.(*search.ObservatoryMetadataSearch); !ok {
			return fmt.Errorf("metadata export requires an observatory metadata predicate, got %s", c.Search.Kind())
		}
	case ExportTypeObservation:
		if _, ok := c.Search.(*search.ObservationSearch); !ok {
			return fmt.Errorf("observation export requires an observation predicate, got %s", c.Search.Kind())
		}
	case ExportTypeFile:
		if _, ok := c.Search.(*search.FileRecordSearch); !ok {
			return fmt.Errorf("file export requires a file record predicate, got %s", c.Search.Kind())
		}
	default:
		return fmt.Errorf("unknown export type %q", c.ExportType)
	}
	return nil
}

// QueueItem is one durable per-(configuration, entity) export state row,
// leased out of its queue table for a single transmission attempt.
type QueueItem struct {
	QueueID      int64
	ConfigID     string
	ExportType   string
	EntityUID    int64
	State        string
	AttemptCount int
	LastAttempt  *time.Time
}
