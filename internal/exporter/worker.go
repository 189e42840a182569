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

// Package exporter drives observation archive mirroring: marking entities
// for export and draining the queues to remote archives.
package exporter

import (
	"context"
	"fmt"
	"sort"

	archivedb "github.com/dcf21/pi-gazing-sub002/internal/archive/database"
	exportdb "github.com/dcf21/pi-gazing-sub002/internal/exporter/database"
	"github.com/dcf21/pi-gazing-sub002/internal/exporter/model"
	"github.com/dcf21/pi-gazing-sub002/internal/serverenv"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"go.opencensus.io/stats"
)

// outcome classifies one transmission attempt.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeTransient
	outcomePermanent
	outcomeAuth
)

// Worker drains the export queues, one item at a time.
type Worker struct {
	config    *Config
	env       *serverenv.ServerEnv
	archiveDB *archivedb.ArchiveDB
	exportDB  *exportdb.ExporterDB
	client    *client
}

// NewWorker creates a Worker on the given environment.
func NewWorker(cfg *Config, env *serverenv.ServerEnv) *Worker {
	return &Worker{
		config:    cfg,
		env:       env,
		archiveDB: archivedb.New(env.Database()),
		exportDB:  exportdb.New(env.Database()),
		client:    newClient(cfg.ControlTimeout, cfg.FileTimeout),
	}
}

// RunResult summarises one drain run.
type RunResult struct {
	Demoted        int64    `json:"demoted"`
	Processed      int      `json:"processed"`
	Succeeded      int      `json:"succeeded"`
	Requeued       int      `json:"requeued"`
	Quarantined    int      `json:"quarantined"`
	SkippedConfigs []string `json:"skippedConfigs,omitempty"`
}

// Run drains the queues until they are empty, the context is cancelled, or
// the stop-by deadline passes. The deadline is only checked between items:
// an in-flight item always completes its transaction.
func (w *Worker) Run(ctx context.Context) (*RunResult, error) {
	logger := logging.FromContext(ctx).Named("worker")
	clk := w.env.Clock()
	stopBy := clk.Now().Add(w.config.MaxRuntime)

	result := &RunResult{}

	// Rows stranded in-progress by a previous crash go back to pending.
	demoted, err := w.exportDB.DemoteInProgress(ctx)
	if err != nil {
		return result, fmt.Errorf("demoting stale rows: %w", err)
	}
	result.Demoted = demoted
	if demoted > 0 {
		logger.Warnw("demoted stale in-progress rows", "count", demoted)
	}

	// Configs rejected with 401/403 are skipped for the rest of the run;
	// retrying them without operator action only burns attempts.
	authSkip := make(map[string]bool)
	defer func() {
		result.SkippedConfigs = sortedKeys(authSkip)
	}()

	// Observatory registrations already sent this run, keyed by
	// (config id, observatory id).
	sentObservatories := make(map[string]bool)

	consecutiveFailures := 0

	for {
		if err := ctx.Err(); err != nil {
			logger.Infow("drain cancelled", "processed", result.Processed)
			return result, err
		}
		if !clk.Now().Before(stopBy) {
			logger.Infow("drain deadline reached", "processed", result.Processed)
			return result, nil
		}

		item, err := w.exportDB.LeaseNext(ctx, sortedKeys(authSkip))
		if err != nil {
			return result, fmt.Errorf("leasing next item: %w", err)
		}
		if item == nil {
			logger.Infow("queues drained", "processed", result.Processed)
			return result, nil
		}
		result.Processed++

		cfg, err := w.exportDB.GetExportConfig(ctx, item.ConfigID)
		if err != nil {
			// Config deleted mid-drain; its rows are cascading away.
			logger.Warnw("config vanished for leased item",
				"config", item.ConfigID, "queueId", item.QueueID, "error", err)
			if cerr := w.exportDB.CompleteItem(ctx, item, model.StatePending); cerr != nil {
				logger.Errorw("returning leased item failed", "error", cerr)
			}
			continue
		}

		oc, reason := w.sendItem(ctx, cfg, item, sentObservatories)
		state := w.finalState(item, oc)

		if oc == outcomeAuth {
			authSkip[cfg.ConfigID] = true
			logger.Errorw("authentication rejected, skipping config for this run",
				"config", cfg.ConfigID, "reason", reason)
		}

		if err := w.exportDB.CompleteItem(ctx, item, state); err != nil {
			return result, fmt.Errorf("committing disposition for row %d: %w", item.QueueID, err)
		}

		logger.Infow("export item processed",
			"config", cfg.ConfigID,
			"type", item.ExportType,
			"queueId", item.QueueID,
			"attempt", item.AttemptCount,
			"state", state,
			"reason", reason)

		switch state {
		case model.StateSucceeded:
			result.Succeeded++
			stats.Record(ctx, mSucceeded.M(1))
			consecutiveFailures = 0
		case model.StateFailedPermanent:
			result.Quarantined++
			stats.Record(ctx, mFailed.M(1), mQuarantined.M(1))
			consecutiveFailures++
		default:
			result.Requeued++
			stats.Record(ctx, mFailed.M(1))
			consecutiveFailures++
		}

		if consecutiveFailures > 0 {
			pause := BackoffDelay(consecutiveFailures)
			if consecutiveFailures >= w.config.FailureThreshold {
				pause = w.config.GlobalPause
				logger.Warnw("consecutive failure threshold reached, pausing drain",
					"failures", consecutiveFailures, "pause", pause)
			}
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-clk.After(pause):
			}
		}
	}
}

// finalState maps an attempt outcome to the queue row's next state,
// quarantining transient failures past the attempt budget.
func (w *Worker) finalState(item *model.QueueItem, oc outcome) string {
	switch oc {
	case outcomeSuccess:
		return model.StateSucceeded
	case outcomePermanent:
		return model.StateFailedPermanent
	case outcomeAuth:
		// Not the row's fault; it stays retryable for the next run.
		return model.StatePending
	default:
		if item.AttemptCount >= w.config.MaxAttempts {
			return model.StateFailedPermanent
		}
		return model.StatePending
	}
}

// sendItem transmits one leased row, resolving a needs-prerequisite reply
// inline with a single retry.
func (w *Worker) sendItem(ctx context.Context, cfg *model.ExportConfig, item *model.QueueItem, sentObservatories map[string]bool) (outcome, string) {
	res, err := w.transmit(ctx, cfg, item, sentObservatories)
	oc, reason := classifyResult(res, err)
	if oc != outcomeSuccess || res == nil || res.resp == nil {
		return oc, reason
	}

	if res.resp.State == model.DispositionNeedsPrerequisite {
		if err := w.sendPrerequisite(ctx, cfg, res.resp.EntityID); err != nil {
			return outcomeTransient, fmt.Sprintf("prerequisite %q: %v", res.resp.EntityID, err)
		}

		res, err = w.transmit(ctx, cfg, item, sentObservatories)
		oc, reason = classifyResult(res, err)
		if oc != outcomeSuccess || res == nil || res.resp == nil {
			return oc, reason
		}
		if res.resp.State == model.DispositionNeedsPrerequisite {
			// Still missing after we sent it: requeue and let the next
			// lease try again.
			return outcomeTransient, fmt.Sprintf("prerequisite %q still missing", res.resp.EntityID)
		}
	}

	switch res.resp.State {
	case model.DispositionOK, model.DispositionAlreadyPresent:
		return outcomeSuccess, res.resp.State
	default:
		// Unknown dispositions are opaque permanent failures.
		return outcomePermanent, fmt.Sprintf("unknown disposition %q", res.resp.State)
	}
}

// transmit assembles and posts the payload for one leased row.
func (w *Worker) transmit(ctx context.Context, cfg *model.ExportConfig, item *model.QueueItem, sentObservatories map[string]bool) (*sendResult, error) {
	switch item.ExportType {
	case model.ExportTypeMetadata:
		m, err := w.exportDB.GetMetadataByUID(ctx, item.EntityUID)
		if err != nil {
			return nil, err
		}
		if res, err := w.ensureObservatory(ctx, cfg, m.ObservatoryID, sentObservatories); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}
		return w.client.postJSON(ctx, cfg.TargetURL, wire.MetadataEndpoint,
			cfg.Username, cfg.Password, metadataPayload(m))

	case model.ExportTypeObservation:
		obs, err := w.exportDB.GetObservationByUID(ctx, item.EntityUID)
		if err != nil {
			return nil, err
		}
		if res, err := w.ensureObservatory(ctx, cfg, obs.ObservatoryID, sentObservatories); err != nil {
			return nil, err
		} else if res != nil {
			return res, nil
		}
		groups, err := w.archiveDB.GroupMembershipsFor(ctx, obs.PublicID)
		if err != nil {
			return nil, err
		}
		return w.client.postJSON(ctx, cfg.TargetURL, wire.ObservationEndpoint,
			cfg.Username, cfg.Password, observationPayload(obs, groups))

	case model.ExportTypeFile:
		fr, err := w.exportDB.GetFileByUID(ctx, item.EntityUID)
		if err != nil {
			return nil, err
		}
		blob, _, err := w.env.ContentStore().Open(fr.RepositoryFname)
		if err != nil {
			// Missing blob for a cataloged file: a validation failure the
			// integrity scan must hear about.
			logging.FromContext(ctx).Errorw("blob missing for cataloged file",
				"file", fr.RepositoryFname, "error", err)
			return &sendResult{status: 400}, nil
		}
		defer blob.Close()
		return w.client.postFile(ctx, cfg.TargetURL, cfg.Username, cfg.Password,
			filePayload(fr), blob)

	default:
		return nil, fmt.Errorf("unknown export type %q", item.ExportType)
	}
}

// ensureObservatory proactively registers an observatory on the remote
// before the first payload of this run that references it. A non-2xx reply
// is returned as a sendResult so the caller classifies the status itself;
// auth rejections in particular must not look transient.
func (w *Worker) ensureObservatory(ctx context.Context, cfg *model.ExportConfig, observatoryID string, sent map[string]bool) (*sendResult, error) {
	key := cfg.ConfigID + "/" + observatoryID
	if sent[key] {
		return nil, nil
	}

	obs, err := w.archiveDB.GetObservatory(ctx, observatoryID)
	if err != nil {
		return nil, fmt.Errorf("loading observatory %q: %w", observatoryID, err)
	}

	res, err := w.client.postJSON(ctx, cfg.TargetURL, wire.ObservatoryEndpoint,
		cfg.Username, cfg.Password, observatoryPayload(obs))
	if err != nil {
		return nil, err
	}
	if res.resp == nil {
		return res, nil
	}
	switch res.resp.State {
	case model.DispositionOK, model.DispositionAlreadyPresent:
		sent[key] = true
		return nil, nil
	default:
		return nil, fmt.Errorf("registering observatory %q: disposition %q", observatoryID, res.resp.State)
	}
}

// sendPrerequisite transmits the entity a needs-prerequisite reply named:
// an observation if the id resolves to one, otherwise an observatory.
func (w *Worker) sendPrerequisite(ctx context.Context, cfg *model.ExportConfig, entityID string) error {
	if entityID == "" {
		return fmt.Errorf("needs-prerequisite reply named no entity")
	}

	if obs, err := w.archiveDB.GetObservation(ctx, entityID); err == nil {
		groups, err := w.archiveDB.GroupMembershipsFor(ctx, obs.PublicID)
		if err != nil {
			return err
		}
		res, err := w.client.postJSON(ctx, cfg.TargetURL, wire.ObservationEndpoint,
			cfg.Username, cfg.Password, observationPayload(obs, groups))
		if err != nil {
			return err
		}
		if res.resp == nil {
			return fmt.Errorf("sending prerequisite observation %q: status %d", entityID, res.status)
		}
		return nil
	} else if !database.IsNotFound(err) {
		return err
	}

	if obstory, err := w.archiveDB.GetObservatory(ctx, entityID); err == nil {
		res, err := w.client.postJSON(ctx, cfg.TargetURL, wire.ObservatoryEndpoint,
			cfg.Username, cfg.Password, observatoryPayload(obstory))
		if err != nil {
			return err
		}
		if res.resp == nil {
			return fmt.Errorf("sending prerequisite observatory %q: status %d", entityID, res.status)
		}
		return nil
	} else if !database.IsNotFound(err) {
		return err
	}

	return fmt.Errorf("prerequisite %q not found in local archive", entityID)
}

// classifyResult maps an HTTP exchange to an attempt outcome.
func classifyResult(res *sendResult, err error) (outcome, string) {
	switch {
	case err != nil:
		return outcomeTransient, err.Error()
	case res.status == 401 || res.status == 403:
		return outcomeAuth, fmt.Sprintf("status %d", res.status)
	case res.status >= 400 && res.status < 500:
		return outcomePermanent, fmt.Sprintf("status %d", res.status)
	case res.status >= 500:
		return outcomeTransient, fmt.Sprintf("status %d", res.status)
	default:
		return outcomeSuccess, ""
	}
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
