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

package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/internal/archive/model"
	"github.com/dcf21/pi-gazing-sub002/internal/wire"
	"github.com/dcf21/pi-gazing-sub002/pkg/database"
	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"go.opencensus.io/stats"
)

// maxHeaderBytes bounds the meta part of a file upload.
const maxHeaderBytes = 1 << 20

// handleFile commits one file record with its blob. The multipart body
// carries the header JSON in the meta field followed by the binary content,
// which is streamed to the content store without full buffering. Size and
// MD5 are verified against the header before anything is cataloged.
func (s *Server) handleFile() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx).Named("handleFile")

		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxFileBytes)
		mr, err := r.MultipartReader()
		if err != nil {
			s.reject(ctx, w, http.StatusBadRequest, err)
			return
		}

		// The meta field must precede the file field so prerequisites and
		// identity can be checked before the body is consumed.
		part, err := mr.NextPart()
		if err != nil || part.FormName() != wire.FileMetaField {
			s.reject(ctx, w, http.StatusBadRequest,
				fmt.Errorf("first multipart field must be %q", wire.FileMetaField))
			return
		}
		var payload wire.FilePayload
		if err := json.NewDecoder(io.LimitReader(part, maxHeaderBytes)).Decode(&payload); err != nil {
			s.reject(ctx, w, http.StatusBadRequest, err)
			return
		}
		if payload.RepositoryFname == "" || payload.ObservationID == "" {
			s.reject(ctx, w, http.StatusBadRequest,
				fmt.Errorf("repositoryFname and observationId are required"))
			return
		}

		if _, err := s.archiveDB.GetObservation(ctx, payload.ObservationID); err != nil {
			if database.IsNotFound(err) {
				s.respond(ctx, w, wireStateNeedsPrerequisite, payload.ObservationID)
				return
			}
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		part, err = mr.NextPart()
		if err != nil || part.FormName() != wire.FileBodyField {
			s.reject(ctx, w, http.StatusBadRequest,
				fmt.Errorf("multipart field %q is required", wire.FileBodyField))
			return
		}

		staged, err := s.env.ContentStore().Stage(ctx, part)
		if err != nil {
			logger.Errorw("staging file failed", "file", payload.RepositoryFname, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		if staged.Size != payload.FileSize || staged.MD5Hex != payload.MD5Hex {
			staged.Abort()
			s.reject(ctx, w, http.StatusBadRequest,
				fmt.Errorf("content mismatch: got %d bytes md5 %s, header says %d bytes md5 %s",
					staged.Size, staged.MD5Hex, payload.FileSize, payload.MD5Hex))
			return
		}

		fr := &model.FileRecord{
			RepositoryFname: payload.RepositoryFname,
			ObservationID:   payload.ObservationID,
			MimeType:        payload.MimeType,
			SemanticType:    payload.SemanticType,
			FileTime:        payload.FileTime,
			FileSize:        payload.FileSize,
			MD5Hex:          payload.MD5Hex,
			Meta:            payload.Meta,
		}
		// RegisterFile discards the staged blob on failure.
		created, err := s.archiveDB.RegisterFile(ctx, fr, staged)
		if err != nil {
			if errors.Is(err, database.ErrKeyConflict) {
				s.reject(ctx, w, http.StatusConflict, err)
				return
			}
			logger.Errorw("registering file failed", "file", payload.RepositoryFname, "error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, err)
			return
		}

		state := wireStateAlreadyPresent
		if created {
			state = wireStateOK
			stats.Record(ctx, mFileBytes.M(fr.FileSize))
			logger.Infow("registered file", "file", payload.RepositoryFname, "bytes", fr.FileSize)
		}
		s.respond(ctx, w, state, "")
	})
}
