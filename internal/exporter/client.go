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
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dcf21/pi-gazing-sub002/internal/wire"
)

// client posts export payloads to a receiving archive. Control requests and
// file bodies get separate timeout budgets.
type client struct {
	control *http.Client
	file    *http.Client
}

func newClient(controlTimeout, fileTimeout time.Duration) *client {
	return &client{
		control: &http.Client{Timeout: controlTimeout},
		file:    &http.Client{Timeout: fileTimeout},
	}
}

// sendResult is one classified HTTP exchange. Resp is set only for a 2xx
// status with a parseable body.
type sendResult struct {
	status int
	resp   *wire.Response
}

func endpointURL(targetURL, endpoint string) string {
	return strings.TrimSuffix(targetURL, "/") + endpoint
}

// postJSON sends a JSON control payload with basic auth. A transport-level
// failure returns an error; an HTTP response of any status returns a
// sendResult.
func (c *client) postJSON(ctx context.Context, targetURL, endpoint, username, password string, payload interface{}) (*sendResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(targetURL, endpoint), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(username, password)

	resp, err := c.control.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	return classify(resp)
}

// postFile sends a multipart file request: the header JSON in one field,
// the blob streamed in another. The blob is never buffered in full.
func (c *client) postFile(ctx context.Context, targetURL, username, password string, header *wire.FilePayload, blob io.Reader) (*sendResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := func() error {
			meta, err := mw.CreateFormField(wire.FileMetaField)
			if err != nil {
				return err
			}
			if err := json.NewEncoder(meta).Encode(header); err != nil {
				return err
			}

			body, err := mw.CreateFormFile(wire.FileBodyField, header.RepositoryFname)
			if err != nil {
				return err
			}
			if _, err := io.Copy(body, blob); err != nil {
				return err
			}
			return mw.Close()
		}()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL(targetURL, wire.FileEndpoint), pr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.SetBasicAuth(username, password)

	resp, err := c.file.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting file %q: %w", header.RepositoryFname, err)
	}
	defer resp.Body.Close()
	return classify(resp)
}

func classify(resp *http.Response) (*sendResult, error) {
	result := &sendResult{status: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return result, nil
	}

	var wr wire.Response
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	result.resp = &wr
	return result, nil
}
