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

// Package render handles response rendering for HTTP services.
package render

import (
	"bytes"
	"sync"
)

// Renderer renders JSON responses through a shared buffer pool.
type Renderer struct {
	debug bool
	pool  *sync.Pool
}

// New creates a new renderer. When debug is true, rendering errors include
// the underlying error text in the response payload.
func New(debug bool) *Renderer {
	return &Renderer{
		debug: debug,
		pool: &sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 1024))
			},
		},
	}
}
