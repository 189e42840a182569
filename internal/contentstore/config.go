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

package contentstore

// Config holds the content store settings.
type Config struct {
	// Root is the directory holding the blobs, one file per repository
	// filename.
	Root string `env:"FILESTORE_ROOT, default=/var/lib/pigazing/db_filestore"`
}

// ContentStoreConfig satisfies the setup provider interface.
func (c *Config) ContentStoreConfig() *Config {
	return c
}
