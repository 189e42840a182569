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

package middleware

import (
	"context"
	"net/http"

	"github.com/dcf21/pi-gazing-sub002/pkg/logging"

	"github.com/gorilla/mux"
)

// contextKeyUser is the unique key in the context where the authenticated
// user id is stored.
const contextKeyUser = contextKey("user")

// UserAuthenticator verifies a user's credentials and returns the roles the
// user holds. Implementations must return an error for unknown users and for
// bad passwords without distinguishing the two.
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, userID, password string) ([]string, error)
}

// RequireBasicAuth enforces HTTP basic authentication and requires the
// authenticated user to hold the named role.
func RequireBasicAuth(auth UserAuthenticator, role string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			logger := logging.FromContext(ctx).Named("middleware.RequireBasicAuth")

			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			roles, err := auth.AuthenticateUser(ctx, username, password)
			if err != nil {
				logger.Warnw("failed authentication attempt", "user", username)
				w.Header().Set("WWW-Authenticate", `Basic realm="restricted"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			if !hasRole(roles, role) {
				logger.Warnw("user lacks required role", "user", username, "role", role)
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}

			ctx = withUser(ctx, username)
			r = r.Clone(ctx)

			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext pulls the authenticated user id from the context, if one
// was set. If one was not set, it returns the empty string.
func UserFromContext(ctx context.Context) string {
	v := ctx.Value(contextKeyUser)
	if v == nil {
		return ""
	}

	t, ok := v.(string)
	if !ok {
		return ""
	}
	return t
}

func withUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUser, userID)
}

func hasRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
