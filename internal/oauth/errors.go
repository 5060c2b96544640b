// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package oauth

import (
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/mailfold/mailfold/internal/models"
)

// Error carries the provider-reported OAuth error code alongside the
// HTTP status of the token endpoint response. The code ("invalid_grant",
// "access_denied", ...) is what callers branch on.
type Error struct {
	Provider    models.Provider
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s token endpoint: %s: %s", e.Provider, e.Code, e.Description)
	}
	return fmt.Sprintf("%s token endpoint: %s", e.Provider, e.Code)
}

// IsInvalidGrant reports whether the provider rejected the grant itself
// (revoked or expired refresh token, reused authorization code). These
// are terminal: retrying the same grant can never succeed.
func IsInvalidGrant(err error) bool {
	var oe *Error
	return errors.As(err, &oe) && oe.Code == "invalid_grant"
}

// asOAuthError converts the x/oauth2 retrieve error into our typed form.
// Errors that are not token-endpoint rejections pass through unchanged.
func asOAuthError(provider models.Provider, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return err
	}
	return &Error{
		Provider:    provider,
		Code:        re.ErrorCode,
		Description: re.ErrorDescription,
		Status:      re.Response.StatusCode,
	}
}
