// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package apierr encodes the error taxonomy of the trace pipeline as an
// explicit tagged error type, rather than relying on exceptions.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of error categories the pipeline surfaces.
type Kind string

const (
	// KindNotFound means a referenced entity id does not exist.
	KindNotFound Kind = "not_found"
	// KindBadRequest means the client-supplied payload was invalid.
	KindBadRequest Kind = "bad_request"
	// KindConflict means a uniqueness constraint was violated.
	KindConflict Kind = "conflict"
	// KindInternal means an unexpected failure occurred.
	KindInternal Kind = "internal"
)

// HTTPStatus returns the conventional HTTP status code for a Kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return 404
	case KindBadRequest, KindConflict:
		return 400
	default:
		return 500
	}
}

// Error is a tagged error carrying a Kind, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to traverse into Cause.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs a tagged Error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs a tagged Error that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound is a convenience constructor for KindNotFound.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

// BadRequest is a convenience constructor for KindBadRequest.
func BadRequest(format string, args ...any) *Error {
	return New(KindBadRequest, fmt.Sprintf(format, args...))
}

// Conflict is a convenience constructor for KindConflict.
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, fmt.Sprintf(format, args...))
}

// Internal is a convenience constructor for KindInternal.
func Internal(format string, args ...any) *Error {
	return New(KindInternal, fmt.Sprintf(format, args...))
}

// As extracts an *Error from err, mirroring ratelimit.IsRateLimitError.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors used by the parser layer (§4.A), matched against with
// errors.Is by callers that only care about the category.
var (
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMalformedRequest    = errors.New("malformed request")
)
