/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"errors"
	"fmt"

	"github.com/tomoncle/bunrepo/database"
)

var (
	ErrMissingSession = errors.New("repository: database session is required")
	ErrInvalidPage    = errors.New("repository: page and page size must not be negative")
)

// Error is returned in a Result when the underlying session or query fails.
// Message keeps the original failure text and Err the cause itself.
type Error struct {
	Op      string
	Message string
	Err     error
	Kind    database.SQLError
}

func newError(op string, err error) *Error {
	return &Error{
		Op:      op,
		Message: err.Error(),
		Err:     err,
		Kind:    database.ClassifySQLError(err),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("repository %s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsConcurrencyConflict reports whether err was caused by a stale
// concurrency token.
func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, database.ErrConcurrencyConflict)
}
