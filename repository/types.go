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
	"context"

	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
)

// Repository is the data access contract for entities of type T. Every
// operation returns exactly one Result; failures never escape as raw errors.
//
// A Repository shares its Session's unit of work and must not be used from
// several goroutines at once.
type Repository[T any] interface {
	// Count returns the number of rows matching filter, or all rows for a nil filter.
	Count(ctx context.Context, filter *types.QueryFilter, noTracking bool) Result[T]

	// Create inserts entity and saves immediately.
	Create(ctx context.Context, entity *T) Result[T]

	// Find returns the first entity matching filter. A nil Entity in a
	// successful Result means no row matched.
	Find(ctx context.Context, filter *types.QueryFilter) Result[T]

	// List returns the entities selected by req; a nil req lists every row.
	// Unless req asks for no tracking, the rows and the related entities
	// loaded for req's relations are attached to the session.
	List(ctx context.Context, req *types.ListRequest) Result[T]

	ListAll(ctx context.Context) Result[T]

	// Update marks entity as modified and saves immediately.
	Update(ctx context.Context, entity *T) Result[T]

	// SaveChanges flushes pending tracked changes and returns the affected row count.
	SaveChanges(ctx context.Context) Result[T]

	// NewSelect returns a select query on the entity's table for cases the
	// contract does not cover. Rows read through it are not tracked.
	NewSelect() *bun.SelectQuery
}
