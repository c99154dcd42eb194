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

// PayloadKind tells which payload a Result carries.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadEntity
	PayloadEntities
	PayloadCount
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadEntity:
		return "entity"
	case PayloadEntities:
		return "entities"
	case PayloadCount:
		return "count"
	default:
		return "none"
	}
}

// Result is the envelope returned by every repository operation. It carries
// either one payload or an error; a failed Result always has PayloadNone.
type Result[T any] struct {
	kind     PayloadKind
	entity   *T
	entities []*T
	count    int64
	err      error
}

// EntityResult wraps a single entity. A nil entity means nothing matched.
func EntityResult[T any](entity *T) Result[T] {
	return Result[T]{kind: PayloadEntity, entity: entity}
}

func EntitiesResult[T any](entities []*T) Result[T] {
	if entities == nil {
		entities = make([]*T, 0)
	}
	return Result[T]{kind: PayloadEntities, entities: entities}
}

func CountResult[T any](n int64) Result[T] {
	return Result[T]{kind: PayloadCount, count: n}
}

func FailedResult[T any](err error) Result[T] {
	return Result[T]{kind: PayloadNone, err: err}
}

func (r Result[T]) Kind() PayloadKind { return r.kind }

func (r Result[T]) Entity() *T { return r.entity }

func (r Result[T]) Entities() []*T { return r.entities }

func (r Result[T]) Count() int64 { return r.count }

// Err returns the *Error of a failed operation, or nil.
func (r Result[T]) Err() error { return r.err }

func (r Result[T]) Failed() bool { return r.err != nil }

// Unwrap helpers for callers that prefer Go's (value, error) shape.

func (r Result[T]) EntityOrErr() (*T, error) { return r.entity, r.err }

func (r Result[T]) EntitiesOrErr() ([]*T, error) { return r.entities, r.err }

func (r Result[T]) CountOrErr() (int64, error) { return r.count, r.err }
