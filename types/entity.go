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

package types

import "github.com/google/uuid"

// Column names shared by every entity.
const (
	IDColumn        = "id"
	TimeStampColumn = "time_stamp"
)

// EntityBase is the signature of all persisted entities. Embed it by value:
//
//	type Customer struct {
//		bun.BaseModel `bun:"table:customers,alias:c"`
//		types.EntityBase
//		Name string `bun:"name,notnull"`
//	}
type EntityBase struct {
	// ID is assigned by the session on insert when it is still uuid.Nil.
	ID uuid.UUID `bun:"id,pk,type:varchar(36)" json:"id"`

	// TimeStamp is the optimistic-concurrency token, rewritten on every insert and update.
	TimeStamp []byte `bun:"time_stamp" json:"time_stamp,omitempty"`
}

func (e *EntityBase) GetID() uuid.UUID { return e.ID }

func (e *EntityBase) SetID(id uuid.UUID) { e.ID = id }

func (e *EntityBase) GetTimeStamp() []byte { return e.TimeStamp }

func (e *EntityBase) SetTimeStamp(ts []byte) { e.TimeStamp = ts }

// Entity is the structural contract the session and repositories rely on.
type Entity interface {
	GetID() uuid.UUID
	SetID(id uuid.UUID)
	GetTimeStamp() []byte
	SetTimeStamp(ts []byte)
}

// EntityPtr constrains PT to *T implementing Entity, so generic code can take T
// while still reaching the EntityBase methods through the pointer.
type EntityPtr[T any] interface {
	*T
	Entity
}

// FilterByID matches the entity with the given identifier.
func FilterByID(id uuid.UUID) *QueryFilter {
	return NewQueryFilter("?TableAlias.id = ?", id)
}
