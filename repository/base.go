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
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
)

type baseRepositoryImpl[T any, PT types.EntityPtr[T]] struct {
	session *database.Session
}

// NewRepository returns a repository for T bound to session. It fails with
// ErrMissingSession when session is nil.
//
//	repo, err := repository.NewRepository[Customer](session)
func NewRepository[T any, PT types.EntityPtr[T]](session *database.Session) (Repository[T], error) {
	if session == nil {
		return nil, newError("NewRepository", ErrMissingSession)
	}
	return &baseRepositoryImpl[T, PT]{session: session}, nil
}

func (r *baseRepositoryImpl[T, PT]) NewSelect() *bun.SelectQuery {
	return r.session.DB().NewSelect().Model((*T)(nil))
}

func (r *baseRepositoryImpl[T, PT]) Count(ctx context.Context, filter *types.QueryFilter, _ bool) Result[T] {
	query := r.session.DB().NewSelect().Model((*T)(nil))
	query = applyFilter(query, filter)
	n, err := query.Count(ctx)
	if err != nil {
		return FailedResult[T](newError("Count", err))
	}
	return CountResult[T](int64(n))
}

func (r *baseRepositoryImpl[T, PT]) Create(ctx context.Context, entity *T) Result[T] {
	if entity == nil {
		return FailedResult[T](newError("Create", database.ErrNilEntity))
	}
	e := PT(entity)
	if err := r.session.Add(e); err != nil {
		return FailedResult[T](newError("Create", err))
	}
	if _, err := r.session.SaveChanges(ctx); err != nil {
		r.session.Detach(e)
		return FailedResult[T](newError("Create", err))
	}
	return EntityResult(entity)
}

func (r *baseRepositoryImpl[T, PT]) Find(ctx context.Context, filter *types.QueryFilter) Result[T] {
	entity := new(T)
	query := r.session.DB().NewSelect().Model(entity)
	query = applyFilter(query, filter)
	if err := query.Limit(1).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return EntityResult[T](nil)
		}
		return FailedResult[T](newError("Find", err))
	}
	return EntityResult(r.attach(entity))
}

func (r *baseRepositoryImpl[T, PT]) List(ctx context.Context, req *types.ListRequest) Result[T] {
	return r.list(ctx, "List", req)
}

func (r *baseRepositoryImpl[T, PT]) ListAll(ctx context.Context) Result[T] {
	return r.list(ctx, "ListAll", nil)
}

func (r *baseRepositoryImpl[T, PT]) list(ctx context.Context, op string, req *types.ListRequest) Result[T] {
	if req == nil {
		req = types.NewFilteredListRequest(nil, false)
	}

	page, pageSize, paged := req.GetPage()
	if paged {
		if page < 0 || pageSize < 0 {
			err := fmt.Errorf("%w: page=%d pageSize=%d", ErrInvalidPage, page, pageSize)
			return FailedResult[T](newError(op, err))
		}
		// Limit(0) means no limit to bun.
		if pageSize == 0 {
			return EntitiesResult[T](nil)
		}
	}

	var entities []*T
	query := r.session.DB().NewSelect().Model(&entities)
	query = applyFilter(query, req.GetFilter())
	for _, rel := range req.GetRelations() {
		query = query.Relation(rel)
	}
	query = applyOrders(query, req.GetOrders())
	if paged {
		query = query.Offset(types.PageOffset(page, pageSize)).Limit(pageSize)
	}
	if err := query.Scan(ctx); err != nil {
		return FailedResult[T](newError(op, err))
	}

	if !req.NoTracking() {
		for i, e := range entities {
			entities[i] = r.attach(e)
		}
	}
	return EntitiesResult(entities)
}

func (r *baseRepositoryImpl[T, PT]) Update(ctx context.Context, entity *T) Result[T] {
	if entity == nil {
		return FailedResult[T](newError("Update", database.ErrNilEntity))
	}
	if err := r.session.Update(PT(entity)); err != nil {
		return FailedResult[T](newError("Update", err))
	}
	if _, err := r.session.SaveChanges(ctx); err != nil {
		return FailedResult[T](newError("Update", err))
	}
	return EntityResult(entity)
}

func (r *baseRepositoryImpl[T, PT]) SaveChanges(ctx context.Context) Result[T] {
	n, err := r.session.SaveChanges(ctx)
	if err != nil {
		return FailedResult[T](newError("SaveChanges", err))
	}
	return CountResult[T](n)
}

// attach tracks entity together with the related entities loaded into it
// and returns the session's instance for entity's key.
func (r *baseRepositoryImpl[T, PT]) attach(entity *T) *T {
	tracked, ok := r.session.AttachGraph(PT(entity)).(PT)
	if !ok {
		return entity
	}
	return (*T)(tracked)
}

func applyFilter(query *bun.SelectQuery, filter *types.QueryFilter) *bun.SelectQuery {
	if filter == nil || filter.Schema == "" {
		return query
	}
	return query.Where(filter.Schema, filter.Args...)
}

// applyOrders accepts plain "column [ASC|DESC]" items as well as expressions
// with bun placeholders such as "?TableAlias.name DESC".
func applyOrders(query *bun.SelectQuery, orders []string) *bun.SelectQuery {
	for _, order := range orders {
		order = strings.TrimSpace(order)
		if order == "" {
			continue
		}
		if strings.Contains(order, "?") {
			query = query.OrderExpr(order)
		} else {
			query = query.Order(order)
		}
	}
	return query
}
