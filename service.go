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

package bunrepo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/tomoncle/bunrepo/repository"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
)

// Service exposes a repository with plain (value, error) returns.
type Service[T any] interface {
	// Get returns the entity with the given identifier, or an error wrapping
	// sql.ErrNoRows.
	Get(ctx context.Context, id uuid.UUID) (*T, error)

	// All returns all entities.
	All(ctx context.Context) ([]*T, error)

	List(ctx context.Context, req *types.ListRequest) ([]*T, error)

	// Page counts the matching rows and returns the requested page of them.
	Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error)

	Count(ctx context.Context, filter *types.QueryFilter) (int64, error)

	// Save inserts a new entity.
	Save(ctx context.Context, model *T) (*T, error)

	// Update writes every column of an existing entity.
	Update(ctx context.Context, model *T) (*T, error)

	// SaveChanges flushes in-place modifications of entities read through the
	// same scope.
	SaveChanges(ctx context.Context) (int64, error)

	// SelectBuilder returns a Bun select query builder for the entity.
	SelectBuilder() *bun.SelectQuery
}

type baseServiceImpl[T any] struct {
	repo repository.Repository[T]
}

// NewService returns a Service over the scope's repository for T.
func NewService[T any, PT types.EntityPtr[T]](scope *Scope) (Service[T], error) {
	repo, err := Resolve[T, PT](scope)
	if err != nil {
		return nil, err
	}
	return &baseServiceImpl[T]{repo: repo}, nil
}

func (s *baseServiceImpl[T]) Get(ctx context.Context, id uuid.UUID) (*T, error) {
	entity, err := s.repo.Find(ctx, types.FilterByID(id)).EntityOrErr()
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, fmt.Errorf("%w: id %s", sql.ErrNoRows, id)
	}
	return entity, nil
}

func (s *baseServiceImpl[T]) All(ctx context.Context) ([]*T, error) {
	return s.repo.ListAll(ctx).EntitiesOrErr()
}

func (s *baseServiceImpl[T]) List(ctx context.Context, req *types.ListRequest) ([]*T, error) {
	return s.repo.List(ctx, req).EntitiesOrErr()
}

func (s *baseServiceImpl[T]) Page(ctx context.Context, page *types.PageRequest) (*types.Pagination[T], error) {
	if page == nil {
		page = types.NewPageRequest(1, 10, nil, nil)
	}
	pagination := types.NewDefaultPagination[T](page.GetPage(), page.GetPageSize())
	total, err := s.repo.Count(ctx, page.GetFilter(), true).CountOrErr()
	if err != nil || total == 0 {
		return pagination, err
	}
	items, err := s.repo.List(ctx, page.ListRequest()).EntitiesOrErr()
	if err != nil {
		return nil, err
	}
	pagination.Total = total
	pagination.Items = items
	return pagination, nil
}

func (s *baseServiceImpl[T]) Count(ctx context.Context, filter *types.QueryFilter) (int64, error) {
	return s.repo.Count(ctx, filter, true).CountOrErr()
}

func (s *baseServiceImpl[T]) Save(ctx context.Context, model *T) (*T, error) {
	return s.repo.Create(ctx, model).EntityOrErr()
}

func (s *baseServiceImpl[T]) Update(ctx context.Context, model *T) (*T, error) {
	return s.repo.Update(ctx, model).EntityOrErr()
}

func (s *baseServiceImpl[T]) SaveChanges(ctx context.Context) (int64, error) {
	return s.repo.SaveChanges(ctx).CountOrErr()
}

func (s *baseServiceImpl[T]) SelectBuilder() *bun.SelectQuery {
	return s.repo.NewSelect()
}
