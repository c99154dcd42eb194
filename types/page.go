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

// QueryFilter describes a WHERE clause schema and its argument values.
// Schema uses bun placeholders, e.g. "?TableAlias.name = ?".
type QueryFilter struct {
	Schema string
	Args   []interface{}
}

// NewQueryFilter creates a new query filter with schema and args.
func NewQueryFilter(schema string, args ...interface{}) *QueryFilter {
	return &QueryFilter{schema, args}
}

// PageOffset returns the number of rows to skip for a 1-based page.
// Page 0 is treated as the first page.
func PageOffset(page, pageSize int) int {
	if page == 0 {
		return 0
	}
	return (page - 1) * pageSize
}

// ListRequest carries the optional parts of a list query. A nil *ListRequest
// lists every row with change tracking enabled.
type ListRequest struct {
	filter     *QueryFilter
	orders     []string // "?TableAlias.name ASC", "age DESC"
	relations  []string
	noTracking bool
	paged      bool
	page       int
	pageSize   int
}

// NewListRequest builds a request with filter, ordering and related entities.
func NewListRequest(filter *QueryFilter, orders []string, relations []string, noTracking bool) *ListRequest {
	return &ListRequest{filter: filter, orders: orders, relations: relations, noTracking: noTracking}
}

// NewOrderedListRequest builds a request without related entities.
func NewOrderedListRequest(filter *QueryFilter, orders []string, noTracking bool) *ListRequest {
	return NewListRequest(filter, orders, nil, noTracking)
}

// NewFilteredListRequest builds a request without ordering or related entities.
func NewFilteredListRequest(filter *QueryFilter, noTracking bool) *ListRequest {
	return NewListRequest(filter, nil, nil, noTracking)
}

// Paged sets page (1-based) and pageSize together and returns the request.
func (r *ListRequest) Paged(page, pageSize int) *ListRequest {
	r.paged = true
	r.page = page
	r.pageSize = pageSize
	return r
}

func (r *ListRequest) GetFilter() *QueryFilter { return r.filter }

func (r *ListRequest) GetOrders() []string { return r.orders }

func (r *ListRequest) GetRelations() []string { return r.relations }

func (r *ListRequest) NoTracking() bool { return r.noTracking }

// GetPage reports the page, the page size and whether pagination applies.
func (r *ListRequest) GetPage() (page, pageSize int, ok bool) {
	return r.page, r.pageSize, r.paged
}

// PageRequest describes pagination, optional filter, and ordering.
type PageRequest struct {
	page     int
	pageSize int
	filter   *QueryFilter
	orders   []string
}

func (p *PageRequest) GetPageSize() int {
	if p.pageSize < 1 {
		p.pageSize = 10
	}
	return p.pageSize
}

func (p *PageRequest) GetPage() int {
	if p.page < 1 {
		p.page = 1
	}
	return p.page
}

func (p *PageRequest) GetOffset() int {
	return PageOffset(p.GetPage(), p.GetPageSize())
}

func (p *PageRequest) GetFilter() *QueryFilter {
	return p.filter
}

func (p *PageRequest) GetOrders() []string {
	return p.orders
}

// ListRequest converts the page request into a paged, tracked list request.
func (p *PageRequest) ListRequest() *ListRequest {
	return NewOrderedListRequest(p.filter, p.orders, false).Paged(p.GetPage(), p.GetPageSize())
}

// NewPageRequest constructs a PageRequest with filter and order settings.
func NewPageRequest(page int, pageSize int, filter *QueryFilter, orders []string) *PageRequest {
	return &PageRequest{page, pageSize, filter, orders}
}

// NewPageRequestWithFilter constructs a PageRequest with a filter only.
func NewPageRequestWithFilter(page int, pageSize int, filter *QueryFilter) *PageRequest {
	return NewPageRequest(page, pageSize, filter, nil)
}

// NewPageRequestWithOrders constructs a PageRequest with ordering only.
func NewPageRequestWithOrders(page int, pageSize int, orders []string) *PageRequest {
	return NewPageRequest(page, pageSize, nil, orders)
}

// Pagination holds paged result items along with pagination metadata.
type Pagination[T any] struct {
	Page     int
	PageSize int
	Total    int64
	Items    []*T
}

// NewDefaultPagination constructs an empty pagination container.
func NewDefaultPagination[T any](page int, pageSize int) *Pagination[T] {
	return &Pagination[T]{page, pageSize, 0, make([]*T, 0)}
}
