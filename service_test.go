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

package bunrepo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo"
	"github.com/tomoncle/bunrepo/types"
)

func newProductService(t *testing.T, provider *bunrepo.Provider) bunrepo.Service[Product] {
	t.Helper()
	scope, err := provider.NewScope(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = scope.Close() })
	svc, err := bunrepo.NewService[Product](scope)
	require.NoError(t, err)
	return svc
}

func TestServiceCrud(t *testing.T) {
	ctx := context.Background()
	provider, err := bunrepo.NewProviderFromDB(newTestDB(t))
	require.NoError(t, err)
	svc := newProductService(t, provider)

	saved, err := svc.Save(ctx, &Product{Name: "tea", Price: 3})
	require.NoError(t, err)
	_, err = svc.Save(ctx, &Product{Name: "coffee", Price: 5})
	require.NoError(t, err)

	got, err := svc.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Same(t, saved, got)

	all, err := svc.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	n, err := svc.Count(ctx, types.NewQueryFilter("?TableAlias.price > ?", 4))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	saved.Price = 4
	_, err = svc.Update(ctx, saved)
	require.NoError(t, err)

	other := newProductService(t, provider)
	reread, err := other.Get(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, reread.Price)

	reread.Name = "green tea"
	affected, err := other.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	cheap, err := newProductService(t, provider).List(ctx,
		types.NewFilteredListRequest(types.NewQueryFilter("?TableAlias.name = ?", "green tea"), true))
	require.NoError(t, err)
	require.Len(t, cheap, 1)
	assert.Equal(t, saved.ID, cheap[0].ID)

	var count int
	count, err = svc.SelectBuilder().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestServicePage(t *testing.T) {
	ctx := context.Background()
	provider, err := bunrepo.NewProviderFromDB(newTestDB(t))
	require.NoError(t, err)
	svc := newProductService(t, provider)

	for i, name := range []string{"a", "b", "c", "d", "e"} {
		_, err := svc.Save(ctx, &Product{Name: name, Price: i})
		require.NoError(t, err)
	}

	page, err := svc.Page(ctx, types.NewPageRequestWithOrders(2, 2, []string{"price ASC"}))
	require.NoError(t, err)
	assert.Equal(t, int64(5), page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "c", page.Items[0].Name)
	assert.Equal(t, "d", page.Items[1].Name)

	empty, err := svc.Page(ctx, types.NewPageRequestWithFilter(1, 10, types.NewQueryFilter("?TableAlias.price > ?", 100)))
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Empty(t, empty.Items)

	defaults, err := svc.Page(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, defaults.Page)
	assert.Len(t, defaults.Items, 5)
}
