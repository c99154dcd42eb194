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

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func TestMetricsHookCountsQueries(t *testing.T) {
	reg := prometheus.NewRegistry()
	hook, err := NewMetricsHook(reg, "test")
	require.NoError(t, err)

	ctx := context.Background()
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 1", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{Query: "SELECT 2", StartTime: time.Now()})
	hook.AfterQuery(ctx, &bun.QueryEvent{
		Query:     "INSERT INTO widgets VALUES (1)",
		StartTime: time.Now(),
		Err:       errors.New("UNIQUE constraint failed: widgets.id"),
	})

	assert.Equal(t, float64(2), testutil.ToFloat64(hook.queriesTotal.WithLabelValues("SELECT", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(hook.queriesTotal.WithLabelValues("INSERT", "error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(hook.queryErrors.WithLabelValues("INSERT", "duplicate_key")))

	n, err := testutil.GatherAndCount(reg, "test_db_query_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetricsHookReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetricsHook(reg, "shared")
	require.NoError(t, err)
	second, err := NewMetricsHook(reg, "shared")
	require.NoError(t, err)

	second.AfterQuery(context.Background(), &bun.QueryEvent{Query: "DELETE FROM widgets", StartTime: time.Now()})
	assert.Equal(t, float64(1), testutil.ToFloat64(first.queriesTotal.WithLabelValues("DELETE", "ok")))
}
