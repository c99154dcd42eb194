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
	"database/sql"
	"errors"
	"os"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var bunSqlSilentMode atomic.Bool

// EnableBunSqlSilent mutes QueryLogHook process wide.
func EnableBunSqlSilent(b bool) {
	bunSqlSilentMode.Store(b)
}

var (
	selectColor = color.New(color.FgGreen).SprintFunc()
	insertColor = color.New(color.FgBlue).SprintFunc()
	updateColor = color.New(color.FgYellow).SprintFunc()
	deleteColor = color.New(color.FgMagenta).SprintFunc()
	otherColor  = color.New(color.FgRed).SprintFunc()
	slowColor   = color.New(color.BgYellow, color.FgHiWhite).SprintFunc()
)

// QueryLogHook reports failed and slow queries through the database logger.
// With verbose set (or BUNREPO_QUERY_LOG=2) every query is logged at debug.
type QueryLogHook struct {
	logger   Logger
	slowTime time.Duration
	verbose  bool
	envName  string
}

var _ bun.QueryHook = (*QueryLogHook)(nil)

func NewQueryLogHook(logger Logger, slowTime time.Duration) *QueryLogHook {
	if logger == nil {
		logger = GetLogger()
	}
	return &QueryLogHook{
		logger:   logger,
		slowTime: slowTime,
		envName:  "BUNREPO_QUERY_LOG",
	}
}

// Verbose turns on debug logging of every query.
func (h *QueryLogHook) Verbose(v bool) *QueryLogHook {
	h.verbose = v
	return h
}

func (h *QueryLogHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryLogHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if bunSqlSilentMode.Load() {
		return
	}
	verbose := h.verbose
	if env, ok := os.LookupEnv(h.envName); ok {
		verbose = env == "2"
	}

	dur := time.Since(event.StartTime)
	op := event.Operation()

	switch {
	case event.Err != nil && !errors.Is(event.Err, sql.ErrNoRows) && !errors.Is(event.Err, sql.ErrTxDone):
		h.logger.Error("Query failed",
			"operation", op,
			"duration", dur.Round(time.Microsecond),
			"kind", ClassifySQLError(event.Err),
			"error", event.Err,
			"query", colorizeQuery(op, event.Query),
		)
	case h.slowTime > 0 && dur > h.slowTime:
		h.logger.Warn("Slow query",
			"operation", op,
			"duration", dur.Round(time.Microsecond),
			"threshold", h.slowTime,
			"query", slowColor(event.Query),
		)
	case verbose:
		h.logger.Debug("Query",
			"operation", op,
			"duration", dur.Round(time.Microsecond),
			"query", colorizeQuery(op, event.Query),
		)
	}
}

func colorizeQuery(operation, query string) string {
	switch operation {
	case "SELECT":
		return selectColor(query)
	case "INSERT":
		return insertColor(query)
	case "UPDATE":
		return updateColor(query)
	case "DELETE":
		return deleteColor(query)
	default:
		return otherColor(query)
	}
}
