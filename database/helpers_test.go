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
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type widget struct {
	bun.BaseModel `bun:"table:widgets,alias:w"`
	types.EntityBase

	Name  string           `bun:"name,notnull"`
	Qty   int              `bun:"qty"`
	Attrs types.JSONObject `bun:"attrs,type:text"`
}

func memoryDSN(t *testing.T) string {
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, t.Name())
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	sqldb, err := sql.Open(sqliteshim.ShimName, memoryDSN(t))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.NewCreateTable().Model((*widget)(nil)).IfNotExists().Exec(context.Background())
	require.NoError(t, err)
	return db
}

func loadWidget(t *testing.T, db *bun.DB, w *widget) *widget {
	t.Helper()
	got := new(widget)
	err := db.NewSelect().Model(got).Where("?TableAlias.id = ?", w.ID).Scan(context.Background())
	require.NoError(t, err)
	return got
}

type logEntry struct {
	level  LogLevel
	msg    string
	fields []interface{}
}

type captureLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *captureLogger) add(level LogLevel, msg string, fields []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) SetLevel(LogLevel) {}

func (l *captureLogger) Debug(msg string, fields ...interface{}) { l.add(LogLevelDebug, msg, fields) }

func (l *captureLogger) Info(msg string, fields ...interface{}) { l.add(LogLevelInfo, msg, fields) }

func (l *captureLogger) Warn(msg string, fields ...interface{}) { l.add(LogLevelWarn, msg, fields) }

func (l *captureLogger) Error(msg string, fields ...interface{}) { l.add(LogLevelError, msg, fields) }

func (l *captureLogger) messages(level LogLevel) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.level == level {
			out = append(out, e.msg)
		}
	}
	return out
}
