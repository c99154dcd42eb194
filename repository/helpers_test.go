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
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type Customer struct {
	bun.BaseModel `bun:"table:customers,alias:c"`
	types.EntityBase

	Name string           `bun:"name,notnull"`
	Age  int              `bun:"age"`
	Tags types.JSONObject `bun:"tags,type:text"`
}

type Order struct {
	bun.BaseModel `bun:"table:orders,alias:o"`
	types.EntityBase

	CustomerID uuid.UUID `bun:"customer_id,type:varchar(36)"`
	Customer   *Customer `bun:"rel:belongs-to,join:customer_id=id"`
	Total      int       `bun:"total"`
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	name := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, t.Name())
	sqldb, err := sql.Open(sqliteshim.ShimName, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	for _, model := range []interface{}{(*Customer)(nil), (*Order)(nil)} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}
	return db
}

func newSession(t *testing.T, db *bun.DB) *database.Session {
	t.Helper()
	s, err := database.NewSession(db)
	require.NoError(t, err)
	return s
}

func newCustomerRepo(t *testing.T, db *bun.DB) Repository[Customer] {
	t.Helper()
	repo, err := NewRepository[Customer](newSession(t, db))
	require.NoError(t, err)
	return repo
}

// seedCustomers inserts customers with the given names; ages follow the
// position so that "age ASC" and insertion order differ from "name ASC".
func seedCustomers(t *testing.T, db *bun.DB, names ...string) []*Customer {
	t.Helper()
	repo := newCustomerRepo(t, db)
	out := make([]*Customer, 0, len(names))
	for i, name := range names {
		c := &Customer{Name: name, Age: 20 + i}
		res := repo.Create(context.Background(), c)
		require.NoError(t, res.Err())
		out = append(out, c)
	}
	return out
}

func names(cs []*Customer) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}
