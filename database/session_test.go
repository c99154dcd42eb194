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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo/types"
)

func TestNewSessionNilDB(t *testing.T) {
	s, err := NewSession(nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNilDB)
}

func TestSessionAddAssignsID(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	w := &widget{Name: "bolt"}
	require.NoError(t, s.Add(w))
	assert.NotEqual(t, uuid.Nil, w.ID)
	assert.Equal(t, Added, s.State(w))
	assert.Equal(t, 1, s.Tracked())
	assert.True(t, s.HasChanges())

	assert.ErrorIs(t, s.Add(nil), ErrNilEntity)
	var nilWidget *widget
	assert.ErrorIs(t, s.Add(nilWidget), ErrNilEntity)
}

func TestSessionAddRejectsDuplicateKey(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	a := &widget{Name: "a"}
	require.NoError(t, s.Add(a))
	b := &widget{Name: "b"}
	b.ID = a.ID
	assert.ErrorIs(t, s.Add(b), ErrIdentityConflict)
}

func TestSaveChangesNothingPending(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	n, err := s.SaveChanges(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSaveChangesInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s, err := NewSession(db)
	require.NoError(t, err)

	a := &widget{Name: "a", Qty: 1}
	b := &widget{Name: "b", Qty: 2}
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, Unchanged, s.State(a))
	assert.Equal(t, Unchanged, s.State(b))
	require.Len(t, a.TimeStamp, 16)
	assert.False(t, s.HasChanges())

	firstToken := append([]byte(nil), a.TimeStamp...)
	a.Qty = 10
	assert.True(t, s.HasChanges())
	assert.Equal(t, Modified, s.State(a))

	n, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NotEqual(t, firstToken, a.TimeStamp)

	stored := loadWidget(t, db, a)
	assert.Equal(t, 10, stored.Qty)
	assert.Equal(t, a.TimeStamp, stored.TimeStamp)
}

func TestDetectChanges(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed, err := NewSession(db)
	require.NoError(t, err)
	w := &widget{Name: "w", Attrs: types.JSONObject{"color": "red"}}
	require.NoError(t, seed.Add(w))
	_, err = seed.SaveChanges(ctx)
	require.NoError(t, err)

	s, err := NewSession(db)
	require.NoError(t, err)
	loaded := s.Attach(loadWidget(t, db, w)).(*widget)
	assert.Equal(t, Unchanged, s.State(loaded))

	loaded.Name = "renamed"
	s.DetectChanges()
	assert.Equal(t, Modified, s.State(loaded))

	loaded.Name = "w"
	s.DetectChanges()
	assert.Equal(t, Unchanged, s.State(loaded))

	loaded.Attrs["color"] = "blue"
	s.DetectChanges()
	assert.Equal(t, Modified, s.State(loaded))

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "blue", loadWidget(t, db, w).Attrs["color"])
}

func TestAutoDetectDisabled(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	s, err := NewSession(db, WithAutoDetectChanges(false))
	require.NoError(t, err)

	w := &widget{Name: "w"}
	require.NoError(t, s.Add(w))
	_, err = s.SaveChanges(ctx)
	require.NoError(t, err)

	w.Qty = 5
	assert.False(t, s.HasChanges())
	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s.DetectChanges()
	n, err = s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAttachResolvesIdentity(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	id := uuid.New()
	first := &widget{Name: "first"}
	first.ID = id
	second := &widget{Name: "second"}
	second.ID = id

	assert.Same(t, first, s.Attach(first))
	assert.Same(t, first, s.Attach(second))
	assert.Equal(t, Detached, s.State(second))
	assert.Equal(t, 1, s.Tracked())
}

func TestAttachLeavesKeylessEntityUntracked(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	_, err := db.ExecContext(ctx, "INSERT INTO widgets (id, name, qty) VALUES ('', 'legacy', 1)")
	require.NoError(t, err)

	var rows []*widget
	require.NoError(t, db.NewSelect().Model(&rows).Scan(ctx))
	require.Len(t, rows, 1)
	require.Equal(t, uuid.Nil, rows[0].ID)

	s, err := NewSession(db)
	require.NoError(t, err)
	assert.Same(t, rows[0], s.Attach(rows[0]))
	assert.Equal(t, Detached, s.State(rows[0]))
	assert.False(t, s.HasChanges())

	n, err := s.SaveChanges(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	count, err := db.NewSelect().Model((*widget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateReplacesTrackedInstance(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	id := uuid.New()
	old := &widget{Name: "old"}
	old.ID = id
	s.Attach(old)

	replacement := &widget{Name: "new"}
	replacement.ID = id
	require.NoError(t, s.Update(replacement))

	assert.Equal(t, Detached, s.State(old))
	assert.Equal(t, Modified, s.State(replacement))
	assert.Equal(t, 1, s.Tracked())
}

func TestDetachAndClear(t *testing.T) {
	s, err := NewSession(newTestDB(t))
	require.NoError(t, err)

	a, b := &widget{Name: "a"}, &widget{Name: "b"}
	require.NoError(t, s.Add(a))
	require.NoError(t, s.Add(b))

	s.Detach(a)
	assert.Equal(t, Detached, s.State(a))
	assert.Equal(t, 1, s.Tracked())

	s.Clear()
	assert.Zero(t, s.Tracked())
	assert.False(t, s.HasChanges())
}

func TestSaveChangesConcurrencyConflict(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed, err := NewSession(db)
	require.NoError(t, err)
	w := &widget{Name: "shared", Qty: 1}
	require.NoError(t, seed.Add(w))
	_, err = seed.SaveChanges(ctx)
	require.NoError(t, err)

	s1, err := NewSession(db)
	require.NoError(t, err)
	s2, err := NewSession(db)
	require.NoError(t, err)
	w1 := s1.Attach(loadWidget(t, db, w)).(*widget)
	w2 := s2.Attach(loadWidget(t, db, w)).(*widget)

	w1.Qty = 2
	_, err = s1.SaveChanges(ctx)
	require.NoError(t, err)

	staleToken := append([]byte(nil), w2.TimeStamp...)
	w2.Qty = 3
	n, err := s2.SaveChanges(ctx)
	assert.Zero(t, n)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, staleToken, w2.TimeStamp)
	assert.Equal(t, Modified, s2.State(w2))
	assert.Equal(t, 2, loadWidget(t, db, w).Qty)
}

func TestSaveChangesRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seed, err := NewSession(db)
	require.NoError(t, err)
	existing := &widget{Name: "existing"}
	require.NoError(t, seed.Add(existing))
	_, err = seed.SaveChanges(ctx)
	require.NoError(t, err)

	log := &captureLogger{}
	s, err := NewSession(db, WithSessionLogger(log))
	require.NoError(t, err)
	fresh := &widget{Name: "fresh"}
	dup := &widget{Name: "dup"}
	dup.ID = existing.ID
	require.NoError(t, s.Add(fresh))
	require.NoError(t, s.Add(dup))

	n, err := s.SaveChanges(ctx)
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Equal(t, DuplicateKeyErr, ClassifySQLError(err))
	assert.Nil(t, fresh.TimeStamp)
	assert.Equal(t, Added, s.State(fresh))
	assert.NotEmpty(t, log.messages(LogLevelError))

	count, err := db.NewSelect().Model((*widget)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEntityStateString(t *testing.T) {
	assert.Equal(t, "Detached", Detached.String())
	assert.Equal(t, "Unchanged", Unchanged.String())
	assert.Equal(t, "Added", Added.String())
	assert.Equal(t, "Modified", Modified.String())
}
