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
	"bytes"
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrNilDB               = errors.New("database: nil *bun.DB")
	ErrNilEntity           = errors.New("database: nil entity")
	ErrIdentityConflict    = errors.New("database: another instance with the same key is already tracked")
	ErrConcurrencyConflict = errors.New("database: entity was modified or deleted since it was read")
)

// EntityState is the tracking state of an entity within a Session.
type EntityState int

const (
	Detached EntityState = iota
	Unchanged
	Added
	Modified
)

func (s EntityState) String() string {
	switch s {
	case Unchanged:
		return "Unchanged"
	case Added:
		return "Added"
	case Modified:
		return "Modified"
	default:
		return "Detached"
	}
}

type entryKey struct {
	typ reflect.Type
	id  uuid.UUID
}

type trackedEntry struct {
	key      entryKey
	entity   types.Entity
	state    EntityState
	seq      int
	snapshot map[string][]byte
	// changed holds the columns found by DetectChanges. A Modified entry with
	// no changed columns is updated in full.
	changed []string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

func WithSessionLogger(l Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAutoDetectChanges makes HasChanges and SaveChanges scan tracked
// entities for in-place modifications first.
func WithAutoDetectChanges(on bool) SessionOption {
	return func(s *Session) { s.autoDetect = on }
}

// WithSaveTimeout bounds every SaveChanges call.
func WithSaveTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.saveTimeout = d }
}

// Session is a unit of work over a bun database. It tracks the entities read
// and written through it, resolves identities, and flushes pending inserts and
// updates in a single transaction.
//
// A Session is not safe for concurrent use.
type Session struct {
	db          *bun.DB
	logger      Logger
	autoDetect  bool
	saveTimeout time.Duration

	seq   int
	byKey map[entryKey]*trackedEntry
	byPtr map[types.Entity]*trackedEntry
}

func NewSession(db *bun.DB, opts ...SessionOption) (*Session, error) {
	if db == nil {
		return nil, ErrNilDB
	}
	s := &Session{
		db:         db,
		logger:     NopLogger(),
		autoDetect: true,
		byKey:      make(map[entryKey]*trackedEntry),
		byPtr:      make(map[types.Entity]*trackedEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Session) DB() *bun.DB {
	return s.db
}

// Add starts tracking e as a new entity. A nil ID is replaced by a fresh one.
func (s *Session) Add(e types.Entity) error {
	typ, err := entityType(e)
	if err != nil {
		return err
	}
	if e.GetID() == uuid.Nil {
		e.SetID(uuid.New())
	}
	if entry, ok := s.byPtr[e]; ok {
		if entry.key.id != e.GetID() {
			s.rekey(entry, e.GetID())
		}
		entry.state = Added
		entry.changed = nil
		return nil
	}
	key := entryKey{typ: typ, id: e.GetID()}
	if _, ok := s.byKey[key]; ok {
		return fmt.Errorf("%w: %s %s", ErrIdentityConflict, typ.Name(), key.id)
	}
	s.track(key, e, Added)
	return nil
}

// Attach tracks e as Unchanged and returns the instance the session uses for
// its key: if another instance with the same key is already tracked, that
// instance is returned and e is ignored. An entity without ID has no key and
// is returned untracked.
func (s *Session) Attach(e types.Entity) types.Entity {
	typ, err := entityType(e)
	if err != nil {
		return nil
	}
	if e.GetID() == uuid.Nil {
		s.logger.Warn("Entity without key is not tracked", "type", typ.Name())
		return e
	}
	if _, ok := s.byPtr[e]; ok {
		return e
	}
	key := entryKey{typ: typ, id: e.GetID()}
	if existing, ok := s.byKey[key]; ok {
		return existing.entity
	}
	entry := s.track(key, e, Unchanged)
	entry.snapshot = s.snapshot(e)
	return e
}

// AttachGraph attaches e and every related entity bun loaded into its
// relation fields. Pointer relation fields are redirected to the session's
// instance when another one is already tracked for the same key.
func (s *Session) AttachGraph(e types.Entity) types.Entity {
	return s.attachGraph(e, make(map[types.Entity]struct{}))
}

func (s *Session) attachGraph(e types.Entity, seen map[types.Entity]struct{}) types.Entity {
	if _, err := entityType(e); err != nil {
		return nil
	}
	if _, ok := seen[e]; !ok {
		seen[e] = struct{}{}
		s.attachRelations(reflect.ValueOf(e).Elem(), seen)
	}
	return s.Attach(e)
}

func (s *Session) attachRelations(v reflect.Value, seen map[types.Entity]struct{}) {
	table := s.db.Table(v.Type())
	names := make([]string, 0, len(table.Relations))
	for name := range table.Relations {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fv, err := v.FieldByIndexErr(table.Relations[name].Field.Index)
		if err != nil {
			continue
		}
		switch fv.Kind() {
		case reflect.Ptr:
			s.attachRelated(fv, seen)
		case reflect.Struct:
			if fv.CanAddr() {
				s.attachRelated(fv.Addr(), seen)
			}
		case reflect.Slice:
			for i := 0; i < fv.Len(); i++ {
				elem := fv.Index(i)
				if elem.Kind() == reflect.Struct {
					elem = elem.Addr()
				}
				s.attachRelated(elem, seen)
			}
		}
	}
}

// attachRelated attaches the entity ptr points to and, when ptr is settable,
// points it at the tracked instance.
func (s *Session) attachRelated(ptr reflect.Value, seen map[types.Entity]struct{}) {
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() || !ptr.CanInterface() {
		return
	}
	related, ok := ptr.Interface().(types.Entity)
	if !ok {
		return
	}
	tracked := s.attachGraph(related, seen)
	if tracked == nil || tracked == related || !ptr.CanSet() {
		return
	}
	if tv := reflect.ValueOf(tracked); tv.Type().AssignableTo(ptr.Type()) {
		ptr.Set(tv)
	}
}

// Update marks e as Modified so that all of its columns are written on the
// next SaveChanges. Another instance tracked under the same key is replaced.
func (s *Session) Update(e types.Entity) error {
	typ, err := entityType(e)
	if err != nil {
		return err
	}
	if e.GetID() == uuid.Nil {
		return s.Add(e)
	}
	if entry, ok := s.byPtr[e]; ok {
		if entry.state != Added {
			entry.state = Modified
			entry.changed = nil
		}
		return nil
	}
	key := entryKey{typ: typ, id: e.GetID()}
	if existing, ok := s.byKey[key]; ok {
		delete(s.byPtr, existing.entity)
		delete(s.byKey, key)
	}
	s.track(key, e, Modified)
	return nil
}

// Detach stops tracking e. Detaching an untracked entity is a no-op.
func (s *Session) Detach(e types.Entity) {
	if e == nil {
		return
	}
	entry, ok := s.byPtr[e]
	if !ok {
		return
	}
	delete(s.byPtr, e)
	delete(s.byKey, entry.key)
}

// Clear stops tracking every entity.
func (s *Session) Clear() {
	s.byKey = make(map[entryKey]*trackedEntry)
	s.byPtr = make(map[types.Entity]*trackedEntry)
}

func (s *Session) State(e types.Entity) EntityState {
	if e == nil {
		return Detached
	}
	if entry, ok := s.byPtr[e]; ok {
		return entry.state
	}
	return Detached
}

// Tracked returns the number of tracked entities.
func (s *Session) Tracked() int {
	return len(s.byPtr)
}

func (s *Session) HasChanges() bool {
	if s.autoDetect {
		s.DetectChanges()
	}
	for _, entry := range s.byPtr {
		if entry.state == Added || entry.state == Modified {
			return true
		}
	}
	return false
}

// DetectChanges compares tracked entities with their snapshots. Entities with
// differing columns become Modified; a partially modified entity whose columns
// were all reverted becomes Unchanged again.
func (s *Session) DetectChanges() {
	for _, entry := range s.byPtr {
		if entry.state == Added || entry.snapshot == nil {
			continue
		}
		if entry.state == Modified && entry.changed == nil {
			continue
		}
		changed := diffSnapshots(entry.snapshot, s.snapshot(entry.entity))
		switch {
		case len(changed) > 0:
			entry.state = Modified
			entry.changed = changed
		case entry.state == Modified:
			entry.state = Unchanged
			entry.changed = nil
		}
	}
}

// SaveChanges writes every Added and Modified entity inside one transaction
// and returns the number of rows affected. Each written row gets a new
// concurrency token; updates only match rows still carrying the token the
// entity was read with, otherwise ErrConcurrencyConflict is returned. On any
// failure nothing is committed and tracking state is left as it was.
func (s *Session) SaveChanges(ctx context.Context) (int64, error) {
	if s.autoDetect {
		s.DetectChanges()
	}
	pending := s.pending()
	if len(pending) == 0 {
		return 0, nil
	}

	if s.saveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.saveTimeout)
		defer cancel()
	}

	oldTokens := make([][]byte, len(pending))
	for i, entry := range pending {
		oldTokens[i] = entry.entity.GetTimeStamp()
	}

	var affected int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i, entry := range pending {
			n, err := s.write(ctx, tx, entry, oldTokens[i])
			if err != nil {
				return err
			}
			affected += n
		}
		return nil
	})
	if err != nil {
		for i, entry := range pending {
			entry.entity.SetTimeStamp(oldTokens[i])
		}
		if errors.Is(err, ErrConcurrencyConflict) {
			s.logger.Warn("Concurrency conflict while saving changes", "error", err)
		} else {
			s.logger.Error("Failed to save changes", "pending", len(pending), "error", err)
		}
		return 0, err
	}

	for _, entry := range pending {
		entry.state = Unchanged
		entry.changed = nil
		entry.snapshot = s.snapshot(entry.entity)
	}
	s.logger.Debug("Saved changes", "entities", len(pending), "rows", affected)
	return affected, nil
}

func (s *Session) write(ctx context.Context, tx bun.Tx, entry *trackedEntry, oldToken []byte) (int64, error) {
	e := entry.entity
	e.SetTimeStamp(newToken())

	if entry.state == Added {
		res, err := tx.NewInsert().Model(e).Exec(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert %s %s: %w", entry.key.typ.Name(), entry.key.id, err)
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	// The token column is left unqualified: not every dialect aliases the
	// table in UPDATE statements.
	q := tx.NewUpdate().Model(e).WherePK()
	if oldToken == nil {
		q = q.Where("? IS NULL", bun.Ident(types.TimeStampColumn))
	} else {
		q = q.Where("? = ?", bun.Ident(types.TimeStampColumn), oldToken)
	}
	if len(entry.changed) > 0 {
		q = q.Column(append(append([]string(nil), entry.changed...), types.TimeStampColumn)...)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("update %s %s: %w", entry.key.typ.Name(), entry.key.id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("update %s %s: %w", entry.key.typ.Name(), entry.key.id, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s %s", ErrConcurrencyConflict, entry.key.typ.Name(), entry.key.id)
	}
	return n, nil
}

func (s *Session) pending() []*trackedEntry {
	var pending []*trackedEntry
	for _, entry := range s.byPtr {
		if entry.state == Added || entry.state == Modified {
			pending = append(pending, entry)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })
	return pending
}

func (s *Session) track(key entryKey, e types.Entity, state EntityState) *trackedEntry {
	s.seq++
	entry := &trackedEntry{key: key, entity: e, state: state, seq: s.seq}
	s.byKey[key] = entry
	s.byPtr[e] = entry
	return entry
}

func (s *Session) rekey(entry *trackedEntry, id uuid.UUID) {
	delete(s.byKey, entry.key)
	entry.key.id = id
	s.byKey[entry.key] = entry
}

// snapshot encodes the driver value of every non-key column except the
// concurrency token.
func (s *Session) snapshot(e types.Entity) map[string][]byte {
	v := reflect.ValueOf(e).Elem()
	table := s.db.Table(v.Type())
	snap := make(map[string][]byte, len(table.DataFields))
	for _, f := range table.DataFields {
		if f.Name == types.TimeStampColumn {
			continue
		}
		snap[f.Name] = encodeColumn(v, f)
	}
	return snap
}

func encodeColumn(v reflect.Value, f *schema.Field) []byte {
	fv, err := v.FieldByIndexErr(f.Index)
	if err != nil {
		return nil
	}
	val := columnValue(fv)

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(val); err != nil {
		return []byte(fmt.Sprintf("%#v", val))
	}
	return buf.Bytes()
}

// columnValue prefers the driver representation so that types with custom
// Valuer implementations compare the way they are stored.
func columnValue(fv reflect.Value) interface{} {
	if fv.Kind() == reflect.Ptr && fv.IsNil() {
		return nil
	}
	if fv.CanInterface() {
		if valuer, ok := fv.Interface().(driver.Valuer); ok {
			if dv, err := valuer.Value(); err == nil {
				return dv
			}
		}
		if fv.CanAddr() {
			if valuer, ok := fv.Addr().Interface().(driver.Valuer); ok {
				if dv, err := valuer.Value(); err == nil {
					return dv
				}
			}
		}
		return fv.Interface()
	}
	return nil
}

func diffSnapshots(before, after map[string][]byte) []string {
	var changed []string
	for col, cur := range after {
		if !bytes.Equal(before[col], cur) {
			changed = append(changed, col)
		}
	}
	sort.Strings(changed)
	return changed
}

func entityType(e types.Entity) (reflect.Type, error) {
	if e == nil {
		return nil, ErrNilEntity
	}
	v := reflect.ValueOf(e)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, ErrNilEntity
	}
	if v.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("database: entity must be a pointer to struct, got %T", e)
	}
	return v.Elem().Type(), nil
}

func newToken() []byte {
	id := uuid.New()
	return id[:]
}
