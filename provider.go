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
	"errors"
	"reflect"
	"sync"

	"github.com/tomoncle/bunrepo/database"
	"github.com/tomoncle/bunrepo/repository"
	"github.com/tomoncle/bunrepo/types"
	"github.com/uptrace/bun"
)

var (
	ErrNilFactory  = errors.New("bunrepo: nil session factory")
	ErrScopeClosed = errors.New("bunrepo: scope is closed")
)

// SessionFactory opens the session backing one Scope.
type SessionFactory func(ctx context.Context) (*database.Session, error)

// Provider hands out scopes, each with its own session. It is safe for
// concurrent use; the scopes it returns are not.
type Provider struct {
	factory SessionFactory
}

func NewProvider(factory SessionFactory) (*Provider, error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	return &Provider{factory: factory}, nil
}

// NewProviderFromDB binds session creation to db. Options are applied to
// every session the provider opens.
func NewProviderFromDB(db *bun.DB, opts ...database.SessionOption) (*Provider, error) {
	if db == nil {
		return nil, database.ErrNilDB
	}
	return NewProvider(func(context.Context) (*database.Session, error) {
		return database.NewSession(db, opts...)
	})
}

// NewDefaultProvider opens sessions on the global database set up by
// database.InitDB.
func NewDefaultProvider(opts ...database.SessionOption) *Provider {
	return &Provider{factory: func(context.Context) (*database.Session, error) {
		return database.NewGlobalSession(opts...)
	}}
}

// NewScope starts a unit of work.
func (p *Provider) NewScope(ctx context.Context) (*Scope, error) {
	session, err := p.factory(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, repository.ErrMissingSession
	}
	return &Scope{session: session, repos: make(map[reflect.Type]interface{})}, nil
}

// Do runs fn inside a new scope and closes the scope afterwards.
func (p *Provider) Do(ctx context.Context, fn func(*Scope) error) error {
	scope, err := p.NewScope(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()
	return fn(scope)
}

// Scope is one unit of work: a session plus the repositories resolved on it.
type Scope struct {
	mu      sync.Mutex
	session *database.Session
	repos   map[reflect.Type]interface{}
	closed  bool
}

func (s *Scope) Session() *database.Session {
	return s.session
}

// Close drops the repositories and stops tracking entities. Pending changes
// that were not saved are discarded.
func (s *Scope) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.repos = nil
	s.session.Clear()
	return nil
}

// Resolve returns the scope's repository for T, creating it on first use.
func Resolve[T any, PT types.EntityPtr[T]](s *Scope) (repository.Repository[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrScopeClosed
	}
	key := reflect.TypeOf((*T)(nil)).Elem()
	if repo, ok := s.repos[key]; ok {
		return repo.(repository.Repository[T]), nil
	}
	repo, err := repository.NewRepository[T, PT](s.session)
	if err != nil {
		return nil, err
	}
	s.repos[key] = repo
	return repo, nil
}
