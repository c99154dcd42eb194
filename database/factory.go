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
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
)

var supportedTypes = []string{"mysql", "postgres", "sqlite"}

// BaseDatabaseFactory creates and manages a configured database manager and
// hands out sessions bound to it.
type BaseDatabaseFactory struct {
	manager  AbstractDatabaseManager
	logger   Logger
	session  SessionConfig
	registry prometheus.Registerer
}

// NewDatabaseFactory returns a new database factory using the global logger.
func NewDatabaseFactory() *BaseDatabaseFactory {
	return &BaseDatabaseFactory{
		logger: GetLogger(),
	}
}

// WithRegisterer sets the prometheus registerer used when metrics are
// enabled. The default registerer is used otherwise.
func (f *BaseDatabaseFactory) WithRegisterer(reg prometheus.Registerer) *BaseDatabaseFactory {
	f.registry = reg
	return f
}

// CreateFromConfig constructs a database manager from cfg. The connection
// part is validated here; connecting is left to InitializeDatabase.
func (f *BaseDatabaseFactory) CreateFromConfig(cfg *Config) (AbstractDatabaseManager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}

	supported := false
	for _, t := range supportedTypes {
		if cfg.ConnectionConfig.Type == t {
			supported = true
			break
		}
	}
	if !supported {
		return nil, fmt.Errorf("unsupported database type: %s, supported types: %v", cfg.ConnectionConfig.Type, supportedTypes)
	}

	var opts []ManagerOption
	if cfg.MetricsConfig.Enabled {
		reg := f.registry
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		opts = append(opts, WithMetrics(reg, cfg.MetricsConfig.Namespace))
	}

	conn := cfg.ConnectionConfig
	manager := NewDatabaseManager(&conn, opts...)
	manager.SetLogger(f.logger)

	f.manager = manager
	f.session = cfg.SessionConfig
	return manager, nil
}

// InitializeDatabase connects the manager created by CreateFromConfig.
func (f *BaseDatabaseFactory) InitializeDatabase(ctx context.Context) error {
	if f.manager == nil {
		return fmt.Errorf("database manager not created")
	}
	if err := f.manager.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	f.logger.Info("Database initialization completed!")
	return nil
}

// NewSession opens a session on the managed database with the configured
// session defaults. Extra options are applied after the defaults.
func (f *BaseDatabaseFactory) NewSession(opts ...SessionOption) (*Session, error) {
	db := f.GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized: %w", ErrNilDB)
	}
	base := []SessionOption{
		WithSessionLogger(f.logger),
		WithAutoDetectChanges(f.session.AutoDetectChanges),
		WithSaveTimeout(f.session.SaveTimeout),
	}
	return NewSession(db, append(base, opts...)...)
}

// GetManager returns the underlying database manager.
func (f *BaseDatabaseFactory) GetManager() AbstractDatabaseManager {
	return f.manager
}

// GetDB returns the Bun database instance, or nil if not initialized.
func (f *BaseDatabaseFactory) GetDB() *bun.DB {
	if f.manager == nil {
		return nil
	}
	return f.manager.GetDB()
}

// SetLogger sets the logger on the factory and the underlying manager.
func (f *BaseDatabaseFactory) SetLogger(logger Logger) {
	if logger == nil {
		logger = NopLogger()
	}
	f.logger = logger
	if f.manager != nil {
		f.manager.SetLogger(logger)
	}
}

// Close closes the database connection managed by the factory.
func (f *BaseDatabaseFactory) Close() error {
	if f.manager == nil {
		return nil
	}
	return f.manager.Disconnect()
}

// GetHealthStatus returns the current database health status from the manager.
func (f *BaseDatabaseFactory) GetHealthStatus(ctx context.Context) *HealthStatus {
	if f.manager == nil {
		return &HealthStatus{
			Healthy:       false,
			Connected:     false,
			LastError:     "Database manager not initialized",
			LastCheckTime: time.Now(),
		}
	}
	return f.manager.HealthCheck(ctx)
}

// GetStats returns database connection statistics from the manager.
func (f *BaseDatabaseFactory) GetStats() *DBStats {
	if f.manager == nil {
		return &DBStats{}
	}
	return f.manager.GetStats()
}
