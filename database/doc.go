// Package database provides configuration, connection management, query
// hooks, SQL error classification and the change-tracking Session that
// repositories run on, all built on top of Bun.
package database
