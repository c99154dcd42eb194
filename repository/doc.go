// Package repository provides a generic repository over Bun. Operations run
// on a database.Session and report their outcome through a Result envelope.
package repository
