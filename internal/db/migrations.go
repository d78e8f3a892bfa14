// Package db carries the embedded goose migrations
package db

import "embed"

// Migrations holds the SQL migrations under migrations/
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations
const MigrationsDir = "migrations"
