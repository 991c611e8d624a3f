// Package db embeds the PostgreSQL schema of the pricing stores.
package db

import _ "embed"

// Schema creates the rule and multiplier tables. It is idempotent.
//
//go:embed migrations/001_schema.sql
var Schema string
