// Package migrations applies the embedded Postgres and ClickHouse schemas.
package migrations

import "embed"

// PostgresFS holds the ledger, journal and checkpoint tables.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the analytics journal.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
