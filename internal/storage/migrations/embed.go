package migrations

import "embed"

// PostgresFS embeds the PostgreSQL schema migrations for the ledger and
// policy stores.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS embeds the ClickHouse schema migrations for the event store.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
