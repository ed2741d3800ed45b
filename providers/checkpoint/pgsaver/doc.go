// Package pgsaver provides a PostgreSQL-backed implementation of the
// [checkpoint.Saver] interface for persisting graph run state across process
// restarts. A single [PgSaver] serves all threads, scoping rows by thread id,
// and uses pgx/v5 for efficient, pool-safe queries.
//
// This package lives in its own Go module to isolate the pgx dependency from
// the main agentgraph module, which is intentionally dependency-light.
//
// The main entry point is [New], which returns a ready-to-use [PgSaver].
// Use [PgSaver.EnsureSchema] during development to auto-create the required
// table; production deployments should manage schema migrations with
// dedicated tooling (goose, migrate, etc.).
package pgsaver
