// Package stores provides the resolution history persistence layer.
// It includes a SQLite-backed store with WAL mode, connection pooling,
// and embedded schema migrations. Each saved resolution keeps the full
// document as JSON alongside per-service rows for quick history queries.
package stores
