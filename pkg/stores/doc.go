// Package stores provides the persistence layer for openrestyle. It includes
// SQLite-based storage with WAL mode, connection pooling, and CRUD operations
// for documents, elements, assignment catalogs, checkpoints, replacement
// operations, and the protocol event log.
package stores
