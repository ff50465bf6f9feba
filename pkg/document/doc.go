// Package document binds the replacement engine to real design documents.
// It provides the store-backed implementations of the engine's ports
// (mutation applier, checkpoint provider, operation recorder), the read-only
// audit that produces affected-element lists, a snapshot loader for document
// exports, and an fsnotify watcher that flags documents whose source file
// changed on disk.
package document
