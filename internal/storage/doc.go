// Package storage keeps a history of collector runs.
//
// Two drivers are available: "file" appends JSON Lines to a single file and
// "sqlite" writes to a SQLite database (pure Go driver, no cgo). An empty driver
// or "none" disables persistence.
package storage
