// Package store defines the persistence contract for scheduling run history.
// Implementations live under internal/storage; this package must not import
// database drivers or concrete clients.
package store
