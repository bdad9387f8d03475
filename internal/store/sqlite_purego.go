//go:build !cgo
// +build !cgo

package store

const sqliteDriver = DriverSQLite
