package hintdb

import "database/sql"

// SetOpenDB swaps the database opener so tests can inject open failures.
// Returns a restore function.
func SetOpenDB(fn func(driver, dsn string) (*sql.DB, error)) func() {
	prev := openDB
	openDB = fn
	return func() { openDB = prev }
}
