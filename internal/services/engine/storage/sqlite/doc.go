// Package sqlite persists game history in a SQLite database.
package sqlite
