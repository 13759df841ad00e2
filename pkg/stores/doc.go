// Package stores persists the history of setup and teardown runs in SQLite.
// Every run gets a row, and every environment it touched gets a result row
// with the operation taken and the classified error, if any.
package stores
