// Package stores persists deployment state: run history, the exports of the
// last successful apply, published objects, and the access rules currently
// applied per scope (which is what lets a later run retire rules whose
// address disappeared). Backed by SQLite with embedded migrations.
package stores
