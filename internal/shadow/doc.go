// Package shadow implements the live configuration coordinator on top of a
// SQLite database.
//
// A shadow holds one configuration document: an ordered set of objects, the
// schema name and an epoch that increases with every accepted write. Writes
// either replace the whole document or apply an incremental patch, each in
// a single transaction, and every write is recorded in an append-only
// commit history.
//
// Sessions in internal/cib treat a Shadow as the authoritative
// configuration. Several processes may open the same database file; the
// epoch and the content digest let a session detect that another writer
// changed the configuration since it was read.
package shadow
