// Package schema defines the structural schema model for the index database
// and the engine that reconciles a live SQLite file against it.
//
// A Definition describes tables, columns, indexes, foreign keys and FTS5
// virtual tables. Introspect reads the same shape back out of a live
// database via PRAGMA queries, Compare produces a Diff between the two, and
// Sync applies the diff: validate first, back up the database file if it
// holds data, then migrate inside a single transaction. Additive changes
// use ALTER TABLE; anything SQLite cannot alter in place goes through a
// create-copy-drop-rename table rebuild.
//
// Version migration callbacks registered with RegisterMigration are keyed
// by definition name and run in semver order, up to the definition's
// version, before the structural diff is applied. The applied version is
// recorded in a reserved settings table.
//
// Table rebuilds run with foreign key enforcement suspended on the
// migration connection so dropping a parent table cannot cascade into its
// children; a foreign_key_check guards the transaction before commit.
package schema
