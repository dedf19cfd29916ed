// Package repository defines the data access interfaces for rplview.
//
// The only persisted state is the saved layout: per-node position, lock
// state and friendly name, keyed by node address, plus an optional
// background image reference. Topology itself is never stored; it is
// rebuilt from the sources on every start.
//
// # Implementations
//
// The sqlite subpackage stores layouts in a SQLite database with WAL mode.
// The loader package reads and writes the same data as a YAML file. Both
// satisfy LayoutStore so the server can use either.
//
// # Schema Migration
//
// The sqlite store creates its tables on open. Missing rows are reported as
// (nil, nil) rather than an error.
package repository
