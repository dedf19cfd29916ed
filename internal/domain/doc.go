// Package domain defines the entities of the rplview topology view.
//
// # Core Types
//
// Address identifies a device by a network address of up to 64 bits. Its hex
// form is the key used by saved layouts.
//
// Node is a positioned device with a velocity and two control flags: being
// moved (transient, set by interaction) and locked (persistent). While either
// flag is set, the simulation may neither move the node nor change its
// velocity.
//
// Link is a directed child→parent routing relationship with a weight that
// sets the spring's rest length. A link refers to its endpoints by address,
// never by pointer, so destroying a node cannot leave a link holding a stale
// reference.
//
// # Collaborator Types
//
// Layout and NodeLayout carry persisted position, lock and name state.
// Fragment is what a network-data source currently observes.
// Snapshot is the read-only copy handed to renderers.
//
// # Design Principles
//
// - No database or transport dependencies
// - Node state behind methods, so each writer's permissions are explicit
package domain
