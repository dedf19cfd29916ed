// Package adapter implements topology sources for rplview.
//
// A source observes the network and reports what it currently sees as a
// domain.Fragment: the full set of nodes and child→parent links, not a
// delta. The service reconciler turns successive fragments into network
// events for the scene.
//
// # Sources
//
// NmapAdapter runs nmap host discovery with traceroute over configured
// targets. Hops are mapped to node addresses (IPv4 as 32 bits, IPv6 by its
// interface identifier) and each consecutive pair of hops becomes a link
// from the farther hop to the nearer one.
//
// FileAdapter reads a JSON or YAML fragment from disk. It is one-shot and is
// re-synced by the watcher package whenever the file changes.
//
// SSHRouteAdapter logs into the host running a non-storing mode RPL root
// and lists its source-routing links. The root knows every node's parent,
// so a single command yields the whole tree.
//
// # Registry
//
// Registry owns source lifecycle. Polling sources get a goroutine that syncs
// once at start and then on every tick of the registry's clock; one-shot
// sources sync only through TriggerSync.
//
// # Event System
//
// Sources that implement ProgressSource publish discovery progress events
// through the registry.
package adapter
