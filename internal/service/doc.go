// Package service coordinates the rplview scene.
//
// # Scene
//
// Scene owns the topology index and the layout engine behind a single lock.
// Network events (node and link appearance, removal and weight change),
// interaction (drag, select, lock, rename) and simulation ticks all go
// through it, so no two writers touch node state at once.
//
// # Reconciler
//
// Reconciler accepts full per-source observations and emits only the
// difference to a TopologySink. Additions are emitted nodes first; removals
// are emitted links first, so no link ever refers to a missing node.
//
// # Scheduler
//
// Scheduler drives Scene.Tick from a periodic clock and can be started,
// stopped and toggled at runtime. Stopping freezes the view in place.
//
// # Event System
//
// The scene publishes events via EventBus for delivery to connected clients
// over Server-Sent Events.
package service
