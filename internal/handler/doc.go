// Package handler implements the HTTP API of the topology viewer.
//
// Routes are mounted on a chi router by NewRouter:
//
//	GET    /api/snapshot                 current view
//	DELETE /api/topology                 remove every node and link
//	GET    /api/nodes/{addr}             one node
//	PUT    /api/nodes/{addr}             set name, info text or lock
//	POST   /api/nodes/{addr}/lock        toggle lock
//	POST   /api/nodes/{addr}/drag/begin  grab a node
//	POST   /api/nodes/{addr}/drag/move   move a grabbed node
//	POST   /api/nodes/{addr}/drag/end    release (click or fling)
//	GET    /api/nodes/{addr}/layout      stored entry of one node
//	POST   /api/nodes/{addr}/layout      store one node's current state
//	DELETE /api/nodes/{addr}/layout      forget one node's stored entry
//	GET    /api/layout                   capture the arrangement
//	PUT    /api/layout                   apply and persist an arrangement
//	DELETE /api/layout                   unlock all nodes and empty the store
//	POST   /api/layout/save              persist the current arrangement
//	POST   /api/layout/load              apply the persisted arrangement
//	GET    /api/simulation               tick loop state
//	POST   /api/simulation/toggle        start or stop ticking
//	GET    /api/sources                  registered sources
//	POST   /api/sources/sync             sync every source in the background
//	POST   /api/sources/{name}/sync      sync one source
//	GET    /events                       SSE stream of scene events
//	GET    /metrics                      Prometheus metrics
//
// Node addresses in paths are hex, with or without a 0x prefix.
// Errors are returned as JSON with an {error, details} structure.
package handler
