// Package core defines the shared contracts and entities of the hive
// orchestration framework: goals and tasks, the three-layer memory record
// model (episodic, reflexion, skill), the Gateway and MemoryStore contracts,
// and the error taxonomy surfaced by routers, swarms and workers.
//
// Higher-level packages (router, swarm, memory, learning) depend only on the
// interfaces declared here, keeping concrete implementations swappable.
package core
