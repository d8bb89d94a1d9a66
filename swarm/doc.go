// Package swarm coordinates a pool of specialized workers executing a goal's
// tasks concurrently. It owns dispatch, bounded retries with backoff, worker
// reassignment, aggregation strategies, and cooperative cancellation; all
// external effects go through the gateway contract.
package swarm
