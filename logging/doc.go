// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers a richer HiveLogger with contextual
// helpers (goal, session, component) and domain specific logging helpers for
// gateway calls, swarm sessions and skill promotions.
package logging
