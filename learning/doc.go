// Package learning turns completed task executions into learning signal: it
// writes the episodic trace, derives a reflexion critique, and asks the
// memory store to evaluate skill promotion for the task's fingerprint class.
package learning
