package testutil

import (
	"github.com/hiveline/hive/core"
)

// TaskBuilder helps construct tasks with fluent chaining for tests.
// Example:
//
//	task := NewTaskBuilder("write the parser", "coder").Budget(2).Build()
type TaskBuilder struct {
	description    string
	specialization string
	goalID         string
	parentID       string
	budget         int
	hint           *core.SkillHint
}

// NewTaskBuilder creates a new builder for a task with the given description
// and specialization. Use chainable methods then call Build.
func NewTaskBuilder(description, specialization string) *TaskBuilder {
	return &TaskBuilder{
		description:    description,
		specialization: specialization,
		goalID:         "goal-test",
	}
}

// Goal sets the owning goal id (chainable).
func (b *TaskBuilder) Goal(id string) *TaskBuilder {
	b.goalID = id
	return b
}

// Parent sets the parent task id (chainable).
func (b *TaskBuilder) Parent(id string) *TaskBuilder {
	b.parentID = id
	return b
}

// Budget sets the retry budget (chainable).
func (b *TaskBuilder) Budget(n int) *TaskBuilder {
	b.budget = n
	return b
}

// Hint attaches a skill hint (chainable).
func (b *TaskBuilder) Hint(h *core.SkillHint) *TaskBuilder {
	b.hint = h
	return b
}

// Build returns a pending *core.Task with a generated id and the fingerprint
// computed from the description and specialization.
func (b *TaskBuilder) Build() *core.Task {
	return &core.Task{
		ID:             core.NewID(),
		ParentID:       b.parentID,
		GoalID:         b.goalID,
		Description:    b.description,
		Specialization: b.specialization,
		Status:         core.TaskPending,
		Fingerprint:    core.FingerprintOf(b.description, b.specialization),
		Hint:           b.hint,
		RetryBudget:    b.budget,
	}
}
