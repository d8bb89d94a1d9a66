package core

import (
	"sync"
	"time"
)

// GoalStatus enumerates the lifecycle states of a submitted goal.
type GoalStatus string

const (
	// GoalPending means the goal is accepted but not yet routed.
	GoalPending GoalStatus = "pending"
	// GoalRunning means a swarm session is executing the goal's tasks.
	GoalRunning GoalStatus = "running"
	// GoalDone means aggregation completed successfully (possibly partial).
	GoalDone GoalStatus = "done"
	// GoalFailed means the goal terminated with a surfaced failure.
	GoalFailed GoalStatus = "failed"
	// GoalCancelled means the goal was cancelled before completion.
	GoalCancelled GoalStatus = "cancelled"
)

// Goal is the root of a task tree: a single unit of user intent submitted to
// the orchestrator. Status transitions are driven by the orchestrator only.
type Goal struct {
	ID          string     `json:"id"`
	Text        string     `json:"text"`
	SubmittedAt time.Time  `json:"submitted_at"`
	Status      GoalStatus `json:"status"`
}

// NewGoal creates a pending goal with a generated id and UTC submission time.
func NewGoal(text string) Goal {
	return Goal{
		ID:          NewID(),
		Text:        text,
		SubmittedAt: time.Now().UTC(),
		Status:      GoalPending,
	}
}

// TaskStatus enumerates the lifecycle states of a task.
type TaskStatus string

const (
	// TaskPending means the task awaits dispatch.
	TaskPending TaskStatus = "pending"
	// TaskAssigned means the task is bound to a worker but not yet running.
	TaskAssigned TaskStatus = "assigned"
	// TaskRunning means a worker is executing the task.
	TaskRunning TaskStatus = "running"
	// TaskSucceeded is a terminal success state.
	TaskSucceeded TaskStatus = "succeeded"
	// TaskFailed is a terminal failure state (includes cancellation).
	TaskFailed TaskStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// SkillHint annotates a task with the procedure template of a promoted skill.
// It is advisory: workers may deviate from the suggested procedure.
type SkillHint struct {
	SkillID     string  `json:"skill_id"`
	SkillName   string  `json:"skill_name"`
	Procedure   string  `json:"procedure"`
	SuccessRate float64 `json:"success_rate"`
}

// Task is a unit of work produced by decomposition. A task is owned by at
// most one worker at any instant; ownership is enforced by the swarm
// coordinator. Parent linkage uses ids, not pointers, so task trees can be
// kept in a flat arena without ownership cycles.
type Task struct {
	ID             string      `json:"id"`
	ParentID       string      `json:"parent_id,omitempty"`
	GoalID         string      `json:"goal_id"`
	Description    string      `json:"description"`
	Specialization string      `json:"specialization"`
	Status         TaskStatus  `json:"status"`
	Fingerprint    Fingerprint `json:"fingerprint"`
	Hint           *SkillHint  `json:"hint,omitempty"`
	RetryBudget    int         `json:"retry_budget"`
}

// Warm reports whether the task was routed with a skill hint attached.
func (t *Task) Warm() bool { return t.Hint != nil }

// TaskArena holds the task records of one goal indexed by id. Parent/child
// relationships are expressed through ParentID lookups against the arena,
// never through direct pointers. The arena preserves insertion order so task
// sequences stay deterministic for identical input.
type TaskArena struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string
}

// NewTaskArena creates an empty arena.
func NewTaskArena() *TaskArena {
	return &TaskArena{tasks: make(map[string]*Task)}
}

// Add inserts a task into the arena. Re-adding an existing id replaces the
// stored record but keeps its original position.
func (a *TaskArena) Add(t *Task) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.tasks[t.ID]; !ok {
		a.order = append(a.order, t.ID)
	}
	a.tasks[t.ID] = t
}

// Get returns the task with the given id, or nil if absent.
func (a *TaskArena) Get(id string) *Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tasks[id]
}

// Children returns the tasks whose ParentID equals the given id, in
// insertion order.
func (a *TaskArena) Children(parentID string) []*Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*Task
	for _, id := range a.order {
		if t := a.tasks[id]; t.ParentID == parentID {
			out = append(out, t)
		}
	}
	return out
}

// All returns the tasks in insertion order.
func (a *TaskArena) All() []*Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Task, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.tasks[id])
	}
	return out
}

// Snapshot returns value copies of the tasks in insertion order. Use it for
// read-only views handed outside the session, e.g. status polling, where the
// caller must not observe concurrent status writes on the shared records.
func (a *TaskArena) Snapshot() []Task {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Task, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.tasks[id])
	}
	return out
}

// Len returns the number of tasks in the arena.
func (a *TaskArena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.order)
}

// SetStatus updates the status of a task in place.
func (a *TaskArena) SetStatus(id string, status TaskStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if t, ok := a.tasks[id]; ok {
		t.Status = status
	}
}
