// Package router decomposes goals into fingerprinted tasks and annotates
// them with skill hints from the memory store.
package router

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hiveline/hive/core"
	"github.com/hiveline/hive/logging"
)

// Options configures a Router.
type Options struct {
	// ConfidenceFloor is the minimum skill success rate below which a
	// matching skill is not attached as a hint.
	ConfidenceFloor float64
	// RetryBudget is assigned to every produced task.
	RetryBudget int
	// Categories overrides the default keyword table.
	Categories []Category
	// Logger used for routing decisions.
	Logger logging.Logger
}

// Router turns a goal into an ordered set of tasks.
type Router struct {
	memory     core.MemoryStore
	floor      float64
	budget     int
	categories []Category
	logger     logging.Logger
}

// New creates a Router backed by the given memory store.
func New(memory core.MemoryStore, optFns ...func(o *Options)) *Router {
	opts := Options{
		ConfidenceFloor: 0.7,
		RetryBudget:     2,
		Categories:      DefaultCategories,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Router{
		memory:     memory,
		floor:      opts.ConfidenceFloor,
		budget:     opts.RetryBudget,
		categories: opts.Categories,
		logger:     opts.Logger,
	}
}

// Route decomposes the goal into tasks, fingerprints each one, and attaches
// a skill hint when the memory store holds a skill for the task's class with
// a success rate at or above the confidence floor. Tasks are returned in
// pipeline order; for identical goal text and an unchanged skill set the
// output descriptions, specializations, and hints are identical across calls.
func (r *Router) Route(ctx context.Context, goal core.Goal) ([]*core.Task, error) {
	cats := r.match(goal.Text)
	if len(cats) == 0 {
		return nil, fmt.Errorf("goal %q: %w", goal.ID, core.ErrEmptyDecomposition)
	}

	byName := make(map[string]*core.Task, len(cats))
	tasks := make([]*core.Task, 0, len(cats))
	for _, cat := range cats {
		task := &core.Task{
			ID:             core.NewID(),
			GoalID:         goal.ID,
			Description:    fmt.Sprintf("%s: %s", cat.Name, goal.Text),
			Specialization: cat.Specialization,
			Status:         core.TaskPending,
			RetryBudget:    r.budget,
		}
		task.Fingerprint = core.FingerprintOf(task.Description, task.Specialization)

		for _, dep := range cat.DependsOn {
			if parent, ok := byName[dep]; ok {
				task.ParentID = parent.ID
				break
			}
		}

		r.annotate(ctx, task)

		byName[cat.Name] = task
		tasks = append(tasks, task)
	}

	r.logger.Debug("goal routed", "goal_id", goal.ID, "tasks", len(tasks))
	return tasks, nil
}

// match returns the categories whose keywords appear in the goal text,
// ordered by phase then name. A goal that matches nothing falls back to the
// default pipeline; blank goal text matches nothing and yields no categories.
func (r *Router) match(text string) []Category {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return nil
	}

	var matched []Category
	for _, cat := range r.categories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lowered, kw) {
				matched = append(matched, cat)
				break
			}
		}
	}
	if len(matched) == 0 {
		index := make(map[string]Category, len(r.categories))
		for _, cat := range r.categories {
			index[cat.Name] = cat
		}
		for _, name := range DefaultPipeline {
			if cat, ok := index[name]; ok {
				matched = append(matched, cat)
			}
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Phase != matched[j].Phase {
			return matched[i].Phase < matched[j].Phase
		}
		return matched[i].Name < matched[j].Name
	})
	return matched
}

// annotate attaches a skill hint to the task when one is available above the
// confidence floor, and records the use on the store. Hint lookup failures
// are logged and ignored; routing never fails because memory is cold.
func (r *Router) annotate(ctx context.Context, task *core.Task) {
	skill, ok, err := r.memory.FindSkill(ctx, task.Fingerprint)
	if err != nil {
		r.logger.Warn("skill lookup failed", "fingerprint", task.Fingerprint, "error", err)
		return
	}
	if !ok || skill.SuccessRate < r.floor {
		return
	}
	task.Hint = &core.SkillHint{
		SkillID:     skill.ID,
		SkillName:   skill.Name,
		Procedure:   skill.Procedure,
		SuccessRate: skill.SuccessRate,
	}
	if err := r.memory.RecordSkillUse(ctx, skill.ID); err != nil {
		r.logger.Warn("skill use not recorded", "skill_id", skill.ID, "error", err)
	}
	r.logger.Debug("task warmed", "task_id", task.ID, "skill", skill.Name, "success_rate", skill.SuccessRate)
}
