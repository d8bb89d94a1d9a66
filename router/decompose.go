package router

// Category defines a class of work derived from keyword matching against the
// goal text. Phase orders categories into a pipeline; DependsOn links a
// category's task to a parent task by category name.
type Category struct {
	Name           string
	Keywords       []string
	Specialization string
	Phase          int
	DependsOn      []string
}

// DefaultCategories is the keyword → subtask mapping table used when no
// custom table is supplied.
var DefaultCategories = []Category{
	{Name: "design", Keywords: []string{"design", "architect", "structure", "plan", "schema", "model", "api"}, Specialization: "architect", Phase: 0},
	{Name: "implement", Keywords: []string{"build", "implement", "create", "develop", "code", "write", "add", "feature", "endpoint", "handler", "service"}, Specialization: "coder", Phase: 1, DependsOn: []string{"design"}},
	{Name: "test", Keywords: []string{"test", "spec", "coverage", "unit", "integration", "validate"}, Specialization: "tester", Phase: 2, DependsOn: []string{"implement"}},
	{Name: "security", Keywords: []string{"security", "vulnerability", "threat", "auth", "encrypt"}, Specialization: "auditor", Phase: 2, DependsOn: []string{"implement"}},
	{Name: "docs", Keywords: []string{"document", "readme", "docs", "guide"}, Specialization: "writer", Phase: 2, DependsOn: []string{"implement"}},
	{Name: "review", Keywords: []string{"review", "audit", "inspect", "quality", "check"}, Specialization: "reviewer", Phase: 3, DependsOn: []string{"implement"}},
	{Name: "deploy", Keywords: []string{"deploy", "release", "ship", "rollout", "pipeline"}, Specialization: "deployer", Phase: 4, DependsOn: []string{"review"}},
}

// DefaultPipeline lists the category names applied when the goal text
// matches no keywords at all.
var DefaultPipeline = []string{"design", "implement", "test", "review"}
