// Package decompose implements the T component: a tolerant multi-layer
// parser that turns raw (often malformed) LLM output into a validated DAG
// of subtasks, normalizes field aliases, resolves dependency references,
// selects an execution strategy, and detects resource conflicts. Grounded
// on C360Studio-semspec's processor/task-dispatcher (phase dependency
// graph: inDegree map + Kahn's-algorithm cycle check, parallel-wave
// extraction) and None9527-NGOClaw's gateway/internal/domain/agent/dag.go
// (DAG node/status model, DFS-free topological validation via repeated
// in-degree extraction).
package decompose

// SubtaskType is a closed enum; unknown incoming strings normalize to
// Implement per spec §4.6's "dynamic duck-typed LLM fields" redesign note.
type SubtaskType string

const (
	TypeResearch  SubtaskType = "research"
	TypeAnalysis  SubtaskType = "analysis"
	TypeDesign    SubtaskType = "design"
	TypeImplement SubtaskType = "implement"
	TypeTest      SubtaskType = "test"
	TypeRefactor  SubtaskType = "refactor"
	TypeReview    SubtaskType = "review"
	TypeDocument  SubtaskType = "document"
	TypeIntegrate SubtaskType = "integrate"
	TypeDeploy    SubtaskType = "deploy"
	TypeMerge     SubtaskType = "merge"
)

var validTypes = map[SubtaskType]bool{
	TypeResearch: true, TypeAnalysis: true, TypeDesign: true, TypeImplement: true,
	TypeTest: true, TypeRefactor: true, TypeReview: true, TypeDocument: true,
	TypeIntegrate: true, TypeDeploy: true, TypeMerge: true,
}

// SubtaskStatus tracks a subtask's place in the swarm's execution lifecycle.
type SubtaskStatus string

const (
	StatusPending   SubtaskStatus = "pending"
	StatusReady     SubtaskStatus = "ready"
	StatusRunning   SubtaskStatus = "running"
	StatusCompleted SubtaskStatus = "completed"
	StatusFailed    SubtaskStatus = "failed"
	StatusBlocked   SubtaskStatus = "blocked"
)

// Subtask is the spec §4.6 normalized unit of work.
type Subtask struct {
	ID             string
	Description    string
	Type           SubtaskType
	Complexity     int
	Dependencies   []string
	Parallelizable bool
	Status         SubtaskStatus
	Reads          []string
	Modifies       []string
	RelevantFiles  []string
	SuggestedRole  string
	Priority       string // "critical" | "high" | "" (spec §4.7 dispatch priority)
}

// Strategy is the chosen execution strategy for a decomposition.
type Strategy string

const (
	StrategySequential  Strategy = "sequential"
	StrategyParallel    Strategy = "parallel"
	StrategyHierarchical Strategy = "hierarchical"
	StrategyAdaptive    Strategy = "adaptive"
	StrategyPipeline    Strategy = "pipeline"
)

// ConflictSeverity classifies a detected resource conflict.
type ConflictSeverity string

const (
	SeverityError   ConflictSeverity = "error"
	SeverityWarning ConflictSeverity = "warning"
)

// Conflict is a detected resource collision between two subtasks that can
// run in the same wave.
type Conflict struct {
	Kind     string // "write-write" | "read-write"
	Severity ConflictSeverity
	PathA    string
	TaskA    string
	TaskB    string
}

// ValidationIssue is either a blocking error or an advisory warning.
type ValidationIssue struct {
	Severity ConflictSeverity
	Message  string
}

// DependencyGraph is the spec §4.1 data model: adjacency maps, topological
// order, parallel waves, and any detected cycles.
type DependencyGraph struct {
	Dependencies   map[string][]string // id -> ids it depends on
	Dependents     map[string][]string // id -> ids that depend on it
	ExecutionOrder []string
	ParallelGroups [][]string
	Cycles         [][]string
}

// Decomposition is the full output of decomposing one task.
type Decomposition struct {
	Subtasks   []Subtask
	Graph      DependencyGraph
	Strategy   Strategy
	Conflicts  []Conflict
	Issues     []ValidationIssue
	Reasoning  []string // one entry per parser layer attempted, plus any llm.fallback notes
	Valid      bool
}
