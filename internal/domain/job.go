package domain

import "time"

// JobStatus represents the lifecycle state of a pipeline job.
// Transitions are forward-only: pending -> running -> completed|failed.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ExecutionMode selects how a submitted job is executed.
type ExecutionMode string

const (
	ModeSync  ExecutionMode = "sync"
	ModeQueue ExecutionMode = "queue"
)

// AgentRole identifies the logical agent bound to a pipeline stage.
type AgentRole string

const (
	RoleCoder    AgentRole = "coder"
	RoleDebugger AgentRole = "debugger"
	RoleFixer    AgentRole = "fixer"
	RoleChatbot  AgentRole = "chatbot"
)

// JobOptions is the configuration snapshot resolved once at job creation.
// Model overrides are keyed by agent role; GitHub fields carry optional
// external context forwarded to stage prompts. Never re-resolved.
type JobOptions struct {
	Mode          ExecutionMode `json:"mode"`
	PipelineName  string        `json:"pipeline_name"`
	CoderModel    string        `json:"coder_model,omitempty"`
	DebuggerModel string        `json:"debugger_model,omitempty"`
	FixerModel    string        `json:"fixer_model,omitempty"`
	ChatbotModel  string        `json:"chatbot_model,omitempty"`
	GithubRepo    string        `json:"github_repo,omitempty"`
	GithubBranch  string        `json:"github_branch,omitempty"`
	GithubFile    string        `json:"github_file,omitempty"`
}

// ModelForRole returns the per-role model override, empty if none was set.
func (o JobOptions) ModelForRole(role AgentRole) string {
	switch role {
	case RoleCoder:
		return o.CoderModel
	case RoleDebugger:
		return o.DebuggerModel
	case RoleFixer:
		return o.FixerModel
	case RoleChatbot:
		return o.ChatbotModel
	}
	return ""
}

// StageResult is the recorded outcome of one stage execution attempt that
// reached a verdict. Entries are append-only and never mutated.
type StageResult struct {
	StageName  string    `json:"stage_name"`
	AgentRole  AgentRole `json:"agent_role"`
	ModelUsed  string    `json:"model_used"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Job is a single submitted request tracked through pipeline execution.
// StageCursor counts durably completed stages and doubles as the
// optimistic-concurrency token for stage advancement: concurrent
// deliveries race on it and only one advance succeeds.
type Job struct {
	ID           string        `gorm:"type:text;primaryKey" json:"id"`
	Owner        string        `gorm:"type:text;index" json:"owner"`
	Prompt       string        `gorm:"type:text;not null" json:"prompt"`
	PipelineName string        `gorm:"type:text;not null" json:"pipeline_name"`
	Options      JobOptions    `gorm:"serializer:json" json:"options"`
	Status       JobStatus     `gorm:"default:pending;index" json:"status"`
	StageResults []StageResult `gorm:"serializer:json" json:"stage_results"`
	StageCursor  int           `gorm:"default:0" json:"-"`
	Result       string        `json:"result,omitempty"`
	LastError    string        `json:"last_error,omitempty"`
	AttemptCount int           `gorm:"default:0" json:"attempt_count"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Job.
func (Job) TableName() string {
	return "jobs"
}
