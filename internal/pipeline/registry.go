package pipeline

import (
	"fmt"

	"github.com/ureshii/partner/internal/config"
	"github.com/ureshii/partner/internal/domain"
)

// StageSpec describes one step of a pipeline: a stage name, the agent role
// it is bound to, and the model used when the job carries no override.
type StageSpec struct {
	Name         string
	Role         domain.AgentRole
	DefaultModel string
}

// Registry maps pipeline names to their ordered stage lists. Contents are
// built once at startup and read-only afterwards, so lookups need no
// locking.
type Registry struct {
	pipelines     map[string][]StageSpec
	allowedModels map[string]struct{}
}

// NewRegistry builds the static pipeline registry from configuration.
// Registered pipelines:
//   - "ureshii-p1": coder -> debugger -> fixer
//   - "chat":       chatbot
func NewRegistry(cfg *config.PipelineConfig) *Registry {
	pipelines := map[string][]StageSpec{
		"ureshii-p1": {
			{Name: "coder", Role: domain.RoleCoder, DefaultModel: cfg.CoderModel},
			{Name: "debugger", Role: domain.RoleDebugger, DefaultModel: cfg.DebuggerModel},
			{Name: "fixer", Role: domain.RoleFixer, DefaultModel: cfg.FixerModel},
		},
		"chat": {
			{Name: "chatbot", Role: domain.RoleChatbot, DefaultModel: cfg.ChatbotModel},
		},
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedModels))
	for _, m := range cfg.AllowedModels {
		allowed[m] = struct{}{}
	}

	return &Registry{pipelines: pipelines, allowedModels: allowed}
}

// Resolve returns the ordered stage list for a pipeline name.
func (r *Registry) Resolve(name string) ([]StageSpec, error) {
	stages, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownPipeline, name)
	}
	return stages, nil
}

// Known reports whether a pipeline name is registered.
func (r *Registry) Known(name string) bool {
	_, ok := r.pipelines[name]
	return ok
}

// ModelAllowed reports whether a model override is on the allow-list.
// An empty allow-list permits everything.
func (r *Registry) ModelAllowed(model string) bool {
	if len(r.allowedModels) == 0 {
		return true
	}
	_, ok := r.allowedModels[model]
	return ok
}
