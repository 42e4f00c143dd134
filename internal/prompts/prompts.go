package prompts

import "github.com/ureshii/partner/internal/domain"

// System prompts for the pipeline agent roles. Each stage sends its role's
// system prompt alongside the accumulated stage input.

// CoderSystemPrompt instructs the code-generation stage.
const CoderSystemPrompt = `You are Coder AI. Produce clean, runnable code that fulfills the user's prompt. Include only code, no explanations, unless the prompt explicitly asks for them.`

// DebuggerSystemPrompt instructs the code-review stage.
const DebuggerSystemPrompt = `You are Debugger AI. Review the provided code for bugs, edge cases, and correctness issues. Output a concise report listing each problem found with its location. If the code is correct, say so explicitly.`

// FixerSystemPrompt instructs the repair stage.
const FixerSystemPrompt = `You are Fixer AI. You receive code and a debugger report. Apply the fixes the report calls for and return only the corrected code, no explanations.`

// ChatbotSystemPrompt instructs the conversational stage.
const ChatbotSystemPrompt = `You are a helpful assistant. Answer the user's request directly and conversationally.`

// ForRole returns the system prompt for an agent role, empty for unknown
// roles (the provider omits the system message in that case).
func ForRole(role domain.AgentRole) string {
	switch role {
	case domain.RoleCoder:
		return CoderSystemPrompt
	case domain.RoleDebugger:
		return DebuggerSystemPrompt
	case domain.RoleFixer:
		return FixerSystemPrompt
	case domain.RoleChatbot:
		return ChatbotSystemPrompt
	}
	return ""
}
