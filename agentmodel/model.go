// Package agentmodel defines the provider-agnostic message, usage, and
// provider contract types shared by the resilience, economics, and cache
// boundary components. It models providers as opaque callables per spec
// §6: the core never embeds an LLM, it only describes the shape of a call.
package agentmodel

import "context"

type (
	// ConversationRole is the role of a message in a conversation.
	ConversationRole string

	// Part is a marker interface implemented by all message content
	// fragments (text, tool use, tool result). Kept minimal relative to
	// the teacher's full multimodal Part set since providers are opaque
	// to this core; callers that need richer content model it themselves
	// and pass it through Message.Content.
	Part interface{ isPart() }

	// TextPart is plain text content.
	TextPart struct{ Text string }

	// ToolUsePart declares a tool invocation requested by the model.
	ToolUsePart struct {
		ID    string
		Name  string
		Input any
	}

	// ToolResultPart carries a tool result attached to a later message.
	ToolResultPart struct {
		ToolUseID string
		Content   any
		IsError   bool
	}

	// Message is one turn of the conversation.
	Message struct {
		Role    ConversationRole
		Content []Part
	}

	// StopReason is why the provider stopped generating.
	StopReason string

	// Usage is the typed usage response a provider returns for a single
	// call, the raw material the economics core (B) and cache boundary
	// tracker (C) consume.
	Usage struct {
		InputTokens      int
		OutputTokens     int
		CacheReadTokens  int
		CacheWriteTokens int
		// Cost is the provider-reported cost in USD when available; zero
		// means "not reported", not "free" — callers fall back to a
		// pricing table in that case (spec §4.5).
		Cost float64
	}

	// ToolCall is a single tool invocation extracted from a ChatWithTools
	// response.
	ToolCall struct {
		ID    string
		Name  string
		Args  any
	}

	// ChatOptions carries request-shaping knobs (model, temperature, ...).
	// Kept as an open map since the core treats providers as opaque.
	ChatOptions struct {
		Model  string
		Extra  map[string]any
	}

	// ChatResponse is the result of Provider.Chat.
	ChatResponse struct {
		Content    []Part
		StopReason StopReason
		Usage      Usage
	}

	// ChatWithToolsResponse is the result of Provider.ChatWithTools.
	ChatWithToolsResponse struct {
		Content    []Part
		ToolCalls  []ToolCall
		StopReason StopReason
		Usage      Usage
	}

	// Provider is the external collaborator contract from spec §6. The
	// kernel and resilience layer call through this interface; concrete
	// wire adapters (Anthropic, OpenAI, Bedrock, ...) are out of scope per
	// spec §1 and implement it externally.
	Provider interface {
		Name() string
		Chat(ctx context.Context, messages []Message, opts ChatOptions) (ChatResponse, error)
		ChatWithTools(ctx context.Context, messages []Message, tools []ToolDescriptor, opts ChatOptions) (ChatWithToolsResponse, error)
	}

	// ToolDescriptor is the provider-facing shape of a tool: name,
	// description, and a JSON schema for its arguments. Kept separate
	// from agenttools.Tool so this package has no dependency on the tool
	// registry.
	ToolDescriptor struct {
		Name        string
		Description string
		ArgsSchema  map[string]any
	}
)

const (
	RoleUser      ConversationRole = "user"
	RoleAssistant ConversationRole = "assistant"
	RoleSystem    ConversationRole = "system"

	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

func (TextPart) isPart()       {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
