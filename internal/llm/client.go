package llm

import "context"

type Message struct {
	Role    string
	Content string
}

// Tool describes a function the model may request to call.
type Tool struct {
	Type     string
	Function Function
}

type Function struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall is a tool-execution request returned by the model.
type ToolCall struct {
	ID       string
	Type     string
	Function FunctionCall
}

type FunctionCall struct {
	Name      string
	Arguments map[string]interface{}
}

type Response struct {
	Content          string
	Model            string
	ToolCalls        []ToolCall
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
	GenerateWithTools(ctx context.Context, messages []Message, tools []Tool) (Response, error)
}
