// Package tools exposes scheduler operations to the agent as callable
// tools with JSON arguments and JSON Schema parameter descriptions.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description tells the agent when and how to use the tool.
	Description() string

	// Parameters returns a JSON Schema object describing the tool's input.
	Parameters() map[string]any

	// Execute runs the tool. args is a JSON-encoded object.
	Execute(ctx context.Context, args string) (string, error)
}

// Registry manages the collection of available tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by its name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name() < tools[j].Name() })
	return tools
}

// ToSchema returns function definitions for every registered tool.
func (r *Registry) ToSchema() []ToolDefinition {
	tools := r.List()
	schemas := make([]ToolDefinition, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return schemas
}

// ToJSON renders ToSchema as indented JSON.
func (r *Registry) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r.ToSchema(), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schemas: %w", err)
	}
	return string(data), nil
}

// ToolDefinition represents a tool definition in function calling format.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a request to run a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolResult is the outcome of a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// ExecuteToolCall runs tc against the registry. Tool failures are reported
// in the result; the returned error is reserved for a nil registry. A
// positive timeout bounds the call.
func ExecuteToolCall(ctx context.Context, registry *Registry, tc ToolCall, timeout time.Duration) (ToolResult, error) {
	if registry == nil {
		return ToolResult{}, errors.New("nil tool registry")
	}

	tool, ok := registry.Get(tc.Name)
	if !ok {
		return ToolResult{
			ToolCallID: tc.ID,
			Error:      fmt.Sprintf("tool not found: %s", tc.Name),
		}, nil
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type toolResult struct {
		result string
		err    error
	}
	resultChan := make(chan toolResult, 1)
	go func() {
		res, err := tool.Execute(execCtx, tc.Arguments)
		resultChan <- toolResult{result: res, err: err}
	}()

	select {
	case res := <-resultChan:
		if res.err != nil {
			return ToolResult{ToolCallID: tc.ID, Error: describeError(res.err)}, nil
		}
		return ToolResult{ToolCallID: tc.ID, Content: res.result}, nil

	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			return ToolResult{
				ToolCallID: tc.ID,
				Error:      fmt.Sprintf("tool execution timed out after %v", timeout),
				TimedOut:   true,
			}, nil
		}
		return ToolResult{
			ToolCallID: tc.ID,
			Error:      fmt.Sprintf("tool execution cancelled: %v", execCtx.Err()),
		}, nil
	}
}

func describeError(err error) string {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr.ToLLMContext()
	}
	return err.Error()
}
