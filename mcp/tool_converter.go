package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"

	"deskos/component"
)

// Tool list formats accepted by tools/list.
const (
	FormatMCP        = "mcp"
	FormatOpenAI     = "openai"
	FormatOpenRouter = "openrouter"
	FormatAnthropic  = "anthropic"
	FormatOllama     = "ollama"
)

// ValidFormat reports whether f names a supported tool list format. The
// empty string means FormatMCP.
func ValidFormat(f string) bool {
	switch f {
	case "", FormatMCP, FormatOpenAI, FormatOpenRouter, FormatAnthropic, FormatOllama:
		return true
	}
	return false
}

// ToolName joins a component id and an action id into a tool name.
func ToolName(componentID, actionID string) string {
	return componentID + "." + actionID
}

// ProviderToolName rewrites name into the character set LLM providers
// accept for function names (letters, digits, '_' and '-'). Dots become a
// double underscore so "notepad.setValue" reads as "notepad__setValue".
func ProviderToolName(name string) string {
	var b strings.Builder
	b.Grow(len(name) + 4)
	for _, r := range name {
		switch {
		case r == '.':
			b.WriteString("__")
		case r == '_' || r == '-',
			r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// SchemaFromParameters builds the JSON schema for an action's parameters.
// Parameters without a type are treated as strings.
func SchemaFromParameters(params []component.Parameter) mcptypes.ToolInputSchema {
	schema := mcptypes.ToolInputSchema{
		Type:       "object",
		Properties: make(map[string]any, len(params)),
	}
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]any{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if len(p.Enum) > 0 {
			enum := make([]any, len(p.Enum))
			for i, v := range p.Enum {
				enum[i] = v
			}
			prop["enum"] = enum
		}
		if typ == "array" {
			items := p.Items
			if items == "" {
				items = "string"
			}
			prop["items"] = map[string]any{"type": items}
		}
		schema.Properties[p.Name] = prop
		if p.Required {
			schema.Required = append(schema.Required, p.Name)
		}
	}
	return schema
}

// ConvertTools reshapes MCP tools for the named provider format. Names are
// rewritten with ProviderToolName; schemas carry over unchanged.
func ConvertTools(format string, tools []mcptypes.Tool) (any, error) {
	switch format {
	case "", FormatMCP:
		return tools, nil
	case FormatOpenAI, FormatOpenRouter:
		return convertEach(tools, openAITool)
	case FormatAnthropic:
		return convertEach(tools, anthropicTool)
	case FormatOllama:
		return convertEach(tools, ollamaTool)
	default:
		return nil, fmt.Errorf("unsupported tool format %q", format)
	}
}

// providerTool is the common starting point of every provider format: a
// provider-safe name and the input schema as a plain JSON schema object.
type providerTool struct {
	name        string
	description string
	schema      map[string]any
}

func newProviderTool(tool mcptypes.Tool) providerTool {
	in := tool.InputSchema
	schema := map[string]any{"type": in.Type, "properties": in.Properties}
	if in.Type == "" {
		schema["type"] = "object"
	}
	if in.Properties == nil {
		schema["properties"] = map[string]any{}
	}
	if len(in.Required) > 0 {
		schema["required"] = in.Required
	}
	if in.Defs != nil {
		schema["$defs"] = in.Defs
	}
	return providerTool{
		name:        ProviderToolName(tool.Name),
		description: tool.Description,
		schema:      schema,
	}
}

func convertEach[T any](tools []mcptypes.Tool, convert func(providerTool) (T, error)) ([]T, error) {
	out := make([]T, 0, len(tools))
	for _, tool := range tools {
		converted, err := convert(newProviderTool(tool))
		if err != nil {
			return nil, fmt.Errorf("converting %s: %w", tool.Name, err)
		}
		out = append(out, converted)
	}
	return out, nil
}

// openAITool builds the function tool shared by OpenAI and OpenRouter.
func openAITool(t providerTool) (openai.ChatCompletionToolUnionParam, error) {
	return openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
		Name:        t.name,
		Description: openai.String(t.description),
		Parameters:  openai.FunctionParameters(t.schema),
	}), nil
}

// anthropicTool builds a custom tool. The SDK fixes the schema type to
// "object"; keys it has no field for travel as extra fields.
func anthropicTool(t providerTool) (anthropic.ToolUnionParam, error) {
	schema := anthropic.ToolInputSchemaParam{Properties: t.schema["properties"]}
	for key, value := range t.schema {
		switch key {
		case "type", "properties":
		case "required":
			schema.Required, _ = value.([]string)
		default:
			if schema.ExtraFields == nil {
				schema.ExtraFields = make(map[string]any)
			}
			schema.ExtraFields[key] = value
		}
	}

	tool := anthropic.ToolUnionParamOfTool(schema, t.name)
	if t.description != "" {
		tool.OfTool.Description = anthropic.String(t.description)
	}
	return tool, nil
}

// ollamaTool decodes the schema into the Ollama parameter types, which
// accept union types and anyOf the same way JSON schema writes them.
func ollamaTool(t providerTool) (api.Tool, error) {
	data, err := json.Marshal(t.schema)
	if err != nil {
		return api.Tool{}, err
	}
	var params api.ToolFunctionParameters
	if err := json.Unmarshal(data, &params); err != nil {
		return api.Tool{}, err
	}
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        t.name,
			Description: t.description,
			Parameters:  params,
		},
	}, nil
}
