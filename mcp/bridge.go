// Package mcp exposes the desktop's registered actions as MCP tools. The
// Bridge lives in the worker context: it owns the tool registry, answers
// JSON-RPC requests and relays tool execution to the main context over a
// bridge.Port.
package mcp

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/sahilm/fuzzy"

	"deskos/bridge"
	"deskos/component"
	"deskos/pending"
)

// ServerName and ServerVersion are reported by initialize.
const (
	ServerName    = "deskos"
	ServerVersion = "0.1.0"
)

// Bridge is the worker-side MCP tool surface.
type Bridge struct {
	mu         sync.RWMutex
	tools      map[string]*toolEntry
	aliases    map[string]string // provider-safe name -> tool name
	registered map[string]bool   // component ids already auto-registered

	port    bridge.Port
	calls   *pending.Table[bridge.Message]
	logger  *slog.Logger
	version string
	format  string // tools/list format when the request names none
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets how long ExecuteTool waits for the main context.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.calls = pending.New[bridge.Message](d) }
}

// WithLogger sets the bridge's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithVersion overrides the version reported by initialize.
func WithVersion(v string) Option {
	return func(b *Bridge) { b.version = v }
}

// WithDefaultFormat sets the tools/list format used when a request does
// not name one. Unknown formats are ignored.
func WithDefaultFormat(format string) Option {
	return func(b *Bridge) {
		if ValidFormat(format) {
			b.format = format
		}
	}
}

// NewBridge creates a bridge that talks to the main context through port.
// Call Run to start processing incoming messages.
func NewBridge(port bridge.Port, opts ...Option) *Bridge {
	b := &Bridge{
		tools:      make(map[string]*toolEntry),
		aliases:    make(map[string]string),
		registered: make(map[string]bool),
		port:       port,
		calls:      pending.New[bridge.Message](pending.DefaultTimeout),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		version:    ServerVersion,
		format:     FormatMCP,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "mcp-bridge")
	return b
}

// RegisterTool adds the tool "componentID.actionID". Registration is
// create-only: an existing name yields ErrToolExists and leaves the
// registry unchanged.
func (b *Bridge) RegisterTool(componentID, actionID, description string, schema mcptypes.ToolInputSchema) error {
	if componentID == "" || actionID == "" {
		return fmt.Errorf("%w: component and action ids are required", ErrInvalidTool)
	}
	name := ToolName(componentID, actionID)
	if schema.Type == "" {
		schema.Type = "object"
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}
	b.tools[name] = &toolEntry{
		def: mcptypes.Tool{
			Name:        name,
			Description: description,
			InputSchema: schema,
		},
		componentID: componentID,
		actionID:    actionID,
	}
	b.aliases[ProviderToolName(name)] = name
	b.logger.Debug("tool registered", "tool", name)
	return nil
}

// UnregisterTool removes a tool. When no tool of the same component
// remains, the component is forgotten so a later announcement registers it
// again.
func (b *Bridge) UnregisterTool(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.tools[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	delete(b.tools, name)
	delete(b.aliases, ProviderToolName(name))

	for _, other := range b.tools {
		if other.componentID == entry.componentID {
			return nil
		}
	}
	delete(b.registered, entry.componentID)
	return nil
}

// UnregisterComponentTools removes every tool of componentID and returns
// how many were removed.
func (b *Bridge) UnregisterComponentTools(componentID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for name, entry := range b.tools {
		if entry.componentID == componentID {
			delete(b.tools, name)
			delete(b.aliases, ProviderToolName(name))
			removed++
		}
	}
	delete(b.registered, componentID)
	if removed > 0 {
		b.logger.Info("component tools unregistered", "component_id", componentID, "tools", removed)
	}
	return removed
}

// AutoRegisterFromComponents registers a tool for every declared action of
// each component not seen before. Components already seen are skipped as a
// whole; a failing action is recorded and the rest are still registered.
func (b *Bridge) AutoRegisterFromComponents(components []component.Component) AutoRegisterResult {
	var result AutoRegisterResult

	for _, c := range components {
		b.mu.Lock()
		seen := b.registered[c.ID]
		if !seen && c.ID != "" {
			b.registered[c.ID] = true
		}
		b.mu.Unlock()

		if c.ID == "" {
			result.Errors = append(result.Errors, "component without id")
			continue
		}
		if seen {
			result.Skipped++
			continue
		}

		for _, action := range c.Actions {
			description := action.Description
			if description == "" {
				description = fmt.Sprintf("%s: %s", componentLabel(c), action.ID)
			}
			err := b.RegisterTool(c.ID, action.ID, description, SchemaFromParameters(action.Parameters))
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s.%s: %v", c.ID, action.ID, err))
				continue
			}
			result.Registered++
		}
	}

	if result.Registered > 0 || len(result.Errors) > 0 {
		b.logger.Info("auto-registered tools",
			"registered", result.Registered,
			"skipped", result.Skipped,
			"errors", len(result.Errors))
	}
	return result
}

func componentLabel(c component.Component) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

// Tools returns the registered tool definitions sorted by name.
func (b *Bridge) Tools() []mcptypes.Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]mcptypes.Tool, 0, len(b.tools))
	for _, entry := range b.tools {
		out = append(out, entry.def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Tool returns the definition registered under name. Provider-safe names
// produced by ProviderToolName are accepted too.
func (b *Bridge) Tool(name string) (mcptypes.Tool, bool) {
	entry, ok := b.lookup(name)
	if !ok {
		return mcptypes.Tool{}, false
	}
	return entry.def, true
}

func (b *Bridge) lookup(name string) (toolEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if entry, ok := b.tools[name]; ok {
		return *entry, true
	}
	if canonical, ok := b.aliases[name]; ok {
		if entry, ok := b.tools[canonical]; ok {
			return *entry, true
		}
	}
	return toolEntry{}, false
}

// IsComponentRegistered reports whether componentID was auto-registered.
func (b *Bridge) IsComponentRegistered(componentID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registered[componentID]
}

// Search fuzzy-matches query against tool names and descriptions, best
// match first. An empty query returns every tool.
func (b *Bridge) Search(query string) []mcptypes.Tool {
	tools := b.Tools()
	if strings.TrimSpace(query) == "" {
		return tools
	}

	haystack := make([]string, len(tools))
	for i, t := range tools {
		haystack[i] = t.Name + " " + t.Description
	}

	matches := fuzzy.Find(query, haystack)
	out := make([]mcptypes.Tool, 0, len(matches))
	for _, m := range matches {
		out = append(out, tools[m.Index])
	}
	return out
}

// PendingCalls returns the number of tool calls waiting for the main
// context.
func (b *Bridge) PendingCalls() int {
	return b.calls.Len()
}
