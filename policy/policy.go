// Package policy names the duplicate-registration behaviours used by the
// desktop registries. Each registry is constructed with one of these values
// so the difference between them is visible at the call site.
package policy

// Duplicate decides what a registry does when an id is registered twice.
type Duplicate int

const (
	// OverwriteWithWarning replaces the existing entry and logs a warning.
	// Used by the plugin registry and the action handler table.
	OverwriteWithWarning Duplicate = iota

	// RejectWithError keeps the existing entry and reports an error.
	// Used by the MCP tool registry.
	RejectWithError

	// IgnoreFirstWins keeps the existing entry silently.
	// Used by the component registry, where remotes re-announce on remount.
	IgnoreFirstWins
)

func (d Duplicate) String() string {
	switch d {
	case OverwriteWithWarning:
		return "overwrite-with-warning"
	case RejectWithError:
		return "reject-with-error"
	case IgnoreFirstWins:
		return "ignore-first-wins"
	default:
		return "unknown"
	}
}
