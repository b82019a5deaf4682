package eventbus

// Event names emitted by the desktop core.
const (
	PluginRegistered       = "plugin:registered"
	PluginActivated        = "plugin:activated"
	PluginActivationFailed = "plugin:activationFailed"
	PluginDeactivated      = "plugin:deactivated"
	PluginUnregistered     = "plugin:unregistered"

	ComponentRegistered   = "api:component:registered"
	ComponentUnregistered = "api:component:unregistered"
	ComponentStateChanged = "api:component:stateChanged"

	ActionExecuting = "api:action:executing"
	ActionExecuted  = "api:action:executed"
	ActionFailed    = "api:action:failed"

	// RegisterActionHandler lets a plugin install a handler through the bus
	// instead of calling the registry directly.
	RegisterActionHandler = "api:registerActionHandler"

	WindowChanged = "window:changed"
)

// CoreEvents lists every event the core emits or listens to.
var CoreEvents = []string{
	PluginRegistered,
	PluginActivated,
	PluginActivationFailed,
	PluginDeactivated,
	PluginUnregistered,
	ComponentRegistered,
	ComponentUnregistered,
	ComponentStateChanged,
	ActionExecuting,
	ActionExecuted,
	ActionFailed,
	RegisterActionHandler,
	WindowChanged,
}
