package addon

// State is the lifecycle state of an addon inside a runtime.
type State int

const (
	StateRegistered  State = iota // Registered, not yet processed
	StateInstalled                // Install() succeeded
	StateInitialized              // Init() succeeded, serving entries
	StateDisabled                 // Disable() succeeded, stopped
	StateFailed                   // Install() or Init() failed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateInstalled:
		return "installed"
	case StateInitialized:
		return "initialized"
	case StateDisabled:
		return "disabled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether the addon is out of the normal flow.
func (s State) IsTerminal() bool {
	return s == StateFailed || s == StateDisabled
}
