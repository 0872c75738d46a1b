package logging

// Level represents a log verbosity level. Its values are ordered and
// comparable.
type Level uint

const (
	// LevelDisabled disables all logging output.
	LevelDisabled Level = iota
	// LevelError logs only errors.
	LevelError
	// LevelWarn logs errors and warnings.
	LevelWarn
	// LevelInfo logs errors, warnings, and informational messages.
	LevelInfo
	// LevelDebug logs everything, including fine-grained diagnostics.
	LevelDebug
)

// NameToLevel converts a textual level specification to a Level. It returns
// false if the name is not recognized.
func NameToLevel(name string) (Level, bool) {
	switch name {
	case "disabled":
		return LevelDisabled, true
	case "error":
		return LevelError, true
	case "warn":
		return LevelWarn, true
	case "info":
		return LevelInfo, true
	case "debug":
		return LevelDebug, true
	default:
		return LevelDisabled, false
	}
}

// String returns a human-readable representation of the level.
func (l Level) String() string {
	switch l {
	case LevelDisabled:
		return "disabled"
	case LevelError:
		return "error"
	case LevelWarn:
		return "warn"
	case LevelInfo:
		return "info"
	case LevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}
