// Package kiboversion holds kibo's version identifier and an
// environment-driven debug switch read once at package initialisation.
package kiboversion

import (
	"fmt"
	"os"
)

const (
	// Major is kibo's current major version.
	Major = 0
	// Minor is kibo's current minor version.
	Minor = 1
	// Patch is kibo's current patch version.
	Patch = 0
)

// Version is the dotted major.minor.patch string reported by "kibo --version"
// and recorded in every manifest's tool_version field.
var Version = fmt.Sprintf("%d.%d.%d", Major, Minor, Patch)

// DebugEnabled controls whether verbose internal diagnostics are enabled,
// toggled by the KIBO_DEBUG environment variable.
var DebugEnabled = os.Getenv("KIBO_DEBUG") == "1"
