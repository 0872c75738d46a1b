package snapshot

import (
	"fmt"
	"strings"

	"github.com/kibo-snap/kibo/internal/kiboerr"
)

const maxNameLength = 255

var reservedNames = map[string]bool{
	".":          true,
	"..":         true,
	"store":      true,
	"manifests":  true,
	"hash_cache": true,
}

// ValidateName enforces the naming policy a snapshot name must satisfy
// before any manifest work begins.
func ValidateName(name string) error {
	if name == "" {
		return kiboerr.New(kiboerr.KindPolicyViolation, name, fmt.Errorf("snapshot name cannot be empty"))
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return kiboerr.New(kiboerr.KindPolicyViolation, name, fmt.Errorf("snapshot name contains invalid characters"))
	}
	if strings.HasPrefix(name, ".") {
		return kiboerr.New(kiboerr.KindPolicyViolation, name, fmt.Errorf("snapshot name cannot start with a dot"))
	}
	if len(name) > maxNameLength {
		return kiboerr.New(kiboerr.KindPolicyViolation, name, fmt.Errorf("snapshot name is too long (max %d characters)", maxNameLength))
	}
	if reservedNames[name] {
		return kiboerr.New(kiboerr.KindPolicyViolation, name, fmt.Errorf("snapshot name is reserved"))
	}
	return nil
}
