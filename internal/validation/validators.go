package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	// POSIX portable account name, as useradd accepts it by default.
	userNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_-]*\$?$`)

	// RFC 1123 label
	hostLabelRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)
)

// ValidateUserName validates a system user or group name.
func ValidateUserName(name string) error {
	if name == "" {
		return fmt.Errorf("user name cannot be empty")
	}

	if len(name) > 32 {
		return fmt.Errorf("user name too long (max 32 characters): %s", name)
	}

	if !userNameRegex.MatchString(name) {
		return fmt.Errorf("invalid user name: %s (must be lowercase alphanumeric with -_)", name)
	}

	return nil
}

// ValidateHostname validates a DNS host name made of RFC 1123 labels.
// A single trailing dot is accepted.
func ValidateHostname(name string) error {
	if name == "" {
		return fmt.Errorf("hostname cannot be empty")
	}
	trimmed := strings.TrimSuffix(name, ".")
	if len(trimmed) > 253 {
		return fmt.Errorf("hostname too long (max 253 characters)")
	}
	for _, label := range strings.Split(trimmed, ".") {
		if !hostLabelRegex.MatchString(label) {
			return fmt.Errorf("invalid hostname: %q", name)
		}
	}
	return nil
}

// ValidateAbsPath validates a managed path: absolute, without traversal
// elements or characters that would break a generated config line.
func ValidateAbsPath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}

	if !filepath.IsAbs(path) {
		return fmt.Errorf("path must be absolute: %s", path)
	}

	for _, elem := range strings.Split(path, "/") {
		if elem == ".." {
			return fmt.Errorf("path traversal not allowed: %s", path)
		}
	}

	if strings.Contains(path, "\x00") {
		return fmt.Errorf("null byte in path")
	}

	if strings.ContainsAny(path, "\"\n\r") {
		return fmt.Errorf("path contains a quote or line break: %q", path)
	}

	return nil
}

// ValidateAllowlist checks if a value is in an allowed list
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("value not in allowlist: %s (must be one of: %s)", value, strings.Join(allowed, ", "))
}

// ValidatePortNumber validates a port number
func ValidatePortNumber(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port number: %d (must be 1-65535)", port)
	}
	return nil
}
