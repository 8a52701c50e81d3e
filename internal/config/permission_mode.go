package config

import "github.com/wagiedev/agentproto/internal/permission"

// NormalizePermissionMode maps legacy permission mode names to current values.
//
// Legacy mappings:
//   - "acceptAll" -> "bypassPermissions"
//   - "prompt" -> "default"
func NormalizePermissionMode(mode string) string {
	switch mode {
	case "acceptAll":
		return string(permission.ModeBypassPermissions)
	case "prompt":
		return string(permission.ModeDefault)
	default:
		return mode
	}
}

// ParsePermissionMode normalizes mode and validates it.
func ParsePermissionMode(mode string) (permission.Mode, error) {
	return permission.ParseMode(NormalizePermissionMode(mode))
}
