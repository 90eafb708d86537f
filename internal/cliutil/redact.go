package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var (
	secretNamePattern = regexp.MustCompile(`(?i)(PASSWORD|PASSWD|SECRET|TOKEN|API_?KEY|ACCESS_KEY|PRIVATE_KEY|CREDENTIALS?)`)
	secretAssignment  = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)(\s*=\s*)(["']?)([^"'\s]+)(["']?)`)
)

// IsSecretName reports whether an environment variable name looks like it
// carries a credential.
func IsSecretName(name string) bool {
	return secretNamePattern.MatchString(name)
}

// RedactEnv returns a copy of env with secret-looking values masked.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if IsSecretName(k) && v != "" {
			v = redactedPlaceholder
		}
		out[k] = v
	}
	return out
}

// RedactSecrets masks the values of NAME=value assignments whose name looks
// like a credential, so that commands and messages can be echoed safely.
func RedactSecrets(message string) string {
	if message == "" || !strings.Contains(message, "=") {
		return message
	}
	return secretAssignment.ReplaceAllStringFunc(message, func(match string) string {
		parts := secretAssignment.FindStringSubmatch(match)
		if !IsSecretName(parts[1]) {
			return match
		}
		return parts[1] + parts[2] + parts[3] + redactedPlaceholder + parts[5]
	})
}
