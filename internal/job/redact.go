package job

import "regexp"

// Registry credentials are injected into chart values and must never reach a job log.
var secretValuePattern = regexp.MustCompile(`(?i)("?\.?(?:dockerjsontoken|dockerconfigjson)"?\s*[:=]\s*"?)([^"\s,}]+)`)

const redacted = "[REDACTED]"

// Redact masks docker registry tokens in msg.
func Redact(msg string) string {
	return secretValuePattern.ReplaceAllString(msg, "${1}"+redacted)
}
