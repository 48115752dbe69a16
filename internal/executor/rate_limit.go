package executor

import (
	"path/filepath"
	"regexp"
)

// RateLimitPattern ties a provider throttling signature to the
// assistant CLI that emits it. An "*" assistant matches any command.
type RateLimitPattern struct {
	Assistant string
	Pattern   *regexp.Regexp
	Message   string
}

// rateLimitPatterns are matched against task output when a run exits
// nonzero, so throttling shows up as a diagnosis instead of a bare
// exit code in the task's error stream.
var rateLimitPatterns = []RateLimitPattern{
	{Assistant: "claude", Pattern: regexp.MustCompile(`(?i)rate[ _-]?limit`), Message: "Anthropic rate limit hit"},
	{Assistant: "claude", Pattern: regexp.MustCompile(`(?i)429|too many requests`), Message: "HTTP 429 Too Many Requests"},
	{Assistant: "claude", Pattern: regexp.MustCompile(`(?i)overloaded_error`), Message: "Service overloaded"},
	{Assistant: "claude", Pattern: regexp.MustCompile(`(?i)usage[ _]?limit`), Message: "Usage limit reached"},

	{Assistant: "codex", Pattern: regexp.MustCompile(`(?i)rate[ _-]?limit`), Message: "OpenAI rate limit hit"},
	{Assistant: "codex", Pattern: regexp.MustCompile(`(?i)insufficient_quota`), Message: "Insufficient quota"},

	{Assistant: "gemini", Pattern: regexp.MustCompile(`(?i)RESOURCE_EXHAUSTED|quota exceeded`), Message: "Quota exceeded"},

	{Assistant: "*", Pattern: regexp.MustCompile(`(?i)please try again later`), Message: "Temporary provider error"},
	{Assistant: "*", Pattern: regexp.MustCompile(`(?i)temporarily unavailable`), Message: "Service temporarily unavailable"},
}

// DetectRateLimit reports whether failed-run output carries a known
// provider throttling signature for the given assistant.
func DetectRateLimit(output, assistant string) (bool, string) {
	for _, p := range rateLimitPatterns {
		if p.Assistant != "*" && p.Assistant != assistant {
			continue
		}
		if p.Pattern.MatchString(output) {
			return true, p.Message
		}
	}
	return false, ""
}

// diagnoseRateLimit scans a failed run's output and appends a
// diagnosis line when the failure looks like provider throttling.
// Daemon tasks run unattended, so the diagnosis is what the user sees
// first in `cell status`.
func (e *Executor) diagnoseRateLimit(h *Handle, output string) {
	if hit, msg := DetectRateLimit(output, assistantName(h.Command)); hit {
		e.logLine(h, "error", "Rate limit detected: "+msg)
	}
}

// assistantName extracts the bare binary name from a task command for
// pattern matching.
func assistantName(command []string) string {
	if len(command) == 0 {
		return ""
	}
	return filepath.Base(command[0])
}
