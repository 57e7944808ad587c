package provider

import "strings"

// IsRateLimited reports whether an error looks like quota or rate limiting.
// Providers disagree on the shape, so this matches the common signatures.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(strings.ToLower(msg), "rate limit") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

// IsOverloaded reports whether the provider itself is struggling.
func IsOverloaded(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "503") ||
		strings.Contains(msg, "529") ||
		strings.Contains(strings.ToLower(msg), "overloaded")
}

// IsTransient reports whether a call is worth retrying: rate limits,
// overload, server errors, and dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) || IsOverloaded(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{"500", "502", "504", "econnreset", "etimedout", "connection reset", "timeout"} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
