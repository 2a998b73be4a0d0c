// Package device summarizes the client software behind a request from its
// User-Agent header.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// Describe returns a "Browser / OS" summary such as "Chrome / Windows 10".
// Either half is omitted when the parser does not recognise it, and an
// empty string is returned for an empty or opaque User-Agent.
func Describe(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		name, _ := ua.Browser()
		return strings.TrimSpace("bot " + name)
	}

	var parts []string
	if name, _ := ua.Browser(); name != "" {
		parts = append(parts, name)
	}
	if os := ua.OS(); os != "" {
		parts = append(parts, os)
	}
	if ua.Mobile() && len(parts) > 0 {
		parts[len(parts)-1] += " (mobile)"
	}
	return strings.Join(parts, " / ")
}
