// Package strings parses the comma-separated list settings in config.
package strings

import "strings"

// SplitList turns "admin, auditor,admin," into ["admin" "auditor"]. Entries
// are trimmed, blanks dropped, and repeats collapsed to their first
// position. Input with no entries yields nil.
func SplitList(csv string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
