package audit

import (
	"net/http"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UnknownEntity is the entity type of a path with no segments.
const UnknownEntity = "Unknown"

// Classification is what the classifier derives from a method and path.
type Classification struct {
	EntityType string
	EntityID   *string
	Action     Action
}

// Classify derives entity type, entity ID and action from an HTTP method and
// a path that has had its API prefix and query string removed. It never
// fails: paths of unexpected shape fall back to UnknownEntity and a nil ID.
//
// The mapping is a URL-shape heuristic and misclassifies nested resources
// such as /patients/{id}/encounters (entity type Patients). An explicit
// route-to-entity table is the fix when that matters.
func Classify(method, path string) Classification {
	segments := splitPath(path)

	c := Classification{
		EntityType: UnknownEntity,
		Action:     ActionFromMethod(method),
	}
	if len(segments) == 0 {
		return c
	}
	c.EntityType = entityTypeName(segments[0])
	if len(segments) > 1 && isIdentifier(segments[1]) {
		c.EntityID = ptr(segments[1])
	}
	return c
}

// ActionFromMethod maps mutating verbs (matched case-insensitively) onto
// actions. Other verbs pass through exactly as given; an empty method maps
// to ActionOther.
func ActionFromMethod(method string) Action {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	case "":
		return ActionOther
	default:
		return Action(method)
	}
}

// IsMutating reports whether the verb changes state and must be audited.
func IsMutating(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// StripPrefix removes the API prefix and any query string from path.
func StripPrefix(path, prefix string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		return path
	}
	if path == prefix {
		return "/"
	}
	if strings.HasPrefix(path, prefix+"/") {
		return path[len(prefix):]
	}
	return path
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}

// entityTypeName turns "lab-results" into "LabResults". Invalid UTF-8 from
// percent-decoded paths is replaced so the result is always storable text.
func entityTypeName(segment string) string {
	segment = strings.ToValidUTF8(segment, string(utf8.RuneError))
	var b strings.Builder
	for _, word := range strings.Split(segment, "-") {
		if word == "" {
			continue
		}
		first, size := utf8.DecodeRuneInString(word)
		b.WriteRune(unicode.ToUpper(first))
		b.WriteString(word[size:])
	}
	if b.Len() == 0 {
		return UnknownEntity
	}
	return b.String()
}

func isIdentifier(segment string) bool {
	if isNumeric(segment) {
		return true
	}
	// uuid.Parse also accepts braced and urn forms; only the canonical
	// 36-character form counts as an ID here.
	if len(segment) != 36 {
		return false
	}
	_, err := uuid.Parse(segment)
	return err == nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
