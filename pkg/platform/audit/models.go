package audit

import (
	"math"
	"time"

	"github.com/niksbanna/ehr-portal-sub000/pkg/platform/audit/masking"
)

// Action classifies what a mutating request did to its entity.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
	// ActionOther is used when no HTTP verb is available to classify.
	ActionOther Action = "OTHER"
)

// Outcome is the real result of the wrapped business operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Record is one row of the append-only audit trail. It describes a single
// mutating-request attempt and is never updated after it is written.
type Record struct {
	ID              string        `json:"id"`
	ActorID         *string       `json:"actorId"`
	ActorRole       *string       `json:"actorRole"`
	Action          Action        `json:"action"`
	EntityType      string        `json:"entityType"`
	EntityID        *string       `json:"entityId"`
	PayloadSnapshot masking.Value `json:"payloadSnapshot"`
	SourceAddress   string        `json:"sourceAddress"`
	UserAgent       string        `json:"userAgent"`
	// ClientPlatform is a best-effort "browser / OS" summary of UserAgent.
	ClientPlatform string    `json:"clientPlatform,omitempty"`
	RequestID      string    `json:"requestId,omitempty"`
	Outcome        Outcome   `json:"outcome"`
	FailureReason  *string   `json:"failureReason"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Filter holds optional equality predicates. Empty fields match everything.
type Filter struct {
	ActorID    string
	ActorRole  string
	EntityType string
	Action     Action
	Outcome    Outcome
}

// Matches reports whether r satisfies every set predicate.
func (f Filter) Matches(r Record) bool {
	if f.ActorID != "" && (r.ActorID == nil || *r.ActorID != f.ActorID) {
		return false
	}
	if f.ActorRole != "" && (r.ActorRole == nil || *r.ActorRole != f.ActorRole) {
		return false
	}
	if f.EntityType != "" && r.EntityType != f.EntityType {
		return false
	}
	if f.Action != "" && r.Action != f.Action {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	return true
}

// SortOrder orders results by OccurredAt.
type SortOrder string

const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// Page selects a window of a filtered, ordered result. Page is 1-based.
type Page struct {
	Page  int
	Limit int
	Sort  SortOrder
}

// Offset is the number of rows skipped before this page. It saturates at
// math.MaxInt instead of wrapping.
func (p Page) Offset() int {
	if p.Page <= 1 || p.Limit <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt
	}
	return (p.Page - 1) * p.Limit
}

func ptr(s string) *string { return &s }

// StringPtr returns nil for an empty string and a pointer otherwise.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return ptr(s)
}
