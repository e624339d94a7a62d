package core

import (
	"fmt"
	"strings"
)

// Status is the review state of a staging record. It is the only place
// review progress is recorded.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDuplicate Status = "duplicate"
)

// Statuses lists every status in review order.
var Statuses = []Status{StatusPending, StatusApproved, StatusRejected, StatusDuplicate}

// transitions is the review state machine. Commit removes approved records
// instead of moving them to a status; deletion is allowed from any status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusApproved, StatusRejected},
	StatusApproved:  {StatusDuplicate},
	StatusDuplicate: {StatusApproved},
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusDuplicate:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from s to to.
func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// ParseStatus parses a status name case-insensitively.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{
			Field:   "status",
			Value:   s,
			Message: fmt.Sprintf("invalid status, must be one of: %s", joinStatuses(Statuses)),
		}
	}
	return st, nil
}

// reviewTargets are the statuses a reviewer may request directly.
var reviewTargets = []Status{StatusApproved, StatusRejected}

func isReviewTarget(s Status) bool {
	for _, t := range reviewTargets {
		if t == s {
			return true
		}
	}
	return false
}

// opName is the verb used in InvalidStateError for a transition.
func opName(to Status) string {
	switch to {
	case StatusApproved:
		return "approve"
	case StatusRejected:
		return "reject"
	case StatusDuplicate:
		return "mark duplicate"
	default:
		return "move to " + string(to)
	}
}

func joinStatuses(ss []Status) string {
	parts := make([]string, len(ss))
	for i, s := range ss {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
