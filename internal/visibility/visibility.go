// Package visibility decides which submissions a user may see and which
// workflow actions they may take on each one.
package visibility

import (
	"strings"

	"compliance/api/internal/rbac"
	"compliance/api/internal/store"
)

// Scope selects how far an Internal Auditor's review reaches.
type Scope string

const (
	// ScopeDepartment limits review to the auditor's own department. Auditors
	// who belong to the Audit department still review every department.
	ScopeDepartment Scope = "department"
	ScopeGlobal     Scope = "global"
)

func ParseScope(value string) Scope {
	if Scope(strings.ToLower(strings.TrimSpace(value))) == ScopeGlobal {
		return ScopeGlobal
	}
	return ScopeDepartment
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionCertify Action = "certify"
)

type Resolver struct {
	scope Scope
}

func NewResolver(scope Scope) Resolver {
	if scope != ScopeGlobal {
		scope = ScopeDepartment
	}
	return Resolver{scope: scope}
}

func (r Resolver) Scope() Scope {
	return r.scope
}

// Reviews reports whether user may review submissions filed under dept.
func (r Resolver) Reviews(user store.User, dept store.Department) bool {
	if !rbac.Can(user.Role, rbac.ActionReview) {
		return false
	}
	if r.scope == ScopeGlobal || user.Department == store.DeptAudit {
		return true
	}
	return user.Department == dept
}

// Actions lists what user may do to a submission in the given status filed
// under dept.
func (r Resolver) Actions(user store.User, status store.Status, dept store.Department) []Action {
	out := make([]Action, 0, 2)
	if status == store.StatusSubmitted && r.Reviews(user, dept) {
		out = append(out, ActionApprove, ActionReject)
	}
	if status == store.StatusManagerApproved && rbac.Can(user.Role, rbac.ActionCertify) {
		out = append(out, ActionCertify)
	}
	return out
}

func (r Resolver) Allowed(user store.User, action Action, status store.Status, dept store.Department) bool {
	for _, a := range r.Actions(user, status, dept) {
		if a == action {
			return true
		}
	}
	return false
}

// Sees reports whether a submission owned by ownerID under dept is visible
// to user at all.
func (r Resolver) Sees(user store.User, ownerID string, dept store.Department) bool {
	switch {
	case ownerID == user.ID:
		return true
	case rbac.Can(user.Role, rbac.ActionViewGlobal):
		return true
	case rbac.Can(user.Role, rbac.ActionReview):
		return r.Reviews(user, dept)
	case rbac.Can(user.Role, rbac.ActionViewDepartment):
		return user.Department == dept
	default:
		return false
	}
}

// Visible keeps the submissions user may see.
func Visible[T store.Submission](r Resolver, user store.User, items []T) []T {
	return filter(items, func(item T) bool {
		return r.Sees(user, item.Owner(), item.Dept())
	})
}

// Mine keeps the submissions user filed.
func Mine[T store.Submission](user store.User, items []T) []T {
	return filter(items, func(item T) bool {
		return item.Owner() == user.ID
	})
}

// Department keeps the submissions filed under dept.
func Department[T store.Submission](dept store.Department, items []T) []T {
	return filter(items, func(item T) bool {
		return item.Dept() == dept
	})
}

// Queue is user's pending review inbox: Submitted items inside their review
// scope. Users who cannot review get an empty queue.
func Queue[T store.Submission](r Resolver, user store.User, items []T) []T {
	return filter(items, func(item T) bool {
		return item.CurrentStatus() == store.StatusSubmitted && r.Reviews(user, item.Dept())
	})
}

// Executive is the global compliance view, optionally narrowed to one
// department. An empty dept means all departments. Evidence still in Draft or
// Rejected is left out of the executive table; DMAX reports are all listed.
func Executive[T store.Submission](user store.User, dept store.Department, items []T) []T {
	if !rbac.Can(user.Role, rbac.ActionViewGlobal) {
		return []T{}
	}
	return filter(items, func(item T) bool {
		if dept != "" && item.Dept() != dept {
			return false
		}
		if _, isEvidence := any(item).(store.Evidence); isEvidence {
			status := item.CurrentStatus()
			return status != store.StatusDraft && status != store.StatusRejected
		}
		return true
	})
}

func filter[T any](items []T, keep func(T) bool) []T {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
