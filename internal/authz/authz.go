// Package authz gates every task operation with a single declarative
// policy table: operation -> required role or ownership. The check runs
// once per request, before validation and before any repository write.
package authz

import (
	"errors"

	"github.com/adrian-cabangis/taskboard/internal/domain"
)

// ErrPermissionDenied is returned when the caller's role or ownership
// does not satisfy the policy for the requested operation.
var ErrPermissionDenied = errors.New("permission denied")

// Identity is the caller, threaded explicitly through every service
// call. There is no ambient "current user".
type Identity struct {
	UserID int64
	Role   domain.Role
}

// Op names a gated task operation.
type Op int

const (
	TaskListAll Op = iota
	TaskListOwn
	TaskCreateAny
	TaskCreateOwn
	TaskUpdateAny
	TaskUpdateOwn
)

// rule is satisfied by holding the role, or by owning the subject when
// ownership is set. Exactly one of the two is used per rule.
type rule struct {
	role      domain.Role
	ownership bool
}

var policy = map[Op]rule{
	TaskListAll:   {role: domain.RoleAdmin},
	TaskCreateAny: {role: domain.RoleAdmin},
	TaskUpdateAny: {role: domain.RoleAdmin},
	TaskListOwn:   {ownership: true},
	TaskCreateOwn: {ownership: true},
	TaskUpdateOwn: {ownership: true},
}

// Can evaluates the policy for op. ownerID is the subject's owner: the
// task's user_id for updates, the requested user id for per-user lists
// and self-creates. It is ignored for role-gated operations.
func Can(ident Identity, op Op, ownerID int64) error {
	r, ok := policy[op]
	if !ok {
		return ErrPermissionDenied
	}
	if r.ownership {
		if ident.UserID == ownerID {
			return nil
		}
		return ErrPermissionDenied
	}
	if ident.Role == r.role {
		return nil
	}
	return ErrPermissionDenied
}
