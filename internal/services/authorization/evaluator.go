package authorization

import (
	"github.com/asakaida/epiguard/internal/entities"
)

const (
	// MaxDepth is the maximum nesting depth evaluated; deeper trees are denied
	MaxDepth = 100
)

// Allowed evaluates expr against user's effective permission set.
// Evaluation is depth-first and left to right and stops at the first child
// that decides an And or Or. It fails closed: a nil user, a nil or
// unrecognized expression, a nil predicate, an empty And or Or, or nesting
// deeper than MaxDepth all evaluate to false.
func Allowed(expr entities.Expression, user *entities.User) bool {
	if user == nil {
		return false
	}
	return evaluate(expr, user, 0)
}

// HasPermissions reports whether user satisfies every expression.
// It is equivalent to Allowed(entities.AllOf(exprs...), user), so calling it
// with no expressions returns false.
func HasPermissions(user *entities.User, exprs ...entities.Expression) bool {
	if len(exprs) == 1 {
		return Allowed(exprs[0], user)
	}
	return Allowed(entities.And{Children: exprs}, user)
}

// HasAnyPermission reports whether user satisfies at least one expression.
// It is equivalent to Allowed(entities.AnyOf(exprs...), user).
func HasAnyPermission(user *entities.User, exprs ...entities.Expression) bool {
	if len(exprs) == 1 {
		return Allowed(exprs[0], user)
	}
	return Allowed(entities.Or{Children: exprs}, user)
}

func evaluate(expr entities.Expression, user *entities.User, depth int) bool {
	if depth > MaxDepth {
		return false
	}

	switch e := expr.(type) {
	case entities.PermissionID:
		return user.HasPermission(e)
	case entities.Identifier:
		return user.HasPermission(e.ID)
	case *entities.Identifier:
		return e != nil && user.HasPermission(e.ID)
	case entities.PredicateFunc:
		return e != nil && e(user)
	case entities.Predicate:
		return e.Fn != nil && e.Fn(user)
	case *entities.Predicate:
		return e != nil && e.Fn != nil && e.Fn(user)
	case entities.And:
		return evaluateAnd(e.Children, user, depth)
	case *entities.And:
		return e != nil && evaluateAnd(e.Children, user, depth)
	case entities.Or:
		return evaluateOr(e.Children, user, depth)
	case *entities.Or:
		return e != nil && evaluateOr(e.Children, user, depth)
	default:
		// nil or unrecognized shape
		return false
	}
}

func evaluateAnd(children []entities.Expression, user *entities.User, depth int) bool {
	if len(children) == 0 {
		return false
	}
	for _, child := range children {
		if !evaluate(child, user, depth+1) {
			return false // Short-circuit on false
		}
	}
	return true
}

func evaluateOr(children []entities.Expression, user *entities.User, depth int) bool {
	for _, child := range children {
		if evaluate(child, user, depth+1) {
			return true // Short-circuit on true
		}
	}
	return false
}
