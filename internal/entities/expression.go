package entities

// Expression is a permission expression evaluated against a user.
// The set of implementations is closed: PermissionID, Identifier,
// PredicateFunc, Predicate, And and Or.
type Expression interface {
	isExpression()
}

// A bare PermissionID is an expression: true iff the user holds it.
func (PermissionID) isExpression() {}

// Identifier is the wrapped form of a PermissionID leaf
type Identifier struct {
	ID PermissionID
}

func (Identifier) isExpression() {}

// PredicateFunc is a bare predicate leaf: true iff it returns true for the user.
// Predicates are never memoized.
type PredicateFunc func(user *User) bool

func (PredicateFunc) isExpression() {}

// Predicate is the wrapped, named form of a predicate leaf
type Predicate struct {
	Name string // Used in traces and logs only
	Fn   PredicateFunc
}

func (Predicate) isExpression() {}

// And is true iff every child is true. An empty And is false.
type And struct {
	Children []Expression
}

func (And) isExpression() {}

// Or is true iff at least one child is true. An empty Or is false.
type Or struct {
	Children []Expression
}

func (Or) isExpression() {}

// AllOf builds an And over the given children
func AllOf(children ...Expression) And {
	return And{Children: children}
}

// AnyOf builds an Or over the given children
func AnyOf(children ...Expression) Or {
	return Or{Children: children}
}

// Is builds an Identifier leaf
func Is(id PermissionID) Identifier {
	return Identifier{ID: id}
}

// When builds a named Predicate leaf
func When(name string, fn PredicateFunc) Predicate {
	return Predicate{Name: name, Fn: fn}
}
