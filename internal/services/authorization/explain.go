package authorization

import (
	"github.com/asakaida/epiguard/internal/entities"
)

// Trace node kinds
const (
	NodeIdentifier = "identifier"
	NodePredicate  = "predicate"
	NodeAnd        = "and"
	NodeOr         = "or"
	NodeInvalid    = "invalid"
)

// TraceNode records how one node of an expression was evaluated
type TraceNode struct {
	Kind       string                // One of the Node* constants
	Permission entities.PermissionID // Identifier leaves only
	Name       string                // Named predicates only
	Result     bool                  // Outcome of this node (false when skipped)
	Skipped    bool                  // Not evaluated because an earlier sibling decided the parent
	Children   []*TraceNode          // Child nodes for and/or
}

// Explain evaluates expr like Allowed and returns the evaluation trace.
// The root's Result always equals Allowed(expr, user).
func Explain(expr entities.Expression, user *entities.User) *TraceNode {
	return explain(expr, user, 0, false)
}

func explain(expr entities.Expression, user *entities.User, depth int, skip bool) *TraceNode {
	node := &TraceNode{Skipped: skip}
	if depth > MaxDepth {
		node.Kind = NodeInvalid
		return node
	}

	var children []entities.Expression
	switch e := expr.(type) {
	case entities.PermissionID:
		node.Kind = NodeIdentifier
		node.Permission = e
	case entities.Identifier:
		node.Kind = NodeIdentifier
		node.Permission = e.ID
	case *entities.Identifier:
		if e == nil {
			node.Kind = NodeInvalid
			return node
		}
		node.Kind = NodeIdentifier
		node.Permission = e.ID
	case entities.PredicateFunc:
		node.Kind = NodePredicate
	case entities.Predicate:
		node.Kind = NodePredicate
		node.Name = e.Name
	case *entities.Predicate:
		if e == nil {
			node.Kind = NodeInvalid
			return node
		}
		node.Kind = NodePredicate
		node.Name = e.Name
	case entities.And:
		node.Kind = NodeAnd
		children = e.Children
	case *entities.And:
		if e == nil {
			node.Kind = NodeInvalid
			return node
		}
		node.Kind = NodeAnd
		children = e.Children
	case entities.Or:
		node.Kind = NodeOr
		children = e.Children
	case *entities.Or:
		if e == nil {
			node.Kind = NodeInvalid
			return node
		}
		node.Kind = NodeOr
		children = e.Children
	default:
		node.Kind = NodeInvalid
		return node
	}

	if node.Kind != NodeAnd && node.Kind != NodeOr {
		if !skip && user != nil {
			node.Result = evaluate(expr, user, depth)
		}
		return node
	}

	decided := false
	node.Children = make([]*TraceNode, 0, len(children))
	for _, child := range children {
		childNode := explain(child, user, depth+1, skip || decided)
		node.Children = append(node.Children, childNode)
		if skip || decided {
			continue
		}
		if node.Kind == NodeAnd && !childNode.Result {
			decided = true
		}
		if node.Kind == NodeOr && childNode.Result {
			decided = true
		}
	}
	if !skip {
		if node.Kind == NodeAnd {
			node.Result = len(children) > 0 && !decided
		} else {
			node.Result = decided
		}
	}

	return node
}
