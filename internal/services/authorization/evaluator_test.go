package authorization

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/asakaida/epiguard/internal/entities"
)

func newTestUser(ids ...entities.PermissionID) *entities.User {
	user := &entities.User{ID: uuid.New(), Email: "analyst@example.org"}
	user.SetPermissions(entities.NewPermissionSet(ids...))
	return user
}

func id(s string) entities.Identifier {
	return entities.Is(entities.PermissionID(s))
}

// countingPredicate records how many times it was evaluated
func countingPredicate(result bool, calls *int) entities.PredicateFunc {
	return func(*entities.User) bool {
		*calls++
		return result
	}
}

func TestAllowed_Scenarios(t *testing.T) {
	tests := []struct {
		name     string
		expr     entities.Expression
		held     []entities.PermissionID
		expected bool
	}{
		{
			name:     "or with second child held",
			expr:     entities.AnyOf(id("a"), id("b")),
			held:     []entities.PermissionID{"b"},
			expected: true,
		},
		{
			name:     "and with second child missing",
			expr:     entities.AllOf(id("a"), id("b")),
			held:     []entities.PermissionID{"a"},
			expected: false,
		},
		{
			name:     "nested or of and",
			expr:     entities.AnyOf(entities.AllOf(id("a"), id("b")), id("c")),
			held:     []entities.PermissionID{"c"},
			expected: true,
		},
		{
			name:     "bare identifier held",
			expr:     entities.CaseView,
			held:     []entities.PermissionID{entities.CaseView},
			expected: true,
		},
		{
			name:     "bare identifier not held",
			expr:     entities.CaseEdit,
			held:     []entities.PermissionID{entities.CaseView},
			expected: false,
		},
		{
			name:     "group id does not imply children at evaluation time",
			expr:     entities.CaseView,
			held:     []entities.PermissionID{entities.CaseAll},
			expected: false,
		},
		{
			name:     "empty and",
			expr:     entities.AllOf(),
			held:     []entities.PermissionID{"a"},
			expected: false,
		},
		{
			name:     "empty or",
			expr:     entities.AnyOf(),
			held:     []entities.PermissionID{"a"},
			expected: false,
		},
		{
			name:     "pointer forms",
			expr:     &entities.And{Children: []entities.Expression{&entities.Identifier{ID: "a"}, &entities.Or{Children: []entities.Expression{id("x"), entities.PermissionID("b")}}}},
			held:     []entities.PermissionID{"a", "b"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Allowed(tt.expr, newTestUser(tt.held...)))
		})
	}
}

func TestAllowed_IdentifierMembership(t *testing.T) {
	user := newTestUser(entities.CaseView, entities.BedView, entities.MapAll)

	for p := range entities.Vocabulary {
		assert.Equal(t, user.HasPermission(p), Allowed(entities.Is(p), user), "identifier %s", p)
		assert.Equal(t, user.HasPermission(p), Allowed(p, user), "bare identifier %s", p)
	}
}

func TestAllowed_BooleanLaws(t *testing.T) {
	users := []*entities.User{
		newTestUser(),
		newTestUser("a"),
		newTestUser("b"),
		newTestUser("a", "b"),
		newTestUser("a", "c"),
	}
	exprs := []entities.Expression{
		id("a"),
		id("b"),
		entities.AllOf(id("a"), id("c")),
		entities.AnyOf(id("b"), id("c")),
		entities.AllOf(),
		entities.AnyOf(),
	}

	for ui, user := range users {
		for i, e1 := range exprs {
			for j, e2 := range exprs {
				a1, a2 := Allowed(e1, user), Allowed(e2, user)

				assert.Equal(t, a1 && a2, Allowed(entities.AllOf(e1, e2), user), "user %d and(%d,%d)", ui, i, j)
				assert.Equal(t, a1 || a2, Allowed(entities.AnyOf(e1, e2), user), "user %d or(%d,%d)", ui, i, j)

				// commutativity
				assert.Equal(t, Allowed(entities.AllOf(e1, e2), user), Allowed(entities.AllOf(e2, e1), user))
				assert.Equal(t, Allowed(entities.AnyOf(e1, e2), user), Allowed(entities.AnyOf(e2, e1), user))

				assert.Equal(t, Allowed(entities.AllOf(e1, e2), user), HasPermissions(user, e1, e2))
			}
		}
	}
}

func TestAllowed_Associativity(t *testing.T) {
	a, b, c := id("a"), id("b"), id("c")
	held := [][]entities.PermissionID{{}, {"a"}, {"a", "b"}, {"a", "b", "c"}, {"c"}, {"b", "c"}}

	for _, ids := range held {
		user := newTestUser(ids...)

		flatAnd := Allowed(entities.AllOf(a, b, c), user)
		assert.Equal(t, flatAnd, Allowed(entities.AllOf(entities.AllOf(a, b), c), user))
		assert.Equal(t, flatAnd, Allowed(entities.AllOf(a, entities.AllOf(b, c)), user))

		flatOr := Allowed(entities.AnyOf(a, b, c), user)
		assert.Equal(t, flatOr, Allowed(entities.AnyOf(entities.AnyOf(a, b), c), user))
		assert.Equal(t, flatOr, Allowed(entities.AnyOf(a, entities.AnyOf(b, c)), user))
	}
}

func TestAllowed_ShortCircuit(t *testing.T) {
	t.Run("and stops at first false child", func(t *testing.T) {
		calls := 0
		expr := entities.AllOf(id("a"), id("b"), countingPredicate(true, &calls))

		assert.False(t, Allowed(expr, newTestUser("a")))
		assert.Equal(t, 0, calls)
	})

	t.Run("or stops at first true child", func(t *testing.T) {
		calls := 0
		expr := entities.AnyOf(id("a"), countingPredicate(true, &calls), countingPredicate(true, &calls))

		assert.True(t, Allowed(expr, newTestUser("x")))
		assert.Equal(t, 1, calls)
	})

	t.Run("left to right", func(t *testing.T) {
		var order []string
		record := func(name string, result bool) entities.Predicate {
			return entities.When(name, func(*entities.User) bool {
				order = append(order, name)
				return result
			})
		}

		Allowed(entities.AllOf(record("first", true), record("second", true), record("third", false), record("fourth", true)), newTestUser())
		assert.Equal(t, []string{"first", "second", "third"}, order)
	})
}

func TestAllowed_Predicates(t *testing.T) {
	inNorth := func(u *entities.User) bool { return u.RegionCode == "north" }

	user := newTestUser(entities.CaseView)
	user.RegionCode = "north"

	assert.True(t, Allowed(entities.PredicateFunc(inNorth), user))
	assert.True(t, Allowed(entities.When("in_north", inNorth), user))
	assert.True(t, Allowed(entities.AllOf(entities.CaseView, entities.When("in_north", inNorth)), user))

	user.RegionCode = "south"
	assert.False(t, Allowed(entities.When("in_north", inNorth), user))
}

func TestAllowed_FailClosed(t *testing.T) {
	user := newTestUser("a")

	tests := []struct {
		name string
		expr entities.Expression
	}{
		{"nil expression", nil},
		{"nil identifier pointer", (*entities.Identifier)(nil)},
		{"nil and pointer", (*entities.And)(nil)},
		{"nil or pointer", (*entities.Or)(nil)},
		{"nil predicate pointer", (*entities.Predicate)(nil)},
		{"predicate without function", entities.Predicate{Name: "empty"}},
		{"nil predicate func", entities.PredicateFunc(nil)},
		{"nil child in or", entities.AnyOf(nil)},
		{"nil child in and", entities.AllOf(id("a"), nil)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Allowed(tt.expr, user))
		})
	}
}

func TestAllowed_NilUser(t *testing.T) {
	always := entities.PredicateFunc(func(*entities.User) bool { return true })

	assert.False(t, Allowed(id("a"), nil))
	assert.False(t, Allowed(always, nil))
	assert.False(t, Allowed(entities.AnyOf(always), nil))
	assert.False(t, HasPermissions(nil, always))
	assert.False(t, HasAnyPermission(nil, always))
}

func TestAllowed_MaxDepth(t *testing.T) {
	user := newTestUser("a")

	build := func(depth int) entities.Expression {
		var expr entities.Expression = id("a")
		for i := 0; i < depth; i++ {
			expr = entities.AllOf(expr)
		}
		return expr
	}

	assert.True(t, Allowed(build(MaxDepth), user))
	assert.False(t, Allowed(build(MaxDepth+1), user))
}

func TestHasPermissions(t *testing.T) {
	user := newTestUser(entities.CaseView, entities.BedView)

	assert.True(t, HasPermissions(user, entities.CaseView))
	assert.True(t, HasPermissions(user, entities.CaseView, entities.BedView))
	assert.False(t, HasPermissions(user, entities.CaseView, entities.MapView))
	assert.True(t, HasPermissions(user, entities.AnyOf(entities.MapView, entities.BedView), entities.CaseView))

	// zero arguments behave like an empty And
	assert.False(t, HasPermissions(user))
}

func TestHasAnyPermission(t *testing.T) {
	user := newTestUser(entities.BedView)

	assert.True(t, HasAnyPermission(user, entities.CaseView, entities.BedView))
	assert.False(t, HasAnyPermission(user, entities.CaseView, entities.MapView))
	assert.False(t, HasAnyPermission(user))
}
