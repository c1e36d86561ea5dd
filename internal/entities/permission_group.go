package entities

import (
	"fmt"
	"sort"
)

// PermissionChild is one capability inside a permission group
type PermissionChild struct {
	ID          PermissionID   `yaml:"id" validate:"required"`
	Label       string         `yaml:"label" validate:"required"`
	Description string         `yaml:"description"`
	RequiresIDs []PermissionID `yaml:"requires,omitempty"` // Identifiers that should be held together with this one
}

// PermissionGroup bundles an "all" identifier with the child identifiers it grants.
// Example: case_all grants case_view, case_edit and case_export.
type PermissionGroup struct {
	GroupAllID PermissionID      `yaml:"group" validate:"required"`
	Label      string            `yaml:"label" validate:"required"`
	Children   []PermissionChild `yaml:"children" validate:"dive"`
}

// ChildIDs returns the identifiers of the group's children in declaration order
func (g *PermissionGroup) ChildIDs() []PermissionID {
	ids := make([]PermissionID, 0, len(g.Children))
	for _, c := range g.Children {
		ids = append(ids, c.ID)
	}
	return ids
}

// Catalog is the ordered list of permission groups the application administers
type Catalog struct {
	Groups []*PermissionGroup `yaml:"groups" validate:"dive"`
}

// GetGroup returns the group whose "all" identifier is id
func (c *Catalog) GetGroup(id PermissionID) *PermissionGroup {
	if c == nil {
		return nil
	}
	for _, g := range c.Groups {
		if g != nil && g.GroupAllID == id {
			return g
		}
	}
	return nil
}

// GroupIndex maps each group's "all" identifier to its child identifiers.
// Nil groups are skipped; Validate reports them.
func (c *Catalog) GroupIndex() map[PermissionID][]PermissionID {
	if c == nil {
		return map[PermissionID][]PermissionID{}
	}
	index := make(map[PermissionID][]PermissionID, len(c.Groups))
	for _, g := range c.Groups {
		if g == nil {
			continue
		}
		index[g.GroupAllID] = g.ChildIDs()
	}
	return index
}

// Validate checks the structural invariants of the catalog:
// group identifiers are unique, a child belongs to at most one group,
// and no child is itself a group identifier.
func (c *Catalog) Validate() error {
	groups := make(map[PermissionID]struct{}, len(c.Groups))
	for i, g := range c.Groups {
		if g == nil {
			return fmt.Errorf("group at index %d is nil", i)
		}
		if g.GroupAllID == "" {
			return fmt.Errorf("group at index %d: group identifier is required", i)
		}
		if _, dup := groups[g.GroupAllID]; dup {
			return fmt.Errorf("duplicate group identifier: %s", g.GroupAllID)
		}
		groups[g.GroupAllID] = struct{}{}
	}

	owner := make(map[PermissionID]PermissionID)
	for _, g := range c.Groups {
		for _, child := range g.Children {
			if child.ID == "" {
				return fmt.Errorf("group %s: child identifier is required", g.GroupAllID)
			}
			if _, isGroup := groups[child.ID]; isGroup {
				return fmt.Errorf("group %s: child %s is itself a group identifier", g.GroupAllID, child.ID)
			}
			if prev, seen := owner[child.ID]; seen {
				if prev == g.GroupAllID {
					return fmt.Errorf("group %s: duplicate child %s", g.GroupAllID, child.ID)
				}
				return fmt.Errorf("child %s appears in groups %s and %s", child.ID, prev, g.GroupAllID)
			}
			owner[child.ID] = g.GroupAllID
		}
	}
	return nil
}

// Requirement describes a held identifier whose prerequisites are not held
type Requirement struct {
	ID      PermissionID
	Missing []PermissionID
}

// MissingRequirements lists children held in set without every identifier they require.
// Results are sorted by identifier.
func (c *Catalog) MissingRequirements(set *PermissionSet) []Requirement {
	if c == nil {
		return nil
	}
	var out []Requirement
	for _, g := range c.Groups {
		if g == nil {
			continue
		}
		for _, child := range g.Children {
			if !set.Has(child.ID) {
				continue
			}
			var missing []PermissionID
			for _, req := range child.RequiresIDs {
				if !set.Has(req) {
					missing = append(missing, req)
				}
			}
			if len(missing) > 0 {
				out = append(out, Requirement{ID: child.ID, Missing: missing})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
