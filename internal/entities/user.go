package entities

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Role is a named set of raw permission identifiers assigned by administrators
type Role struct {
	ID            int64
	Name          string
	Description   string
	PermissionIDs []PermissionID // Raw identifiers as stored, before group expansion
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks if the role is valid
func (r *Role) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("role name is required")
	}
	return nil
}

// User is the evaluation context for permission expressions.
// Its effective permission set is replaced as a whole whenever the role
// or the role's permissions change; it is never modified in place.
type User struct {
	ID         uuid.UUID
	Email      string
	Name       string
	RegionCode string // Administrative region the user is scoped to (empty = all regions)
	RoleID     int64
	Attributes map[string]interface{}
	CreatedAt  time.Time

	permissions atomic.Pointer[PermissionSet]
}

// Permissions returns the user's effective permission set (never nil)
func (u *User) Permissions() *PermissionSet {
	if u == nil {
		return nil
	}
	if set := u.permissions.Load(); set != nil {
		return set
	}
	return NewPermissionSet()
}

// SetPermissions swaps in a new effective permission set
func (u *User) SetPermissions(set *PermissionSet) {
	if set == nil {
		set = NewPermissionSet()
	}
	u.permissions.Store(set)
}

// HasPermission reports whether the user's effective set contains id.
// A nil user holds nothing.
func (u *User) HasPermission(id PermissionID) bool {
	if u == nil {
		return false
	}
	return u.Permissions().Has(id)
}

// Validate checks if the user is valid
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("user ID is required")
	}
	if u.Email == "" {
		return fmt.Errorf("user email is required")
	}
	return nil
}
