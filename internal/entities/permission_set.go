package entities

import (
	"encoding/hex"
	"sort"

	"github.com/zeebo/blake3"
)

// Fingerprint is an order-independent digest of a permission set's members.
// Two sets with the same members always have the same fingerprint.
type Fingerprint [32]byte

// String returns the hex encoding of the fingerprint
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// PermissionSet is an immutable set of permission identifiers.
// A nil *PermissionSet behaves as the empty set.
type PermissionSet struct {
	members     map[PermissionID]struct{}
	fingerprint Fingerprint
}

// NewPermissionSet builds a set from the given identifiers, collapsing duplicates
func NewPermissionSet(ids ...PermissionID) *PermissionSet {
	members := make(map[PermissionID]struct{}, len(ids))
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return newPermissionSet(members)
}

// newPermissionSet takes ownership of members; callers must not modify it afterwards.
func newPermissionSet(members map[PermissionID]struct{}) *PermissionSet {
	s := &PermissionSet{members: members}
	s.fingerprint = computeFingerprint(s.Members())
	return s
}

// Has reports whether id is in the set
func (s *PermissionSet) Has(id PermissionID) bool {
	if s == nil {
		return false
	}
	_, ok := s.members[id]
	return ok
}

// Len returns the number of members
func (s *PermissionSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.members)
}

// Members returns a sorted copy of the set's identifiers
func (s *PermissionSet) Members() []PermissionID {
	if s == nil {
		return []PermissionID{}
	}
	out := make([]PermissionID, 0, len(s.members))
	for id := range s.members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted members as plain strings
func (s *PermissionSet) Strings() []string {
	members := s.Members()
	out := make([]string, len(members))
	for i, id := range members {
		out[i] = string(id)
	}
	return out
}

// Fingerprint returns the digest of the set's members
func (s *PermissionSet) Fingerprint() Fingerprint {
	if s == nil {
		return emptyFingerprint
	}
	return s.fingerprint
}

// Equal reports whether both sets contain exactly the same identifiers
func (s *PermissionSet) Equal(other *PermissionSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s.Fingerprint() != other.Fingerprint() {
		return false
	}
	for _, id := range s.Members() {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Union returns a new set holding the members of s plus ids
func (s *PermissionSet) Union(ids ...PermissionID) *PermissionSet {
	members := make(map[PermissionID]struct{}, s.Len()+len(ids))
	if s != nil {
		for id := range s.members {
			members[id] = struct{}{}
		}
	}
	for _, id := range ids {
		members[id] = struct{}{}
	}
	return newPermissionSet(members)
}

var emptyFingerprint = computeFingerprint(nil)

// computeFingerprint hashes the sorted members, each terminated by a NUL byte
// so that {"ab"} and {"a","b"} differ.
func computeFingerprint(sorted []PermissionID) Fingerprint {
	h := blake3.New()
	for _, id := range sorted {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}
