package access

import (
	"fmt"
	"strings"
)

// Role is stored and compared in lowercase only.
type Role string

const (
	RoleUser  Role = "user"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

var rank = map[Role]int{
	RoleUser:  1,
	RoleStaff: 2,
	RoleAdmin: 3,
}

// ParseRole accepts any casing ("ADMIN", "Staff") and rejects everything outside the enum.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

// AtLeast reports whether r is min or higher. Invalid roles are never sufficient.
func (r Role) AtLeast(min Role) bool {
	have, ok := rank[r]
	if !ok {
		return false
	}
	return have >= rank[min]
}

func (r Role) IsStaff() bool { return r.AtLeast(RoleStaff) }
