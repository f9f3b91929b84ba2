package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, bool) {
	switch r := Role(s); r {
	case RoleCustomer, RoleStaff, RoleAdmin:
		return r, true
	case "":
		return RoleCustomer, true
	}
	return "", false
}

// Actor is the already-authenticated caller. Authentication happens upstream.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

func (a Actor) IsBackOffice() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}
