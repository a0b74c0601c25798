package directory

// Capability is what a privileged operation requires of its caller.
type Capability string

const (
	// CapabilityAny is granted to every role; status checks still apply.
	CapabilityAny     Capability = "any"
	CapabilityTeacher Capability = "teacher"
	CapabilityAdmin   Capability = "admin"
)

var grants = map[Capability]map[Role]bool{
	CapabilityAny: {
		RoleStaff: true, RoleTeacher: true, RoleAdmin: true, RoleSuperAdmin: true, RoleSuperUser: true,
	},
	CapabilityTeacher: {
		RoleTeacher: true,
	},
	CapabilityAdmin: {
		RoleAdmin: true, RoleSuperAdmin: true, RoleSuperUser: true,
	},
}

// Grants reports whether role holds capability. Unknown roles and
// capabilities grant nothing.
func (r Role) Grants(c Capability) bool {
	return grants[c][r]
}

// Privileged reports whether the role may log in during maintenance.
func (r Role) Privileged() bool {
	return r == RoleSuperAdmin || r == RoleSuperUser
}
