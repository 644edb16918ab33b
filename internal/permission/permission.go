// Package permission holds the static role → permission table used by the
// admin gate, and the rank ordering of organization membership roles.
package permission

import "slices"

// Role is a platform-wide user role.
type Role string

const (
	RoleUser       Role = "user"
	RoleModerator  Role = "moderator"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Permission is a named capability checked before an action executes.
type Permission string

const (
	ViewUsers           Permission = "view_users"
	CreateUsers         Permission = "create_users"
	EditUsers           Permission = "edit_users"
	DeleteUsers         Permission = "delete_users"
	ViewOrganizations   Permission = "view_organizations"
	CreateOrganizations Permission = "create_organizations"
	EditOrganizations   Permission = "edit_organizations"
	DeleteOrganizations Permission = "delete_organizations"
	ViewActivityLogs    Permission = "view_activity_logs"
	ViewSettings        Permission = "view_settings"
	EditSettings        Permission = "edit_settings"
	ManageRoles         Permission = "manage_roles"
	ExportData          Permission = "export_data"
)

var allPermissions = []Permission{
	ViewUsers,
	CreateUsers,
	EditUsers,
	DeleteUsers,
	ViewOrganizations,
	CreateOrganizations,
	EditOrganizations,
	DeleteOrganizations,
	ViewActivityLogs,
	ViewSettings,
	EditSettings,
	ManageRoles,
	ExportData,
}

var allRoles = []Role{RoleUser, RoleModerator, RoleAdmin, RoleSuperAdmin}

var adminRoles = []Role{RoleModerator, RoleAdmin, RoleSuperAdmin}

var rolePermissions = map[Role][]Permission{
	RoleUser: {},
	RoleModerator: {
		ViewUsers,
		ViewOrganizations,
		ViewActivityLogs,
	},
	RoleAdmin: {
		ViewUsers,
		CreateUsers,
		EditUsers,
		DeleteUsers,
		ViewOrganizations,
		CreateOrganizations,
		EditOrganizations,
		DeleteOrganizations,
		ViewActivityLogs,
		ViewSettings,
		ExportData,
	},
	RoleSuperAdmin: allPermissions,
}

// AllPermissions returns every defined permission.
func AllPermissions() []Permission {
	return slices.Clone(allPermissions)
}

// AllRoles returns every platform role, lowest first.
func AllRoles() []Role {
	return slices.Clone(allRoles)
}

// PermissionsFor returns the permission list granted to role. Unknown roles
// get an empty list.
func PermissionsFor(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}

// HasPermission reports whether role is granted p.
func HasPermission(role Role, p Permission) bool {
	return slices.Contains(rolePermissions[role], p)
}

// HasAllPermissions reports whether role is granted every permission in ps.
func HasAllPermissions(role Role, ps ...Permission) bool {
	for _, p := range ps {
		if !HasPermission(role, p) {
			return false
		}
	}
	return true
}

// HasRole reports whether role is one of roles.
func HasRole(role Role, roles ...Role) bool {
	return slices.Contains(roles, role)
}

// IsAdminRole reports whether role may enter the admin panel at all.
func IsAdminRole(role Role) bool {
	return HasRole(role, adminRoles...)
}

func (r Role) Valid() bool {
	return slices.Contains(allRoles, r)
}

func (p Permission) Valid() bool {
	return slices.Contains(allPermissions, p)
}
