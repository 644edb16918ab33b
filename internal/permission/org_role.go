package permission

// OrgRole is a role scoped to one organization.
type OrgRole string

const (
	OrgRoleOwner   OrgRole = "owner"
	OrgRoleAdmin   OrgRole = "admin"
	OrgRoleManager OrgRole = "manager"
	OrgRoleMember  OrgRole = "member"
)

var orgRoleRank = map[OrgRole]int{
	OrgRoleMember:  1,
	OrgRoleManager: 2,
	OrgRoleAdmin:   3,
	OrgRoleOwner:   4,
}

// OrgRoles lists every organization role, lowest rank first.
func OrgRoles() []OrgRole {
	return []OrgRole{OrgRoleMember, OrgRoleManager, OrgRoleAdmin, OrgRoleOwner}
}

// OrgRoleNames is OrgRoles as plain strings.
func OrgRoleNames() []string {
	roles := OrgRoles()
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return names
}

func (r OrgRole) Valid() bool {
	_, ok := orgRoleRank[r]
	return ok
}

// Rank orders organization roles; unknown roles rank 0.
func (r OrgRole) Rank() int {
	return orgRoleRank[r]
}

// CanManageMembers reports whether r may change roles or remove members.
func CanManageMembers(r OrgRole) bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin
}

// CanInvite reports whether r may send invitations.
func CanInvite(r OrgRole) bool {
	return r == OrgRoleOwner || r == OrgRoleAdmin || r == OrgRoleManager
}

// CanGrant reports whether a member holding granter may invite someone with
// target. Owner is never grantable through an invitation.
func CanGrant(granter, target OrgRole) bool {
	if !target.Valid() || target == OrgRoleOwner {
		return false
	}
	return target.Rank() <= granter.Rank()
}

// CanAssign reports whether granter may change a member's role to target.
// Only owners may hand out (or take away) ownership.
func CanAssign(granter, current, target OrgRole) bool {
	if !target.Valid() || !CanManageMembers(granter) {
		return false
	}
	if target == OrgRoleOwner || current == OrgRoleOwner {
		return granter == OrgRoleOwner
	}
	return target.Rank() <= granter.Rank()
}
