package rbac

type Role string
type Capability string

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleAdmin       Role = "admin"
)

const (
	CapRead          Capability = "read"
	CapEditPosts     Capability = "edit_posts"
	CapManageOptions Capability = "manage_options"
)

func Can(role Role, capability Capability) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleEditor, RoleContributor:
		return capability == CapRead || capability == CapEditPosts
	case RoleViewer:
		return capability == CapRead
	default:
		return false
	}
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleViewer, RoleContributor, RoleEditor, RoleAdmin:
		return Role(role)
	default:
		return RoleViewer
	}
}
