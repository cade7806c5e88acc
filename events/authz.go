package events

// PermissionDenied is emitted when a guarded capability check fails.
type PermissionDenied struct {
	Permissions []string
	Route       string
}

// Permissions carries the settled authorization snapshot.
type Permissions struct {
	User             User
	Permissions      []string
	AccessibleRoutes []string
}

var (
	AuthzPermissionDenied   = NewKey[PermissionDenied]("authz:permission-denied")
	AuthzPermissionsReady   = NewKey[Permissions]("authz:permissions-ready")
	AuthzPermissionsUpdated = NewKey[Permissions]("authz:permissions-updated")
)
