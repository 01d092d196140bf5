package usercontext

// Locals keys and gateway headers shared by middlewares and controllers
const (
	LocalsKey = "USER_CONTEXT"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

// Roles a gateway may assert for a caller
const (
	RoleClient = "client"
	RoleVendor = "vendor"
	RoleAdmin  = "admin"
)
