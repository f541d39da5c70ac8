package rbac

const (
	RoleInstructor = "instructor"
	RoleAdmin      = "admin"
)

const (
	PermClassIssue   = "class:issue"
	PermResultsView  = "results:view"
	PermBankStats    = "bank:stats"
	PermCertDownload = "certificate:download"
)

// RolePermissions is the default policy. Students never authenticate; their
// endpoints are public and guarded by the single-use link instead.
var RolePermissions = map[string][]string{
	RoleInstructor: {
		PermClassIssue,
		PermResultsView,
		PermBankStats,
		PermCertDownload,
	},
	RoleAdmin: {
		"*",
	},
}
