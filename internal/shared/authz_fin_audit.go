package shared

// Audit trail permissions for RBAC enforcement.
const (
	PermAuditView = "audit.view"
)

// AuditScopes lists permissions used by the audit timeline.
func AuditScopes() []string {
	return []string{PermAuditView}
}
