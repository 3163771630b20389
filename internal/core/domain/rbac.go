package domain

// Capability names a privileged action guarded by the access policy.
type Capability string

const (
	CapKeysIssue            Capability = "keys:issue"
	CapKeysManageOwn        Capability = "keys:manage-own"
	CapKeysRecover          Capability = "keys:recover"
	CapAuditReadOwn         Capability = "audit:read-own"
	CapAuditExport          Capability = "audit:export"
	CapIdentitiesList       Capability = "identities:list"
	CapIdentitiesChangeRole Capability = "identities:change-role"
	CapIdentitiesDelete     Capability = "identities:delete"
	CapAccessRequestSubmit  Capability = "access-requests:submit"
	CapAccessRequestReview  Capability = "access-requests:review"
)

var policyTable = map[Role]map[Capability]struct{}{
	RoleAdmin: capabilitySet(
		CapKeysIssue, CapKeysManageOwn, CapKeysRecover,
		CapAuditReadOwn, CapAuditExport,
		CapIdentitiesList, CapIdentitiesChangeRole, CapIdentitiesDelete,
		CapAccessRequestSubmit, CapAccessRequestReview,
	),
	RoleAuditor: capabilitySet(
		CapAuditReadOwn, CapAuditExport, CapAccessRequestSubmit,
	),
	RoleDeveloper: capabilitySet(
		CapKeysIssue, CapKeysManageOwn, CapAuditReadOwn, CapAccessRequestSubmit,
	),
	RoleNewbie: capabilitySet(
		CapAuditReadOwn, CapAccessRequestSubmit,
	),
}

func capabilitySet(caps ...Capability) map[Capability]struct{} {
	set := make(map[Capability]struct{}, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// CanPerform is the access policy: a pure role by capability table lookup.
// Unknown roles and capabilities are denied.
func CanPerform(role Role, capability Capability) bool {
	caps, ok := policyTable[role]
	if !ok {
		return false
	}
	_, ok = caps[capability]
	return ok
}
