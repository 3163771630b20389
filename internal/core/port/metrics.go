package port

import "github.com/KVLNK12305/Akira/internal/core/domain"

// SecurityMetrics records outcome counters for the security engine.
type SecurityMetrics interface {
	AuditAppended(action domain.AuditAction)
	KeyAuthentication(outcome string)
	LoginOutcome(stage string, outcome string)
}
