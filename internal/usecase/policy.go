package usecase

import (
	"context"
	"errors"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/repository"
)

// Denial reasons recorded with ACCESS_DENIED.
const (
	denyUnknownCaller    = "unknown_caller"
	denyInsufficientRole = "insufficient_role"
	denyNotOwner         = "not_owner"
	denyInvalidAPIKey    = "invalid_api_key"
	denyMissingScope     = "missing_scope"
)

// authorize resolves the caller and consults the access policy. Every denial is audited.
func authorize(
	ctx context.Context,
	identities port.IdentityRepository,
	ledger *AuditLedger,
	callerID string,
	capability domain.Capability,
	resource string,
	ip *string,
) (*domain.Identity, error) {
	caller, err := identities.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ledger.deny(ctx, nil, ip, domain.AccessDeniedDetails{
				Reason:     denyUnknownCaller,
				Resource:   resource,
				Capability: capability,
			}, domain.ErrDenied)
		}
		return nil, translate("load caller", err)
	}

	if !domain.CanPerform(caller.Role, capability) {
		return nil, ledger.deny(ctx, caller, ip, domain.AccessDeniedDetails{
			Reason:     denyInsufficientRole,
			Resource:   resource,
			Capability: capability,
		}, domain.ErrForbidden)
	}

	return caller, nil
}

// deny appends ACCESS_DENIED and returns cause. A failed append is reported alongside cause.
func (l *AuditLedger) deny(ctx context.Context, caller *domain.Identity, ip *string, details domain.AccessDeniedDetails, cause error) error {
	draft := domain.AuditDraft{IPAddress: ip, Details: details}
	if caller != nil {
		draft.ActorID = &caller.ID
		draft.ActorDisplay = caller.DisplayName
	}
	if _, err := l.Append(ctx, draft); err != nil {
		return errors.Join(err, cause)
	}
	return cause
}

func actorDraft(identity *domain.Identity, ip *string, details domain.AuditDetails) domain.AuditDraft {
	return domain.AuditDraft{
		ActorID:      &identity.ID,
		ActorDisplay: identity.DisplayName,
		IPAddress:    ip,
		Details:      details,
	}
}
