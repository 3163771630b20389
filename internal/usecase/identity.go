package usecase

import (
	"context"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

// IdentityService holds the administrative identity operations.
type IdentityService struct {
	tx         port.Transactor
	identities port.IdentityRepository
	ledger     *AuditLedger
}

// NewIdentityService wires the admin identity operations.
func NewIdentityService(tx port.Transactor, identities port.IdentityRepository, ledger *AuditLedger) *IdentityService {
	return &IdentityService{tx: tx, identities: identities, ledger: ledger}
}

// ListIdentities returns every identity summary. Credential hashes never leave the store layer.
func (s *IdentityService) ListIdentities(ctx context.Context, callerID string, ip *string) ([]domain.IdentitySummary, error) {
	if _, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapIdentitiesList, "identities:list", ip); err != nil {
		return nil, err
	}

	identities, err := s.identities.List(ctx)
	if err != nil {
		return nil, translate("list identities", err)
	}
	out := make([]domain.IdentitySummary, len(identities))
	for i, identity := range identities {
		out[i] = identity.Summary()
	}
	return out, nil
}

// ChangeRole sets another identity's role from the fixed enumeration.
func (s *IdentityService) ChangeRole(ctx context.Context, callerID, targetID, rawRole string, ip *string) (domain.IdentitySummary, error) {
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return domain.IdentitySummary{}, err
	}

	caller, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapIdentitiesChangeRole, "identities:change-role", ip)
	if err != nil {
		return domain.IdentitySummary{}, err
	}
	if caller.ID == targetID {
		return domain.IdentitySummary{}, ErrSelfModification
	}

	target, err := s.identities.GetByID(ctx, targetID)
	if err != nil {
		return domain.IdentitySummary{}, translate("load target identity", err)
	}
	if target.Role == role {
		return target.Summary(), nil
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.Identities.UpdateRole(ctx, target.ID, role); err != nil {
			return translate("update role", err)
		}
		_, err := s.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.RoleChangedDetails{
			TargetID: target.ID,
			From:     target.Role,
			To:       role,
		}))
		return err
	})
	if err != nil {
		return domain.IdentitySummary{}, err
	}

	target.Role = role
	return target.Summary(), nil
}

// DeleteIdentity removes another identity together with every API key it owns.
func (s *IdentityService) DeleteIdentity(ctx context.Context, callerID, targetID string, ip *string) error {
	caller, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapIdentitiesDelete, "identities:delete", ip)
	if err != nil {
		return err
	}
	if caller.ID == targetID {
		return ErrSelfModification
	}

	target, err := s.identities.GetByID(ctx, targetID)
	if err != nil {
		return translate("load target identity", err)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		removed, err := stores.APIKeys.DeleteByOwner(ctx, target.ID)
		if err != nil {
			return translate("delete owned api keys", err)
		}
		if err := stores.Identities.Delete(ctx, target.ID); err != nil {
			return translate("delete identity", err)
		}
		_, err = s.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.IdentityDeletedDetails{
			TargetID:    target.ID,
			KeysRemoved: removed,
		}))
		return err
	})
}
