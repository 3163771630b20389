package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/logger"
	"github.com/KVLNK12305/Akira/internal/infra/security"
	"github.com/KVLNK12305/Akira/internal/repository"
)

const maxKeyNameLength = 64

// Key authentication outcomes reported to metrics.
const (
	KeyAuthSuccess = "success"
	KeyAuthDenied  = "denied"
	KeyAuthError   = "error"
)

// APIKeyManagerOptions configures optional key lifecycle behaviour.
type APIKeyManagerOptions struct {
	// Validity is granted on issue and reset on rotation.
	Validity time.Duration
	// IssueSource generates secrets for new keys. Defaults to the local CSPRNG.
	IssueSource port.KeySource
	// RotationSource generates secrets on rotation, usually a device source with fallback.
	RotationSource port.KeySource
	Metrics        port.SecurityMetrics
	Logger         *zap.Logger
}

// APIKeyManager owns the machine credential lifecycle.
type APIKeyManager struct {
	tx         port.Transactor
	identities port.IdentityRepository
	keys       port.APIKeyRepository
	ledger     *AuditLedger
	sealer     port.SecretSealer

	issueSource    port.KeySource
	rotationSource port.KeySource
	validity       time.Duration
	metrics        port.SecurityMetrics
	logger         *zap.Logger
	now            func() time.Time
	newID          func() string
}

// NewAPIKeyManager wires the key lifecycle.
func NewAPIKeyManager(
	tx port.Transactor,
	identities port.IdentityRepository,
	keys port.APIKeyRepository,
	ledger *AuditLedger,
	sealer port.SecretSealer,
	opts APIKeyManagerOptions,
) *APIKeyManager {
	validity := opts.Validity
	if validity <= 0 {
		validity = domain.DefaultKeyValidity
	}
	issue := opts.IssueSource
	if issue == nil {
		issue = security.LocalKeySource{}
	}
	rotation := opts.RotationSource
	if rotation == nil {
		rotation = issue
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &APIKeyManager{
		tx:             tx,
		identities:     identities,
		keys:           keys,
		ledger:         ledger,
		sealer:         sealer,
		issueSource:    issue,
		rotationSource: rotation,
		validity:       validity,
		metrics:        metricsOrNoop(opts.Metrics),
		logger:         log,
		now:            time.Now,
		newID:          uuid.NewString,
	}
}

// WithClock overrides the time source.
func (m *APIKeyManager) WithClock(now func() time.Time) *APIKeyManager {
	if now != nil {
		m.now = now
	}
	return m
}

// IssueKeyInput carries an issue request.
type IssueKeyInput struct {
	CallerID  string
	Name      string
	Scopes    []string
	IPAddress *string
}

// IssuedKey is returned exactly once. Secret is never retrievable again.
type IssuedKey struct {
	KeyID     string
	Name      string
	Secret    string
	Scopes    []domain.Scope
	ExpiresAt time.Time
}

// Issue generates, seals and persists a new key, returning its plaintext once.
func (m *APIKeyManager) Issue(ctx context.Context, in IssueKeyInput) (*IssuedKey, error) {
	ctx, span := tracer.Start(ctx, "APIKeyManager.Issue")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" || len(name) > maxKeyNameLength {
		return nil, domain.NewValidationError("name", fmt.Sprintf("name must be 1-%d characters", maxKeyNameLength))
	}
	scopes, err := domain.ParseScopes(in.Scopes)
	if err != nil {
		return nil, err
	}

	caller, err := authorize(ctx, m.identities, m.ledger, in.CallerID, domain.CapKeysIssue, "keys:issue", in.IPAddress)
	if err != nil {
		return nil, err
	}

	generated, err := m.issueSource.NewSecret(ctx)
	if err != nil {
		return nil, translate("generate api key secret", err)
	}
	iv, cipherText, err := m.sealer.Encrypt(generated.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal api key secret: %w", err)
	}

	now := m.now().UTC()
	key := domain.APIKey{
		ID:          m.newID(),
		OwnerID:     caller.ID,
		Name:        name,
		CipherText:  cipherText,
		IV:          iv,
		Fingerprint: security.Fingerprint(generated.Secret),
		Scopes:      scopes,
		ExpiresAt:   now.Add(m.validity),
		IsActive:    true,
		CreatedAt:   now,
	}

	err = m.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.APIKeys.Create(ctx, key); err != nil {
			return translate("create api key", err)
		}
		_, err := m.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, in.IPAddress, domain.KeyIssuedDetails{
			KeyID:        key.ID,
			KeyName:      key.Name,
			Scopes:       key.Scopes,
			ValidityDays: int(m.validity / (24 * time.Hour)),
		}))
		return err
	})
	if err != nil {
		return nil, translate("issue api key", err)
	}

	m.logger.Info("api key issued",
		zap.String("key_id", key.ID),
		zap.String("owner_id", key.OwnerID),
		zap.String("fingerprint", logger.MaskString(key.Fingerprint)),
	)

	return &IssuedKey{
		KeyID:     key.ID,
		Name:      key.Name,
		Secret:    generated.Secret,
		Scopes:    key.Scopes,
		ExpiresAt: key.ExpiresAt,
	}, nil
}

// Rotate replaces the secret of an owned, active key in place. The previous secret stops
// resolving in the same conditional update that makes the new one valid.
func (m *APIKeyManager) Rotate(ctx context.Context, callerID, keyID string, ip *string) (*IssuedKey, error) {
	ctx, span := tracer.Start(ctx, "APIKeyManager.Rotate")
	defer span.End()

	caller, key, err := m.ownedKey(ctx, callerID, keyID, ip, "keys:rotate")
	if err != nil {
		return nil, err
	}
	if !domain.CanPerform(caller.Role, domain.CapKeysManageOwn) {
		return nil, m.ledger.deny(ctx, caller, ip, domain.AccessDeniedDetails{
			Reason:     denyInsufficientRole,
			Resource:   "keys:rotate",
			Capability: domain.CapKeysManageOwn,
		}, domain.ErrForbidden)
	}
	if !key.IsActive {
		return nil, ErrKeyInactive
	}

	generated, err := m.rotationSource.NewSecret(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrEntropyUnavailable) {
			return nil, err
		}
		return nil, translate("generate rotated secret", err)
	}
	span.SetAttributes(attribute.String("entropy.source", generated.Source))

	iv, cipherText, err := m.sealer.Encrypt(generated.Secret)
	if err != nil {
		return nil, fmt.Errorf("seal rotated secret: %w", err)
	}

	now := m.now().UTC()
	rotation := port.KeyRotation{
		KeyID:               key.ID,
		PreviousFingerprint: key.Fingerprint,
		Fingerprint:         security.Fingerprint(generated.Secret),
		CipherText:          cipherText,
		IV:                  iv,
		ExpiresAt:           now.Add(m.validity),
		RotatedAt:           now,
	}

	err = m.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.APIKeys.Rotate(ctx, rotation); err != nil {
			return translate("rotate api key", err)
		}
		_, err := m.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.KeyRotatedDetails{
			KeyID:         key.ID,
			KeyName:       key.Name,
			EntropySource: generated.Source,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("api key rotated",
		zap.String("key_id", key.ID),
		zap.String("entropy_source", generated.Source),
	)

	return &IssuedKey{
		KeyID:     key.ID,
		Name:      key.Name,
		Secret:    generated.Secret,
		Scopes:    key.Scopes,
		ExpiresAt: rotation.ExpiresAt,
	}, nil
}

// Revoke deletes an owned key.
func (m *APIKeyManager) Revoke(ctx context.Context, callerID, keyID string, ip *string) error {
	ctx, span := tracer.Start(ctx, "APIKeyManager.Revoke")
	defer span.End()

	caller, key, err := m.ownedKey(ctx, callerID, keyID, ip, "keys:revoke")
	if err != nil {
		return err
	}

	return m.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.APIKeys.Delete(ctx, key.ID); err != nil {
			return translate("delete api key", err)
		}
		_, err := m.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.KeyDeletedDetails{
			KeyID:   key.ID,
			KeyName: key.Name,
		}))
		return err
	})
}

// Authenticate resolves a presented secret by fingerprint. Every call is audited and every
// failure is the same ErrDenied.
func (m *APIKeyManager) Authenticate(ctx context.Context, presented string, ip *string, resource string) (*domain.MachinePrincipal, error) {
	ctx, span := tracer.Start(ctx, "APIKeyManager.Authenticate")
	defer span.End()

	denied := func() (*domain.MachinePrincipal, error) {
		m.metrics.KeyAuthentication(KeyAuthDenied)
		return nil, m.ledger.deny(ctx, nil, ip, domain.AccessDeniedDetails{
			Reason:   denyInvalidAPIKey,
			Resource: resource,
		}, domain.ErrDenied)
	}

	presented = strings.TrimSpace(presented)
	if !security.HasSecretFormat(presented) {
		return denied()
	}

	key, err := m.keys.GetByFingerprint(ctx, security.Fingerprint(presented))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return denied()
		}
		m.metrics.KeyAuthentication(KeyAuthError)
		return nil, translate("lookup api key", err)
	}
	if !key.Usable(m.now()) {
		return denied()
	}

	if _, err := m.ledger.Append(ctx, domain.AuditDraft{
		ActorID:      &key.OwnerID,
		ActorDisplay: key.Name,
		IPAddress:    ip,
		Details: domain.APIAccessDetails{
			KeyID:    key.ID,
			KeyName:  key.Name,
			Resource: resource,
		},
	}); err != nil {
		m.metrics.KeyAuthentication(KeyAuthError)
		return nil, err
	}

	m.metrics.KeyAuthentication(KeyAuthSuccess)
	return &domain.MachinePrincipal{
		KeyID:   key.ID,
		OwnerID: key.OwnerID,
		KeyName: key.Name,
		Scopes:  key.Scopes,
	}, nil
}

// RequireScope fails with ErrForbidden when the principal lacks scope. The denial is audited.
func (m *APIKeyManager) RequireScope(ctx context.Context, principal *domain.MachinePrincipal, scope domain.Scope, ip *string) error {
	if principal == nil {
		return domain.ErrDenied
	}
	if principal.HasScope(scope) {
		return nil
	}
	_, err := m.ledger.Append(ctx, domain.AuditDraft{
		ActorID:      &principal.OwnerID,
		ActorDisplay: principal.KeyName,
		IPAddress:    ip,
		Details: domain.AccessDeniedDetails{
			Reason:   denyMissingScope,
			Resource: string(scope),
		},
	})
	if err != nil {
		return errors.Join(err, domain.ErrForbidden)
	}
	return fmt.Errorf("scope %s required: %w", scope, domain.ErrForbidden)
}

// List returns metadata for the owner's keys. Secret material is never included.
func (m *APIKeyManager) List(ctx context.Context, ownerID string) ([]domain.APIKeyMetadata, error) {
	keys, err := m.keys.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, translate("list api keys", err)
	}
	now := m.now()
	out := make([]domain.APIKeyMetadata, len(keys))
	for i, k := range keys {
		out[i] = k.Metadata(now)
	}
	return out, nil
}

// Recover decrypts a stored secret for an administrator. It is the only decrypt path.
func (m *APIKeyManager) Recover(ctx context.Context, callerID, keyID string, ip *string) (string, error) {
	ctx, span := tracer.Start(ctx, "APIKeyManager.Recover")
	defer span.End()

	caller, err := authorize(ctx, m.identities, m.ledger, callerID, domain.CapKeysRecover, "keys:recover", ip)
	if err != nil {
		return "", err
	}

	key, err := m.keys.GetByID(ctx, keyID)
	if err != nil {
		return "", translate("load api key", err)
	}

	secret, err := m.sealer.Decrypt(key.IV, key.CipherText)
	if err != nil {
		return "", fmt.Errorf("recover api key: %w", err)
	}

	if _, err := m.ledger.Append(ctx, actorDraft(caller, ip, domain.KeyRecoveredDetails{
		KeyID:   key.ID,
		OwnerID: key.OwnerID,
	})); err != nil {
		return "", err
	}
	return secret, nil
}

func (m *APIKeyManager) ownedKey(ctx context.Context, callerID, keyID string, ip *string, resource string) (*domain.Identity, *domain.APIKey, error) {
	caller, err := m.identities.GetByID(ctx, callerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.ErrDenied
		}
		return nil, nil, translate("load caller", err)
	}

	key, err := m.keys.GetByID(ctx, keyID)
	if err != nil {
		return nil, nil, translate("load api key", err)
	}

	if key.OwnerID != caller.ID {
		return nil, nil, m.ledger.deny(ctx, caller, ip, domain.AccessDeniedDetails{
			Reason:   denyNotOwner,
			Resource: resource,
		}, domain.ErrForbidden)
	}
	return caller, key, nil
}
