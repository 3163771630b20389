package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/repository"
)

// ErrPendingRequestExists reports a second open request from the same identity.
var ErrPendingRequestExists = fmt.Errorf("an access request is already pending: %w", domain.ErrConflict)

// AccessRequestService lets identities ask for elevation and lets admins decide.
type AccessRequestService struct {
	tx         port.Transactor
	identities port.IdentityRepository
	requests   port.AccessRequestRepository
	ledger     *AuditLedger
	dispatcher *Dispatcher
	now        func() time.Time
	newID      func() string
}

// NewAccessRequestService wires the elevation workflow.
func NewAccessRequestService(
	tx port.Transactor,
	identities port.IdentityRepository,
	requests port.AccessRequestRepository,
	ledger *AuditLedger,
	dispatcher *Dispatcher,
) *AccessRequestService {
	return &AccessRequestService{
		tx:         tx,
		identities: identities,
		requests:   requests,
		ledger:     ledger,
		dispatcher: dispatcher,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// WithClock overrides the time source.
func (s *AccessRequestService) WithClock(now func() time.Time) *AccessRequestService {
	if now != nil {
		s.now = now
	}
	return s
}

// Submit opens an elevation request and alerts administrators.
func (s *AccessRequestService) Submit(ctx context.Context, callerID, rawRole, reason string, ip *string) (*domain.AccessRequest, error) {
	role, err := domain.ParseRole(rawRole)
	if err != nil {
		return nil, err
	}
	if !role.Requestable() {
		return nil, domain.NewValidationError("requested_role", "role cannot be requested")
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < domain.MinAccessRequestReason {
		return nil, domain.NewValidationError("reason", fmt.Sprintf("reason must be at least %d characters", domain.MinAccessRequestReason))
	}

	caller, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapAccessRequestSubmit, "access-requests:submit", ip)
	if err != nil {
		return nil, err
	}
	if caller.Role == role {
		return nil, domain.NewValidationError("requested_role", "role already held")
	}

	if _, err := s.requests.GetPendingByRequester(ctx, caller.ID); err == nil {
		return nil, ErrPendingRequestExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, translate("load pending request", err)
	}

	request := domain.AccessRequest{
		ID:            s.newID(),
		RequesterID:   caller.ID,
		RequestedRole: role,
		Reason:        reason,
		Status:        domain.AccessRequestPending,
		CreatedAt:     s.now().UTC(),
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.AccessRequests.Create(ctx, request); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return ErrPendingRequestExists
			}
			return translate("create access request", err)
		}
		_, err := s.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.AccessRequestSubmittedDetails{
			RequestID:     request.ID,
			RequestedRole: role,
			CurrentRole:   caller.Role,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}

	s.notifyAdmins(ctx, caller, request)
	return &request, nil
}

func (s *AccessRequestService) notifyAdmins(ctx context.Context, caller *domain.Identity, request domain.AccessRequest) {
	admins, err := s.identities.ListByRole(ctx, domain.RoleAdmin)
	if err != nil || len(admins) == 0 {
		return
	}
	recipients := make([]string, len(admins))
	for i, admin := range admins {
		recipients[i] = admin.Email
	}
	s.dispatcher.AccessRequest(domain.AccessRequestNotification{
		EventID:       s.newID(),
		RequestID:     request.ID,
		RequesterID:   caller.ID,
		RequesterName: caller.DisplayName,
		RequestedRole: request.RequestedRole,
		Reason:        request.Reason,
		Recipients:    recipients,
		SubmittedAt:   request.CreatedAt,
	})
}

// ListPending returns open requests oldest first.
func (s *AccessRequestService) ListPending(ctx context.Context, callerID string, ip *string) ([]domain.AccessRequest, error) {
	if _, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapAccessRequestReview, "access-requests:review", ip); err != nil {
		return nil, err
	}
	requests, err := s.requests.ListByStatus(ctx, domain.AccessRequestPending)
	if err != nil {
		return nil, translate("list access requests", err)
	}
	return requests, nil
}

// Process approves or rejects a pending request. Approval elevates the requester in the same transaction.
func (s *AccessRequestService) Process(ctx context.Context, callerID, requestID, rawDecision string, ip *string) (*domain.AccessRequest, error) {
	decision, err := domain.ParseDecision(rawDecision)
	if err != nil {
		return nil, err
	}

	caller, err := authorize(ctx, s.identities, s.ledger, callerID, domain.CapAccessRequestReview, "access-requests:review", ip)
	if err != nil {
		return nil, err
	}

	request, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, translate("load access request", err)
	}
	if request.Status != domain.AccessRequestPending {
		return nil, fmt.Errorf("access request already %s: %w", strings.ToLower(string(request.Status)), domain.ErrConflict)
	}

	reviewedAt := s.now().UTC()
	err = s.tx.WithinTx(ctx, func(ctx context.Context, stores port.Stores) error {
		if err := stores.AccessRequests.Resolve(ctx, request.ID, decision, caller.ID, reviewedAt); err != nil {
			return translate("resolve access request", err)
		}
		if decision == domain.AccessRequestApproved {
			if err := stores.Identities.UpdateRole(ctx, request.RequesterID, request.RequestedRole); err != nil {
				return translate("elevate requester", err)
			}
		}
		_, err := s.ledger.WithRepository(stores.Audit).Append(ctx, actorDraft(caller, ip, domain.AccessRequestDecisionDetails{
			RequestID:     request.ID,
			RequesterID:   request.RequesterID,
			RequestedRole: request.RequestedRole,
			Decision:      decision,
		}))
		return err
	})
	if err != nil {
		return nil, err
	}

	request.Status = decision
	request.ReviewedBy = &caller.ID
	request.ReviewedAt = &reviewedAt
	return request, nil
}
