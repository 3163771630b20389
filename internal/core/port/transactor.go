package port

import "context"

// Stores groups repositories that share one transaction.
type Stores struct {
	Identities     IdentityRepository
	APIKeys        APIKeyRepository
	Audit          AuditRepository
	AccessRequests AccessRequestRepository
}

// Transactor runs fn atomically. Any error returned by fn rolls the work back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
