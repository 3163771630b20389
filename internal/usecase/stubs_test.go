package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
	"github.com/KVLNK12305/Akira/internal/infra/security"
	"github.com/KVLNK12305/Akira/internal/repository"
)

// memStore backs every repository port. WithinTx snapshots state and restores it on error.
type memStore struct {
	mu         sync.Mutex
	identities map[string]domain.Identity
	keys       map[string]domain.APIKey
	audit      []domain.AuditEntry
	requests   map[string]domain.AccessRequest

	auditErr func(entry domain.AuditEntry) error
}

func newMemStore() *memStore {
	return &memStore{
		identities: make(map[string]domain.Identity),
		keys:       make(map[string]domain.APIKey),
		requests:   make(map[string]domain.AccessRequest),
	}
}

type memSnapshot struct {
	identities map[string]domain.Identity
	keys       map[string]domain.APIKey
	audit      []domain.AuditEntry
	requests   map[string]domain.AccessRequest
}

func (s *memStore) snapshot() memSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := memSnapshot{
		identities: make(map[string]domain.Identity, len(s.identities)),
		keys:       make(map[string]domain.APIKey, len(s.keys)),
		audit:      append([]domain.AuditEntry(nil), s.audit...),
		requests:   make(map[string]domain.AccessRequest, len(s.requests)),
	}
	for k, v := range s.identities {
		snap.identities[k] = v
	}
	for k, v := range s.keys {
		snap.keys[k] = v
	}
	for k, v := range s.requests {
		snap.requests[k] = v
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities = snap.identities
	s.keys = snap.keys
	s.audit = snap.audit
	s.requests = snap.requests
}

func (s *memStore) stores() port.Stores {
	return port.Stores{
		Identities:     memIdentities{s},
		APIKeys:        memKeys{s},
		Audit:          memAudit{s},
		AccessRequests: memRequests{s},
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, stores port.Stores) error) error {
	snap := s.snapshot()
	if err := fn(ctx, s.stores()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) entries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.audit...)
}

func (s *memStore) entriesFor(action domain.AuditAction) []domain.AuditEntry {
	var out []domain.AuditEntry
	for _, e := range s.entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type memIdentities struct{ s *memStore }

func (r memIdentities) Create(_ context.Context, identity domain.Identity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.identities {
		if existing.Email == identity.Email {
			return repository.ErrConflict
		}
	}
	r.s.identities[identity.ID] = identity
	return nil
}

func (r memIdentities) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &identity, nil
}

func (r memIdentities) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, identity := range r.s.identities {
		if identity.Email == email {
			found := identity
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memIdentities) List(ctx context.Context) ([]domain.Identity, error) {
	return r.filter(func(domain.Identity) bool { return true }), nil
}

func (r memIdentities) ListByRole(_ context.Context, role domain.Role) ([]domain.Identity, error) {
	return r.filter(func(i domain.Identity) bool { return i.Role == role }), nil
}

func (r memIdentities) filter(keep func(domain.Identity) bool) []domain.Identity {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.Identity, 0)
	for _, identity := range r.s.identities {
		if keep(identity) {
			out = append(out, identity)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memIdentities) UpdateRole(_ context.Context, id string, role domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	identity, ok := r.s.identities[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Role = role
	r.s.identities[id] = identity
	return nil
}

func (r memIdentities) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.identities[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.identities, id)
	return nil
}

type memKeys struct{ s *memStore }

func (r memKeys) Create(_ context.Context, key domain.APIKey) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.keys {
		if existing.Fingerprint == key.Fingerprint {
			return repository.ErrConflict
		}
	}
	r.s.keys[key.ID] = key
	return nil
}

func (r memKeys) GetByID(_ context.Context, id string) (*domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key, ok := r.s.keys[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &key, nil
}

func (r memKeys) GetByFingerprint(_ context.Context, fingerprint string) (*domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, key := range r.s.keys {
		if key.Fingerprint == fingerprint {
			found := key
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memKeys) ListByOwner(_ context.Context, ownerID string) ([]domain.APIKey, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.APIKey, 0)
	for _, key := range r.s.keys {
		if key.OwnerID == ownerID {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memKeys) Rotate(_ context.Context, rotation port.KeyRotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key, ok := r.s.keys[rotation.KeyID]
	if !ok || key.Fingerprint != rotation.PreviousFingerprint || !key.IsActive {
		return repository.ErrConflict
	}
	rotatedAt := rotation.RotatedAt
	key.Fingerprint = rotation.Fingerprint
	key.CipherText = rotation.CipherText
	key.IV = rotation.IV
	key.ExpiresAt = rotation.ExpiresAt
	key.RotatedAt = &rotatedAt
	r.s.keys[key.ID] = key
	return nil
}

func (r memKeys) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.keys[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.keys, id)
	return nil
}

func (r memKeys) DeleteByOwner(_ context.Context, ownerID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	removed := 0
	for id, key := range r.s.keys {
		if key.OwnerID == ownerID {
			delete(r.s.keys, id)
			removed++
		}
	}
	return removed, nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Insert(_ context.Context, entry domain.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditErr != nil {
		if err := r.s.auditErr(entry); err != nil {
			return err
		}
	}
	r.s.audit = append(r.s.audit, entry)
	return nil
}

func (r memAudit) Query(_ context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	matched := make([]domain.AuditEntry, 0)
	for _, e := range r.s.audit {
		if filter.ActorID != nil && (e.ActorID == nil || *e.ActorID != *filter.ActorID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		matched = append(matched, e)
	}
	if filter.Order != domain.SortOldestFirst {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	if filter.Offset >= len(matched) {
		return []domain.AuditEntry{}, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r memAudit) Update(context.Context, domain.AuditEntry) error {
	return domain.ErrImmutabilityViolation
}

func (r memAudit) Delete(context.Context, string) error {
	return domain.ErrImmutabilityViolation
}

type memRequests struct{ s *memStore }

func (r memRequests) Create(_ context.Context, request domain.AccessRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.requests {
		if existing.RequesterID == request.RequesterID && existing.Status == domain.AccessRequestPending {
			return repository.ErrConflict
		}
	}
	r.s.requests[request.ID] = request
	return nil
}

func (r memRequests) GetByID(_ context.Context, id string) (*domain.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &request, nil
}

func (r memRequests) GetPendingByRequester(_ context.Context, requesterID string) (*domain.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, request := range r.s.requests {
		if request.RequesterID == requesterID && request.Status == domain.AccessRequestPending {
			found := request
			return &found, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r memRequests) ListByStatus(_ context.Context, status domain.AccessRequestStatus) ([]domain.AccessRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.AccessRequest, 0)
	for _, request := range r.s.requests {
		if request.Status == status {
			out = append(out, request)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r memRequests) Resolve(_ context.Context, id string, status domain.AccessRequestStatus, reviewerID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	request, ok := r.s.requests[id]
	if !ok || request.Status != domain.AccessRequestPending {
		return repository.ErrConflict
	}
	request.Status = status
	request.ReviewedBy = &reviewerID
	request.ReviewedAt = &at
	r.s.requests[id] = request
	return nil
}

type memChallenges struct {
	mu     sync.Mutex
	items  map[string]domain.PendingChallenge
	calls  int
	onRead func()
}

func newMemChallenges() *memChallenges {
	return &memChallenges{items: make(map[string]domain.PendingChallenge)}
}

func (c *memChallenges) Put(_ context.Context, challenge domain.PendingChallenge, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[challenge.Email] = challenge
	return nil
}

// Attempt mirrors the store's single-step verification under one lock. onRead, when set,
// runs before the lock is taken so tests can line up concurrent callers.
func (c *memChallenges) Attempt(_ context.Context, email, codeDigest string, maxAttempts int, at time.Time) (domain.ChallengeAttempt, error) {
	if c.onRead != nil {
		c.onRead()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++

	challenge, ok := c.items[email]
	if !ok {
		return domain.ChallengeAttempt{Verdict: domain.ChallengeAbsent}, nil
	}
	result := domain.ChallengeAttempt{IdentityID: challenge.IdentityID, AttemptCount: challenge.AttemptCount}
	switch {
	case challenge.Expired(at):
		delete(c.items, email)
		result.Verdict = domain.ChallengeLapsed
	case challenge.Exhausted(maxAttempts):
		delete(c.items, email)
		result.Verdict = domain.ChallengeLockedOut
	case challenge.CodeDigest == codeDigest:
		delete(c.items, email)
		result.Verdict = domain.ChallengeConsumed
	default:
		challenge.AttemptCount++
		c.items[email] = challenge
		result.Verdict = domain.ChallengeMismatched
		result.AttemptCount = challenge.AttemptCount
	}
	return result, nil
}

func (c *memChallenges) Delete(_ context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[email]; !ok {
		return repository.ErrNotFound
	}
	delete(c.items, email)
	return nil
}

func (c *memChallenges) peek(email string) (domain.PendingChallenge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	challenge, ok := c.items[email]
	return challenge, ok
}

func (c *memChallenges) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

type memRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
}

func (r *memRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.revoked == nil {
		r.revoked = make(map[string]time.Time)
	}
	r.revoked[tokenID] = until
	return nil
}

func (r *memRevocations) Revoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type recordingNotifier struct {
	mu         sync.Mutex
	challenges []domain.ChallengeNotification
	alerts     []domain.AccessRequestNotification
	err        error
}

func (n *recordingNotifier) SendChallenge(_ context.Context, notification domain.ChallengeNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.challenges = append(n.challenges, notification)
	return n.err
}

func (n *recordingNotifier) SendAccessRequestAlert(_ context.Context, notification domain.AccessRequestNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, notification)
	return n.err
}

func (n *recordingNotifier) lastCode(t *testing.T, email string) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.challenges) - 1; i >= 0; i-- {
		if n.challenges[i].Email == email {
			return n.challenges[i].Code
		}
	}
	t.Fatalf("no challenge delivered to %s", email)
	return ""
}

type failingKeySource struct{ err error }

func (s failingKeySource) NewSecret(context.Context) (port.GeneratedSecret, error) {
	return port.GeneratedSecret{}, s.err
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store       *memStore
	challenges  *memChallenges
	revocations *memRevocations
	notifier    *recordingNotifier
	dispatcher  *Dispatcher
	clock       *testClock
	hasher      *security.Argon2Hasher
	signer      *security.AuditSigner
	vault       *security.Vault
	tokens      *security.SessionTokenManager

	ledger     *AuditLedger
	keys       *APIKeyManager
	auth       *AuthSessionMachine
	identities *IdentityService
	requests   *AccessRequestService
	audit      *AuditService
}

type fixtureOptions struct {
	rotationSource port.KeySource
	revocations    bool
}

func testKey(fill byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = fill
	}
	return key
}

func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()

	logger := zaptest.NewLogger(t)
	f := &fixture{
		store:      newMemStore(),
		challenges: newMemChallenges(),
		notifier:   &recordingNotifier{},
		clock:      &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
	}

	var err error
	f.hasher, err = security.NewArgon2Hasher(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2Hasher: %v", err)
	}
	f.signer, err = security.NewAuditSigner(testKey(0x11))
	if err != nil {
		t.Fatalf("NewAuditSigner: %v", err)
	}
	f.vault, err = security.NewVault(testKey(0x22))
	if err != nil {
		t.Fatalf("NewVault: %v", err)
	}
	f.tokens, err = security.NewSessionTokenManager(security.SessionTokenOptions{Key: testKey(0x33)})
	if err != nil {
		t.Fatalf("NewSessionTokenManager: %v", err)
	}
	f.tokens.WithClock(f.clock.Now)

	stores := f.store.stores()
	f.dispatcher = NewDispatcher(f.notifier, time.Second, logger)
	f.ledger = NewAuditLedger(stores.Audit, f.signer, logger).WithClock(f.clock.Now)

	f.keys = NewAPIKeyManager(f.store, stores.Identities, stores.APIKeys, f.ledger, f.vault, APIKeyManagerOptions{
		RotationSource: opts.rotationSource,
		Logger:         logger,
	}).WithClock(f.clock.Now)

	authOpts := AuthSessionOptions{Logger: logger}
	if opts.revocations {
		f.revocations = &memRevocations{}
		authOpts.Revocations = f.revocations
	}
	f.auth = NewAuthSessionMachine(
		f.store,
		stores.Identities,
		f.challenges,
		f.hasher,
		security.NewPasswordPolicy(security.PasswordPolicyOptions{}),
		f.tokens,
		f.ledger,
		f.dispatcher,
		authOpts,
	).WithClock(f.clock.Now)

	f.identities = NewIdentityService(f.store, stores.Identities, f.ledger)
	f.requests = NewAccessRequestService(f.store, stores.Identities, stores.AccessRequests, f.ledger, f.dispatcher).WithClock(f.clock.Now)
	f.audit = NewAuditService(stores.Identities, f.ledger, f.signer).WithClock(f.clock.Now)

	t.Cleanup(f.dispatcher.Wait)
	return f
}

func (f *fixture) seedIdentity(t *testing.T, id, email string, role domain.Role) domain.Identity {
	t.Helper()
	hash, err := f.hasher.Hash("Str0ng!Pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	identity := domain.Identity{
		ID:             id,
		DisplayName:    strings.Split(email, "@")[0],
		Email:          email,
		CredentialHash: hash,
		Role:           role,
		CreatedAt:      f.clock.Now(),
	}
	if err := f.store.stores().Identities.Create(context.Background(), identity); err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return identity
}

var errStoreDown = errors.New("store down")
