package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KVLNK12305/Akira/internal/core/domain"
	"github.com/KVLNK12305/Akira/internal/core/port"
)

// Namespace prefixes every metric the service exports.
const Namespace = "akira"

// DomainMetrics counts security outcomes: ledger appends, key authentications and login stages.
type DomainMetrics struct {
	AuditEntries *prometheus.CounterVec
	KeyAuth      *prometheus.CounterVec
	Logins       *prometheus.CounterVec
}

// NewDomainMetrics registers the collectors with reg, reusing collectors that are already registered.
func NewDomainMetrics(reg prometheus.Registerer) (*DomainMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	audit, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "audit",
		Name:      "entries_appended_total",
		Help:      "Audit entries appended to the ledger partitioned by action.",
	}, "action")
	if err != nil {
		return nil, err
	}

	keyAuth, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "api_keys",
		Name:      "authentications_total",
		Help:      "API key authentication attempts partitioned by outcome.",
	}, "outcome")
	if err != nil {
		return nil, err
	}

	logins, err := registerCounterVec(reg, prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "auth",
		Name:      "login_outcomes_total",
		Help:      "Login state machine transitions partitioned by stage and outcome.",
	}, "stage", "outcome")
	if err != nil {
		return nil, err
	}

	return &DomainMetrics{AuditEntries: audit, KeyAuth: keyAuth, Logins: logins}, nil
}

func registerCounterVec(reg prometheus.Registerer, opts prometheus.CounterOpts, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(opts, labels)
	if err := reg.Register(vec); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, fmt.Errorf("register %s: %w", opts.Name, err)
		}
		existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
		if !ok {
			return nil, fmt.Errorf("existing %s collector has unexpected type %T", opts.Name, already.ExistingCollector)
		}
		return existing, nil
	}
	return vec, nil
}

// AuditAppended implements port.SecurityMetrics.
func (m *DomainMetrics) AuditAppended(action domain.AuditAction) {
	m.AuditEntries.WithLabelValues(string(action)).Inc()
}

// KeyAuthentication implements port.SecurityMetrics.
func (m *DomainMetrics) KeyAuthentication(outcome string) {
	m.KeyAuth.WithLabelValues(outcome).Inc()
}

// LoginOutcome implements port.SecurityMetrics.
func (m *DomainMetrics) LoginOutcome(stage, outcome string) {
	m.Logins.WithLabelValues(stage, outcome).Inc()
}

var _ port.SecurityMetrics = (*DomainMetrics)(nil)
