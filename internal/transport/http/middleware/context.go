package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/KVLNK12305/Akira/internal/core/domain"
)

// TraceIDHeader carries the caller's correlation id. It is echoed on every response
// and copied into error bodies.
const TraceIDHeader = "X-Trace-ID"

// Keys on gin.Context. Unexported so handlers go through the accessors below.
const (
	traceIDKey          = "akira.trace_id"
	requestContextKey   = "akira.request"
	sessionPrincipalKey = "akira.session_principal"
	machinePrincipalKey = "akira.machine_principal"
)

// RequestContext is the per-request caller summary. IdentityID is filled in once an
// authentication middleware has resolved the caller.
type RequestContext struct {
	TraceID    string
	IdentityID string
	IP         string
	UserAgent  string
}

// EnrichContext assigns the trace id and records caller details for later middleware.
func EnrichContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(TraceIDHeader)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Header(TraceIDHeader, traceID)
		c.Set(traceIDKey, traceID)
		c.Set(requestContextKey, &RequestContext{
			TraceID:   traceID,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Next()
	}
}

func lookup[T any](c *gin.Context, key string) (T, bool) {
	var zero T
	raw, ok := c.Get(key)
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// GetTraceID returns the trace id set by EnrichContext, or "".
func GetTraceID(c *gin.Context) string {
	id, _ := lookup[string](c, traceIDKey)
	return id
}

// GetRequestContext never returns nil. Without EnrichContext the result is a detached value.
func GetRequestContext(c *gin.Context) *RequestContext {
	if rc, ok := lookup[*RequestContext](c, requestContextKey); ok && rc != nil {
		return rc
	}
	return &RequestContext{}
}

// ClientIP returns the caller address recorded on audit entries, or nil when unknown.
func ClientIP(c *gin.Context) *string {
	if ip := c.ClientIP(); ip != "" {
		return &ip
	}
	return nil
}

func setSessionPrincipal(c *gin.Context, p *domain.SessionPrincipal) {
	c.Set(sessionPrincipalKey, p)
	GetRequestContext(c).IdentityID = p.IdentityID
}

func setMachinePrincipal(c *gin.Context, p *domain.MachinePrincipal) {
	c.Set(machinePrincipalKey, p)
	GetRequestContext(c).IdentityID = p.OwnerID
}

// SessionPrincipal returns the operator resolved by RequireSession.
func SessionPrincipal(c *gin.Context) (*domain.SessionPrincipal, bool) {
	p, ok := lookup[*domain.SessionPrincipal](c, sessionPrincipalKey)
	return p, ok && p != nil
}

// MachinePrincipal returns the key resolved by RequireAPIKey.
func MachinePrincipal(c *gin.Context) (*domain.MachinePrincipal, bool) {
	p, ok := lookup[*domain.MachinePrincipal](c, machinePrincipalKey)
	return p, ok && p != nil
}
