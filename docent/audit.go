package docent

import (
	"context"
	"time"

	"github.com/docent-db/docent/docent/store"
)

// AuditCollectionName is the collection audit-trail records land in,
// alongside the audited collections in the same database.
const AuditCollectionName = "_audit_log"

// AuditContext identifies the actor behind a write for the audit trail.
// Attach it to the context with WithAuditContext; collections built with
// WithAudit record it on every write.
type AuditContext struct {
	UserID    string
	IPAddress string
	RequestID string
	Extra     map[string]any
}

type auditCtxKey struct{}

// WithAuditContext attaches actor information to ctx.
func WithAuditContext(ctx context.Context, ac AuditContext) context.Context {
	return context.WithValue(ctx, auditCtxKey{}, ac)
}

// AuditContextFrom extracts the actor information from ctx, if any.
func AuditContextFrom(ctx context.Context) (AuditContext, bool) {
	ac, ok := ctx.Value(auditCtxKey{}).(AuditContext)
	return ac, ok
}

// writeAudit records one write in the audit trail. Audit failures are
// logged, never surfaced: the audited operation has already succeeded.
func (c *Collection[T]) writeAudit(ctx context.Context, action string, id ID, fields []string) {
	if !c.audit {
		return
	}
	conn, err := c.conns.Get(c.alias)
	if err != nil {
		c.logger.Warn("audit record dropped", "collection", c.name, "error", err)
		return
	}

	record := store.Doc{
		"_id":        NewID(),
		"collection": c.name,
		"entity":     c.entity,
		"entity_id":  id,
		"action":     action,
		"at":         time.Now().UTC(),
	}
	if len(fields) > 0 {
		record["fields"] = fields
	}
	if ac, ok := AuditContextFrom(ctx); ok {
		if ac.UserID != "" {
			record["user_id"] = ac.UserID
		}
		if ac.IPAddress != "" {
			record["ip_address"] = ac.IPAddress
		}
		if ac.RequestID != "" {
			record["request_id"] = ac.RequestID
		}
		if len(ac.Extra) > 0 {
			record["extra"] = ac.Extra
		}
	}

	if _, err := conn.Database().Collection(AuditCollectionName).InsertOne(ctx, record); err != nil {
		c.logger.Warn("audit record dropped", "collection", c.name, "error", err)
	}
}
