package logging

import (
	"go.uber.org/zap"
)

// AuditEventType names a lead lifecycle event.
type AuditEventType string

const (
	AuditScrapeStart    AuditEventType = "scrape_start"
	AuditScrapeComplete AuditEventType = "scrape_complete"
	AuditLeadStored     AuditEventType = "lead_stored"
	AuditLeadDuplicate  AuditEventType = "lead_duplicate"
	AuditLeadSkipped    AuditEventType = "lead_skipped"
	AuditLLMFallback    AuditEventType = "llm_fallback"
	AuditBrowserFetch   AuditEventType = "browser_fetch"
)

// Audit writes a single structured audit line. All audit lines share the
// "audit" logger name and an "event" field so they can be filtered as a stream.
func Audit(l *zap.Logger, event AuditEventType, fields ...zap.Field) {
	if l == nil {
		return
	}
	l.Named("audit").Info(string(event), append([]zap.Field{zap.String("event", string(event))}, fields...)...)
}
