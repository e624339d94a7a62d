package core

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/intake/internal/logging"
)

// AuditAction names a recorded review action.
type AuditAction string

const (
	ActionIngest           AuditAction = "ingest"
	ActionApprove          AuditAction = "approve"
	ActionReject           AuditAction = "reject"
	ActionEdit             AuditAction = "edit"
	ActionDelete           AuditAction = "delete"
	ActionCommit           AuditAction = "commit"
	ActionMarkDuplicate    AuditAction = "mark_duplicate"
	ActionDiscardDuplicate AuditAction = "discard_duplicate"
)

// AuditSeverity ranks how much an action changes.
type AuditSeverity string

const (
	SeverityLow      AuditSeverity = "low"
	SeverityMedium   AuditSeverity = "medium"
	SeverityHigh     AuditSeverity = "high"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID           uuid.UUID      `json:"id"`
	Action       AuditAction    `json:"action"`
	Severity     AuditSeverity  `json:"severity"`
	IPAddress    string         `json:"ipAddress,omitempty"`
	UserAgent    string         `json:"userAgent,omitempty"`
	BatchID      uuid.UUID      `json:"batchId,omitempty"`
	RecordIDs    []uuid.UUID    `json:"recordIds,omitempty"`
	RowsAffected int            `json:"rowsAffected"`
	Reason       string         `json:"reason,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// AuditLogParams is the caller-supplied part of an entry. Request metadata
// and severity are filled in by logAudit.
type AuditLogParams struct {
	Action       AuditAction
	BatchID      uuid.UUID
	RecordIDs    []uuid.UUID
	RowsAffected int
	Reason       string
	Detail       map[string]any
}

func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionCommit:
		return SeverityCritical
	case ActionIngest, ActionDelete, ActionDiscardDuplicate:
		return SeverityHigh
	case ActionEdit:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// logAudit records an action. Audit failures are logged and never fail
// the operation being audited.
func (s *Service) logAudit(ctx context.Context, params AuditLogParams) {
	if s.audit == nil {
		return
	}
	if params.RowsAffected == 0 && len(params.RecordIDs) == 0 {
		return
	}

	meta := RequestMetaFrom(ctx)
	entry := AuditEntry{
		ID:           uuid.New(),
		Action:       params.Action,
		Severity:     determineSeverity(params.Action),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
		BatchID:      params.BatchID,
		RecordIDs:    params.RecordIDs,
		RowsAffected: params.RowsAffected,
		Reason:       params.Reason,
		Detail:       params.Detail,
		CreatedAt:    s.now(),
	}

	if err := s.audit.InsertAudit(context.WithoutCancel(ctx), entry); err != nil {
		logging.FromContext(ctx).Warn("audit write failed",
			"action", entry.Action,
			"rows", entry.RowsAffected,
			"error", err,
		)
	}
}

// RequestMeta identifies the client behind a request for the audit log.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client metadata to ctx.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// RequestMetaFrom returns the metadata attached by WithRequestMeta, or the
// zero value.
func RequestMetaFrom(ctx context.Context) RequestMeta {
	meta, _ := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta
}
