package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"deliverytech-api/internal/event"
	"deliverytech-api/internal/model"
	"deliverytech-api/pkg/apierror"
)

const auditWriteTimeout = 5 * time.Second

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}

// AuditService persists security events taken from the bus.
type AuditService struct {
	store AuditStore
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store}
}

// Run consumes bus events until ctx is cancelled or the channel closes.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.record(e)
		}
	}
}

func (s *AuditService) record(e event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
	defer cancel()

	if err := s.store.Log(ctx, entryFromEvent(e)); err != nil {
		slog.Error("persist audit entry", "type", e.Type, "error", err)
	}
}

func entryFromEvent(e event.Event) model.AuditEntry {
	status := model.AuditStatusSuccess
	if e.Failed {
		status = model.AuditStatusFailure
	}

	occurredAt := e.Timestamp
	if occurredAt == "" {
		occurredAt = time.Now().UTC().Format(time.RFC3339Nano)
	}

	return model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: occurredAt,
		Actor: model.AuditActor{
			UserID: e.ActorID,
			Email:  e.ActorEmail,
			Role:   e.ActorRole,
			IP:     e.ClientIP,
		},
		Status:   status,
		Resource: e.Resource,
		Details:  e.Payload,
		Error:    e.Error,
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if _, err := parseOptionalAuditTime(query.From); err != nil {
		return nil, model.Meta{}, apierror.New(apierror.CodeBadRequest, "invalid 'from' datetime format", query.From, http.StatusBadRequest)
	}
	if _, err := parseOptionalAuditTime(query.To); err != nil {
		return nil, model.Meta{}, apierror.New(apierror.CodeBadRequest, "invalid 'to' datetime format", query.To, http.StatusBadRequest)
	}

	switch query.Status {
	case "", model.AuditStatusSuccess, model.AuditStatusFailure:
	default:
		return nil, model.Meta{}, apierror.BadRequest("status must be 'success' or 'failure'", query.Status)
	}

	return s.store.Query(ctx, query)
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}

	if value, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return value.UTC(), nil
	}

	value, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, err
	}
	return value.UTC(), nil
}
