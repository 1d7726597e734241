package service

import (
	"context"

	"contribgate/pkg/domain"
	audit "contribgate/pkg/platform/audit"
	"contribgate/pkg/requestcontext"
)

// newEvent stamps an event with the request id, request time and, for HTTP
// callers, the client address and agent.
func (s *Service) newEvent(ctx context.Context, action audit.AuditEvent, party, actor domain.Address, details map[string]string) audit.Event {
	if ip := requestcontext.ClientIP(ctx); ip != "" {
		if details == nil {
			details = make(map[string]string, 2)
		}
		details["client_ip"] = ip
		if agent := requestcontext.ClientAgent(ctx); agent != "" {
			details["client_agent"] = agent
		}
	}
	return audit.Event{
		Action:    string(action),
		Timestamp: s.now(ctx),
		Party:     party,
		Actor:     actor,
		RequestID: requestcontext.RequestID(ctx),
		Details:   details,
	}
}

// logAudit logs event and hands it to the best-effort auditor. Failures are
// logged and never change the outcome of the operation.
func (s *Service) logAudit(ctx context.Context, event audit.Event) {
	args := []any{
		"event", event.Action,
		"log_type", "audit",
	}
	if !event.Party.IsZero() {
		args = append(args, "party", event.Party.Hex())
	}
	if !event.Actor.IsZero() {
		args = append(args, "actor", event.Actor.Hex())
	}
	if event.Amount != "" {
		args = append(args, "amount", event.Amount)
	}
	if event.Reason != "" {
		args = append(args, "reason", event.Reason)
	}
	if event.RequestID != "" {
		args = append(args, "request_id", event.RequestID)
	}
	s.logger.InfoContext(ctx, event.Action, args...)

	if s.auditor == nil {
		return
	}
	if err := s.auditor.Emit(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to emit audit event", "event", event.Action, "error", err)
	}
}
