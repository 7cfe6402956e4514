package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// SubjectPrefix is the root of the audit subject hierarchy. Events are
// published to {prefix}.{kind}, e.g. remedyd.audit.fix.approved.
const SubjectPrefix = "remedyd.audit"

// NATSSink publishes audit events to NATS for durable collection by a
// JetStream consumer.
type NATSSink struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewNATSSink wraps an established NATS connection. Stream provisioning is
// left to the consumer side.
func NewNATSSink(nc *nats.Conn, logger *zap.Logger) (*NATSSink, error) {
	if nc == nil {
		return nil, fmt.Errorf("nats connection is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSSink{nc: nc, logger: logger}, nil
}

// Record publishes the event. Publish errors are returned so callers can
// log them; they must not be allowed to fail the fix being audited.
func (s *NATSSink) Record(_ context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	subject := fmt.Sprintf("%s.%s", SubjectPrefix, ev.Kind)
	if err := s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("publish audit event: %w", err)
	}

	s.logger.Debug("audit event published",
		zap.String("subject", subject),
		zap.String("fix_id", ev.FixID),
	)
	return nil
}
