package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"audittrail/internal/core/apperror"
	"audittrail/internal/core/entity"
	"audittrail/internal/core/id"
)

// OutboxStatus represents the state of an outbox message.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// DefaultOutboxTable receives domain events raised by saved entities.
const DefaultOutboxTable = "sys_outbox"

// OutboxMessage represents a message in the transactional outbox.
type OutboxMessage struct {
	ID            id.ID        `db:"id"`
	AggregateType string       `db:"aggregate_type"` // table of the raising row
	AggregateID   string       `db:"aggregate_id"`   // reference id of the raising row
	EventType     string       `db:"event_type"`
	Payload       []byte       `db:"payload"` // JSON payload
	Status        OutboxStatus `db:"status"`
	CreatedAt     time.Time    `db:"created_at"`
}

// OutboxPublisher writes domain events to the outbox table next to the
// business write. Delivery to a broker is left to a separate relay.
type OutboxPublisher struct {
	txManager *TxManager
	table     string
	now       func() time.Time
}

func NewOutboxPublisher(txManager *TxManager) *OutboxPublisher {
	return &OutboxPublisher{txManager: txManager, table: DefaultOutboxTable, now: time.Now}
}

// Publish writes events raised by one aggregate. Inside an open transaction
// it runs under a savepoint.
func (p *OutboxPublisher) Publish(ctx context.Context, aggregateType, aggregateID string, events []entity.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	now := p.now().UTC()
	return p.txManager.RunInTransactionWithOptions(ctx, SavepointTxOptions(), func(ctx context.Context) error {
		q := p.txManager.GetQuerier(ctx)
		for _, event := range events {
			payload, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("marshal event %s payload: %w", event.EventName(), err)
			}

			msg := OutboxMessage{
				ID:            id.New(),
				AggregateType: aggregateType,
				AggregateID:   aggregateID,
				EventType:     event.EventName(),
				Payload:       payload,
				Status:        OutboxStatusPending,
				CreatedAt:     now,
			}
			_, err = q.Exec(ctx, fmt.Sprintf(`
				INSERT INTO %s (id, aggregate_type, aggregate_id, event_type, payload, status, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
			`, quoteTable(p.table)), msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, msg.Status, msg.CreatedAt)
			if err != nil {
				return apperror.NewDatabase("insert outbox message", err).WithDetail("event", msg.EventType)
			}
		}
		return nil
	})
}

// Migrate creates the outbox table if missing.
func (p *OutboxPublisher) Migrate(ctx context.Context) error {
	table := quoteTable(p.table)
	_, err := p.txManager.GetQuerier(ctx).Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT        NOT NULL,
	aggregate_id   TEXT        NOT NULL,
	event_type     TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	status         TEXT        NOT NULL DEFAULT 'pending',
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table))
	if err != nil {
		return apperror.NewDatabase("migrate outbox table", err)
	}
	return nil
}
