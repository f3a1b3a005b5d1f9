package audit

import (
	"context"
	"fmt"

	"github.com/hackgods/clinic-scheduling/internal/db"
)

type PgSink struct {
	db db.DBTX
}

func NewPgSink(conn db.DBTX) *PgSink {
	return &PgSink{db: conn}
}

func (s *PgSink) Record(ctx context.Context, ev Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_events (id, occurred_at, actor_id, action, entity_type, entity_id, description)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ev.ID, ev.OccurredAt, ev.ActorID, ev.Action, ev.EntityType, ev.EntityID, ev.Description)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
