package batch

import (
	"context"
	"fmt"
	"log"

	"github.com/courtiq/drill-engine/internal/drill"
)

// EventWriter - подмножество репозитория, необходимое для записи батчей
type EventWriter interface {
	SaveBounceEvents(ctx context.Context, events []drill.BounceEvent) error
}

// RepositorySink пишет готовые батчи событий в PostgreSQL
type RepositorySink struct {
	writer EventWriter
}

func NewRepositorySink(writer EventWriter) *RepositorySink {
	return &RepositorySink{writer: writer}
}

func (s *RepositorySink) Consume(ctx context.Context, b Batch) error {
	if err := s.writer.SaveBounceEvents(ctx, b.Events); err != nil {
		return fmt.Errorf("failed to persist bounce batch: %w", err)
	}

	log.Printf("[BATCH] Persisted %d bounce events for session %s (span %dms)",
		len(b.Events), b.SessionID, b.T1MS-b.T0MS)
	return nil
}
