package session

import (
	"context"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/room"
)

// Repository определяет интерфейс для работы с хранилищем сессий (Domain Layer)
type Repository interface {
	// Управление сессиями
	CreateSession(ctx context.Context, session *drill.TrainingSession) error
	GetSession(ctx context.Context, sessionID string) (*drill.TrainingSession, error)
	UpdateSession(ctx context.Context, session *drill.TrainingSession) error
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]*drill.TrainingSession, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// События отскоков (append-only, пишутся батчами)
	SaveBounceEvents(ctx context.Context, events []drill.BounceEvent) error
	GetBounceEvents(ctx context.Context, sessionID string) ([]drill.BounceEvent, error)

	// Журнал безопасности (append-only, переживает терминальные статусы)
	SaveIncident(ctx context.Context, incident *drill.SafetyIncident) error
	GetIncidents(ctx context.Context, sessionID string) ([]drill.SafetyIncident, error)

	// Ограничения помещения (снимок последнего сканирования)
	SaveConstraints(ctx context.Context, sessionID string, constraints *room.Constraints) error
	GetConstraints(ctx context.Context, sessionID string) (*room.Constraints, error)

	// Сводка результатов терминальной сессии; upsert, переживает retry
	SaveRollup(ctx context.Context, session *drill.TrainingSession) error
}

// CacheStore определяет интерфейс для работы с кэшем (Redis)
type CacheStore interface {
	// Управление сессиями в кэше
	SetSession(ctx context.Context, session *drill.TrainingSession) error
	GetSession(ctx context.Context, sessionID string) (*drill.TrainingSession, error)
	DeleteSession(ctx context.Context, sessionID string) error

	// События отскоков (append-only)
	AppendBounceEvents(ctx context.Context, sessionID string, events []drill.BounceEvent) error
	GetBounceEvents(ctx context.Context, sessionID string) ([]drill.BounceEvent, error)
	GetBounceEventCount(ctx context.Context, sessionID string) (int, error)

	// Журнал безопасности (append-only)
	AppendIncident(ctx context.Context, incident *drill.SafetyIncident) error
	GetIncidents(ctx context.Context, sessionID string) ([]drill.SafetyIncident, error)

	// Ограничения помещения (перезаписываются каждым сканированием)
	SetConstraints(ctx context.Context, sessionID string, constraints *room.Constraints) error
	GetConstraints(ctx context.Context, sessionID string) (*room.Constraints, error)

	// Утилиты
	SessionExists(ctx context.Context, sessionID string) (bool, error)
	SetSessionTTL(ctx context.Context, sessionID string, ttl int) error
}
