package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/room"
)

// RedisStore реализует CacheStore для Redis (Infrastructure Layer)
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore создает новый экземпляр RedisStore
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
	}
}

// ===== Ключи Redis =====

func sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:metadata", sessionID)
}

func bouncesKey(sessionID string) string {
	return fmt.Sprintf("session:%s:bounces", sessionID)
}

func incidentsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:incidents", sessionID)
}

func constraintsKey(sessionID string) string {
	return fmt.Sprintf("session:%s:constraints", sessionID)
}

// ===== Управление сессиями =====

func (r *RedisStore) SetSession(ctx context.Context, session *drill.TrainingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return r.client.Set(ctx, sessionKey(session.ID), data, 0).Err()
}

func (r *RedisStore) GetSession(ctx context.Context, sessionID string) (*drill.TrainingSession, error) {
	data, err := r.client.Get(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session drill.TrainingSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

func (r *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	// Удаляем все ключи, связанные с сессией
	pattern := fmt.Sprintf("session:%s:*", sessionID)

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) SessionExists(ctx context.Context, sessionID string) (bool, error) {
	count, err := r.client.Exists(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RedisStore) SetSessionTTL(ctx context.Context, sessionID string, ttl int) error {
	pattern := fmt.Sprintf("session:%s:*", sessionID)
	duration := time.Duration(ttl) * time.Second

	iter := r.client.Scan(ctx, 0, pattern, 0).Iterator()
	pipe := r.client.Pipeline()

	for iter.Next(ctx) {
		pipe.Expire(ctx, iter.Val(), duration)
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// ===== События отскоков =====

func (r *RedisStore) AppendBounceEvents(ctx context.Context, sessionID string, events []drill.BounceEvent) error {
	if len(events) == 0 {
		return nil
	}

	key := bouncesKey(sessionID)
	pipe := r.client.Pipeline()

	for _, event := range events {
		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal bounce event: %w", err)
		}
		pipe.RPush(ctx, key, data)
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) GetBounceEvents(ctx context.Context, sessionID string) ([]drill.BounceEvent, error) {
	data, err := r.client.LRange(ctx, bouncesKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get bounce events: %w", err)
	}

	events := make([]drill.BounceEvent, 0, len(data))
	for _, item := range data {
		var event drill.BounceEvent
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			continue // Пропускаем поврежденные записи
		}
		events = append(events, event)
	}

	return events, nil
}

func (r *RedisStore) GetBounceEventCount(ctx context.Context, sessionID string) (int, error) {
	count, err := r.client.LLen(ctx, bouncesKey(sessionID)).Result()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// ===== Журнал безопасности =====

func (r *RedisStore) AppendIncident(ctx context.Context, incident *drill.SafetyIncident) error {
	data, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident: %w", err)
	}

	return r.client.RPush(ctx, incidentsKey(incident.SessionID), data).Err()
}

func (r *RedisStore) GetIncidents(ctx context.Context, sessionID string) ([]drill.SafetyIncident, error) {
	data, err := r.client.LRange(ctx, incidentsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get incidents: %w", err)
	}

	incidents := make([]drill.SafetyIncident, 0, len(data))
	for _, item := range data {
		var incident drill.SafetyIncident
		if err := json.Unmarshal([]byte(item), &incident); err != nil {
			continue
		}
		incidents = append(incidents, incident)
	}

	return incidents, nil
}

// ===== Ограничения помещения =====

func (r *RedisStore) SetConstraints(ctx context.Context, sessionID string, constraints *room.Constraints) error {
	data, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}

	return r.client.Set(ctx, constraintsKey(sessionID), data, 0).Err()
}

func (r *RedisStore) GetConstraints(ctx context.Context, sessionID string) (*room.Constraints, error) {
	data, err := r.client.Get(ctx, constraintsKey(sessionID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("constraints not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	var constraints room.Constraints
	if err := json.Unmarshal([]byte(data), &constraints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
	}

	return &constraints, nil
}
