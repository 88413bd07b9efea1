package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/room"
)

// PostgresRepository реализует Repository для PostgreSQL (Infrastructure Layer)
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository создает новый экземпляр PostgresRepository
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// NewPostgresRepositoryFromDSN создает репозиторий из строки подключения
func NewPostgresRepositoryFromDSN(dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Настройки пула соединений
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresRepository{db: db}, nil
}

// Ping проверяет доступность базы (используется health-эндпоинтом)
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close закрывает соединение с БД
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// ===== Управление сессиями =====

func (r *PostgresRepository) CreateSession(ctx context.Context, session *drill.TrainingSession) error {
	scoresJSON, err := json.Marshal(session.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	qualityJSON, contextJSON, err := marshalOptional(session)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO training_sessions (
			id, user_id, sport, drill_pattern_id, difficulty, platform,
			status, status_reason, started_at, completed_at, duration_ms,
			total_bounces, total_hits, accuracy, avg_reaction_time_ms,
			scores, quality_metrics, platform_context
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Sport,
		session.DrillPatternID,
		session.Difficulty,
		session.Platform,
		session.Status,
		session.StatusReason,
		session.StartedAt,
		session.CompletedAt,
		session.DurationMs,
		session.TotalBounces,
		session.TotalHits,
		session.Accuracy,
		session.AvgReactionTimeMs,
		scoresJSON,
		qualityJSON,
		contextJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, sessionID string) (*drill.TrainingSession, error) {
	query := `
		SELECT id, user_id, sport, drill_pattern_id, difficulty, platform,
			status, status_reason, started_at, completed_at, duration_ms,
			total_bounces, total_hits, accuracy, avg_reaction_time_ms,
			scores, quality_metrics, platform_context
		FROM training_sessions
		WHERE id = $1
	`

	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("session not found: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) UpdateSession(ctx context.Context, session *drill.TrainingSession) error {
	scoresJSON, err := json.Marshal(session.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	qualityJSON, contextJSON, err := marshalOptional(session)
	if err != nil {
		return err
	}

	query := `
		UPDATE training_sessions
		SET status = $2, status_reason = $3, completed_at = $4, duration_ms = $5,
			total_bounces = $6, total_hits = $7, accuracy = $8, avg_reaction_time_ms = $9,
			scores = $10, quality_metrics = $11, platform_context = $12
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.StatusReason,
		session.CompletedAt,
		session.DurationMs,
		session.TotalBounces,
		session.TotalHits,
		session.Accuracy,
		session.AvgReactionTimeMs,
		scoresJSON,
		qualityJSON,
		contextJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("session not found: %s", session.ID)
	}

	return nil
}

func (r *PostgresRepository) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*drill.TrainingSession, error) {
	query := `
		SELECT id, user_id, sport, drill_pattern_id, difficulty, platform,
			status, status_reason, started_at, completed_at, duration_ms,
			total_bounces, total_hits, accuracy, avg_reaction_time_ms,
			scores, quality_metrics, platform_context
		FROM training_sessions
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*drill.TrainingSession

	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			continue // Пропускаем поврежденные записи
		}
		sessions = append(sessions, session)
	}

	return sessions, nil
}

func (r *PostgresRepository) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Удаляем связанные данные (каскадное удаление должно работать через FK, но для надежности делаем явно)
	queries := []string{
		"DELETE FROM bounce_events WHERE session_id = $1",
		"DELETE FROM safety_incidents WHERE session_id = $1",
		"DELETE FROM room_constraints WHERE session_id = $1",
		"DELETE FROM training_sessions WHERE id = $1",
	}

	for _, query := range queries {
		if _, err := tx.ExecContext(ctx, query, sessionID); err != nil {
			return fmt.Errorf("failed to delete session data: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ===== События отскоков =====

func (r *PostgresRepository) SaveBounceEvents(ctx context.Context, events []drill.BounceEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Повторный флаш того же батча не должен дублировать события
	query := `
		INSERT INTO bounce_events (
			session_id, ts_ms, world_position, court_position,
			target_index, target_position, error_distance_mm, is_hit,
			tolerance_radius_mm, vision_confidence, audio_confidence,
			fusion_confidence, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (session_id, ts_ms) DO NOTHING
	`

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, event := range events {
		worldJSON, err := json.Marshal(event.WorldPosition)
		if err != nil {
			return fmt.Errorf("failed to marshal world position: %w", err)
		}
		courtJSON, err := json.Marshal(event.CourtPosition)
		if err != nil {
			return fmt.Errorf("failed to marshal court position: %w", err)
		}
		targetJSON, err := json.Marshal(event.TargetPosition)
		if err != nil {
			return fmt.Errorf("failed to marshal target position: %w", err)
		}

		_, err = stmt.ExecContext(ctx,
			event.SessionID,
			event.TsMS,
			worldJSON,
			courtJSON,
			event.TargetIndex,
			targetJSON,
			event.ErrorDistanceMM,
			event.IsHit,
			event.ToleranceRadiusMM,
			event.VisionConfidence,
			event.AudioConfidence,
			event.FusionConfidence,
			event.CreatedAt,
		)

		if err != nil {
			return fmt.Errorf("failed to insert bounce event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetBounceEvents(ctx context.Context, sessionID string) ([]drill.BounceEvent, error) {
	query := `
		SELECT id, session_id, ts_ms, world_position, court_position,
			target_index, target_position, error_distance_mm, is_hit,
			tolerance_radius_mm, vision_confidence, audio_confidence,
			fusion_confidence, created_at
		FROM bounce_events
		WHERE session_id = $1
		ORDER BY ts_ms ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounce events: %w", err)
	}
	defer rows.Close()

	var events []drill.BounceEvent

	for rows.Next() {
		var event drill.BounceEvent
		var worldJSON, courtJSON, targetJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.TsMS,
			&worldJSON,
			&courtJSON,
			&event.TargetIndex,
			&targetJSON,
			&event.ErrorDistanceMM,
			&event.IsHit,
			&event.ToleranceRadiusMM,
			&event.VisionConfidence,
			&event.AudioConfidence,
			&event.FusionConfidence,
			&event.CreatedAt,
		)
		if err != nil {
			continue
		}

		if err := json.Unmarshal(worldJSON, &event.WorldPosition); err != nil {
			continue
		}
		if err := json.Unmarshal(courtJSON, &event.CourtPosition); err != nil {
			continue
		}
		if err := json.Unmarshal(targetJSON, &event.TargetPosition); err != nil {
			continue
		}

		events = append(events, event)
	}

	return events, nil
}

// ===== Журнал безопасности =====

func (r *PostgresRepository) SaveIncident(ctx context.Context, incident *drill.SafetyIncident) error {
	positionJSON, err := json.Marshal(incident.UserPosition)
	if err != nil {
		return fmt.Errorf("failed to marshal user position: %w", err)
	}

	query := `
		INSERT INTO safety_incidents (
			session_id, incident_type, severity, message, user_position,
			automatic_response, session_paused, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	err = r.db.QueryRowContext(ctx, query,
		incident.SessionID,
		incident.Type,
		incident.Severity,
		incident.Message,
		positionJSON,
		incident.AutomaticResponse,
		incident.SessionPaused,
		incident.CreatedAt,
	).Scan(&incident.ID)

	if err != nil {
		return fmt.Errorf("failed to save incident: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetIncidents(ctx context.Context, sessionID string) ([]drill.SafetyIncident, error) {
	query := `
		SELECT id, session_id, incident_type, severity, message, user_position,
			automatic_response, session_paused, created_at
		FROM safety_incidents
		WHERE session_id = $1
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get incidents: %w", err)
	}
	defer rows.Close()

	var incidents []drill.SafetyIncident

	for rows.Next() {
		var incident drill.SafetyIncident
		var positionJSON []byte

		err := rows.Scan(
			&incident.ID,
			&incident.SessionID,
			&incident.Type,
			&incident.Severity,
			&incident.Message,
			&positionJSON,
			&incident.AutomaticResponse,
			&incident.SessionPaused,
			&incident.CreatedAt,
		)
		if err != nil {
			continue
		}

		if len(positionJSON) > 0 {
			_ = json.Unmarshal(positionJSON, &incident.UserPosition)
		}

		incidents = append(incidents, incident)
	}

	return incidents, nil
}

// ===== Ограничения помещения =====

func (r *PostgresRepository) SaveConstraints(ctx context.Context, sessionID string, constraints *room.Constraints) error {
	data, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("failed to marshal constraints: %w", err)
	}

	query := `
		INSERT INTO room_constraints (session_id, constraints, scanned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (session_id) DO UPDATE SET
			constraints = EXCLUDED.constraints,
			scanned_at = EXCLUDED.scanned_at
	`

	_, err = r.db.ExecContext(ctx, query, sessionID, data, constraints.ScannedAt)
	if err != nil {
		return fmt.Errorf("failed to save constraints: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetConstraints(ctx context.Context, sessionID string) (*room.Constraints, error) {
	query := `
		SELECT constraints
		FROM room_constraints
		WHERE session_id = $1
	`

	var data []byte
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("constraints not found for session: %s", sessionID)
		}
		return nil, fmt.Errorf("failed to get constraints: %w", err)
	}

	var constraints room.Constraints
	if err := json.Unmarshal(data, &constraints); err != nil {
		return nil, fmt.Errorf("failed to unmarshal constraints: %w", err)
	}

	return &constraints, nil
}

// ===== Сводки сессий =====

// SaveRollup пишет сводку результатов терминальной сессии в
// session_rollups. Upsert по session_id: повторный переход-retry
// перезаписывает сводку теми же значениями.
func (r *PostgresRepository) SaveRollup(ctx context.Context, session *drill.TrainingSession) error {
	scoresJSON, err := json.Marshal(session.Scores)
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}

	query := `
		INSERT INTO session_rollups (
			session_id, user_id, sport, drill_pattern_id, difficulty,
			status, started_at, completed_at, duration_ms,
			total_bounces, total_hits, accuracy, avg_reaction_time_ms, scores
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			completed_at = EXCLUDED.completed_at,
			duration_ms = EXCLUDED.duration_ms,
			total_bounces = EXCLUDED.total_bounces,
			total_hits = EXCLUDED.total_hits,
			accuracy = EXCLUDED.accuracy,
			avg_reaction_time_ms = EXCLUDED.avg_reaction_time_ms,
			scores = EXCLUDED.scores
	`

	_, err = r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.Sport,
		session.DrillPatternID,
		session.Difficulty,
		session.Status,
		session.StartedAt,
		session.CompletedAt,
		session.DurationMs,
		session.TotalBounces,
		session.TotalHits,
		session.Accuracy,
		session.AvgReactionTimeMs,
		scoresJSON,
	)

	if err != nil {
		return fmt.Errorf("failed to save session rollup: %w", err)
	}

	return nil
}

// ===== Вспомогательные функции =====

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*drill.TrainingSession, error) {
	var session drill.TrainingSession
	var scoresJSON, qualityJSON, contextJSON []byte

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Sport,
		&session.DrillPatternID,
		&session.Difficulty,
		&session.Platform,
		&session.Status,
		&session.StatusReason,
		&session.StartedAt,
		&session.CompletedAt,
		&session.DurationMs,
		&session.TotalBounces,
		&session.TotalHits,
		&session.Accuracy,
		&session.AvgReactionTimeMs,
		&scoresJSON,
		&qualityJSON,
		&contextJSON,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(scoresJSON, &session.Scores); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scores: %w", err)
	}
	if len(qualityJSON) > 0 && string(qualityJSON) != "null" {
		if err := json.Unmarshal(qualityJSON, &session.Quality); err != nil {
			return nil, fmt.Errorf("failed to unmarshal quality metrics: %w", err)
		}
	}
	if len(contextJSON) > 0 && string(contextJSON) != "null" {
		if err := json.Unmarshal(contextJSON, &session.Context); err != nil {
			return nil, fmt.Errorf("failed to unmarshal platform context: %w", err)
		}
	}

	return &session, nil
}

func marshalOptional(session *drill.TrainingSession) (qualityJSON, contextJSON []byte, err error) {
	qualityJSON, err = json.Marshal(session.Quality)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal quality metrics: %w", err)
	}
	contextJSON, err = json.Marshal(session.Context)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal platform context: %w", err)
	}
	return qualityJSON, contextJSON, nil
}
