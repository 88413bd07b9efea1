package session

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courtiq/drill-engine/internal/drill"
	"github.com/courtiq/drill-engine/internal/room"
	"github.com/courtiq/drill-engine/internal/safety"
	"github.com/courtiq/drill-engine/internal/sport"
)

// BounceSink принимает подтвержденные события отскоков для отложенной
// записи в БД (батчер)
type BounceSink interface {
	Add(event drill.BounceEvent)
}

// Notifier рассылает обновления сессии подписчикам (websocket hub)
type Notifier interface {
	NotifySessionUpdate(sessionID string, update interface{})
}

// Manager управляет тренировочными сессиями (Application Layer)
type Manager struct {
	cache      CacheStore
	repository Repository
	sink       BounceSink
	notifier   Notifier

	// Мьютекс на сессию: запись отскока, синхронизация и переходы
	// статуса одной сессии сериализуются, разные сессии не мешают
	// друг другу
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	// Предыдущий снимок позы для оценки скорости
	posesMu   sync.Mutex
	lastPoses map[string]safety.PoseSnapshot
}

// NewManager создает новый менеджер сессий. sink и notifier опциональны.
func NewManager(cache CacheStore, repository Repository, sink BounceSink, notifier Notifier) *Manager {
	return &Manager{
		cache:      cache,
		repository: repository,
		sink:       sink,
		notifier:   notifier,
		locks:      make(map[string]*sync.Mutex),
		lastPoses:  make(map[string]safety.PoseSnapshot),
	}
}

// sessionLock возвращает мьютекс конкретной сессии
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	mu, ok := m.locks[sessionID]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[sessionID] = mu
	}
	return mu
}

// CreateSessionRequest - параметры создания сессии
type CreateSessionRequest struct {
	UserID         string                 `json:"user_id"`
	Sport          string                 `json:"sport"`
	DrillPatternID string                 `json:"drill_pattern_id"`
	Difficulty     sport.Difficulty       `json:"difficulty"`
	Platform       drill.Platform         `json:"platform"`
	Context        *drill.PlatformContext `json:"context,omitempty"`
}

// CreateSession создает новую тренировочную сессию
func (m *Manager) CreateSession(ctx context.Context, req *CreateSessionRequest) (*drill.TrainingSession, error) {
	if req.UserID == "" {
		return nil, &drill.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if _, err := sport.ProfileFor(req.Sport); err != nil {
		return nil, &drill.ValidationError{Field: "sport", Reason: err.Error()}
	}
	if !req.Difficulty.Valid() {
		return nil, &drill.ValidationError{Field: "difficulty", Reason: fmt.Sprintf("unknown difficulty %q", req.Difficulty)}
	}
	if !req.Platform.Valid() {
		return nil, &drill.ValidationError{Field: "platform", Reason: fmt.Sprintf("unknown platform %q", req.Platform)}
	}
	if _, err := room.PatternFor(req.DrillPatternID); err != nil {
		return nil, &drill.ValidationError{Field: "drill_pattern_id", Reason: err.Error()}
	}
	if req.Context != nil {
		if err := req.Context.Validate(); err != nil {
			return nil, err
		}
	}

	session := &drill.TrainingSession{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Sport:          req.Sport,
		DrillPatternID: req.DrillPatternID,
		Difficulty:     req.Difficulty,
		Platform:       req.Platform,
		Status:         drill.StatusActive,
		StartedAt:      time.Now(),
		Context:        req.Context,
	}

	if err := m.cache.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to cache: %w", err)
	}
	if err := m.repository.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session to database: %w", err)
	}

	log.Printf("[SESSION] Created new session: %s (user=%s sport=%s pattern=%s difficulty=%s)",
		session.ID, req.UserID, req.Sport, req.DrillPatternID, req.Difficulty)
	return session, nil
}

// GetSession получает сессию по ID: сначала кэш, затем БД
func (m *Manager) GetSession(ctx context.Context, sessionID string) (*drill.TrainingSession, error) {
	session, err := m.cache.GetSession(ctx, sessionID)
	if err == nil {
		return session, nil
	}

	session, err = m.repository.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	// Прогреваем кэш найденной сессией
	if cacheErr := m.cache.SetSession(ctx, session); cacheErr != nil {
		log.Printf("[WARN] Failed to cache session %s: %v", sessionID, cacheErr)
	}
	return session, nil
}

// ListSessions возвращает список сессий пользователя
func (m *Manager) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*drill.TrainingSession, error) {
	return m.repository.ListSessions(ctx, userID, limit, offset)
}

// DeleteSession удаляет сессию со всеми данными
func (m *Manager) DeleteSession(ctx context.Context, sessionID string) error {
	if err := m.cache.DeleteSession(ctx, sessionID); err != nil {
		log.Printf("[WARN] Failed to delete session from cache: %v", err)
	}
	if err := m.repository.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session from database: %w", err)
	}

	m.posesMu.Lock()
	delete(m.lastPoses, sessionID)
	m.posesMu.Unlock()

	m.locksMu.Lock()
	delete(m.locks, sessionID)
	m.locksMu.Unlock()

	log.Printf("[SESSION] Deleted session: %s", sessionID)
	return nil
}

// AnalyzeRoom вычисляет ограничения помещения для сессии и сохраняет их
func (m *Manager) AnalyzeRoom(ctx context.Context, sessionID string, scan room.PlaneScan) (*room.Constraints, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	profile, err := sport.ProfileFor(session.Sport)
	if err != nil {
		return nil, err
	}

	constraints, err := room.Analyze(profile, scan)
	if err != nil {
		return nil, err
	}

	if err := m.cache.SetConstraints(ctx, sessionID, constraints); err != nil {
		return nil, fmt.Errorf("failed to cache constraints: %w", err)
	}
	if err := m.repository.SaveConstraints(ctx, sessionID, constraints); err != nil {
		log.Printf("[WARN] Failed to persist constraints for session %s: %v", sessionID, err)
	}

	log.Printf("[ROOM] Analyzed room for session %s: area=%.1fm² safety=%.0f roomMode=%v patterns=%d",
		sessionID, constraints.AreaM2, constraints.SafetyScore, constraints.IsRoomMode, len(constraints.RecommendedPatterns))
	return constraints, nil
}

// GenerateMarkers раскладывает маркеры паттерна сессии внутри
// проанализированного помещения
func (m *Manager) GenerateMarkers(ctx context.Context, sessionID string) (*room.MarkerSet, error) {
	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	constraints, err := m.getConstraints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("room has not been analyzed for session %s: %w", sessionID, err)
	}

	profile, err := sport.ProfileFor(session.Sport)
	if err != nil {
		return nil, err
	}
	tolerance, err := profile.ToleranceForDifficulty(session.Difficulty)
	if err != nil {
		return nil, err
	}

	area := room.UsableArea{WidthM: constraints.WidthM, HeightM: constraints.HeightM}
	set, err := room.GenerateMarkers(session.DrillPatternID, area, tolerance)
	if err != nil {
		return nil, err
	}

	log.Printf("[ROOM] Generated %d markers for session %s (pattern=%s tolerance=%.0fmm)",
		len(set.Markers), sessionID, set.PatternID, tolerance)
	return set, nil
}

// RecordBounce валидирует удар, добавляет событие и пересчитывает
// метрики сессии
func (m *Manager) RecordBounce(ctx context.Context, sessionID string, input drill.ImpactInput) (*drill.BounceEvent, *drill.TrainingSession, error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("session not found: %w", err)
	}

	// Приостановленная сессия не набирает очки: автопауза по инциденту
	// безопасности обязана останавливать и учет метрик
	if session.Status != drill.StatusActive {
		return nil, nil, &drill.IllegalTransitionError{From: session.Status, Trigger: "record_bounce"}
	}

	profile, err := sport.ProfileFor(session.Sport)
	if err != nil {
		return nil, nil, err
	}
	tolerance, err := profile.ToleranceForDifficulty(session.Difficulty)
	if err != nil {
		return nil, nil, err
	}

	event, err := drill.ValidateBounce(sessionID, input, tolerance)
	if err != nil {
		return nil, nil, err
	}

	if err := m.cache.AppendBounceEvents(ctx, sessionID, []drill.BounceEvent{*event}); err != nil {
		return nil, nil, fmt.Errorf("failed to append bounce event: %w", err)
	}

	events, err := m.cache.GetBounceEvents(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load bounce events: %w", err)
	}

	drill.Recompute(session, events, time.Since(session.StartedAt), profile)

	if err := m.cache.SetSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to update session %s after bounce: %v", sessionID, err)
	}

	if m.sink != nil {
		m.sink.Add(*event)
	}
	m.notify(sessionID, map[string]interface{}{
		"type":    "bounce",
		"event":   event,
		"scores":  session.Scores,
		"hits":    session.TotalHits,
		"bounces": session.TotalBounces,
	})

	log.Printf("[SESSION] Recorded bounce for session %s: hit=%v error=%.1fmm fusion=%.1f total=%.1f",
		sessionID, event.IsHit, event.ErrorDistanceMM, event.FusionConfidence, session.Scores.Total)
	return event, session, nil
}

// EvaluatePoseSafety оценивает снимок позы; критический инцидент ставит
// активную сессию на паузу ровно один раз
func (m *Manager) EvaluatePoseSafety(ctx context.Context, sessionID string, snapshot safety.PoseSnapshot) (*safety.Assessment, error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	constraints, err := m.getConstraints(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("room has not been analyzed for session %s: %w", sessionID, err)
	}

	monitor, err := safety.NewMonitor(constraints)
	if err != nil {
		return nil, err
	}

	m.posesMu.Lock()
	var previous *safety.PoseSnapshot
	if prev, ok := m.lastPoses[sessionID]; ok {
		previous = &prev
	}
	m.lastPoses[sessionID] = snapshot
	m.posesMu.Unlock()

	now := time.Now()
	assessment := monitor.Evaluate(sessionID, snapshot, previous, now)

	// Пауза срабатывает один раз: уже приостановленная или терминальная
	// сессия не меняется, инциденты дописываются в журнал всегда
	paused := false
	if assessment.Critical() && session.Status == drill.StatusActive {
		if err := drill.Transition(session, drill.TriggerSafetyPause, "automatic safety pause"); err != nil {
			log.Printf("[ERROR] Failed to auto-pause session %s: %v", sessionID, err)
		} else {
			paused = true
			if err := m.cache.SetSession(ctx, session); err != nil {
				log.Printf("[WARN] Failed to update paused session %s in cache: %v", sessionID, err)
			}
			if err := m.repository.UpdateSession(ctx, session); err != nil {
				log.Printf("[WARN] Failed to persist paused session %s: %v", sessionID, err)
			}
			log.Printf("[SAFETY] Auto-paused session %s on critical incident", sessionID)
		}
	}

	for i := range assessment.Incidents {
		inc := &assessment.Incidents[i]
		if inc.Severity == drill.SeverityCritical {
			inc.AutomaticResponse = "pause"
			inc.SessionPaused = paused
		}
		if err := m.cache.AppendIncident(ctx, inc); err != nil {
			log.Printf("[WARN] Failed to cache incident for session %s: %v", sessionID, err)
		}
		if err := m.repository.SaveIncident(ctx, inc); err != nil {
			log.Printf("[WARN] Failed to persist incident for session %s: %v", sessionID, err)
		}
	}

	if len(assessment.Incidents) > 0 {
		m.notify(sessionID, map[string]interface{}{
			"type":      "safety",
			"incidents": assessment.Incidents,
			"paused":    paused,
		})
	}

	return assessment, nil
}

// TransitionSession переводит сессию по явному триггеру
func (m *Manager) TransitionSession(ctx context.Context, sessionID string, trigger drill.TransitionTrigger, reason string) (*drill.TrainingSession, error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	if err := drill.Transition(session, trigger, reason); err != nil {
		return nil, err
	}

	if session.Status.Terminal() {
		// Финальный пересчет по полному потоку событий
		profile, profErr := sport.ProfileFor(session.Sport)
		events, evErr := m.cache.GetBounceEvents(ctx, sessionID)
		if profErr == nil && evErr == nil {
			elapsed := time.Since(session.StartedAt)
			if session.CompletedAt != nil {
				elapsed = session.CompletedAt.Sub(session.StartedAt)
			}
			drill.Recompute(session, events, elapsed, profile)
		}
	}

	if err := m.cache.SetSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to update session %s in cache: %v", sessionID, err)
	}
	if err := m.repository.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist session transition: %w", err)
	}

	// Терминальная сессия получает сводку результатов для выборок
	// истории без разворачивания потока событий
	if session.Status.Terminal() {
		if err := m.repository.SaveRollup(ctx, session); err != nil {
			log.Printf("[WARN] Failed to save rollup for session %s: %v", sessionID, err)
		}
	}

	m.notify(sessionID, map[string]interface{}{
		"type":   "status",
		"status": session.Status,
		"reason": reason,
	})

	log.Printf("[SESSION] Session %s transitioned to %s (trigger=%s)", sessionID, session.Status, trigger)
	return session, nil
}

// SyncSession сливает снимок метрик качества с платформы в сессию
func (m *Manager) SyncSession(ctx context.Context, sessionID string, payload drill.SyncPayload) (*drill.TrainingSession, error) {
	mu := m.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session not found: %w", err)
	}

	if err := drill.MergeSync(session, payload, time.Now()); err != nil {
		return nil, err
	}

	if err := m.cache.SetSession(ctx, session); err != nil {
		log.Printf("[WARN] Failed to update session %s in cache: %v", sessionID, err)
	}
	if err := m.repository.UpdateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to persist sync: %w", err)
	}

	log.Printf("[SYNC] Merged sync for session %s from %s", sessionID, payload.Platform)
	return session, nil
}

// GetBounceEvents возвращает события отскоков сессии
func (m *Manager) GetBounceEvents(ctx context.Context, sessionID string) ([]drill.BounceEvent, error) {
	events, err := m.cache.GetBounceEvents(ctx, sessionID)
	if err == nil && len(events) > 0 {
		return events, nil
	}
	return m.repository.GetBounceEvents(ctx, sessionID)
}

// GetIncidents возвращает журнал безопасности сессии
func (m *Manager) GetIncidents(ctx context.Context, sessionID string) ([]drill.SafetyIncident, error) {
	incidents, err := m.cache.GetIncidents(ctx, sessionID)
	if err == nil && len(incidents) > 0 {
		return incidents, nil
	}
	return m.repository.GetIncidents(ctx, sessionID)
}

// GetConstraints возвращает последние ограничения помещения сессии
func (m *Manager) GetConstraints(ctx context.Context, sessionID string) (*room.Constraints, error) {
	return m.getConstraints(ctx, sessionID)
}

func (m *Manager) getConstraints(ctx context.Context, sessionID string) (*room.Constraints, error) {
	constraints, err := m.cache.GetConstraints(ctx, sessionID)
	if err == nil {
		return constraints, nil
	}
	return m.repository.GetConstraints(ctx, sessionID)
}

func (m *Manager) notify(sessionID string, update interface{}) {
	if m.notifier != nil {
		m.notifier.NotifySessionUpdate(sessionID, update)
	}
}
